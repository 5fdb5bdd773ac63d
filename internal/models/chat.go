package models

import (
	"strings"
	"time"
)

// FileType classifies a message attachment.
// Valid values: "pdf", "image", "audio".
type FileType string

const (
	FileTypePDF   FileType = "pdf"
	FileTypeImage FileType = "image"
	FileTypeAudio FileType = "audio"
)

// FileTypeFromMIME maps a MIME type onto our attachment classification.
// Anything that is not an image or audio type is treated as a PDF document.
func FileTypeFromMIME(mimeType string) FileType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return FileTypeImage
	case strings.HasPrefix(mimeType, "audio/"):
		return FileTypeAudio
	default:
		return FileTypePDF
	}
}

// FileRef describes a message attachment already uploaded to storage.
type FileRef struct {
	URL      string   `json:"url"`
	Name     string   `json:"name"`
	Type     FileType `json:"type"`
	Size     int64    `json:"size"`
	MimeType string   `json:"mime_type"`
}

// Message is a single direct message between two users.
// Immutable once created except for IsRead, which only ever flips false→true
// by the recipient's read action. A message carries text, a file attachment,
// or both, never neither (enforced by a CHECK constraint in Postgres).
type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Text        string    `json:"text,omitempty"`
	FileURL     string    `json:"file_url,omitempty"`
	FileName    string    `json:"file_name,omitempty"`
	FileType    FileType  `json:"file_type,omitempty"`
	FileSize    int64     `json:"file_size,omitempty"`
	MimeType    string    `json:"mime_type,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	IsRead      bool      `json:"is_read"`
	IsUrgent    bool      `json:"is_urgent"`
}

// ConversationKey returns a direction-independent key for the conversation
// between a and b. Both orderings of the pair map to the same key.
func ConversationKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// InConversation reports whether the message belongs to the conversation
// between users a and b, in either direction.
func (m *Message) InConversation(a, b string) bool {
	return (m.SenderID == a && m.RecipientID == b) ||
		(m.SenderID == b && m.RecipientID == a)
}

// PartnerOf returns the other party of this message from userID's point of
// view, or "" when userID is not a participant.
func (m *Message) PartnerOf(userID string) string {
	switch userID {
	case m.SenderID:
		return m.RecipientID
	case m.RecipientID:
		return m.SenderID
	}
	return ""
}
