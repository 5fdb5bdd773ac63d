package channel

import (
	"time"

	"github.com/medivuno/medivuno-backend/internal/models"
)

// Event types carried on a user's message channel.
const (
	EventTypeMessageNew  = "message.new"
	EventTypeMessageRead = "message.read"
)

// MessageEvent is the payload published on chat:user:<id>. A message.new
// event carries the full persisted message; a message.read event carries only
// the changed fields (who read whose messages), not a full payload.
type MessageEvent struct {
	Type      string          `json:"type"`
	Message   *models.Message `json:"message,omitempty"`
	ReaderID  string          `json:"reader_id,omitempty"`
	SenderID  string          `json:"sender_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// TypingEvent is the ephemeral payload published on chat:typing:<id>.
// Never persisted; no replay on reconnect.
type TypingEvent struct {
	FromUserID      string    `json:"from_user_id"`
	ConversationKey string    `json:"conversation_key"`
	IsTyping        bool      `json:"is_typing"`
	Timestamp       time.Time `json:"timestamp"`
}

func userChannel(userID string) string   { return "chat:user:" + userID }
func typingChannel(userID string) string { return "chat:typing:" + userID }
