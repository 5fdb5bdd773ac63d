package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/medivuno/medivuno-backend/internal/models"
)

// MessageStore is the durable persistence layer for chat messages, backed by
// the chat_messages table in PostgreSQL. It carries no business logic beyond
// CRUD and filtering; ids and timestamps are assigned by the database.
type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

// ErrEmptyMessage is returned when a message has neither text nor a file.
var ErrEmptyMessage = errors.New("message needs text or a file attachment")

const messageColumns = `id, sender_id, recipient_id, COALESCE(text, ''),
	COALESCE(file_url, ''), COALESCE(file_name, ''), COALESCE(file_type, ''),
	COALESCE(file_size, 0), COALESCE(mime_type, ''), is_urgent, is_read, created_at`

// InsertMessage persists a new message and returns it with the server-assigned
// id and timestamp. file may be nil for plain text messages.
func (s *MessageStore) InsertMessage(ctx context.Context, senderID, recipientID, text string, urgent bool, file *models.FileRef) (*models.Message, error) {
	if text == "" && (file == nil || file.URL == "") {
		return nil, persistErr("insert message", ErrEmptyMessage)
	}

	var (
		fileURL, fileName, fileType, mimeType sql.NullString
		fileSize                              sql.NullInt64
	)
	if file != nil && file.URL != "" {
		fileURL = sql.NullString{String: file.URL, Valid: true}
		fileName = sql.NullString{String: file.Name, Valid: true}
		fileType = sql.NullString{String: string(file.Type), Valid: true}
		fileSize = sql.NullInt64{Int64: file.Size, Valid: true}
		mimeType = sql.NullString{String: file.MimeType, Valid: true}
	}

	var textArg sql.NullString
	if text != "" {
		textArg = sql.NullString{String: text, Valid: true}
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO chat_messages (sender_id, recipient_id, text, file_url, file_name, file_type, file_size, mime_type, is_urgent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+messageColumns, senderID, recipientID, textArg, fileURL, fileName, fileType, fileSize, mimeType, urgent)

	msg, err := scanMessage(row)
	if err != nil {
		return nil, persistErr("insert message", err)
	}
	return msg, nil
}

// MarkRead flips is_read on every unread message from senderID to
// recipientID. Idempotent: already-read messages are untouched and is_read
// never moves back to false.
func (s *MessageStore) MarkRead(ctx context.Context, recipientID, senderID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE chat_messages SET is_read = TRUE
		WHERE recipient_id = $1 AND sender_id = $2 AND is_read = FALSE
	`, recipientID, senderID)
	if err != nil {
		return persistErr("mark read", err)
	}
	return nil
}

// QueryConversation returns every message exchanged between a and b ordered
// by timestamp ascending.
func (s *MessageStore) QueryConversation(ctx context.Context, a, b string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM chat_messages
		WHERE (sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1)
		ORDER BY created_at ASC
	`, a, b)
	if err != nil {
		return nil, persistErr("query conversation", err)
	}
	defer rows.Close()
	return scanMessages(rows, "query conversation")
}

// QueryAllForUser returns every message the user sent or received, newest
// first, for inbox aggregation.
func (s *MessageStore) QueryAllForUser(ctx context.Context, userID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM chat_messages
		WHERE sender_id = $1 OR recipient_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, persistErr("query all for user", err)
	}
	defer rows.Close()
	return scanMessages(rows, "query all for user")
}

// CountUnread returns how many unread messages the user has across all
// conversations.
func (s *MessageStore) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chat_messages WHERE recipient_id = $1 AND is_read = FALSE
	`, userID).Scan(&count)
	if err != nil {
		return 0, persistErr("count unread", err)
	}
	return count, nil
}

// CountUrgentUnread is CountUnread restricted to urgent messages.
func (s *MessageStore) CountUrgentUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chat_messages WHERE recipient_id = $1 AND is_read = FALSE AND is_urgent = TRUE
	`, userID).Scan(&count)
	if err != nil {
		return 0, persistErr("count urgent unread", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var m models.Message
	var fileType string
	err := row.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Text,
		&m.FileURL, &m.FileName, &fileType, &m.FileSize, &m.MimeType,
		&m.IsUrgent, &m.IsRead, &m.Timestamp)
	if err != nil {
		return nil, err
	}
	m.FileType = models.FileType(fileType)
	return &m, nil
}

func scanMessages(rows *sql.Rows, op string) ([]models.Message, error) {
	var msgs []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, persistErr(op, err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(op, err)
	}
	return msgs, nil
}
