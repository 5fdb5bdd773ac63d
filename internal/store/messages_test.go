package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/medivuno/medivuno-backend/internal/database"
	"github.com/medivuno/medivuno-backend/internal/models"
)

func TestInsertMessageRejectsEmptyContent(t *testing.T) {
	s := NewMessageStore(nil) // rejected before any query runs

	_, err := s.InsertMessage(context.Background(), "patient-1", "doctor-1", "", false, nil)
	if !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if !IsPersistenceError(err) {
		t.Fatalf("expected a persistence error, got %v", err)
	}

	// A file with no URL is as empty as no file.
	_, err = s.InsertMessage(context.Background(), "patient-1", "doctor-1", "", false, &models.FileRef{Name: "scan.pdf"})
	if !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestPersistenceErrorWraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := persistErr("insert message", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to survive errors.Is")
	}
	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.Op != "insert message" {
		t.Fatalf("expected PersistenceError with op, got %v", err)
	}
}

// liveStore connects to the database named by CHAT_TEST_POSTGRES_URI and
// initializes the schema. Tests that need a real database skip without it.
func liveStore(t *testing.T) *MessageStore {
	t.Helper()
	uri := os.Getenv("CHAT_TEST_POSTGRES_URI")
	if uri == "" {
		t.Skip("CHAT_TEST_POSTGRES_URI not set")
	}
	db, err := database.ConnectPostgres(uri) // runs schema init too
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewMessageStore(db)
}

func TestMessageStoreRoundTrip(t *testing.T) {
	s := liveStore(t)
	ctx := context.Background()

	// Unique parties per run keep reruns independent.
	patient := uuid.NewString()
	doctor := uuid.NewString()

	first, err := s.InsertMessage(ctx, patient, doctor, "hello doctor", false, nil)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if first.ID == "" || first.Timestamp.IsZero() {
		t.Fatalf("expected server-assigned id and timestamp, got %+v", first)
	}

	second, err := s.InsertMessage(ctx, doctor, patient, "hello back", true, &models.FileRef{
		URL: "https://example.com/scan.pdf", Name: "scan.pdf", Type: models.FileTypePDF,
		Size: 1024, MimeType: "application/pdf",
	})
	if err != nil {
		t.Fatalf("insert with file: %v", err)
	}
	if second.FileURL == "" || second.FileType != models.FileTypePDF {
		t.Fatalf("file fields not persisted: %+v", second)
	}

	conv, err := s.QueryConversation(ctx, patient, doctor)
	if err != nil {
		t.Fatalf("query conversation: %v", err)
	}
	if len(conv) != 2 || conv[0].ID != first.ID || conv[1].ID != second.ID {
		t.Fatalf("unexpected conversation %+v", conv)
	}

	unread, err := s.CountUnread(ctx, patient)
	if err != nil {
		t.Fatalf("count unread: %v", err)
	}
	if unread != 1 {
		t.Fatalf("expected 1 unread for patient, got %d", unread)
	}
	urgent, err := s.CountUrgentUnread(ctx, patient)
	if err != nil {
		t.Fatalf("count urgent unread: %v", err)
	}
	if urgent != 1 {
		t.Fatalf("expected 1 urgent unread, got %d", urgent)
	}

	if err := s.MarkRead(ctx, patient, doctor); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	unread, err = s.CountUnread(ctx, patient)
	if err != nil {
		t.Fatalf("count unread after mark: %v", err)
	}
	if unread != 0 {
		t.Fatalf("expected 0 unread after mark read, got %d", unread)
	}

	// Idempotent: a second pass changes nothing.
	if err := s.MarkRead(ctx, patient, doctor); err != nil {
		t.Fatalf("mark read again: %v", err)
	}

	inbox, err := s.QueryAllForUser(ctx, patient)
	if err != nil {
		t.Fatalf("query all: %v", err)
	}
	if len(inbox) != 2 || inbox[0].ID != second.ID {
		t.Fatalf("expected newest-first inbox, got %+v", inbox)
	}
}
