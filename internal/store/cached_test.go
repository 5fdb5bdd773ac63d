package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medivuno/medivuno-backend/internal/models"
)

type stubBackend struct {
	nextID    int
	insertErr error
	markErr   error
	marks     [][2]string
}

func (b *stubBackend) InsertMessage(ctx context.Context, senderID, recipientID, text string, urgent bool, file *models.FileRef) (*models.Message, error) {
	if b.insertErr != nil {
		return nil, b.insertErr
	}
	b.nextID++
	return &models.Message{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Text:        text,
		IsUrgent:    urgent,
		Timestamp:   time.Now().UTC(),
	}, nil
}

func (b *stubBackend) MarkRead(ctx context.Context, recipientID, senderID string) error {
	if b.markErr != nil {
		return b.markErr
	}
	b.marks = append(b.marks, [2]string{recipientID, senderID})
	return nil
}

func (b *stubBackend) QueryAllForUser(ctx context.Context, userID string) ([]models.Message, error) {
	return nil, nil
}

func (b *stubBackend) CountUnread(ctx context.Context, userID string) (int, error) {
	return 0, nil
}

func TestCachedMessagesInsertRefreshesWarmTail(t *testing.T) {
	cache := liveCache(t)
	cached := NewCachedMessages(&stubBackend{}, cache)
	ctx := context.Background()

	patient := uuid.NewString()
	doctor := uuid.NewString()
	t.Cleanup(func() { cache.Invalidate(ctx, patient, doctor) })

	// A prior history read warmed the tail.
	cache.Warm(ctx, patient, doctor, []models.Message{
		{ID: "old", SenderID: doctor, RecipientID: patient, Text: "earlier", Timestamp: time.Now().UTC()},
	})

	// A send through the session path must land in the cached tail too, or
	// history reads keep serving the warm copy without it.
	saved, err := cached.InsertMessage(ctx, patient, doctor, "just sent", false, nil)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	msgs, ok := cache.Recent(ctx, patient, doctor)
	if !ok {
		t.Fatal("expected a warm tail")
	}
	if len(msgs) != 2 || msgs[1].ID != saved.ID {
		t.Fatalf("expected the new message at the tail, got %+v", msgs)
	}
}

func TestCachedMessagesMarkReadDropsWarmTail(t *testing.T) {
	cache := liveCache(t)
	backend := &stubBackend{}
	cached := NewCachedMessages(backend, cache)
	ctx := context.Background()

	patient := uuid.NewString()
	doctor := uuid.NewString()
	t.Cleanup(func() { cache.Invalidate(ctx, patient, doctor) })

	cache.Warm(ctx, patient, doctor, []models.Message{
		{ID: "m1", SenderID: doctor, RecipientID: patient, Text: "unread", IsRead: false, Timestamp: time.Now().UTC()},
	})

	if err := cached.MarkRead(ctx, patient, doctor); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if len(backend.marks) != 1 {
		t.Fatalf("expected backend mark-read, got %v", backend.marks)
	}

	// The tail carried is_read=false; it must not survive the flip.
	if _, ok := cache.Recent(ctx, patient, doctor); ok {
		t.Fatal("expected the stale tail to be invalidated")
	}
}

func TestCachedMessagesBackendErrorSkipsCache(t *testing.T) {
	cause := errors.New("connection refused")
	cached := NewCachedMessages(&stubBackend{insertErr: cause, markErr: cause}, NewRecentCache(nil))
	ctx := context.Background()

	if _, err := cached.InsertMessage(ctx, "a", "b", "hi", false, nil); !errors.Is(err, cause) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if err := cached.MarkRead(ctx, "a", "b"); !errors.Is(err, cause) {
		t.Fatalf("expected backend error, got %v", err)
	}
}
