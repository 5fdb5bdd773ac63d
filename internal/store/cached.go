package store

import (
	"context"

	"github.com/medivuno/medivuno-backend/internal/models"
)

// MessageBackend is the write/read surface CachedMessages decorates.
// *MessageStore satisfies it.
type MessageBackend interface {
	InsertMessage(ctx context.Context, senderID, recipientID, text string, urgent bool, file *models.FileRef) (*models.Message, error)
	MarkRead(ctx context.Context, recipientID, senderID string) error
	QueryAllForUser(ctx context.Context, userID string) ([]models.Message, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

// CachedMessages layers the RecentCache over a message backend so the cached
// conversation tails stay coherent no matter which path writes: every insert
// pushes onto the tail and every mark-read invalidates it. Hand this to any
// consumer that persists messages, or a warm tail keeps serving stale history
// until its TTL runs out.
type CachedMessages struct {
	backend MessageBackend
	cache   *RecentCache
}

func NewCachedMessages(backend MessageBackend, cache *RecentCache) *CachedMessages {
	return &CachedMessages{backend: backend, cache: cache}
}

// InsertMessage persists through the backend, then pushes the confirmed
// message onto the conversation's cached tail.
func (c *CachedMessages) InsertMessage(ctx context.Context, senderID, recipientID, text string, urgent bool, file *models.FileRef) (*models.Message, error) {
	msg, err := c.backend.InsertMessage(ctx, senderID, recipientID, text, urgent, file)
	if err != nil {
		return nil, err
	}
	c.cache.Push(ctx, *msg)
	return msg, nil
}

// MarkRead flips read state through the backend, then drops the cached tail
// so it never serves stale is_read flags.
func (c *CachedMessages) MarkRead(ctx context.Context, recipientID, senderID string) error {
	if err := c.backend.MarkRead(ctx, recipientID, senderID); err != nil {
		return err
	}
	c.cache.Invalidate(ctx, recipientID, senderID)
	return nil
}

func (c *CachedMessages) QueryAllForUser(ctx context.Context, userID string) ([]models.Message, error) {
	return c.backend.QueryAllForUser(ctx, userID)
}

func (c *CachedMessages) CountUnread(ctx context.Context, userID string) (int, error) {
	return c.backend.CountUnread(ctx, userID)
}
