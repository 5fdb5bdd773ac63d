package services

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "presence:"
	presenceTTL       = 60 * time.Second
)

// PresenceService tracks who currently has an open chat session via Redis
// TTL keys. Set on connect and refreshed on ping; disconnects expire
// naturally. Best-effort single-session presence; multi-device fan-out is a
// non-goal.
type PresenceService struct {
	rdb *redis.Client
}

func NewPresenceService(rdb *redis.Client) *PresenceService {
	return &PresenceService{rdb: rdb}
}

// SetOnline marks the user online for the TTL window.
func (s *PresenceService) SetOnline(ctx context.Context, userID string) {
	if s == nil || s.rdb == nil {
		return
	}
	s.rdb.Set(ctx, presenceKeyPrefix+userID, "online", presenceTTL)
}

// IsOnline reports whether the user currently has a live session.
func (s *PresenceService) IsOnline(ctx context.Context, userID string) bool {
	if s == nil || s.rdb == nil {
		return false
	}
	n, err := s.rdb.Exists(ctx, presenceKeyPrefix+userID).Result()
	return err == nil && n > 0
}
