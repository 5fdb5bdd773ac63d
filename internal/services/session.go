package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// SessionDuration is 7 days
	SessionDuration = 7 * 24 * time.Hour
	// SessionKeyPrefix is the Redis key prefix for sessions
	SessionKeyPrefix = "session:"
	// UserSessionKeyPrefix is the Redis key prefix for user->session mapping
	UserSessionKeyPrefix = "user_session:"
)

// SessionService validates and issues opaque bearer tokens backed by Redis.
// This is the chat layer's narrow interface to the platform's auth system:
// signup/signin live elsewhere, the chat boundary only needs to resolve a
// token to a user id.
type SessionService struct {
	rdb *redis.Client
}

func NewSessionService(rdb *redis.Client) *SessionService {
	return &SessionService{rdb: rdb}
}

// CreateSession creates a new session for a user. An existing session is
// invalidated first so the 7-day timer resets from the current login.
func (s *SessionService) CreateSession(ctx context.Context, userID string) (string, error) {
	s.InvalidateUserSessions(ctx, userID)

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := base64.URLEncoding.EncodeToString(tokenBytes)

	if err := s.rdb.Set(ctx, SessionKeyPrefix+token, userID, SessionDuration).Err(); err != nil {
		return "", err
	}
	if err := s.rdb.Set(ctx, UserSessionKeyPrefix+userID, token, SessionDuration).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// ValidateSession resolves a session token to a user id.
// Returns ("", false, nil) for missing or expired tokens.
func (s *SessionService) ValidateSession(ctx context.Context, token string) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}

	userID, err := s.rdb.Get(ctx, SessionKeyPrefix+token).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return userID, true, nil
}

// InvalidateUserSessions removes the user's current session, if any.
func (s *SessionService) InvalidateUserSessions(ctx context.Context, userID string) {
	token, err := s.rdb.Get(ctx, UserSessionKeyPrefix+userID).Result()
	if err == nil && token != "" {
		s.rdb.Del(ctx, SessionKeyPrefix+token)
	}
	s.rdb.Del(ctx, UserSessionKeyPrefix+userID)
}
