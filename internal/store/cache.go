package store

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medivuno/medivuno-backend/internal/models"
)

const (
	recentKeyPrefix = "chat:conv:"
	recentKeySuffix = ":recent"
	recentMaxLen    = 50
	recentTTL       = 1 * time.Hour
)

// RecentCache keeps the tail of each conversation in Redis so the initial
// history load usually skips Postgres. Strictly an optimization: a miss or a
// Redis failure falls through to the store.
type RecentCache struct {
	rdb *redis.Client
}

func NewRecentCache(rdb *redis.Client) *RecentCache {
	return &RecentCache{rdb: rdb}
}

func recentKey(a, b string) string {
	return recentKeyPrefix + models.ConversationKey(a, b) + recentKeySuffix
}

// Push adds a freshly persisted message to the cache (newest at head).
// LPUSH + LTRIM keeps the last 50.
func (c *RecentCache) Push(ctx context.Context, msg models.Message) {
	if c == nil || c.rdb == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	key := recentKey(msg.SenderID, msg.RecipientID)
	pipe := c.rdb.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, recentMaxLen-1)
	pipe.Expire(ctx, key, recentTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("recent cache: push failed for %s: %v", key, err)
	}
}

// Invalidate drops the cached tail for a conversation. Called after a bulk
// read-state update so the cache never serves stale is_read flags.
func (c *RecentCache) Invalidate(ctx context.Context, a, b string) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, recentKey(a, b)).Err(); err != nil {
		log.Printf("recent cache: invalidate failed: %v", err)
	}
}

// Recent returns the cached conversation tail oldest-first.
// Returns (nil, false) on a miss or any Redis failure.
func (c *RecentCache) Recent(ctx context.Context, a, b string) ([]models.Message, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.LRange(ctx, recentKey(a, b), 0, -1).Result()
	if err != nil || len(raw) == 0 {
		return nil, false
	}

	var msgs []models.Message
	for i := len(raw) - 1; i >= 0; i-- {
		var m models.Message
		if json.Unmarshal([]byte(raw[i]), &m) != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, true
}

// Warm stores a conversation tail fetched from Postgres (msgs oldest-first).
func (c *RecentCache) Warm(ctx context.Context, a, b string, msgs []models.Message) {
	if c == nil || c.rdb == nil || len(msgs) == 0 {
		return
	}

	key := recentKey(a, b)
	pipe := c.rdb.Pipeline()
	pipe.Del(ctx, key)
	for i := len(msgs) - 1; i >= 0; i-- {
		data, err := json.Marshal(msgs[i])
		if err != nil {
			continue
		}
		pipe.RPush(ctx, key, data)
	}
	pipe.LTrim(ctx, key, 0, recentMaxLen-1)
	pipe.Expire(ctx, key, recentTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("recent cache: warm failed for %s: %v", key, err)
	}
}
