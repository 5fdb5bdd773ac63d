package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/medivuno/medivuno-backend/internal/database"
	"github.com/medivuno/medivuno-backend/internal/models"
)

func TestRecentCacheNilSafe(t *testing.T) {
	var c *RecentCache
	ctx := context.Background()

	c.Push(ctx, models.Message{ID: "m1"})
	c.Invalidate(ctx, "a", "b")
	c.Warm(ctx, "a", "b", []models.Message{{ID: "m1"}})
	if msgs, ok := c.Recent(ctx, "a", "b"); ok || msgs != nil {
		t.Fatalf("nil cache should always miss, got %v", msgs)
	}

	// Same for a cache built without a client.
	empty := NewRecentCache(nil)
	if _, ok := empty.Recent(ctx, "a", "b"); ok {
		t.Fatal("client-less cache should always miss")
	}
}

func liveCache(t *testing.T) *RecentCache {
	t.Helper()
	uri := os.Getenv("CHAT_TEST_REDIS_URI")
	if uri == "" {
		t.Skip("CHAT_TEST_REDIS_URI not set")
	}
	rdb, err := database.ConnectRedis(uri)
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return NewRecentCache(rdb)
}

func TestRecentCacheRoundTrip(t *testing.T) {
	c := liveCache(t)
	ctx := context.Background()

	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	patient := "test-patient-" + suffix
	doctor := "test-doctor-" + suffix
	t.Cleanup(func() { c.Invalidate(ctx, patient, doctor) })

	if _, ok := c.Recent(ctx, patient, doctor); ok {
		t.Fatal("expected a miss before any push")
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 1; i <= 3; i++ {
		c.Push(ctx, models.Message{
			ID:          fmt.Sprintf("m%d", i),
			SenderID:    patient,
			RecipientID: doctor,
			Text:        fmt.Sprintf("msg %d", i),
			Timestamp:   base.Add(time.Duration(i) * time.Second),
		})
	}

	msgs, ok := c.Recent(ctx, patient, doctor)
	if !ok {
		t.Fatal("expected a hit after pushes")
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 cached messages, got %d", len(msgs))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if msgs[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, msgs[i].ID)
		}
	}

	// Keys are direction independent.
	if _, ok := c.Recent(ctx, doctor, patient); !ok {
		t.Fatal("expected a hit with swapped parties")
	}

	c.Invalidate(ctx, patient, doctor)
	if _, ok := c.Recent(ctx, patient, doctor); ok {
		t.Fatal("expected a miss after invalidation")
	}
}

func TestRecentCacheWarmReplacesTail(t *testing.T) {
	c := liveCache(t)
	ctx := context.Background()

	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	patient := "test-patient-warm-" + suffix
	doctor := "test-doctor-warm-" + suffix
	t.Cleanup(func() { c.Invalidate(ctx, patient, doctor) })

	c.Push(ctx, models.Message{ID: "stale", SenderID: patient, RecipientID: doctor, Text: "old"})

	fresh := []models.Message{
		{ID: "w1", SenderID: doctor, RecipientID: patient, Text: "one"},
		{ID: "w2", SenderID: patient, RecipientID: doctor, Text: "two"},
	}
	c.Warm(ctx, patient, doctor, fresh)

	msgs, ok := c.Recent(ctx, patient, doctor)
	if !ok || len(msgs) != 2 {
		t.Fatalf("expected the warmed tail, got %v (hit=%v)", msgs, ok)
	}
	if msgs[0].ID != "w1" || msgs[1].ID != "w2" {
		t.Fatalf("expected oldest-first order, got %s, %s", msgs[0].ID, msgs[1].ID)
	}
}
