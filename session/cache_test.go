package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCache(client, "test:sess", ttl), mr
}

func activeSession(id string, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		UserID:     "u1",
		FamilyID:   "f1",
		TokenHash:  hashOf("secret"),
		UserAgent:  "ua",
		IPAddress:  "10.0.0.1",
		CreatedAt:  now,
		LastUsedAt: now,
		ExpiresAt:  now.Add(ttl),
	}
}

func TestCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)
	ctx := context.Background()

	if err := cache.Put(ctx, activeSession("s1", time.Hour)); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := cache.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "u1" || got.UserAgent != "ua" {
		t.Fatalf("entry = %+v", got)
	}
	if got.TokenHash != [32]byte{} {
		t.Fatal("token hash must never be cached")
	}
}

func TestCacheMiss(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)

	if _, err := cache.Get(context.Background(), "absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCacheSkipsInactiveSessions(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)
	ctx := context.Background()

	expired := activeSession("s-expired", -time.Minute)
	if err := cache.Put(ctx, expired); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := cache.Get(ctx, "s-expired"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired session was cached: %v", err)
	}

	revoked := activeSession("s-revoked", time.Hour)
	now := time.Now()
	revoked.RevokedAt = &now
	if err := cache.Put(ctx, revoked); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := cache.Get(ctx, "s-revoked"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("revoked session was cached: %v", err)
	}
}

func TestCacheEntryHonorsSessionExpiry(t *testing.T) {
	cache, mr := newTestCache(t, time.Hour)
	ctx := context.Background()

	// Session expires before the cache TTL would; the shorter bound wins.
	if err := cache.Put(ctx, activeSession("s1", 10*time.Minute)); err != nil {
		t.Fatalf("put: %v", err)
	}
	mr.FastForward(11 * time.Minute)

	if _, err := cache.Get(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale hit: %v", err)
	}
}

func TestCacheDrop(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3"} {
		if err := cache.Put(ctx, activeSession(id, time.Hour)); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	if err := cache.Drop(ctx, "s1", "s3"); err != nil {
		t.Fatalf("drop: %v", err)
	}

	if _, err := cache.Get(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatal("s1 survived drop")
	}
	if _, err := cache.Get(ctx, "s2"); err != nil {
		t.Fatalf("s2 evicted unexpectedly: %v", err)
	}

	// Dropping nothing is a no-op, not an error.
	if err := cache.Drop(ctx); err != nil {
		t.Fatalf("empty drop: %v", err)
	}
}

func TestCacheCorruptEntryEvicted(t *testing.T) {
	cache, mr := newTestCache(t, time.Hour)
	ctx := context.Background()

	mr.Set("test:sess:bad", "{not json")

	if _, err := cache.Get(ctx, "bad"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("corrupt entry: %v", err)
	}
	if mr.Exists("test:sess:bad") {
		t.Fatal("corrupt entry not evicted")
	}
}
