package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a read-through Redis cache for validate lookups. It holds only
// active-session metadata, never token hashes, and is advisory: rotation and
// revocation always go to the Store. Entries carry their own expiry so a
// cache hit can never outlive the row it mirrors.
type Cache struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

type cacheEntry struct {
	UserID     string `json:"uid"`
	FamilyID   string `json:"fid"`
	Guest      bool   `json:"gst,omitempty"`
	UserAgent  string `json:"ua,omitempty"`
	IPAddress  string `json:"ip,omitempty"`
	DeviceHash string `json:"dh,omitempty"`
	CreatedAt  int64  `json:"cat"`
	LastUsedAt int64  `json:"lat"`
	ExpiresAt  int64  `json:"eat"`
}

// NewCache wraps rdb. ttl bounds how stale a cached entry may get; entries
// closer to their session expiry use the shorter remaining lifetime.
func NewCache(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Cache {
	if prefix == "" {
		prefix = "tw:sess"
	}
	return &Cache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *Cache) key(sessionID string) string {
	return c.prefix + ":" + sessionID
}

// Get returns the cached session or ErrNotFound on a miss. Any other error
// means Redis trouble; callers treat it as a miss and fall through to the
// store.
func (c *Cache) Get(ctx context.Context, sessionID string) (*Session, error) {
	raw, err := c.rdb.Get(ctx, c.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// Unreadable entry: evict and miss.
		c.rdb.Del(ctx, c.key(sessionID))
		return nil, ErrNotFound
	}

	expiresAt := time.Unix(entry.ExpiresAt, 0)
	if !time.Now().Before(expiresAt) {
		c.rdb.Del(ctx, c.key(sessionID))
		return nil, ErrNotFound
	}

	return &Session{
		ID:         sessionID,
		UserID:     entry.UserID,
		FamilyID:   entry.FamilyID,
		Guest:      entry.Guest,
		UserAgent:  entry.UserAgent,
		IPAddress:  entry.IPAddress,
		DeviceHash: entry.DeviceHash,
		CreatedAt:  time.Unix(entry.CreatedAt, 0),
		LastUsedAt: time.Unix(entry.LastUsedAt, 0),
		ExpiresAt:  expiresAt,
	}, nil
}

// Put caches an active session. Revoked or expired sessions are never
// written.
func (c *Cache) Put(ctx context.Context, sess *Session) error {
	now := time.Now()
	if !sess.Active(now) {
		return nil
	}

	ttl := c.ttl
	if remaining := sess.ExpiresAt.Sub(now); remaining < ttl {
		ttl = remaining
	}

	raw, err := json.Marshal(cacheEntry{
		UserID:     sess.UserID,
		FamilyID:   sess.FamilyID,
		Guest:      sess.Guest,
		UserAgent:  sess.UserAgent,
		IPAddress:  sess.IPAddress,
		DeviceHash: sess.DeviceHash,
		CreatedAt:  sess.CreatedAt.Unix(),
		LastUsedAt: sess.LastUsedAt.Unix(),
		ExpiresAt:  sess.ExpiresAt.Unix(),
	})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(sess.ID), raw, ttl).Err()
}

// Ping measures a Redis round trip, for health probes.
func (c *Cache) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	return time.Since(start), err
}

// Drop removes cached entries after revocation or rotation.
func (c *Cache) Drop(ctx context.Context, sessionIDs ...string) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	keys := make([]string, len(sessionIDs))
	for i, id := range sessionIDs {
		keys[i] = c.key(id)
	}
	return c.rdb.Del(ctx, keys...).Err()
}
