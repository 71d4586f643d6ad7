package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded Store with the same semantics as
// PostgresStore. It backs tests and single-process development setups.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (s *MemoryStore) Create(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) Rotate(ctx context.Context, p RotateParams) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[p.SessionID]
	if !ok {
		return nil, ErrNotFound
	}

	now := time.Now()
	switch {
	case sess.RevokedAt != nil:
		return nil, ErrRevoked
	case !now.Before(sess.ExpiresAt):
		return nil, ErrExpired
	}

	if sess.TokenHash != p.ProvidedHash {
		ids := s.revokeFamilyLocked(sess.FamilyID, ReasonReuseDetected, now)
		return nil, &ReuseError{FamilyID: sess.FamilyID, RevokedSessionIDs: ids}
	}

	sess.TokenHash = p.NextHash
	sess.LastUsedAt = now
	sess.ExpiresAt = now.Add(p.ExtendTTL)
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) Revoke(ctx context.Context, sessionID string, reason RevokeReason) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.RevokedAt != nil {
		return false, nil
	}
	now := time.Now()
	sess.RevokedAt = &now
	sess.RevokedReason = reason
	return true, nil
}

func (s *MemoryStore) RevokeFamily(ctx context.Context, familyID string, reason RevokeReason) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.revokeFamilyLocked(familyID, reason, time.Now()), nil
}

func (s *MemoryStore) revokeFamilyLocked(familyID string, reason RevokeReason, now time.Time) []string {
	var ids []string
	for _, sess := range s.sessions {
		if sess.FamilyID != familyID || sess.RevokedAt != nil {
			continue
		}
		at := now
		sess.RevokedAt = &at
		sess.RevokedReason = reason
		ids = append(ids, sess.ID)
	}
	return ids
}

func (s *MemoryStore) RevokeAllForUser(ctx context.Context, userID, exceptSessionID string, reason RevokeReason) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var ids []string
	for _, sess := range s.sessions {
		if sess.UserID != userID || sess.ID == exceptSessionID || sess.RevokedAt != nil {
			continue
		}
		at := now
		sess.RevokedAt = &at
		sess.RevokedReason = reason
		ids = append(ids, sess.ID)
	}
	return ids, nil
}

func (s *MemoryStore) ListActiveForUser(ctx context.Context, userID string) ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var out []*Session
	for _, sess := range s.sessions {
		if sess.UserID != userID || !sess.Active(now) {
			continue
		}
		cp := *sess
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUsedAt.After(out[j].LastUsedAt)
	})
	return out, nil
}

func (s *MemoryStore) RevokeExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var closed int64
	for _, sess := range s.sessions {
		if sess.RevokedAt != nil || now.Before(sess.ExpiresAt) {
			continue
		}
		at := now
		sess.RevokedAt = &at
		sess.RevokedReason = ReasonExpiredCleanup
		closed++
	}
	return closed, nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, sess := range s.sessions {
		if sess.ExpiresAt.Before(before) {
			delete(s.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
