package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no row exists for the requested session id.
var ErrNotFound = errors.New("session not found")

// ErrRevoked is returned when the target row was already revoked. No
// cascade runs for this case; replaying into a revoked family is inert.
var ErrRevoked = errors.New("session revoked")

// ErrExpired is returned when the target row is past its expiry.
var ErrExpired = errors.New("session expired")

// ErrUnavailable wraps storage infrastructure failures. Rotation callers
// must fail closed when they see it.
var ErrUnavailable = errors.New("session store unavailable")

// Store is the durable system of record for sessions. Implementations must
// make Rotate atomic: under concurrent rotations of the same row at most one
// caller observes success, and the reuse cascade commits before the
// rejection is returned.
type Store interface {
	// Create inserts a new row. The row's id must be unused.
	Create(ctx context.Context, s *Session) error

	// Get returns the row regardless of state, or ErrNotFound.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Rotate performs the compare-and-swap rotation described on
	// RotateParams. Outcomes:
	//   match            -> updated row, nil
	//   hash mismatch    -> nil, *ReuseError (family already revoked)
	//   missing row      -> nil, ErrNotFound
	//   revoked row      -> nil, ErrRevoked
	//   expired row      -> nil, ErrExpired
	//   storage failure  -> nil, error wrapping ErrUnavailable
	Rotate(ctx context.Context, p RotateParams) (*Session, error)

	// Revoke closes one active row. It reports false when the row was
	// already revoked or absent; revocation is never undone.
	Revoke(ctx context.Context, sessionID string, reason RevokeReason) (bool, error)

	// RevokeFamily closes every active row in a rotation family and
	// returns the ids it closed.
	RevokeFamily(ctx context.Context, familyID string, reason RevokeReason) ([]string, error)

	// RevokeAllForUser closes every active row owned by userID except the
	// optional exceptSessionID, returning the ids it closed.
	RevokeAllForUser(ctx context.Context, userID, exceptSessionID string, reason RevokeReason) ([]string, error)

	// ListActiveForUser returns the user's active rows ordered by
	// last_used_at descending (most recently used first).
	ListActiveForUser(ctx context.Context, userID string) ([]*Session, error)

	// RevokeExpired closes active rows whose expiry has passed, stamping
	// ReasonExpiredCleanup so forensics can tell administrative closure
	// from user action. The rows stay until DeleteExpired removes them.
	RevokeExpired(ctx context.Context, now time.Time) (int64, error)

	// DeleteExpired removes rows whose expiry predates the cutoff,
	// regardless of revocation state, and reports how many went away.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error
}
