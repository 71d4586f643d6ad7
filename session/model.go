package session

import (
	"fmt"
	"time"
)

// RevokeReason records why a session row was closed. It is persisted next to
// revoked_at and never cleared afterwards.
type RevokeReason string

const (
	// ReasonUserRevoked marks a single session the owner closed, including
	// sessions displaced by the per-user cap at login.
	ReasonUserRevoked RevokeReason = "user_revoked"
	// ReasonUserRevokedAll marks sessions closed by logout-everywhere.
	ReasonUserRevokedAll RevokeReason = "user_revoked_all"
	// ReasonReuseDetected marks sessions revoked by a rotation-family
	// cascade after a superseded refresh token was replayed.
	ReasonReuseDetected RevokeReason = "reuse_detected"
	// ReasonExpiredCleanup marks rows closed administratively by the
	// expiry sweep.
	ReasonExpiredCleanup RevokeReason = "expired_cleanup"
)

// Session is one durable device login. TokenHash always matches the single
// currently-valid refresh token for the row; presentation of any other token
// from the same family is evidence of theft.
type Session struct {
	ID       string
	UserID   string
	FamilyID string

	// TokenHash is the SHA-256 of the current refresh token. Raw tokens
	// are never persisted.
	TokenHash [32]byte
	Guest     bool

	UserAgent  string
	IPAddress  string
	DeviceHash string

	CreatedAt  time.Time
	LastUsedAt time.Time
	ExpiresAt  time.Time

	RevokedAt     *time.Time
	RevokedReason RevokeReason
}

// Active reports whether the row can still rotate at the given instant.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// RotateParams carries one rotation attempt into the store.
type RotateParams struct {
	SessionID string
	// ProvidedHash is the digest of the refresh token the caller presented.
	ProvidedHash [32]byte
	// NextHash replaces the stored digest when the rotation wins.
	NextHash [32]byte
	// ExtendTTL moves the rotated row's expiry to now+ExtendTTL.
	ExtendTTL time.Duration
}

// ReuseError reports a replayed refresh token. By the time it is returned
// the whole rotation family has already been revoked; RevokedSessionIDs
// lists the rows the cascade closed so callers can drop cached entries.
type ReuseError struct {
	FamilyID          string
	RevokedSessionIDs []string
}

func (e *ReuseError) Error() string {
	return fmt.Sprintf("refresh token reuse in family %s (%d sessions revoked)", e.FamilyID, len(e.RevokedSessionIDs))
}
