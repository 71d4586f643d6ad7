package tokenwell

import (
	"context"
	"time"

	"github.com/tokenwell/tokenwell/abuse"
)

// Principal is the authenticated identity returned by a [UserProvider].
// Guest principals get shorter refresh lifetimes and otherwise behave like
// registered users.
type Principal struct {
	ID    string
	Email string
	Roles []string
	Guest bool
}

// UserProvider proves credentials. The engine never sees raw password
// hashes; it hands the identifier/proof pair to the provider and acts on
// the verdict. Returning any error or a nil principal is treated as a
// failed attempt and counted by the abuse gate.
type UserProvider interface {
	Authenticate(ctx context.Context, identifier, proof string) (*Principal, error)
}

// PrincipalLookup is an optional upgrade for providers that can resolve a
// principal by id. The engine uses it to repopulate email and role claims
// on rotated access tokens; without it those claims are left empty.
type PrincipalLookup interface {
	Lookup(ctx context.Context, userID string) (*Principal, error)
}

// CaptchaVerifier is the external captcha oracle. Verify reports whether
// the response token is valid for this attempt. Errors from the verifier
// make the engine fail closed: the login is rejected, never waved through.
type CaptchaVerifier interface {
	Verify(ctx context.Context, responseToken string) (bool, error)
}

// TokenPair is one issued access/refresh pair. TTLs are whole seconds,
// ready for transport-layer expiry fields.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessTTL    int
	RefreshTTL   int
}

// LoginResult is returned by a successful [Engine.Login].
type LoginResult struct {
	TokenPair
	UserID    string
	SessionID string
	// EvictedSessionIDs lists sessions the per-user cap displaced to make
	// room for this login.
	EvictedSessionIDs []string
}

// LoginCheck re-exports the abuse gate's decision for boundary callers
// that render backoff timers or captcha widgets before credentials are
// even submitted.
type LoginCheck = abuse.Decision

// SessionInfo is the caller-visible view of one device login. Token hashes
// never leave the session store.
type SessionInfo struct {
	SessionID  string
	UserID     string
	Guest      bool
	UserAgent  string
	IPAddress  string
	DeviceHash string
	CreatedAt  time.Time
	LastUsedAt time.Time
	ExpiresAt  time.Time
	// Current marks the session whose id the caller supplied, when known.
	Current bool
}
