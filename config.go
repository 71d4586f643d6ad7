package tokenwell

import (
	"errors"
	"time"

	"github.com/tokenwell/tokenwell/token"
)

// Config is the full engine configuration. It is consumed once by
// [Builder.Build] and treated as immutable afterwards; all validation runs
// at build time, never on a request path.
type Config struct {
	Token   TokenConfig
	Session SessionConfig
	Abuse   AbuseConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig carries the signing material and lifetimes for the token
// codec.
type TokenConfig struct {
	SigningMethod token.SigningMethod // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// GuestRefreshTTL must stay strictly below RefreshTTL; guest sessions
	// never outlive registered ones.
	GuestRefreshTTL time.Duration
	// Leeway absorbs clock skew on expiry checks, at most two minutes.
	Leeway time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig tunes session lifecycle behavior.
type SessionConfig struct {
	// MaxSessionsPerUser caps concurrent device logins. The least
	// recently used session is revoked to make room for a new login.
	MaxSessionsPerUser int
	// CacheTTL bounds staleness of the validate read-through cache.
	CacheTTL    time.Duration
	CachePrefix string
	// CleanupGrace keeps expired rows around for forensics before the
	// sweep deletes them.
	CleanupGrace time.Duration
	// CleanupInterval enables the background sweep when positive.
	CleanupInterval time.Duration
	// OperationTimeout bounds each store and cache round trip when the
	// caller's context carries no tighter deadline. Zero disables the
	// bound.
	OperationTimeout time.Duration
}

/*
====================================
ABUSE CONFIG
====================================
*/

// AbuseConfig tunes the login abuse gate. Fields mirror abuse.Config.
type AbuseConfig struct {
	Window           time.Duration
	CaptchaThreshold int
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	MaxAttempts      int
	KeyPrefix        string
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls the audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events instead of blocking hot paths when the
	// buffer is saturated.
	DropIfFull bool
}

// MetricsConfig controls counter collection.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration [New] starts from. Callers adjust
// the fields they care about and pass the result to [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			SigningMethod:   token.MethodEd25519,
			AccessTTL:       15 * time.Minute,
			RefreshTTL:      45 * 24 * time.Hour,
			GuestRefreshTTL: 7 * 24 * time.Hour,
			Leeway:          time.Minute,
		},
		Session: SessionConfig{
			MaxSessionsPerUser: 10,
			CacheTTL:           time.Hour,
			CachePrefix:        "tw:sess",
			CleanupGrace:       7 * 24 * time.Hour,
			OperationTimeout:   5 * time.Second,
		},
		Abuse: AbuseConfig{
			Window:           15 * time.Minute,
			CaptchaThreshold: 3,
			BackoffBase:      time.Minute,
			BackoffCap:       30 * time.Minute,
			MaxAttempts:      5,
			KeyPrefix:        "tw:abuse",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate rejects configurations the engine cannot run safely with. Key
// material is checked structurally here; full parsing happens when the
// codec is built.
func (c Config) Validate() error {
	if c.Token.AccessTTL <= 0 {
		return errors.New("token: access TTL must be positive")
	}
	if c.Token.RefreshTTL <= 0 || c.Token.GuestRefreshTTL <= 0 {
		return errors.New("token: refresh TTLs must be positive")
	}
	if c.Token.GuestRefreshTTL >= c.Token.RefreshTTL {
		return errors.New("token: guest refresh TTL must be shorter than refresh TTL")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("token: leeway out of range")
	}
	if len(c.Token.PrivateKey) == 0 {
		return errors.New("token: private key required")
	}

	if c.Session.MaxSessionsPerUser <= 0 {
		return errors.New("session: max sessions per user must be positive")
	}
	if c.Session.CacheTTL <= 0 {
		return errors.New("session: cache TTL must be positive")
	}
	if c.Session.CleanupGrace < 0 {
		return errors.New("session: cleanup grace cannot be negative")
	}
	if c.Session.CleanupInterval < 0 {
		return errors.New("session: cleanup interval cannot be negative")
	}
	if c.Session.OperationTimeout < 0 {
		return errors.New("session: operation timeout cannot be negative")
	}

	if c.Abuse.Window <= 0 {
		return errors.New("abuse: window must be positive")
	}
	if c.Abuse.CaptchaThreshold <= 0 {
		return errors.New("abuse: captcha threshold must be positive")
	}
	if c.Abuse.BackoffBase <= 0 || c.Abuse.BackoffCap < c.Abuse.BackoffBase {
		return errors.New("abuse: backoff bounds invalid")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit: buffer size must be positive when enabled")
	}

	return nil
}
