package abuse

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tokenwell/tokenwell/internal"
)

// ErrCacheUnavailable wraps Redis failures. Check degrades to a permissive
// decision when it occurs; RecordFailure and RecordSuccess surface it so
// callers can count degraded operation.
var ErrCacheUnavailable = errors.New("abuse cache unavailable")

// Config tunes the login gate. Zero values are replaced by the documented
// defaults in NewGate.
type Config struct {
	// Window is the sliding window an attempt record lives for. Each
	// recorded failure pushes the whole record's expiry out again.
	Window time.Duration
	// CaptchaThreshold is the failure count at which captcha becomes
	// mandatory. The flag is sticky until RecordSuccess.
	CaptchaThreshold int
	// BackoffBase seeds the exponential delay applied from the second
	// failure onward.
	BackoffBase time.Duration
	// BackoffCap bounds the delay regardless of failure count.
	BackoffCap time.Duration
	// MaxAttempts sizes the AttemptsRemaining hint in decisions. It does
	// not hard-stop logins; backoff does the throttling.
	MaxAttempts int
	// KeyPrefix namespaces the Redis keys.
	KeyPrefix string
}

// Decision is the gate's answer for one login attempt.
type Decision struct {
	// Allowed is false while the identifier is inside a backoff delay.
	Allowed bool
	// RequiresCaptcha demands a captcha proof alongside credentials.
	RequiresCaptcha bool
	// RetryAfter is how long until the backoff delay lapses; zero when
	// Allowed.
	RetryAfter time.Duration
	// AttemptsRemaining hints how many failures are left before captcha
	// and heavier delays. Advisory, for rendering only.
	AttemptsRemaining int
	// Degraded is true when the cache was unreachable and the permissive
	// default was applied.
	Degraded bool
}

// Gate tracks failed logins per identifier in Redis and decides when to
// delay or challenge. Identifiers are hashed before use as keys, so raw
// usernames never reach Redis. The gate fails open: losing Redis disables
// throttling, it does not lock users out.
type Gate struct {
	rdb redis.UniversalClient
	cfg Config
}

const (
	fieldAttempts = "attempts"
	fieldLast     = "last"
)

// NewGate validates cfg, fills defaults, and returns a ready gate.
func NewGate(rdb redis.UniversalClient, cfg Config) (*Gate, error) {
	if rdb == nil {
		return nil, errors.New("redis client required")
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.CaptchaThreshold <= 0 {
		cfg.CaptchaThreshold = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Minute
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Minute
	}
	if cfg.BackoffCap < cfg.BackoffBase {
		return nil, errors.New("backoff cap below backoff base")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "tw:abuse"
	}
	return &Gate{rdb: rdb, cfg: cfg}, nil
}

func (g *Gate) key(identifier string) string {
	return g.cfg.KeyPrefix + ":" + internal.HashIdentifier(identifier)
}

// Check reads the identifier's failure record and decides. It never writes.
// On cache errors it returns a permissive decision with Degraded set,
// together with the underlying error for accounting.
func (g *Gate) Check(ctx context.Context, identifier string) (Decision, error) {
	fields, err := g.rdb.HGetAll(ctx, g.key(identifier)).Result()
	if err != nil {
		return Decision{Allowed: true, AttemptsRemaining: g.cfg.MaxAttempts, Degraded: true},
			errors.Join(ErrCacheUnavailable, err)
	}
	if len(fields) == 0 {
		return Decision{Allowed: true, AttemptsRemaining: g.cfg.MaxAttempts}, nil
	}

	attempts, _ := strconv.Atoi(fields[fieldAttempts])
	lastUnix, _ := strconv.ParseInt(fields[fieldLast], 10, 64)

	d := Decision{
		Allowed:           true,
		RequiresCaptcha:   attempts >= g.cfg.CaptchaThreshold,
		AttemptsRemaining: max(g.cfg.MaxAttempts-attempts, 0),
	}

	if wait := g.backoff(attempts); wait > 0 {
		readyAt := time.Unix(lastUnix, 0).Add(wait)
		if remaining := time.Until(readyAt); remaining > 0 {
			d.Allowed = false
			d.RetryAfter = remaining
		}
	}
	return d, nil
}

// backoff returns the delay owed after the given number of failures:
// min(base * 2^(attempts-2), cap), nothing for the first failure.
func (g *Gate) backoff(attempts int) time.Duration {
	if attempts < 2 {
		return 0
	}
	shift := uint(attempts - 2)
	// Guard the shift; past 32 doublings the cap always wins.
	if shift > 32 {
		return g.cfg.BackoffCap
	}
	wait := g.cfg.BackoffBase << shift
	if wait <= 0 || wait > g.cfg.BackoffCap {
		return g.cfg.BackoffCap
	}
	return wait
}

// RecordFailure bumps the identifier's failure count and slides the window
// forward.
func (g *Gate) RecordFailure(ctx context.Context, identifier string) error {
	key := g.key(identifier)
	pipe := g.rdb.TxPipeline()
	pipe.HIncrBy(ctx, key, fieldAttempts, 1)
	pipe.HSet(ctx, key, fieldLast, time.Now().Unix())
	pipe.Expire(ctx, key, g.cfg.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Join(ErrCacheUnavailable, err)
	}
	return nil
}

// RecordSuccess clears the identifier's record entirely: counter, backoff,
// and captcha flag.
func (g *Gate) RecordSuccess(ctx context.Context, identifier string) error {
	if err := g.rdb.Del(ctx, g.key(identifier)).Err(); err != nil {
		return errors.Join(ErrCacheUnavailable, err)
	}
	return nil
}
