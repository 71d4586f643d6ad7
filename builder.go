package tokenwell

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tokenwell/tokenwell/abuse"
	"github.com/tokenwell/tokenwell/session"
	"github.com/tokenwell/tokenwell/token"
)

// Builder assembles an Engine. Construction is allocation-only; the first
// I/O happens inside Engine methods. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  session.Store

	userProvider UserProvider
	captcha      CaptchaVerifier
	auditSink    AuditSink

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis supplies the client backing the abuse gate and the validate
// cache. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSessionStore supplies the durable session store. Required; see also
// WithPostgres.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithPostgres wires a pgx pool as the session store.
func (b *Builder) WithPostgres(pool *pgxpool.Pool) *Builder {
	b.store = session.NewPostgresStore(pool)
	return b
}

// WithUserProvider supplies the credential verifier. Required.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithCaptchaVerifier supplies the captcha oracle. Without one, logins that
// reach the captcha threshold are rejected outright.
func (b *Builder) WithCaptchaVerifier(v CaptchaVerifier) *Builder {
	b.captcha = v
	return b
}

// WithAuditSink supplies the audit event destination.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles counter collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the refresh latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates everything and returns a ready Engine. All configuration
// and key-material failures surface here, never on a request path.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("session store required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	codec, err := token.NewCodec(token.Config{
		SigningMethod:   cfg.Token.SigningMethod,
		PrivateKey:      cloneBytes(cfg.Token.PrivateKey),
		PublicKey:       cloneBytes(cfg.Token.PublicKey),
		Issuer:          cfg.Token.Issuer,
		Audience:        cfg.Token.Audience,
		AccessTTL:       cfg.Token.AccessTTL,
		RefreshTTL:      cfg.Token.RefreshTTL,
		GuestRefreshTTL: cfg.Token.GuestRefreshTTL,
		Leeway:          cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	gate, err := abuse.NewGate(b.redis, abuse.Config{
		Window:           cfg.Abuse.Window,
		CaptchaThreshold: cfg.Abuse.CaptchaThreshold,
		BackoffBase:      cfg.Abuse.BackoffBase,
		BackoffCap:       cfg.Abuse.BackoffCap,
		MaxAttempts:      cfg.Abuse.MaxAttempts,
		KeyPrefix:        cfg.Abuse.KeyPrefix,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		codec:        codec,
		store:        b.store,
		cache:        session.NewCache(b.redis, cfg.Session.CachePrefix, cfg.Session.CacheTTL),
		gate:         gate,
		userProvider: b.userProvider,
		captcha:      b.captcha,
		audit:        newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:      NewMetrics(cfg.Metrics),
	}
	engine.startSweeper()

	b.built = true

	return engine, nil
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
