package tokenwell

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tokenwell/tokenwell/session"
	"github.com/tokenwell/tokenwell/token"
)

type fakeUser struct {
	proof     string
	principal Principal
}

type fakeProvider struct {
	users map[string]fakeUser
}

func (p *fakeProvider) Authenticate(ctx context.Context, identifier, proof string) (*Principal, error) {
	u, ok := p.users[identifier]
	if !ok || u.proof != proof {
		return nil, errors.New("bad credentials")
	}
	principal := u.principal
	return &principal, nil
}

// lookupProvider upgrades fakeProvider with principal resolution.
type lookupProvider struct {
	*fakeProvider
}

func (p *lookupProvider) Lookup(ctx context.Context, userID string) (*Principal, error) {
	for _, u := range p.users {
		if u.principal.ID == userID {
			principal := u.principal
			return &principal, nil
		}
	}
	return nil, errors.New("unknown user")
}

type fakeCaptcha struct {
	valid string
	err   error
	calls int
}

func (c *fakeCaptcha) Verify(ctx context.Context, responseToken string) (bool, error) {
	c.calls++
	if c.err != nil {
		return false, c.err
	}
	return responseToken == c.valid, nil
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Token.SigningMethod = token.MethodHS256
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Token.Issuer = "tokenwell-test"
	return cfg
}

type testEnv struct {
	engine   *Engine
	redis    *miniredis.Miniredis
	store    *session.MemoryStore
	provider *fakeProvider
	captcha  *fakeCaptcha
}

func newTestEngine(t *testing.T, mutate func(*Builder, *Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	provider := &fakeProvider{users: map[string]fakeUser{
		"alice": {proof: "correct-password-123", principal: Principal{
			ID: "user-alice", Email: "alice@example.com", Roles: []string{"member"},
		}},
		"guest-7": {proof: "guest-pass", principal: Principal{
			ID: "user-guest-7", Guest: true,
		}},
	}}
	captcha := &fakeCaptcha{valid: "good-captcha"}
	store := session.NewMemoryStore()

	cfg := testConfig()
	builder := New().
		WithRedis(client).
		WithSessionStore(store).
		WithUserProvider(provider).
		WithCaptchaVerifier(captcha)
	if mutate != nil {
		mutate(builder, &cfg)
	}
	builder.WithConfig(cfg)

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, redis: mr, store: store, provider: provider, captcha: captcha}
}

func mustLogin(t *testing.T, env *testEnv, identifier, proof string) *LoginResult {
	t.Helper()

	result, err := env.engine.Login(context.Background(), identifier, proof, "")
	if err != nil {
		t.Fatalf("login %s: %v", identifier, err)
	}
	return result
}

func expireSession(t *testing.T, env *testEnv, sessionID string) {
	t.Helper()

	sess, err := env.store.Get(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	sess.ExpiresAt = time.Now().Add(-time.Minute)
	if err := env.store.Create(context.Background(), sess); err != nil {
		t.Fatalf("rewrite session: %v", err)
	}
}
