package tokenwell

import (
	"context"
	"testing"

	"github.com/tokenwell/tokenwell/token"
)

func TestActiveSessionCount(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	if n, err := env.engine.ActiveSessionCount(ctx, "user-alice"); err != nil || n != 0 {
		t.Fatalf("empty count = %d, %v", n, err)
	}

	mustLogin(t, env, "alice", "correct-password-123")
	login := mustLogin(t, env, "alice", "correct-password-123")

	if n, err := env.engine.ActiveSessionCount(ctx, "user-alice"); err != nil || n != 2 {
		t.Fatalf("count = %d, %v", n, err)
	}

	if err := env.engine.Logout(ctx, login.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if n, err := env.engine.ActiveSessionCount(ctx, "user-alice"); err != nil || n != 1 {
		t.Fatalf("count after logout = %d, %v", n, err)
	}

	// Blank user is a harmless zero, not an error.
	if n, err := env.engine.ActiveSessionCount(ctx, ""); err != nil || n != 0 {
		t.Fatalf("blank user count = %d, %v", n, err)
	}
}

func TestHealthReflectsRedisOutage(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	status := env.engine.Health(ctx)
	if !status.StoreAvailable || !status.RedisAvailable {
		t.Fatalf("status = %+v", status)
	}

	env.redis.Close()

	status = env.engine.Health(ctx)
	if !status.StoreAvailable {
		t.Fatalf("store flagged down: %+v", status)
	}
	if status.RedisAvailable {
		t.Fatalf("redis flagged up: %+v", status)
	}
}

func TestSecurityReport(t *testing.T) {
	env := newTestEngine(t, nil)

	report := env.engine.SecurityReport()
	if report.SigningAlgorithm != string(token.MethodHS256) {
		t.Fatalf("algorithm = %q", report.SigningAlgorithm)
	}
	if report.GuestRefreshTTL >= report.RefreshTTL {
		t.Fatalf("report ttls = %+v", report)
	}
	if !report.CaptchaEscalationActive || report.CaptchaThreshold != 3 {
		t.Fatalf("captcha posture = %+v", report)
	}
	if !report.AuditEnabled || !report.MetricsEnabled {
		t.Fatalf("observability posture = %+v", report)
	}
	if report.SweepActive {
		t.Fatal("sweep reported active without an interval")
	}
}
