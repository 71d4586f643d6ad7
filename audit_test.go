package tokenwell

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// collectEvents drains sink until the engine's dispatcher has delivered
// everything queued so far.
func collectEvents(t *testing.T, sink *ChannelSink, want int) []AuditEvent {
	t.Helper()

	events := make([]AuditEvent, 0, want)
	deadline := time.After(2 * time.Second)
	for len(events) < want {
		select {
		case event := <-sink.Events():
			events = append(events, event)
		case <-deadline:
			t.Fatalf("got %d events, want %d", len(events), want)
		}
	}
	return events
}

func eventTypes(events []AuditEvent) []string {
	out := make([]string, len(events))
	for i, event := range events {
		out[i] = event.EventType
	}
	return out
}

func TestAuditLoginEmitsSessionAndLoginEvents(t *testing.T) {
	sink := NewChannelSink(16)
	env := newTestEngine(t, func(b *Builder, cfg *Config) {
		b.WithAuditSink(sink)
	})

	ctx := WithClientIP(context.Background(), "198.51.100.4")
	result, err := env.engine.Login(ctx, "alice", "correct-password-123", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	events := collectEvents(t, sink, 2)
	types := strings.Join(eventTypes(events), ",")
	if types != EventSessionCreated+","+EventLoginSuccess {
		t.Fatalf("event order = %s", types)
	}

	for _, event := range events {
		if event.UserID != "user-alice" || event.SessionID != result.SessionID {
			t.Fatalf("event = %+v", event)
		}
		if event.IP != "198.51.100.4" {
			t.Fatalf("ip not carried: %+v", event)
		}
		if !event.Success {
			t.Fatalf("success event marked failed: %+v", event)
		}
	}
}

func TestAuditFailureCarriesErrorCode(t *testing.T) {
	sink := NewChannelSink(16)
	env := newTestEngine(t, func(b *Builder, cfg *Config) {
		b.WithAuditSink(sink)
	})

	_, _ = env.engine.Login(context.Background(), "alice", "wrong", "")

	events := collectEvents(t, sink, 1)
	event := events[0]
	if event.EventType != EventLoginFailure || event.Success {
		t.Fatalf("event = %+v", event)
	}
	if event.Error != string(auditErrInvalidCredentials) {
		t.Fatalf("error code = %q", event.Error)
	}
	if event.Metadata["identifier"] != "alice" {
		t.Fatalf("metadata = %v", event.Metadata)
	}
}

func TestAuditReuseEventCountsCascade(t *testing.T) {
	sink := NewChannelSink(32)
	env := newTestEngine(t, func(b *Builder, cfg *Config) {
		b.WithAuditSink(sink)
	})
	ctx := context.Background()

	login := mustLogin(t, env, "alice", "correct-password-123")
	if _, err := env.engine.Refresh(ctx, login.RefreshToken); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, login.RefreshToken); err == nil {
		t.Fatal("replay accepted")
	}

	// session_created, login_success, refresh_success, refresh_reuse_detected
	events := collectEvents(t, sink, 4)
	reuse := events[3]
	if reuse.EventType != EventRefreshReuse || reuse.Success {
		t.Fatalf("event = %+v", reuse)
	}
	if reuse.Metadata["revoked_sessions"] != "1" {
		t.Fatalf("metadata = %v", reuse.Metadata)
	}
	if reuse.FamilyID == "" {
		t.Fatal("family id missing")
	}
}

func TestAuditRejectedRotationDistinguishesCause(t *testing.T) {
	sink := NewChannelSink(32)
	env := newTestEngine(t, func(b *Builder, cfg *Config) {
		b.WithAuditSink(sink)
	})
	ctx := context.Background()

	login := mustLogin(t, env, "alice", "correct-password-123")
	if err := env.engine.Logout(ctx, login.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("refresh err = %v", err)
	}

	// session_created, login_success, logout, refresh_rejected
	events := collectEvents(t, sink, 4)
	rejected := events[3]
	if rejected.EventType != EventRefreshRejected || rejected.Success {
		t.Fatalf("event = %+v", rejected)
	}
	if rejected.Metadata["reason"] != "revoked" {
		t.Fatalf("metadata = %v", rejected.Metadata)
	}
	if rejected.SessionID != login.SessionID || rejected.UserID != "user-alice" {
		t.Fatalf("event = %+v", rejected)
	}

	// Expiry is the same event with its own cause label.
	second := mustLogin(t, env, "alice", "correct-password-123")
	expireSession(t, env, second.SessionID)
	if _, err := env.engine.Refresh(ctx, second.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expired refresh err = %v", err)
	}

	events = collectEvents(t, sink, 3) // session_created, login_success, refresh_rejected
	if events[2].EventType != EventRefreshRejected || events[2].Metadata["reason"] != "expired" {
		t.Fatalf("expired event = %+v", events[2])
	}

	snap := env.engine.MetricsSnapshot().Counters
	if snap[MetricRefreshRejected] != 2 {
		t.Fatalf("rejected counter = %d", snap[MetricRefreshRejected])
	}
	// Dead-session rejections must not pollute the malformed-token counter.
	if snap[MetricRefreshInvalid] != 0 {
		t.Fatalf("invalid counter = %d", snap[MetricRefreshInvalid])
	}
}

func TestAuditDisabledEmitsNothing(t *testing.T) {
	sink := NewChannelSink(16)
	env := newTestEngine(t, func(b *Builder, cfg *Config) {
		cfg.Audit.Enabled = false
		b.WithAuditSink(sink)
	})

	mustLogin(t, env, "alice", "correct-password-123")

	select {
	case event := <-sink.Events():
		t.Fatalf("unexpected event %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
	if env.engine.AuditDropped() != 0 {
		t.Fatal("disabled dispatcher counted drops")
	}
}

func TestDispatcherDropsWhenSaturated(t *testing.T) {
	blocker := make(chan struct{})
	sink := &blockingSink{release: blocker}

	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// First event occupies the sink, second fills the buffer, the rest drop.
	for i := 0; i < 8; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: EventLogout})
	}
	close(blocker)
	d.Close()

	if d.Dropped() == 0 {
		t.Fatal("no drops recorded")
	}
	if got := sink.Delivered(); got == 0 {
		t.Fatal("nothing delivered")
	}
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	sink := NewChannelSink(64)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 64, DropIfFull: true}, sink)

	const n = 20
	for i := 0; i < n; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: EventLogout})
	}
	d.Close()

	for i := 0; i < n; i++ {
		select {
		case <-sink.Events():
		default:
			t.Fatalf("only %d of %d events delivered", i, n)
		}
	}

	// Emit after Close is a silent no-op.
	d.Emit(context.Background(), AuditEvent{EventType: EventLogout})
	d.Close()
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventLoginSuccess,
		UserID:    "user-alice",
		Success:   true,
	})
	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventLogout,
		Success:   true,
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	var event AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &event); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if event.EventType != EventLoginSuccess || event.UserID != "user-alice" {
		t.Fatalf("event = %+v", event)
	}
}

// blockingSink holds the dispatcher goroutine until released, then counts
// deliveries.
type blockingSink struct {
	release   <-chan struct{}
	mu        sync.Mutex
	delivered int
}

func (s *blockingSink) Emit(ctx context.Context, event AuditEvent) {
	<-s.release
	s.mu.Lock()
	s.delivered++
	s.mu.Unlock()
}

func (s *blockingSink) Delivered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered
}
