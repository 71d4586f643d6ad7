package tokenwell

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// AuditEvent is one security-relevant occurrence: a login outcome, a
// rotation, a reuse cascade, a revocation. Expected-but-notable failures are
// emitted with Success=false; malformed-input noise is never audited.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	FamilyID  string            `json:"family_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Audit event types emitted by the Engine.
const (
	EventLoginSuccess       = "login_success"
	EventLoginFailure       = "login_failure"
	EventLoginBackoff       = "login_backoff"
	EventCaptchaRequired    = "captcha_required"
	EventCaptchaFailed      = "captcha_failed"
	EventSessionCreated     = "session_created"
	EventSessionEvicted     = "session_evicted"
	EventRefreshSuccess     = "refresh_success"
	EventRefreshReuse       = "refresh_reuse_detected"
	EventRefreshRejected    = "refresh_rejected"
	EventSessionRevoked     = "session_revoked"
	EventLogout             = "logout"
	EventLogoutAll          = "logout_all"
	EventCleanup            = "cleanup_expired"
	EventStoreDegraded      = "store_degraded"
	EventAbuseCacheDegraded = "abuse_cache_degraded"
)

// AuditSink receives events from the Engine's dispatcher goroutine. Emit
// must tolerate concurrent calls if the sink is shared.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards all events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink buffers events on a channel for consumption by the caller.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan AuditEvent, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line to the wrapped writer.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
