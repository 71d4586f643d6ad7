package tokenwell

import (
	"context"
	"errors"
	"time"

	"github.com/tokenwell/tokenwell/abuse"
)

// AuditErrorCode is the normalized error label stamped on audit events.
// Events carry codes rather than raw error strings so downstream pipelines
// can aggregate without parsing.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrLoginBackoff       AuditErrorCode = "login_backoff"
	auditErrCaptchaRequired    AuditErrorCode = "captcha_required"
	auditErrCaptchaInvalid     AuditErrorCode = "captcha_invalid"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrNotOwner           AuditErrorCode = "not_session_owner"
	auditErrCurrentSession     AuditErrorCode = "current_session"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	familyID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		FamilyID:  familyID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginBackoff):
		return auditErrLoginBackoff
	case errors.Is(err, ErrCaptchaRequired):
		return auditErrCaptchaRequired
	case errors.Is(err, ErrCaptchaInvalid):
		return auditErrCaptchaInvalid
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrRefreshInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrNotSessionOwner):
		return auditErrNotOwner
	case errors.Is(err, ErrCurrentSession):
		return auditErrCurrentSession
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, abuse.ErrCacheUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
