package tokenwell

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tokenwell/tokenwell/abuse"
	"github.com/tokenwell/tokenwell/session"
	"github.com/tokenwell/tokenwell/token"
)

// Engine is the authentication core: credential login behind the abuse
// gate, refresh-token rotation with family-wide reuse containment, and
// session lifecycle management. All methods are safe for concurrent use
// after [Builder.Build].
type Engine struct {
	config       Config
	codec        *token.Codec
	store        session.Store
	cache        *session.Cache
	gate         *abuse.Gate
	userProvider UserProvider
	captcha      CaptchaVerifier
	audit        *auditDispatcher
	metrics      *Metrics

	closed    atomic.Bool
	sweepStop chan struct{}
	sweepWG   sync.WaitGroup
}

// Close stops the background sweep and drains the audit dispatcher. Calls
// made after Close return ErrEngineClosed.
func (e *Engine) Close() {
	if e == nil || !e.closed.CompareAndSwap(false, true) {
		return
	}
	if e.sweepStop != nil {
		close(e.sweepStop)
		e.sweepWG.Wait()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were shed under pressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// opContext bounds backend round trips with the configured operation
// timeout so an open-ended caller context cannot pin a connection.
func (e *Engine) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.Session.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.config.Session.OperationTimeout)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// CheckLogin exposes the abuse gate's current decision for an identifier
// without recording anything, so callers can render backoff timers or a
// captcha widget up front.
func (e *Engine) CheckLogin(ctx context.Context, identifier string) (LoginCheck, error) {
	if e.closed.Load() {
		return LoginCheck{}, ErrEngineClosed
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	decision, err := e.gate.Check(ctx, identifier)
	if err != nil {
		e.metricInc(MetricAbuseCacheDegraded)
	}
	return decision, nil
}

// Login runs the full boundary sequence: abuse gate, captcha escalation,
// credential proof, then session creation and the first token pair.
// captchaToken may be empty unless the gate has escalated this identifier.
func (e *Engine) Login(ctx context.Context, identifier, proof, captchaToken string) (*LoginResult, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	decision, gateErr := e.gate.Check(ctx, identifier)
	if gateErr != nil {
		// Gate degraded: throttling is off but logins continue.
		e.metricInc(MetricAbuseCacheDegraded)
		e.emitAudit(ctx, EventAbuseCacheDegraded, false, "", "", "", gateErr, nil)
	}

	if !decision.Allowed {
		e.metricInc(MetricLoginBackoff)
		e.emitAudit(ctx, EventLoginBackoff, false, "", "", "", ErrLoginBackoff, func() map[string]string {
			return map[string]string{
				"retry_after_ms": strconv.FormatInt(decision.RetryAfter.Milliseconds(), 10),
			}
		})
		return nil, ErrLoginBackoff
	}

	if decision.RequiresCaptcha {
		if captchaToken == "" || e.captcha == nil {
			e.metricInc(MetricCaptchaRequired)
			e.emitAudit(ctx, EventCaptchaRequired, false, "", "", "", ErrCaptchaRequired, nil)
			return nil, ErrCaptchaRequired
		}
		ok, err := e.captcha.Verify(ctx, captchaToken)
		if err != nil || !ok {
			// Oracle errors fail closed; a broken verifier must not
			// become a captcha bypass.
			e.metricInc(MetricCaptchaFailed)
			e.recordFailure(ctx, identifier)
			e.emitAudit(ctx, EventCaptchaFailed, false, "", "", "", ErrCaptchaInvalid, nil)
			return nil, ErrCaptchaInvalid
		}
	}

	principal, err := e.userProvider.Authenticate(ctx, identifier, proof)
	if err != nil || principal == nil || principal.ID == "" {
		e.recordFailure(ctx, identifier)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, EventLoginFailure, false, "", "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"identifier": identifier}
		})
		return nil, ErrInvalidCredentials
	}

	if err := e.gate.RecordSuccess(ctx, identifier); err != nil {
		e.metricInc(MetricAbuseCacheDegraded)
	}

	result, err := e.createSession(ctx, principal)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, EventLoginSuccess, true, principal.ID, result.SessionID, "", nil, nil)

	return result, nil
}

// Refresh rotates a refresh token. Exactly one concurrent caller per token
// can win; a replayed superseded token revokes its whole rotation family
// before ErrRefreshReuse is returned, and the caller must force the user to
// re-authenticate. Store trouble fails closed with ErrStoreUnavailable.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()
	start := time.Now()

	claims, err := e.codec.Verify(refreshToken, token.TypeRefresh)
	if err != nil {
		// Unauthenticated garbage: count it, do not audit it.
		e.metricInc(MetricRefreshInvalid)
		return nil, ErrRefreshInvalid
	}

	authTime := time.Unix(claims.AuthTime, 0)
	nextRefresh, refreshTTL, err := e.codec.MintRefresh(
		claims.Subject, claims.SessionID, claims.FamilyID, claims.Guest, authTime)
	if err != nil {
		return nil, err
	}

	sess, err := e.store.Rotate(ctx, session.RotateParams{
		SessionID:    claims.SessionID,
		ProvidedHash: token.HashToken(refreshToken),
		NextHash:     token.HashToken(nextRefresh),
		ExtendTTL:    e.codec.RefreshTTL(claims.Guest),
	})
	if err != nil {
		return nil, e.rotateFailure(ctx, claims, err)
	}

	_ = e.cache.Put(ctx, sess)

	email, roles := e.resolvePrincipal(ctx, claims.Subject)
	access, accessTTL, err := e.codec.MintAccess(claims.Subject, email, roles, authTime)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	if e.metrics != nil {
		e.metrics.Observe(MetricRefreshLatency, time.Since(start))
	}
	e.emitAudit(ctx, EventRefreshSuccess, true, claims.Subject, claims.SessionID, claims.FamilyID, nil, nil)

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: nextRefresh,
		AccessTTL:    accessTTL,
		RefreshTTL:   refreshTTL,
	}, nil
}

func (e *Engine) rotateFailure(ctx context.Context, claims *token.Claims, err error) error {
	var reuse *session.ReuseError
	switch {
	case errors.As(err, &reuse):
		e.metricInc(MetricRefreshReuseDetected)
		_ = e.cache.Drop(ctx, reuse.RevokedSessionIDs...)
		e.emitAudit(ctx, EventRefreshReuse, false, claims.Subject, claims.SessionID, reuse.FamilyID, ErrRefreshReuse, func() map[string]string {
			return map[string]string{
				"revoked_sessions": strconv.Itoa(len(reuse.RevokedSessionIDs)),
				"jti":              claims.ID,
			}
		})
		return ErrRefreshReuse

	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrRevoked),
		errors.Is(err, session.ErrExpired):
		// Dead-session replays are inert; the distinct reuse signal is
		// reserved for active-family theft evidence.
		e.metricInc(MetricRefreshRejected)
		e.emitAudit(ctx, EventRefreshRejected, false, claims.Subject, claims.SessionID, claims.FamilyID, ErrSessionNotFound, func() map[string]string {
			return map[string]string{"reason": rejectReason(err)}
		})
		return ErrSessionNotFound

	default:
		e.metricInc(MetricRefreshStoreFailure)
		e.emitAudit(ctx, EventStoreDegraded, false, claims.Subject, claims.SessionID, claims.FamilyID, ErrStoreUnavailable, nil)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, session.ErrRevoked):
		return "revoked"
	case errors.Is(err, session.ErrExpired):
		return "expired"
	default:
		return "not_found"
	}
}

func (e *Engine) recordFailure(ctx context.Context, identifier string) {
	if err := e.gate.RecordFailure(ctx, identifier); err != nil {
		e.metricInc(MetricAbuseCacheDegraded)
	}
}

// resolvePrincipal refreshes email/roles for rotated access tokens when the
// provider supports lookup; otherwise those claims stay empty after the
// first access token expires.
func (e *Engine) resolvePrincipal(ctx context.Context, userID string) (string, []string) {
	lookup, ok := e.userProvider.(PrincipalLookup)
	if !ok {
		return "", nil
	}
	principal, err := lookup.Lookup(ctx, userID)
	if err != nil || principal == nil {
		return "", nil
	}
	return principal.Email, principal.Roles
}
