package tokenwell

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/tokenwell/tokenwell/internal"
	"github.com/tokenwell/tokenwell/session"
	"github.com/tokenwell/tokenwell/token"
)

func (e *Engine) createSession(ctx context.Context, p *Principal) (*LoginResult, error) {
	evicted, err := e.enforceSessionCap(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	fid, err := internal.NewFamilyID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	refresh, refreshTTL, err := e.codec.MintRefresh(p.ID, sid, fid, p.Guest, now)
	if err != nil {
		return nil, err
	}

	sess := &session.Session{
		ID:         sid,
		UserID:     p.ID,
		FamilyID:   fid,
		TokenHash:  token.HashToken(refresh),
		Guest:      p.Guest,
		UserAgent:  userAgentFromContext(ctx),
		IPAddress:  clientIPFromContext(ctx),
		DeviceHash: deviceHashFromContext(ctx),
		CreatedAt:  now,
		LastUsedAt: now,
		ExpiresAt:  now.Add(e.codec.RefreshTTL(p.Guest)),
	}
	if err := e.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	access, accessTTL, err := e.codec.MintAccess(p.ID, p.Email, p.Roles, now)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, EventSessionCreated, true, p.ID, sid, fid, nil, nil)

	return &LoginResult{
		TokenPair: TokenPair{
			AccessToken:  access,
			RefreshToken: refresh,
			AccessTTL:    accessTTL,
			RefreshTTL:   refreshTTL,
		},
		UserID:            p.ID,
		SessionID:         sid,
		EvictedSessionIDs: evicted,
	}, nil
}

// enforceSessionCap revokes least-recently-used sessions until a new login
// fits under MaxSessionsPerUser.
func (e *Engine) enforceSessionCap(ctx context.Context, userID string) ([]string, error) {
	active, err := e.store.ListActiveForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	overflow := len(active) - e.config.Session.MaxSessionsPerUser + 1
	if overflow <= 0 {
		return nil, nil
	}

	var evicted []string
	// active is most-recent-first; evict from the tail.
	for i := len(active) - 1; i >= 0 && overflow > 0; i-- {
		victim := active[i]
		ok, err := e.store.Revoke(ctx, victim.ID, session.ReasonUserRevoked)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if !ok {
			continue
		}
		_ = e.cache.Drop(ctx, victim.ID)
		evicted = append(evicted, victim.ID)
		overflow--
		e.metricInc(MetricSessionEvicted)
		e.emitAudit(ctx, EventSessionEvicted, true, userID, victim.ID, victim.FamilyID, nil, nil)
	}
	return evicted, nil
}

// ValidateSession reports whether a session is currently active, serving
// from the read-through cache when possible. Missing, revoked, and expired
// sessions all surface as ErrSessionNotFound.
func (e *Engine) ValidateSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	sess, err := e.cache.Get(ctx, sessionID)
	if err == nil {
		e.metricInc(MetricValidateCacheHit)
		return sessionInfo(sess, ""), nil
	}
	// Redis trouble degrades to a store read, same as a plain miss.
	e.metricInc(MetricValidateCacheMiss)

	sess, err = e.store.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !sess.Active(time.Now()) {
		return nil, ErrSessionNotFound
	}

	_ = e.cache.Put(ctx, sess)
	return sessionInfo(sess, ""), nil
}

// ListSessions returns the user's active sessions, most recently used
// first. currentSessionID, when known, marks the caller's own entry.
func (e *Engine) ListSessions(ctx context.Context, userID, currentSessionID string) ([]SessionInfo, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	active, err := e.store.ListActiveForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := make([]SessionInfo, 0, len(active))
	for _, sess := range active {
		out = append(out, *sessionInfo(sess, currentSessionID))
	}
	return out, nil
}

// RevokeSession closes one of the caller's other sessions. It refuses
// sessions owned by someone else and the caller's current session; Logout
// and LogoutOthers handle the latter.
func (e *Engine) RevokeSession(ctx context.Context, userID, sessionID, currentSessionID string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if sessionID == currentSessionID {
		return ErrCurrentSession
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	sess, err := e.store.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if sess.UserID != userID {
		e.emitAudit(ctx, EventSessionRevoked, false, userID, sessionID, "", ErrNotSessionOwner, nil)
		return ErrNotSessionOwner
	}

	ok, err := e.store.Revoke(ctx, sessionID, session.ReasonUserRevoked)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return ErrSessionNotFound
	}

	_ = e.cache.Drop(ctx, sessionID)
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, EventSessionRevoked, true, userID, sessionID, sess.FamilyID, nil, nil)
	return nil
}

// Logout revokes the caller's current session.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	ok, err := e.store.Revoke(ctx, sessionID, session.ReasonUserRevoked)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return ErrSessionNotFound
	}

	_ = e.cache.Drop(ctx, sessionID)
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, EventLogout, true, "", sessionID, "", nil, nil)
	return nil
}

// LogoutAll revokes every active session the user owns and reports how many
// went away.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	return e.logoutAll(ctx, userID, "")
}

// LogoutOthers revokes every active session except the caller's current
// one.
func (e *Engine) LogoutOthers(ctx context.Context, userID, currentSessionID string) (int, error) {
	return e.logoutAll(ctx, userID, currentSessionID)
}

func (e *Engine) logoutAll(ctx context.Context, userID, exceptSessionID string) (int, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	ids, err := e.store.RevokeAllForUser(ctx, userID, exceptSessionID, session.ReasonUserRevokedAll)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	_ = e.cache.Drop(ctx, ids...)
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, EventLogoutAll, true, userID, exceptSessionID, "", nil, func() map[string]string {
		return map[string]string{"revoked_sessions": strconv.Itoa(len(ids))}
	})
	return len(ids), nil
}

// CleanupExpired closes expired rows still inside the grace window, stamping
// session.ReasonExpiredCleanup, then deletes rows whose expiry predates the
// window. Closed rows stay for forensics until the grace runs out.
// Idempotent; a second pass with no new expiries changes nothing.
func (e *Engine) CleanupExpired(ctx context.Context) (int64, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	now := time.Now()
	closed, err := e.store.RevokeExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	deleted, err := e.store.DeleteExpired(ctx, now.Add(-e.config.Session.CleanupGrace))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if closed > 0 || deleted > 0 {
		if e.metrics != nil {
			e.metrics.Add(MetricCleanupDeleted, uint64(deleted))
		}
		e.emitAudit(ctx, EventCleanup, true, "", "", "", nil, func() map[string]string {
			return map[string]string{
				"closed":  strconv.FormatInt(closed, 10),
				"deleted": strconv.FormatInt(deleted, 10),
			}
		})
	}
	return deleted, nil
}

func (e *Engine) startSweeper() {
	interval := e.config.Session.CleanupInterval
	if interval <= 0 {
		return
	}

	e.sweepStop = make(chan struct{})
	e.sweepWG.Add(1)
	go func() {
		defer e.sweepWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := e.CleanupExpired(context.Background()); err != nil {
					log.Printf("tokenwell: expiry sweep failed: %v", err)
				}
			case <-e.sweepStop:
				return
			}
		}
	}()
}

func sessionInfo(sess *session.Session, currentSessionID string) *SessionInfo {
	return &SessionInfo{
		SessionID:  sess.ID,
		UserID:     sess.UserID,
		Guest:      sess.Guest,
		UserAgent:  sess.UserAgent,
		IPAddress:  sess.IPAddress,
		DeviceHash: sess.DeviceHash,
		CreatedAt:  sess.CreatedAt,
		LastUsedAt: sess.LastUsedAt,
		ExpiresAt:  sess.ExpiresAt,
		Current:    currentSessionID != "" && sess.ID == currentSessionID,
	}
}
