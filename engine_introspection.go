package tokenwell

import (
	"context"
	"fmt"
	"time"
)

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	StoreAvailable bool
	RedisAvailable bool
	RedisLatency   time.Duration
}

// ActiveSessionCount reports how many sessions a user currently holds. It
// always reads the store, never the cache, so the count reflects revocations
// immediately.
func (e *Engine) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}
	if userID == "" {
		return 0, nil
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	active, err := e.store.ListActiveForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return len(active), nil
}

// Health probes both backends. Redis being down is survivable (the gate
// fails open and validation falls through to the store); the store being
// down is not.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil {
		return HealthStatus{}
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	status := HealthStatus{
		StoreAvailable: e.store.Ping(ctx) == nil,
	}

	latency, err := e.cache.Ping(ctx)
	status.RedisAvailable = err == nil
	if err == nil {
		status.RedisLatency = latency
	}
	return status
}
