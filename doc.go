// Package tokenwell implements refresh-token rotation with session-family
// containment: signed access/refresh token pairs, a durable session store
// with atomic rotate-or-reject, reuse detection that revokes an entire
// rotation family, and a Redis-backed abuse gate in front of login.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// tokenwell is the public surface. It exposes [Engine], [Builder],
// [Config], sentinel errors, audit sinks, and metrics. Token encoding lives
// in the token package, durable rows and the rotation primitive in the
// session package, and login throttling in the abuse package; the Engine
// orchestrates them and owns all policy.
//
// # Failure posture
//
// The two sides of the protocol fail in opposite directions, on purpose.
// Rotation fails closed: if the session store cannot confirm a rotation, no
// tokens are issued. The abuse gate fails open: losing Redis disables
// throttling rather than locking every user out. Captcha verification fails
// closed at the oracle.
//
// # Reuse containment
//
// Every session row stores the hash of exactly one valid refresh token.
// Presenting a superseded token against an active row proves that two
// parties hold tokens from one family, so the whole family is revoked
// before the rejection is returned; [Engine.Refresh] then reports
// ErrRefreshReuse, which callers must translate into forced
// re-authentication.
package tokenwell
