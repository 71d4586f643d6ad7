package tokenwell

import "errors"

var (
	// ErrInvalidCredentials is returned when the identity provider rejects
	// the presented identifier/proof pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginBackoff is returned while the identifier is inside its
	// failed-attempt backoff delay.
	ErrLoginBackoff = errors.New("login temporarily delayed")
	// ErrCaptchaRequired is returned when the abuse gate demands a captcha
	// proof and none was supplied.
	ErrCaptchaRequired = errors.New("captcha required")
	// ErrCaptchaInvalid is returned when the captcha proof failed
	// verification, or when the verifier itself was unreachable.
	ErrCaptchaInvalid = errors.New("captcha verification failed")
	// ErrRefreshInvalid is returned for refresh tokens that fail signature,
	// structure, type, or expiry checks.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshReuse is returned when a superseded refresh token was
	// replayed. The whole rotation family has already been revoked; the
	// caller must force re-authentication, not retry.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrSessionNotFound is returned when no usable session backs the
	// request: missing, revoked, or expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotSessionOwner is returned when a revocation names a session that
	// belongs to a different user.
	ErrNotSessionOwner = errors.New("session not owned by caller")
	// ErrCurrentSession is returned when a targeted revocation names the
	// caller's own session; Logout and LogoutOthers cover that case.
	ErrCurrentSession = errors.New("cannot revoke current session")
	// ErrStoreUnavailable is returned when the durable session store cannot
	// be reached. Rotation and revocation fail closed on it.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrEngineClosed is returned by calls made after Close.
	ErrEngineClosed = errors.New("engine closed")
)
