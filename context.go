package tokenwell

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type deviceHashContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. It is stored on the
// session row at login and stamped onto audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx for session
// metadata.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithDeviceHash attaches an opaque client-computed device fingerprint to
// ctx. The engine stores it verbatim; it carries no authorization weight.
func WithDeviceHash(ctx context.Context, deviceHash string) context.Context {
	return context.WithValue(ctx, deviceHashContextKey{}, deviceHash)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func deviceHashFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	deviceHash, _ := ctx.Value(deviceHashContextKey{}).(string)
	return deviceHash
}
