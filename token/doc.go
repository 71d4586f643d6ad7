// Package token mints and verifies the signed access/refresh token pair.
//
// Both token types are JWTs carrying a typ discriminator and a uuid jti.
// Refresh tokens additionally bind to a session row (sid) and its rotation
// family (fid); the session package persists only SHA-256 digests of the
// encoded tokens, never the tokens themselves.
//
// Verification never panics on hostile input, and all key-material problems
// are rejected at [NewCodec] time so they cannot surface per request.
package token
