package internaldefs

import (
	tokenwell "github.com/tokenwell/tokenwell"
)

// CounterDef binds an engine counter to its stable exported name.
type CounterDef struct {
	ID   tokenwell.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its stable exported name.
type HistogramDef struct {
	ID   tokenwell.MetricID
	Name string
	Help string
}

// CounterDefs lists every engine counter in export order. Both exporters
// iterate this slice so their metric sets never drift apart.
var CounterDefs = []CounterDef{
	{ID: tokenwell.MetricLoginSuccess, Name: "tokenwell_login_success_total", Help: "Successful login attempts."},
	{ID: tokenwell.MetricLoginFailure, Name: "tokenwell_login_failure_total", Help: "Failed login attempts."},
	{ID: tokenwell.MetricLoginBackoff, Name: "tokenwell_login_backoff_total", Help: "Logins rejected while a backoff delay was owed."},
	{ID: tokenwell.MetricCaptchaRequired, Name: "tokenwell_captcha_required_total", Help: "Logins rejected for a missing captcha response."},
	{ID: tokenwell.MetricCaptchaFailed, Name: "tokenwell_captcha_failed_total", Help: "Failed captcha verifications."},
	{ID: tokenwell.MetricRefreshSuccess, Name: "tokenwell_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: tokenwell.MetricRefreshInvalid, Name: "tokenwell_refresh_invalid_total", Help: "Refresh attempts rejected as malformed or mistyped tokens."},
	{ID: tokenwell.MetricRefreshReuseDetected, Name: "tokenwell_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: tokenwell.MetricRefreshRejected, Name: "tokenwell_refresh_rejected_total", Help: "Refresh attempts rejected against missing, revoked, or expired sessions."},
	{ID: tokenwell.MetricRefreshStoreFailure, Name: "tokenwell_refresh_store_failure_total", Help: "Refresh attempts failed closed on store errors."},
	{ID: tokenwell.MetricSessionCreated, Name: "tokenwell_session_created_total", Help: "Created sessions."},
	{ID: tokenwell.MetricSessionEvicted, Name: "tokenwell_session_evicted_total", Help: "Sessions evicted by the per-user cap."},
	{ID: tokenwell.MetricSessionRevoked, Name: "tokenwell_session_revoked_total", Help: "Sessions revoked individually by their owner."},
	{ID: tokenwell.MetricLogout, Name: "tokenwell_logout_total", Help: "Single-session logout operations."},
	{ID: tokenwell.MetricLogoutAll, Name: "tokenwell_logout_all_total", Help: "Logout-all operations."},
	{ID: tokenwell.MetricValidateCacheHit, Name: "tokenwell_validate_cache_hit_total", Help: "Session validations served from the cache."},
	{ID: tokenwell.MetricValidateCacheMiss, Name: "tokenwell_validate_cache_miss_total", Help: "Session validations that fell through to the store."},
	{ID: tokenwell.MetricCleanupDeleted, Name: "tokenwell_cleanup_deleted_total", Help: "Expired session rows deleted by the sweep."},
	{ID: tokenwell.MetricAbuseCacheDegraded, Name: "tokenwell_abuse_cache_degraded_total", Help: "Abuse gate operations degraded by cache errors."},
}

// HistogramDefs lists every engine histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: tokenwell.MetricRefreshLatency, Name: "tokenwell_refresh_latency_seconds", Help: "Refresh rotation latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, Prometheus style.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix carries the same bounds in identifier-safe form for
// backends that reject label syntax in instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form both
// exporters emit.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
