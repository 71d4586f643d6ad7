package tokenwell

import "time"

// SecurityReport summarizes the engine's effective security posture, for
// startup logging and operator dashboards. It contains configuration only,
// never key material.
type SecurityReport struct {
	SigningAlgorithm string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	GuestRefreshTTL  time.Duration

	MaxSessionsPerUser int
	SessionCacheTTL    time.Duration
	SweepActive        bool

	CaptchaEscalationActive bool
	CaptchaThreshold        int
	BackoffBase             time.Duration
	BackoffCap              time.Duration

	AuditEnabled   bool
	MetricsEnabled bool
}

// SecurityReport reports the running configuration.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		SigningAlgorithm: string(e.config.Token.SigningMethod),
		AccessTTL:        e.config.Token.AccessTTL,
		RefreshTTL:       e.config.Token.RefreshTTL,
		GuestRefreshTTL:  e.config.Token.GuestRefreshTTL,

		MaxSessionsPerUser: e.config.Session.MaxSessionsPerUser,
		SessionCacheTTL:    e.config.Session.CacheTTL,
		SweepActive:        e.config.Session.CleanupInterval > 0,

		CaptchaEscalationActive: e.captcha != nil,
		CaptchaThreshold:        e.config.Abuse.CaptchaThreshold,
		BackoffBase:             e.config.Abuse.BackoffBase,
		BackoffCap:              e.config.Abuse.BackoffCap,

		AuditEnabled:   e.audit != nil,
		MetricsEnabled: e.metrics.Enabled(),
	}
}
