package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	SessionsCreatedTotal     prometheus.Counter
	SessionsRevokedTotal     prometheus.Counter
	APIKeyAuthSuccessTotal   prometheus.Counter
	APIKeyAuthFailureTotal   prometheus.Counter
	APIKeyRateLimitedTotal   prometheus.Counter
	TwoFactorVerifySuccess   prometheus.Counter
	TwoFactorVerifyFailure   prometheus.Counter
	PasskeyLoginSuccessTotal prometheus.Counter
	PasskeyCloneSignalTotal  prometheus.Counter
)

func init() {
	// Metrics must be usable before (or without) registration, e.g. in
	// tests that exercise services directly.
	InitCustomMetrics(nil)
}

// InitCustomMetrics initializes and registers the auth-core metrics. Call
// once at application startup; a nil registerer leaves metrics usable but
// unexported.
func InitCustomMetrics(reg prometheus.Registerer) {
	SessionsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authcore_sessions_created_total",
		Help: "Total number of sessions created.",
	})
	SessionsRevokedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authcore_sessions_revoked_total",
		Help: "Total number of sessions revoked, including bulk revokes.",
	})
	APIKeyAuthSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authcore_apikey_auth_success_total",
		Help: "Total number of successful API key authentications.",
	})
	APIKeyAuthFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authcore_apikey_auth_failure_total",
		Help: "Total number of rejected API key authentications.",
	})
	APIKeyRateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authcore_apikey_rate_limited_total",
		Help: "Total number of API key requests rejected by rate limiting.",
	})
	TwoFactorVerifySuccess = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authcore_twofactor_verify_success_total",
		Help: "Total number of successful two-factor verifications.",
	})
	TwoFactorVerifyFailure = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authcore_twofactor_verify_failure_total",
		Help: "Total number of failed two-factor verifications.",
	})
	PasskeyLoginSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authcore_passkey_login_success_total",
		Help: "Total number of successful passkey logins.",
	})
	PasskeyCloneSignalTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authcore_passkey_clone_signal_total",
		Help: "Total number of passkey logins rejected for a non-increasing signature counter.",
	})

	if reg == nil {
		return
	}
	collectors := []prometheus.Collector{
		SessionsCreatedTotal,
		SessionsRevokedTotal,
		APIKeyAuthSuccessTotal,
		APIKeyAuthFailureTotal,
		APIKeyRateLimitedTotal,
		TwoFactorVerifySuccess,
		TwoFactorVerifyFailure,
		PasskeyLoginSuccessTotal,
		PasskeyCloneSignalTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register auth-core metric")
		}
	}
}
