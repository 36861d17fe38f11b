// Package metrics exposes Prometheus counters for the authentication flows.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the subset of metrics the auth flows emit. Nop satisfies it for tests.
type Recorder interface {
	OTPIssued(purpose string)
	OTPVerified(purpose, outcome string)
	LoginAttempt(outcome string)
	RateLimited(policy string)
	TokenRejected(reason string)
}

// Collector records metrics into a Prometheus registry.
type Collector struct {
	otpIssued     *prometheus.CounterVec
	otpVerified   *prometheus.CounterVec
	logins        *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec
	tokenRejected *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		otpIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_otp_issued_total",
			Help: "OTP challenges issued, by purpose.",
		}, []string{"purpose"}),
		otpVerified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_otp_verifications_total",
			Help: "OTP verification attempts, by purpose and outcome.",
		}, []string{"purpose", "outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_login_attempts_total",
			Help: "Phone/password login attempts, by outcome.",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_rate_limited_total",
			Help: "Requests rejected by a rate limit policy.",
		}, []string{"policy"}),
		tokenRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_token_rejected_total",
			Help: "Bearer or reset tokens rejected, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(c.otpIssued, c.otpVerified, c.logins, c.rateLimited, c.tokenRejected)
	return c
}

func (c *Collector) OTPIssued(purpose string) {
	c.otpIssued.WithLabelValues(purpose).Inc()
}

func (c *Collector) OTPVerified(purpose, outcome string) {
	c.otpVerified.WithLabelValues(purpose, outcome).Inc()
}

func (c *Collector) LoginAttempt(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

func (c *Collector) RateLimited(policy string) {
	c.rateLimited.WithLabelValues(policy).Inc()
}

func (c *Collector) TokenRejected(reason string) {
	c.tokenRejected.WithLabelValues(reason).Inc()
}

// Nop discards everything.
type Nop struct{}

func (Nop) OTPIssued(string)           {}
func (Nop) OTPVerified(string, string) {}
func (Nop) LoginAttempt(string)        {}
func (Nop) RateLimited(string)         {}
func (Nop) TokenRejected(string)       {}
