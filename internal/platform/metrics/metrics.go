package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	LoginsTotal      prometheus.Counter
	LoginFailures    *prometheus.CounterVec
	AccountsCreated  prometheus.Counter
	ProviderFailures *prometheus.CounterVec
	LoginDuration    prometheus.Histogram
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		LoginsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guildgate_logins_total",
			Help: "Total number of successful logins",
		}),
		LoginFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guildgate_login_failures_total",
			Help: "Total number of failed login callbacks, by error code",
		}, []string{"code"}),
		AccountsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guildgate_accounts_created_total",
			Help: "Total number of accounts created on first login",
		}),
		ProviderFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guildgate_provider_failures_total",
			Help: "Total number of failed outbound provider calls, by operation",
		}, []string{"operation"}),
		LoginDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "guildgate_login_duration_seconds",
			Help:    "Duration of the full callback flow (exchange, profile, reconcile, mint)",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveLogin records a completed login callback with its duration.
func (m *Metrics) ObserveLogin(start time.Time) {
	if m == nil {
		return
	}
	m.LoginsTotal.Inc()
	m.LoginDuration.Observe(time.Since(start).Seconds())
}

// IncLoginFailure records a failed login callback by error code.
func (m *Metrics) IncLoginFailure(code string) {
	if m == nil {
		return
	}
	m.LoginFailures.WithLabelValues(code).Inc()
}

// IncAccountsCreated increments the accounts created counter by 1.
func (m *Metrics) IncAccountsCreated() {
	if m == nil {
		return
	}
	m.AccountsCreated.Inc()
}

// IncProviderFailure records a failed outbound provider call.
func (m *Metrics) IncProviderFailure(operation string) {
	if m == nil {
		return
	}
	m.ProviderFailures.WithLabelValues(operation).Inc()
}
