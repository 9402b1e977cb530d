// Package metrics exposes Prometheus instrumentation for the session bridge.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "psession"

// Metrics holds the bridge's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	executions         *prometheus.CounterVec
	executionDuration  *prometheus.HistogramVec
	gasFallbacks       prometheus.Counter
	sessionKeysIssued  *prometheus.CounterVec
	sessionKeysRevoked prometheus.Counter
	sessionKeysPurged  prometheus.Counter
	deployments        *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "executed operations by signer kind, gas mode and outcome",
			},
			[]string{"signer_kind", "gas_mode", "outcome"},
		),
		executionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "time from execute request to confirmation or failure",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),
		gasFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gas_fallbacks_total",
				Help:      "operations that fell back from sponsored to user-funded gas",
			},
		),
		sessionKeysIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_keys_issued_total",
				Help:      "session keys issued by permission kind",
			},
			[]string{"permission_kind"},
		),
		sessionKeysRevoked: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_keys_revoked_total",
				Help:      "session key revocation requests",
			},
		),
		sessionKeysPurged: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_keys_purged_total",
				Help:      "session key records permanently deleted",
			},
		),
		deployments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "account_deployments_total",
				Help:      "ensure-deployed requests by resulting status",
			},
			[]string{"status"},
		),
	}
}

// ObserveExecution records one execute call.
func (m *Metrics) ObserveExecution(signerKind, gasMode, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if signerKind == "" {
		signerKind = "none"
	}
	if gasMode == "" {
		gasMode = "none"
	}
	m.executions.WithLabelValues(signerKind, gasMode, outcome).Inc()
	m.executionDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// GasFallback records a sponsored to user-funded fallback.
func (m *Metrics) GasFallback() {
	if m == nil {
		return
	}
	m.gasFallbacks.Inc()
}

// SessionKeyIssued records an issued key.
func (m *Metrics) SessionKeyIssued(kind string) {
	if m == nil {
		return
	}
	m.sessionKeysIssued.WithLabelValues(kind).Inc()
}

// SessionKeyRevoked records a revocation.
func (m *Metrics) SessionKeyRevoked() {
	if m == nil {
		return
	}
	m.sessionKeysRevoked.Inc()
}

// SessionKeysPurged records purged records.
func (m *Metrics) SessionKeysPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionKeysPurged.Add(float64(n))
}

// Deployment records an ensure-deployed outcome.
func (m *Metrics) Deployment(status string) {
	if m == nil {
		return
	}
	m.deployments.WithLabelValues(status).Inc()
}
