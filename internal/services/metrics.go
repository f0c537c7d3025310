package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Lifecycle metrics
	WakeRequests     prometheus.Counter
	ShutdownRequests prometheus.Counter
	ScaleFailures    prometheus.Counter

	// Idle checker metrics
	IdleTickOutcomes *prometheus.CounterVec
	ObservedActivity prometheus.Gauge

	// Session store metrics
	SessionOps     *prometheus.CounterVec
	MessageAppends prometheus.Counter
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	metrics := &Metrics{
		WakeRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aipa_wake_requests_total",
			Help: "Total number of wake requests that issued a scale-up",
		}),

		ShutdownRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aipa_shutdown_requests_total",
			Help: "Total number of shutdown requests that issued a scale-to-zero",
		}),

		ScaleFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aipa_scale_failures_total",
			Help: "Total number of scale requests rejected by the platform",
		}),

		// Outcome: "active", "shutdown", or "error"
		IdleTickOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aipa_idle_tick_outcomes_total",
			Help: "Idle checker tick outcomes",
		}, []string{"outcome"}),

		ObservedActivity: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "aipa_idle_observed_activity",
			Help: "Request count observed in the trailing idle window at the last tick",
		}),

		// Op: "create", "append", "set_name", "record_artifact", "fork"
		SessionOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aipa_session_operations_total",
			Help: "Total session store operations by type",
		}, []string{"op"}),

		MessageAppends: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aipa_session_messages_total",
			Help: "Total messages appended across all sessions",
		}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}

// RecordWake records a wake request that triggered a scale-up
func (m *Metrics) RecordWake() {
	m.WakeRequests.Inc()
}

// RecordShutdown records a shutdown request that triggered a scale-to-zero
func (m *Metrics) RecordShutdown() {
	m.ShutdownRequests.Inc()
}

// RecordScaleFailure records a scale request the platform rejected
func (m *Metrics) RecordScaleFailure() {
	m.ScaleFailures.Inc()
}

// RecordIdleTick records the outcome of one idle checker tick
func (m *Metrics) RecordIdleTick(outcome string, observed int64) {
	m.IdleTickOutcomes.WithLabelValues(outcome).Inc()
	if outcome != "error" {
		m.ObservedActivity.Set(float64(observed))
	}
}

// RecordSessionOp records a session store operation
func (m *Metrics) RecordSessionOp(op string) {
	m.SessionOps.WithLabelValues(op).Inc()
}

// RecordMessageAppend records a message append
func (m *Metrics) RecordMessageAppend() {
	m.MessageAppends.Inc()
	m.SessionOps.WithLabelValues("append").Inc()
}
