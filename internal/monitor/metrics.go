package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the command gateway.
type Metrics struct {
	Registry *prometheus.Registry

	InvocationsTotal  *prometheus.CounterVec
	RefusalsTotal     *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	ActiveExecutions  prometheus.Gauge
	OverflowsTotal    *prometheus.CounterVec
	TimeoutsTotal     prometheus.Counter
	ThreatEvents      prometheus.Counter
	RateLimited       prometheus.Counter
	RequestsInFlight  prometheus.Gauge
	CommandSizeBytes  prometheus.Histogram
	OutputSizeBytes   prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		InvocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "invocations_total",
				Help:      "Total executed invocations by verdict level and status.",
			},
			[]string{"level", "status"},
		),

		RefusalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "refusals_total",
				Help:      "Refused invocations (no process spawned) by reason. Kept apart from invocations_total so duration aggregates are not skewed by zero-duration attempts.",
			},
			[]string{"reason"},
		),

		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Name:      "execution_duration_seconds",
				Help:      "Duration of supervised executions in seconds.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"level"},
		),

		ActiveExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Name:      "active_executions",
				Help:      "Number of currently running supervised processes.",
			},
		),

		OverflowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "output_overflows_total",
				Help:      "Executions whose captured output crossed a ceiling, by strategy.",
			},
			[]string{"strategy"},
		),

		TimeoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "timeouts_total",
				Help:      "Executions ended by the timeout budget.",
			},
		),

		ThreatEvents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "threat_events_total",
				Help:      "UNKNOWN-verdict commands recorded by the threat tracker.",
			},
		),

		RateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "rate_limited_total",
				Help:      "Invocations denied by the per-client rate limiter.",
			},
		),

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Subsystem: "api",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),

		CommandSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Name:      "command_size_bytes",
				Help:      "Size of submitted commands in bytes.",
				Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
			},
		),

		OutputSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Name:      "output_size_bytes",
				Help:      "Size of captured execution output in bytes.",
				Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
			},
		),
	}

	// Register all collectors
	reg.MustRegister(
		m.InvocationsTotal,
		m.RefusalsTotal,
		m.ExecutionDuration,
		m.ActiveExecutions,
		m.OverflowsTotal,
		m.TimeoutsTotal,
		m.ThreatEvents,
		m.RateLimited,
		m.RequestsInFlight,
		m.CommandSizeBytes,
		m.OutputSizeBytes,
	)

	return m
}

// RecordExecution records a completed execution (a process was spawned).
func (m *Metrics) RecordExecution(level, status string, durationSec float64) {
	m.InvocationsTotal.WithLabelValues(level, status).Inc()
	m.ExecutionDuration.WithLabelValues(level).Observe(durationSec)
}

// RecordRefusal records an attempt that never spawned a process.
func (m *Metrics) RecordRefusal(reason string) {
	m.RefusalsTotal.WithLabelValues(reason).Inc()
}

// RecordOverflow records an output-ceiling crossing.
func (m *Metrics) RecordOverflow(strategy string) {
	m.OverflowsTotal.WithLabelValues(strategy).Inc()
}
