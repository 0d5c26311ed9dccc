package policy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Engine labels for metrics.
const (
	EngineBoolean = "boolean"
	EngineVector  = "vector"
)

// Metrics holds Prometheus metrics for policy evaluation.
type Metrics struct {
	evaluationTotal    *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	registry           *prometheus.Registry
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "butterfly"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.evaluationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "evaluation_total",
			Help:      "Total number of policy evaluations",
		},
		[]string{"engine", "decision"},
	)

	m.evaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "evaluation_duration_seconds",
			Help:      "Policy evaluation duration in seconds",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .025, .05, .1},
		},
		[]string{"engine", "decision"},
	)

	m.registry.MustRegister(
		m.evaluationTotal,
		m.evaluationDuration,
	)

	return m
}

// RecordEvaluation records a policy evaluation.
func (m *Metrics) RecordEvaluation(engine, decision string, duration time.Duration) {
	m.evaluationTotal.WithLabelValues(engine, decision).Inc()
	m.evaluationDuration.WithLabelValues(engine, decision).Observe(duration.Seconds())
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister registers the metrics with the given registry.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.evaluationTotal,
		m.evaluationDuration,
	)
}
