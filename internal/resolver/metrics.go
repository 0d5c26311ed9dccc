package resolver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Resolution outcome labels.
const (
	OutcomeGranted     = "granted"
	OutcomeDenied      = "denied"
	OutcomeNotFound    = "not_found"
	OutcomeUnavailable = "unavailable"
	OutcomeMalformed   = "malformed_policy"
	OutcomeError       = "error"
)

// Metrics holds Prometheus metrics for resolution.
type Metrics struct {
	resolutionsTotal   *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec
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

	m.resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Total number of resolution attempts",
		},
		[]string{"outcome"},
	)

	m.resolutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolution_duration_seconds",
			Help:      "Resolution duration in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"outcome"},
	)

	// Pre-populate outcome labels so dashboards see zeros.
	for _, outcome := range []string{
		OutcomeGranted, OutcomeDenied, OutcomeNotFound,
		OutcomeUnavailable, OutcomeMalformed, OutcomeError,
	} {
		m.resolutionsTotal.WithLabelValues(outcome)
	}

	m.registry.MustRegister(
		m.resolutionsTotal,
		m.resolutionDuration,
	)

	return m
}

// RecordResolution records a resolution attempt.
func (m *Metrics) RecordResolution(outcome string, duration time.Duration) {
	m.resolutionsTotal.WithLabelValues(outcome).Inc()
	m.resolutionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister registers the metrics with the given registry.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.resolutionsTotal,
		m.resolutionDuration,
	)
}
