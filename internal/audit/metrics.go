package audit

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for audit recording.
type Metrics struct {
	eventsTotal   *prometheus.CounterVec
	writeFailures prometheus.Counter
	registry      *prometheus.Registry
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "butterfly"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "events_total",
			Help:      "Total number of audit events recorded",
		},
		[]string{"kind"},
	)

	m.writeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "write_failures_total",
			Help:      "Total number of audit events that could not be persisted",
		},
	)

	// Pre-populate the kind labels so dashboards see zeros.
	for _, kind := range []Kind{KindHandshakeSuccess, KindHandshakeFailure, KindPointerFailure} {
		m.eventsTotal.WithLabelValues(string(kind))
	}

	m.registry.MustRegister(
		m.eventsTotal,
		m.writeFailures,
	)

	return m
}

// RecordEvent records a persisted audit event.
func (m *Metrics) RecordEvent(kind Kind) {
	m.eventsTotal.WithLabelValues(string(kind)).Inc()
}

// RecordWriteFailure records an audit event that could not be written.
func (m *Metrics) RecordWriteFailure() {
	m.writeFailures.Inc()
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister registers the metrics with the given registry.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.eventsTotal,
		m.writeFailures,
	)
}
