package cache

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the definition cache.
type Metrics struct {
	hitsTotal   prometheus.Counter
	missesTotal prometheus.Counter
	entryCount  prometheus.Gauge
	registry    *prometheus.Registry
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "butterfly"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.hitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of definition cache hits",
		},
	)

	m.missesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of definition cache misses",
		},
	)

	m.entryCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Number of cached definitions",
		},
	)

	m.registry.MustRegister(
		m.hitsTotal,
		m.missesTotal,
		m.entryCount,
	)

	return m
}

// RecordHit records a cache hit.
func (m *Metrics) RecordHit() {
	m.hitsTotal.Inc()
}

// RecordMiss records a cache miss.
func (m *Metrics) RecordMiss() {
	m.missesTotal.Inc()
}

// SetEntryCount sets the cached entry gauge.
func (m *Metrics) SetEntryCount(n int) {
	m.entryCount.Set(float64(n))
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister registers the metrics with the given registry.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.hitsTotal,
		m.missesTotal,
		m.entryCount,
	)
}
