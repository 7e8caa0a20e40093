package perm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains permission-evaluation metrics.
type Metrics struct {
	registerer prometheus.Registerer

	// evaluationTotal counts permission evaluations.
	evaluationTotal *prometheus.CounterVec

	// evaluationDuration measures permission evaluation duration.
	evaluationDuration *prometheus.HistogramVec

	// cacheHits counts membership cache hits.
	cacheHits prometheus.Counter

	// cacheMisses counts membership cache misses.
	cacheMisses prometheus.Counter
}

// NewMetrics creates new permission metrics registered with
// prometheus.DefaultRegisterer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a new Metrics instance with a custom
// registerer. Useful for servers exposing /metrics from their own
// registry, and for tests.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "avguard"
	}

	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		registerer: registerer,
	}

	m.evaluationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "perm",
			Name:      "evaluation_total",
			Help:      "Total number of permission evaluations",
		},
		[]string{"form", "result"},
	)

	m.evaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "perm",
			Name:      "evaluation_duration_seconds",
			Help:      "Permission evaluation duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"form"},
	)

	m.cacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "perm",
			Name:      "membership_cache_hits_total",
			Help:      "Total number of membership cache hits",
		},
	)

	m.cacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "perm",
			Name:      "membership_cache_misses_total",
			Help:      "Total number of membership cache misses",
		},
	)

	// Register all metrics with the provided registerer, ignoring duplicates.
	collectors := []prometheus.Collector{
		m.evaluationTotal,
		m.evaluationDuration,
		m.cacheHits,
		m.cacheMisses,
	}
	for _, c := range collectors {
		_ = registerer.Register(c)
	}

	return m
}

// Init pre-initializes common label combinations with zero values so
// that metrics appear in /metrics output immediately after startup.
// Prometheus *Vec types only emit metric lines after WithLabelValues()
// is called at least once. Idempotent.
func (m *Metrics) Init() {
	if m == nil {
		return
	}
	for _, form := range []string{"chmod", "chown"} {
		for _, result := range []string{"granted", "denied", "error"} {
			m.evaluationTotal.WithLabelValues(form, result)
		}
		m.evaluationDuration.WithLabelValues(form)
	}
}

// RecordEvaluation records a permission evaluation.
func (m *Metrics) RecordEvaluation(form, result string, duration time.Duration) {
	if m == nil || m.evaluationTotal == nil {
		return
	}
	m.evaluationTotal.WithLabelValues(form, result).Inc()
	m.evaluationDuration.WithLabelValues(form).Observe(duration.Seconds())
}

// RecordCacheHit records a membership cache hit.
func (m *Metrics) RecordCacheHit() {
	if m == nil || m.cacheHits == nil {
		return
	}
	m.cacheHits.Inc()
}

// RecordCacheMiss records a membership cache miss.
func (m *Metrics) RecordCacheMiss() {
	if m == nil || m.cacheMisses == nil {
		return
	}
	m.cacheMisses.Inc()
}
