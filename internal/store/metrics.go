package store

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StoreMetrics holds Prometheus metrics for store operations.
type StoreMetrics struct {
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
}

var (
	storeMetricsInstance *StoreMetrics
	storeMetricsOnce     sync.Once
)

// GetStoreMetrics returns the singleton store metrics instance.
func GetStoreMetrics() *StoreMetrics {
	storeMetricsOnce.Do(func() {
		storeMetricsInstance = newStoreMetrics()
	})
	return storeMetricsInstance
}

// MustRegister registers all store metric collectors with the given
// Prometheus registry. promauto registers with the default global
// registry; servers exposing /metrics from a custom registry call this
// to bridge the two.
func (m *StoreMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.operationDuration,
		m.errorsTotal,
	)
}

// Init pre-initializes common label combinations with zero values so
// that metric lines appear immediately after startup. Idempotent.
func (m *StoreMetrics) Init() {
	for _, backend := range []string{"memory", "redis"} {
		for _, op := range []string{"get", "set", "expire"} {
			m.operationDuration.WithLabelValues(backend, op)
			m.errorsTotal.WithLabelValues(backend, op)
		}
	}
}

func newStoreMetrics() *StoreMetrics {
	return &StoreMetrics{
		operationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "avguard",
				Subsystem: "store",
				Name:      "operation_duration_seconds",
				Help:      "Duration of store operations",
				Buckets: []float64{
					.0001, .0005, .001, .005,
					.01, .025, .05, .1,
				},
			},
			[]string{"backend", "operation"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "avguard",
				Subsystem: "store",
				Name:      "errors_total",
				Help:      "Total number of store errors",
			},
			[]string{"backend", "operation"},
		),
	}
}
