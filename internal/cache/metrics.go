package cache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for shared cache operations.
type Metrics struct {
	hitsTotal         *prometheus.CounterVec
	missesTotal       *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	evictionsTotal    *prometheus.CounterVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// operations lists the label values used by Init.
var operations = []string{"get", "set", "update", "ping"}

// GetMetrics returns the singleton cache metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
	})
	return metricsInstance
}

// MustRegister registers the cache collectors with registry. The collectors
// live in the default registry as well; /metrics is served from a custom one.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.hitsTotal,
		m.missesTotal,
		m.operationDuration,
		m.errorsTotal,
		m.evictionsTotal,
	)
}

// Init pre-initializes label combinations with zero values.
func (m *Metrics) Init() {
	for _, op := range operations {
		m.operationDuration.WithLabelValues(op)
		m.errorsTotal.WithLabelValues(op)
	}
	m.hitsTotal.WithLabelValues("string")
	m.hitsTotal.WithLabelValues("object")
	m.missesTotal.WithLabelValues("string")
	m.missesTotal.WithLabelValues("object")
}

func newMetrics() *Metrics {
	return &Metrics{
		hitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "integrationgw",
				Subsystem: "shared_cache",
				Name:      "hits_total",
				Help: "Total number of " +
					"shared cache hits",
			},
			[]string{"kind"},
		),
		missesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "integrationgw",
				Subsystem: "shared_cache",
				Name:      "misses_total",
				Help: "Total number of " +
					"shared cache misses",
			},
			[]string{"kind"},
		),
		operationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "integrationgw",
				Subsystem: "shared_cache",
				Name: "operation_duration" +
					"_seconds",
				Help: "Duration of shared " +
					"cache operations",
				Buckets: []float64{
					.0001, .0005, .001, .005,
					.01, .025, .05, .1, .5,
				},
			},
			[]string{"operation"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "integrationgw",
				Subsystem: "shared_cache",
				Name:      "errors_total",
				Help: "Total number of " +
					"shared cache errors",
			},
			[]string{"operation"},
		),
		evictionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "integrationgw",
				Subsystem: "local_cache",
				Name:      "evictions_total",
				Help: "Total number of entries " +
					"evicted from request-local tiers",
			},
			[]string{"tier"},
		),
	}
}
