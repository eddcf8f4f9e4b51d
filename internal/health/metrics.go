package health

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for health checks. A nil *Metrics
// records nothing.
type Metrics struct {
	checksTotal *prometheus.CounterVec
	checkStatus *prometheus.GaugeVec
}

// NewMetrics creates health metrics registered on registerer.
func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "checks_total",
				Help:      "Total number of health checks performed",
			},
			[]string{"type"},
		),
		checkStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "check_status",
				Help:      "Current health check status (1=healthy, 0=unhealthy)",
			},
			[]string{"check"},
		),
	}
	registerer.MustRegister(m.checksTotal, m.checkStatus)

	for _, checkType := range []string{"liveness", "readiness"} {
		m.checksTotal.WithLabelValues(checkType)
	}
	return m
}

func (m *Metrics) recordCheck(checkType string) {
	if m == nil {
		return
	}
	m.checksTotal.WithLabelValues(checkType).Inc()
}

func (m *Metrics) setStatus(check string, healthy bool) {
	if m == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1
	}
	m.checkStatus.WithLabelValues(check).Set(v)
}
