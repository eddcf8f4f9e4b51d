package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Cache tier label values.
const (
	TierMemory = "memory"
	TierRedis  = "redis"
)

// Metrics holds all Prometheus metrics for the integration layer.
// All methods are safe to call on a nil receiver.
type Metrics struct {
	outboundCalls    *prometheus.CounterVec
	outboundDuration *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
	tokenLogins      *prometheus.CounterVec
	asyncOperations  *prometheus.CounterVec
	auditWrites      *prometheus.CounterVec
	circuitBreaker   *prometheus.GaugeVec
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	buildInfo        *prometheus.GaugeVec
	startTime        prometheus.Gauge
	registry         *prometheus.Registry
}

// NewMetrics creates a new Metrics instance with its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "integrationgw"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.outboundCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbound",
			Name:      "calls_total",
			Help:      "Total number of outbound integration calls",
		},
		[]string{"service", "method", "outcome"},
	)

	m.outboundDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbound",
			Name:      "call_duration_seconds",
			Help:      "Outbound integration call duration in seconds",
			Buckets: []float64{
				.005, .01, .025, .05, .1,
				.25, .5, 1, 2.5, 5, 10, 30, 60,
			},
		},
		[]string{"service", "outcome"},
	)

	m.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "response_cache",
			Name:      "lookups_total",
			Help: "Total number of response cache " +
				"lookups by tier and result",
		},
		[]string{"tier", "result"},
	)

	m.tokenLogins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api_gateway",
			Name:      "logins_total",
			Help:      "Total number of API gateway logins",
		},
		[]string{"outcome"},
	)

	m.asyncOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "async",
			Name:      "operations_total",
			Help: "Total number of async operation " +
				"calls by operation and observed status",
		},
		[]string{"operation", "status"},
	)

	m.auditWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "writes_total",
			Help:      "Total number of audit record writes",
		},
		[]string{"outcome"},
	)

	m.circuitBreaker = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbound",
			Name:      "circuit_breaker_state",
			Help: "Circuit breaker state " +
				"(0=closed, 1=half-open, 2=open)",
		},
		[]string{"service"},
	)

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Inbound HTTP request duration in seconds",
			Buckets: []float64{
				.001, .005, .01, .025, .05,
				.1, .25, .5, 1, 2.5, 5, 10,
			},
		},
		[]string{"method", "route"},
	)

	m.buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)

	m.startTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "start_time_seconds",
			Help:      "Start time of the process in unix seconds",
		},
	)

	m.registry.MustRegister(
		m.outboundCalls,
		m.outboundDuration,
		m.cacheLookups,
		m.tokenLogins,
		m.asyncOperations,
		m.auditWrites,
		m.circuitBreaker,
		m.requestsTotal,
		m.requestDuration,
		m.buildInfo,
		m.startTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m.startTime.SetToCurrentTime()

	return m
}

// InitVecMetrics pre-populates label combinations so they show up in
// /metrics before the first event.
func (m *Metrics) InitVecMetrics() {
	if m == nil {
		return
	}
	for _, tier := range []string{TierMemory, TierRedis} {
		m.cacheLookups.WithLabelValues(tier, "hit")
		m.cacheLookups.WithLabelValues(tier, "miss")
	}
	for _, outcome := range []string{OutcomeSuccess, OutcomeFailure} {
		m.tokenLogins.WithLabelValues(outcome)
		m.auditWrites.WithLabelValues(outcome)
	}
}

func outcome(success bool) string {
	if success {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

// RecordOutboundCall records one outbound call attempt.
func (m *Metrics) RecordOutboundCall(service, method string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	o := outcome(success)
	m.outboundCalls.WithLabelValues(service, method, o).Inc()
	m.outboundDuration.WithLabelValues(service, o).Observe(duration.Seconds())
}

// RecordCacheLookup records a response cache lookup against a tier.
func (m *Metrics) RecordCacheLookup(tier string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(tier, result).Inc()
}

// RecordTokenLogin records an API gateway login attempt.
func (m *Metrics) RecordTokenLogin(success bool) {
	if m == nil {
		return
	}
	m.tokenLogins.WithLabelValues(outcome(success)).Inc()
}

// RecordAsyncOperation records an async client operation and the status it observed.
func (m *Metrics) RecordAsyncOperation(operation, status string) {
	if m == nil {
		return
	}
	m.asyncOperations.WithLabelValues(operation, status).Inc()
}

// RecordAuditWrite records the result of a background audit write.
func (m *Metrics) RecordAuditWrite(success bool) {
	if m == nil {
		return
	}
	m.auditWrites.WithLabelValues(outcome(success)).Inc()
}

// SetCircuitBreakerState sets the breaker state gauge for a service.
func (m *Metrics) SetCircuitBreakerState(service string, state int) {
	if m == nil {
		return
	}
	m.circuitBreaker.WithLabelValues(service).Set(float64(state))
}

// RecordRequest records an inbound HTTP request.
func (m *Metrics) RecordRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetBuildInfo sets the build information metric.
func (m *Metrics) SetBuildInfo(version, commit, buildTime string) {
	if m == nil {
		return
	}
	m.buildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(
		m.registry,
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	)
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegisterCollector registers an additional collector, panicking on error.
func (m *Metrics) MustRegisterCollector(c ...prometheus.Collector) {
	m.registry.MustRegister(c...)
}
