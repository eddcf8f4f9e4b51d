package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Status represents the health status.
type Status string

const (
	// StatusHealthy indicates the service is healthy.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates the service is unhealthy.
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded indicates the service is degraded but operational.
	StatusDegraded Status = "degraded"
	// StatusDraining indicates the service is shutting down.
	StatusDraining Status = "draining"
)

// DefaultCheckTimeout bounds a single readiness check.
const DefaultCheckTimeout = 2 * time.Second

// HealthResponse represents the liveness response.
type HealthResponse struct {
	Status    Status    `json:"status"`
	Version   string    `json:"version,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse represents the readiness response.
type ReadinessResponse struct {
	Status    Status           `json:"status"`
	Checks    map[string]Check `json:"checks,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Check represents an individual check result.
type Check struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Pinger is implemented by the shared cache and the document store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type registeredCheck struct {
	fn       func(ctx context.Context) error
	critical bool
}

// Checker provides liveness and readiness state.
type Checker struct {
	version   string
	startTime time.Time
	timeout   time.Duration
	draining  atomic.Bool
	metrics   *Metrics

	mu     sync.RWMutex
	checks map[string]registeredCheck
}

// NewChecker creates a Checker. A nil metrics disables check metrics.
func NewChecker(version string, metrics *Metrics) *Checker {
	return &Checker{
		version:   version,
		startTime: time.Now(),
		timeout:   DefaultCheckTimeout,
		metrics:   metrics,
		checks:    make(map[string]registeredCheck),
	}
}

// RegisterCheck registers a named readiness check.
func (c *Checker) RegisterCheck(name string, critical bool, fn func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = registeredCheck{fn: fn, critical: critical}
}

// RegisterPinger registers p.Ping as a critical readiness check.
func (c *Checker) RegisterPinger(name string, p Pinger) {
	c.RegisterCheck(name, true, p.Ping)
}

// SetDraining marks the instance as shutting down.
func (c *Checker) SetDraining(draining bool) {
	c.draining.Store(draining)
}

// IsDraining reports whether SetDraining(true) was called.
func (c *Checker) IsDraining() bool {
	return c.draining.Load()
}

// Health returns the liveness status.
func (c *Checker) Health() HealthResponse {
	c.metrics.recordCheck("liveness")
	return HealthResponse{
		Status:    StatusHealthy,
		Version:   c.version,
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Timestamp: time.Now(),
	}
}

// Readiness runs all checks concurrently.
func (c *Checker) Readiness(ctx context.Context) ReadinessResponse {
	c.metrics.recordCheck("readiness")

	response := ReadinessResponse{
		Status:    StatusHealthy,
		Checks:    make(map[string]Check),
		Timestamp: time.Now(),
	}
	if c.IsDraining() {
		response.Status = StatusDraining
		return response
	}

	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	checks := make(map[string]registeredCheck, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()
	sort.Strings(names)

	results := make([]Check, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, check registeredCheck) {
			defer wg.Done()
			results[i] = c.run(ctx, check)
		}(i, checks[name])
	}
	wg.Wait()

	for i, name := range names {
		result := results[i]
		response.Checks[name] = result
		c.metrics.setStatus(name, result.Status == StatusHealthy)

		if result.Status == StatusUnhealthy {
			response.Status = StatusUnhealthy
		} else if result.Status == StatusDegraded && response.Status != StatusUnhealthy {
			response.Status = StatusDegraded
		}
	}
	c.metrics.setStatus("overall", response.Status != StatusUnhealthy)

	return response
}

func (c *Checker) run(ctx context.Context, check registeredCheck) Check {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := check.fn(ctx); err != nil {
		status := StatusUnhealthy
		if !check.critical {
			status = StatusDegraded
		}
		return Check{Status: status, Message: err.Error()}
	}
	return Check{Status: StatusHealthy}
}

// HealthHandler serves the liveness endpoint.
func (c *Checker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, c.Health())
	}
}

// ReadinessHandler serves the readiness endpoint. Unhealthy and draining
// instances answer 503.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := c.Readiness(r.Context())

		statusCode := http.StatusOK
		if response.Status == StatusUnhealthy || response.Status == StatusDraining {
			statusCode = http.StatusServiceUnavailable
		}
		writeJSON(w, statusCode, response)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
