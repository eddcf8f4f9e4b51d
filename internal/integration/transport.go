package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/integrationgw/internal/config"
	"github.com/vyrodovalexey/integrationgw/internal/observability"
)

const tracerName = "integrationgw/integration"

// Circuit breaker defaults used when the configuration leaves them unset.
const (
	DefaultBreakerMaxFailures = 5
	DefaultBreakerTimeout     = 30 * time.Second
	DefaultBreakerInterval    = time.Minute
)

// maxResponseBytes caps the decoded upstream body.
const maxResponseBytes = 16 << 20

// Request is one outbound HTTP call.
type Request struct {
	// Service names the breaker and rate limiter bucket.
	Service      string
	Method       string
	URL          string
	Headers      map[string]string
	Body         any
	Timeout      time.Duration
	ResponseType string
}

// Response is a decoded upstream answer.
type Response struct {
	Status int
	Header http.Header
	Data   any
}

// Transport performs outbound calls. Implementations return
// *UpstreamError for answers with status 400 or above.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// HTTPTransport is the net/http Transport with a circuit breaker and an
// optional token bucket per service.
type HTTPTransport struct {
	client     *http.Client
	breakerCfg config.CircuitBreakerConfig
	limits     map[string]config.RateLimitConfig
	logger     observability.Logger
	metrics    *observability.Metrics

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	limiters map[string]*rate.Limiter
}

// TransportOption configures an HTTPTransport.
type TransportOption func(*HTTPTransport)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(client *http.Client) TransportOption {
	return func(t *HTTPTransport) {
		t.client = client
	}
}

// WithTransportLogger sets the logger.
func WithTransportLogger(logger observability.Logger) TransportOption {
	return func(t *HTTPTransport) {
		t.logger = logger.With(observability.Component("transport"))
	}
}

// WithTransportMetrics publishes breaker state changes on m.
func WithTransportMetrics(m *observability.Metrics) TransportOption {
	return func(t *HTTPTransport) {
		t.metrics = m
	}
}

// NewHTTPTransport creates an HTTPTransport from the integration settings.
func NewHTTPTransport(cfg config.IntegrationConfig, opts ...TransportOption) *HTTPTransport {
	t := &HTTPTransport{
		client:     &http.Client{},
		breakerCfg: cfg.CircuitBreaker,
		limits:     cfg.RateLimits,
		logger:     observability.NopLogger(),
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
		limiters:   make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Do implements Transport.
func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "integration.call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("integration.service", req.Service),
			attribute.String("http.request.method", req.Method),
		),
	)
	defer span.End()

	if limiter := t.limiter(req.Service); limiter != nil && !limiter.Allow() {
		span.SetStatus(codes.Error, ErrRateLimited.Error())
		return nil, fmt.Errorf("%s: %w", req.Service, ErrRateLimited)
	}

	var (
		resp *Response
		err  error
	)
	if breaker := t.breaker(req.Service); breaker != nil {
		var result any
		result, err = breaker.Execute(func() (any, error) {
			return t.send(ctx, req)
		})
		resp, _ = result.(*Response)
	} else {
		resp, err = t.send(ctx, req)
	}

	if resp != nil {
		span.SetAttributes(attribute.Int("http.response.status_code", resp.Status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

func (t *HTTPTransport) send(ctx context.Context, req *Request) (*Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	body, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	observability.InjectTraceContext(ctx, httpReq)

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	resp := &Response{
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
		Data:   decodeBody(raw, req.ResponseType),
	}
	if resp.Status >= http.StatusBadRequest {
		return resp, &UpstreamError{Status: resp.Status, Data: resp.Data}
	}
	return resp, nil
}

func (t *HTTPTransport) breaker(service string) *gobreaker.CircuitBreaker {
	if !t.breakerCfg.Enabled {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if cb, ok := t.breakers[service]; ok {
		return cb
	}

	maxFailures := t.breakerCfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = DefaultBreakerMaxFailures
	}
	timeout := t.breakerCfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = DefaultBreakerTimeout
	}
	interval := t.breakerCfg.Interval.Duration()
	if interval <= 0 {
		interval = DefaultBreakerInterval
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     service,
		Interval: interval,
		Timeout:  timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: breakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			t.logger.Warn("circuit breaker state change",
				observability.String("service", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()))
			t.metrics.SetCircuitBreakerState(name, int(to))
		},
	})
	t.breakers[service] = cb
	return cb
}

// breakerSuccess counts client errors (4xx) as successes so that only
// transport failures and 5xx answers trip the breaker.
func breakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var upstream *UpstreamError
	return errors.As(err, &upstream) && upstream.Status < http.StatusInternalServerError
}

func (t *HTTPTransport) limiter(service string) *rate.Limiter {
	limit, ok := t.limits[service]
	if !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if l, ok := t.limiters[service]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(limit.RequestsPerSecond), limit.Burst)
	t.limiters[service] = l
	return l
}

func contentType(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, HeaderContentType) {
			return v
		}
	}
	return ""
}

func encodeBody(req *Request) (io.Reader, error) {
	switch body := req.Body.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.NewReader(body), nil
	case []byte:
		return bytes.NewReader(body), nil
	case map[string]any:
		if strings.HasPrefix(contentType(req.Headers), ContentTypeForm) {
			values := url.Values{}
			for k, v := range CompactMap(body) {
				values.Set(k, fmt.Sprint(v))
			}
			return strings.NewReader(values.Encode()), nil
		}
	}

	raw, err := json.Marshal(req.Body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return bytes.NewReader(raw), nil
}

func decodeBody(raw []byte, responseType string) any {
	if len(raw) == 0 {
		return nil
	}
	switch responseType {
	case ResponseTypeJSON, "":
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
		return string(raw)
	case ResponseTypeText:
		return string(raw)
	default:
		return raw
	}
}
