package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/integrationgw/internal/audit"
	"github.com/vyrodovalexey/integrationgw/internal/cache"
	"github.com/vyrodovalexey/integrationgw/internal/config"
	"github.com/vyrodovalexey/integrationgw/internal/configuration"
	"github.com/vyrodovalexey/integrationgw/internal/docstore"
	"github.com/vyrodovalexey/integrationgw/internal/health"
	"github.com/vyrodovalexey/integrationgw/internal/integration"
	"github.com/vyrodovalexey/integrationgw/internal/observability"
	"github.com/vyrodovalexey/integrationgw/internal/retry"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testServer struct {
	srv     *Server
	mr      *miniredis.Miniredis
	store   *docstore.MemoryStore
	writer  *audit.Writer
	logs    *observer.ObservedLogs
	clock   *fakeClock
	checker *health.Checker
}

// upstream answers the gateway login and the CORREIOS and ORDERS services.
// Calls without the issued bearer token are rejected.
func upstream() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"access_token":"token-1"}`)
	})
	mux.HandleFunc("/ws/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-1" {
			writeJSON(w, http.StatusUnauthorized, `{}`)
			return
		}
		if r.URL.Path == "/ws/99999999/json" {
			writeJSON(w, http.StatusNotFound, `{"erro":true}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"logradouro":"Praça da Sé","path":"`+r.URL.Path+`"}`)
	})
	mux.HandleFunc("/orders", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":7}`)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	up := httptest.NewServer(upstream())
	t.Cleanup(up.Close)

	mr := miniredis.RunT(t)
	c := cache.NewFromClient(
		redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		cache.WithRetry(&retry.Config{MaxRetries: -1}),
	)
	t.Cleanup(func() { _ = c.Close() })

	store := docstore.NewMemoryStore(
		docstore.Document{
			Name: configuration.IntegrationServices,
			Value: []map[string]any{
				{"name": "CORREIOS", "address": up.URL + "/ws/{cep}/json"},
				{"name": "ORDERS", "address": up.URL + "/orders"},
				{"name": integration.APIGatewayAuth, "address": up.URL + "/oauth/token"},
			},
		},
		docstore.Document{
			Name: integration.BearerTokens,
			Value: []map[string]any{
				{"name": integration.APIGatewayBearerToken, "token": "Y2xpZW50OnNlY3JldA=="},
			},
		},
	)

	core, logs := observer.New(zapcore.DebugLevel)
	logger := observability.NewLoggerFromZap(zap.New(core))
	metrics := observability.NewMetrics("integrationgw")
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	writer := audit.NewWriter(store, logger)

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	if mutate != nil {
		mutate(cfg)
	}

	checker := health.NewChecker("test", nil)
	checker.RegisterPinger("redis", c)
	checker.RegisterPinger("documentStore", store)

	deps := &integration.Deps{
		Cache:          c,
		Store:          store,
		Audit:          writer,
		Transport:      integration.NewHTTPTransport(cfg.Integration),
		Logger:         logger,
		Metrics:        metrics,
		DefaultTimeout: 5 * time.Second,
		Now:            clock.Now,
	}

	srv, err := New(cfg, deps,
		WithLogger(logger),
		WithMetrics(metrics),
		WithChecker(checker),
	)
	require.NoError(t, err)

	return &testServer{srv: srv, mr: mr, store: store, writer: writer, logs: logs, clock: clock, checker: checker}
}

func (ts *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/readyz", "", nil).Code)

	ts.mr.Close()
	rec := ts.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[health.ReadinessResponse](t, rec)
	assert.Equal(t, health.StatusUnhealthy, body.Checks["redis"].Status)
	assert.Equal(t, health.StatusHealthy, body.Checks["documentStore"].Status)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(http.MethodGet, "/healthz", "", nil)

	rec := ts.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `integrationgw_requests_total{method="GET",route="/healthz",status="200"} 1`)
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/healthz", "", map[string]string{RequestIDHeader: "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))

	rec = ts.do(http.MethodGet, "/healthz", "", nil)
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/healthz", "", nil)
	for name, value := range securityHeaders {
		assert.Equal(t, value, rec.Header().Get(name), name)
	}
}

func TestRequestLogging(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.do(http.MethodGet, "/healthz?verbose=1", "", map[string]string{RequestIDHeader: "req-1"})

	calls := ts.logs.FilterMessage("call").FilterField(zap.String("type", "call")).All()
	require.Len(t, calls, 1)
	assert.Equal(t, "/healthz?verbose=1", calls[0].ContextMap()["url"])
	assert.Equal(t, "req-1", calls[0].ContextMap()["request_id"])

	responses := ts.logs.FilterMessage("response").FilterField(zap.String("type", "response")).All()
	require.Len(t, responses, 1)
	fields := responses[0].ContextMap()
	assert.Equal(t, zapcore.InfoLevel, responses[0].Level)
	assert.Equal(t, int64(http.StatusOK), fields["statusCode"])
	assert.Contains(t, fields, "ellapsedTimeInMilli")
	assert.Equal(t, "/healthz", fields["path"])
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode[ErrorBody](t, rec)
	assert.Equal(t, http.StatusNotFound, body.StatusCode)
	assert.Equal(t, "/nope", body.Path)
	assert.NotEmpty(t, body.Timestamp)
}

func TestRecovery(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.srv.engine.GET("/panic", func(*gin.Context) { panic("boom") })

	rec := ts.do(http.MethodGet, "/panic", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, http.StatusInternalServerError, decode[ErrorBody](t, rec).StatusCode)
	assert.Equal(t, 1, ts.logs.FilterMessage("panic recovered").Len())

	responses := ts.logs.FilterMessage("response").FilterField(zap.String("type", "response")).All()
	require.Len(t, responses, 1)
	assert.Equal(t, zapcore.ErrorLevel, responses[0].Level)
}

func TestShutdownDrainsReadiness(t *testing.T) {
	ts := newTestServer(t, nil)

	require.NoError(t, ts.srv.Shutdown(context.Background()))
	assert.True(t, ts.checker.IsDraining())
	assert.Equal(t, http.StatusServiceUnavailable, ts.do(http.MethodGet, "/readyz", "", nil).Code)
}
