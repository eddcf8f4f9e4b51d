package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/integrationgw/internal/cache"
	"github.com/vyrodovalexey/integrationgw/internal/config"
	"github.com/vyrodovalexey/integrationgw/internal/configuration"
	"github.com/vyrodovalexey/integrationgw/internal/docstore"
	"github.com/vyrodovalexey/integrationgw/internal/observability"
	"github.com/vyrodovalexey/integrationgw/internal/retry"
)

const basicCredential = "Y2xpZW50OnNlY3JldA=="

type auditEntry struct {
	code    string
	data    any
	result  any
	success bool
}

// recordingAuditor keeps audit calls in memory.
type recordingAuditor struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *recordingAuditor) Insert(_ context.Context, code string, data, result any, success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{code: code, data: data, result: result, success: success})
}

func (a *recordingAuditor) all() []auditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]auditEntry(nil), a.entries...)
}

// fakeClock is a settable clock.
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

type fixture struct {
	mr      *miniredis.Miniredis
	cache   *cache.Client
	store   *docstore.MemoryStore
	auditor *recordingAuditor
	logs    *observer.ObservedLogs
	clock   *fakeClock
	server  *httptest.Server
	deps    *Deps
}

// newFixture starts handler as the upstream of every configured service:
// CORREIOS at /ws/{cep}/json, ORDERS at /orders and the gateway login at
// /oauth/token.
func newFixture(t *testing.T, handler http.Handler) *fixture {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

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
				{"name": "CORREIOS", "address": server.URL + "/ws/{cep}/json"},
				{"name": "ORDERS", "address": server.URL + "/orders"},
				{"name": APIGatewayAuth, "address": server.URL + "/oauth/token"},
			},
		},
		docstore.Document{
			Name: BearerTokens,
			Value: []map[string]any{
				{"name": APIGatewayBearerToken, "token": basicCredential},
			},
		},
	)

	core, logs := observer.New(zapcore.DebugLevel)
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	auditor := &recordingAuditor{}

	return &fixture{
		mr:      mr,
		cache:   c,
		store:   store,
		auditor: auditor,
		logs:    logs,
		clock:   clock,
		server:  server,
		deps: &Deps{
			Cache:          c,
			Store:          store,
			Audit:          auditor,
			Transport:      NewHTTPTransport(config.IntegrationConfig{}),
			Logger:         observability.NewLoggerFromZap(zap.New(core)),
			DefaultTimeout: 5 * time.Second,
			Now:            clock.Now,
		},
	}
}

func (f *fixture) scope(t *testing.T) *Scope {
	t.Helper()
	return f.deps.NewScope(context.Background())
}

func boolPtr(b bool) *bool { return &b }

// counter counts requests per path.
type counter struct {
	mu   sync.Mutex
	hits map[string]int
}

func newCounter() *counter { return &counter{hits: make(map[string]int)} }

func (c *counter) inc(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits[path]++
	return c.hits[path]
}

func (c *counter) get(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits[path]
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
