package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vyrodovalexey/integrationgw/internal/config"
	"github.com/vyrodovalexey/integrationgw/internal/integration"
)

func TestConsumeIntegration(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/api/integrations/CORREIOS",
		`{"cep":"01001-000","query":{"ignored":null}}`,
		map[string]string{RequestIDHeader: "req-cep"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[integration.APIResponse](t, rec)
	assert.Equal(t, http.StatusOK, resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/ws/01001-000/json", data["path"])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ts.writer.Close(ctx))

	var codes []string
	for _, record := range ts.store.Audits() {
		codes = append(codes, record.Code)
		assert.Equal(t, "req-cep", record.RequestID)
	}
	assert.ElementsMatch(t, []string{integration.APIGatewayAuth, "CORREIOS"}, codes)
}

func TestConsumeIntegration_EmptyBody(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/api/integrations/ORDERS", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]any{"id": float64(7)}, decode[integration.APIResponse](t, rec).Data)
}

func TestConsumeIntegration_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantInMsg  string
	}{
		{name: "invalid cep", path: "/api/integrations/CORREIOS", body: `{"cep":"123"}`, wantStatus: http.StatusBadRequest, wantInMsg: "cep"},
		{name: "invalid method", path: "/api/integrations/ORDERS", body: `{"method":"TRACE"}`, wantStatus: http.StatusBadRequest},
		{name: "malformed json", path: "/api/integrations/ORDERS", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "unknown service", path: "/api/integrations/NOPE", body: `{}`, wantStatus: http.StatusNotFound, wantInMsg: "NOPE"},
		{name: "upstream status kept", path: "/api/integrations/CORREIOS", body: `{"cep":"99999999"}`, wantStatus: http.StatusNotFound},
		{
			name:       "cache key required",
			path:       "/api/integrations/ORDERS",
			body:       `{"cache":{"forceConsult":false,"useSharedCache":true}}`,
			wantStatus: http.StatusBadRequest,
			wantInMsg:  "cache key is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)

			rec := ts.do(http.MethodPost, tt.path, tt.body, nil)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			body := decode[ErrorBody](t, rec)
			assert.Equal(t, tt.wantStatus, body.StatusCode)
			assert.Equal(t, tt.path, body.Path)
			if tt.wantInMsg != "" {
				assert.Contains(t, body.Message, tt.wantInMsg)
			}
		})
	}
}

func TestAsyncLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	start := `{"serviceKey":"ORDERS","timeoutMs":1000,"context":{"orderId":7}}`

	rec := ts.do(http.MethodPost, "/api/async/op-1", start, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	started := decode[integration.AsyncResult](t, rec)
	require.NotNil(t, started.Response)
	assert.Equal(t, integration.StatusReadyToStart, started.Status.Status)

	rec = ts.do(http.MethodGet, "/api/async/op-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, integration.APIStatus{Status: integration.StatusProcessing, RemainingTime: 1000},
		decode[integration.APIStatus](t, rec))

	rec = ts.do(http.MethodPost, "/api/async/op-1/callback", `{"paid":true}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[map[string]any](t, rec)
	assert.Equal(t, map[string]any{"paid": true}, updated["callbackResult"])
	assert.Equal(t, map[string]any{"orderId": float64(7)}, updated["context"])

	ts.clock.Advance(1000 * time.Millisecond)
	rec = ts.do(http.MethodGet, "/api/async/op-1", "", nil)
	assert.Equal(t, integration.StatusSuccess, decode[integration.APIStatus](t, rec).Status)

	rec = ts.do(http.MethodPost, "/api/async/op-1/callback", `{"paid":false}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodPost, "/api/async/op-1", start, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[integration.AsyncResult](t, rec)
	assert.Nil(t, again.Response)
	assert.Equal(t, integration.StatusSuccess, again.Status.Status)
}

func TestAsyncStatus_Unknown(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/async/missing?timeout=250", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, integration.APIStatus{Status: integration.StatusReadyToStart, RemainingTime: 250},
		decode[integration.APIStatus](t, rec))

	rec = ts.do(http.MethodGet, "/api/async/missing?timeout=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAsyncStart_Validation(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, body := range []string{`{}`, `{"serviceKey":"ORDERS"}`, `{"timeoutMs":10}`} {
		rec := ts.do(http.MethodPost, "/api/async/op", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestAsyncCallback_Rejected(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/api/async/unknown/callback", `{"ok":true}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decode[ErrorBody](t, rec).Message, integration.StatusReadyToStart)

	rec = ts.do(http.MethodPost, "/api/async/unknown/callback", `null`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAsyncCallback_APIKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("callback-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.CallbackAuth.KeyHashes = []string{string(hash)}
	})

	tests := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{name: "missing key", wantStatus: http.StatusUnauthorized},
		{name: "wrong key", key: "guess", wantStatus: http.StatusUnauthorized},
		{name: "valid key", key: "callback-secret", wantStatus: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.key != "" {
				headers[config.DefaultAPIKeyHeader] = tt.key
			}
			rec := ts.do(http.MethodPost, "/api/async/op/callback", `{"ok":true}`, headers)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestBasePath(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.BasePath = "/integrations/v1"
	})

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/integrations/v1/async/x", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/async/x", "", nil).Code)
}
