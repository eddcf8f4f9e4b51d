package integration

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/integrationgw/internal/cache"
)

func asyncFixture(t *testing.T) (*fixture, *gatewayUpstream) {
	t.Helper()

	up := newGatewayUpstream(func(string, int) int { return http.StatusAccepted })
	f := newFixture(t, up)
	require.NoError(t, f.mr.Set(APIGatewayTokenKey, "valid"))
	return f, up
}

func TestAsync_CallbackTimeline(t *testing.T) {
	f, up := asyncFixture(t)
	client := f.scope(t).Async
	ctx := context.Background()

	started, err := client.ConsumeAsyncAPI(ctx, "op-1", ordersCall(), 1000, map[string]any{"orderId": 7})
	require.NoError(t, err)
	assert.Equal(t, &APIStatus{Status: StatusReadyToStart, RemainingTime: 1000}, started.Status)
	require.NotNil(t, started.Response)
	assert.Equal(t, http.StatusAccepted, started.Response.UpstreamStatus)
	assert.Equal(t, 1, up.hits.get("/orders"))
	assert.Equal(t, time.Duration(cache.Hour)*time.Second, f.mr.TTL("op-1"))

	f.clock.Advance(400 * time.Millisecond)
	status, err := client.GetContext(ctx, "op-1", 1000)
	require.NoError(t, err)
	assert.Equal(t, &APIStatus{Status: StatusProcessing, RemainingTime: 600}, status)

	again, err := client.ConsumeAsyncAPI(ctx, "op-1", ordersCall(), 1000, nil)
	require.NoError(t, err)
	assert.Nil(t, again.Response)
	assert.Equal(t, StatusProcessing, again.Status.Status)
	assert.Equal(t, 1, up.hits.get("/orders"))

	f.clock.Advance(100 * time.Millisecond)
	updated, err := client.End(ctx, "op-1", map[string]any{"approved": true})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"approved": true}, updated["callbackResult"])
	assert.Equal(t, map[string]any{"orderId": float64(7)}, updated["context"])
	assert.Equal(t, time.Duration(cache.Hour)*time.Second, f.mr.TTL("op-1"))

	status, err = client.GetContext(ctx, "op-1", 0)
	require.NoError(t, err)
	assert.Equal(t, &APIStatus{Status: StatusProcessing, RemainingTime: 500}, status)

	f.clock.Advance(600 * time.Millisecond)
	status, err = client.GetContext(ctx, "op-1", 0)
	require.NoError(t, err)
	assert.Equal(t, &APIStatus{Status: StatusSuccess, RemainingTime: 0}, status)

	_, err = client.End(ctx, "op-1", "late")
	var cbErr *AsyncCallbackError
	require.True(t, errors.As(err, &cbErr))
	assert.Equal(t, StatusSuccess, cbErr.Status)
}

func TestAsync_Timeout(t *testing.T) {
	f, _ := asyncFixture(t)
	client := f.scope(t).Async
	ctx := context.Background()

	_, err := client.ConsumeAsyncAPI(ctx, "op-2", ordersCall(), 1000, nil)
	require.NoError(t, err)

	f.clock.Advance(1000 * time.Millisecond)
	status, err := client.GetContext(ctx, "op-2", 1000)
	require.NoError(t, err)
	assert.Equal(t, &APIStatus{Status: StatusTimeout, RemainingTime: 0}, status)

	_, err = client.End(ctx, "op-2", "late")
	assert.ErrorIs(t, err, ErrCallbackNotExpected)
}

func TestAsync_EndUnknownID(t *testing.T) {
	f, _ := asyncFixture(t)

	_, err := f.scope(t).Async.End(context.Background(), "never-started", "x")
	var cbErr *AsyncCallbackError
	require.True(t, errors.As(err, &cbErr))
	assert.Equal(t, "never-started", cbErr.ID)
	assert.Equal(t, StatusReadyToStart, cbErr.Status)
	assert.False(t, f.mr.Exists("never-started"))
}

func TestAsync_FailedCallLeavesNoRecord(t *testing.T) {
	up := newGatewayUpstream(func(string, int) int { return http.StatusBadGateway })
	f := newFixture(t, up)
	require.NoError(t, f.mr.Set(APIGatewayTokenKey, "valid"))

	_, err := f.scope(t).Async.ConsumeAsyncAPI(context.Background(), "op-3", ordersCall(), 1000, nil)
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
	assert.False(t, f.mr.Exists("op-3"))
}

func TestAsync_DeadlineTakenBeforeCall(t *testing.T) {
	f, _ := asyncFixture(t)
	slow := &slowTransport{next: f.deps.Transport, clock: f.clock, delay: 300 * time.Millisecond}
	f.deps.Transport = slow
	client := f.scope(t).Async
	ctx := context.Background()

	_, err := client.ConsumeAsyncAPI(ctx, "op-4", ordersCall(), 1000, nil)
	require.NoError(t, err)

	status, err := client.GetContext(ctx, "op-4", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(700), status.RemainingTime)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		remaining int64
		hasResult bool
		want      string
	}{
		{remaining: 0, hasResult: true, want: StatusSuccess},
		{remaining: 10, hasResult: true, want: StatusProcessing},
		{remaining: 0, hasResult: false, want: StatusTimeout},
		{remaining: 10, hasResult: false, want: StatusProcessing},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.remaining, tt.hasResult))
	}
}

func TestHasCallbackResult(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{name: "nil", value: nil, want: false},
		{name: "false", value: false, want: false},
		{name: "true", value: true, want: true},
		{name: "zero", value: float64(0), want: false},
		{name: "number", value: float64(3), want: true},
		{name: "empty string", value: "", want: false},
		{name: "string", value: "done", want: true},
		{name: "empty object", value: map[string]any{}, want: true},
		{name: "empty list", value: []any{}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasCallbackResult(tt.value))
		})
	}
}

func TestAsync_FalsyCallbackResultTimesOut(t *testing.T) {
	f, _ := asyncFixture(t)
	client := f.scope(t).Async
	ctx := context.Background()

	_, err := client.ConsumeAsyncAPI(ctx, "op-5", ordersCall(), 1000, nil)
	require.NoError(t, err)

	_, err = client.End(ctx, "op-5", false)
	require.NoError(t, err)

	status, err := client.GetContext(ctx, "op-5", 0)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, status.Status)

	f.clock.Advance(1000 * time.Millisecond)
	status, err = client.GetContext(ctx, "op-5", 0)
	require.NoError(t, err)
	assert.Equal(t, StatusTimeout, status.Status)
}

// slowTransport advances the fake clock while a call is in flight.
type slowTransport struct {
	next  Transport
	clock *fakeClock
	delay time.Duration
}

func (s *slowTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	s.clock.Advance(s.delay)
	return s.next.Do(ctx, req)
}
