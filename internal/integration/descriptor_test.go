package integration

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
)

func TestInterpolateAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		query   map[string]any
		want    string
	}{
		{
			name:    "replaces each placeholder",
			address: "test?={a},test2={b}",
			query:   map[string]any{"a": 1, "b": 2},
			want:    "test?=1,test2=2",
		},
		{
			name:    "nil query",
			address: "test?={a}",
			want:    "test?={a}",
		},
		{
			name:    "first occurrence only",
			address: "/{id}/items/{id}",
			query:   map[string]any{"id": "42"},
			want:    "/42/items/{id}",
		},
		{
			name:    "no url encoding",
			address: "/search?q={q}",
			query:   map[string]any{"q": "a b&c/d"},
			want:    "/search?q=a b&c/d",
		},
		{
			name:    "unused query entries",
			address: "/ws/{cep}/json",
			query:   map[string]any{"cep": "01001000", "extra": true},
			want:    "/ws/01001000/json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InterpolateAddress(tt.address, tt.query))
		})
	}
}

func TestCompactMap(t *testing.T) {
	assert.Nil(t, CompactMap(nil))
	assert.Equal(t,
		map[string]any{"a": 1, "c": ""},
		CompactMap(map[string]any{"a": 1, "b": nil, "c": ""}))
}

func TestCachePolicy_Forced(t *testing.T) {
	assert.True(t, CachePolicy{}.Forced())
	assert.True(t, CachePolicy{ForceConsult: boolPtr(true)}.Forced())
	assert.False(t, CachePolicy{ForceConsult: boolPtr(false)}.Forced())
}

func TestCallOptions_Method(t *testing.T) {
	assert.Equal(t, "GET", CallOptions{}.method())
	assert.Equal(t, "POST", CallOptions{Method: "post"}.method())
}

func TestWithHeader(t *testing.T) {
	in := map[string]string{"Content-Type": "text/plain", "x-trace": "1"}
	out := withHeader(in, HeaderContentType, ContentTypeJSON)

	assert.Equal(t, map[string]string{"content-type": ContentTypeJSON, "x-trace": "1"}, out)
	assert.Equal(t, "text/plain", in["Content-Type"])
}

func TestErrors(t *testing.T) {
	upstream := &UpstreamError{Status: 404, Data: map[string]any{"message": "x"}}
	wrapped := fmt.Errorf("call: %w", upstream)

	assert.Equal(t, 404, StatusOf(wrapped))
	assert.Equal(t, 0, StatusOf(errors.New("other")))
	assert.Equal(t, 0, StatusOf(nil))
	assert.Equal(t, "upstream responded 404 Not Found", upstream.Error())

	cause := errors.New("boom")
	assert.ErrorIs(t, &UpstreamError{Status: 500, Cause: cause}, cause)

	assert.ErrorIs(t, &BaseIntegrationError{Code: "X", Err: ErrCacheKeyRequired}, ErrCacheKeyRequired)
	assert.ErrorIs(t, &AuthError{Reason: "r"}, ErrAPIGatewayAuth)
	assert.ErrorIs(t, &AsyncCallbackError{ID: "1", Status: StatusSuccess}, ErrCallbackNotExpected)
	assert.Equal(t, "callback for 1 not expected in status SUCCESS",
		(&AsyncCallbackError{ID: "1", Status: StatusSuccess}).Error())

	assert.True(t, IsCircuitOpen(fmt.Errorf("x: %w", gobreaker.ErrOpenState)))
	assert.True(t, IsCircuitOpen(gobreaker.ErrTooManyRequests))
	assert.False(t, IsCircuitOpen(upstream))
}
