package integration

import (
	"fmt"
	"net/http"
	"strings"
)

// Response types understood by the transport.
const (
	ResponseTypeJSON = "json"
	ResponseTypeText = "text"
)

// Header names set by the clients.
const (
	HeaderContentType   = "content-type"
	HeaderAuthorization = "authorization"

	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

// DefaultTimeoutMs applies when CallOptions.TimeoutMs is not positive.
const DefaultTimeoutMs = 60000

// CachePolicy selects the cache tiers of a call.
type CachePolicy struct {
	Key string `json:"key,omitempty"`

	// ForceConsult skips the cache lookup. Nil means true.
	ForceConsult *bool `json:"forceConsult,omitempty"`

	// Memory enables the request-local tier.
	Memory bool `json:"useLocalCache,omitempty"`

	// Redis enables the shared tier.
	Redis bool `json:"useSharedCache,omitempty"`

	// TTL of the shared tier entry in seconds. Zero means one hour.
	TTL int `json:"ttl,omitempty"`
}

// Forced reports whether the cache lookup is skipped.
func (p CachePolicy) Forced() bool {
	return p.ForceConsult == nil || *p.ForceConsult
}

// CallOptions tunes a single outbound call.
type CallOptions struct {
	TimeoutMs    int64  `json:"timeoutMs,omitempty"`
	Method       string `json:"method,omitempty"`
	ResponseType string `json:"responseType,omitempty"`
}

// APIConsume describes one outbound call.
type APIConsume struct {
	ServiceKey string            `json:"serviceKey"`
	Address    string            `json:"address,omitempty"`
	Body       any               `json:"body,omitempty"`
	Query      map[string]any    `json:"query,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Cache      CachePolicy       `json:"cache"`
	Options    CallOptions       `json:"options"`
}

// APIResponse is the result of a call. Status is always 200 on success;
// UpstreamStatus keeps the code the service actually answered with.
type APIResponse struct {
	Data           any `json:"data"`
	Status         int `json:"status"`
	UpstreamStatus int `json:"upstreamStatus,omitempty"`
}

// InterpolateAddress replaces the first {key} placeholder of address with
// each query value. Values are inserted literally, without URL encoding.
func InterpolateAddress(address string, query map[string]any) string {
	for k, v := range query {
		address = strings.Replace(address, "{"+k+"}", fmt.Sprint(v), 1)
	}
	return address
}

// CompactMap returns a copy of m without nil values.
func CompactMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

func (o CallOptions) method() string {
	if o.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(o.Method)
}

// withHeader returns a copy of headers with name set to value. Existing
// keys matching name in any case are replaced.
func withHeader(headers map[string]string, name, value string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		if !strings.EqualFold(k, name) {
			out[k] = v
		}
	}
	out[name] = value
	return out
}
