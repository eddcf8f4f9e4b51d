package integration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/vyrodovalexey/integrationgw/internal/cache"
	"github.com/vyrodovalexey/integrationgw/internal/configuration"
	"github.com/vyrodovalexey/integrationgw/internal/observability"
)

// ConfigurationSource resolves service addresses and credentials.
type ConfigurationSource interface {
	GetIntegrationServiceConfiguration(ctx context.Context, serviceKey string) (*configuration.ServiceDescriptor, error)
	GetDefaultConfiguration(ctx context.Context, name, subKey string) (map[string]any, error)
}

// Auditor receives one record per call attempt.
type Auditor interface {
	Insert(ctx context.Context, code string, data, result any, success bool)
}

type nopAuditor struct{}

func (nopAuditor) Insert(context.Context, string, any, any, bool) {}

// Client is the base integration client. It is built for one request.
type Client struct {
	config         ConfigurationSource
	cache          cache.Cache
	audit          Auditor
	transport      Transport
	logger         observability.Logger
	metrics        *observability.Metrics
	defaultTimeout time.Duration

	localMaxEntries int
	responses       *cache.Local[*APIResponse]

	wg    sync.WaitGroup
	drain *sync.WaitGroup
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger observability.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics records outbound calls, cache lookups and logins on m.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithDefaultTimeout overrides the call timeout used when a call sets none.
func WithDefaultTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

// WithLocalMaxEntries caps the number of responses held by the local tier.
func WithLocalMaxEntries(n int) ClientOption {
	return func(c *Client) {
		c.localMaxEntries = n
	}
}

// withDrainGroup also tracks background work on wg.
func withDrainGroup(wg *sync.WaitGroup) ClientOption {
	return func(c *Client) {
		c.drain = wg
	}
}

// NewClient creates a Client. A nil auditor discards audit records.
func NewClient(
	cfg ConfigurationSource,
	c cache.Cache,
	auditor Auditor,
	transport Transport,
	opts ...ClientOption,
) *Client {
	if auditor == nil {
		auditor = nopAuditor{}
	}
	client := &Client{
		config:         cfg,
		cache:          c,
		audit:          auditor,
		transport:      transport,
		logger:         observability.NopLogger(),
		defaultTimeout: DefaultTimeoutMs * time.Millisecond,
	}
	for _, opt := range opts {
		opt(client)
	}
	client.responses = cache.NewLocal[*APIResponse]("response", client.localMaxEntries)
	client.logger = client.logger.With(observability.Component("integration"))
	return client
}

// ConsumeJSONAPI calls the service registered as in.ServiceKey with JSON
// content and response types. Unless the cache policy is forced, cached
// responses are served first.
func (c *Client) ConsumeJSONAPI(ctx context.Context, in APIConsume) (*APIResponse, error) {
	svc, err := c.config.GetIntegrationServiceConfiguration(ctx, in.ServiceKey)
	if err != nil {
		return nil, err
	}

	call := in
	call.Address = svc.Address
	call.Headers = withHeader(in.Headers, HeaderContentType, ContentTypeJSON)
	call.Options.ResponseType = ResponseTypeJSON

	if call.Cache.Forced() {
		c.logger.Debug("forceConsult",
			observability.Bool("forceConsult", true),
			observability.String("code", in.ServiceKey))
		return c.ConsumeAPI(ctx, call)
	}

	resp, err := c.ConsumeCache(ctx, call)
	if err != nil {
		return nil, err
	}
	if resp != nil {
		return resp, nil
	}
	return c.ConsumeAPI(ctx, call)
}

// ConsumeCache looks the response up in the enabled tiers. It returns nil
// and no error on a miss. A shared tier hit is copied into the local tier.
func (c *Client) ConsumeCache(ctx context.Context, in APIConsume) (*APIResponse, error) {
	key := in.Cache.Key
	if key == "" {
		return nil, &BaseIntegrationError{Code: in.ServiceKey, Err: ErrCacheKeyRequired}
	}

	if in.Cache.Memory {
		resp, ok := c.responses.Get(ctx, key)
		c.metrics.RecordCacheLookup(observability.TierMemory, ok)
		c.logger.Debug("memoryCacheHit",
			observability.Bool("memoryCacheHit", ok),
			observability.String("code", in.ServiceKey),
			observability.String("key", key))
		if ok {
			return resp, nil
		}
	}

	if in.Cache.Redis {
		var resp APIResponse
		found, err := c.cache.GetObject(ctx, key, &resp)
		if err != nil {
			c.logger.Warn("response cache read failed",
				observability.String("code", in.ServiceKey),
				observability.String("key", key),
				observability.Error(err))
			found = false
		}
		c.metrics.RecordCacheLookup(observability.TierRedis, found)
		c.logger.Debug("redisCacheHit",
			observability.Bool("redisCacheHit", found),
			observability.String("code", in.ServiceKey),
			observability.String("key", key))
		if found {
			if in.Cache.Memory {
				c.responses.Set(ctx, key, &resp)
			}
			return &resp, nil
		}
	}

	return nil, nil
}

// ConsumeAPI performs the live call described by in. Address placeholders
// are filled from in.Query. The attempt is logged and audited exactly once
// before returning. A successful response populates the enabled cache tiers
// in the background; Wait blocks until that is done.
func (c *Client) ConsumeAPI(ctx context.Context, in APIConsume) (*APIResponse, error) {
	address := InterpolateAddress(in.Address, in.Query)
	method := in.Options.method()

	fields := []observability.Field{
		observability.Bool("externalIntegration", true),
		observability.String("code", in.ServiceKey),
		observability.String("address", in.Address),
		observability.String("interpolatedAddress", address),
		observability.String("method", method),
	}
	c.logger.Debug("call", fields...)

	start := time.Now()
	resp, err := c.transport.Do(ctx, &Request{
		Service:      in.ServiceKey,
		Method:       method,
		URL:          address,
		Headers:      in.Headers,
		Body:         in.Body,
		Timeout:      c.timeout(in.Options),
		ResponseType: in.Options.ResponseType,
	})
	elapsed := time.Since(start)
	c.metrics.RecordOutboundCall(in.ServiceKey, method, err == nil, elapsed)

	fields = append(fields, observability.Int64("ellapsedTimeInMilli", elapsed.Milliseconds()))
	auditData := auditedCall(in)

	if err != nil {
		status := StatusOf(err)
		failure := &APIResponse{Status: status}
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			failure.Data = upstream.Data
		}

		c.logger.Error("response", append(fields,
			observability.Int("statusCode", status),
			observability.Error(err))...)
		c.audit.Insert(ctx, in.ServiceKey, auditData, failure, false)
		return nil, err
	}

	result := &APIResponse{Data: resp.Data, Status: 200, UpstreamStatus: resp.Status}
	c.logger.Info("response", append(fields, observability.Int("statusCode", resp.Status))...)
	c.audit.Insert(ctx, in.ServiceKey, auditData, result, true)

	c.populate(ctx, in, result)
	return result, nil
}

// Wait blocks until background cache population has finished.
func (c *Client) Wait() {
	c.wg.Wait()
}

func (c *Client) populate(ctx context.Context, in APIConsume, result *APIResponse) {
	policy := in.Cache
	if policy.Key == "" || (!policy.Memory && !policy.Redis) {
		return
	}

	detached := context.WithoutCancel(ctx)
	c.track(func() {
		if policy.Memory {
			c.responses.Set(detached, policy.Key, result)
		}
		if policy.Redis {
			ttl := policy.TTL
			if ttl <= 0 {
				ttl = cache.Hour
			}
			if err := c.cache.SetObject(detached, policy.Key, result, ttl); err != nil {
				c.logger.Warn("response cache write failed",
					observability.String("code", in.ServiceKey),
					observability.String("key", policy.Key),
					observability.Error(err))
			}
		}
	})
}

func (c *Client) track(fn func()) {
	c.wg.Add(1)
	if c.drain != nil {
		c.drain.Add(1)
	}
	go func() {
		defer func() {
			c.wg.Done()
			if c.drain != nil {
				c.drain.Done()
			}
		}()
		fn()
	}()
}

func (c *Client) timeout(o CallOptions) time.Duration {
	if o.TimeoutMs > 0 {
		return time.Duration(o.TimeoutMs) * time.Millisecond
	}
	return c.defaultTimeout
}

// auditedCall returns in with the authorization header masked.
func auditedCall(in APIConsume) APIConsume {
	for k := range in.Headers {
		if strings.EqualFold(k, HeaderAuthorization) {
			in.Headers = withHeader(in.Headers, HeaderAuthorization, "***")
			break
		}
	}
	return in
}
