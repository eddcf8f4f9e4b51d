package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/integrationgw/internal/config"
	"github.com/vyrodovalexey/integrationgw/internal/observability"
	"github.com/vyrodovalexey/integrationgw/internal/retry"
)

const tracerName = "integrationgw/cache"

// pingTimeout bounds the connectivity check performed by New.
const pingTimeout = 5 * time.Second

// Client implements Cache on a pooled go-redis client.
type Client struct {
	client    *redis.Client
	logger    observability.Logger
	keyPrefix string
	retryCfg  *retry.Config
	metrics   *Metrics
}

var _ Cache = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithKeyPrefix prepends prefix to every key.
func WithKeyPrefix(prefix string) Option {
	return func(c *Client) {
		c.keyPrefix = prefix
	}
}

// WithRetry sets the retry policy for Redis commands.
func WithRetry(cfg *retry.Config) Option {
	return func(c *Client) {
		c.retryCfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New connects to Redis using cfg and verifies the connection.
func New(cfg config.RedisConfig, logger observability.Logger) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout.Duration()
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout.Duration()
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout.Duration()
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	c := NewFromClient(client,
		WithLogger(logger),
		WithKeyPrefix(cfg.KeyPrefix),
		WithRetry(&retry.Config{
			MaxRetries:     cfg.Retry.MaxRetries,
			InitialBackoff: cfg.Retry.InitialBackoff.Duration(),
			MaxBackoff:     cfg.Retry.MaxBackoff.Duration(),
		}),
	)

	if logger != nil {
		logger.Info("shared cache initialized",
			observability.String("addr", opts.Addr),
			observability.Int("db", opts.DB),
			observability.String("keyPrefix", cfg.KeyPrefix),
			observability.Int("poolSize", opts.PoolSize))
	}

	return c, nil
}

// NewFromClient wraps an existing go-redis client.
func NewFromClient(client *redis.Client, opts ...Option) *Client {
	c := &Client{
		client:   client,
		logger:   observability.NopLogger(),
		retryCfg: retry.DefaultConfig(),
		metrics:  GetMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = observability.NopLogger()
	}
	c.logger = c.logger.With(observability.Component("cache"))
	return c
}

// Redis returns the underlying client.
func (c *Client) Redis() *redis.Client {
	return c.client
}

func (c *Client) resolveKey(key string) string {
	return c.keyPrefix + key
}

// startOp opens a span and returns a function that records the duration and
// outcome of the operation.
func (c *Client) startOp(
	ctx context.Context, op, key string,
) (context.Context, func(err error)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "cache."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("cache.key", key),
		),
	)
	start := time.Now()

	return ctx, func(err error) {
		c.metrics.operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil {
			c.metrics.errorsTotal.WithLabelValues(op).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func (c *Client) retryOptions(op, key string) *retry.Options {
	return &retry.Options{
		ShouldRetry: retry.Unless(redis.Nil, ErrDecode, ErrUpdateMissing),
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			c.logger.Debug("retrying redis command",
				observability.String("operation", op),
				observability.String("key", key),
				observability.Int("attempt", attempt),
				observability.Duration("backoff", backoff),
				observability.Error(err))
		},
	}
}

// get reads key without tracing, retrying transient failures.
func (c *Client) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := retry.Do(ctx, c.retryCfg, func() error {
		v, err := c.client.Get(ctx, c.resolveKey(key)).Result()
		if err != nil {
			return err
		}
		value = v
		return nil
	}, c.retryOptions("get", key))

	switch {
	case err == nil:
		return value, true, nil
	case errors.Is(err, redis.Nil):
		return "", false, nil
	default:
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
}

// set writes key with expiration. expiration 0 means no expiry and
// redis.KeepTTL keeps whatever expiry the key has.
func (c *Client) set(ctx context.Context, key, value string, expiration time.Duration) error {
	err := retry.Do(ctx, c.retryCfg, func() error {
		return c.client.Set(ctx, c.resolveKey(key), value, expiration).Err()
	}, c.retryOptions("set", key))
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Get implements Cache.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, done := c.startOp(ctx, "get", key)
	value, ok, err := c.get(ctx, key)
	done(err)
	if err == nil {
		c.recordLookup("string", ok)
	}
	return value, ok, err
}

// Set implements Cache. A non-positive ttl stores the value for DefaultTTL.
func (c *Client) Set(ctx context.Context, key, value string, ttl int) (string, error) {
	ctx, done := c.startOp(ctx, "set", key)
	err := c.set(ctx, key, value, time.Duration(effectiveTTL(ttl))*time.Second)
	done(err)
	if err != nil {
		return "", err
	}
	return value, nil
}

// GetObject implements Cache. A missing key reports false with no error; a
// value that is not valid JSON for dest yields an error wrapping ErrDecode.
func (c *Client) GetObject(ctx context.Context, key string, dest any) (bool, error) {
	ctx, done := c.startOp(ctx, "get", key)
	raw, ok, err := c.get(ctx, key)
	if err == nil && ok {
		if jerr := json.Unmarshal([]byte(raw), dest); jerr != nil {
			err = fmt.Errorf("%w: key %s: %v", ErrDecode, key, jerr)
		}
	}
	done(err)
	if err != nil {
		return false, err
	}
	c.recordLookup("object", ok)
	return ok, nil
}

// SetObject implements Cache.
func (c *Client) SetObject(ctx context.Context, key string, value any, ttl int) error {
	ctx, done := c.startOp(ctx, "set", key)
	raw, err := json.Marshal(value)
	if err != nil {
		err = fmt.Errorf("encode cached object %s: %w", key, err)
	} else {
		err = c.set(ctx, key, string(raw), time.Duration(effectiveTTL(ttl))*time.Second)
	}
	done(err)
	return err
}

// UpdateObject implements Cache. It reads the remaining TTL and the current
// value in one pipeline, shallow-merges attrs over the stored object and
// writes the result back with the same remaining TTL. A key without expiry
// stays without expiry.
//
// The read and the write are separate round trips: two concurrent updates of
// the same key may lose one of the writes.
func (c *Client) UpdateObject(ctx context.Context, key string, attrs map[string]any) (map[string]any, error) {
	ctx, done := c.startOp(ctx, "update", key)
	merged, err := c.updateObject(ctx, key, attrs)
	done(err)
	return merged, err
}

func (c *Client) updateObject(ctx context.Context, key string, attrs map[string]any) (map[string]any, error) {
	fullKey := c.resolveKey(key)

	var (
		ttl time.Duration
		raw string
	)
	err := retry.Do(ctx, c.retryCfg, func() error {
		pipe := c.client.Pipeline()
		ttlCmd := pipe.TTL(ctx, fullKey)
		getCmd := pipe.Get(ctx, fullKey)
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		v, err := getCmd.Result()
		if err != nil {
			return err
		}
		ttl, raw = ttlCmd.Val(), v
		return nil
	}, c.retryOptions("update", key))

	if errors.Is(err, redis.Nil) {
		return nil, &UpdateError{Key: key}
	}
	if err != nil {
		return nil, fmt.Errorf("redis update %s: %w", key, err)
	}

	current := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &current); err != nil {
		return nil, fmt.Errorf("%w: key %s: %v", ErrDecode, key, err)
	}
	if current == nil {
		current = map[string]any{}
	}
	for k, v := range attrs {
		current[k] = v
	}

	encoded, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("encode cached object %s: %w", key, err)
	}

	if err := c.set(ctx, key, string(encoded), rewriteExpiration(ttl)); err != nil {
		return nil, err
	}
	return current, nil
}

// rewriteExpiration converts a TTL reply into the expiration for the
// rewrite. Redis reports -1 for keys without expiry; sub-second remainders
// round down to zero seconds and are kept alive for one more second.
func rewriteExpiration(ttl time.Duration) time.Duration {
	switch {
	case ttl == -1:
		return redis.KeepTTL
	case ttl < time.Second:
		return time.Second
	default:
		return ttl
	}
}

// SetOrUpdateObject implements Cache.
func (c *Client) SetOrUpdateObject(
	ctx context.Context, key string, value map[string]any, ttl int,
) (map[string]any, error) {
	merged, err := c.UpdateObject(ctx, key, value)
	if err == nil {
		return merged, nil
	}

	var updateErr *UpdateError
	if !errors.As(err, &updateErr) {
		return nil, err
	}

	if err := c.SetObject(ctx, key, value, ttl); err != nil {
		return nil, err
	}
	return value, nil
}

// Ping implements Cache.
func (c *Client) Ping(ctx context.Context) error {
	ctx, done := c.startOp(ctx, "ping", "")
	err := retry.Do(ctx, c.retryCfg, func() error {
		return c.client.Ping(ctx).Err()
	}, c.retryOptions("ping", ""))
	done(err)
	return err
}

// Close implements Cache.
func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) recordLookup(kind string, hit bool) {
	if hit {
		c.metrics.hitsTotal.WithLabelValues(kind).Inc()
		return
	}
	c.metrics.missesTotal.WithLabelValues(kind).Inc()
}
