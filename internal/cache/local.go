package cache

import (
	"container/list"
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultLocalMaxEntries caps a local tier created with a non-positive size.
const DefaultLocalMaxEntries = 1000

// Local is the in-process tier in front of the shared cache. Entries never
// expire: a Local lives as long as the request scope that owns it. Once the
// tier holds maxEntries values, the least recently used one is evicted.
// Local is safe for concurrent use.
type Local[V any] struct {
	name       string
	maxEntries int
	metrics    *Metrics

	mu       sync.Mutex
	items    map[string]*list.Element
	eviction *list.List
}

type localEntry[V any] struct {
	key   string
	value V
}

// NewLocal creates an empty local tier. name labels its spans and metrics.
func NewLocal[V any](name string, maxEntries int) *Local[V] {
	if maxEntries <= 0 {
		maxEntries = DefaultLocalMaxEntries
	}
	return &Local[V]{
		name:       name,
		maxEntries: maxEntries,
		metrics:    GetMetrics(),
		items:      make(map[string]*list.Element),
		eviction:   list.New(),
	}
}

func (c *Local[V]) startSpan(ctx context.Context, op, key string) trace.Span {
	_, span := otel.Tracer(tracerName).Start(ctx, "local."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", "memory"),
			attribute.String("cache.tier", c.name),
			attribute.String("cache.key", key),
		),
	)
	return span
}

// Get returns the value at key and marks it most recently used.
func (c *Local[V]) Get(ctx context.Context, key string) (V, bool) {
	span := c.startSpan(ctx, "Get", key)
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	span.SetAttributes(attribute.Bool("cache.hit", ok))
	if !ok {
		var zero V
		return zero, false
	}
	c.eviction.MoveToFront(elem)
	return elem.Value.(*localEntry[V]).value, true
}

// Set stores value at key, evicting the oldest entries over capacity.
func (c *Local[V]) Set(ctx context.Context, key string, value V) {
	span := c.startSpan(ctx, "Set", key)
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value = &localEntry[V]{key: key, value: value}
		c.eviction.MoveToFront(elem)
		return
	}

	c.items[key] = c.eviction.PushFront(&localEntry[V]{key: key, value: value})
	for c.eviction.Len() > c.maxEntries {
		c.evictOldest()
	}
}

// Len returns the number of entries held.
func (c *Local[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eviction.Len()
}

// evictOldest must be called with the lock held.
func (c *Local[V]) evictOldest() {
	elem := c.eviction.Back()
	if elem == nil {
		return
	}
	c.eviction.Remove(elem)
	delete(c.items, elem.Value.(*localEntry[V]).key)
	c.metrics.evictionsTotal.WithLabelValues(c.name).Inc()
}
