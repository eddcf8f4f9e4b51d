package cache

import (
	"context"
	"errors"
	"fmt"
)

// TTL constants in seconds.
const (
	OneMinute = 60
	HalfHour  = 30 * OneMinute
	Hour      = 2 * HalfHour

	// DefaultTTL applies when a caller passes a non-positive TTL.
	DefaultTTL = Hour
)

// Common cache errors.
var (
	// ErrDecode indicates a stored value is not valid JSON for the target.
	ErrDecode = errors.New("cached value could not be decoded")

	// ErrUpdateMissing indicates UpdateObject found no value to update.
	ErrUpdateMissing = errors.New("no cached value to update")
)

// UpdateError is returned by UpdateObject when the key holds no value.
type UpdateError struct {
	Key string
}

// Error implements the error interface.
func (e *UpdateError) Error() string {
	return fmt.Sprintf("cannot update missing cached object %q", e.Key)
}

// Is reports whether target is ErrUpdateMissing.
func (e *UpdateError) Is(target error) bool {
	return target == ErrUpdateMissing
}

// Cache is the shared cache used by configuration lookups, token storage,
// response caching and async operation records.
type Cache interface {
	// Get returns the value at key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value with ttl seconds and returns the stored value.
	Set(ctx context.Context, key, value string, ttl int) (string, error)

	// GetObject decodes the JSON value at key into dest.
	GetObject(ctx context.Context, key string, dest any) (bool, error)

	// SetObject stores the JSON encoding of value with ttl seconds.
	SetObject(ctx context.Context, key string, value any, ttl int) error

	// UpdateObject merges attrs into the object at key, keeping its TTL.
	UpdateObject(ctx context.Context, key string, attrs map[string]any) (map[string]any, error)

	// SetOrUpdateObject updates the object at key or stores value when absent.
	SetOrUpdateObject(ctx context.Context, key string, value map[string]any, ttl int) (map[string]any, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection pool.
	Close() error
}

func effectiveTTL(ttl int) int {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
