package integration

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"
)

// Sentinel errors matched with errors.Is.
var (
	// ErrCacheKeyRequired is returned when a cache lookup has no key.
	ErrCacheKeyRequired = errors.New("cache key is required")

	// ErrAPIGatewayAuth is returned when the gateway login issues no token.
	ErrAPIGatewayAuth = errors.New("api gateway authentication failed")

	// ErrCallbackNotExpected is returned by End outside PROCESSING.
	ErrCallbackNotExpected = errors.New("callback not expected")

	// ErrRateLimited is returned when the outbound rate limit is exhausted.
	ErrRateLimited = errors.New("outbound rate limit exceeded")
)

// BaseIntegrationError reports a misuse of the base client.
type BaseIntegrationError struct {
	Code string
	Err  error
}

// Error implements the error interface.
func (e *BaseIntegrationError) Error() string {
	return fmt.Sprintf("integration %s: %v", e.Code, e.Err)
}

// Unwrap returns the underlying sentinel.
func (e *BaseIntegrationError) Unwrap() error { return e.Err }

// AuthError reports a gateway login that produced no usable token.
type AuthError struct {
	Reason string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return "api gateway authentication failed: " + e.Reason
}

// Is reports whether target is ErrAPIGatewayAuth.
func (e *AuthError) Is(target error) bool {
	return target == ErrAPIGatewayAuth
}

// AsyncCallbackError reports a callback for an operation that is not
// PROCESSING. Status is the state observed when the callback arrived.
type AsyncCallbackError struct {
	ID     string
	Status string
}

// Error implements the error interface.
func (e *AsyncCallbackError) Error() string {
	return fmt.Sprintf("callback for %s not expected in status %s", e.ID, e.Status)
}

// Is reports whether target is ErrCallbackNotExpected.
func (e *AsyncCallbackError) Is(target error) bool {
	return target == ErrCallbackNotExpected
}

// UpstreamError is an HTTP error answer from an outbound service.
type UpstreamError struct {
	Status int
	Data   any
	Cause  error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("upstream responded %d: %v", e.Status, e.Cause)
	}
	return fmt.Sprintf("upstream responded %d %s", e.Status, http.StatusText(e.Status))
}

// Unwrap returns the cause, if any.
func (e *UpstreamError) Unwrap() error { return e.Cause }

// StatusOf returns the upstream status carried by err, or 0.
func StatusOf(err error) int {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Status
	}
	return 0
}

// IsCircuitOpen reports whether err was produced by an open or saturated
// circuit breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
