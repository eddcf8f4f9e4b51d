package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"
)

// IsTransient reports whether err looks like a connection level failure
// that may succeed on another attempt. Context cancellation and deadline
// errors are never transient: the caller has given up.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// Unless returns a ShouldRetryFunc that refuses to retry errors matching any
// of targets and defers to IsTransient otherwise.
func Unless(targets ...error) ShouldRetryFunc {
	return func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return false
			}
		}
		return IsTransient(err)
	}
}
