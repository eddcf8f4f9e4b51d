package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Default retry configuration constants.
const (
	// DefaultMaxRetries is the default maximum number of retry attempts.
	DefaultMaxRetries = 3

	// DefaultInitialBackoff is the default initial backoff duration.
	DefaultInitialBackoff = 50 * time.Millisecond

	// DefaultMaxBackoff is the default maximum backoff duration.
	DefaultMaxBackoff = 2 * time.Second

	// DefaultJitterFactor is the default jitter factor (25%).
	DefaultJitterFactor = 0.25

	// MaxJitterFactor is the maximum allowed jitter factor.
	MaxJitterFactor = 1.0
)

// Config contains retry configuration parameters.
type Config struct {
	// MaxRetries is the maximum number of retry attempts after the first
	// call. Zero selects DefaultMaxRetries, a negative value disables retries.
	MaxRetries int

	// InitialBackoff is the backoff before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration

	// JitterFactor is the jitter factor (0.0 to 1.0) added to each backoff.
	JitterFactor float64
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		JitterFactor:   DefaultJitterFactor,
	}
}

// policy is a Config with defaults applied.
type policy struct {
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	jitterFactor   float64
}

// resolve applies defaults to c. A nil Config resolves to DefaultConfig.
func (c *Config) resolve() policy {
	p := policy{
		maxRetries:     DefaultMaxRetries,
		initialBackoff: DefaultInitialBackoff,
		maxBackoff:     DefaultMaxBackoff,
		jitterFactor:   DefaultJitterFactor,
	}
	if c == nil {
		return p
	}

	if c.MaxRetries < 0 {
		p.maxRetries = 0
	} else if c.MaxRetries > 0 {
		p.maxRetries = c.MaxRetries
	}
	if c.InitialBackoff > 0 {
		p.initialBackoff = c.InitialBackoff
	}
	if c.MaxBackoff > 0 {
		p.maxBackoff = c.MaxBackoff
	}
	if c.JitterFactor > 0 {
		p.jitterFactor = min(c.JitterFactor, MaxJitterFactor)
	}
	return p
}

// ShouldRetryFunc determines if an error should trigger a retry.
type ShouldRetryFunc func(error) bool

// OnRetryFunc is called before each retry attempt.
type OnRetryFunc func(attempt int, err error, backoff time.Duration)

// Options contains optional retry behavior configuration.
type Options struct {
	// ShouldRetry determines if an error should trigger a retry.
	// If nil, every error is retried.
	ShouldRetry ShouldRetryFunc

	// OnRetry is called before each retry attempt.
	OnRetry OnRetryFunc
}

// Do runs fn until it succeeds, the retries are exhausted, opts.ShouldRetry
// rejects the error or ctx ends. Between attempts it sleeps with exponential
// backoff. The last error of fn is returned.
func Do(ctx context.Context, cfg *Config, fn func() error, opts *Options) error {
	p := cfg.resolve()
	if opts == nil {
		opts = &Options{}
	}

	var err error
	for attempt := 0; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}

		if err = fn(); err == nil {
			return nil
		}
		if attempt >= p.maxRetries {
			return err
		}
		if opts.ShouldRetry != nil && !opts.ShouldRetry(err) {
			return err
		}

		backoff := CalculateBackoff(attempt, p.initialBackoff, p.maxBackoff, p.jitterFactor)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt+1, err, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

// CalculateBackoff calculates the backoff duration for a given attempt.
func CalculateBackoff(attempt int, initialBackoff, maxBackoff time.Duration, jitterFactor float64) time.Duration {
	backoff := float64(initialBackoff) * math.Pow(2, float64(attempt))

	//nolint:gosec // G404: jitter for retry timing is not security-sensitive
	jitter := backoff * jitterFactor * rand.Float64()
	backoff += jitter

	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	return time.Duration(backoff)
}
