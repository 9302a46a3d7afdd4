package eventbus

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig configures the bounded retry sequence applied to every
// handler delivery. It is fixed at Bus construction and governs all
// handlers uniformly.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Total attempts = MaxRetries + 1.
	MaxRetries int

	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration

	// MaxDelay clamps backoff growth.
	MaxDelay time.Duration

	// BackoffFactor is the multiplier applied to the delay after each
	// failed attempt. Must be greater than 1.
	BackoffFactor float64

	// Jitter is the random jitter factor (0.0-1.0).
	// Zero keeps the delay sequence exact.
	Jitter float64
}

// DefaultRetry is the standard delivery retry configuration.
var DefaultRetry = RetryConfig{
	MaxRetries:    3,
	InitialDelay:  100 * time.Millisecond,
	MaxDelay:      5 * time.Second,
	BackoffFactor: 2.0,
}

// NoRetry delivers each event exactly once per handler.
var NoRetry = RetryConfig{
	MaxRetries:    0,
	InitialDelay:  100 * time.Millisecond,
	MaxDelay:      5 * time.Second,
	BackoffFactor: 2.0,
}

// withDefaults fills unset fields. MaxRetries is kept as given: zero is a
// legitimate setting, not an absent one.
func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultRetry.InitialDelay
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = DefaultRetry.MaxDelay
		if c.MaxDelay < c.InitialDelay {
			c.MaxDelay = c.InitialDelay
		}
	}
	if c.BackoffFactor <= 1 {
		c.BackoffFactor = DefaultRetry.BackoffFactor
	}
	return c
}

// Backoff returns the wait inserted after failed attempt k:
//
//	min(InitialDelay * BackoffFactor^k, MaxDelay)
//
// with jitter applied when configured.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	d := float64(c.InitialDelay)
	for i := 0; i < attempt && d < float64(c.MaxDelay); i++ {
		d *= c.BackoffFactor
	}
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if c.Jitter > 0 {
		// base +/- (base * jitter * random)
		d += d * c.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}

// RetryResult reports the terminal outcome of a retried operation.
type RetryResult struct {
	// Err is the final attempt's error, or nil on success.
	Err error

	// Attempts is the number of attempts made.
	Attempts int

	// Duration is the total time spent, backoff waits included.
	Duration time.Duration
}

// WithRetry executes op up to cfg.MaxRetries+1 times with exponential
// backoff between attempts, respecting context cancellation during waits.
// Each attempt is a fresh invocation of op; callers must make op safe to
// re-invoke.
func WithRetry(ctx context.Context, cfg RetryConfig, op func(context.Context) error) RetryResult {
	return retryLoop(ctx, cfg.withDefaults(), op, nil)
}

// retryLoop drives the attempt/backoff state machine. onFail, when non-nil,
// observes every failed attempt before the backoff wait (and the final one).
func retryLoop(ctx context.Context, cfg RetryConfig, op func(context.Context) error, onFail func(attempt int, err error)) RetryResult {
	start := time.Now()
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return RetryResult{Attempts: attempt + 1, Duration: time.Since(start)}
		}

		if onFail != nil {
			onFail(attempt, lastErr)
		}

		// No wait after the final attempt.
		if attempt < cfg.MaxRetries {
			select {
			case <-time.After(cfg.Backoff(attempt)):
			case <-ctx.Done():
				return RetryResult{
					Err:      ctx.Err(),
					Attempts: attempt + 1,
					Duration: time.Since(start),
				}
			}
		}
	}

	return RetryResult{
		Err:      lastErr,
		Attempts: cfg.MaxRetries + 1,
		Duration: time.Since(start),
	}
}
