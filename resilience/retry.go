package resilience

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryConfig configures Retry.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Default: 3
	MaxAttempts int

	// InitialDelay is the backoff before the first retry; each later
	// retry doubles it.
	// Default: 500ms
	InitialDelay time.Duration

	// MaxDelay caps the backoff.
	// Default: 30s
	MaxDelay time.Duration

	// RetryIf decides whether a failed attempt is worth another.
	// Default: IsRetryable
	RetryIf func(err error) bool

	// OnRetry is called before each retry with the failed attempt number.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Retry reruns transient failures with jittered exponential backoff.
type Retry struct {
	config RetryConfig
	jitter func(n int64) int64
}

// NewRetry creates a retry loop.
func NewRetry(cfg RetryConfig) *Retry {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = IsRetryable
	}
	return &Retry{config: cfg, jitter: rand.Int64N}
}

type attemptKey struct{}

// AttemptFromContext returns the 1-based attempt number of the operation
// running under Retry, or 0 outside a retry loop.
func AttemptFromContext(ctx context.Context) int {
	n, _ := ctx.Value(attemptKey{}).(int)
	return n
}

// Execute runs op until it succeeds, returns an error RetryIf rejects, or
// MaxAttempts is reached. Exhaustion wraps both ErrMaxRetriesExceeded and
// the last error; a single-attempt budget returns the error unwrapped.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := op(context.WithValue(ctx, attemptKey{}, attempt))
		if err == nil {
			return nil
		}
		lastErr = err
		if !r.config.RetryIf(err) || attempt == r.config.MaxAttempts {
			break
		}

		delay := r.delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if r.config.MaxAttempts == 1 || !r.config.RetryIf(lastErr) {
		return lastErr
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetriesExceeded, r.config.MaxAttempts, lastErr)
}

// delay is InitialDelay doubled per failed attempt, capped at MaxDelay,
// plus up to a quarter of itself in jitter.
func (r *Retry) delay(attempt int) time.Duration {
	d := r.config.InitialDelay
	for i := 1; i < attempt && d < r.config.MaxDelay; i++ {
		d *= 2
	}
	if d > r.config.MaxDelay {
		d = r.config.MaxDelay
	}
	if q := int64(d / 4); q > 0 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		d += time.Duration(r.jitter(q))
	}
	return d
}
