package resilience

import (
	"time"
)

// Profile describes the budget for one class of upstream call.
type Profile struct {
	// Name labels the profile in logs and bulkhead errors.
	Name string

	// Timeout bounds a single attempt.
	Timeout time.Duration

	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration
}

// Built-in profiles for QSAR Toolbox calls.
var (
	// LightProfile covers metadata lookups and searches.
	LightProfile = Profile{
		Name:         "light",
		Timeout:      30 * time.Second,
		MaxAttempts:  2,
		InitialDelay: 500 * time.Millisecond,
	}

	// HeavyProfile covers predictions, profiling and metabolism simulation.
	HeavyProfile = Profile{
		Name:         "heavy",
		Timeout:      300 * time.Second,
		MaxAttempts:  3,
		InitialDelay: time.Second,
	}
)

// Merge returns p with every positive field of override applied. The name
// is kept.
func (p Profile) Merge(override Profile) Profile {
	if override.Timeout > 0 {
		p.Timeout = override.Timeout
	}
	if override.MaxAttempts > 0 {
		p.MaxAttempts = override.MaxAttempts
	}
	if override.InitialDelay > 0 {
		p.InitialDelay = override.InitialDelay
	}
	return p
}

// ProfileOptions adds the shared patterns to a profile executor.
type ProfileOptions struct {
	// CircuitBreaker is shared across profiles so that one failing upstream
	// trips every call to it.
	CircuitBreaker *CircuitBreaker

	// RateLimiter is shared across profiles. Nil disables throttling.
	RateLimiter *RateLimiter

	// MaxConcurrent caps calls in flight under this profile. A queued call
	// waits at most one profile timeout for a slot. Zero leaves the
	// profile uncapped.
	MaxConcurrent int

	// OnRetry is invoked before each retry.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// NewProfileExecutor builds an executor that retries only transient upstream
// failures and bounds each attempt by the profile timeout.
func NewProfileExecutor(p Profile, opts ProfileOptions) *Executor {
	e := &Executor{
		profile: p,
		limiter: opts.RateLimiter,
		breaker: opts.CircuitBreaker,
		retry: NewRetry(RetryConfig{
			MaxAttempts:  p.MaxAttempts,
			InitialDelay: p.InitialDelay,
			RetryIf:      IsRetryable,
			OnRetry:      opts.OnRetry,
		}),
	}
	if opts.MaxConcurrent > 0 {
		e.bulkhead = NewBulkhead(p.Name, opts.MaxConcurrent, p.Timeout)
	}
	return e
}
