package resilience

import (
	"context"
)

// Executor runs upstream calls under one profile. A call waits on the
// shared rate limiter, takes a bulkhead slot, passes the shared circuit
// breaker, and then runs as retried attempts each bounded by the profile
// timeout. The breaker sees one outcome per call, not per attempt.
type Executor struct {
	profile  Profile
	limiter  *RateLimiter
	bulkhead *Bulkhead
	breaker  *CircuitBreaker
	retry    *Retry
}

// Profile returns the profile the executor was built from.
func (e *Executor) Profile() Profile {
	return e.profile
}

// Bulkhead returns the profile's bulkhead, or nil when concurrency is not
// capped.
func (e *Executor) Bulkhead() *Bulkhead {
	return e.bulkhead
}

// Execute runs op under the profile.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}

	run := func(ctx context.Context) error {
		return e.retry.Execute(ctx, func(ctx context.Context) error {
			return withTimeout(ctx, e.profile.Timeout, op)
		})
	}
	if e.breaker != nil {
		attempts := run
		run = func(ctx context.Context) error {
			return e.breaker.Execute(ctx, attempts)
		}
	}
	if e.bulkhead != nil {
		return e.bulkhead.Execute(ctx, run)
	}
	return run(ctx)
}
