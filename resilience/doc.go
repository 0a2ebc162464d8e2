// Package resilience provides the fault-tolerance patterns used for calls
// to the QSAR Toolbox.
//
// # Profiles
//
// Upstream calls are grouped into profiles. LightProfile (30s, 2 attempts)
// covers lookups and searches; HeavyProfile (300s, 3 attempts) covers
// predictions, profiling and metabolism simulation. NewProfileExecutor
// composes a profile with the patterns shared by every call to the same
// upstream:
//
//	cb := resilience.NewCircuitBreaker(resilience.BreakerConfig{Upstream: "toolbox"})
//	heavy := resilience.NewProfileExecutor(resilience.HeavyProfile, resilience.ProfileOptions{
//	    CircuitBreaker: cb,
//	    MaxConcurrent:  3,
//	})
//
//	err := heavy.Execute(ctx, func(ctx context.Context) error {
//	    return callToolbox(ctx)
//	})
//
// A call waits on the rate limiter, takes a bulkhead slot, passes the
// circuit breaker and then runs as retried attempts, each bounded by the
// profile timeout.
//
// # Classification
//
// Upstream responses surface as *StatusError. IsRetryable decides what is
// retried: 500, 502, 503 and 504 responses, timeouts and network errors.
// IsUpstreamFailure decides what counts against the breaker: everything
// except client errors and caller cancellation.
package resilience
