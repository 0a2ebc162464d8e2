package resilience

import (
	"context"
	"math"
	"sync"
	"time"
)

// RateLimiter is a token bucket shared by every call to one upstream.
// Callers wait for a token rather than fail.
type RateLimiter struct {
	rate  float64
	burst float64
	now   func() time.Time

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// NewRateLimiter allows rate calls per second with bursts of up to burst
// calls. A burst below one defaults to the rate rounded up. It returns nil
// when rate is not positive, and a nil limiter never waits.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	if rate <= 0 {
		return nil
	}
	if burst < 1 {
		burst = int(math.Ceil(rate))
	}
	rl := &RateLimiter{rate: rate, burst: float64(burst), now: time.Now}
	rl.tokens = rl.burst
	rl.last = rl.now()
	return rl
}

// Wait blocks until a token is taken or ctx ends.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return nil
	}
	for {
		delay := rl.reserve()
		if delay == 0 {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve takes a token and returns zero, or returns the time until the
// next token is due.
func (rl *RateLimiter) reserve() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.tokens = math.Min(rl.burst, rl.tokens+now.Sub(rl.last).Seconds()*rl.rate)
	rl.last = now
	if rl.tokens >= 1 {
		rl.tokens--
		return 0
	}
	delay := time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
	if delay < time.Millisecond {
		delay = time.Millisecond
	}
	return delay
}
