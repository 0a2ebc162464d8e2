package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the reset period has passed.
	StateOpen
	// StateHalfOpen lets a single trial call through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Default breaker settings for the QSAR Toolbox.
const (
	DefaultBreakerFailures = 5
	DefaultBreakerReset    = 30 * time.Second
)

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	// Upstream names the guarded service in errors.
	// Default: "upstream"
	Upstream string

	// Failures is the number of consecutive upstream failures that opens
	// the breaker.
	// Default: 5
	Failures int

	// Reset is how long the breaker stays open before it lets one trial
	// call through.
	// Default: 30s
	Reset time.Duration

	// OnStateChange observes transitions. It runs under the breaker lock
	// and must not call back into the breaker.
	OnStateChange func(from, to State)
}

// CircuitBreaker stops calling an upstream that keeps failing. Only
// failures classified by IsUpstreamFailure count: client errors leave the
// failure count at zero, and caller cancellation changes nothing.
type CircuitBreaker struct {
	config BreakerConfig
	now    func() time.Time

	mu           sync.Mutex
	state        State
	failures     int
	openedAt     time.Time
	trialRunning bool
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.Upstream == "" {
		cfg.Upstream = "upstream"
	}
	if cfg.Failures <= 0 {
		cfg.Failures = DefaultBreakerFailures
	}
	if cfg.Reset <= 0 {
		cfg.Reset = DefaultBreakerReset
	}
	return &CircuitBreaker{config: cfg, now: time.Now}
}

// Execute runs op unless the breaker is open. Rejections wrap
// ErrCircuitOpen.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := op(ctx)
	cb.record(err)
	return err
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked()
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.stateLocked() {
	case StateOpen:
		wait := cb.openedAt.Add(cb.config.Reset).Sub(cb.now())
		return fmt.Errorf("%w: %s unavailable, retry in %s", ErrCircuitOpen, cb.config.Upstream, wait.Round(time.Second))
	case StateHalfOpen:
		if cb.trialRunning {
			return fmt.Errorf("%w: %s trial call in flight", ErrCircuitOpen, cb.config.Upstream)
		}
		cb.trialRunning = true
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// Outcomes of calls admitted before the breaker opened are ignored.
	if cb.state == StateOpen {
		return
	}

	switch {
	case errors.Is(err, context.Canceled):
		cb.trialRunning = false
	case IsUpstreamFailure(err):
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.config.Failures {
			cb.openedAt = cb.now()
			cb.transition(StateOpen)
		}
	default:
		cb.failures = 0
		cb.transition(StateClosed)
	}
}

func (cb *CircuitBreaker) stateLocked() State {
	if cb.state == StateOpen && !cb.now().Before(cb.openedAt.Add(cb.config.Reset)) {
		cb.transition(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.trialRunning = false
	if from == to {
		return
	}
	cb.state = to
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, to)
	}
}
