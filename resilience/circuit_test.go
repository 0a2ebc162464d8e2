package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// toolboxBreaker returns a breaker on a controllable clock.
func toolboxBreaker(failures int) (*CircuitBreaker, *time.Time, *[]string) {
	var transitions []string
	cb := NewCircuitBreaker(BreakerConfig{
		Upstream: "toolbox",
		Failures: failures,
		Reset:    30 * time.Second,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }
	return cb, &now, &transitions
}

func fail(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{})
	if cb.config.Failures != DefaultBreakerFailures || cb.config.Reset != DefaultBreakerReset {
		t.Errorf("config = %+v", cb.config)
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_OpensOnConsecutiveUpstreamFailures(t *testing.T) {
	cb, _, transitions := toolboxBreaker(3)
	ctx := context.Background()
	gateway := &StatusError{StatusCode: 502}

	_ = cb.Execute(ctx, fail(gateway))
	_ = cb.Execute(ctx, fail(gateway))
	_ = cb.Execute(ctx, fail(nil))
	if cb.State() != StateClosed {
		t.Fatalf("success should reset the failure count, state = %v", cb.State())
	}

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, fail(gateway))
	}
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute() error = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("open breaker let the call through")
	}
	if !strings.Contains(err.Error(), "toolbox unavailable, retry in 30s") {
		t.Errorf("error = %q, want upstream and retry time", err)
	}
	if got := strings.Join(*transitions, ","); got != "closed->open" {
		t.Errorf("transitions = %s", got)
	}
}

func TestCircuitBreaker_IgnoresClientErrorsAndCancellation(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"bad request", &StatusError{StatusCode: 400}},
		{"not found", fmt.Errorf("search: %w", &StatusError{StatusCode: 404})},
		{"caller cancelled", context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, _, _ := toolboxBreaker(1)
			for i := 0; i < 3; i++ {
				_ = cb.Execute(context.Background(), fail(tt.err))
			}
			if cb.State() != StateClosed {
				t.Errorf("State() = %v, want closed", cb.State())
			}
		})
	}
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	tests := []struct {
		name      string
		trialErr  error
		wantState State
	}{
		{"trial call succeeds", nil, StateClosed},
		{"trial call hits client error", &StatusError{StatusCode: 422}, StateClosed},
		{"trial call fails", &StatusError{StatusCode: 503}, StateOpen},
		{"trial call cancelled", context.Canceled, StateHalfOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, now, _ := toolboxBreaker(1)
			ctx := context.Background()
			_ = cb.Execute(ctx, fail(ErrTimeout))

			*now = now.Add(30 * time.Second)
			if cb.State() != StateHalfOpen {
				t.Fatalf("State() after reset period = %v, want half-open", cb.State())
			}
			if err := cb.Execute(ctx, fail(tt.trialErr)); !errors.Is(err, tt.trialErr) && err != tt.trialErr {
				t.Fatalf("trial call error = %v, want %v", err, tt.trialErr)
			}
			if cb.State() != tt.wantState {
				t.Errorf("State() = %v, want %v", cb.State(), tt.wantState)
			}
		})
	}
}

func TestCircuitBreaker_SingleTrialCall(t *testing.T) {
	cb, now, _ := toolboxBreaker(1)
	ctx := context.Background()
	_ = cb.Execute(ctx, fail(ErrTimeout))
	*now = now.Add(time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := cb.Execute(ctx, fail(nil))
	if !errors.Is(err, ErrCircuitOpen) || !strings.Contains(err.Error(), "trial call in flight") {
		t.Errorf("second call during trial error = %v, want trial rejection", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("trial call error = %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open", State(9): "unknown"} {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
