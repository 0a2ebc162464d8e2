package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// withTimeout runs one attempt bounded by d. An attempt still running at
// the deadline is abandoned and reported as ErrTimeout, even when op
// ignores ctx. A non-positive d runs op unbounded.
func withTimeout(ctx context.Context, d time.Duration, op func(context.Context) error) error {
	if d <= 0 {
		return op(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- op(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrTimeout, d)
		}
		return ctx.Err()
	}
}
