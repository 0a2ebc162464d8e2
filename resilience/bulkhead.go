package resilience

import (
	"context"
	"fmt"
	"time"
)

// BulkheadError reports a call turned away because its profile had no free
// slot within the allowed wait.
type BulkheadError struct {
	Profile string
	Limit   int
	Waited  time.Duration
}

func (e *BulkheadError) Error() string {
	return fmt.Sprintf("resilience: %s profile at capacity (%d concurrent calls, waited %s)",
		e.Profile, e.Limit, e.Waited)
}

// Is matches ErrBulkheadFull.
func (e *BulkheadError) Is(target error) bool {
	return target == ErrBulkheadFull
}

// Bulkhead caps the calls in flight under one profile. Waiting callers
// queue on a channel semaphore.
type Bulkhead struct {
	profile string
	maxWait time.Duration
	slots   chan struct{}
}

// NewBulkhead allows limit concurrent calls for the named profile. Callers
// wait up to maxWait for a slot; zero fails at once. A limit below one is
// treated as one.
func NewBulkhead(profile string, limit int, maxWait time.Duration) *Bulkhead {
	if limit < 1 {
		limit = 1
	}
	return &Bulkhead{
		profile: profile,
		maxWait: maxWait,
		slots:   make(chan struct{}, limit),
	}
}

// Execute runs op while holding a slot.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer func() { <-b.slots }()
	return op(ctx)
}

// InFlight reports the calls currently holding a slot.
func (b *Bulkhead) InFlight() int {
	return len(b.slots)
}

// Limit reports the slot count.
func (b *Bulkhead) Limit() int {
	return cap(b.slots)
}

func (b *Bulkhead) acquire(ctx context.Context) error {
	select {
	case b.slots <- struct{}{}:
		return nil
	default:
	}
	if b.maxWait <= 0 {
		return &BulkheadError{Profile: b.profile, Limit: cap(b.slots)}
	}

	timer := time.NewTimer(b.maxWait)
	defer timer.Stop()
	select {
	case b.slots <- struct{}{}:
		return nil
	case <-timer.C:
		return &BulkheadError{Profile: b.profile, Limit: cap(b.slots), Waited: b.maxWait}
	case <-ctx.Done():
		return ctx.Err()
	}
}
