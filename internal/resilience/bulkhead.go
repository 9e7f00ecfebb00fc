package resilience

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// Bulkhead caps the number of concurrent calls to one dependency.
type Bulkhead struct {
	sem     *semaphore.Weighted
	size    int64
	maxWait time.Duration
}

// DefaultBulkheadSize matches the outbound pool size used for external lookups.
const DefaultBulkheadSize = 4

// NewBulkhead allows size concurrent calls; callers wait at most maxWait for a slot
// (0 waits as long as the caller's context allows).
func NewBulkhead(size int, maxWait time.Duration) *Bulkhead {
	if size <= 0 {
		size = DefaultBulkheadSize
	}
	return &Bulkhead{sem: semaphore.NewWeighted(int64(size)), size: int64(size), maxWait: maxWait}
}

// Execute runs fn while holding a slot, or returns ErrBulkheadFull.
func (b *Bulkhead) Execute(ctx context.Context, fn func(context.Context) error) error {
	acquireCtx := ctx
	if b.maxWait > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, b.maxWait)
		defer cancel()
	}
	if err := b.sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBulkheadFull
	}
	defer b.sem.Release(1)
	return fn(ctx)
}

// Size returns the configured concurrency cap.
func (b *Bulkhead) Size() int {
	return int(b.size)
}
