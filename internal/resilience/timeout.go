package resilience

import (
	"context"
	"errors"
	"time"
)

// WithTimeout runs fn under a deadline of d and returns ErrTimeout if the
// deadline wins. fn keeps running in the background if it ignores its
// context; its late result is discarded.
func WithTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(callCtx) }()

	select {
	case err := <-done:
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return ErrTimeout
		}
		return err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTimeout
	}
}
