package resilience

import (
	"context"
	"time"
)

// WithTimeout runs op with a hard deadline. The context handed to op is
// cancelled at the deadline; if op ignores it, WithTimeout still returns a
// TimeoutError and leaves op to finish in the background.
func WithTimeout(ctx context.Context, dependency string, d time.Duration, op func(ctx context.Context) error) error {
	if d <= 0 {
		return op(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(callCtx)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil && callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return &TimeoutError{Dependency: dependency, After: d}
		}
		return err
	case <-timer.C:
		return &TimeoutError{Dependency: dependency, After: d}
	case <-ctx.Done():
		return ctx.Err()
	}
}
