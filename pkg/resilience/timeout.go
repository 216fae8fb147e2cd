package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithTimeout calls fn with a context that expires after timeout. When that
// deadline, and not the caller's context, ends the call, the error names the
// operation and still matches context.DeadlineExceeded. A non-positive timeout
// calls fn with ctx unchanged. fn must return once its context is done.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(tctx)
	if err == nil || ctx.Err() != nil {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || tctx.Err() != nil {
		return fmt.Errorf("%s timed out after %v: %w", name, timeout, context.DeadlineExceeded)
	}
	return err
}
