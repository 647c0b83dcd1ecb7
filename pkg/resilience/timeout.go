package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/errors"
)

// TimeoutError reports that Op did not finish within Limit. It matches both
// context.DeadlineExceeded and apperrors.ErrTimeout.
type TimeoutError struct {
	Op    string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %v", e.Op, e.Limit)
}

func (e *TimeoutError) Is(target error) bool {
	return target == context.DeadlineExceeded || target == apperrors.ErrTimeout
}

// WithTimeout runs fn under a context cancelled after timeout. fn is not
// waited for once the limit passes; it must honour its context. A
// cancelled parent is reported as such, never as a timeout.
func WithTimeout(ctx context.Context, timeout time.Duration, op string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()

	var err error
	select {
	case err = <-done:
		if err == nil || !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	case <-timeoutCtx.Done():
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	return &TimeoutError{Op: op, Limit: timeout}
}
