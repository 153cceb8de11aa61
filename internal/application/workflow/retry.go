package workflow

import (
	"context"
	"time"

	domainwf "github.com/garyjia/kelurahan-portal/internal/domain/workflow"
)

// withRetry repeats fn while it fails with a transient error. Each attempt is a
// whole transaction, so a failed attempt leaves nothing behind.
func (e *engineImpl) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !domainwf.IsRetryable(err) || ctx.Err() != nil {
			return err
		}

		if attempt < e.maxAttempts {
			backoff := e.backoff * time.Duration(1<<uint(attempt-1))
			e.logger.Info("Retrying workflow operation",
				"op", op,
				"attempt", attempt,
				"backoff", backoff.String(),
				"error", err,
			)
			e.metrics.ObserveRetry(op)

			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(backoff):
			}
		}
	}

	e.logger.Error("Workflow operation failed after retries",
		"op", op,
		"attempts", e.maxAttempts,
		"error", lastErr,
	)
	return lastErr
}
