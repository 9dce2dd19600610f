package scheduler

import (
	"context"
	"fmt"

	"estate_portal_backend/platform/logger"
)

// runSweep executes one sweep under the lock for its kind. A held lock is not an
// error: another process is already sweeping the same rows.
func runSweep(ctx context.Context, locker Locker, log *logger.Logger, taskType string, fn SweepFunc) error {
	if fn == nil {
		return fmt.Errorf("no sweep bound to %s", taskType)
	}

	if locker != nil {
		release, acquired, err := locker.Acquire(ctx, taskType)
		if err != nil {
			return fmt.Errorf("acquire sweep lock %s: %w", taskType, err)
		}
		if !acquired {
			log.Info("sweep skipped, lock held", "task", taskType)
			return nil
		}
		defer release()
	}

	report, err := fn(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", taskType, err)
	}
	if report.Errors > 0 {
		log.Warn("sweep finished with item errors", "task", taskType, "processed", report.Processed, "errors", report.Errors)
	}
	return nil
}
