// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"github.com/dalemusser/trackhub/internal/app/store/outbox"
	"github.com/dalemusser/trackhub/internal/app/store/users"
	"go.uber.org/zap"
)

// ResetTokenCleanupJob creates a job that clears expired password reset
// tokens so stale tokens cannot linger on user documents.
func ResetTokenCleanupJob(userStore *users.Store, logger *zap.Logger) Job {
	return Job{
		Name:     "reset-token-cleanup",
		Interval: 15 * time.Minute,
		Run: func(ctx context.Context) error {
			count, err := userStore.ClearExpiredResetTokens(ctx)
			if err != nil {
				return err
			}
			if count > 0 {
				logger.Debug("cleared expired reset tokens", zap.Int64("count", count))
			}
			return nil
		},
	}
}

// OutboxPurgeJob creates a job that deletes sent notification events
// older than the retention window.
func OutboxPurgeJob(outboxStore *outbox.Store, logger *zap.Logger, retention time.Duration) Job {
	return Job{
		Name:     "outbox-purge",
		Interval: 1 * time.Hour,
		Run: func(ctx context.Context) error {
			count, err := outboxStore.PurgeSentBefore(ctx, time.Now().UTC().Add(-retention))
			if err != nil {
				return err
			}
			if count > 0 {
				logger.Debug("purged sent outbox events", zap.Int64("count", count))
			}
			return nil
		},
	}
}
