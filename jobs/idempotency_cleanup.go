package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tellerdesk/tellerdesk/internal/shared"
)

// TaskTypeIdempotencyCleanup prunes expired idempotency keys.
const TaskTypeIdempotencyCleanup = "idempotency:cleanup"

// idempotencyRetention is how long processed keys stay replay-protected.
const idempotencyRetention = 30 * 24 * time.Hour

// NewIdempotencyCleanupTask constructs an Asynq task for the cleanup.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskTypeIdempotencyCleanup, nil, asynq.Queue(QueueDefault))
}

// IdempotencyCleanupJob removes keys older than the retention window.
type IdempotencyCleanupJob struct {
	store  *shared.IdempotencyStore
	logger *slog.Logger
}

// NewIdempotencyCleanupJob constructs the job.
func NewIdempotencyCleanupJob(store *shared.IdempotencyStore, logger *slog.Logger) *IdempotencyCleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdempotencyCleanupJob{store: store, logger: logger}
}

// Handle prunes expired keys.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if err := j.store.Cleanup(ctx, idempotencyRetention); err != nil {
		return err
	}
	j.logger.Info("idempotency cleanup finished")
	return nil
}
