package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/printhouse/textile-erp/internal/jobs"
)

// TaskTypeIdempotencyCleanup purges expired idempotency keys.
const TaskTypeIdempotencyCleanup = "idempotency:cleanup"

// KeyPurger deletes idempotency keys older than the given age.
type KeyPurger interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob removes keys older than Retention.
type IdempotencyCleanupJob struct {
	Store     KeyPurger
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob builds the cleanup handler.
func NewIdempotencyCleanupJob(store KeyPurger, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	if retention <= 0 {
		retention = 72 * time.Hour
	}
	return &IdempotencyCleanupJob{Store: store, Retention: retention, Logger: logger, Metrics: metrics}
}

// Handle implements asynq.HandlerFunc.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	tracker := j.Metrics.Track(TaskTypeIdempotencyCleanup)
	if j.Store == nil {
		return tracker.End(nil)
	}
	removed, err := j.Store.Cleanup(ctx, j.Retention)
	if err != nil {
		j.Logger.Error("idempotency cleanup", slog.Any("error", err))
		return tracker.End(err)
	}
	j.Logger.Info("idempotency cleanup", slog.Int64("removed", removed), slog.Duration("retention", j.Retention))
	return tracker.End(nil)
}

// CleanupCron schedules the cleanup task with the given cron expression.
func CleanupCron(spec, queue string) CronRegistration {
	if queue == "" {
		queue = QueueDefault
	}
	return CronRegistration{
		Spec:    spec,
		Task:    asynq.NewTask(TaskTypeIdempotencyCleanup, nil),
		Options: []asynq.Option{asynq.Queue(queue), asynq.MaxRetry(1)},
	}
}
