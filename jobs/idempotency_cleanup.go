package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// KeyCleaner prunes idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// CleanupJob handles TaskIdempotencyCleanup.
type CleanupJob struct {
	Store   KeyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCleanupJob constructs the cleanup handler.
func NewCleanupJob(store KeyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *CleanupJob {
	return &CleanupJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle prunes expired keys.
func (j *CleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: store not configured")
	}
	var payload CleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracker := metrics.Track(TaskIdempotencyCleanup)
	err := j.Store.Cleanup(ctx, payload.Retention())
	if err != nil {
		logger.Error("idempotency cleanup failed", slog.String("job", TaskIdempotencyCleanup), slog.Any("error", err))
	} else {
		logger.Info("pruned idempotency keys", slog.String("job", TaskIdempotencyCleanup), slog.Duration("retention", payload.Retention()))
	}
	return tracker.End(err)
}
