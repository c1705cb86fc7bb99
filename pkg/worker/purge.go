package worker

import (
	"context"
	"time"

	"github.com/cyntientops/field-sync/internal/repository"
	"github.com/cyntientops/field-sync/pkg/logger"
)

// PurgeWorker enforces retention: completed operations past the window and
// expired notifications are deleted so the tables stay bounded. Failed and
// conflicted operations are never purged; operators inspect those.
type PurgeWorker struct {
	operations    repository.OperationRepository
	notifications repository.NotificationRepository
	retention     time.Duration
	interval      time.Duration
	logger        *logger.Logger
}

func NewPurgeWorker(
	operations repository.OperationRepository,
	notifications repository.NotificationRepository,
	retention, interval time.Duration,
	log *logger.Logger,
) *PurgeWorker {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &PurgeWorker{
		operations:    operations,
		notifications: notifications,
		retention:     retention,
		interval:      interval,
		logger:        log,
	}
}

func (w *PurgeWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("starting purge worker",
		"retention", w.retention.String(), "interval", w.interval.String())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("shutting down purge worker")
			return
		case <-ticker.C:
			w.purge(ctx)
		}
	}
}

func (w *PurgeWorker) purge(ctx context.Context) {
	cutoff := time.Now().Add(-w.retention)

	ops, err := w.operations.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		w.logger.Error(err, "failed to purge completed operations")
	} else if ops > 0 {
		w.logger.Info("purged completed operations", "count", ops)
	}

	notifs, err := w.notifications.DeleteExpired(ctx, time.Now())
	if err != nil {
		w.logger.Error(err, "failed to purge expired notifications")
	} else if notifs > 0 {
		w.logger.Info("purged expired notifications", "count", notifs)
	}
}
