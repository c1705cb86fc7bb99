package worker

import (
	"context"
	"time"

	"github.com/cyntientops/field-sync/pkg/logger"
)

// DeferredFlusher is the slice of the notification service the worker
// needs.
type DeferredFlusher interface {
	ProcessDeferred(ctx context.Context) error
}

// NotificationWorker periodically re-evaluates deferred notifications; this
// is how a notification created during quiet hours fires once the window
// ends.
type NotificationWorker struct {
	service  DeferredFlusher
	interval time.Duration
	logger   *logger.Logger
}

func NewNotificationWorker(service DeferredFlusher, interval time.Duration, log *logger.Logger) *NotificationWorker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &NotificationWorker{
		service:  service,
		interval: interval,
		logger:   log,
	}
}

func (w *NotificationWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("starting notification processor", "interval", w.interval.String())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("shutting down notification processor")
			return
		case <-ticker.C:
			if err := w.service.ProcessDeferred(ctx); err != nil {
				w.logger.Error(err, "deferred notification flush failed")
			}
		}
	}
}
