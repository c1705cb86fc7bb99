package worker

import (
	"context"
	"time"

	"github.com/cyntientops/field-sync/internal/netstatus"
	"github.com/cyntientops/field-sync/pkg/logger"
)

// Drainer is the slice of the sync engine the worker needs.
type Drainer interface {
	Drain(ctx context.Context) error
}

// DrainWorker runs periodic drain passes and one extra pass on every
// offline-to-online transition.
type DrainWorker struct {
	engine   Drainer
	network  netstatus.Monitor
	interval time.Duration
	logger   *logger.Logger
}

func NewDrainWorker(engine Drainer, network netstatus.Monitor, interval time.Duration, log *logger.Logger) *DrainWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &DrainWorker{
		engine:   engine,
		network:  network,
		interval: interval,
		logger:   log,
	}
}

func (w *DrainWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("starting sync drain worker", "interval", w.interval.String())

	changes := w.network.Subscribe()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("shutting down sync drain worker")
			return
		case online := <-changes:
			if !online {
				continue
			}
			w.logger.Info("back online, draining queue")
			if err := w.engine.Drain(ctx); err != nil {
				w.logger.Error(err, "drain after reconnect failed")
			}
		case <-ticker.C:
			if err := w.engine.Drain(ctx); err != nil {
				w.logger.Error(err, "periodic drain failed")
			}
		}
	}
}
