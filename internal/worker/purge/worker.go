// Package purge deletes stored messages that have outlived the retention window.
package purge

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
	"github.com/robalyx/chronicle/internal/setup"
	"github.com/robalyx/chronicle/internal/worker/core"
	"github.com/robalyx/chronicle/pkg/utils"
	"go.uber.org/zap"
)

const (
	// WorkerType identifies purge workers in status reports.
	WorkerType = "purge"

	// LockKey guards a purge run so concurrent workers do not overlap.
	LockKey = "lock:purge"

	errorBackoff = 5 * time.Minute
)

// Purger deletes expired messages.
type Purger interface {
	PurgeExpired(ctx context.Context, retention time.Duration) (int, error)
}

// Worker periodically purges messages older than the retention window.
type Worker struct {
	purger    Purger
	client    rueidis.Client
	reporter  *core.StatusReporter
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
}

// New creates a purge worker from the application dependencies.
func New(app *setup.App, logger *zap.Logger) *Worker {
	purge := &app.Config.Worker.Purge

	return NewWorker(
		app.DB.Service().Message(),
		app.StatusClient,
		purge.RetentionDuration(),
		purge.IntervalDuration(),
		logger,
	)
}

// NewWorker creates a purge worker. The client holds the run lock and status heartbeats.
func NewWorker(purger Purger, client rueidis.Client, retention, interval time.Duration, logger *zap.Logger) *Worker {
	return &Worker{
		purger:    purger,
		client:    client,
		reporter:  core.NewStatusReporter(client, WorkerType, logger),
		retention: retention,
		interval:  interval,
		logger:    logger.Named("purge_worker"),
	}
}

// Start runs the purge loop until the context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Purge Worker started",
		zap.String("workerID", w.reporter.GetWorkerID()),
		zap.Duration("retention", w.retention),
		zap.Duration("interval", w.interval))

	w.reporter.Start(ctx)
	defer w.reporter.Stop()

	for {
		if utils.ContextGuardWithLog(ctx, w.logger, "Context cancelled, stopping purge worker") {
			return
		}

		w.reporter.SetHealthy(true)
		w.reporter.UpdateStatus("Purging expired messages", 0)

		if _, _, err := w.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}

			w.logger.Error("Failed to purge expired messages", zap.Error(err))
			w.reporter.SetHealthy(false)
			w.reporter.UpdateStatus("Waiting after failure", 0)

			if !utils.ErrorSleep(ctx, errorBackoff, w.logger, "purge worker") {
				return
			}

			continue
		}

		w.reporter.UpdateStatus("Idle", 100)

		if !utils.IntervalSleep(ctx, w.interval, w.logger, "purge worker") {
			return
		}
	}
}

// RunOnce performs a single purge if no other worker holds the run lock.
// It reports how many messages were deleted and whether the run happened.
func (w *Worker) RunOnce(ctx context.Context) (int, bool, error) {
	acquired, err := w.acquireLock(ctx)
	if err != nil {
		return 0, false, err
	}

	if !acquired {
		w.logger.Debug("Another worker holds the purge lock, skipping run")
		return 0, false, nil
	}

	affected, err := utils.WithRetry(ctx, func() (int, error) {
		return w.purger.PurgeExpired(ctx, w.retention)
	}, utils.GetWorkerRetryOptions())
	if err != nil {
		// Let the next attempt run without waiting out the lock
		if delErr := w.client.Do(context.WithoutCancel(ctx), w.client.B().Del().Key(LockKey).Build()).Error(); delErr != nil {
			w.logger.Warn("Failed to release purge lock", zap.Error(delErr))
		}

		return 0, true, fmt.Errorf("failed to purge messages: %w", err)
	}

	return affected, true, nil
}

// acquireLock takes the run lock for one interval. The lock is left to expire
// so at most one purge happens per interval across all workers.
func (w *Worker) acquireLock(ctx context.Context) (bool, error) {
	err := w.client.Do(ctx, w.client.B().Set().Key(LockKey).Value(w.reporter.GetWorkerID()).
		Nx().Ex(w.interval).Build()).Error()
	if rueidis.IsRedisNil(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to acquire purge lock: %w", err)
	}

	return true, nil
}
