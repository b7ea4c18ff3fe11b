package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robalyx/chronicle/internal/setup"
	"github.com/robalyx/chronicle/internal/setup/telemetry"
	"github.com/robalyx/chronicle/internal/worker/core"
	"github.com/robalyx/chronicle/internal/worker/purge"
	"github.com/robalyx/chronicle/pkg/utils"
	"github.com/sourcegraph/conc"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const (
	// WorkerLogDir specifies where worker log files are stored.
	WorkerLogDir = "logs/worker_logs"

	// PurgeWorker removes stored messages past the retention window.
	PurgeWorker = "purge"

	// StatusCommand lists worker heartbeats.
	StatusCommand = "status"

	restartDelay = 5 * time.Second
)

// Worker is a long-running background job.
type Worker interface {
	Start(ctx context.Context)
}

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "worker",
		Usage: "Start the chronicle worker",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Value:   1,
				Usage:   "Number of workers to start",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  PurgeWorker,
				Usage: "Start retention purge workers",
				Action: func(ctx context.Context, c *cli.Command) error {
					return runWorkers(ctx, PurgeWorker, c.Int("workers"))
				},
			},
			{
				Name:  StatusCommand,
				Usage: "Show the status of running workers",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return showStatus(ctx)
				},
			},
		},
	}

	return app.Run(ctx, os.Args)
}

// runWorkers starts multiple instances of a worker type.
func runWorkers(ctx context.Context, workerType string, count int64) error {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceWorker, WorkerLogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.Background())

	if delay := time.Duration(app.Config.Worker.StartupDelay) * time.Millisecond; delay > 0 {
		app.Logger.Info("Delaying worker startup", zap.Duration("delay", delay))

		if utils.ContextSleep(ctx, delay) == utils.SleepCancelled {
			return nil
		}
	}

	var wg conc.WaitGroup

	for i := range count {
		workerLogger := app.LogManager.GetWorkerLogger(fmt.Sprintf("%s_worker_%d", workerType, i))

		var w Worker

		switch workerType {
		case PurgeWorker:
			w = purge.New(app, workerLogger)
		default:
			return fmt.Errorf("invalid worker type: %s", workerType)
		}

		wg.Go(func() {
			runWorker(ctx, w, workerLogger)
		})
	}

	log.Printf("Started %d %s workers", count, workerType)
	wg.Wait()
	log.Println("All workers have finished. Exiting.")

	return nil
}

// runWorker runs a single worker in a loop with panic recovery.
func runWorker(ctx context.Context, w Worker, logger *zap.Logger) {
	for {
		if utils.ContextGuardWithLog(ctx, logger, "Context cancelled, stopping worker") {
			return
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Worker execution failed",
						zap.String("worker_type", fmt.Sprintf("%T", w)),
						zap.Any("panic", r),
					)
				}
			}()

			logger.Info("Starting worker")
			w.Start(ctx)
		}()

		if ctx.Err() != nil {
			return
		}

		logger.Warn("Worker stopped unexpectedly, restarting",
			zap.String("worker_type", fmt.Sprintf("%T", w)),
			zap.Duration("delay", restartDelay),
		)

		if !utils.ErrorSleep(ctx, restartDelay, logger, "worker") {
			return
		}
	}
}

// showStatus prints the heartbeat of every live worker.
func showStatus(ctx context.Context) error {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceWorker, WorkerLogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.Background())

	statuses, err := core.NewMonitor(app.StatusClient, app.Logger).GetAllStatuses(ctx)
	if err != nil {
		return err
	}

	if len(statuses) == 0 {
		fmt.Println("No workers are reporting.")
		return nil
	}

	for _, status := range statuses {
		health := "healthy"
		if !status.IsHealthy {
			health = "unhealthy"
		}

		fmt.Printf("%s %s [%s] %s (%d%%) last seen %s ago\n",
			status.WorkerType,
			status.WorkerID,
			health,
			utils.SingleLine(status.CurrentTask),
			status.Progress,
			time.Since(status.LastSeen).Round(time.Second),
		)
	}

	return nil
}
