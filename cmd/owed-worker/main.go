package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"owed/internal/cli"
	"owed/internal/config"
	"owed/internal/log"
	"owed/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cli.LoadEnvFile()

	cfg, logger, err := cli.LoadAndValidateConfig(os.Stdout, log.ComponentWorker)
	if err != nil {
		os.Exit(1)
	}
	// the worker never reads balances
	cfg.BalanceCacheSize = 0

	logger.Info("Starting owed-worker",
		log.FieldOperation, log.OpStartup,
		log.FieldBackend, cfg.DataBackend,
		"events", cfg.EventsEnabled(),
	)

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, nil)

	app, err := cli.OpenApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open ledger", log.FieldError, err)
		os.Exit(1)
	}

	runErr := run(ctx, cfg, app, logger)
	if err := app.Close(); err != nil {
		logger.Warn("Failed to close ledger", log.FieldError, err)
	}
	if runErr != nil {
		logger.Error("Worker stopped", log.FieldError, runErr)
		os.Exit(1)
	}
	<-done
}

// run supervises the worker's loops until ctx is cancelled. A loop that
// fails for any other reason stops the others.
func run(ctx context.Context, cfg *config.Config, app *cli.App, logger *log.Logger) error {
	w := worker.NewReconcileWorker(app.Ledger, cfg.ReconcileHeal, cfg.ReconcileInterval, logger)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.RunPeriodic(gctx)
	})

	if app.AMQP != nil {
		g.Go(func() error {
			return app.AMQP.ConsumeDebtRecorded(gctx, w.HandleDebtRecorded)
		})
	} else {
		logger.Info("Events disabled, relying on periodic reconcile only")
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}
