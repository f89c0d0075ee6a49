// Package cli provides the initialization shared by cmd/owed and
// cmd/owed-worker.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"owed/internal/amqp"
	"owed/internal/backend"
	"owed/internal/config"
	"owed/internal/ledger"
	"owed/internal/log"
	"owed/internal/services"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from the configured level and
// format and installs it as the slog default. An unknown level falls back
// to info; Validate reports it.
func SetupLogger(cfg *config.Config, w io.Writer) *log.Logger {
	lc := log.DefaultConfig()
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		lc.Level = level
	}
	lc.Format = cfg.LogFormat
	lc.Component = log.ComponentApp
	if w != nil {
		lc.Output = w
	}
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads the configuration, sets up the logger for
// component writing to w, and validates the configuration. A validation
// failure is logged and returned.
func LoadAndValidateConfig(w io.Writer, component string) (*config.Config, *log.Logger, error) {
	cfg := config.Load()
	logger := SetupLogger(cfg, w).WithComponent(component)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		return nil, logger, err
	}
	return cfg, logger, nil
}

// App is an opened ledger with its collaborators.
type App struct {
	Ledger  *ledger.Ledger
	Service *services.LedgerService
	// AMQP is nil when events are disabled or the broker is unreachable.
	AMQP *amqp.Client

	cleanup backend.CleanupFunc
}

// Close releases the publisher and then the store.
func (a *App) Close() error {
	var errs []error
	if err := a.Service.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.cleanup != nil {
		if err := a.cleanup(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// OpenApp opens the configured store, seeds the user registry and connects
// the event publisher. A broker that cannot be reached is logged and
// skipped: events are optional.
func OpenApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bc)
	if err != nil {
		return nil, err
	}

	l := ledger.New(res.Store,
		ledger.WithLogger(logger),
		ledger.WithBalanceCache(cfg.BalanceCacheSize, cfg.BalanceCacheTTL),
	)

	n, err := backend.SeedUsers(ctx, l, bc.SeedDir)
	if err != nil {
		res.Cleanup()
		return nil, err
	}
	if n > 0 {
		logger.DebugContext(ctx, "Seeded users", "count", n, "dir", bc.SeedDir)
	}

	app := &App{Ledger: l, cleanup: res.Cleanup}
	var publisher services.Publisher
	if cfg.EventsEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		} else {
			logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
			app.AMQP = client
			publisher = client
		}
	}
	app.Service = services.NewLedgerService(l, publisher, logger)
	return app, nil
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. After
// cancellation cleanup runs, bounded by timeout; done is closed when it
// has finished.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		defer close(done)
		<-ctx.Done()
		cancel()
		logger.Info("Shutdown signal received", log.FieldOperation, log.OpShutdown)

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
	}()

	return ctx, done
}
