package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/batchrelay/internal/config"
	"github.com/phrazzld/batchrelay/internal/generation"
	"github.com/phrazzld/batchrelay/internal/platform/batchapi"
	"github.com/phrazzld/batchrelay/internal/platform/filestore"
	"github.com/phrazzld/batchrelay/internal/platform/sqlstore"
	"github.com/phrazzld/batchrelay/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	engine    *task.Engine
	scheduler *task.Scheduler
}

// newApplication connects to the database, brings the schema up to date and
// wires the engine and scheduler. On error every resource opened so far is
// released.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (app *application, err error) {
	db, dialect, err := setupAppDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = db.Close()
		}
	}()

	if err = sqlstore.Migrate(ctx, db, dialect, logger, sqlstore.MigrateUp); err != nil {
		return nil, err
	}

	files, err := filestore.NewLocalStorage(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare data directory: %w", err)
	}

	client, err := batchapi.NewClient(cfg.Batch, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch client: %w", err)
	}

	encoder, err := generation.NewJSONLEncoder(cfg.Batch)
	if err != nil {
		return nil, fmt.Errorf("failed to create request encoder: %w", err)
	}

	taskStore := sqlstore.NewTaskStore(db, dialect, logger)

	engine, err := task.NewEngine(taskStore, client, files, encoder,
		task.EngineConfig{RequestTimeout: cfg.Batch.RequestTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task engine: %w", err)
	}

	scheduler := task.NewScheduler(engine, taskStore, task.SchedulerConfig{
		Interval:    cfg.Scheduler.Interval,
		Concurrency: cfg.Scheduler.Concurrency,
		RunOnStart:  cfg.Scheduler.RunOnStart,
	}, logger)

	return &application{
		config:    cfg,
		logger:    logger,
		db:        db,
		engine:    engine,
		scheduler: scheduler,
	}, nil
}

// Run starts the scheduler and serves HTTP until the process is signalled or
// ctx is cancelled.
func (app *application) Run(ctx context.Context) error {
	if err := app.scheduler.Start(); err != nil {
		app.cleanup()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return app.startHTTPServer(ctx, app.setupRouter())
}

// cleanup stops background work and closes the database.
func (app *application) cleanup() {
	app.scheduler.Stop()

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database connection", slog.String("error", err.Error()))
		} else {
			app.logger.Info("database connection closed")
		}
	}
}
