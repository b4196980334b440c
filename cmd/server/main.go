// Package main implements the entry point for the batchrelay server, which
// turns prompts into jobs on an OpenAI-compatible batch API and tracks them
// until their results are downloaded.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/phrazzld/batchrelay/internal/config"
	"github.com/phrazzld/batchrelay/internal/platform/logger"
)

func main() {
	migrateCmd := flag.String("migrate", "",
		"Run a database migration command (up, up-by-one, up-to, down, down-to, reset, status, version) and exit")
	flag.Parse()

	if err := run(*migrateCmd, flag.Args()); err != nil {
		slog.Error("batchrelay exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run loads configuration and logging, then either executes a migration
// command or serves until interrupted.
func run(migrateCmd string, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	l.Info("server configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("model", cfg.Batch.Model))

	ctx := context.Background()

	if migrateCmd != "" {
		return handleMigrations(ctx, cfg, l, migrateCmd, args...)
	}

	app, err := newApplication(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}
