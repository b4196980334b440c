package main

import (
	"context"
	"log/slog"

	"github.com/phrazzld/batchrelay/internal/config"
	"github.com/phrazzld/batchrelay/internal/platform/sqlstore"
)

// handleMigrations runs a single migration command against the configured
// database and closes the connection afterwards.
func handleMigrations(ctx context.Context, cfg *config.Config, logger *slog.Logger, command string, args ...string) error {
	db, dialect, err := setupAppDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database connection", slog.String("error", err.Error()))
		}
	}()

	logger.Info("executing migrations", slog.String("command", command))
	return sqlstore.Migrate(ctx, db, dialect, logger, command, args...)
}
