package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/batchrelay/internal/config"
	"github.com/phrazzld/batchrelay/internal/platform/sqlstore"
)

// setupAppDatabase opens the configured task database.
func setupAppDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, sqlstore.Dialect, error) {
	dialect, err := sqlstore.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, "", err
	}

	db, err := sqlstore.Open(ctx, dialect, cfg.Database.URL, logger)
	if err != nil {
		return nil, "", fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, dialect, nil
}
