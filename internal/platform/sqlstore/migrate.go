package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFiles embed.FS

// Supported migration commands.
const (
	MigrateUp      = "up"
	MigrateUpByOne = "up-by-one"
	MigrateUpTo    = "up-to"
	MigrateDown    = "down"
	MigrateDownTo  = "down-to"
	MigrateReset   = "reset"
	MigrateStatus  = "status"
	MigrateVersion = "version"
)

// ErrUnknownMigrateCommand is returned for commands Migrate does not support.
var ErrUnknownMigrateCommand = errors.New("unknown migration command")

func newMigrationProvider(db *sql.DB, dialect Dialect) (*goose.Provider, error) {
	fsys, err := fs.Sub(migrationFiles, "migrations/"+string(dialect))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s migrations: %w", dialect, err)
	}

	gooseDialect := goose.DialectSQLite3
	if dialect == DialectPostgres {
		gooseDialect = goose.DialectPostgres
	}

	provider, err := goose.NewProvider(gooseDialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return provider, nil
}

// Migrate runs a goose migration command against db using the embedded
// migrations for dialect. up-to and down-to take the target version as args[0].
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect, logger *slog.Logger, command string, args ...string) error {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With(
		slog.String("component", "migrations"),
		slog.String("command", command),
	)

	provider, err := newMigrationProvider(db, dialect)
	if err != nil {
		return err
	}

	var results []*goose.MigrationResult
	switch command {
	case MigrateUp:
		results, err = provider.Up(ctx)
	case MigrateUpByOne:
		var res *goose.MigrationResult
		res, err = provider.UpByOne(ctx)
		if errors.Is(err, goose.ErrNoNextVersion) {
			log.Info("no pending migrations")
			return nil
		}
		results = appendResult(results, res)
	case MigrateUpTo, MigrateDownTo:
		version, perr := targetVersion(args)
		if perr != nil {
			return perr
		}
		if command == MigrateUpTo {
			results, err = provider.UpTo(ctx, version)
		} else {
			results, err = provider.DownTo(ctx, version)
		}
	case MigrateDown:
		var res *goose.MigrationResult
		res, err = provider.Down(ctx)
		results = appendResult(results, res)
	case MigrateReset:
		results, err = provider.DownTo(ctx, 0)
	case MigrateStatus:
		return logStatus(ctx, provider, log)
	case MigrateVersion:
		version, verr := provider.GetDBVersion(ctx)
		if verr != nil {
			return fmt.Errorf("failed to get database version: %w", verr)
		}
		log.Info("current database version", slog.Int64("version", version))
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMigrateCommand, command)
	}

	for _, res := range results {
		log.Info("applied migration",
			slog.String("source", res.Source.Path),
			slog.String("direction", res.Direction),
			slog.Int64("version", res.Source.Version),
			slog.Duration("duration", res.Duration))
	}

	if err != nil {
		log.Error("migration failed", slog.String("error", err.Error()))
		return fmt.Errorf("migration %s failed: %w", command, err)
	}

	log.Info("migration completed", slog.Int("applied", len(results)))
	return nil
}

func appendResult(results []*goose.MigrationResult, res *goose.MigrationResult) []*goose.MigrationResult {
	if res == nil {
		return results
	}
	return append(results, res)
}

func targetVersion(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, errors.New("migration target version is required")
	}
	version, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid migration target version %q: %w", args[0], err)
	}
	return version, nil
}

func logStatus(ctx context.Context, provider *goose.Provider, log *slog.Logger) error {
	statuses, err := provider.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	for _, st := range statuses {
		log.Info("migration status",
			slog.String("source", st.Source.Path),
			slog.Int64("version", st.Source.Version),
			slog.String("state", string(st.State)),
			slog.Time("applied_at", st.AppliedAt))
	}
	return nil
}
