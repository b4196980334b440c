package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/batchrelay/internal/domain"
	"github.com/phrazzld/batchrelay/internal/platform/logger"
	"github.com/phrazzld/batchrelay/internal/store"
)

const taskColumns = `id, status, content, system_prompt, file_path, file_id, batch_id,
	output_file_id, output_file_path, error_file_id, error_file_path,
	error_message, %s, created_at, updated_at`

// TaskStore implements store.TaskStore on PostgreSQL or SQLite.
type TaskStore struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

// NewTaskStore creates a TaskStore over an open database.
// If logger is nil, a default logger will be used.
func NewTaskStore(db *sql.DB, dialect Dialect, logger *slog.Logger) *TaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &TaskStore{
		db:      db,
		dialect: dialect,
		logger:  logger.With(slog.String("component", "task_store")),
	}
}

// Ensure TaskStore implements store.TaskStore interface
var _ store.TaskStore = (*TaskStore)(nil)

func (s *TaskStore) selectQuery(where string) string {
	return s.dialect.Rebind(
		"SELECT " + fmt.Sprintf(taskColumns, s.dialect.resultColumn()) + " FROM tasks " + where,
	)
}

// Create implements store.TaskStore.Create
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	result, err := encodeResult(task.Result)
	if err != nil {
		return err
	}

	query := s.dialect.Rebind(`
		INSERT INTO tasks (id, status, content, system_prompt, file_path, file_id, batch_id,
			output_file_id, output_file_path, error_file_id, error_file_path,
			error_message, result, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`)

	_, err = s.db.ExecContext(ctx, query,
		task.ID.String(),
		string(task.Status),
		task.Content,
		nullString(task.SystemPrompt),
		task.FilePath,
		task.FileID,
		task.BatchID,
		task.OutputFileID,
		task.OutputFilePath,
		task.ErrorFileID,
		task.ErrorFilePath,
		nullString(task.ErrorMessage),
		result,
		task.CreatedAt.UTC(),
		task.UpdatedAt.UTC(),
	)
	if err != nil {
		err = MapError(err)
		if errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("%w: %s", store.ErrTaskExists, task.ID)
		}
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return wrapError("create", err)
	}

	log.Debug("task created",
		slog.String("task_id", task.ID.String()),
		slog.String("status", string(task.Status)))
	return nil
}

// Get implements store.TaskStore.Get
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return s.get(ctx, s.db, id, false)
}

func (s *TaskStore) get(ctx context.Context, db store.DBTX, id uuid.UUID, lock bool) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	where := "WHERE id = $1"
	if lock {
		where += s.dialect.lockClause()
	}

	task, err := scanTask(db.QueryRowContext(ctx, s.selectQuery(where), id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("task not found", slog.String("task_id", id.String()))
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, wrapError("get", MapError(err))
	}
	return task, nil
}

// ListAll implements store.TaskStore.ListAll
func (s *TaskStore) ListAll(ctx context.Context) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, s.selectQuery("ORDER BY created_at ASC, id ASC"))
	if err != nil {
		log.Error("failed to list tasks", slog.String("error", err.Error()))
		return nil, wrapError("list", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]*domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			log.Error("failed to scan task row", slog.String("error", err.Error()))
			return nil, wrapError("list", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		log.Error("error iterating task rows", slog.String("error", err.Error()))
		return nil, wrapError("list", MapError(err))
	}

	return tasks, nil
}

// Update implements store.TaskStore.Update
func (s *TaskStore) Update(ctx context.Context, task *domain.Task) error {
	return s.update(ctx, s.db, task)
}

func (s *TaskStore) update(ctx context.Context, db store.DBTX, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during update",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	result, err := encodeResult(task.Result)
	if err != nil {
		return err
	}

	query := s.dialect.Rebind(`
		UPDATE tasks SET
			status = $1, content = $2, system_prompt = $3, file_path = $4, file_id = $5,
			batch_id = $6, output_file_id = $7, output_file_path = $8, error_file_id = $9,
			error_file_path = $10, error_message = $11, result = $12, updated_at = $13
		WHERE id = $14
	`)

	res, err := db.ExecContext(ctx, query,
		string(task.Status),
		task.Content,
		nullString(task.SystemPrompt),
		task.FilePath,
		task.FileID,
		task.BatchID,
		task.OutputFileID,
		task.OutputFilePath,
		task.ErrorFileID,
		task.ErrorFilePath,
		nullString(task.ErrorMessage),
		result,
		task.UpdatedAt.UTC(),
		task.ID.String(),
	)
	if err != nil {
		log.Error("failed to update task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return wrapError("update", fmt.Errorf("%w: %w", store.ErrUpdateFailed, MapError(err)))
	}

	if err := CheckRowsAffected(res, store.ErrTaskNotFound); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Debug("task not found for update", slog.String("task_id", task.ID.String()))
		}
		return err
	}

	return nil
}

// Delete implements store.TaskStore.Delete
func (s *TaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM tasks WHERE id = $1`), id.String())
	if err != nil {
		log.Error("failed to delete task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return wrapError("delete", fmt.Errorf("%w: %w", store.ErrDeleteFailed, MapError(err)))
	}

	log.Debug("task deleted", slog.String("task_id", id.String()))
	return nil
}

// Mutate implements store.TaskStore.Mutate
// The row is locked with SELECT ... FOR UPDATE on PostgreSQL.
func (s *TaskStore) Mutate(ctx context.Context, id uuid.UUID, fn store.TaskMutation) (*domain.Task, error) {
	var updated *domain.Task

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		task, err := s.get(ctx, tx, id, true)
		if err != nil {
			return err
		}

		if err := fn(task); err != nil {
			return err
		}
		task.ID = id
		task.UpdatedAt = time.Now().UTC()

		if err := s.update(ctx, tx, task); err != nil {
			return err
		}
		updated = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task         domain.Task
		id           string
		status       string
		systemPrompt sql.NullString
		errorMessage sql.NullString
		result       sql.NullString
	)

	err := row.Scan(
		&id,
		&status,
		&task.Content,
		&systemPrompt,
		&task.FilePath,
		&task.FileID,
		&task.BatchID,
		&task.OutputFileID,
		&task.OutputFilePath,
		&task.ErrorFileID,
		&task.ErrorFilePath,
		&errorMessage,
		&result,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid task id %q in store: %w", id, err)
	}
	task.Status = domain.TaskStatus(status)
	if systemPrompt.Valid {
		task.SystemPrompt = &systemPrompt.String
	}
	if errorMessage.Valid {
		task.ErrorMessage = &errorMessage.String
	}
	if result.Valid && result.String != "" {
		if err := json.Unmarshal([]byte(result.String), &task.Result); err != nil {
			return nil, fmt.Errorf("invalid result for task %s: %w", id, err)
		}
	}
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()

	return &task, nil
}

func encodeResult(result map[string]any) (sql.NullString, error) {
	if result == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("%w: result is not JSON serializable: %v", store.ErrInvalidEntity, err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
