package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/batchrelay/internal/domain"
	"github.com/phrazzld/batchrelay/internal/generation"
	"github.com/phrazzld/batchrelay/internal/platform/logger"
	"github.com/phrazzld/batchrelay/internal/store"
)

// DefaultRequestTimeout bounds each remote call when EngineConfig leaves it unset.
const DefaultRequestTimeout = 60 * time.Second

// EngineConfig holds the tunables of the Engine.
type EngineConfig struct {
	// RequestTimeout bounds every individual call to the batch API.
	RequestTimeout time.Duration
}

// Engine owns the lifecycle of tasks: submission, cancellation, deletion,
// reconciliation against the remote job and result extraction.
type Engine struct {
	store   store.TaskStore
	client  BatchClient
	files   ArtifactStorage
	encoder generation.RequestEncoder
	config  EngineConfig
	logger  *slog.Logger
	locks   *keyedMutex
}

// NewEngine creates a new Engine.
// It returns an error if any dependency is nil.
func NewEngine(
	taskStore store.TaskStore,
	client BatchClient,
	files ArtifactStorage,
	encoder generation.RequestEncoder,
	cfg EngineConfig,
	log *slog.Logger,
) (*Engine, error) {
	if taskStore == nil {
		return nil, errors.New("task store cannot be nil")
	}
	if client == nil {
		return nil, errors.New("batch client cannot be nil")
	}
	if files == nil {
		return nil, errors.New("artifact storage cannot be nil")
	}
	if encoder == nil {
		return nil, errors.New("request encoder cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	return &Engine{
		store:   taskStore,
		client:  client,
		files:   files,
		encoder: encoder,
		config:  cfg,
		logger:  log.With("component", "task_engine"),
		locks:   newKeyedMutex(),
	}, nil
}

func (e *Engine) log(ctx context.Context) *slog.Logger {
	return logger.FromContextOrDefault(ctx, e.logger)
}

// remote runs fn with the per-call timeout applied.
func (e *Engine) remote(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.config.RequestTimeout)
	defer cancel()
	return fn(ctx)
}

// Create persists a new task in the validating state.
func (e *Engine) Create(ctx context.Context, content string, systemPrompt *string) (*domain.Task, error) {
	t, err := domain.NewTask(content, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if err := e.store.Create(ctx, t); err != nil {
		return nil, mapStoreError(err)
	}

	e.log(ctx).InfoContext(ctx, "task created", slog.String("task_id", t.ID.String()))
	return t, nil
}

// CreateAndSubmit creates a task and submits it right away. Submission
// failures are recorded on the returned task rather than returned as errors.
func (e *Engine) CreateAndSubmit(ctx context.Context, content string, systemPrompt *string) (*domain.Task, error) {
	t, err := e.Create(ctx, content, systemPrompt)
	if err != nil {
		return nil, err
	}
	return e.Submit(ctx, t.ID)
}

// Get returns a task by ID.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	t, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return t, nil
}

// List returns every task, oldest first.
func (e *Engine) List(ctx context.Context) ([]*domain.Task, error) {
	tasks, err := e.store.ListAll(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return tasks, nil
}

// mutate applies fn through the store and maps store errors.
func (e *Engine) mutate(ctx context.Context, id uuid.UUID, fn store.TaskMutation) (*domain.Task, error) {
	t, err := e.store.Mutate(ctx, id, fn)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return t, nil
}

// Submit encodes the task, uploads the request file and creates the remote
// job. Every step is persisted before the next one starts.
//
// Remote failures move the task to failed and are returned as the task with
// a nil error; the error is only non-nil when the task cannot be found,
// was already submitted or cannot be persisted. Only validating and failed
// tasks are submitted.
func (e *Engine) Submit(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	log := e.log(ctx).With(slog.String("task_id", id.String()))

	t, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.HasRemoteJob() {
		return t, fmt.Errorf("%w: batch %s", ErrAlreadySubmitted, t.BatchID)
	}
	if t.Status != domain.TaskStatusValidating && t.Status != domain.TaskStatusFailed {
		return t, fmt.Errorf("%w: task is %s", ErrAlreadySubmitted, t.Status)
	}

	t, err = e.mutate(ctx, id, func(t *domain.Task) error {
		t.ErrorMessage = nil
		t.SetStatus(domain.TaskStatusInProgress)
		return nil
	})
	if err != nil {
		return nil, err
	}

	payload, err := e.encoder.Encode(t)
	if err != nil {
		return e.failSubmission(ctx, log, id, fmt.Sprintf("failed to encode request: %v", err), err)
	}

	inputPath := e.files.InputPath(id)
	if err := e.files.WriteFile(ctx, inputPath, payload); err != nil {
		return e.failSubmission(ctx, log, id, fmt.Sprintf("failed to write request file: %v", err), err)
	}
	t, err = e.mutate(ctx, id, func(t *domain.Task) error {
		t.FilePath = inputPath
		t.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}

	var fileID string
	err = e.remote(ctx, func(ctx context.Context) error {
		var uploadErr error
		fileID, uploadErr = e.client.UploadFile(ctx, inputPath)
		return uploadErr
	})
	if err != nil {
		return e.failSubmission(ctx, log, id, fmt.Sprintf("failed to upload file: %v", err),
			fmt.Errorf("%w: %v", ErrUploadFailed, err))
	}
	if fileID == "" {
		return e.failSubmission(ctx, log, id, "failed to upload file: file_id is empty",
			fmt.Errorf("%w: file_id is empty", ErrUploadFailed))
	}

	t, err = e.mutate(ctx, id, func(t *domain.Task) error {
		t.FileID = fileID
		t.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.InfoContext(ctx, "request file uploaded", slog.String("file_id", fileID))

	var job *batchJob
	err = e.remote(ctx, func(ctx context.Context) error {
		created, createErr := e.client.CreateJob(ctx, fileID)
		if createErr == nil {
			job = newBatchJob(created)
		}
		return createErr
	})
	if err != nil {
		return e.failSubmission(ctx, log, id, fmt.Sprintf("failed to create batch: %v", err),
			fmt.Errorf("%w: %v", ErrJobCreateFailed, err))
	}
	if job.ID == "" {
		return e.failSubmission(ctx, log, id, "failed to create batch: batch id is empty",
			fmt.Errorf("%w: batch id is empty", ErrJobCreateFailed))
	}

	status := job.Status
	if status == "" {
		status = domain.TaskStatusValidating
	}

	t, err = e.mutate(ctx, id, func(t *domain.Task) error {
		t.BatchID = job.ID
		t.Content = domain.TruncateContent(t.Content)
		t.SetStatus(status)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.InfoContext(ctx, "batch job created",
		slog.String("batch_id", job.ID),
		slog.String("status", string(status)))
	return t, nil
}

// failSubmission records message on the task and moves it to failed.
func (e *Engine) failSubmission(
	ctx context.Context,
	log *slog.Logger,
	id uuid.UUID,
	message string,
	cause error,
) (*domain.Task, error) {
	log.ErrorContext(ctx, "task submission failed", slog.String("error", cause.Error()))

	t, err := e.mutate(ctx, id, func(t *domain.Task) error {
		t.Fail(message)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}
