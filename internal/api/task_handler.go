package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/batchrelay/internal/api/shared"
	"github.com/phrazzld/batchrelay/internal/domain"
	"github.com/phrazzld/batchrelay/internal/platform/batchapi"
	"github.com/phrazzld/batchrelay/internal/platform/logger"
	"github.com/phrazzld/batchrelay/internal/task"
)

// Upload limits for POST /api/task/upload.
const (
	MaxUploadFileBytes   = 1 << 20
	MaxUploadFiles       = 50
	maxUploadMemoryBytes = 8 << 20
)

// TaskEngine is the part of task.Engine the handlers depend on.
type TaskEngine interface {
	CreateAndSubmit(ctx context.Context, content string, systemPrompt *string) (*domain.Task, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	List(ctx context.Context) ([]*domain.Task, error)
	Cancel(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	DetachFile(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	CheckStatus(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	Delete(ctx context.Context, id uuid.UUID) ([]task.TeardownResult, error)
	FetchResultContent(ctx context.Context, id uuid.UUID) (*task.ResultContent, error)

	JobStatus(ctx context.Context, jobID string) (*batchapi.Job, error)
	ListJobs(ctx context.Context, after string, limit int) (*batchapi.JobPage, error)
	CancelJob(ctx context.Context, jobID string) (*batchapi.Job, error)
	ListFiles(ctx context.Context) (*batchapi.FilePage, error)
	DeleteRemoteFile(ctx context.Context, fileID string) (*batchapi.FileDeleted, error)
	DownloadRemoteFile(ctx context.Context, fileID string) (*task.DownloadedFile, error)
	ReleaseDownload(ctx context.Context, file *task.DownloadedFile) error
}

var _ TaskEngine = (*task.Engine)(nil)

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	engine    TaskEngine
	validator *validator.Validate
	logger    *slog.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(engine TaskEngine, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		engine:    engine,
		validator: validator.New(),
		logger:    logger.With("component", "task_handler"),
	}
}

func (h *TaskHandler) log(r *http.Request) *slog.Logger {
	return logger.FromContextOrDefault(r.Context(), h.logger)
}

// ListTasks handles GET /api/task/get requests
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.engine.List(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list tasks")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, tasksToResponse(tasks))
}

// GetTask handles GET /api/task/{id} requests
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	t, err := h.engine.Get(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(t))
}

// CreateTask handles POST /api/task/create requests.
// The task is submitted right away; a failed submission is reported through
// the returned task's status and error_message.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	t, err := h.engine.CreateAndSubmit(r.Context(), req.Content, req.SystemPrompt)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	h.log(r).Info("task created",
		slog.String("task_id", t.ID.String()),
		slog.String("status", string(t.Status)))
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(t))
}

// UploadTasks handles POST /api/task/upload requests.
// Every file in the files[] form field becomes one task, sharing the
// optional system_prompt form field.
func (h *TaskHandler) UploadTasks(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadFiles*MaxUploadFileBytes+maxUploadMemoryBytes)
	if err := r.ParseMultipartForm(maxUploadMemoryBytes); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid multipart form", err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files[]"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["files"]
	}
	if len(headers) == 0 {
		shared.RespondWithError(w, r, http.StatusBadRequest, "No files uploaded")
		return
	}
	if len(headers) > MaxUploadFiles {
		shared.RespondWithError(w, r, http.StatusBadRequest,
			fmt.Sprintf("Too many files, at most %d per request", MaxUploadFiles))
		return
	}

	var systemPrompt *string
	if sp := r.FormValue("system_prompt"); sp != "" {
		systemPrompt = &sp
	}

	contents := make([]string, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > MaxUploadFileBytes {
			shared.RespondWithError(w, r, http.StatusBadRequest,
				fmt.Sprintf("File %s exceeds maximum size of 1MB", fh.Filename))
			return
		}

		content, err := readUpload(fh)
		if err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest,
				fmt.Sprintf("Could not read file %s", fh.Filename), err)
			return
		}
		if strings.TrimSpace(content) == "" {
			shared.RespondWithError(w, r, http.StatusBadRequest,
				fmt.Sprintf("File %s is empty", fh.Filename))
			return
		}
		contents = append(contents, content)
	}

	tasks := make([]*domain.Task, 0, len(contents))
	for i, content := range contents {
		t, err := h.engine.CreateAndSubmit(r.Context(), content, systemPrompt)
		if err != nil {
			HandleAPIError(w, r, err, fmt.Sprintf("Failed to create task for %s", headers[i].Filename))
			return
		}
		tasks = append(tasks, t)
	}

	h.log(r).Info("tasks created from upload", slog.Int("count", len(tasks)))
	shared.RespondWithJSON(w, r, http.StatusOK, tasksToResponse(tasks))
}

func readUpload(fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, MaxUploadFileBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > MaxUploadFileBytes {
		return "", errors.New("file exceeds maximum size")
	}
	return string(data), nil
}

// CancelTask handles POST /api/task/{id}/cancel requests
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	h.respondWithTask(w, r, h.engine.Cancel)
}

// DetachFile handles DELETE /api/task/{id}/file requests
func (h *TaskHandler) DetachFile(w http.ResponseWriter, r *http.Request) {
	h.respondWithTask(w, r, h.engine.DetachFile)
}

// CheckStatus handles GET /api/task/{id}/status requests. Completed tasks get
// missing artifacts fetched; status changes come from the scheduler only.
func (h *TaskHandler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	h.respondWithTask(w, r, h.engine.CheckStatus)
}

func (h *TaskHandler) respondWithTask(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, id uuid.UUID) (*domain.Task, error),
) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	t, err := op(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(t))
}

// DeleteTask handles DELETE /api/task/{id} requests
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	results, err := h.engine.Delete(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	h.log(r).Info("task deleted",
		slog.String("task_id", id.String()),
		slog.Int("teardown_steps", len(results)),
		slog.Int("teardown_failures", failed))

	shared.RespondWithJSON(w, r, http.StatusOK, shared.MessageResponse{
		Message: fmt.Sprintf("Task %s deleted successfully", id),
	})
}

// GetBatchStatus handles GET /api/task/batches/{batch_id} requests
func (h *TaskHandler) GetBatchStatus(w http.ResponseWriter, r *http.Request) {
	batchID, err := getPathParam(r, "batch_id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	job, err := h.engine.JobStatus(r.Context(), batchID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, job)
}

// GetTaskResult handles GET /api/task/{id}/result requests
func (h *TaskHandler) GetTaskResult(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	content, err := h.engine.FetchResultContent(r.Context(), id)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			if _, getErr := h.engine.Get(r.Context(), id); getErr == nil {
				HandleAPIError(w, r, err, "Task result not found")
				return
			}
		}
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, content)
}
