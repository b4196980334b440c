package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/phrazzld/batchrelay/internal/api/shared"
	"github.com/phrazzld/batchrelay/internal/platform/logger"
	"github.com/phrazzld/batchrelay/internal/task"
)

// BatchHandler exposes the remote batch API directly, for jobs and files
// that may not belong to any task.
type BatchHandler struct {
	engine TaskEngine
	logger *slog.Logger
}

// NewBatchHandler creates a new BatchHandler
func NewBatchHandler(engine TaskEngine, logger *slog.Logger) *BatchHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchHandler{
		engine: engine,
		logger: logger.With("component", "batch_handler"),
	}
}

// ListBatches handles GET /api/batch/list?after=&limit= requests
func (h *BatchHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	limit, err := getQueryInt(r, "limit", task.DefaultJobPageSize)
	if err != nil {
		HandleAPIError(w, r, err, "Invalid limit")
		return
	}

	page, err := h.engine.ListJobs(r.Context(), r.URL.Query().Get("after"), limit)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, page)
}

// GetBatch handles GET /api/batch/batches/{id} requests
func (h *BatchHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := getPathParam(r, "id")
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

// CancelBatch handles DELETE /api/batch/batches/{id} requests
func (h *BatchHandler) CancelBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := getPathParam(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	job, err := h.engine.CancelJob(r.Context(), batchID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, job)
}

// ListFiles handles GET /api/batch/files requests
func (h *BatchHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	page, err := h.engine.ListFiles(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, page)
}

// DeleteFile handles DELETE /api/batch/files/{id} requests
func (h *BatchHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID, err := getPathParam(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	deleted, err := h.engine.DeleteRemoteFile(r.Context(), fileID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, deleted)
}

// DownloadFile handles GET /api/batch/files/{id}/download requests.
// The remote file is copied locally, streamed to the client and removed.
func (h *BatchHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	fileID, err := getPathParam(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	downloaded, err := h.engine.DownloadRemoteFile(r.Context(), fileID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	defer func() {
		if err := h.engine.ReleaseDownload(r.Context(), downloaded); err != nil {
			logger.FromContextOrDefault(r.Context(), h.logger).Warn("failed to remove downloaded file",
				slog.String("file_id", fileID),
				slog.String("error", err.Error()))
		}
	}()

	f, err := os.Open(downloaded.Path)
	if err != nil {
		HandleAPIError(w, r, err, "File not found")
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if info.Size() == 0 {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "File is empty")
		return
	}

	contentType := "text/plain"
	if strings.HasSuffix(downloaded.Name, ".jsonl") {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloaded.Name))
	w.Header().Set("Content-Length", fmt.Sprint(info.Size()))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, f); err != nil {
		logger.FromContextOrDefault(r.Context(), h.logger).Warn("file stream interrupted",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()))
	}
}
