package batchapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/phrazzld/batchrelay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(config.BatchConfig{
		BaseURL:          srv.URL + "/v1/",
		APIKey:           "sk-test",
		Endpoint:         "/v1/chat/completions",
		CompletionWindow: "24h",
		RequestTimeout:   5 * time.Second,
	}, nil)
	require.NoError(t, err)
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestNewClient_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewClient(config.BatchConfig{BaseURL: "http://x"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewClient(config.BatchConfig{APIKey: "k"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestClient_UploadFile(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/files", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "batch", r.FormValue("purpose"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "input.jsonl", hdr.Filename)
		assert.Equal(t, `{"custom_id":"request-1"}`+"\n", string(data))

		writeJSON(t, w, http.StatusOK, File{ID: "file-abc", Object: "file", Purpose: "batch"})
	}))

	path := filepath.Join(t.TempDir(), "input.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"custom_id":"request-1"}`+"\n"), 0o600))

	id, err := c.UploadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "file-abc", id)
}

func TestClient_CreateJob(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/batches", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body createJobRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "file-abc", body.InputFileID)
		assert.Equal(t, "/v1/chat/completions", body.Endpoint)
		assert.Equal(t, "24h", body.CompletionWindow)

		writeJSON(t, w, http.StatusOK, Job{ID: "batch_1", Status: "validating", InputFileID: "file-abc"})
	}))

	job, err := c.CreateJob(context.Background(), "file-abc")
	require.NoError(t, err)
	assert.Equal(t, "batch_1", job.ID)
	assert.Equal(t, "validating", job.Status)
}

func TestClient_GetJob(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/batches/batch_1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "batch_1", "object": "batch", "status": "completed",
			"input_file_id": "file-abc", "output_file_id": "file-out", "error_file_id": null,
			"request_counts": {"total": 2, "completed": 1, "failed": 1},
			"created_at": 1700000000, "completed_at": 1700000100
		}`)
	}))

	job, err := c.GetJob(context.Background(), "batch_1")
	require.NoError(t, err)
	assert.Equal(t, "completed", job.Status)
	assert.Equal(t, "file-out", job.OutputFileID)
	assert.Empty(t, job.ErrorFileID)
	assert.Equal(t, RequestCounts{Total: 2, Completed: 1, Failed: 1}, job.RequestCounts)
	require.NotNil(t, job.CompletedAt)
	assert.Equal(t, int64(1700000100), *job.CompletedAt)
}

func TestClient_APIError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusNotFound, map[string]any{
			"error": map[string]any{"message": "No batch found", "type": "invalid_request_error", "code": "not_found"},
		})
	}))

	_, err := c.GetJob(context.Background(), "missing")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "invalid_request_error", apiErr.Type)
	assert.Equal(t, "not_found", apiErr.Code)
	assert.Equal(t, "No batch found", apiErr.Message)
	assert.True(t, IsNotFound(err))
}

func TestClient_PlainTextError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))

	_, err := c.ListFiles(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream exploded", apiErr.Message)
}

func TestClient_CancelJobAndDeleteFile(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/batches/batch_1/cancel", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, Job{ID: "batch_1", Status: "cancelling"})
	})
	mux.HandleFunc("DELETE /v1/files/file-abc", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, FileDeleted{ID: "file-abc", Object: "file", Deleted: true})
	})
	c := newTestClient(t, mux)

	job, err := c.CancelJob(context.Background(), "batch_1")
	require.NoError(t, err)
	assert.Equal(t, "cancelling", job.Status)

	res, err := c.DeleteFile(context.Background(), "file-abc")
	require.NoError(t, err)
	assert.True(t, res.Deleted)
}

func TestClient_ListJobsAndFiles(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/batches", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "batch_0", r.URL.Query().Get("after"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		writeJSON(t, w, http.StatusOK, JobPage{Object: "list", Data: []Job{{ID: "batch_1"}}, HasMore: true})
	})
	mux.HandleFunc("GET /v1/files", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, FilePage{Object: "list", Data: []File{{ID: "file-abc", Filename: "input.jsonl"}}})
	})
	mux.HandleFunc("GET /v1/files/file-abc", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, File{ID: "file-abc", Filename: "input.jsonl", Bytes: 42})
	})
	c := newTestClient(t, mux)

	jobs, err := c.ListJobs(context.Background(), "batch_0", 20)
	require.NoError(t, err)
	require.Len(t, jobs.Data, 1)
	assert.True(t, jobs.HasMore)

	files, err := c.ListFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, files.Data, 1)
	assert.Equal(t, "input.jsonl", files.Data[0].Filename)

	file, err := c.RetrieveFile(context.Background(), "file-abc")
	require.NoError(t, err)
	assert.Equal(t, int64(42), file.Bytes)
}

func TestClient_DownloadFile(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/files/file-out/content", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"r1"}`+"\n")
	})
	mux.HandleFunc("GET /v1/files/file-pending/content", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusNotAcceptable, map[string]any{
			"error": map[string]any{"message": "file not ready", "type": "invalid_request_error"},
		})
	})
	c := newTestClient(t, mux)

	dir := t.TempDir()
	target := filepath.Join(dir, "tasks", "t1", "output.jsonl")

	path, err := c.DownloadFile(context.Background(), "file-out", target)
	require.NoError(t, err)
	assert.Equal(t, target, path)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"r1"}`+"\n", string(data))

	pending := filepath.Join(dir, "pending.jsonl")
	_, err = c.DownloadFile(context.Background(), "file-pending", pending)
	assert.ErrorIs(t, err, ErrFileNotReady)
	_, statErr := os.Stat(pending)
	assert.True(t, os.IsNotExist(statErr), "no file should be written when the download fails")

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files should not be left behind")
}
