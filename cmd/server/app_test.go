package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/batchrelay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBatchAPI is a minimal in-memory OpenAI-compatible files/batches server.
type fakeBatchAPI struct {
	mu        sync.Mutex
	jobStatus string
	files     map[string]string
	deleted   []string
	cancelled []string
}

func newFakeBatchAPI(t *testing.T) *httptest.Server {
	t.Helper()

	api := &fakeBatchAPI{
		jobStatus: "in_progress",
		files: map[string]string{
			"file-out": `{"id":"r1","response":{"body":{"choices":[{"message":{"content":"Hi there"}}]}}}` + "\n",
		},
	}

	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	job := func(id string) map[string]any {
		api.mu.Lock()
		defer api.mu.Unlock()
		out := map[string]any{"id": id, "object": "batch", "status": api.jobStatus, "input_file_id": "file-in"}
		if api.jobStatus == "completed" {
			out["output_file_id"] = "file-out"
		}
		return out
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /files", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": "file-in", "object": "file", "purpose": "batch"})
	})
	mux.HandleFunc("POST /batches", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, job("batch-1"))
	})
	mux.HandleFunc("GET /batches/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, job(r.PathValue("id")))
	})
	mux.HandleFunc("POST /batches/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.cancelled = append(api.cancelled, r.PathValue("id"))
		api.mu.Unlock()
		writeJSON(w, map[string]any{"id": r.PathValue("id"), "status": "cancelling"})
	})
	mux.HandleFunc("GET /files/{id}/content", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		content, ok := api.files[r.PathValue("id")]
		api.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]any{"error": map[string]any{"message": "no such file"}})
			return
		}
		_, _ = io.WriteString(w, content)
	})
	mux.HandleFunc("DELETE /files/{id}", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.deleted = append(api.deleted, r.PathValue("id"))
		api.mu.Unlock()
		writeJSON(w, map[string]any{"id": r.PathValue("id"), "object": "file", "deleted": true})
	})

	// Lets tests complete the job.
	mux.HandleFunc("POST /test/complete", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.jobStatus = "completed"
		api.mu.Unlock()
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()

	dir := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{Port: 8123, LogLevel: "debug"},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			URL:    "file:" + filepath.Join(dir, "batchrelay.db"),
		},
		Batch: config.BatchConfig{
			BaseURL:             baseURL,
			APIKey:              "sk-test",
			Model:               "qwen-turbo",
			Endpoint:            "/v1/chat/completions",
			CompletionWindow:    "24h",
			RequestTimeout:      5 * time.Second,
			DefaultSystemPrompt: "You are a helpful assistant.",
		},
		Scheduler: config.SchedulerConfig{Interval: time.Minute, Concurrency: 2},
		Storage:   config.StorageConfig{DataDir: filepath.Join(dir, "data")},
	}
}

func newTestApplication(t *testing.T) (*application, *httptest.Server) {
	t.Helper()

	remote := newFakeBatchAPI(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	app, err := newApplication(context.Background(), testConfig(t, remote.URL), logger)
	require.NoError(t, err)
	t.Cleanup(app.cleanup)
	return app, remote
}

func serve(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	app, _ := newTestApplication(t)

	rr := serve(t, app.setupRouter(), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestNewApplication_BadDriver(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Database.Driver = "mysql"

	_, err := newApplication(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Error(t, err)
}

func TestTaskLifecycle(t *testing.T) {
	app, remote := newTestApplication(t)
	router := app.setupRouter()

	rr := serve(t, router, http.MethodPost, "/api/task/create", []byte(`{"content":"Hello"}`))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Trace-ID"))

	var created map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "in_progress", created["status"])
	assert.Equal(t, "batch-1", created["batch_id"])
	assert.Equal(t, "file-in", created["file_id"])
	id := created["id"].(string)

	rr = serve(t, router, http.MethodGet, "/api/task/"+id+"/result", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	resp, err := http.Post(remote.URL+"/test/complete", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()

	rr = serve(t, router, http.MethodGet, "/api/task/"+id+"/status", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var checked map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &checked))
	assert.Equal(t, "in_progress", checked["status"], "checking status does not poll")

	summary := app.scheduler.Tick(context.Background())
	assert.Equal(t, 1, summary.Reconciled)

	rr = serve(t, router, http.MethodGet, "/api/task/"+id+"/status", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var reconciled map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &reconciled))
	assert.Equal(t, "completed", reconciled["status"])
	assert.Equal(t, "file-out", reconciled["output_file_id"])
	assert.NotNil(t, reconciled["output_file_path"])

	rr = serve(t, router, http.MethodGet, "/api/task/"+id+"/result", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"output":"Hi there"}`, rr.Body.String())

	rr = serve(t, router, http.MethodGet, "/api/task/get", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var listed []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listed))
	require.Len(t, listed, 1)

	rr = serve(t, router, http.MethodDelete, "/api/task/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = serve(t, router, http.MethodGet, "/api/task/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCancelledTaskIsNotRevived(t *testing.T) {
	app, _ := newTestApplication(t)
	router := app.setupRouter()
	ctx := context.Background()

	rr := serve(t, router, http.MethodPost, "/api/task/create", []byte(`{"content":"Hello"}`))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var created map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	id := created["id"].(string)

	rr = serve(t, router, http.MethodPost, "/api/task/"+id+"/cancel", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = serve(t, router, http.MethodGet, "/api/task/"+id+"/status", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var checked map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &checked))
	assert.Equal(t, "cancelled", checked["status"])

	for range 3 {
		summary := app.scheduler.Tick(ctx)
		assert.Equal(t, 1, summary.Skipped)
	}

	rr = serve(t, router, http.MethodGet, "/api/task/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var stored map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stored))
	assert.Equal(t, "cancelled", stored["status"])
}
