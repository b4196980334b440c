package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/batchrelay/internal/config"
	"github.com/phrazzld/batchrelay/internal/domain"
	"github.com/phrazzld/batchrelay/internal/generation"
	"github.com/phrazzld/batchrelay/internal/platform/filestore"
	"github.com/phrazzld/batchrelay/internal/task"
	"github.com/stretchr/testify/require"
)

// apiFixture wires the real handlers and engine to in-memory fakes.
type apiFixture struct {
	router http.Handler
	store  *task.MockTaskStore
	client *task.MockBatchClient
	files  *filestore.LocalStorage
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	files, err := filestore.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	encoder, err := generation.NewJSONLEncoder(config.BatchConfig{
		Model:               "qwen-turbo",
		Endpoint:            "/v1/chat/completions",
		DefaultSystemPrompt: "You are a helpful assistant.",
	})
	require.NoError(t, err)

	store := task.NewMockTaskStore()
	client := task.NewMockBatchClient()

	engine, err := task.NewEngine(store, client, files, encoder,
		task.EngineConfig{RequestTimeout: 5 * time.Second}, logger)
	require.NoError(t, err)

	r := chi.NewRouter()
	RegisterRoutes(r, NewTaskHandler(engine, logger), NewBatchHandler(engine, logger))

	return &apiFixture{router: r, store: store, client: client, files: files}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

// putTask stores a task in the given state and returns it.
func (f *apiFixture) putTask(t *testing.T, mutate func(*domain.Task)) *domain.Task {
	t.Helper()

	tk, err := domain.NewTask("Hello", nil)
	require.NoError(t, err)
	if mutate != nil {
		mutate(tk)
	}
	f.store.Put(tk)
	return tk
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), "body: %s", rr.Body.String())
	return v
}
