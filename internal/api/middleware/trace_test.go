package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/batchrelay/internal/api/shared"
	"github.com/phrazzld/batchrelay/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceMiddleware(t *testing.T) {
	log, buf := logger.NewTestLogger()

	var seenTraceID, seenRequestID string
	handler := TraceMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenTraceID = shared.GetTraceID(r.Context())
		seenRequestID = logger.RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/task/get", nil))

	require.NotEmpty(t, seenTraceID)
	assert.Equal(t, seenTraceID, seenRequestID)
	assert.Equal(t, seenTraceID, rr.Header().Get(TraceIDHeader))
	assert.Equal(t, http.StatusTeapot, rr.Code)

	entries, err := buf.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "request completed", entries[0]["msg"])
	assert.Equal(t, "/api/task/get", entries[0]["path"])
	assert.EqualValues(t, http.StatusTeapot, entries[0]["status"])
	assert.Equal(t, seenTraceID, entries[0]["request_id"])
}
