package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/batchrelay/internal/api/shared"
	"github.com/phrazzld/batchrelay/internal/platform/logger"
)

// TraceIDHeader carries the trace ID of every response.
const TraceIDHeader = "X-Trace-ID"

// TraceMiddleware adds a trace ID to the request context and the X-Trace-ID
// response header, registers it as the request ID picked up by
// logger.FromContextOrDefault, and logs each request once it completes.
// It should be applied early so later handlers see the trace ID.
func TraceMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.SetTraceID(r.Context())
			traceID := shared.GetTraceID(ctx)

			ctx = logger.WithRequestID(ctx, traceID)
			w.Header().Set(TraceIDHeader, traceID)

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r.WithContext(ctx))

			logger.FromContextOrDefault(ctx, base).Debug("request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)))
		})
	}
}
