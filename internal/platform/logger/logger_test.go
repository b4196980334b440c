package logger_test

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/phrazzld/batchrelay/internal/config"
	"github.com/phrazzld/batchrelay/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWithWriter(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	tests := []struct {
		name       string
		level      string
		debugShown bool
		infoShown  bool
		warnLogged bool
	}{
		{name: "debug", level: "debug", debugShown: true, infoShown: true},
		{name: "info", level: "info", infoShown: true},
		{name: "error", level: "ERROR"},
		{name: "invalid falls back to info", level: "chatty", infoShown: true, warnLogged: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &logger.TestLogBuffer{}
			l, err := logger.SetupWithWriter(config.ServerConfig{LogLevel: tt.level, Port: 8123}, buf)
			require.NoError(t, err)
			require.NotNil(t, l)

			l.Debug("debug message")
			l.Info("info message")

			out := buf.String()
			assert.Equal(t, tt.debugShown, strings.Contains(out, "debug message"))
			assert.Equal(t, tt.infoShown, strings.Contains(out, "info message"))
			assert.Equal(t, tt.warnLogged, strings.Contains(out, "invalid log level configured"))
			assert.Same(t, l, slog.Default())
		})
	}
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	l, buf := logger.NewTestLogger()
	fallback, fallbackBuf := logger.NewTestLogger()

	ctx := logger.WithLogger(context.Background(), l)
	ctx = logger.WithRequestID(ctx, "req-123")

	logger.FromContextOrDefault(ctx, fallback).Info("from context")
	logger.FromContextOrDefault(context.Background(), fallback).Info("from fallback")

	entries, err := buf.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "from context", entries[0]["msg"])
	assert.Equal(t, "req-123", entries[0]["request_id"])

	assert.Contains(t, fallbackBuf.String(), "from fallback")
	assert.Equal(t, "req-123", logger.RequestID(ctx))
	assert.NotNil(t, logger.FromContext(context.Background()))
}
