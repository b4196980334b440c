package generation

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/batchrelay/internal/config"
	"github.com/phrazzld/batchrelay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEncoder(t *testing.T) *JSONLEncoder {
	t.Helper()

	enc, err := NewJSONLEncoder(config.BatchConfig{
		Model:               "qwen-turbo",
		Endpoint:            "/v1/chat/completions",
		DefaultSystemPrompt: "You are a helpful assistant.",
	})
	require.NoError(t, err)
	fixed := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	enc.newID = func() uuid.UUID { return fixed }
	return enc
}

func TestJSONLEncoder_Encode(t *testing.T) {
	t.Parallel()
	enc := testEncoder(t)

	task, err := domain.NewTask("Compare <a> & <b>, 你好", nil)
	require.NoError(t, err)

	data, err := enc.Encode(task)
	require.NoError(t, err)

	out := string(data)
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.Equal(t, 1, strings.Count(out, "\n"), "a task encodes to exactly one line")
	assert.Contains(t, out, "<a> & <b>", "HTML characters must not be escaped")
	assert.Contains(t, out, "你好", "non-ASCII text must be written as-is")

	var line RequestLine
	require.NoError(t, json.Unmarshal(data, &line))
	assert.Equal(t, "request-11111111-2222-3333-4444-555555555555", line.CustomID)
	assert.Equal(t, "POST", line.Method)
	assert.Equal(t, "/v1/chat/completions", line.URL)
	assert.Equal(t, "qwen-turbo", line.Body.Model)
	assert.Equal(t, []Message{
		{Role: "system", Content: "You are a helpful assistant."},
		{Role: "user", Content: "Compare <a> & <b>, 你好"},
	}, line.Body.Messages)
}

func TestJSONLEncoder_CustomSystemPrompt(t *testing.T) {
	t.Parallel()
	enc := testEncoder(t)

	prompt := "Answer in French."
	task, err := domain.NewTask("Hello", &prompt)
	require.NoError(t, err)

	data, err := enc.Encode(task)
	require.NoError(t, err)

	var line RequestLine
	require.NoError(t, json.Unmarshal(data, &line))
	assert.Equal(t, "Answer in French.", line.Body.Messages[0].Content)
}

func TestJSONLEncoder_Errors(t *testing.T) {
	t.Parallel()
	enc := testEncoder(t)

	_, err := enc.Encode(&domain.Task{})
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = NewJSONLEncoder(config.BatchConfig{Endpoint: "/v1/chat/completions"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
