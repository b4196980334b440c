package task

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Placeholders used when the output file has no usable answer.
const (
	NoContentPlaceholder     = "No content found in response"
	InvalidFormatPlaceholder = "Invalid response format"
)

// ResultContent is a read-time projection of a task's artifacts.
type ResultContent struct {
	Output         *string `json:"output,omitempty"`
	OutputError    *string `json:"output_error,omitempty"`
	Error          []any   `json:"error,omitempty"`
	ErrorFileError *string `json:"error_file_error,omitempty"`
}

// FetchResultContent reads the downloaded artifacts of a task and extracts
// the model's answer from the output file. Failures reading or parsing one
// file are reported in that file's error field. Nothing is persisted.
func (e *Engine) FetchResultContent(ctx context.Context, id uuid.UUID) (*ResultContent, error) {
	t, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Result == nil {
		return nil, fmt.Errorf("%w: task %s has no result", ErrNotFound, id)
	}

	content := &ResultContent{}

	if t.OutputFilePath != "" {
		data, err := e.files.ReadFile(ctx, t.OutputFilePath)
		if err != nil {
			msg := fmt.Sprintf("failed to read output file: %v", err)
			content.OutputError = &msg
		} else {
			answer := extractAnswer(data)
			content.Output = &answer
		}
	}

	if t.ErrorFilePath != "" {
		data, err := e.files.ReadFile(ctx, t.ErrorFilePath)
		if err != nil {
			msg := fmt.Sprintf("failed to read error file: %v", err)
			content.ErrorFileError = &msg
		} else {
			content.Error = parseLines(data)
		}
	}

	return content, nil
}

// extractAnswer returns response.body.choices[0].message.content of the first
// line of an output file, or a placeholder when the envelope does not have it.
func extractAnswer(data []byte) string {
	line := firstLine(data)
	if line == "" {
		return NoContentPlaceholder
	}

	var envelope map[string]any
	if err := json.Unmarshal([]byte(line), &envelope); err != nil {
		return InvalidFormatPlaceholder
	}

	response, _ := envelope["response"].(map[string]any)
	body, _ := response["body"].(map[string]any)
	choices, _ := body["choices"].([]any)
	if len(choices) == 0 {
		return NoContentPlaceholder
	}

	choice, ok := choices[0].(map[string]any)
	if !ok {
		return InvalidFormatPlaceholder
	}
	message, _ := choice["message"].(map[string]any)
	answer, _ := message["content"].(string)
	return answer
}

func splitLines(data []byte) []string {
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func firstLine(data []byte) string {
	lines := splitLines(data)
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}

// parseOutput turns the content of an output file into a task result.
// A single JSON object line becomes the result itself; anything else is
// collected under "lines". Malformed content is kept as a parse_error record.
func parseOutput(data []byte) map[string]any {
	lines := splitLines(data)
	values := make([]any, 0, len(lines))

	for i, line := range lines {
		var v any
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			return map[string]any{
				"parse_error": fmt.Sprintf("%v: line %d: %v", ErrParseFailed, i+1, err),
				"raw":         string(data),
			}
		}
		values = append(values, v)
	}

	if len(values) == 1 {
		if obj, ok := values[0].(map[string]any); ok {
			return obj
		}
	}
	return map[string]any{"lines": values}
}

// parseLines parses a JSONL file line by line. Malformed lines are kept as
// parse_error records.
func parseLines(data []byte) []any {
	lines := splitLines(data)
	values := make([]any, 0, len(lines))

	for i, line := range lines {
		var v any
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			values = append(values, map[string]any{
				"parse_error": fmt.Sprintf("%v: line %d: %v", ErrParseFailed, i+1, err),
				"raw":         line,
			})
			continue
		}
		values = append(values, v)
	}
	return values
}
