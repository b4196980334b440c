package generation

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/batchrelay/internal/config"
	"github.com/phrazzld/batchrelay/internal/domain"
)

// CustomIDPrefix prefixes the custom_id of every encoded request line.
const CustomIDPrefix = "request-"

// RequestEncoder turns a task into the contents of a batch input file.
// This interface is the boundary between the task engine and the remote
// API's wire format.
type RequestEncoder interface {
	// Encode returns the JSONL bytes for task, one request per line,
	// each line terminated by a newline.
	Encode(task *domain.Task) ([]byte, error)
}

// Message is one chat message in a request body.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RequestBody is the chat completion request sent for each line.
type RequestBody struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

// RequestLine is one line of a batch input file.
type RequestLine struct {
	CustomID string      `json:"custom_id"`
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Body     RequestBody `json:"body"`
}

// JSONLEncoder encodes a task as a single chat completion request line.
type JSONLEncoder struct {
	model               string
	endpoint            string
	defaultSystemPrompt string
	newID               func() uuid.UUID
}

var _ RequestEncoder = (*JSONLEncoder)(nil)

// NewJSONLEncoder creates an encoder from the batch configuration.
func NewJSONLEncoder(cfg config.BatchConfig) (*JSONLEncoder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model cannot be empty", ErrInvalidConfig)
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint cannot be empty", ErrInvalidConfig)
	}

	return &JSONLEncoder{
		model:               cfg.Model,
		endpoint:            cfg.Endpoint,
		defaultSystemPrompt: cfg.DefaultSystemPrompt,
		newID:               uuid.New,
	}, nil
}

// Encode implements RequestEncoder.
func (e *JSONLEncoder) Encode(task *domain.Task) ([]byte, error) {
	if task == nil || task.Content == "" {
		return nil, ErrEmptyContent
	}

	systemPrompt := e.defaultSystemPrompt
	if task.SystemPrompt != nil && *task.SystemPrompt != "" {
		systemPrompt = *task.SystemPrompt
	}

	line := RequestLine{
		CustomID: CustomIDPrefix + e.newID().String(),
		Method:   "POST",
		URL:      e.endpoint,
		Body: RequestBody{
			Model: e.model,
			Messages: []Message{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: task.Content},
			},
		},
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(line); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodingFailed, err)
	}
	return buf.Bytes(), nil
}
