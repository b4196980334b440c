package api

import (
	"time"

	"github.com/phrazzld/batchrelay/internal/domain"
)

// CreateTaskRequest defines the payload for POST /api/task/create.
type CreateTaskRequest struct {
	Content      string  `json:"content"                 validate:"required"`
	SystemPrompt *string `json:"system_prompt,omitempty"`
}

// TaskResponse is the client view of a task.
type TaskResponse struct {
	ID             string         `json:"id"`
	Status         string         `json:"status"`
	Content        string         `json:"content"`
	SystemPrompt   *string        `json:"system_prompt"`
	FilePath       *string        `json:"file_path"`
	FileID         *string        `json:"file_id"`
	BatchID        *string        `json:"batch_id"`
	OutputFileID   *string        `json:"output_file_id"`
	OutputFilePath *string        `json:"output_file_path"`
	ErrorFileID    *string        `json:"error_file_id"`
	ErrorFilePath  *string        `json:"error_file_path"`
	ErrorMessage   *string        `json:"error_message"`
	Result         map[string]any `json:"result"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// optional turns an empty string into a JSON null.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// taskToResponse converts a domain.Task to a TaskResponse
func taskToResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		ID:             t.ID.String(),
		Status:         string(t.Status),
		Content:        t.Content,
		SystemPrompt:   t.SystemPrompt,
		FilePath:       optional(t.FilePath),
		FileID:         optional(t.FileID),
		BatchID:        optional(t.BatchID),
		OutputFileID:   optional(t.OutputFileID),
		OutputFilePath: optional(t.OutputFilePath),
		ErrorFileID:    optional(t.ErrorFileID),
		ErrorFilePath:  optional(t.ErrorFilePath),
		ErrorMessage:   t.ErrorMessage,
		Result:         t.Result,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func tasksToResponse(tasks []*domain.Task) []TaskResponse {
	resp := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, taskToResponse(t))
	}
	return resp
}
