package domain

import (
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// TaskStatus mirrors the lifecycle state of a batch job. Before a remote job
// exists the status is purely local (validating, or failed at submission).
type TaskStatus string

// Possible task status values. The strings match the remote batch API.
const (
	TaskStatusValidating TaskStatus = "validating"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusFinalizing TaskStatus = "finalizing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusExpiring   TaskStatus = "expiring"
	TaskStatusExpired    TaskStatus = "expired"
	TaskStatusCancelling TaskStatus = "cancelling"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

const (
	// ContentDisplayLimit is the number of characters of content kept once
	// the remote job has been created.
	ContentDisplayLimit = 200

	// TruncationMarker is appended to content cut at ContentDisplayLimit.
	TruncationMarker = "..."
)

// Validation errors for Task
var (
	ErrEmptyTaskID       = errors.New("task ID cannot be empty")
	ErrEmptyTaskContent  = errors.New("task content cannot be empty")
	ErrInvalidTaskStatus = errors.New("invalid task status")
)

// IsTerminal reports whether s is final. Reconciliation never replaces a
// terminal status with the remote one.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusExpired, TaskStatusCancelled, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// SkipsPolling reports whether the reconciliation scheduler leaves a task in
// this status alone. This differs from IsTerminal: failed tasks are still
// polled, and cancelling tasks are not.
func (s TaskStatus) SkipsPolling() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusExpired, TaskStatusCancelling, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Task is the locally tracked unit of work wrapping one submission to the
// remote batch API. Empty strings mean "absent" for the file and job fields.
type Task struct {
	ID             uuid.UUID      `json:"id"`
	Status         TaskStatus     `json:"status"`
	Content        string         `json:"content"`
	SystemPrompt   *string        `json:"system_prompt"`
	FilePath       string         `json:"file_path,omitempty"`
	FileID         string         `json:"file_id,omitempty"`
	BatchID        string         `json:"batch_id,omitempty"`
	OutputFileID   string         `json:"output_file_id,omitempty"`
	OutputFilePath string         `json:"output_file_path,omitempty"`
	ErrorFileID    string         `json:"error_file_id,omitempty"`
	ErrorFilePath  string         `json:"error_file_path,omitempty"`
	ErrorMessage   *string        `json:"error_message"`
	Result         map[string]any `json:"result"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewTask creates a task in the validating state with a fresh identifier.
// A nil or empty systemPrompt means the default prompt is used at encoding time.
func NewTask(content string, systemPrompt *string) (*Task, error) {
	if systemPrompt != nil && *systemPrompt == "" {
		systemPrompt = nil
	}

	now := time.Now().UTC()
	task := &Task{
		ID:           uuid.New(),
		Status:       TaskStatusValidating,
		Content:      content,
		SystemPrompt: systemPrompt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Unknown but non-empty statuses are accepted, since the status mirrors the remote job.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.Content == "" {
		return ErrEmptyTaskContent
	}

	if t.Status == "" {
		return ErrInvalidTaskStatus
	}

	return nil
}

// SetStatus changes the status and bumps UpdatedAt.
func (t *Task) SetStatus(status TaskStatus) {
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
}

// Fail moves the task to failed and records message.
func (t *Task) Fail(message string) {
	t.ErrorMessage = &message
	t.SetStatus(TaskStatusFailed)
}

// HasRemoteJob reports whether a batch job was created for the task.
func (t *Task) HasRemoteJob() bool {
	return t.BatchID != ""
}

// HasPendingArtifacts reports whether a completed task knows about an output or
// error file that has not been downloaded yet.
func (t *Task) HasPendingArtifacts() bool {
	if t.Status != TaskStatusCompleted {
		return false
	}
	return (t.OutputFileID != "" && t.OutputFilePath == "") ||
		(t.ErrorFileID != "" && t.ErrorFilePath == "")
}

// Clone returns a deep copy of the task, including its result payload.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}

	c := *t
	if t.SystemPrompt != nil {
		sp := *t.SystemPrompt
		c.SystemPrompt = &sp
	}
	if t.ErrorMessage != nil {
		msg := *t.ErrorMessage
		c.ErrorMessage = &msg
	}
	if t.Result != nil {
		c.Result = cloneValue(t.Result).(map[string]any)
	}
	return &c
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = cloneValue(item)
		}
		return m
	case []any:
		s := make([]any, len(val))
		for i, item := range val {
			s[i] = cloneValue(item)
		}
		return s
	default:
		return val
	}
}

// TruncateContent applies the display policy used after a successful
// submission: content longer than ContentDisplayLimit characters is cut to
// that many characters followed by TruncationMarker.
func TruncateContent(content string) string {
	if utf8.RuneCountInString(content) <= ContentDisplayLimit {
		return content
	}

	runes := []rune(content)
	return string(runes[:ContentDisplayLimit]) + TruncationMarker
}
