package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask(t *testing.T) {
	t.Parallel()

	prompt := "You are terse."
	task, err := NewTask("Hello", &prompt)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, task.ID)
	assert.Equal(t, TaskStatusValidating, task.Status)
	assert.Equal(t, "Hello", task.Content)
	require.NotNil(t, task.SystemPrompt)
	assert.Equal(t, prompt, *task.SystemPrompt)
	assert.False(t, task.CreatedAt.IsZero())
	assert.Empty(t, task.BatchID)
	assert.Nil(t, task.Result)

	_, err = NewTask("", nil)
	assert.ErrorIs(t, err, ErrEmptyTaskContent)

	empty := ""
	task, err = NewTask("Hello", &empty)
	require.NoError(t, err)
	assert.Nil(t, task.SystemPrompt, "empty system prompt should be treated as absent")
}

func TestTaskValidate(t *testing.T) {
	t.Parallel()

	valid := Task{ID: uuid.New(), Content: "x", Status: TaskStatusInProgress}
	assert.NoError(t, valid.Validate())

	noID := valid
	noID.ID = uuid.Nil
	assert.ErrorIs(t, noID.Validate(), ErrEmptyTaskID)

	noStatus := valid
	noStatus.Status = ""
	assert.ErrorIs(t, noStatus.Validate(), ErrInvalidTaskStatus)

	unknown := valid
	unknown.Status = "paused"
	assert.NoError(t, unknown.Validate())
	assert.False(t, unknown.Status.IsTerminal())
	assert.False(t, unknown.Status.SkipsPolling())
}

func TestTaskStatusSets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status       TaskStatus
		terminal     bool
		skipsPolling bool
	}{
		{TaskStatusValidating, false, false},
		{TaskStatusInProgress, false, false},
		{TaskStatusFinalizing, false, false},
		{TaskStatusExpiring, false, false},
		{TaskStatusFailed, true, false},
		{TaskStatusCompleted, true, true},
		{TaskStatusExpired, true, true},
		{TaskStatusCancelled, true, true},
		{TaskStatusCancelling, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.skipsPolling, tt.status.SkipsPolling())
		})
	}
}

func TestTruncateContent(t *testing.T) {
	t.Parallel()

	exact := strings.Repeat("a", ContentDisplayLimit)
	long := strings.Repeat("b", ContentDisplayLimit+1)
	multibyte := strings.Repeat("世", ContentDisplayLimit+5)

	assert.Equal(t, "Hello", TruncateContent("Hello"))
	assert.Equal(t, exact, TruncateContent(exact))
	assert.Equal(t, strings.Repeat("b", ContentDisplayLimit)+TruncationMarker, TruncateContent(long))
	assert.Equal(t, strings.Repeat("世", ContentDisplayLimit)+TruncationMarker, TruncateContent(multibyte))
}

func TestTaskHasPendingArtifacts(t *testing.T) {
	t.Parallel()

	task := Task{Status: TaskStatusCompleted, OutputFileID: "out-1"}
	assert.True(t, task.HasPendingArtifacts())

	task.OutputFilePath = "/data/tasks/x/output.jsonl"
	assert.False(t, task.HasPendingArtifacts())

	task.ErrorFileID = "err-1"
	assert.True(t, task.HasPendingArtifacts())

	task.Status = TaskStatusInProgress
	assert.False(t, task.HasPendingArtifacts())
}

func TestTaskClone(t *testing.T) {
	t.Parallel()

	msg := "boom"
	task := &Task{
		ID:           uuid.New(),
		Status:       TaskStatusCompleted,
		Content:      "x",
		ErrorMessage: &msg,
		Result: map[string]any{
			"errors": []any{map[string]any{"code": "bad"}},
		},
	}

	clone := task.Clone()
	clone.Result["errors"].([]any)[0].(map[string]any)["code"] = "changed"
	*clone.ErrorMessage = "other"

	assert.Equal(t, "bad", task.Result["errors"].([]any)[0].(map[string]any)["code"])
	assert.Equal(t, "boom", *task.ErrorMessage)
}
