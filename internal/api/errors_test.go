package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/batchrelay/internal/domain"
	"github.com/phrazzld/batchrelay/internal/task"
	"github.com/stretchr/testify/assert"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	validationErr := validator.New().Struct(CreateTaskRequest{})

	testCases := []struct {
		name     string
		err      error
		expected int
	}{
		{"not found", task.ErrNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("get: %w", task.ErrNotFound), http.StatusNotFound},
		{"file not ready", task.ErrFileNotReady, http.StatusNotAcceptable},
		{"already submitted", task.ErrAlreadySubmitted, http.StatusConflict},
		{"invalid input", task.ErrInvalidInput, http.StatusBadRequest},
		{"domain validation", domain.ErrValidation, http.StatusBadRequest},
		{"invalid id", domain.ErrInvalidID, http.StatusBadRequest},
		{"validator errors", validationErr, http.StatusBadRequest},
		{"remote failure", fmt.Errorf("%w: list files: timeout", task.ErrRemote), http.StatusInternalServerError},
		{"poll failure", task.ErrPollFailed, http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, MapErrorToStatusCode(tc.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil", nil, "An unexpected error occurred"},
		{"not found", fmt.Errorf("%w: task abc", task.ErrNotFound), "Task not found"},
		{"invalid id", domain.ErrInvalidID, "Invalid ID"},
		{"remote", task.ErrRemote, "Batch API request failed"},
		{"already submitted", task.ErrAlreadySubmitted, "Task already submitted"},
		{
			"internal details are hidden",
			errors.New("pq: connection to postgres://admin:secret@db failed"),
			"An unexpected error occurred",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, GetSafeErrorMessage(tc.err))
		})
	}
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()

	err := validator.New().Struct(CreateTaskRequest{})
	assert.Equal(t, "Invalid content: required field", SanitizeValidationError(err))
	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("other")))
}
