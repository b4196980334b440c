package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/batchrelay/internal/api/shared"
	"github.com/phrazzld/batchrelay/internal/domain"
	"github.com/phrazzld/batchrelay/internal/task"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var validationErrs validator.ValidationErrors

	switch {
	case errors.Is(err, task.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, task.ErrFileNotReady):
		return http.StatusNotAcceptable

	case errors.Is(err, task.ErrAlreadySubmitted):
		return http.StatusConflict

	case errors.Is(err, task.ErrInvalidInput),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.As(err, &validationErrs):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErrs validator.ValidationErrors

	switch {
	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid ID"

	case errors.As(err, &validationErrs):
		return SanitizeValidationError(err)

	case errors.Is(err, task.ErrNotFound):
		return "Task not found"

	case errors.Is(err, task.ErrFileNotReady):
		return "File is not available for download or is in an invalid state"

	case errors.Is(err, task.ErrAlreadySubmitted):
		return "Task already submitted"

	case errors.Is(err, task.ErrInvalidInput),
		errors.Is(err, domain.ErrValidation):
		return "Invalid task data"

	case errors.Is(err, task.ErrRemote):
		return "Batch API request failed"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return "Validation error"
	}

	fe := validationErrs[0]
	return fmt.Sprintf("Invalid %s: %s", strings.ToLower(fe.Field()), getValidationTagMessage(fe.Tag()))
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the error response for err. A non-empty message
// overrides the derived safe message.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := MapErrorToStatusCode(err)
	if message == "" {
		message = GetSafeErrorMessage(err)
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}
