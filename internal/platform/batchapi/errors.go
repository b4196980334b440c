package batchapi

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrFileNotReady is returned when the API refuses to serve file content
	// yet (HTTP 406).
	ErrFileNotReady = errors.New("file content not ready")

	// ErrInvalidConfig is returned by NewClient for unusable settings.
	ErrInvalidConfig = errors.New("invalid batch client configuration")
)

// APIError is a non-2xx response from the batch API.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("batchapi: status %d: %s (%s): %s", e.StatusCode, e.Type, e.Code, e.Message)
	}
	if e.Type != "" {
		return fmt.Sprintf("batchapi: status %d: %s: %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("batchapi: status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
