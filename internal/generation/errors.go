package generation

import "errors"

// Common errors returned by the generation package
var (
	// ErrEmptyContent is returned when a task has no content to encode.
	ErrEmptyContent = errors.New("task content cannot be empty")

	// ErrEncodingFailed is returned when a request line cannot be serialized.
	ErrEncodingFailed = errors.New("failed to encode request")

	// ErrInvalidConfig is returned when the encoder configuration is invalid
	ErrInvalidConfig = errors.New("invalid encoder configuration")
)
