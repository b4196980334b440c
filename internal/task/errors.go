package task

import (
	"errors"
	"fmt"

	"github.com/phrazzld/batchrelay/internal/platform/batchapi"
	"github.com/phrazzld/batchrelay/internal/store"
)

// Engine error taxonomy. Callers inspect these with errors.Is.
var (
	// ErrNotFound is returned for unknown task identifiers, and for result
	// content requested before a task has any result.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidInput is returned when a task cannot be created from the input.
	ErrInvalidInput = errors.New("invalid task input")

	// ErrAlreadySubmitted is returned when Submit is called on a task that
	// already has a remote job or is past the validating and failed states.
	ErrAlreadySubmitted = errors.New("task already submitted")

	// ErrUploadFailed marks a submission that failed while uploading the input file.
	ErrUploadFailed = errors.New("upload failed")

	// ErrJobCreateFailed marks a submission that failed while creating the remote job.
	ErrJobCreateFailed = errors.New("job creation failed")

	// ErrPollFailed marks a reconciliation whose status poll failed.
	ErrPollFailed = errors.New("poll failed")

	// ErrDownloadFailed marks an artifact download that failed.
	ErrDownloadFailed = errors.New("download failed")

	// ErrTeardownFailed wraps the per-step failures of a cancel or delete.
	ErrTeardownFailed = errors.New("teardown failed")

	// ErrParseFailed marks artifact content that could not be parsed.
	ErrParseFailed = errors.New("parse failed")

	// ErrFileNotReady is returned when the remote API cannot serve a file yet.
	ErrFileNotReady = errors.New("file not ready")

	// ErrRemote wraps any other failure of a remote batch API call.
	ErrRemote = errors.New("remote batch API call failed")
)

// mapStoreError translates store sentinels into the engine taxonomy.
func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, store.ErrInvalidEntity):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	default:
		return err
	}
}

// mapRemoteError translates batch client failures for pass-through calls.
func mapRemoteError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, batchapi.ErrFileNotReady):
		return fmt.Errorf("%w: %s: %v", ErrFileNotReady, op, err)
	case batchapi.IsNotFound(err):
		return fmt.Errorf("%w: %s: %v", ErrNotFound, op, err)
	default:
		return fmt.Errorf("%w: %s: %v", ErrRemote, op, err)
	}
}
