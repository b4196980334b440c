package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/batchrelay/internal/platform/batchapi"
)

// Defaults for ListJobs.
const (
	DefaultJobPageSize = 20
	MaxJobPageSize     = 100
)

// DownloadedFile is a remote file copied to local storage.
type DownloadedFile struct {
	// Name is the remote file name, falling back to "<file id>.jsonl".
	Name string
	// Path is the local copy. The caller owns it and should remove it.
	Path string
}

// JobStatus returns the remote job with the given ID.
func (e *Engine) JobStatus(ctx context.Context, jobID string) (*batchapi.Job, error) {
	if jobID == "" {
		return nil, fmt.Errorf("%w: batch id is empty", ErrInvalidInput)
	}

	var job *batchapi.Job
	err := e.remote(ctx, func(ctx context.Context) error {
		var err error
		job, err = e.client.GetJob(ctx, jobID)
		return err
	})
	if err != nil {
		return nil, mapRemoteError("get batch", err)
	}
	return job, nil
}

// ListJobs lists remote jobs after the given job ID. A non-positive limit
// selects DefaultJobPageSize.
func (e *Engine) ListJobs(ctx context.Context, after string, limit int) (*batchapi.JobPage, error) {
	if limit <= 0 {
		limit = DefaultJobPageSize
	}
	if limit > MaxJobPageSize {
		limit = MaxJobPageSize
	}

	var page *batchapi.JobPage
	err := e.remote(ctx, func(ctx context.Context) error {
		var err error
		page, err = e.client.ListJobs(ctx, after, limit)
		return err
	})
	if err != nil {
		return nil, mapRemoteError("list batches", err)
	}
	return page, nil
}

// CancelJob requests cancellation of a remote job that may not belong to
// any task.
func (e *Engine) CancelJob(ctx context.Context, jobID string) (*batchapi.Job, error) {
	if jobID == "" {
		return nil, fmt.Errorf("%w: batch id is empty", ErrInvalidInput)
	}

	var job *batchapi.Job
	err := e.remote(ctx, func(ctx context.Context) error {
		var err error
		job, err = e.client.CancelJob(ctx, jobID)
		return err
	})
	if err != nil {
		return nil, mapRemoteError("cancel batch", err)
	}

	e.log(ctx).InfoContext(ctx, "batch cancellation requested", slog.String("batch_id", jobID))
	return job, nil
}

// ListFiles lists the remote files.
func (e *Engine) ListFiles(ctx context.Context) (*batchapi.FilePage, error) {
	var page *batchapi.FilePage
	err := e.remote(ctx, func(ctx context.Context) error {
		var err error
		page, err = e.client.ListFiles(ctx)
		return err
	})
	if err != nil {
		return nil, mapRemoteError("list files", err)
	}
	return page, nil
}

// DeleteRemoteFile deletes a remote file.
func (e *Engine) DeleteRemoteFile(ctx context.Context, fileID string) (*batchapi.FileDeleted, error) {
	if fileID == "" {
		return nil, fmt.Errorf("%w: file id is empty", ErrInvalidInput)
	}

	var deleted *batchapi.FileDeleted
	err := e.remote(ctx, func(ctx context.Context) error {
		var err error
		deleted, err = e.client.DeleteFile(ctx, fileID)
		return err
	})
	if err != nil {
		return nil, mapRemoteError("delete file", err)
	}

	e.log(ctx).InfoContext(ctx, "remote file deleted", slog.String("file_id", fileID))
	return deleted, nil
}

// DownloadRemoteFile copies a remote file into the download area of local
// storage. ErrFileNotReady is returned while the remote cannot serve it.
func (e *Engine) DownloadRemoteFile(ctx context.Context, fileID string) (*DownloadedFile, error) {
	if fileID == "" {
		return nil, fmt.Errorf("%w: file id is empty", ErrInvalidInput)
	}

	name := fileID + ".jsonl"
	err := e.remote(ctx, func(ctx context.Context) error {
		info, err := e.client.RetrieveFile(ctx, fileID)
		if err == nil && info.Filename != "" {
			name = info.Filename
		}
		return err
	})
	if err != nil {
		if batchapi.IsNotFound(err) {
			return nil, mapRemoteError("retrieve file", err)
		}
		e.log(ctx).WarnContext(ctx, "failed to retrieve file metadata",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()))
	}

	path := e.files.DownloadPath(fileID)
	if err := e.files.Prepare(ctx, path); err != nil {
		return nil, err
	}

	err = e.remote(ctx, func(ctx context.Context) error {
		_, err := e.client.DownloadFile(ctx, fileID, path)
		return err
	})
	if err != nil {
		if errors.Is(err, batchapi.ErrFileNotReady) {
			e.log(ctx).InfoContext(ctx, "remote file not ready", slog.String("file_id", fileID))
		}
		return nil, mapRemoteError("download file", err)
	}

	return &DownloadedFile{Name: name, Path: path}, nil
}

// ReleaseDownload removes the local copy made by DownloadRemoteFile.
func (e *Engine) ReleaseDownload(ctx context.Context, file *DownloadedFile) error {
	if file == nil || file.Path == "" {
		return nil
	}
	return e.files.Remove(ctx, file.Path)
}
