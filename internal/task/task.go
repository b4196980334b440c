package task

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/batchrelay/internal/platform/batchapi"
)

// BatchClient is the remote batch API as seen by the engine.
// Version: 1.0
type BatchClient interface {
	// UploadFile uploads a local request file and returns its remote file ID.
	UploadFile(ctx context.Context, localPath string) (string, error)

	// CreateJob starts a batch job over an uploaded input file.
	CreateJob(ctx context.Context, inputFileID string) (*batchapi.Job, error)

	// GetJob returns the current state of a batch job.
	GetJob(ctx context.Context, jobID string) (*batchapi.Job, error)

	// DownloadFile writes a remote file's content to localPath.
	DownloadFile(ctx context.Context, fileID, localPath string) (string, error)

	// CancelJob requests cancellation of a batch job.
	CancelJob(ctx context.Context, jobID string) (*batchapi.Job, error)

	// DeleteFile deletes a remote file.
	DeleteFile(ctx context.Context, fileID string) (*batchapi.FileDeleted, error)

	// ListJobs lists batch jobs after the given job ID.
	ListJobs(ctx context.Context, after string, limit int) (*batchapi.JobPage, error)

	// ListFiles lists remote files.
	ListFiles(ctx context.Context) (*batchapi.FilePage, error)

	// RetrieveFile returns a remote file's metadata.
	RetrieveFile(ctx context.Context, fileID string) (*batchapi.File, error)
}

// ArtifactStorage owns the task-scoped local files.
// Version: 1.0
type ArtifactStorage interface {
	InputPath(id uuid.UUID) string
	OutputPath(id uuid.UUID) string
	ErrorPath(id uuid.UUID) string
	DownloadPath(fileID string) string

	WriteFile(ctx context.Context, path string, data []byte) error
	ReadFile(ctx context.Context, path string) ([]byte, error)
	Remove(ctx context.Context, path string) error
	RemoveTaskDir(ctx context.Context, id uuid.UUID) error
	Prepare(ctx context.Context, path string) error
}

var _ BatchClient = (*batchapi.Client)(nil)
