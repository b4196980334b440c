package task

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/phrazzld/batchrelay/internal/platform/batchapi"
)

// MockBatchClient implements BatchClient for testing.
// Each method delegates to an overridable Fn hook and is counted.
type MockBatchClient struct {
	mutex sync.Mutex
	calls map[string]int

	// Files holds the content served by the default DownloadFile hook.
	Files map[string][]byte

	UploadFileFn   func(ctx context.Context, localPath string) (string, error)
	CreateJobFn    func(ctx context.Context, inputFileID string) (*batchapi.Job, error)
	GetJobFn       func(ctx context.Context, jobID string) (*batchapi.Job, error)
	DownloadFileFn func(ctx context.Context, fileID, localPath string) (string, error)
	CancelJobFn    func(ctx context.Context, jobID string) (*batchapi.Job, error)
	DeleteFileFn   func(ctx context.Context, fileID string) (*batchapi.FileDeleted, error)
	ListJobsFn     func(ctx context.Context, after string, limit int) (*batchapi.JobPage, error)
	ListFilesFn    func(ctx context.Context) (*batchapi.FilePage, error)
	RetrieveFileFn func(ctx context.Context, fileID string) (*batchapi.File, error)
}

var _ BatchClient = (*MockBatchClient)(nil)

// NewMockBatchClient creates a MockBatchClient whose default hooks succeed.
func NewMockBatchClient() *MockBatchClient {
	m := &MockBatchClient{
		calls: make(map[string]int),
		Files: make(map[string][]byte),
	}

	m.UploadFileFn = func(ctx context.Context, localPath string) (string, error) {
		return "file-1", nil
	}
	m.CreateJobFn = func(ctx context.Context, inputFileID string) (*batchapi.Job, error) {
		return &batchapi.Job{ID: "job-1", Status: "in_progress", InputFileID: inputFileID}, nil
	}
	m.GetJobFn = func(ctx context.Context, jobID string) (*batchapi.Job, error) {
		return &batchapi.Job{ID: jobID, Status: "in_progress"}, nil
	}
	m.DownloadFileFn = func(ctx context.Context, fileID, localPath string) (string, error) {
		m.mutex.Lock()
		content, ok := m.Files[fileID]
		m.mutex.Unlock()
		if !ok {
			return "", &batchapi.APIError{StatusCode: 404, Message: "file not found"}
		}
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(localPath, content, 0o644); err != nil {
			return "", err
		}
		return localPath, nil
	}
	m.CancelJobFn = func(ctx context.Context, jobID string) (*batchapi.Job, error) {
		return &batchapi.Job{ID: jobID, Status: "cancelling"}, nil
	}
	m.DeleteFileFn = func(ctx context.Context, fileID string) (*batchapi.FileDeleted, error) {
		return &batchapi.FileDeleted{ID: fileID, Object: "file", Deleted: true}, nil
	}
	m.ListJobsFn = func(ctx context.Context, after string, limit int) (*batchapi.JobPage, error) {
		return &batchapi.JobPage{Object: "list"}, nil
	}
	m.ListFilesFn = func(ctx context.Context) (*batchapi.FilePage, error) {
		return &batchapi.FilePage{Object: "list"}, nil
	}
	m.RetrieveFileFn = func(ctx context.Context, fileID string) (*batchapi.File, error) {
		return &batchapi.File{ID: fileID, Object: "file", Filename: fileID + ".jsonl"}, nil
	}

	return m
}

func (m *MockBatchClient) record(method string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.calls[method]++
}

// Calls returns how many times method was invoked.
func (m *MockBatchClient) Calls(method string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.calls[method]
}

// SetFile registers content for the default DownloadFile hook.
func (m *MockBatchClient) SetFile(fileID string, content []byte) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Files[fileID] = content
}

// UploadFile implements BatchClient
func (m *MockBatchClient) UploadFile(ctx context.Context, localPath string) (string, error) {
	m.record("UploadFile")
	return m.UploadFileFn(ctx, localPath)
}

// CreateJob implements BatchClient
func (m *MockBatchClient) CreateJob(ctx context.Context, inputFileID string) (*batchapi.Job, error) {
	m.record("CreateJob")
	return m.CreateJobFn(ctx, inputFileID)
}

// GetJob implements BatchClient
func (m *MockBatchClient) GetJob(ctx context.Context, jobID string) (*batchapi.Job, error) {
	m.record("GetJob")
	return m.GetJobFn(ctx, jobID)
}

// DownloadFile implements BatchClient
func (m *MockBatchClient) DownloadFile(ctx context.Context, fileID, localPath string) (string, error) {
	m.record("DownloadFile")
	return m.DownloadFileFn(ctx, fileID, localPath)
}

// CancelJob implements BatchClient
func (m *MockBatchClient) CancelJob(ctx context.Context, jobID string) (*batchapi.Job, error) {
	m.record("CancelJob")
	return m.CancelJobFn(ctx, jobID)
}

// DeleteFile implements BatchClient
func (m *MockBatchClient) DeleteFile(ctx context.Context, fileID string) (*batchapi.FileDeleted, error) {
	m.record("DeleteFile")
	return m.DeleteFileFn(ctx, fileID)
}

// ListJobs implements BatchClient
func (m *MockBatchClient) ListJobs(ctx context.Context, after string, limit int) (*batchapi.JobPage, error) {
	m.record("ListJobs")
	return m.ListJobsFn(ctx, after, limit)
}

// ListFiles implements BatchClient
func (m *MockBatchClient) ListFiles(ctx context.Context) (*batchapi.FilePage, error) {
	m.record("ListFiles")
	return m.ListFilesFn(ctx)
}

// RetrieveFile implements BatchClient
func (m *MockBatchClient) RetrieveFile(ctx context.Context, fileID string) (*batchapi.File, error) {
	m.record("RetrieveFile")
	return m.RetrieveFileFn(ctx, fileID)
}
