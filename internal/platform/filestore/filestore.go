package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// File names inside a task directory.
const (
	InputFileName  = "input.jsonl"
	OutputFileName = "output.jsonl"
	ErrorFileName  = "error.jsonl"

	tasksDir     = "tasks"
	downloadsDir = "downloads"
)

// ErrNotFound is returned when a file does not exist.
var ErrNotFound = errors.New("file not found")

// ErrOutsideRoot is returned for paths that escape the storage root.
var ErrOutsideRoot = errors.New("path outside storage root")

// LocalStorage keeps task artifacts on the local filesystem under
// <root>/tasks/<task id>/. All paths it hands out are absolute.
type LocalStorage struct {
	root string
	mu   sync.RWMutex
}

// NewLocalStorage creates a LocalStorage rooted at root, creating it if needed.
func NewLocalStorage(root string) (*LocalStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &LocalStorage{root: abs}, nil
}

// TaskDir returns the directory holding a task's artifacts.
func (s *LocalStorage) TaskDir(id uuid.UUID) string {
	return filepath.Join(s.root, tasksDir, id.String())
}

// InputPath returns where the task's staged request file lives.
func (s *LocalStorage) InputPath(id uuid.UUID) string {
	return filepath.Join(s.TaskDir(id), InputFileName)
}

// OutputPath returns where the task's downloaded output file lives.
func (s *LocalStorage) OutputPath(id uuid.UUID) string {
	return filepath.Join(s.TaskDir(id), OutputFileName)
}

// ErrorPath returns where the task's downloaded error file lives.
func (s *LocalStorage) ErrorPath(id uuid.UUID) string {
	return filepath.Join(s.TaskDir(id), ErrorFileName)
}

// DownloadPath returns a scratch location for an ad-hoc remote file download.
func (s *LocalStorage) DownloadPath(fileID string) string {
	return filepath.Join(s.root, downloadsDir, filepath.Base(filepath.Clean("/"+fileID)))
}

func (s *LocalStorage) check(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if abs != s.root && !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return abs, nil
}

// Prepare creates the parent directory of path.
func (s *LocalStorage) Prepare(_ context.Context, path string) error {
	full, err := s.check(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// WriteFile writes data to path atomically through a temp file and rename.
func (s *LocalStorage) WriteFile(ctx context.Context, path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Prepare(ctx, path); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// ReadFile returns the contents of path.
func (s *LocalStorage) ReadFile(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	full, err := s.check(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// Remove deletes path. A missing file is not an error.
func (s *LocalStorage) Remove(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	full, err := s.check(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// RemoveTaskDir deletes a task's directory and anything left in it.
func (s *LocalStorage) RemoveTaskDir(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.TaskDir(id)); err != nil {
		return fmt.Errorf("failed to delete task directory %s: %w", id, err)
	}
	return nil
}
