package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/batchrelay/internal/domain"
	"github.com/phrazzld/batchrelay/internal/platform/batchapi"
)

// batchJob is the part of a remote job the engine acts on.
type batchJob struct {
	ID           string
	Status       domain.TaskStatus
	OutputFileID string
	ErrorFileID  string
	Counts       batchapi.RequestCounts
}

func newBatchJob(job *batchapi.Job) *batchJob {
	if job == nil {
		return &batchJob{}
	}
	return &batchJob{
		ID:           job.ID,
		Status:       domain.TaskStatus(job.Status),
		OutputFileID: job.OutputFileID,
		ErrorFileID:  job.ErrorFileID,
		Counts:       job.RequestCounts,
	}
}

// Reconcile polls the remote job of a task once and applies what it observes:
// the remote status, and on completion the output and error artifacts.
//
// The task is written only when something changed, so repeated calls against
// an unchanged job are free. A task without a remote job is returned as is.
// A terminal local status is never replaced by the remote one.
// Poll failures leave the task untouched and are returned wrapped in
// ErrPollFailed. A task deleted concurrently yields ErrNotFound and no write.
func (e *Engine) Reconcile(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	log := e.log(ctx).With(slog.String("task_id", id.String()))

	t, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.HasRemoteJob() {
		return t, nil
	}

	var job *batchJob
	err = e.remote(ctx, func(ctx context.Context) error {
		remoteJob, pollErr := e.client.GetJob(ctx, t.BatchID)
		if pollErr == nil {
			job = newBatchJob(remoteJob)
		}
		return pollErr
	})
	if err != nil {
		return t, fmt.Errorf("%w: batch %s: %v", ErrPollFailed, t.BatchID, err)
	}

	next := t.Clone()
	changed := false

	switch {
	case job.Status == "" || job.Status == next.Status:
	case next.Status.IsTerminal():
		log.DebugContext(ctx, "remote status ignored for terminal task",
			slog.String("batch_id", t.BatchID),
			slog.String("status", string(next.Status)),
			slog.String("remote_status", string(job.Status)))
	default:
		log.InfoContext(ctx, "task status changed",
			slog.String("batch_id", t.BatchID),
			slog.String("from", string(next.Status)),
			slog.String("to", string(job.Status)))
		next.SetStatus(job.Status)
		changed = true
	}

	if next.Status == domain.TaskStatusCompleted {
		if e.collectArtifacts(ctx, log, next, job.OutputFileID, job.ErrorFileID) {
			changed = true
		}
	}

	if !changed {
		log.DebugContext(ctx, "task unchanged", slog.String("status", string(t.Status)))
		return t, nil
	}

	return e.persistReconciled(ctx, next)
}

// CheckStatus returns a task as stored. A completed task still missing its
// output or error file gets them fetched first. The remote job is not polled.
func (e *Engine) CheckStatus(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return e.RetryArtifacts(ctx, id)
}

// RetryArtifacts downloads artifacts of a completed task that a previous
// reconcile observed but failed to fetch. It does not poll the remote job.
func (e *Engine) RetryArtifacts(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	log := e.log(ctx).With(slog.String("task_id", id.String()))

	t, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.HasPendingArtifacts() {
		return t, nil
	}

	next := t.Clone()
	if !e.collectArtifacts(ctx, log, next, "", "") {
		return t, nil
	}
	return e.persistReconciled(ctx, next)
}

// persistReconciled writes back only the fields reconciliation owns.
func (e *Engine) persistReconciled(ctx context.Context, next *domain.Task) (*domain.Task, error) {
	return e.mutate(ctx, next.ID, func(t *domain.Task) error {
		t.Status = next.Status
		t.OutputFileID = next.OutputFileID
		t.OutputFilePath = next.OutputFilePath
		t.ErrorFileID = next.ErrorFileID
		t.ErrorFilePath = next.ErrorFilePath
		t.Result = next.Result
		t.UpdatedAt = next.UpdatedAt
		return nil
	})
}

// collectArtifacts records newly observed artifact IDs on t and downloads any
// artifact that has no local path yet. Output and error files are handled
// independently. It reports whether t changed.
func (e *Engine) collectArtifacts(
	ctx context.Context,
	log *slog.Logger,
	t *domain.Task,
	outputFileID, errorFileID string,
) bool {
	changed := false

	if outputFileID != "" && t.OutputFilePath == "" && t.OutputFileID != outputFileID {
		t.OutputFileID = outputFileID
		changed = true
	}
	if errorFileID != "" && t.ErrorFilePath == "" && t.ErrorFileID != errorFileID {
		t.ErrorFileID = errorFileID
		changed = true
	}

	if t.OutputFileID != "" && t.OutputFilePath == "" {
		path := e.files.OutputPath(t.ID)
		content, err := e.download(ctx, t.OutputFileID, path)
		if err != nil {
			log.WarnContext(ctx, "output download failed",
				slog.String("file_id", t.OutputFileID),
				slog.String("error", err.Error()))
		} else {
			result := parseOutput(content)
			if errs, ok := t.Result["errors"]; ok {
				result["errors"] = errs
			}
			t.Result = result
			t.OutputFilePath = path
			changed = true
			log.InfoContext(ctx, "output downloaded", slog.String("file_id", t.OutputFileID))
		}
	}

	if t.ErrorFileID != "" && t.ErrorFilePath == "" {
		path := e.files.ErrorPath(t.ID)
		content, err := e.download(ctx, t.ErrorFileID, path)
		if err != nil {
			log.WarnContext(ctx, "error file download failed",
				slog.String("file_id", t.ErrorFileID),
				slog.String("error", err.Error()))
		} else {
			if t.Result == nil {
				t.Result = make(map[string]any)
			}
			t.Result["errors"] = parseLines(content)
			t.ErrorFilePath = path
			changed = true
			log.InfoContext(ctx, "error file downloaded", slog.String("file_id", t.ErrorFileID))
		}
	}

	if changed {
		t.UpdatedAt = time.Now().UTC()
	}
	return changed
}

// download fetches a remote file to path and returns its content.
func (e *Engine) download(ctx context.Context, fileID, path string) ([]byte, error) {
	err := e.remote(ctx, func(ctx context.Context) error {
		_, downloadErr := e.client.DownloadFile(ctx, fileID, path)
		return downloadErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDownloadFailed, fileID, err)
	}

	content, err := e.files.ReadFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDownloadFailed, fileID, err)
	}
	return content, nil
}
