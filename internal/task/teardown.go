package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/batchrelay/internal/domain"
)

// Teardown step names.
const (
	StepCancelJob        = "cancel_job"
	StepDeleteInputFile  = "delete_input_file"
	StepRemoveInputPath  = "remove_input_path"
	StepDeleteOutputFile = "delete_output_file"
	StepRemoveOutputPath = "remove_output_path"
	StepDeleteErrorFile  = "delete_error_file"
	StepRemoveErrorPath  = "remove_error_path"
	StepRemoveTaskDir    = "remove_task_dir"
	StepDeleteTaskRecord = "delete_task_record"
)

// TeardownResult is the outcome of one best-effort teardown step.
type TeardownResult struct {
	Step     string
	Resource string
	Err      error
}

// teardown runs independent steps and collects their outcomes. A failing
// step never stops the ones after it.
type teardown struct {
	results []TeardownResult
}

func (td *teardown) run(step, resource string, fn func() error) bool {
	err := fn()
	td.results = append(td.results, TeardownResult{Step: step, Resource: resource, Err: err})
	return err == nil
}

// Err joins the failed steps into a single ErrTeardownFailed report, or
// returns nil when every step succeeded.
func (td *teardown) Err() error {
	var errs []error
	for _, r := range td.results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", r.Step, r.Resource, r.Err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTeardownFailed, errors.Join(errs...))
}

func (td *teardown) report(ctx context.Context, log *slog.Logger, op string) {
	if err := td.Err(); err != nil {
		log.WarnContext(ctx, op+" completed with teardown failures",
			slog.Int("steps", len(td.results)),
			slog.String("error", err.Error()))
		return
	}
	log.DebugContext(ctx, op+" teardown completed", slog.Int("steps", len(td.results)))
}

func (e *Engine) cancelJobStep(ctx context.Context, td *teardown, batchID string) {
	td.run(StepCancelJob, batchID, func() error {
		return e.remote(ctx, func(ctx context.Context) error {
			_, err := e.client.CancelJob(ctx, batchID)
			return err
		})
	})
}

func (e *Engine) deleteRemoteFileStep(ctx context.Context, td *teardown, step, fileID string) bool {
	return td.run(step, fileID, func() error {
		return e.remote(ctx, func(ctx context.Context) error {
			_, err := e.client.DeleteFile(ctx, fileID)
			return err
		})
	})
}

func (e *Engine) removeLocalStep(ctx context.Context, td *teardown, step, path string) bool {
	return td.run(step, path, func() error {
		return e.files.Remove(ctx, path)
	})
}

// detachInput removes the remote and local input file of t and reports which
// of the two were released.
func (e *Engine) detachInput(ctx context.Context, td *teardown, t *domain.Task) (fileDeleted, pathRemoved bool) {
	if t.FileID != "" {
		fileDeleted = e.deleteRemoteFileStep(ctx, td, StepDeleteInputFile, t.FileID)
	}
	if t.FilePath != "" {
		pathRemoved = e.removeLocalStep(ctx, td, StepRemoveInputPath, t.FilePath)
	}
	return fileDeleted, pathRemoved
}

// Cancel cancels the remote job, releases the input file and moves the task
// to cancelled. Teardown failures are logged and never prevent the status
// change.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	log := e.log(ctx).With(slog.String("task_id", id.String()))

	t, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	td := &teardown{}
	if t.BatchID != "" {
		e.cancelJobStep(ctx, td, t.BatchID)
	}
	fileDeleted, pathRemoved := e.detachInput(ctx, td, t)
	td.report(ctx, log, "cancel")

	t, err = e.mutate(ctx, id, func(t *domain.Task) error {
		if fileDeleted {
			t.FileID = ""
		}
		if pathRemoved {
			t.FilePath = ""
		}
		t.SetStatus(domain.TaskStatusCancelled)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.InfoContext(ctx, "task cancelled")
	return t, nil
}

// DetachFile releases the input file of a task without touching its status.
// Only the references whose release succeeded are cleared.
func (e *Engine) DetachFile(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	log := e.log(ctx).With(slog.String("task_id", id.String()))

	t, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	td := &teardown{}
	fileDeleted, pathRemoved := e.detachInput(ctx, td, t)
	td.report(ctx, log, "detach file")

	if !fileDeleted && !pathRemoved {
		return t, nil
	}

	return e.mutate(ctx, id, func(t *domain.Task) error {
		if fileDeleted {
			t.FileID = ""
		}
		if pathRemoved {
			t.FilePath = ""
		}
		return nil
	})
}

// Delete releases every remote and local resource of the task and then
// removes its record. The returned results describe each teardown step;
// failed steps are logged and never abort the deletion.
func (e *Engine) Delete(ctx context.Context, id uuid.UUID) ([]TeardownResult, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	log := e.log(ctx).With(slog.String("task_id", id.String()))

	t, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	td := &teardown{}
	if t.BatchID != "" {
		e.cancelJobStep(ctx, td, t.BatchID)
	}
	e.detachInput(ctx, td, t)
	if t.OutputFileID != "" {
		e.deleteRemoteFileStep(ctx, td, StepDeleteOutputFile, t.OutputFileID)
	}
	if t.ErrorFileID != "" {
		e.deleteRemoteFileStep(ctx, td, StepDeleteErrorFile, t.ErrorFileID)
	}
	if t.OutputFilePath != "" {
		e.removeLocalStep(ctx, td, StepRemoveOutputPath, t.OutputFilePath)
	}
	if t.ErrorFilePath != "" {
		e.removeLocalStep(ctx, td, StepRemoveErrorPath, t.ErrorFilePath)
	}
	td.run(StepRemoveTaskDir, id.String(), func() error {
		return e.files.RemoveTaskDir(ctx, id)
	})
	td.report(ctx, log, "delete")

	if err := e.store.Delete(ctx, id); err != nil {
		return td.results, fmt.Errorf("%s: %w", StepDeleteTaskRecord, mapStoreError(err))
	}

	log.InfoContext(ctx, "task deleted")
	return td.results, nil
}
