package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/batchrelay/internal/domain"
)

// TaskMutation is applied to a freshly loaded task inside TaskStore.Mutate.
// Returning an error aborts the mutation without writing anything.
type TaskMutation func(task *domain.Task) error

// TaskStore defines the interface for task persistence.
// Version: 1.0
type TaskStore interface {
	// Create saves a new task to the store.
	// Returns ErrTaskExists if a task with the same ID exists and
	// ErrInvalidEntity if the task fails domain validation.
	Create(ctx context.Context, task *domain.Task) error

	// Get retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListAll returns every task ordered by creation time, oldest first.
	// Returns an empty slice if there are no tasks.
	ListAll(ctx context.Context) ([]*domain.Task, error)

	// Update overwrites all mutable fields of an existing task.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, task *domain.Task) error

	// Delete removes a task. Deleting a missing task is not an error.
	Delete(ctx context.Context, id uuid.UUID) error

	// Mutate loads the task, applies fn and writes the result back as one
	// atomic read-modify-write. Returns the stored task after the write.
	// Returns ErrTaskNotFound if the task does not exist.
	Mutate(ctx context.Context, id uuid.UUID, fn TaskMutation) (*domain.Task, error)
}
