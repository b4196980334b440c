package task

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/batchrelay/internal/domain"
	"github.com/phrazzld/batchrelay/internal/store"
)

// MockTaskStore implements store.TaskStore in memory for testing.
// Each method delegates to an overridable Fn hook.
type MockTaskStore struct {
	mutex  sync.RWMutex
	tasks  map[uuid.UUID]*domain.Task
	writes int

	CreateFn  func(ctx context.Context, task *domain.Task) error
	GetFn     func(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	ListAllFn func(ctx context.Context) ([]*domain.Task, error)
	UpdateFn  func(ctx context.Context, task *domain.Task) error
	DeleteFn  func(ctx context.Context, id uuid.UUID) error
	MutateFn  func(ctx context.Context, id uuid.UUID, fn store.TaskMutation) (*domain.Task, error)
}

var _ store.TaskStore = (*MockTaskStore)(nil)

// NewMockTaskStore creates a new MockTaskStore with default implementations
func NewMockTaskStore() *MockTaskStore {
	m := &MockTaskStore{
		tasks: make(map[uuid.UUID]*domain.Task),
	}

	m.CreateFn = func(ctx context.Context, task *domain.Task) error {
		if err := task.Validate(); err != nil {
			return store.ErrInvalidEntity
		}

		m.mutex.Lock()
		defer m.mutex.Unlock()

		if _, exists := m.tasks[task.ID]; exists {
			return store.ErrTaskExists
		}
		m.tasks[task.ID] = task.Clone()
		m.writes++
		return nil
	}

	m.GetFn = func(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
		m.mutex.RLock()
		defer m.mutex.RUnlock()

		task, exists := m.tasks[id]
		if !exists {
			return nil, store.ErrTaskNotFound
		}
		return task.Clone(), nil
	}

	m.ListAllFn = func(ctx context.Context) ([]*domain.Task, error) {
		m.mutex.RLock()
		defer m.mutex.RUnlock()

		tasks := make([]*domain.Task, 0, len(m.tasks))
		for _, task := range m.tasks {
			tasks = append(tasks, task.Clone())
		}
		sort.Slice(tasks, func(i, j int) bool {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		})
		return tasks, nil
	}

	m.UpdateFn = func(ctx context.Context, task *domain.Task) error {
		m.mutex.Lock()
		defer m.mutex.Unlock()

		if _, exists := m.tasks[task.ID]; !exists {
			return store.ErrTaskNotFound
		}
		m.tasks[task.ID] = task.Clone()
		m.writes++
		return nil
	}

	m.DeleteFn = func(ctx context.Context, id uuid.UUID) error {
		m.mutex.Lock()
		defer m.mutex.Unlock()

		delete(m.tasks, id)
		return nil
	}

	m.MutateFn = func(ctx context.Context, id uuid.UUID, fn store.TaskMutation) (*domain.Task, error) {
		m.mutex.Lock()
		defer m.mutex.Unlock()

		current, exists := m.tasks[id]
		if !exists {
			return nil, store.ErrTaskNotFound
		}

		task := current.Clone()
		if err := fn(task); err != nil {
			return nil, err
		}
		m.tasks[id] = task.Clone()
		m.writes++
		return task, nil
	}

	return m
}

// Create implements store.TaskStore
func (m *MockTaskStore) Create(ctx context.Context, task *domain.Task) error {
	return m.CreateFn(ctx, task)
}

// Get implements store.TaskStore
func (m *MockTaskStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return m.GetFn(ctx, id)
}

// ListAll implements store.TaskStore
func (m *MockTaskStore) ListAll(ctx context.Context) ([]*domain.Task, error) {
	return m.ListAllFn(ctx)
}

// Update implements store.TaskStore
func (m *MockTaskStore) Update(ctx context.Context, task *domain.Task) error {
	return m.UpdateFn(ctx, task)
}

// Delete implements store.TaskStore
func (m *MockTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	return m.DeleteFn(ctx, id)
}

// Mutate implements store.TaskStore
func (m *MockTaskStore) Mutate(ctx context.Context, id uuid.UUID, fn store.TaskMutation) (*domain.Task, error) {
	return m.MutateFn(ctx, id, fn)
}

// Put stores a copy of task directly, bypassing hooks and write counting.
func (m *MockTaskStore) Put(task *domain.Task) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.tasks[task.ID] = task.Clone()
}

// Writes returns how many successful writes went through the default hooks.
func (m *MockTaskStore) Writes() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.writes
}
