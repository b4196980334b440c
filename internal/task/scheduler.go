package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/batchrelay/internal/domain"
	"github.com/phrazzld/batchrelay/internal/store"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

// ErrSchedulerStarted is returned by Start when the scheduler is already running.
var ErrSchedulerStarted = errors.New("scheduler already started")

// SchedulerConfig holds configuration for the reconciliation scheduler
type SchedulerConfig struct {
	// Interval between two ticks
	Interval time.Duration

	// Concurrency bounds how many tasks are reconciled at once within a tick
	Concurrency int

	// RunOnStart runs one tick as soon as the scheduler starts
	RunOnStart bool
}

// DefaultSchedulerConfig returns a SchedulerConfig with reasonable defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:    time.Minute,
		Concurrency: 4,
		RunOnStart:  true,
	}
}

// Reconciler applies remote job state to a single task.
// Engine implements it.
type Reconciler interface {
	Reconcile(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	RetryArtifacts(ctx context.Context, id uuid.UUID) (*domain.Task, error)
}

var _ Reconciler = (*Engine)(nil)

// TickSummary counts what a tick did.
type TickSummary struct {
	Listed     int
	Skipped    int
	Reconciled int
	Failed     int
	// Overlapped is true when the tick did not run because the previous
	// one was still in flight.
	Overlapped bool
}

// Scheduler periodically reconciles every task that is still being
// processed remotely.
type Scheduler struct {
	reconciler Reconciler
	store      store.TaskStore
	config     SchedulerConfig
	logger     *slog.Logger

	running    sync.Mutex
	mu         sync.Mutex
	started    bool
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewScheduler creates a new Scheduler
func NewScheduler(
	reconciler Reconciler,
	taskStore store.TaskStore,
	config SchedulerConfig,
	logger *slog.Logger,
) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		reconciler: reconciler,
		store:      taskStore,
		config:     config,
		logger:     logger.With("component", "task_scheduler"),
	}
}

// Start launches the tick loop in the background.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrSchedulerStarted
	}
	s.started = true
	s.ctx, s.cancelFunc = context.WithCancel(context.Background())

	s.logger.Info("starting task scheduler",
		"interval", s.config.Interval.String(),
		"concurrency", s.config.Concurrency,
		"run_on_start", s.config.RunOnStart)

	s.wg.Add(1)
	go s.loop()

	return nil
}

// Stop prevents future ticks and waits for the in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.cancelFunc()
	s.mu.Unlock()

	s.logger.Info("stopping task scheduler")
	s.wg.Wait()
	s.logger.Info("task scheduler stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	// An in-flight tick is allowed to finish after Stop.
	tickCtx := context.WithoutCancel(s.ctx)

	if s.config.RunOnStart {
		s.Tick(tickCtx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Tick(tickCtx)
		}
	}
}

// Tick runs a single reconciliation pass over all tasks. A tick that starts
// while another is running returns immediately with Overlapped set.
func (s *Scheduler) Tick(ctx context.Context) TickSummary {
	if !s.running.TryLock() {
		s.logger.WarnContext(ctx, "previous tick still running, skipping")
		return TickSummary{Overlapped: true}
	}
	defer s.running.Unlock()

	start := time.Now()

	tasks, err := s.store.ListAll(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list tasks", "error", err)
		return TickSummary{}
	}

	summary := TickSummary{Listed: len(tasks)}
	var skipped, reconciled, failed atomic.Int64

	p := pool.New().WithMaxGoroutines(s.config.Concurrency)
	for _, t := range tasks {
		if !s.shouldVisit(ctx, t) {
			skipped.Add(1)
			continue
		}

		p.Go(func() {
			if err := s.visit(ctx, t); err != nil {
				failed.Add(1)
				return
			}
			reconciled.Add(1)
		})
	}
	p.Wait()

	summary.Skipped = int(skipped.Load())
	summary.Reconciled = int(reconciled.Load())
	summary.Failed = int(failed.Load())

	s.logger.InfoContext(ctx, "tick completed",
		"listed", summary.Listed,
		"skipped", summary.Skipped,
		"reconciled", summary.Reconciled,
		"failed", summary.Failed,
		"duration", time.Since(start).String())

	return summary
}

// shouldVisit applies the skip rules. Completed tasks are only revisited to
// fetch artifacts a previous tick failed to download.
func (s *Scheduler) shouldVisit(ctx context.Context, t *domain.Task) bool {
	if t.Status.SkipsPolling() {
		if t.HasPendingArtifacts() {
			return true
		}
		s.logger.DebugContext(ctx, "skipping task",
			"task_id", t.ID.String(),
			"status", string(t.Status))
		return false
	}
	if !t.HasRemoteJob() {
		s.logger.DebugContext(ctx, "skipping task without batch job",
			"task_id", t.ID.String(),
			"status", string(t.Status))
		return false
	}
	return true
}

// visit reconciles one task. Panics are recovered and reported as errors.
func (s *Scheduler) visit(ctx context.Context, t *domain.Task) (err error) {
	var catcher panics.Catcher
	catcher.Try(func() {
		if t.Status.SkipsPolling() {
			_, err = s.reconciler.RetryArtifacts(ctx, t.ID)
		} else {
			_, err = s.reconciler.Reconcile(ctx, t.ID)
		}
	})
	if r := catcher.Recovered(); r != nil {
		err = fmt.Errorf("reconcile panicked: %w", r.AsError())
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		s.logger.DebugContext(ctx, "task disappeared during tick", "task_id", t.ID.String())
		return nil
	default:
		s.logger.ErrorContext(ctx, "failed to reconcile task",
			"task_id", t.ID.String(),
			"batch_id", t.BatchID,
			"error", err)
		return err
	}
}
