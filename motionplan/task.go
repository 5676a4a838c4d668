package motionplan

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/motionkit/logging"
	"go.viam.com/motionkit/utils"
)

// ErrTaskAlreadyStarted is returned when a Task is started twice.
var ErrTaskAlreadyStarted = errors.New("task already started")

// Task runs one function on its own goroutine. It is started and stopped explicitly and polled with IsRunning.
// Stop only requests cancellation; the function has to check its context at loop boundaries.
type Task struct {
	name   string
	run    func(context.Context)
	logger logging.Logger

	mu      sync.Mutex
	workers utils.StoppableWorkers
	running atomic.Bool
}

// NewTask returns a task that has not been started.
func NewTask(name string, run func(context.Context), logger logging.Logger) *Task {
	return &Task{name: name, run: run, logger: logger}
}

// NewPlanningTask wraps mp.Plan. Planning errors are logged; the planner keeps its result.
func NewPlanningTask(name string, mp MotionPlanner, logger logging.Logger) *Task {
	return NewTask(name, func(ctx context.Context) {
		solved, err := mp.Plan(ctx)
		if err != nil {
			logger.Errorw("planning failed", "task", name, "error", err)
			return
		}
		logger.Debugw("planning finished", "task", name, "solved", solved)
	}, logger)
}

// NewShortcutTask wraps sp.Optimize with a fixed loop budget.
func NewShortcutTask(name string, sp *ShortcutProcessor, loops int, logger logging.Logger) *Task {
	return NewTask(name, func(ctx context.Context) {
		sp.Optimize(ctx, loops)
	}, logger)
}

// Name returns the task name.
func (t *Task) Name() string {
	return t.name
}

// Start runs the task under a context derived from ctx.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.workers != nil {
		return errors.Wrap(ErrTaskAlreadyStarted, t.name)
	}
	t.running.Store(true)
	t.workers = utils.NewStoppableWorkersWithContext(ctx, func(ctx context.Context) {
		defer t.running.Store(false)
		t.run(ctx)
	})
	t.logger.Debugw("task started", "task", t.name)
	return nil
}

// Stop requests cancellation and waits for the task to return. Stopping a task that never started does nothing.
func (t *Task) Stop() {
	t.mu.Lock()
	workers := t.workers
	t.mu.Unlock()
	if workers == nil {
		return
	}
	workers.Stop()
}

// Started reports whether Start has been called. A task runs at most once.
func (t *Task) Started() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.workers != nil
}

// IsRunning reports whether the task has been started and has not returned yet.
func (t *Task) IsRunning() bool {
	return t.running.Load()
}

// Wait blocks until the task returns or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	t.mu.Lock()
	workers := t.workers
	t.mu.Unlock()
	if workers == nil {
		return errors.Errorf("task %s not started", t.name)
	}
	select {
	case <-workers.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
