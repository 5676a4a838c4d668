package utils

import (
	"context"
	"sync"

	goutils "go.viam.com/utils"
)

// StoppableWorkers is a collection of goroutines that can be stopped at a later time.
type StoppableWorkers interface {
	AddWorkers(...func(context.Context))
	// Stop cancels the shared context and waits for every worker to return.
	Stop()
	// Wait blocks until every worker has returned without cancelling them.
	Wait()
	// Done is closed once all workers have returned.
	Done() <-chan struct{}
	Context() context.Context
}

// The linter complains about copies of a sync.WaitGroup, so everything goes through the
// StoppableWorkers interface and the implementation is only ever handled by pointer.
type stoppableWorkersImpl struct {
	mu                      sync.Mutex
	countMu                 sync.Mutex
	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
	running                 int
	done                    chan struct{}
}

// NewStoppableWorkers runs the functions in separate goroutines. They can be stopped later.
func NewStoppableWorkers(funcs ...func(context.Context)) StoppableWorkers {
	return NewStoppableWorkersWithContext(context.Background(), funcs...)
}

// NewStoppableWorkersWithContext is like NewStoppableWorkers but derives the workers' context from ctx.
func NewStoppableWorkersWithContext(ctx context.Context, funcs ...func(context.Context)) StoppableWorkers {
	cancelCtx, cancelFunc := context.WithCancel(ctx)
	workers := &stoppableWorkersImpl{cancelCtx: cancelCtx, cancelFunc: cancelFunc, done: make(chan struct{})}
	if len(funcs) == 0 {
		close(workers.done)
	}
	workers.AddWorkers(funcs...)
	return workers
}

// AddWorkers starts up additional goroutines for each function passed in. If you call this after
// calling Stop(), or after every earlier worker has already returned, it does nothing.
func (sw *stoppableWorkersImpl) AddWorkers(funcs ...func(context.Context)) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.cancelCtx.Err() != nil { // We've already stopped everything.
		return
	}
	if len(funcs) == 0 {
		return
	}
	sw.countMu.Lock()
	select {
	case <-sw.done:
		sw.countMu.Unlock()
		return
	default:
	}
	sw.running += len(funcs)
	sw.countMu.Unlock()

	sw.activeBackgroundWorkers.Add(len(funcs))
	for _, f := range funcs {
		goutils.PanicCapturingGo(func() {
			defer sw.workerDone()
			f(sw.cancelCtx)
		})
	}
}

func (sw *stoppableWorkersImpl) workerDone() {
	sw.countMu.Lock()
	sw.running--
	if sw.running == 0 {
		close(sw.done)
	}
	sw.countMu.Unlock()
	sw.activeBackgroundWorkers.Done()
}

// Stop shuts down all the goroutines we started up.
func (sw *stoppableWorkersImpl) Stop() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.cancelFunc()
	sw.activeBackgroundWorkers.Wait()
}

func (sw *stoppableWorkersImpl) Wait() {
	sw.activeBackgroundWorkers.Wait()
}

func (sw *stoppableWorkersImpl) Done() <-chan struct{} {
	return sw.done
}

// Context gets the context the workers are checking on. Using this function is expected to be
// rare: usually you shouldn't need to interact with the context directly.
func (sw *stoppableWorkersImpl) Context() context.Context {
	return sw.cancelCtx
}
