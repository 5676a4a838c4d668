package mtplanning

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"go.viam.com/motionkit/collision"
	"go.viam.com/motionkit/logging"
	"go.viam.com/motionkit/model"
	"go.viam.com/motionkit/motionplan"
)

// Problem is one planning problem with its own robot clone, collision manager, configuration space and planner.
type Problem struct {
	ID      uuid.UUID
	Index   int
	Robot   *model.Model
	Checker collision.Checker
	CDM     *collision.CDManager
	CSpace  *motionplan.CSpaceSampled
	Planner *motionplan.BiRrt
	Start   motionplan.Configuration
	Goal    motionplan.Configuration

	logger   logging.Logger
	planTask *motionplan.Task

	solutionSet      atomic.Bool
	optimizedSet     atomic.Bool
	noSolutionLogged atomic.Bool

	mu        sync.Mutex
	solution  *motionplan.Path
	optimized *motionplan.Path
	shortcut  *motionplan.ShortcutProcessor
	optTask   *motionplan.Task
}

// IsRunning reports whether the planner of this problem is still running.
func (p *Problem) IsRunning() bool {
	return p.planTask.IsRunning()
}

// Solution returns the harvested solution, or nil.
func (p *Problem) Solution() *motionplan.Path {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.solution
}

// Optimized returns the harvested optimized solution, or nil.
func (p *Problem) Optimized() *motionplan.Path {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.optimized
}

func (p *Problem) setSolution(sol *motionplan.Path) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.solution = sol
}

func (p *Problem) setOptimized(sol *motionplan.Path) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.optimized = sol
}

func (p *Problem) setOptimizer(sp *motionplan.ShortcutProcessor, task *motionplan.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shortcut = sp
	p.optTask = task
	p.optimized = nil
	p.optimizedSet.Store(false)
}

func (p *Problem) optimizerTask() *motionplan.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.optTask
}

func (p *Problem) processor() *motionplan.ShortcutProcessor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shortcut
}
