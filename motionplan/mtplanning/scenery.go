package mtplanning

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"go.viam.com/motionkit/collision"
	"go.viam.com/motionkit/logging"
	"go.viam.com/motionkit/model"
	"go.viam.com/motionkit/motionplan"
)

const maxEndpointSamples = 10000

var (
	// ErrPlanningStarted is returned when problems are added or planning is started twice.
	ErrPlanningStarted = errors.New("planning already started")
	// ErrPlanningNotStarted is returned when optimization is requested before planning.
	ErrPlanningNotStarted = errors.New("plan the solutions first")
	// ErrPlanningRunning is returned when optimization is requested while planners still run.
	ErrPlanningRunning = errors.New("planning is not finished")
	// ErrOptimizingStarted is returned when the path processors are started twice.
	ErrOptimizingStarted = errors.New("path processors already started")
)

// Exporter receives every harvested path. It is how solutions reach a display or a file.
type Exporter interface {
	ExportPath(name string, path *motionplan.Path, tree *motionplan.Tree) error
}

// Params are the collaborators of a Scenery.
type Params struct {
	// Robot is the template every problem clones.
	Robot *model.Model
	// Checker is the default checker, shared by all problems unless MultiCheckers is set.
	Checker collision.Checker
	// Environment is the obstacle model. A random one is built from the options when it is nil.
	Environment *model.Model
	Exporter    Exporter
	Clock       clock.Clock
	Logger      logging.Logger
}

// Scenery owns a set of planning problems over one robot and one environment.
type Scenery struct {
	opts     Options
	robot    *model.Model
	checker  collision.Checker
	env      *model.Model
	exporter Exporter
	clock    clock.Clock
	logger   logging.Logger
	randseed *rand.Rand

	mu              sync.Mutex
	problems        []*Problem
	plannersStarted atomic.Bool
	optimizeStarted atomic.Bool
}

// NewScenery validates the options and builds the environment.
func NewScenery(opts *Options, params Params) (*Scenery, error) {
	if opts == nil {
		opts = NewDefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if params.Robot == nil {
		return nil, errors.New("scenery needs a robot model")
	}
	if params.Logger == nil {
		params.Logger = logging.NewBlankLogger("mtplanning")
	}
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	if params.Checker == nil {
		params.Checker = collision.NewGeometryChecker("default", 0, params.Logger.Sublogger("checker"))
	}
	//nolint:gosec
	s := &Scenery{
		opts:     *opts,
		robot:    params.Robot,
		checker:  params.Checker,
		env:      params.Environment,
		exporter: params.Exporter,
		clock:    params.Clock,
		logger:   params.Logger,
		randseed: rand.New(rand.NewSource(opts.Seed)),
	}
	if s.env == nil {
		s.logger.Infof("randomly placing %d obstacles", opts.Obstacles)
		env, err := NewRandomEnvironment("Obstacles", opts.Obstacles, opts.ObstacleSize, opts.Playfield, s.randseed, s.checker)
		if err != nil {
			return nil, err
		}
		s.env = env
	}
	return s, nil
}

// Environment returns the obstacle model.
func (s *Scenery) Environment() *model.Model {
	return s.env
}

// Problems returns the problems built so far.
func (s *Scenery) Problems() []*Problem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Problem(nil), s.problems...)
}

// BuildProblems adds NumProblems planning problems.
func (s *Scenery) BuildProblems() error {
	for i := 0; i < s.opts.NumProblems; i++ {
		if _, err := s.BuildPlanningProblem(); err != nil {
			return err
		}
	}
	return nil
}

// BuildPlanningProblem clones the robot, registers it against the environment and samples a collision free start
// and goal.
func (s *Scenery) BuildPlanningProblem() (*Problem, error) {
	if s.plannersStarted.Load() {
		return nil, ErrPlanningStarted
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	index := len(s.problems)
	logger := s.logger.Sublogger(fmt.Sprintf("problem-%d", index))

	checker := s.checker
	if s.opts.MultiCheckers {
		logger.Debug("building planning problem with own instance of collision checker")
		checker = collision.NewGeometryChecker(fmt.Sprintf("checker-%d", index), 0, logger)
	} else {
		logger.Debug("building planning problem with shared collision checker")
	}

	robot := s.robot.Clone(fmt.Sprintf("%s_%d", s.robot.Name(), index), checker)
	joints, err := robot.JointSet(s.opts.JointSet)
	if err != nil {
		return nil, err
	}
	links, err := robot.LinkSet(s.opts.LinkSet)
	if err != nil {
		return nil, err
	}

	cdm := collision.NewCDManager(checker, logger)
	cdm.AddCollisionModel(links)
	for _, pair := range s.opts.RobotPairs {
		a, err := robot.LinkSet(pair[0])
		if err != nil {
			return nil, err
		}
		b, err := robot.LinkSet(pair[1])
		if err != nil {
			return nil, err
		}
		cdm.AddCollisionModelPair(a, b)
	}
	env := s.env
	if s.opts.MultiCheckers {
		env = s.env.Clone("Cloned Environment", checker)
	}
	if envSet, err := env.LinkSet(EnvironmentLinkSet); err == nil {
		cdm.AddCollisionModel(envSet)
	}

	cspace, err := motionplan.NewCSpaceSampled(joints, cdm, logger)
	if err != nil {
		return nil, err
	}
	if err := cspace.SetSamplingSize(s.opts.SamplingSize); err != nil {
		return nil, err
	}
	if err := cspace.SetDCDSamplingSize(s.opts.DCDSamplingSize); err != nil {
		return nil, err
	}
	// only needed when one collision checker is shared between the planners
	cspace.SetExclusiveRobotAccess(!s.opts.MultiCheckers)

	robot.SetUpdateVisualization(false)
	start, err := s.endpoint(cspace, s.opts.Start, "start")
	if err != nil {
		return nil, err
	}
	goal, err := s.endpoint(cspace, s.opts.Goal, "goal")
	if err != nil {
		return nil, err
	}
	robot.SetUpdateVisualization(true)
	logger.Infow("planning problem ready", "start", start, "goal", goal)

	plannerOpts := motionplan.NewDefaultPlannerOptions()
	plannerOpts.MaxCycles = s.opts.MaxCycles
	plannerOpts.Seed = s.opts.Seed + int64(index) + 1
	plannerOpts.NCPU = 1
	planner, err := motionplan.NewBiRrt(cspace, plannerOpts, logger)
	if err != nil {
		return nil, err
	}
	if err := planner.SetStart(start); err != nil {
		return nil, err
	}
	if err := planner.SetGoal(goal); err != nil {
		return nil, err
	}

	p := &Problem{
		ID:      uuid.New(),
		Index:   index,
		Robot:   robot,
		Checker: checker,
		CDM:     cdm,
		CSpace:  cspace,
		Planner: planner,
		Start:   start,
		Goal:    goal,
		logger:  logger,
	}
	p.planTask = motionplan.NewPlanningTask(fmt.Sprintf("planner-%d", index), planner, logger)
	s.problems = append(s.problems, p)
	return p, nil
}

// endpoint returns fixed when it is set and valid, otherwise samples until a valid configuration is found.
func (s *Scenery) endpoint(cspace *motionplan.CSpaceSampled, fixed []float64, what string) (motionplan.Configuration, error) {
	if len(fixed) > 0 {
		c := motionplan.Configuration(fixed).Clone()
		if !cspace.IsValid(c) {
			return nil, errors.Errorf("configured %s %v is not valid", what, c)
		}
		return c, nil
	}
	for i := 0; i < maxEndpointSamples; i++ {
		c := s.sampleEndpoint(cspace)
		if cspace.IsValid(c) {
			return c, nil
		}
	}
	return nil, errors.Errorf("no collision free %s found in %d samples", what, maxEndpointSamples)
}

func (s *Scenery) sampleEndpoint(cspace *motionplan.CSpaceSampled) motionplan.Configuration {
	if s.opts.FaceEndpoints && cspace.Dimension() == 3 {
		p := randomFacePosition(s.randseed, s.opts.Playfield)
		lower, upper := cspace.Boundaries()
		c := motionplan.Configuration{p.X, p.Y, p.Z}
		for i := range c {
			c[i] = min(max(c[i], lower[i]), upper[i])
		}
		return c
	}
	return cspace.RandomConfiguration(s.randseed)
}

// StartPlanning starts every planner.
func (s *Scenery) StartPlanning(ctx context.Context) error {
	if !s.plannersStarted.CompareAndSwap(false, true) {
		return ErrPlanningStarted
	}
	problems := s.Problems()
	s.logger.Infof("starting %d planning threads", len(problems))
	for _, p := range problems {
		if p.solutionSet.Load() {
			continue
		}
		// a stopped planner is planned again from scratch on a new task
		if p.planTask.Started() {
			p.planTask = motionplan.NewPlanningTask(p.planTask.Name(), p.Planner, p.logger)
		}
		p.Robot.SetUpdateVisualization(false)
		if err := p.planTask.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// StopPlanning cancels every planner and waits for them to return. StartPlanning may be called again afterwards;
// problems without a harvested solution are planned again.
func (s *Scenery) StopPlanning() {
	problems := s.Problems()
	s.logger.Infof("stopping %d planning threads", len(problems))
	stopAll(lo.Map(problems, func(p *Problem, _ int) *motionplan.Task { return p.planTask }))
	for _, p := range problems {
		p.Robot.SetUpdateVisualization(true)
	}
	s.plannersStarted.Store(false)
}

// ThreadCounts returns how many planning tasks are still running and how many are idle.
func (s *Scenery) ThreadCounts() (working, idle int) {
	problems := s.Problems()
	working = lo.CountBy(problems, func(p *Problem) bool { return p.planTask.IsRunning() })
	return working, len(problems) - working
}

// CheckPlanningThreads fetches the solution of every finished planner that has not been fetched yet and returns
// how many were fetched by this call.
func (s *Scenery) CheckPlanningThreads() int {
	if !s.plannersStarted.Load() {
		return 0
	}
	fetched := 0
	for _, p := range s.Problems() {
		if p.planTask.IsRunning() || p.solutionSet.Load() {
			continue
		}
		sol := p.Planner.Solution()
		if sol == nil {
			if p.noSolutionLogged.CompareAndSwap(false, true) {
				p.logger.Info("no solution")
			}
			continue
		}
		if !p.solutionSet.CompareAndSwap(false, true) {
			continue
		}
		p.setSolution(sol.Clone(fmt.Sprintf("solution-orig-%d", p.Index)))
		p.logger.Infof("fetching solution %d", p.Index)
		fetched++
		s.export(p.Solution(), p.Planner.Tree())
	}
	return fetched
}

// WaitForPlanning polls until every planner has returned, then harvests the solutions.
func (s *Scenery) WaitForPlanning(ctx context.Context) error {
	if err := s.waitFor(ctx, func() bool {
		working, _ := s.ThreadCounts()
		return working == 0
	}); err != nil {
		return err
	}
	s.CheckPlanningThreads()
	return nil
}

// StartOptimizing starts a shortcut processor for every solved problem. Planning must have finished.
func (s *Scenery) StartOptimizing(ctx context.Context) error {
	if !s.plannersStarted.Load() {
		return ErrPlanningNotStarted
	}
	if working, _ := s.ThreadCounts(); working > 0 {
		return ErrPlanningRunning
	}
	if !s.optimizeStarted.CompareAndSwap(false, true) {
		return ErrOptimizingStarted
	}
	s.CheckPlanningThreads()
	started := 0
	for _, p := range s.Problems() {
		sol := p.Solution()
		if sol == nil {
			continue
		}
		sp, err := motionplan.NewShortcutProcessor(sol, p.CSpace, s.opts.Seed+int64(p.Index), p.logger)
		if err != nil {
			return err
		}
		p.setOptimizer(sp, motionplan.NewShortcutTask(fmt.Sprintf("optimizer-%d", p.Index), sp, s.opts.ShortenLoops, p.logger))
		p.Robot.SetUpdateVisualization(false)
		if err := p.optTask.Start(ctx); err != nil {
			return err
		}
		started++
	}
	s.logger.Infof("started %d path processing threads", started)
	return nil
}

// StopOptimizing cancels every path processor.
func (s *Scenery) StopOptimizing() {
	problems := s.Problems()
	tasks := lo.FilterMap(problems, func(p *Problem, _ int) (*motionplan.Task, bool) {
		t := p.optimizerTask()
		return t, t != nil
	})
	s.logger.Infof("stopping %d optimizing threads", len(tasks))
	stopAll(tasks)
	for _, p := range problems {
		p.Robot.SetUpdateVisualization(true)
	}
	s.optimizeStarted.Store(false)
}

// CheckOptimizeThreads fetches every finished optimized path once and returns how many were fetched by this call.
func (s *Scenery) CheckOptimizeThreads() int {
	fetched := 0
	for _, p := range s.Problems() {
		t := p.optimizerTask()
		if t == nil || t.IsRunning() || p.optimizedSet.Load() {
			continue
		}
		processed := p.processor().ProcessedPath()
		if processed == nil {
			p.logger.Info("no optimized solution, keeping the original")
			continue
		}
		if !p.optimizedSet.CompareAndSwap(false, true) {
			continue
		}
		p.setOptimized(processed.Clone(fmt.Sprintf("solution-optimized-%d", p.Index)))
		p.logger.Infof("fetching optimized solution %d", p.Index)
		fetched++
		s.export(p.Optimized(), nil)
	}
	return fetched
}

// WaitForOptimizing polls until every path processor has returned, then harvests the optimized paths.
func (s *Scenery) WaitForOptimizing(ctx context.Context) error {
	if err := s.waitFor(ctx, func() bool {
		return !lo.SomeBy(s.Problems(), func(p *Problem) bool {
			t := p.optimizerTask()
			return t != nil && t.IsRunning()
		})
	}); err != nil {
		return err
	}
	s.CheckOptimizeThreads()
	return nil
}

// Reset stops every task and drops all problems. The environment is kept.
func (s *Scenery) Reset() {
	if s.plannersStarted.Load() {
		s.StopPlanning()
	}
	if s.optimizeStarted.Load() {
		s.StopOptimizing()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.problems = nil
}

func (s *Scenery) waitFor(ctx context.Context, done func() bool) error {
	ticker := s.clock.Ticker(s.opts.PollInterval)
	defer ticker.Stop()
	for !done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (s *Scenery) export(path *motionplan.Path, tree *motionplan.Tree) {
	if s.exporter == nil || path == nil {
		return
	}
	if err := s.exporter.ExportPath(path.Name(), path, tree); err != nil {
		s.logger.Warnw("could not export path", "path", path.Name(), "error", err)
	}
}

func stopAll(tasks []*motionplan.Task) {
	var g errgroup.Group
	for _, t := range tasks {
		g.Go(func() error {
			t.Stop()
			return nil
		})
	}
	//nolint:errcheck
	g.Wait()
}

// Elapsed reports the time since start on the scenery clock.
func (s *Scenery) Elapsed(start time.Time) time.Duration {
	return s.clock.Since(start)
}

// Now returns the scenery clock's current time.
func (s *Scenery) Now() time.Time {
	return s.clock.Now()
}
