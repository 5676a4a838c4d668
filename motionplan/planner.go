package motionplan

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/motionkit/logging"
)

const (
	// Number of planner cycles before giving up.
	defaultMaxCycles = 50000
	defaultGoalBias  = 0.1
)

var (
	errNoStart = errors.New("planner start configuration not set")
	errNoGoal  = errors.New("planner goal configuration not set")
)

// ExtendMethod selects how far a tree grows toward a target in one cycle.
type ExtendMethod int

const (
	// Extend adds at most one step toward the target.
	Extend ExtendMethod = iota
	// Connect keeps stepping until the target is reached or a step is invalid.
	Connect
)

func (m ExtendMethod) String() string {
	if m == Connect {
		return "connect"
	}
	return "extend"
}

type extendResult int

const (
	trapped extendResult = iota
	advanced
	reached
)

// PlannerOptions configures the RRT planners.
type PlannerOptions struct {
	// MaxCycles is the planning budget; planning fails silently once it is used up.
	MaxCycles int `json:"max_cycles"`
	// GoalBias is the probability that a single tree RRT samples the goal instead of a random configuration.
	GoalBias float64 `json:"goal_bias"`
	// Method is the growth policy of the start tree. Method2 is used for the goal tree of a Bi-RRT.
	Method  ExtendMethod `json:"method"`
	Method2 ExtendMethod `json:"method2"`
	// DirectConnect tries the straight segment from start to goal before growing any tree.
	DirectConnect bool `json:"direct_connect"`
	// Seed seeds the planner's random source.
	Seed int64 `json:"seed"`
	// NCPU bounds the nearest neighbor fan-out; zero uses every CPU.
	NCPU int `json:"ncpu"`
}

// NewDefaultPlannerOptions returns the options planners start from.
func NewDefaultPlannerOptions() *PlannerOptions {
	return &PlannerOptions{
		MaxCycles:     defaultMaxCycles,
		GoalBias:      defaultGoalBias,
		Method:        Connect,
		Method2:       Connect,
		DirectConnect: true,
		Seed:          1,
	}
}

// MotionPlanner searches a configuration space for a collision free path from a start to a goal configuration.
type MotionPlanner interface {
	SetStart(Configuration) error
	SetGoal(Configuration) error
	// Plan grows the trees until a solution is found, the cycle budget is used up or ctx is done. Running out of
	// budget returns false without an error.
	Plan(ctx context.Context) (bool, error)
	// Solution returns the path found by the last successful Plan, or nil.
	Solution() *Path
	// Tree returns the tree rooted at the start configuration.
	Tree() *Tree
	CSpace() *CSpaceSampled
	Stats() PlannerStats
}

// PlannerStats summarizes the last planning run.
type PlannerStats struct {
	Cycles       int
	PlanningTime time.Duration
	TreeSize     int
	Solved       bool
}

// planner holds the state shared by Rrt and BiRrt. Results are only read after planning returns.
type planner struct {
	cspace   *CSpaceSampled
	opts     PlannerOptions
	logger   logging.Logger
	randseed *rand.Rand
	nm       *neighborManager

	mu       sync.Mutex
	start    Configuration
	goal     Configuration
	solution *Path
	tree     *Tree
	stats    PlannerStats
}

func newPlanner(cspace *CSpaceSampled, opts *PlannerOptions, logger logging.Logger) (*planner, error) {
	if cspace == nil {
		return nil, errors.New("planner needs a configuration space")
	}
	if opts == nil {
		opts = NewDefaultPlannerOptions()
	}
	if opts.MaxCycles <= 0 {
		return nil, errors.Errorf("max cycles must be positive, got %d", opts.MaxCycles)
	}
	if opts.GoalBias < 0 || opts.GoalBias > 1 {
		return nil, errors.Errorf("goal bias must be in [0, 1], got %v", opts.GoalBias)
	}
	//nolint:gosec
	return &planner{
		cspace:   cspace,
		opts:     *opts,
		logger:   logger,
		randseed: rand.New(rand.NewSource(opts.Seed)),
		nm:       newNeighborManager(opts.NCPU),
	}, nil
}

func (p *planner) CSpace() *CSpaceSampled {
	return p.cspace
}

func (p *planner) SetStart(c Configuration) error {
	if !p.cspace.IsInBoundary(c) {
		return errors.Errorf("start configuration %v is outside the configuration space", c)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.start = c.Clone()
	return nil
}

func (p *planner) SetGoal(c Configuration) error {
	if !p.cspace.IsInBoundary(c) {
		return errors.Errorf("goal configuration %v is outside the configuration space", c)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.goal = c.Clone()
	return nil
}

func (p *planner) Solution() *Path {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.solution == nil {
		return nil
	}
	return p.solution.Clone("")
}

func (p *planner) Tree() *Tree {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tree
}

func (p *planner) Stats() PlannerStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// begin validates the endpoints and resets the previous result.
func (p *planner) begin() (start, goal Configuration, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.start == nil {
		return nil, nil, errNoStart
	}
	if p.goal == nil {
		return nil, nil, errNoGoal
	}
	p.solution = nil
	p.tree = nil
	p.stats = PlannerStats{}
	return p.start.Clone(), p.goal.Clone(), nil
}

func (p *planner) finish(solution []Configuration, tree *Tree, cycles int, began time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tree = tree
	if solution != nil {
		p.solution = NewPath("solution", solution...)
	}
	p.stats = PlannerStats{
		Cycles:       cycles,
		PlanningTime: time.Since(began),
		TreeSize:     tree.Size(),
		Solved:       solution != nil,
	}
	return solution != nil
}

// checkEndpoints reports whether start and goal are valid and, with DirectConnect, whether the straight segment
// already solves the problem.
func (p *planner) checkEndpoints(start, goal Configuration) (valid, direct bool) {
	if !p.cspace.IsValid(start) {
		p.logger.Warnw("start configuration is in collision", "start", start)
		return false, false
	}
	if !p.cspace.IsValid(goal) {
		p.logger.Warnw("goal configuration is in collision", "goal", goal)
		return false, false
	}
	return true, p.opts.DirectConnect && p.cspace.IsPathValid(start, goal)
}

// extend adds at most one sampling size step from the node nearest to target toward target.
func (p *planner) extend(ctx context.Context, tree *Tree, target Configuration) (extendResult, *node) {
	nearest := p.nm.nearestNeighbor(ctx, target, tree)
	if nearest == nil {
		return trapped, nil
	}
	return p.step(tree, nearest, target)
}

func (p *planner) step(tree *Tree, from *node, target Configuration) (extendResult, *node) {
	dist := p.cspace.Distance(from.q, target)
	candidate := target
	result := reached
	if dist > p.cspace.SamplingSize() {
		candidate = p.cspace.Interpolate(from.q, target, p.cspace.SamplingSize()/dist)
		result = advanced
	} else if dist == 0 {
		return reached, from
	}
	if !p.cspace.IsPathValid(from.q, candidate) {
		return trapped, nil
	}
	return result, tree.add(candidate, from)
}

// connect extends toward target until it is reached or blocked, returning the last node added.
func (p *planner) connect(ctx context.Context, tree *Tree, target Configuration) (extendResult, *node) {
	res, last := p.extend(ctx, tree, target)
	for res == advanced {
		if ctx.Err() != nil {
			return advanced, last
		}
		var next *node
		res, next = p.step(tree, last, target)
		if next != nil {
			last = next
		}
	}
	if res == trapped && last != nil {
		return advanced, last
	}
	return res, last
}

func (p *planner) grow(ctx context.Context, method ExtendMethod, tree *Tree, target Configuration) (extendResult, *node) {
	if method == Connect {
		return p.connect(ctx, tree, target)
	}
	return p.extend(ctx, tree, target)
}

// Rrt grows a single tree from the start and samples the goal with a fixed probability.
type Rrt struct {
	*planner
}

// NewRrt returns a single tree planner over cspace.
func NewRrt(cspace *CSpaceSampled, opts *PlannerOptions, logger logging.Logger) (*Rrt, error) {
	p, err := newPlanner(cspace, opts, logger)
	if err != nil {
		return nil, err
	}
	return &Rrt{planner: p}, nil
}

// Plan implements MotionPlanner.
func (mp *Rrt) Plan(ctx context.Context) (bool, error) {
	start, goal, err := mp.begin()
	if err != nil {
		return false, err
	}
	began := time.Now()
	tree := newTree("start")
	root := tree.add(start, nil)

	valid, direct := mp.checkEndpoints(start, goal)
	if !valid {
		return mp.finish(nil, tree, 0, began), nil
	}
	if direct {
		g := tree.add(goal, root)
		return mp.finish(extractPath(tree, nil, g, nil, false), tree, 0, began), nil
	}

	for cycle := 1; cycle <= mp.opts.MaxCycles; cycle++ {
		if ctx.Err() != nil {
			mp.logger.Debugw("rrt stopped", "cycles", cycle-1)
			return mp.finish(nil, tree, cycle-1, began), nil
		}
		target := goal
		if mp.randseed.Float64() >= mp.opts.GoalBias {
			target = mp.cspace.RandomConfiguration(mp.randseed)
		}
		res, last := mp.grow(ctx, mp.opts.Method, tree, target)
		if res == trapped || last == nil {
			continue
		}
		if last.q.AlmostEqual(goal, 0) {
			return mp.finish(extractPath(tree, nil, last, nil, false), tree, cycle, began), nil
		}
		if mp.cspace.Distance(last.q, goal) <= mp.cspace.SamplingSize() && mp.cspace.IsPathValid(last.q, goal) {
			g := tree.add(goal, last)
			return mp.finish(extractPath(tree, nil, g, nil, false), tree, cycle, began), nil
		}
	}
	mp.logger.Debugw("rrt ran out of cycles", "cycles", mp.opts.MaxCycles, "tree_size", tree.Size())
	return mp.finish(nil, tree, mp.opts.MaxCycles, began), nil
}

// BiRrt grows one tree from the start and one from the goal, alternating which one samples, until they connect.
type BiRrt struct {
	*planner
	tree2 *Tree
}

// NewBiRrt returns a bidirectional planner over cspace.
func NewBiRrt(cspace *CSpaceSampled, opts *PlannerOptions, logger logging.Logger) (*BiRrt, error) {
	p, err := newPlanner(cspace, opts, logger)
	if err != nil {
		return nil, err
	}
	return &BiRrt{planner: p}, nil
}

// Tree2 returns the tree rooted at the goal configuration.
func (mp *BiRrt) Tree2() *Tree {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.tree2
}

// Plan implements MotionPlanner.
func (mp *BiRrt) Plan(ctx context.Context) (bool, error) {
	start, goal, err := mp.begin()
	if err != nil {
		return false, err
	}
	began := time.Now()
	startTree := newTree("start")
	goalTree := newTree("goal")
	startRoot := startTree.add(start, nil)
	goalRoot := goalTree.add(goal, nil)
	mp.setTree2(goalTree)

	valid, direct := mp.checkEndpoints(start, goal)
	if !valid {
		return mp.finish(nil, startTree, 0, began), nil
	}
	if direct {
		return mp.finish(extractPath(startTree, goalTree, startRoot, goalRoot, false), startTree, 0, began), nil
	}

	// Create a reference to the two trees so that we can alternate which one is grown
	tree1, tree2 := startTree, goalTree
	method1, method2 := mp.opts.Method, mp.opts.Method2

	for cycle := 1; cycle <= mp.opts.MaxCycles; cycle++ {
		if ctx.Err() != nil {
			mp.logger.Debugw("bi-rrt stopped", "cycles", cycle-1)
			return mp.finish(nil, startTree, cycle-1, began), nil
		}

		target := mp.cspace.RandomConfiguration(mp.randseed)
		res, added := mp.grow(ctx, method1, tree1, target)
		if res != trapped && added != nil {
			// try to join the other tree to the node just added
			res2, reached2 := mp.connect(ctx, tree2, added.q)
			if res2 == reached && reached2 != nil {
				var path []Configuration
				if tree1 == startTree {
					path = extractPath(startTree, goalTree, added, reached2, true)
				} else {
					path = extractPath(startTree, goalTree, reached2, added, true)
				}
				return mp.finish(path, startTree, cycle, began), nil
			}
		}

		tree1, tree2 = tree2, tree1
		method1, method2 = method2, method1
	}
	mp.logger.Debugw("bi-rrt ran out of cycles",
		"cycles", mp.opts.MaxCycles, "start_tree", startTree.Size(), "goal_tree", goalTree.Size())
	return mp.finish(nil, startTree, mp.opts.MaxCycles, began), nil
}

func (mp *BiRrt) setTree2(t *Tree) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.tree2 = t
}
