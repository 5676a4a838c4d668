package ik

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/floats"

	"go.viam.com/motionkit/logging"
	"go.viam.com/motionkit/model"
	"go.viam.com/motionkit/utils"
)

const (
	defaultMaxAttempts                = 30
	defaultFunctionValueTolerance     = 1e-6
	defaultOptimizationValueTolerance = 1e-4
	defaultConstraintTolerance        = 1e-6

	// scale of linear joint gradients, roughly one degree per unit length
	linearJointGradientScale = 1. / 57
)

var (
	errNotInitialized = errors.New("IK not initialized, call Initialize first")
	errNoStepwise     = errors.New("stepwise solving is not possible with optimization IK")
	errNoConstraints  = errors.New("IK has no constraints")
)

// SeedType says where the start vector of an attempt comes from.
type SeedType int

const (
	// SeedInitial starts at the joint values captured by Initialize.
	SeedInitial SeedType = iota
	// SeedZero starts at zero, clamped into the limits.
	SeedZero
	// SeedOther starts at caller supplied values, clamped into the limits.
	SeedOther
	// SeedRandom starts at a random sample around the initial configuration. It is never in the seed list.
	SeedRandom
)

func (s SeedType) String() string {
	switch s {
	case SeedInitial:
		return "initial"
	case SeedZero:
		return "zero"
	case SeedOther:
		return "other"
	case SeedRandom:
		return "random"
	default:
		return "unknown"
	}
}

// Seed is an entry of the seed list.
type Seed struct {
	Type   SeedType
	Values []float64
}

// Options configures a ConstrainedOptimizationIK.
type Options struct {
	// Timeout bounds the wall clock time of every single attempt. Zero means no limit.
	Timeout time.Duration `json:"timeout"`
	// GlobalTolerance stops an attempt once the objective is below its square. NaN disables it.
	GlobalTolerance            float64 `json:"global_tolerance"`
	MaxAttempts                int     `json:"max_attempts"`
	FunctionValueTolerance     float64 `json:"function_value_tolerance"`
	OptimizationValueTolerance float64 `json:"optimization_value_tolerance"`
	ConstraintTolerance        float64 `json:"constraint_tolerance"`
	DisplacementFactor         float64 `json:"displacement_factor"`
	RandomSeed                 int64   `json:"random_seed"`
}

// NewDefaultOptions returns options with a half second timeout per attempt and no global stop value.
func NewDefaultOptions() *Options {
	return &Options{
		Timeout:                    500 * time.Millisecond,
		GlobalTolerance:            math.NaN(),
		MaxAttempts:                defaultMaxAttempts,
		FunctionValueTolerance:     defaultFunctionValueTolerance,
		OptimizationValueTolerance: defaultOptimizationValueTolerance,
		ConstraintTolerance:        defaultConstraintTolerance,
		DisplacementFactor:         1,
	}
}

// Validate reports every invalid field.
func (o *Options) Validate() error {
	var err error
	if o.Timeout < 0 {
		err = multierr.Append(err, errors.Errorf("timeout must not be negative, got %v", o.Timeout))
	}
	if o.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.Errorf("max_attempts must be positive, got %d", o.MaxAttempts))
	}
	if !(o.FunctionValueTolerance >= 0) {
		err = multierr.Append(err, errors.Errorf("function_value_tolerance must not be negative, got %v", o.FunctionValueTolerance))
	}
	if !(o.OptimizationValueTolerance >= 0) {
		err = multierr.Append(err, errors.Errorf("optimization_value_tolerance must not be negative, got %v", o.OptimizationValueTolerance))
	}
	if !(o.ConstraintTolerance >= 0) {
		err = multierr.Append(err, errors.Errorf("constraint_tolerance must not be negative, got %v", o.ConstraintTolerance))
	}
	if !utils.IsFinite(o.DisplacementFactor) {
		err = multierr.Append(err, errors.Errorf("displacement_factor must be finite, got %v", o.DisplacementFactor))
	}
	return err
}

// FunctionResult is the hard check of one optimization function after an attempt.
type FunctionResult struct {
	Constraint string
	Satisfied  bool
	Error      float64
}

// Attempt records one local optimization.
type Attempt struct {
	Seed        SeedType
	Start       []float64
	Result      []float64
	Error       float64
	Success     bool
	Evaluations int
	Duration    time.Duration
	Functions   []FunctionResult
	// OptimizerErr is whatever the optimizer reported. It never decides success.
	OptimizerErr error
}

// ConstrainedOptimizationIK minimizes the objective functions of a constraint stack with SQP, passing equality
// and inequality functions to the optimizer and accepting a result only when every hard function is within
// tolerance. Failed attempts are retried from the seed list, then from random samples around the initial
// configuration.
type ConstrainedOptimizationIK struct {
	robot       *model.Model
	joints      *model.JointSet
	constraints []Constraint
	opts        Options
	logger      logging.Logger
	clock       clock.Clock
	rand        *rand.Rand

	seeds        []Seed
	displacement float64

	initialized   bool
	initialConfig []float64
	lower, upper  []float64
	scaling       []float64

	currentX           []float64
	evaluations        int
	bestError          float64
	attempts           []Attempt
	collisionModelUsed bool
}

// NewConstrainedOptimizationIK returns a solver over joints seeded with the initial and the zero configuration.
func NewConstrainedOptimizationIK(joints *model.JointSet, opts *Options, logger logging.Logger) (*ConstrainedOptimizationIK, error) {
	if joints == nil || joints.Size() == 0 {
		return nil, errNoJointSet
	}
	if opts == nil {
		opts = NewDefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewBlankLogger("ik")
	}
	//nolint:gosec
	ik := &ConstrainedOptimizationIK{
		robot:     joints.Model(),
		joints:    joints,
		opts:      *opts,
		logger:    logger,
		clock:     clock.New(),
		rand:      rand.New(rand.NewSource(opts.RandomSeed)),
		bestError: math.MaxFloat64,
	}
	ik.SetRandomSamplingDisplacementFactor(opts.DisplacementFactor)
	ik.ClearSeeds()
	ik.AddSeedType(SeedInitial)
	ik.AddSeedType(SeedZero)
	return ik, nil
}

// SetClock replaces the clock used to time attempts.
func (ik *ConstrainedOptimizationIK) SetClock(c clock.Clock) {
	ik.clock = c
}

// JointSet returns the optimized joints.
func (ik *ConstrainedOptimizationIK) JointSet() *model.JointSet {
	return ik.joints
}

// AddConstraint appends c to the stack. The solver must be initialized again afterwards.
func (ik *ConstrainedOptimizationIK) AddConstraint(c Constraint) error {
	if c == nil {
		return errors.New("nil constraint")
	}
	if c.JointSet() == nil || c.JointSet().Size() != ik.joints.Size() {
		return errors.Errorf("constraint %s does not match joint set %q", c.Type(), ik.joints.Name())
	}
	ik.constraints = append(ik.constraints, c)
	ik.initialized = false
	return nil
}

// Constraints returns a copy of the stack.
func (ik *ConstrainedOptimizationIK) Constraints() []Constraint {
	return append([]Constraint(nil), ik.constraints...)
}

// AddSeed appends a caller supplied start configuration.
func (ik *ConstrainedOptimizationIK) AddSeed(values []float64) error {
	if len(values) != ik.joints.Size() {
		return errors.Errorf("seed has %d values, joint set %q has %d joints", len(values), ik.joints.Name(), ik.joints.Size())
	}
	ik.seeds = append(ik.seeds, Seed{Type: SeedOther, Values: append([]float64(nil), values...)})
	return nil
}

// AddSeedType appends the initial or the zero configuration to the seed list.
func (ik *ConstrainedOptimizationIK) AddSeedType(t SeedType) {
	if t == SeedInitial || t == SeedZero {
		ik.seeds = append(ik.seeds, Seed{Type: t})
	}
}

// ClearSeeds empties the seed list. Every attempt then starts from a random sample.
func (ik *ConstrainedOptimizationIK) ClearSeeds() {
	ik.seeds = nil
}

// Seeds returns a copy of the seed list.
func (ik *ConstrainedOptimizationIK) Seeds() []Seed {
	return append([]Seed(nil), ik.seeds...)
}

// SetRandomSamplingDisplacementFactor scales how far random samples reach from the initial configuration
// toward a uniform sample of the limits. 1 samples the whole range, 0 always returns the initial configuration.
func (ik *ConstrainedOptimizationIK) SetRandomSamplingDisplacementFactor(factor float64) {
	ik.displacement = factor
}

// Initialize captures the initial configuration and the joint limits.
func (ik *ConstrainedOptimizationIK) Initialize() error {
	if len(ik.constraints) == 0 {
		return errNoConstraints
	}
	ik.initialConfig = ik.joints.JointValues()
	ik.lower, ik.upper = ik.joints.Limits()
	ik.scaling = make([]float64, ik.joints.Size())
	for i := range ik.scaling {
		ik.scaling[i] = linearJointGradientScale
		if ik.joints.IsRotational(i) {
			ik.scaling[i] = 1
		}
	}
	ik.initialized = true
	return nil
}

// SolveStep is not supported.
func (ik *ConstrainedOptimizationIK) SolveStep() error {
	return errNoStepwise
}

// BestError returns the summed hard function error of the accepted attempt, or of the best attempt when none
// was accepted.
func (ik *ConstrainedOptimizationIK) BestError() float64 {
	return ik.bestError
}

// Attempts returns the diagnostics of the last Solve.
func (ik *ConstrainedOptimizationIK) Attempts() []Attempt {
	return append([]Attempt(nil), ik.attempts...)
}

// CollisionModelUsed reports whether any constraint of the last Solve queried collision geometry.
func (ik *ConstrainedOptimizationIK) CollisionModelUsed() bool {
	return ik.collisionModelUsed
}

// Solve runs up to MaxAttempts local optimizations and returns whether every hard function is satisfied. On
// failure the joints are left at the best attempt. Pose notifications are disabled while solving and restored
// on every exit path.
func (ik *ConstrainedOptimizationIK) Solve(ctx context.Context) (bool, error) {
	if !ik.initialized {
		return false, errNotInitialized
	}
	updateVisualization := ik.robot.UpdateVisualization()
	ik.robot.SetUpdateVisualization(false)
	defer ik.robot.SetUpdateVisualization(updateVisualization)

	ik.collisionModelUsed = lo.SomeBy(ik.constraints, func(c Constraint) bool { return c.UsingCollisionModel() })
	ik.attempts = nil
	ik.bestError = math.MaxFloat64
	ik.currentX = nil

	opt, err := newLocalOptimizer(ik.optimizerSettings(), ik.objective, ik.constraintFunctions(Equality), ik.constraintFunctions(Inequality))
	if err != nil {
		return false, err
	}
	defer opt.close()

	var best []float64
	guard := utils.NewGuard(func() {
		if best == nil {
			return
		}
		if err := ik.joints.SetJointValues(best); err != nil {
			ik.logger.Warnw("could not restore best configuration", "error", err)
		}
	})
	defer guard.OnFail()

	for attempt := 0; attempt < ik.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		seed, x0 := ik.startVector(attempt)
		ik.evaluations = 0
		start := ik.clock.Now()
		x, optErr := opt.optimize(ctx, x0)
		if x == nil {
			x = x0
		}
		if optErr != nil {
			ik.logger.Debugw("optimizer stopped with an error", "attempt", attempt, "error", optErr)
		}
		success, hardErr, functions := ik.hardOptimizationFunction(x)
		ik.attempts = append(ik.attempts, Attempt{
			Seed:         seed,
			Start:        x0,
			Result:       append([]float64(nil), x...),
			Error:        hardErr,
			Success:      success,
			Evaluations:  ik.evaluations,
			Duration:     ik.clock.Since(start),
			Functions:    functions,
			OptimizerErr: optErr,
		})
		if success {
			ik.bestError = hardErr
			guard.Success()
			return true, nil
		}
		if hardErr < ik.bestError {
			ik.bestError = hardErr
			best = append([]float64(nil), x...)
		}
	}
	ik.logger.Infow("IK failed", "attempts", ik.opts.MaxAttempts, "min_error", ik.bestError)
	return false, nil
}

// startVector returns the seed of an attempt, clamped into the limits.
func (ik *ConstrainedOptimizationIK) startVector(attempt int) (SeedType, []float64) {
	n := ik.joints.Size()
	x := make([]float64, n)
	if attempt >= len(ik.seeds) {
		for i := range x {
			t := float64(ik.rand.Intn(1001)) / 1000
			sample := ik.lower[i] + t*(ik.upper[i]-ik.lower[i])
			x[i] = ik.initialConfig[i] + ik.displacement*(sample-ik.initialConfig[i])
		}
		return SeedRandom, ik.clamp(x)
	}
	seed := ik.seeds[attempt]
	switch seed.Type {
	case SeedInitial:
		copy(x, ik.initialConfig)
	case SeedZero:
	case SeedOther, SeedRandom:
		copy(x, seed.Values)
	}
	return seed.Type, ik.clamp(x)
}

func (ik *ConstrainedOptimizationIK) clamp(x []float64) []float64 {
	for i := range x {
		x[i] = utils.Clamp(x[i], ik.lower[i], ik.upper[i])
	}
	return x
}

func (ik *ConstrainedOptimizationIK) optimizerSettings() optimizerSettings {
	stopVal := math.NaN()
	if !math.IsNaN(ik.opts.GlobalTolerance) {
		stopVal = ik.opts.GlobalTolerance * ik.opts.GlobalTolerance
	}
	return optimizerSettings{
		lower:         ik.lower,
		upper:         ik.upper,
		stopVal:       stopVal,
		ftolAbs:       ik.opts.FunctionValueTolerance,
		xtolAbs:       ik.opts.OptimizationValueTolerance,
		maxTime:       ik.opts.Timeout,
		constraintTol: ik.opts.ConstraintTolerance,
	}
}

// setX writes x to the joints unless it is the configuration written last.
func (ik *ConstrainedOptimizationIK) setX(x []float64) {
	if ik.currentX != nil && floats.Equal(x, ik.currentX) {
		return
	}
	if err := ik.joints.SetJointValues(x); err != nil {
		ik.logger.Warnw("could not set joint values", "error", err)
	}
	ik.currentX = append(ik.currentX[:0], x...)
}

// objective sums every objective function. The gradient is scaled per joint and normalized.
func (ik *ConstrainedOptimizationIK) objective(x, gradient []float64) float64 {
	ik.evaluations++
	ik.setX(x)
	value := 0.
	var grad []float64
	if len(gradient) > 0 {
		grad = make([]float64, len(gradient))
	}
	for _, c := range ik.constraints {
		for _, f := range c.OptimizationFunctions() {
			if f.Kind != Objective {
				continue
			}
			value += c.OptimizationFunction(f.ID)
			if grad == nil {
				continue
			}
			g := c.OptimizationGradient(f.ID)
			for i := range grad {
				if i < len(g) {
					grad[i] += g[i] * ik.scaling[i]
				}
			}
		}
	}
	if grad != nil {
		if norm := floats.Norm(grad, 2); norm > 0 {
			floats.Scale(1/norm, grad)
		}
		copy(gradient, grad)
	}
	return value
}

// constraintFunctions returns optimizer callbacks for every function of the given kind.
func (ik *ConstrainedOptimizationIK) constraintFunctions(kind FunctionKind) []objectiveFunc {
	var fns []objectiveFunc
	for _, c := range ik.constraints {
		for _, f := range c.OptimizationFunctions() {
			if f.Kind != kind {
				continue
			}
			fns = append(fns, func(x, gradient []float64) float64 {
				ik.evaluations++
				ik.setX(x)
				if len(gradient) > 0 {
					copy(gradient, c.OptimizationGradient(f.ID))
				}
				return c.OptimizationFunction(f.ID)
			})
		}
	}
	return fns
}

// hardOptimizationFunction sets x and checks every hard function. Soft functions are ignored.
func (ik *ConstrainedOptimizationIK) hardOptimizationFunction(x []float64) (bool, float64, []FunctionResult) {
	ik.currentX = nil
	ik.setX(x)
	success := true
	total := 0.
	var results []FunctionResult
	for _, c := range ik.constraints {
		for _, f := range c.OptimizationFunctions() {
			if f.Soft {
				continue
			}
			ok := c.CheckTolerances()
			e := c.OptimizationFunction(f.ID)
			success = success && ok
			total += e
			results = append(results, FunctionResult{Constraint: c.Type(), Satisfied: ok, Error: e})
		}
	}
	return success, total, results
}
