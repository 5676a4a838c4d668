// Package motionplan is a sampling based motion planner over the joint space of a kinematic model.
package motionplan

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/motionkit/collision"
	"go.viam.com/motionkit/logging"
	"go.viam.com/motionkit/model"
)

const (
	defaultSamplingSize    = 0.1
	defaultDCDSamplingSize = 0.05
)

// CSpaceSampled is the configuration space of a JointSet, checked for collisions through a CDManager at a fixed
// resolution.
type CSpaceSampled struct {
	joints *model.JointSet
	cdm    *collision.CDManager
	logger logging.Logger

	samplingSize    float64
	dcdSamplingSize float64
	exclusive       bool

	lower, upper []float64

	validityChecks  atomic.Int64
	collisionChecks atomic.Int64
	pathChecks      atomic.Int64
}

// NewCSpaceSampled returns a configuration space over joints. The limits are read once.
func NewCSpaceSampled(joints *model.JointSet, cdm *collision.CDManager, logger logging.Logger) (*CSpaceSampled, error) {
	if joints == nil {
		return nil, errors.New("configuration space needs a joint set")
	}
	if cdm == nil {
		return nil, errors.New("configuration space needs a collision manager")
	}
	if joints.Size() == 0 {
		return nil, errors.Errorf("joint set %q is empty", joints.Name())
	}
	lower, upper := joints.Limits()
	return &CSpaceSampled{
		joints:          joints,
		cdm:             cdm,
		logger:          logger,
		samplingSize:    defaultSamplingSize,
		dcdSamplingSize: defaultDCDSamplingSize,
		lower:           lower,
		upper:           upper,
	}, nil
}

// JointSet returns the joints spanning the space.
func (cs *CSpaceSampled) JointSet() *model.JointSet {
	return cs.joints
}

// CDManager returns the collision manager validity is checked against.
func (cs *CSpaceSampled) CDManager() *collision.CDManager {
	return cs.cdm
}

// Dimension returns the number of joints.
func (cs *CSpaceSampled) Dimension() int {
	return len(cs.lower)
}

// Boundaries returns copies of the lower and upper joint limits.
func (cs *CSpaceSampled) Boundaries() (lower, upper []float64) {
	return append([]float64(nil), cs.lower...), append([]float64(nil), cs.upper...)
}

// SamplingSize is the longest edge planners add to a tree.
func (cs *CSpaceSampled) SamplingSize() float64 {
	return cs.samplingSize
}

// SetSamplingSize sets the longest edge planners add to a tree.
func (cs *CSpaceSampled) SetSamplingSize(size float64) error {
	if !(size > 0) || math.IsInf(size, 1) {
		return errors.Errorf("sampling size must be positive and finite, got %v", size)
	}
	cs.samplingSize = size
	return nil
}

// DCDSamplingSize is the step used to subdivide an edge when validating it.
func (cs *CSpaceSampled) DCDSamplingSize() float64 {
	return cs.dcdSamplingSize
}

// SetDCDSamplingSize sets the step used to subdivide an edge when validating it.
func (cs *CSpaceSampled) SetDCDSamplingSize(size float64) error {
	if !(size > 0) || math.IsInf(size, 1) {
		return errors.Errorf("dcd sampling size must be positive and finite, got %v", size)
	}
	cs.dcdSamplingSize = size
	return nil
}

// SetExclusiveRobotAccess makes every model mutation and collision query of this space hold the checker's lock.
// It is only needed when several planners share one model or checker instance.
func (cs *CSpaceSampled) SetExclusiveRobotAccess(exclusive bool) {
	cs.exclusive = exclusive
}

// ExclusiveRobotAccess reports whether the checker lock is taken on every query.
func (cs *CSpaceSampled) ExclusiveRobotAccess() bool {
	return cs.exclusive
}

// RandomConfiguration samples uniformly inside the joint limits.
func (cs *CSpaceSampled) RandomConfiguration(r *rand.Rand) Configuration {
	c := make(Configuration, len(cs.lower))
	for i := range c {
		c[i] = cs.lower[i] + r.Float64()*(cs.upper[i]-cs.lower[i])
	}
	return c
}

// IsInBoundary reports whether c has the right dimension and lies inside the joint limits.
func (cs *CSpaceSampled) IsInBoundary(c Configuration) bool {
	if len(c) != len(cs.lower) {
		return false
	}
	for i, v := range c {
		if math.IsNaN(v) || v < cs.lower[i] || v > cs.upper[i] {
			return false
		}
	}
	return true
}

// IsValid applies c to the model and reports whether it is inside the limits and collision free.
// The model keeps the configuration afterwards.
func (cs *CSpaceSampled) IsValid(c Configuration) bool {
	cs.validityChecks.Inc()
	if !cs.IsInBoundary(c) {
		return false
	}
	if cs.exclusive && cs.cdm.Checker() != nil {
		defer cs.cdm.Checker().Lock()()
	}
	if err := cs.joints.SetJointValues(c); err != nil {
		cs.logger.Warnw("could not apply configuration", "configuration", c, "error", err)
		return false
	}
	cs.collisionChecks.Inc()
	return !cs.cdm.IsInCollision()
}

// IsPathValid checks the straight segment from a to b at the DCD resolution, stopping at the first invalid
// point. a itself is assumed valid.
func (cs *CSpaceSampled) IsPathValid(a, b Configuration) bool {
	cs.pathChecks.Inc()
	if len(a) != len(b) {
		return false
	}
	steps := int(math.Ceil(configurationDistance(a, b) / cs.dcdSamplingSize))
	if steps < 1 {
		steps = 1
	}
	for i := 1; i <= steps; i++ {
		if !cs.IsValid(interpolateConfigurations(a, b, float64(i)/float64(steps))) {
			return false
		}
	}
	return true
}

// Distance is the euclidean distance between a and b.
func (cs *CSpaceSampled) Distance(a, b Configuration) float64 {
	return configurationDistance(a, b)
}

// Interpolate returns the point at fraction t of the segment from a to b.
func (cs *CSpaceSampled) Interpolate(a, b Configuration, t float64) Configuration {
	return interpolateConfigurations(a, b, t)
}

// CSpaceStats counts the queries a configuration space has answered.
type CSpaceStats struct {
	ValidityChecks  int64
	CollisionChecks int64
	PathChecks      int64
}

// Stats returns the query counters.
func (cs *CSpaceSampled) Stats() CSpaceStats {
	return CSpaceStats{
		ValidityChecks:  cs.validityChecks.Load(),
		CollisionChecks: cs.collisionChecks.Load(),
		PathChecks:      cs.pathChecks.Load(),
	}
}
