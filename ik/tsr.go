package ik

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/motionkit/model"
	"go.viam.com/motionkit/spatialmath"
)

const (
	defaultTSRTranslationTolerance = 1.
	defaultTSRRotationTolerance    = 0.1
	rpyNoise                       = 1e-12
)

// TSRBounds are the allowed [min, max] intervals of x, y, z, roll, pitch and yaw inside a task space region.
type TSRBounds [6][2]float64

// TSRConstraint keeps an end effector inside a task space region: the pose of eef*offset expressed in the region
// frame must have its position and RPY components inside the bounds. Components already inside their interval
// count as satisfied.
type TSRConstraint struct {
	constraintBase
	eef            model.NodeID
	transformation spatialmath.Pose
	offset         spatialmath.Pose
	bounds         TSRBounds

	toleranceTranslation float64
	toleranceRotation    float64
}

// NewTSRConstraint returns a hard region constraint. transformation places the region in the world, offset is
// applied to the eef before measuring.
func NewTSRConstraint(
	joints *model.JointSet,
	eef model.NodeID,
	transformation, offset spatialmath.Pose,
	bounds TSRBounds,
) (*TSRConstraint, error) {
	base, err := newConstraintBase(joints)
	if err != nil {
		return nil, err
	}
	if !joints.Model().HasNode(eef) {
		return nil, errors.Errorf("end effector %d is not part of model %q", eef, joints.Model().Name())
	}
	for i, b := range bounds {
		if b[0] > b[1] {
			return nil, errors.Errorf("bound %d is empty: [%v, %v]", i, b[0], b[1])
		}
	}
	if transformation == nil {
		transformation = spatialmath.NewZeroPose()
	}
	if offset == nil {
		offset = spatialmath.NewZeroPose()
	}
	c := &TSRConstraint{
		constraintBase:       base,
		eef:                  eef,
		transformation:       transformation,
		offset:               offset,
		bounds:               bounds,
		toleranceTranslation: defaultTSRTranslationTolerance,
		toleranceRotation:    defaultTSRRotationTolerance,
	}
	c.addOptimizationFunction(0, false)
	return c, nil
}

// Type names the constraint and its end effector.
func (c *TSRConstraint) Type() string {
	return fmt.Sprintf("TSR(%s)", c.joints.Model().NodeName(c.eef))
}

// Transformation returns the region frame.
func (c *TSRConstraint) Transformation() spatialmath.Pose {
	return c.transformation
}

// Bounds returns the region intervals.
func (c *TSRConstraint) Bounds() TSRBounds {
	return c.bounds
}

// SetTolerances sets the translational and rotational error norms below which the constraint is satisfied.
func (c *TSRConstraint) SetTolerances(translation, rotation float64) {
	c.toleranceTranslation = translation
	c.toleranceRotation = rotation
}

// Error returns the six component world frame error between the closest pose inside the region and the current
// pose, scaled by stepSize. Components inside their interval are exactly zero.
func (c *TSRConstraint) Error(stepSize float64) []float64 {
	dx := make([]float64, 6)
	eefGlobal, err := c.joints.Model().GlobalPose(c.eef)
	if err != nil {
		return dx
	}
	current := spatialmath.Compose(eefGlobal, c.offset)
	inRegion := spatialmath.PoseToRPY(spatialmath.PoseBetween(c.transformation, current))

	var target [6]float64
	for i, v := range inRegion {
		target[i] = v
		if v < c.bounds[i][0] {
			target[i] = c.bounds[i][0]
		} else if v > c.bounds[i][1] {
			target[i] = c.bounds[i][1]
		}
	}
	if target == inRegion {
		return dx
	}
	targetPose := spatialmath.NewPoseFromRPY(target[0], target[1], target[2], target[3], target[4], target[5])
	targetGlobal := spatialmath.PoseToRPY(spatialmath.Compose(c.transformation, targetPose))
	currentGlobal := spatialmath.PoseToRPY(current)
	for i := range dx {
		d := targetGlobal[i] - currentGlobal[i]
		// RPY round trips leave noise in components that did not move
		if math.Abs(d) < rpyNoise {
			continue
		}
		dx[i] = d * stepSize
	}
	return dx
}

// Jacobian returns the eef Jacobian with the rows of satisfied components zeroed.
func (c *TSRConstraint) Jacobian() *mat.Dense {
	e := c.Error(1)
	jac := model.Jacobian(c.joints, c.eef)
	_, n := jac.Dims()
	for i, v := range e {
		if v == 0 {
			jac.SetRow(i, make([]float64, n))
		}
	}
	return jac
}

// OptimizationFunction returns factor * |error|^2.
func (c *TSRConstraint) OptimizationFunction(id int) float64 {
	e := mat.NewVecDense(6, c.Error(1))
	return c.factor * mat.Dot(e, e)
}

// OptimizationGradient returns -2 * factor * error^T * J with the rows of satisfied components zeroed.
func (c *TSRConstraint) OptimizationGradient(id int) []float64 {
	e := c.Error(1)
	n := c.joints.Size()
	var grad mat.VecDense
	grad.MulVec(c.Jacobian().T(), mat.NewVecDense(6, e))
	grad.ScaleVec(-2*c.factor, &grad)
	if grad.Len() != n {
		return make([]float64, n)
	}
	return grad.RawVector().Data
}

// CheckTolerances compares the translational and rotational halves of the error against their tolerances.
func (c *TSRConstraint) CheckTolerances() bool {
	e := c.Error(1)
	translation := mat.Norm(mat.NewVecDense(3, e[:3]), 2)
	rotation := mat.Norm(mat.NewVecDense(3, e[3:]), 2)
	return translation < c.toleranceTranslation && rotation < c.toleranceRotation
}
