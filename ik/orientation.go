package ik

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/motionkit/model"
	"go.viam.com/motionkit/spatialmath"
)

const defaultOrientationTolerance = 0.1

// OrientationConstraint turns an end effector frame toward a target orientation. Its cost is the squared angle
// of the rotation between the two, taken from the log map.
type OrientationConstraint struct {
	constraintBase
	eef       model.NodeID
	target    *spatialmath.RotationMatrix
	tolerance float64
}

// NewOrientationConstraint returns a hard orientation constraint on eef.
func NewOrientationConstraint(
	joints *model.JointSet,
	eef model.NodeID,
	target *spatialmath.RotationMatrix,
) (*OrientationConstraint, error) {
	base, err := newConstraintBase(joints)
	if err != nil {
		return nil, err
	}
	if !joints.Model().HasNode(eef) {
		return nil, errors.Errorf("end effector %d is not part of model %q", eef, joints.Model().Name())
	}
	if target == nil {
		target = spatialmath.NewIdentityRotation()
	}
	c := &OrientationConstraint{constraintBase: base, eef: eef, target: target, tolerance: defaultOrientationTolerance}
	c.addOptimizationFunction(0, false)
	return c, nil
}

// Type names the constraint and its end effector.
func (c *OrientationConstraint) Type() string {
	return fmt.Sprintf("Orientation(%s)", c.joints.Model().NodeName(c.eef))
}

// SetTolerance sets the angle in radians below which the constraint counts as satisfied.
func (c *OrientationConstraint) SetTolerance(tol float64) {
	c.tolerance = tol
}

// rotationError is the world frame rotation vector taking the eef orientation to the target.
func (c *OrientationConstraint) rotationError() r3.Vector {
	pose, err := c.joints.Model().GlobalPose(c.eef)
	if err != nil {
		return r3.Vector{}
	}
	return c.target.Mul(pose.Orientation().Transpose()).LogMap()
}

// OptimizationFunction returns factor * angle^2.
func (c *OrientationConstraint) OptimizationFunction(id int) float64 {
	e := c.rotationError()
	return c.factor * e.Dot(e)
}

// OptimizationGradient returns -2 * factor * e^T * Jw, exact to first order in the remaining angle.
func (c *OrientationConstraint) OptimizationGradient(id int) []float64 {
	e := c.rotationError()
	n := c.joints.Size()
	if e == (r3.Vector{}) {
		return make([]float64, n)
	}
	jac := model.Jacobian(c.joints, c.eef)
	var grad mat.VecDense
	grad.MulVec(jac.Slice(3, 6, 0, n).T(), mat.NewVecDense(3, []float64{e.X, e.Y, e.Z}))
	grad.ScaleVec(-2*c.factor, &grad)
	return grad.RawVector().Data
}

// CheckTolerances reports whether the remaining angle is below the tolerance.
func (c *OrientationConstraint) CheckTolerances() bool {
	return c.rotationError().Norm() < c.tolerance
}
