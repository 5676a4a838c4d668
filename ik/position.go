package ik

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/motionkit/model"
)

const defaultPositionTolerance = 1.

// PositionConstraint pulls the origin of an end effector frame to a target point.
type PositionConstraint struct {
	constraintBase
	eef       model.NodeID
	target    r3.Vector
	selection CartesianSelection
	tolerance float64
}

// NewPositionConstraint returns a hard position constraint on eef. The selection picks one axis, or the full
// position for SelectPosition and SelectAll. SelectOrientation leaves the constraint without effect.
func NewPositionConstraint(
	joints *model.JointSet,
	eef model.NodeID,
	target r3.Vector,
	selection CartesianSelection,
) (*PositionConstraint, error) {
	base, err := newConstraintBase(joints)
	if err != nil {
		return nil, err
	}
	if !joints.Model().HasNode(eef) {
		return nil, errors.Errorf("end effector %d is not part of model %q", eef, joints.Model().Name())
	}
	c := &PositionConstraint{
		constraintBase: base,
		eef:            eef,
		target:         target,
		selection:      selection,
		tolerance:      defaultPositionTolerance,
	}
	c.addOptimizationFunction(0, false)
	return c, nil
}

// Type names the constraint and its end effector.
func (c *PositionConstraint) Type() string {
	return fmt.Sprintf("Position(%s)", c.joints.Model().NodeName(c.eef))
}

// Target returns the target point.
func (c *PositionConstraint) Target() r3.Vector {
	return c.target
}

// SetTolerance sets the distance below which the constraint counts as satisfied.
func (c *PositionConstraint) SetTolerance(tol float64) {
	c.tolerance = tol
}

// offset returns the selected components of eef - target.
func (c *PositionConstraint) offset() r3.Vector {
	pose, err := c.joints.Model().GlobalPose(c.eef)
	if err != nil {
		return r3.Vector{}
	}
	d := pose.Point().Sub(c.target)
	switch c.selection {
	case SelectX:
		return r3.Vector{X: d.X}
	case SelectY:
		return r3.Vector{Y: d.Y}
	case SelectZ:
		return r3.Vector{Z: d.Z}
	case SelectPosition, SelectAll:
		return d
	case SelectOrientation:
		return r3.Vector{}
	}
	return r3.Vector{}
}

// OptimizationFunction returns factor * |offset|^2.
func (c *PositionConstraint) OptimizationFunction(id int) float64 {
	d := c.offset()
	return c.factor * d.Dot(d)
}

// OptimizationGradient returns 2 * factor * offset^T * J, J being the positional rows of the eef Jacobian.
func (c *PositionConstraint) OptimizationGradient(id int) []float64 {
	d := c.offset()
	n := c.joints.Size()
	if d == (r3.Vector{}) {
		return make([]float64, n)
	}
	jac := model.Jacobian(c.joints, c.eef)
	var grad mat.VecDense
	grad.MulVec(jac.Slice(0, 3, 0, n).T(), mat.NewVecDense(3, []float64{d.X, d.Y, d.Z}))
	grad.ScaleVec(2*c.factor, &grad)
	return grad.RawVector().Data
}

// CheckTolerances reports whether the selected offset is shorter than the tolerance.
func (c *PositionConstraint) CheckTolerances() bool {
	return c.offset().Norm() < c.tolerance
}
