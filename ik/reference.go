package ik

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"go.viam.com/motionkit/model"
)

// ReferenceConfigurationConstraint is a soft pull of every joint toward a reference configuration.
type ReferenceConfigurationConstraint struct {
	constraintBase
	name      string
	reference []float64
}

// NewReferenceConfigurationConstraint returns a soft constraint penalizing the squared distance to reference.
func NewReferenceConfigurationConstraint(joints *model.JointSet, reference []float64) (*ReferenceConfigurationConstraint, error) {
	base, err := newConstraintBase(joints)
	if err != nil {
		return nil, err
	}
	c := &ReferenceConfigurationConstraint{constraintBase: base, name: "ReferenceConfiguration"}
	if err := c.SetReferenceConfiguration(reference); err != nil {
		return nil, err
	}
	c.addOptimizationFunction(0, true)
	return c, nil
}

// NewJointLimitAvoidanceConstraint pulls every joint toward the middle of its limits.
func NewJointLimitAvoidanceConstraint(joints *model.JointSet) (*ReferenceConfigurationConstraint, error) {
	if joints == nil {
		return nil, errNoJointSet
	}
	lower, upper := joints.Limits()
	mid := make([]float64, len(lower))
	for i := range mid {
		mid[i] = lower[i] + (upper[i]-lower[i])/2
	}
	c, err := NewReferenceConfigurationConstraint(joints, mid)
	if err != nil {
		return nil, err
	}
	c.name = "JointLimitAvoidance"
	return c, nil
}

// Type returns the constraint name.
func (c *ReferenceConfigurationConstraint) Type() string {
	return c.name
}

// ReferenceConfiguration returns a copy of the reference.
func (c *ReferenceConfigurationConstraint) ReferenceConfiguration() []float64 {
	return append([]float64(nil), c.reference...)
}

// SetReferenceConfiguration replaces the reference. It must have one value per joint.
func (c *ReferenceConfigurationConstraint) SetReferenceConfiguration(reference []float64) error {
	if len(reference) != c.joints.Size() {
		return errors.Errorf("reference has %d values, joint set %q has %d joints", len(reference), c.joints.Name(), c.joints.Size())
	}
	c.reference = append([]float64(nil), reference...)
	return nil
}

// OptimizationFunction returns factor * |q - reference|^2.
func (c *ReferenceConfigurationConstraint) OptimizationFunction(id int) float64 {
	d := c.deviation()
	return c.factor * floats.Dot(d, d)
}

// OptimizationGradient returns 2 * factor * (q - reference).
func (c *ReferenceConfigurationConstraint) OptimizationGradient(id int) []float64 {
	d := c.deviation()
	floats.Scale(2*c.factor, d)
	return d
}

// CheckTolerances is always satisfied.
func (c *ReferenceConfigurationConstraint) CheckTolerances() bool {
	return true
}

func (c *ReferenceConfigurationConstraint) deviation() []float64 {
	q := c.joints.JointValues()
	floats.Sub(q, c.reference)
	return q
}
