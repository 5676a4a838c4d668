// Package ik solves inverse kinematics as a constrained nonlinear optimization over a stack of constraints.
package ik

import (
	"github.com/pkg/errors"

	"go.viam.com/motionkit/model"
)

// FunctionKind says how the solver uses an optimization function.
type FunctionKind int

const (
	// Objective functions are summed into the minimized objective.
	Objective FunctionKind = iota
	// Equality functions are passed to the optimizer as h(x) = 0.
	Equality
	// Inequality functions are passed to the optimizer as f(x) <= 0.
	Inequality
)

func (k FunctionKind) String() string {
	switch k {
	case Objective:
		return "objective"
	case Equality:
		return "equality"
	case Inequality:
		return "inequality"
	default:
		return "unknown"
	}
}

// OptimizationFunction is one scalar function exposed by a constraint.
// Hard functions decide whether a solution is accepted; soft ones only shape the objective.
type OptimizationFunction struct {
	ID   int
	Soft bool
	Kind FunctionKind
}

// A Constraint contributes cost functions with analytic gradients over the joints of its joint set.
type Constraint interface {
	// Type names the constraint in diagnostics.
	Type() string
	JointSet() *model.JointSet
	OptimizationFunctions() []OptimizationFunction
	// OptimizationFunction evaluates function id at the current joint values.
	OptimizationFunction(id int) float64
	// OptimizationGradient returns the gradient of function id, one entry per joint.
	OptimizationGradient(id int) []float64
	// CheckTolerances reports whether the constraint is satisfied, independent of the cost value.
	CheckTolerances() bool
	UsingCollisionModel() bool
}

// CartesianSelection restricts a pose constraint to some of its components.
type CartesianSelection int

const (
	SelectX CartesianSelection = iota
	SelectY
	SelectZ
	SelectPosition
	SelectOrientation
	SelectAll
)

var errNoJointSet = errors.New("constraint needs a joint set")

// constraintBase holds the joint set, the function list and the cost factor shared by all constraints.
type constraintBase struct {
	joints    *model.JointSet
	functions []OptimizationFunction
	factor    float64
}

func newConstraintBase(joints *model.JointSet) (constraintBase, error) {
	if joints == nil || joints.Size() == 0 {
		return constraintBase{}, errNoJointSet
	}
	return constraintBase{joints: joints, factor: 1}, nil
}

func (c *constraintBase) addOptimizationFunction(id int, soft bool) {
	c.functions = append(c.functions, OptimizationFunction{ID: id, Soft: soft, Kind: Objective})
}

// JointSet returns the joints the gradients are taken over.
func (c *constraintBase) JointSet() *model.JointSet {
	return c.joints
}

// OptimizationFunctions returns a copy of the function list.
func (c *constraintBase) OptimizationFunctions() []OptimizationFunction {
	return append([]OptimizationFunction(nil), c.functions...)
}

// SetSoft marks every function soft or hard.
func (c *constraintBase) SetSoft(soft bool) {
	for i := range c.functions {
		c.functions[i].Soft = soft
	}
}

// SetKind changes how every function is passed to the optimizer. Equality and inequality functions are hard.
func (c *constraintBase) SetKind(kind FunctionKind) {
	for i := range c.functions {
		c.functions[i].Kind = kind
		if kind != Objective {
			c.functions[i].Soft = false
		}
	}
}

// SetOptimizationFunctionFactor scales the cost and gradient.
func (c *constraintBase) SetOptimizationFunctionFactor(factor float64) {
	c.factor = factor
}

// OptimizationFunctionFactor returns the cost scale.
func (c *constraintBase) OptimizationFunctionFactor() float64 {
	return c.factor
}

// UsingCollisionModel is false unless a constraint queries collision geometry.
func (c *constraintBase) UsingCollisionModel() bool {
	return false
}
