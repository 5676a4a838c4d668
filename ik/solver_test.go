//go:build !windows && !no_cgo

package ik

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/motionkit/logging"
	"go.viam.com/motionkit/testutils"
)

func testOptions() *Options {
	opts := NewDefaultOptions()
	opts.Timeout = 200 * time.Millisecond
	return opts
}

func TestSolveReachable(t *testing.T) {
	logger := logging.NewTestLogger(t)
	m, js := testutils.NewPlanarArm(t, "arm", nil)
	m.SetUpdateVisualization(true)
	tcp := armTCP(t, m)

	ik, err := NewConstrainedOptimizationIK(js, testOptions(), logger)
	test.That(t, err, test.ShouldBeNil)
	pos, err := NewPositionConstraint(js, tcp, r3.Vector{X: 1, Y: 1}, SelectAll)
	test.That(t, err, test.ShouldBeNil)
	pos.SetTolerance(0.05)
	test.That(t, ik.AddConstraint(pos), test.ShouldBeNil)
	avoid, err := NewJointLimitAvoidanceConstraint(js)
	test.That(t, err, test.ShouldBeNil)
	avoid.SetOptimizationFunctionFactor(1e-3)
	test.That(t, ik.AddConstraint(avoid), test.ShouldBeNil)

	_, err = ik.Solve(context.Background())
	test.That(t, err, test.ShouldBeError, errNotInitialized)
	test.That(t, ik.SolveStep(), test.ShouldBeError, errNoStepwise)

	test.That(t, ik.Initialize(), test.ShouldBeNil)
	solved, err := ik.Solve(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, solved, test.ShouldBeTrue)

	// success implies every hard constraint holds at the configuration left in the model
	for _, c := range ik.Constraints() {
		for _, f := range c.OptimizationFunctions() {
			if !f.Soft {
				test.That(t, c.CheckTolerances(), test.ShouldBeTrue)
			}
		}
	}
	pose, err := m.GlobalPose(tcp)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pose.Point().Distance(r3.Vector{X: 1, Y: 1}), test.ShouldBeLessThan, 0.05)
	test.That(t, m.UpdateVisualization(), test.ShouldBeTrue)

	attempts := ik.Attempts()
	test.That(t, attempts, test.ShouldNotBeEmpty)
	last := attempts[len(attempts)-1]
	test.That(t, last.Success, test.ShouldBeTrue)
	test.That(t, ik.BestError(), test.ShouldEqual, last.Error)
	test.That(t, last.Functions, test.ShouldHaveLength, 1)
	test.That(t, last.Functions[0].Constraint, test.ShouldEqual, "Position(tcp)")
}

func TestSolveRetriesSeeds(t *testing.T) {
	m, js := testutils.NewPlanarArm(t, "arm", nil)
	tcp := armTCP(t, m)
	opts := testOptions()
	opts.GlobalTolerance = 1e-6
	ik, err := NewConstrainedOptimizationIK(js, opts, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	pos, err := NewPositionConstraint(js, tcp, r3.Vector{}, SelectAll)
	test.That(t, err, test.ShouldBeNil)
	pos.SetTolerance(1e-4)
	test.That(t, ik.AddConstraint(pos), test.ShouldBeNil)

	// the stretched arm is a stationary point of the distance to the base, the folded arm solves it
	ik.ClearSeeds()
	test.That(t, ik.AddSeed([]float64{0, 0}), test.ShouldBeNil)
	test.That(t, ik.AddSeed([]float64{0, math.Pi}), test.ShouldBeNil)
	test.That(t, ik.AddSeed([]float64{0}), test.ShouldNotBeNil)
	test.That(t, ik.Seeds(), test.ShouldHaveLength, 2)

	test.That(t, ik.Initialize(), test.ShouldBeNil)
	solved, err := ik.Solve(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, solved, test.ShouldBeTrue)
	attempts := ik.Attempts()
	test.That(t, attempts, test.ShouldHaveLength, 2)
	test.That(t, attempts[0].Success, test.ShouldBeFalse)
	test.That(t, attempts[0].Seed, test.ShouldEqual, SeedOther)
	test.That(t, attempts[1].Success, test.ShouldBeTrue)
	test.That(t, js.JointValues()[1], test.ShouldAlmostEqual, math.Pi, 1e-3)
}

func TestSolveKeepsBest(t *testing.T) {
	m, js := testutils.NewPlanarArm(t, "arm", nil)
	m.SetUpdateVisualization(true)
	tcp := armTCP(t, m)
	opts := testOptions()
	opts.MaxAttempts = 4
	ik, err := NewConstrainedOptimizationIK(js, opts, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	// out of reach: the best the arm can do is to point at it
	pos, err := NewPositionConstraint(js, tcp, r3.Vector{X: 5}, SelectAll)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ik.AddConstraint(pos), test.ShouldBeNil)
	test.That(t, js.SetJointValues([]float64{1, 1}), test.ShouldBeNil)
	test.That(t, ik.Initialize(), test.ShouldBeNil)

	solved, err := ik.Solve(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, solved, test.ShouldBeFalse)
	test.That(t, m.UpdateVisualization(), test.ShouldBeTrue)

	attempts := ik.Attempts()
	test.That(t, attempts, test.ShouldHaveLength, 4)
	test.That(t, attempts[0].Seed, test.ShouldEqual, SeedInitial)
	test.That(t, attempts[1].Seed, test.ShouldEqual, SeedZero)
	test.That(t, attempts[2].Seed, test.ShouldEqual, SeedRandom)
	best := attempts[0]
	for _, a := range attempts[1:] {
		if a.Error < best.Error {
			best = a
		}
	}
	test.That(t, ik.BestError(), test.ShouldEqual, best.Error)
	test.That(t, js.JointValues(), test.ShouldResemble, best.Result)
	// the zero seed already points at the target, 3 units short
	test.That(t, ik.BestError(), test.ShouldAlmostEqual, 9., 1e-3)
}

func TestSolveCancelled(t *testing.T) {
	m, js := testutils.NewPlanarArm(t, "arm", nil)
	ik, err := NewConstrainedOptimizationIK(js, testOptions(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	pos, err := NewPositionConstraint(js, armTCP(t, m), r3.Vector{X: 5}, SelectAll)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ik.AddConstraint(pos), test.ShouldBeNil)
	test.That(t, ik.Initialize(), test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	solved, err := ik.Solve(ctx)
	test.That(t, err, test.ShouldBeError, context.Canceled)
	test.That(t, solved, test.ShouldBeFalse)

	// adding a constraint requires initializing again
	test.That(t, ik.AddConstraint(pos), test.ShouldBeNil)
	_, err = ik.Solve(context.Background())
	test.That(t, err, test.ShouldBeError, errNotInitialized)
}
