package ik

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/floats"

	"go.viam.com/motionkit/logging"
	"go.viam.com/motionkit/model"
	"go.viam.com/motionkit/spatialmath"
	"go.viam.com/motionkit/testutils"
)

func armTCP(t *testing.T, m *model.Model) model.NodeID {
	t.Helper()
	id, ok := m.Node("tcp")
	test.That(t, ok, test.ShouldBeTrue)
	return id
}

// checkGradient compares the analytic gradient of c against central differences at q.
func checkGradient(t *testing.T, c Constraint, q []float64, tol float64) {
	t.Helper()
	js := c.JointSet()
	test.That(t, js.SetJointValues(q), test.ShouldBeNil)
	grad := c.OptimizationGradient(0)
	test.That(t, grad, test.ShouldHaveLength, len(q))
	const h = 1e-6
	for i := range q {
		plus := append([]float64(nil), q...)
		minus := append([]float64(nil), q...)
		plus[i] += h
		minus[i] -= h
		test.That(t, js.SetJointValues(plus), test.ShouldBeNil)
		fPlus := c.OptimizationFunction(0)
		test.That(t, js.SetJointValues(minus), test.ShouldBeNil)
		fMinus := c.OptimizationFunction(0)
		test.That(t, grad[i], test.ShouldAlmostEqual, (fPlus-fMinus)/(2*h), tol)
	}
	test.That(t, js.SetJointValues(q), test.ShouldBeNil)
}

func TestPositionConstraintAtTarget(t *testing.T) {
	m, js := testutils.NewPlanarArm(t, "arm", nil)
	tcp := armTCP(t, m)
	test.That(t, js.SetJointValues([]float64{0.3, -0.8}), test.ShouldBeNil)
	pose, err := m.GlobalPose(tcp)
	test.That(t, err, test.ShouldBeNil)

	c, err := NewPositionConstraint(js, tcp, pose.Point(), SelectAll)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.OptimizationFunction(0), test.ShouldEqual, 0.)
	test.That(t, floats.Norm(c.OptimizationGradient(0), 2), test.ShouldEqual, 0.)
	test.That(t, c.CheckTolerances(), test.ShouldBeTrue)
	test.That(t, c.OptimizationFunctions(), test.ShouldResemble, []OptimizationFunction{{ID: 0, Soft: false, Kind: Objective}})
	test.That(t, c.Type(), test.ShouldEqual, "Position(tcp)")
}

func TestPositionConstraint(t *testing.T) {
	m, js := testutils.NewPlanarArm(t, "arm", nil)
	tcp := armTCP(t, m)
	target := r3.Vector{X: 0.5, Y: 1.2, Z: 0.3}

	c, err := NewPositionConstraint(js, tcp, target, SelectAll)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, js.SetJointValues([]float64{0, 0}), test.ShouldBeNil)
	// tcp at (2, 0, 0)
	test.That(t, c.OptimizationFunction(0), test.ShouldAlmostEqual, 1.5*1.5+1.2*1.2+0.3*0.3)
	test.That(t, c.CheckTolerances(), test.ShouldBeFalse)
	checkGradient(t, c, []float64{0.4, 0.9}, 1e-5)

	// checkGradient leaves the arm at the sampled configuration
	test.That(t, js.SetJointValues([]float64{0, 0}), test.ShouldBeNil)
	c.SetOptimizationFunctionFactor(3)
	test.That(t, c.OptimizationFunction(0), test.ShouldAlmostEqual, 3*(1.5*1.5+1.2*1.2+0.3*0.3))
	checkGradient(t, c, []float64{-1, 0.2}, 1e-5)

	test.That(t, js.SetJointValues([]float64{0, 0}), test.ShouldBeNil)
	x, err := NewPositionConstraint(js, tcp, target, SelectX)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, x.OptimizationFunction(0), test.ShouldAlmostEqual, 1.5*1.5)
	checkGradient(t, x, []float64{0.4, 0.9}, 1e-5)

	// the z offset cannot be changed by a planar arm
	z, err := NewPositionConstraint(js, tcp, target, SelectZ)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, z.OptimizationFunction(0), test.ShouldAlmostEqual, 0.09)
	test.That(t, floats.Norm(z.OptimizationGradient(0), 2), test.ShouldAlmostEqual, 0.)
	z.SetTolerance(0.5)
	test.That(t, z.CheckTolerances(), test.ShouldBeTrue)

	o, err := NewPositionConstraint(js, tcp, target, SelectOrientation)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, o.OptimizationFunction(0), test.ShouldEqual, 0.)

	_, err = NewPositionConstraint(nil, tcp, target, SelectAll)
	test.That(t, err, test.ShouldBeError, errNoJointSet)
	_, err = NewPositionConstraint(js, model.NodeID(99), target, SelectAll)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestOrientationConstraint(t *testing.T) {
	m, js := testutils.NewPlanarArm(t, "arm", nil)
	tcp := armTCP(t, m)
	target := spatialmath.NewRotationMatrixFromAxisAngle(r3.Vector{Z: 1}, 1.0)

	c, err := NewOrientationConstraint(js, tcp, target)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, js.SetJointValues([]float64{0.2, 0.3}), test.ShouldBeNil)
	test.That(t, c.OptimizationFunction(0), test.ShouldAlmostEqual, 0.25, 1e-9)
	test.That(t, c.CheckTolerances(), test.ShouldBeFalse)
	// rotations about the joint axes commute, so the first order gradient is exact here
	checkGradient(t, c, []float64{0.2, 0.3}, 1e-5)

	test.That(t, js.SetJointValues([]float64{0.6, 0.45}), test.ShouldBeNil)
	test.That(t, c.CheckTolerances(), test.ShouldBeTrue)
	test.That(t, c.Type(), test.ShouldEqual, "Orientation(tcp)")
}

func TestTSRConstraint(t *testing.T) {
	m, js := testutils.NewPlanarArm(t, "arm", nil)
	tcp := armTCP(t, m)
	unbounded := [2]float64{-math.Pi, math.Pi}
	bounds := TSRBounds{{1.5, 3}, {-0.1, 0.1}, {-1, 1}, unbounded, unbounded, unbounded}
	c, err := NewTSRConstraint(js, tcp, nil, nil, bounds)
	test.That(t, err, test.ShouldBeNil)

	// stretched arm reaches (2, 0, 0), inside the region
	test.That(t, js.SetJointValues([]float64{0, 0}), test.ShouldBeNil)
	test.That(t, c.Error(1), test.ShouldResemble, make([]float64, 6))
	test.That(t, c.OptimizationFunction(0), test.ShouldEqual, 0.)
	test.That(t, floats.Norm(c.OptimizationGradient(0), 2), test.ShouldEqual, 0.)
	test.That(t, c.CheckTolerances(), test.ShouldBeTrue)

	// folded to (1, 1, 0): x is 0.5 short, y 0.9 too far
	test.That(t, js.SetJointValues([]float64{0, math.Pi / 2}), test.ShouldBeNil)
	e := c.Error(1)
	test.That(t, e[0], test.ShouldAlmostEqual, 0.5)
	test.That(t, e[1], test.ShouldAlmostEqual, -0.9)
	test.That(t, e[2], test.ShouldEqual, 0.)
	test.That(t, c.Error(0.5)[0], test.ShouldAlmostEqual, 0.25)
	test.That(t, c.OptimizationFunction(0), test.ShouldAlmostEqual, 0.25+0.81)
	test.That(t, c.CheckTolerances(), test.ShouldBeFalse)
	c.SetTolerances(2, 0.1)
	test.That(t, c.CheckTolerances(), test.ShouldBeTrue)

	// rows of satisfied components are zeroed
	jac := c.Jacobian()
	for _, row := range []int{2, 3, 4, 5} {
		for col := 0; col < 2; col++ {
			test.That(t, jac.At(row, col), test.ShouldEqual, 0.)
		}
	}
	checkGradient(t, c, []float64{0.1, math.Pi / 2}, 1e-5)

	bad := bounds
	bad[0] = [2]float64{1, 0}
	_, err = NewTSRConstraint(js, tcp, nil, nil, bad)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestTSRConstraintTransformation(t *testing.T) {
	m, js := testutils.NewPlanarArm(t, "arm", nil)
	tcp := armTCP(t, m)
	zero := [2]float64{0, 0}
	unbounded := [2]float64{-math.Pi, math.Pi}
	// a region frame at (0, 2, 0) rotated a quarter turn: region x is world y
	region := spatialmath.NewPoseFromRPY(0, 2, 0, 0, 0, math.Pi/2)
	bounds := TSRBounds{{-1, -1}, zero, zero, unbounded, unbounded, unbounded}
	c, err := NewTSRConstraint(js, tcp, region, nil, bounds)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Transformation(), test.ShouldEqual, region)

	// the target is (0, 1, 0) in the world; stretched along y the tcp is one unit beyond it
	test.That(t, js.SetJointValues([]float64{math.Pi / 2, 0}), test.ShouldBeNil)
	e := c.Error(1)
	test.That(t, e[0], test.ShouldAlmostEqual, 0.)
	test.That(t, e[1], test.ShouldAlmostEqual, -1.)
}

func TestJointLimitAvoidance(t *testing.T) {
	robot := testutils.NewPointRobot(t, "robot", nil, 10, 1)
	c, err := NewJointLimitAvoidanceConstraint(robot.Joints)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.ReferenceConfiguration(), test.ShouldResemble, []float64{0, 0, 0})
	test.That(t, c.OptimizationFunctions()[0].Soft, test.ShouldBeTrue)
	test.That(t, c.Type(), test.ShouldEqual, "JointLimitAvoidance")

	test.That(t, robot.Joints.SetJointValues([]float64{1, -2, 3}), test.ShouldBeNil)
	test.That(t, c.OptimizationFunction(0), test.ShouldAlmostEqual, 14.)
	test.That(t, c.OptimizationGradient(0), test.ShouldResemble, []float64{2, -4, 6})
	test.That(t, c.CheckTolerances(), test.ShouldBeTrue)

	test.That(t, c.SetReferenceConfiguration([]float64{1}), test.ShouldNotBeNil)
	_, err = NewReferenceConfigurationConstraint(robot.Joints, []float64{1, 2})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestBalanceConstraint(t *testing.T) {
	m, js := testutils.NewPlanarArm(t, "arm", nil)
	upper, _ := m.Node("upper")
	fore, _ := m.Node("fore")
	square := []r2.Point{{X: -0.75, Y: -0.75}, {X: 0.75, Y: 0.75}, {X: 0.75, Y: -0.75}, {X: -0.75, Y: 0.75}, {X: 0, Y: 0}}
	c, err := NewBalanceConstraint(js, []model.NodeID{upper, fore}, square)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.SupportPolygon(), test.ShouldHaveLength, 4)

	// folded back onto itself the centre of mass is at (0.5, 0)
	test.That(t, js.SetJointValues([]float64{0, math.Pi}), test.ShouldBeNil)
	test.That(t, c.OptimizationFunction(0), test.ShouldAlmostEqual, 0.)
	test.That(t, c.CheckTolerances(), test.ShouldBeTrue)

	// stretched the centre of mass is at (1, 0), 0.25 outside
	test.That(t, js.SetJointValues([]float64{0, 0}), test.ShouldBeNil)
	test.That(t, c.OptimizationFunction(0), test.ShouldAlmostEqual, 0.0625)
	test.That(t, c.CheckTolerances(), test.ShouldBeFalse)
	c.SetTolerance(0.3)
	test.That(t, c.CheckTolerances(), test.ShouldBeTrue)
	checkGradient(t, c, []float64{0.3, 0.4}, 1e-5)

	_, err = NewBalanceConstraint(js, nil, square)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewBalanceConstraint(js, []model.NodeID{upper}, nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestConstraintKinds(t *testing.T) {
	m, js := testutils.NewPlanarArm(t, "arm", nil)
	c, err := NewPositionConstraint(js, armTCP(t, m), r3.Vector{X: 1}, SelectAll)
	test.That(t, err, test.ShouldBeNil)
	c.SetSoft(true)
	test.That(t, c.OptimizationFunctions()[0].Soft, test.ShouldBeTrue)
	c.SetKind(Equality)
	f := c.OptimizationFunctions()[0]
	test.That(t, f.Kind, test.ShouldEqual, Equality)
	test.That(t, f.Soft, test.ShouldBeFalse)
	test.That(t, f.Kind.String(), test.ShouldEqual, "equality")
	test.That(t, c.UsingCollisionModel(), test.ShouldBeFalse)
}

func TestObjective(t *testing.T) {
	logger := logging.NewTestLogger(t)

	t.Run("rotational joints", func(t *testing.T) {
		m, js := testutils.NewPlanarArm(t, "arm", nil)
		ik, err := NewConstrainedOptimizationIK(js, nil, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ik.Initialize(), test.ShouldBeError, errNoConstraints)

		pos, err := NewPositionConstraint(js, armTCP(t, m), r3.Vector{X: 1, Y: 1}, SelectAll)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ik.AddConstraint(pos), test.ShouldBeNil)
		test.That(t, ik.Initialize(), test.ShouldBeNil)

		grad := make([]float64, 2)
		value := ik.objective([]float64{0.2, 0.1}, grad)
		test.That(t, value, test.ShouldAlmostEqual, pos.OptimizationFunction(0))
		test.That(t, floats.Norm(grad, 2), test.ShouldAlmostEqual, 1.)
		raw := pos.OptimizationGradient(0)
		floats.Scale(1/floats.Norm(raw, 2), raw)
		test.That(t, grad[0], test.ShouldAlmostEqual, raw[0])
		test.That(t, grad[1], test.ShouldAlmostEqual, raw[1])
		test.That(t, js.JointValues(), test.ShouldResemble, []float64{0.2, 0.1})
	})

	t.Run("linear joints", func(t *testing.T) {
		robot := testutils.NewPointRobot(t, "robot", nil, 10, 1)
		ik, err := NewConstrainedOptimizationIK(robot.Joints, nil, logger)
		test.That(t, err, test.ShouldBeNil)
		pos, err := NewPositionConstraint(robot.Joints, robot.Joints.TCP(), r3.Vector{X: 1, Y: 2, Z: 2}, SelectAll)
		test.That(t, err, test.ShouldBeNil)
		avoid, err := NewJointLimitAvoidanceConstraint(robot.Joints)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ik.AddConstraint(pos), test.ShouldBeNil)
		test.That(t, ik.AddConstraint(avoid), test.ShouldBeNil)
		test.That(t, ik.Initialize(), test.ShouldBeNil)

		// the pull toward the target and toward the limit midpoint cancel at half way
		grad := make([]float64, 3)
		value := ik.objective([]float64{0.5, 1, 1}, grad)
		test.That(t, value, test.ShouldAlmostEqual, 2*(0.25+1+1))
		test.That(t, floats.Norm(grad, 2), test.ShouldEqual, 0.)

		value = ik.objective([]float64{0, 0, 0}, grad)
		test.That(t, value, test.ShouldAlmostEqual, 9.)
		test.That(t, floats.Norm(grad, 2), test.ShouldAlmostEqual, 1.)
		test.That(t, grad[1], test.ShouldAlmostEqual, -2./3)

		// without a gradient buffer only the value is computed
		test.That(t, ik.objective([]float64{1, 2, 2}, nil), test.ShouldAlmostEqual, 9.)
	})
}

func TestConvexHull(t *testing.T) {
	hull := convexHull([]r2.Point{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 0, Y: 2}, {X: 1, Y: 0}})
	test.That(t, hull, test.ShouldResemble, []r2.Point{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2}})
	test.That(t, insidePolygon(hull, r2.Point{X: 1, Y: 1}), test.ShouldBeTrue)
	test.That(t, insidePolygon(hull, r2.Point{X: 3, Y: 1}), test.ShouldBeFalse)
	test.That(t, closestOnPolygon(hull, r2.Point{X: 3, Y: 1}), test.ShouldResemble, r2.Point{X: 2, Y: 1})
}
