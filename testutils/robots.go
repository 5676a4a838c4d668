// Package testutils holds fixtures shared by the package tests.
package testutils

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/motionkit/collision"
	"go.viam.com/motionkit/model"
	"go.viam.com/motionkit/spatialmath"
)

// PointRobot is a cartesian robot carrying a cube, with its joint set and collision set.
type PointRobot struct {
	Model  *model.Model
	Joints *model.JointSet
	Links  *model.LinkSet
}

// NewPointRobot builds a cartesian robot limited to [-bound, bound] on every axis carrying a cube of edge size.
func NewPointRobot(t *testing.T, name string, checker collision.Checker, bound, size float64) *PointRobot {
	t.Helper()
	cube, err := spatialmath.NewBox(spatialmath.NewZeroPose(), r3.Vector{X: size, Y: size, Z: size}, name)
	test.That(t, err, test.ShouldBeNil)
	m, err := model.NewCartesianRobot(name, checker, bound, cube)
	test.That(t, err, test.ShouldBeNil)
	return PointRobotFromModel(t, m)
}

// PointRobotFromModel looks up the registered sets of a cartesian robot.
func PointRobotFromModel(t *testing.T, m *model.Model) *PointRobot {
	t.Helper()
	js, err := m.JointSet(model.CartesianJointSet)
	test.That(t, err, test.ShouldBeNil)
	ls, err := m.LinkSet(model.CartesianLinkSet)
	test.That(t, err, test.ShouldBeNil)
	return &PointRobot{Model: m, Joints: js, Links: ls}
}

// NewBoxObstacle returns the collision set of a single box obstacle centered at center.
func NewBoxObstacle(t *testing.T, name string, checker collision.Checker, center, dims r3.Vector) *model.LinkSet {
	t.Helper()
	box, err := spatialmath.NewBox(spatialmath.NewZeroPose(), dims, name)
	test.That(t, err, test.ShouldBeNil)
	m, err := model.NewObstacle(name, box, spatialmath.NewPoseFromPoint(center), checker)
	test.That(t, err, test.ShouldBeNil)
	set, err := model.NewLinkSetFromModel(m, name)
	test.That(t, err, test.ShouldBeNil)
	return set
}

// NewPlanarArm builds base -> shoulder -> upper -> elbow -> fore -> tcp, two revolute joints about z with unit
// links along x. It registers the joint set "arm" with tcp "tcp".
func NewPlanarArm(t *testing.T, name string, checker model.CollisionContext) (*model.Model, *model.JointSet) {
	t.Helper()
	link, err := spatialmath.NewBox(spatialmath.NewPoseFromPoint(r3.Vector{X: 0.5}), r3.Vector{X: 1, Y: 0.1, Z: 0.1}, "")
	test.That(t, err, test.ShouldBeNil)
	unitX := spatialmath.NewPoseFromPoint(r3.Vector{X: 1})

	m := model.NewModel(name, checker)
	for _, step := range []func() error{
		func() error { _, err := m.AddLink(model.LinkConfig{Name: "base"}); return err },
		func() error {
			_, err := m.AddJoint(model.JointConfig{
				Name: "shoulder", Parent: "base", Type: model.JointRevolute, Axis: r3.Vector{Z: 1}, Lower: -math.Pi, Upper: math.Pi,
			})
			return err
		},
		func() error {
			_, err := m.AddLink(model.LinkConfig{Name: "upper", Parent: "shoulder", Geometry: link, Mass: 1, CenterOfMass: r3.Vector{X: 0.5}})
			return err
		},
		func() error {
			_, err := m.AddJoint(model.JointConfig{
				Name: "elbow", Parent: "upper", Type: model.JointRevolute, Axis: r3.Vector{Z: 1},
				Transform: unitX, Lower: -math.Pi, Upper: math.Pi,
			})
			return err
		},
		func() error {
			_, err := m.AddLink(model.LinkConfig{Name: "fore", Parent: "elbow", Geometry: link, Mass: 1, CenterOfMass: r3.Vector{X: 0.5}})
			return err
		},
		func() error {
			_, err := m.AddJoint(model.JointConfig{Name: "tcp", Parent: "fore", Type: model.JointFixed, Transform: unitX})
			return err
		},
	} {
		test.That(t, step(), test.ShouldBeNil)
	}
	js, err := model.NewJointSet(m, "arm", []string{"shoulder", "elbow"}, "", "tcp")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.RegisterJointSet(js), test.ShouldBeNil)
	return m, js
}
