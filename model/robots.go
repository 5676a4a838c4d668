package model

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/motionkit/spatialmath"
)

// Names of the sets registered by NewCartesianRobot.
const (
	CartesianJointSet = "all"
	CartesianLinkSet  = "colModel"
	CartesianTCP      = "tcp"
)

// NewCartesianRobot builds a robot with three prismatic joints along x, y and z, each limited to
// [-bound, bound], carrying geom on its tool link. It registers the joint set "all" and the link set "colModel".
func NewCartesianRobot(name string, checker CollisionContext, bound float64, geom spatialmath.Geometry) (*Model, error) {
	if !(bound > 0) {
		return nil, errors.Errorf("cartesian robot bound must be positive, got %v", bound)
	}
	m := NewModel(name, checker)
	if _, err := m.AddLink(LinkConfig{Name: "base"}); err != nil {
		return nil, err
	}
	parent := "base"
	axes := []struct {
		name string
		axis r3.Vector
	}{{"x", r3.Vector{X: 1}}, {"y", r3.Vector{Y: 1}}, {"z", r3.Vector{Z: 1}}}
	joints := make([]string, 0, len(axes))
	for i, a := range axes {
		joint := "joint_" + a.name
		if _, err := m.AddJoint(JointConfig{
			Name: joint, Parent: parent, Type: JointPrismatic, Axis: a.axis, Lower: -bound, Upper: bound,
		}); err != nil {
			return nil, err
		}
		joints = append(joints, joint)
		link := "carriage_" + a.name
		cfg := LinkConfig{Name: link, Parent: joint}
		if i == len(axes)-1 {
			cfg.Name = CartesianTCP
			cfg.Geometry = geom
		}
		if _, err := m.AddLink(cfg); err != nil {
			return nil, err
		}
		parent = cfg.Name
	}

	js, err := NewJointSet(m, CartesianJointSet, joints, "", "")
	if err != nil {
		return nil, err
	}
	if err := m.RegisterJointSet(js); err != nil {
		return nil, err
	}
	ls, err := NewLinkSet(m, CartesianLinkSet, []string{CartesianTCP}, "", "")
	if err != nil {
		return nil, err
	}
	return m, m.RegisterLinkSet(ls)
}
