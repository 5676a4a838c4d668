package model

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/motionkit/spatialmath"
)

// Jacobian returns the 6xN geometric Jacobian of tcp with respect to the joints of js. Rows 0-2 are the
// linear velocity of the tcp origin, rows 3-5 the angular velocity, both in the world frame. Columns of
// joints that do not move tcp are zero.
func Jacobian(js *JointSet, tcp NodeID) *mat.Dense {
	m := js.model
	defer m.lock.Read()()
	jac := mat.NewDense(6, len(js.nodes), nil)
	if !m.valid(tcp) {
		return jac
	}
	m.fillJacobian(jac, js, tcp, m.nodes[tcp].global.Point(), 1)
	return jac
}

// CenterOfMassJacobian returns the 3xN Jacobian of the centre of mass of links with respect to the joints of js.
// Links without mass are ignored; the result is zero when no link has mass.
func CenterOfMassJacobian(js *JointSet, links []NodeID) *mat.Dense {
	m := js.model
	defer m.lock.Read()()
	full := mat.NewDense(6, len(js.nodes), nil)
	total := 0.
	for _, id := range links {
		if m.valid(id) && m.nodes[id].mass > 0 {
			total += m.nodes[id].mass
		}
	}
	if total > 0 {
		for _, id := range links {
			if !m.valid(id) || m.nodes[id].mass <= 0 {
				continue
			}
			n := m.nodes[id]
			m.fillJacobian(full, js, id, spatialmath.TransformPoint(n.global, n.centerOfMass), n.mass/total)
		}
	}
	jac := mat.NewDense(3, len(js.nodes), nil)
	jac.Copy(full.Slice(0, 3, 0, len(js.nodes)))
	return jac
}

// fillJacobian adds weight times the Jacobian of the world point pt, rigidly attached to target, to jac.
func (m *Model) fillJacobian(jac *mat.Dense, js *JointSet, target NodeID, pt r3.Vector, weight float64) {
	for col, id := range js.nodes {
		if !m.isAncestor(id, target) {
			continue
		}
		n := m.nodes[id]
		axis := n.global.Orientation().Apply(n.axis)
		var linear, angular r3.Vector
		switch n.typ {
		case JointRevolute:
			linear = axis.Cross(pt.Sub(n.global.Point()))
			angular = axis
		case JointPrismatic:
			linear = axis
		case Link, JointFixed:
			continue
		}
		for row, v := range []float64{linear.X, linear.Y, linear.Z, angular.X, angular.Y, angular.Z} {
			jac.Set(row, col, jac.At(row, col)+weight*v)
		}
	}
}
