package ik

import (
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/motionkit/model"
)

// BalanceConstraint keeps the ground projection of the centre of mass of some links inside a support polygon.
// The cost is the squared distance of the projection to the polygon, zero inside.
type BalanceConstraint struct {
	constraintBase
	bodies    []model.NodeID
	support   []r2.Point
	tolerance float64
}

// NewBalanceConstraint returns a hard balance constraint. support lists the ground contact points in the world
// xy plane; their convex hull is the support polygon.
func NewBalanceConstraint(joints *model.JointSet, bodies []model.NodeID, support []r2.Point) (*BalanceConstraint, error) {
	base, err := newConstraintBase(joints)
	if err != nil {
		return nil, err
	}
	if len(bodies) == 0 {
		return nil, errors.New("balance constraint needs at least one body")
	}
	for _, id := range bodies {
		if !joints.Model().HasNode(id) {
			return nil, errors.Errorf("body %d is not part of model %q", id, joints.Model().Name())
		}
	}
	hull := convexHull(support)
	if len(hull) == 0 {
		return nil, errors.New("balance constraint needs a support polygon")
	}
	c := &BalanceConstraint{constraintBase: base, bodies: append([]model.NodeID(nil), bodies...), support: hull}
	c.addOptimizationFunction(0, false)
	return c, nil
}

// Type names the constraint.
func (c *BalanceConstraint) Type() string {
	return fmt.Sprintf("Balance(%d bodies)", len(c.bodies))
}

// SupportPolygon returns the hull vertices in counter clockwise order.
func (c *BalanceConstraint) SupportPolygon() []r2.Point {
	return append([]r2.Point(nil), c.support...)
}

// SetTolerance sets how far outside the polygon the projection may be.
func (c *BalanceConstraint) SetTolerance(tol float64) {
	c.tolerance = tol
}

// deviation returns the vector from the closest polygon point to the projected centre of mass.
func (c *BalanceConstraint) deviation() r2.Point {
	com, mass := c.joints.Model().CenterOfMass(c.bodies)
	if mass == 0 {
		return r2.Point{}
	}
	p := r2.Point{X: com.X, Y: com.Y}
	if insidePolygon(c.support, p) {
		return r2.Point{}
	}
	return p.Sub(closestOnPolygon(c.support, p))
}

// OptimizationFunction returns factor * d^2.
func (c *BalanceConstraint) OptimizationFunction(id int) float64 {
	d := c.deviation()
	return c.factor * d.Dot(d)
}

// OptimizationGradient returns 2 * factor * d^T * Jcom, Jcom being the xy rows of the centre of mass Jacobian.
func (c *BalanceConstraint) OptimizationGradient(id int) []float64 {
	d := c.deviation()
	n := c.joints.Size()
	if d == (r2.Point{}) {
		return make([]float64, n)
	}
	jac := model.CenterOfMassJacobian(c.joints, c.bodies)
	var grad mat.VecDense
	grad.MulVec(jac.Slice(0, 2, 0, n).T(), mat.NewVecDense(2, []float64{d.X, d.Y}))
	grad.ScaleVec(2*c.factor, &grad)
	return grad.RawVector().Data
}

// CheckTolerances reports whether the projection lies inside the polygon, up to the tolerance.
func (c *BalanceConstraint) CheckTolerances() bool {
	return c.deviation().Norm() <= c.tolerance
}

// convexHull returns the hull of pts in counter clockwise order (monotone chain).
func convexHull(pts []r2.Point) []r2.Point {
	if len(pts) < 3 {
		return append([]r2.Point(nil), pts...)
	}
	sorted := append([]r2.Point(nil), pts...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})
	hull := make([]r2.Point, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && hull[len(hull)-1].Sub(hull[len(hull)-2]).Cross(p.Sub(hull[len(hull)-2])) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && hull[len(hull)-1].Sub(hull[len(hull)-2]).Cross(p.Sub(hull[len(hull)-2])) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// insidePolygon expects a counter clockwise convex polygon with at least three vertices.
func insidePolygon(poly []r2.Point, p r2.Point) bool {
	if len(poly) < 3 {
		return false
	}
	for i, a := range poly {
		b := poly[(i+1)%len(poly)]
		if b.Sub(a).Cross(p.Sub(a)) < 0 {
			return false
		}
	}
	return true
}

func closestOnPolygon(poly []r2.Point, p r2.Point) r2.Point {
	best := poly[0]
	bestDist := math.Inf(1)
	for i, a := range poly {
		b := poly[(i+1)%len(poly)]
		ab := b.Sub(a)
		t := 0.
		if l := ab.Dot(ab); l > 0 {
			t = math.Max(0, math.Min(1, p.Sub(a).Dot(ab)/l))
		}
		q := a.Add(ab.Mul(t))
		if d := p.Sub(q).Norm(); d < bestDist {
			best, bestDist = q, d
		}
	}
	return best
}
