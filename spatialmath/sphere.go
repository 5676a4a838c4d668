package spatialmath

import (
	"fmt"
	"math"
)

type sphere struct {
	pose   Pose
	radius float64
	label  string
}

// NewSphere instantiates a new sphere Geometry.
func NewSphere(pose Pose, radius float64, label string) (Geometry, error) {
	if radius < 0 {
		return nil, newBadGeometryDimensionsError(&sphere{})
	}
	return &sphere{pose: pose, radius: radius, label: label}, nil
}

func (s *sphere) String() string {
	pt := s.pose.Point()
	return fmt.Sprintf("Type: Sphere | Position: X:%.1f, Y:%.1f, Z:%.1f | Radius: %.0f", pt.X, pt.Y, pt.Z, s.radius)
}

func (s *sphere) SetLabel(label string) {
	s.label = label
}

func (s *sphere) Label() string {
	return s.label
}

func (s *sphere) Pose() Pose {
	return s.pose
}

func (s *sphere) BoundingSphereRadius() float64 {
	return s.radius
}

func (s *sphere) Transform(toPremultiply Pose) Geometry {
	return &sphere{pose: Compose(toPremultiply, s.pose), radius: s.radius, label: s.label}
}

func (s *sphere) CollidesWith(g Geometry, buffer float64) (bool, error) {
	switch other := g.(type) {
	case *sphere:
		return sphereVsSphereDistance(s, other) <= buffer, nil
	case *box:
		return sphereVsBoxDistance(s, other) <= buffer, nil
	default:
		return true, newCollisionTypeUnsupportedError(s, g)
	}
}

func (s *sphere) DistanceFrom(g Geometry) (float64, error) {
	switch other := g.(type) {
	case *sphere:
		return sphereVsSphereDistance(s, other), nil
	case *box:
		return sphereVsBoxDistance(s, other), nil
	default:
		return math.Inf(-1), newCollisionTypeUnsupportedError(s, g)
	}
}

func (s *sphere) ClosestPoints(g Geometry) (Contact, error) {
	switch other := g.(type) {
	case *sphere:
		c1, c2 := s.pose.Point(), other.pose.Point()
		dir := c2.Sub(c1)
		if dir.Norm() > floatEpsilon {
			dir = dir.Normalize()
		}
		return Contact{
			Distance: sphereVsSphereDistance(s, other),
			P1:       c1.Add(dir.Mul(s.radius)),
			P2:       c2.Sub(dir.Mul(other.radius)),
		}, nil
	case *box:
		return sphereVsBoxClosestPoints(s, other), nil
	default:
		return Contact{Distance: math.Inf(-1)}, newCollisionTypeUnsupportedError(s, g)
	}
}

func sphereVsSphereDistance(a, b *sphere) float64 {
	return a.pose.Point().Sub(b.pose.Point()).Norm() - (a.radius + b.radius)
}

// sphereVsBoxDistance returns the separation distance between a sphere and a box, or the negative penetration depth
// if the sphere center lies inside the box.
func sphereVsBoxDistance(s *sphere, b *box) float64 {
	center := s.pose.Point()
	closest := b.closestPoint(center)
	if R3VectorAlmostEqual(closest, center, floatEpsilon) {
		return -(b.pointPenetrationDepth(center) + s.radius)
	}
	return closest.Sub(center).Norm() - s.radius
}

func sphereVsBoxClosestPoints(s *sphere, b *box) Contact {
	center := s.pose.Point()
	onBox := b.closestPoint(center)
	dir := onBox.Sub(center)
	onSphere := center
	if dir.Norm() > floatEpsilon {
		onSphere = center.Add(dir.Normalize().Mul(s.radius))
	}
	return Contact{Distance: sphereVsBoxDistance(s, b), P1: onSphere, P2: onBox, Feature2: b.triangleID(onBox)}
}
