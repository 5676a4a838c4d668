package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/motionkit/utils"
)

// Ordered list of box vertices.
var boxVertices = [8]r3.Vector{
	{X: 1, Y: 1, Z: 1},
	{X: 1, Y: 1, Z: -1},
	{X: 1, Y: -1, Z: 1},
	{X: 1, Y: -1, Z: -1},
	{X: -1, Y: 1, Z: 1},
	{X: -1, Y: 1, Z: -1},
	{X: -1, Y: -1, Z: 1},
	{X: -1, Y: -1, Z: -1},
}

// The 12 edges of a box, as pairs of vertex indices (vertices differing in exactly one coordinate).
var boxEdgeIndices = [12][2]int{
	{0, 1}, {0, 2}, {0, 4},
	{1, 3}, {1, 5},
	{2, 3}, {2, 6},
	{3, 7},
	{4, 5}, {4, 6},
	{5, 7},
	{6, 7},
}

// box is a collision geometry that represents a 3D rectangular prism, it has a pose and half size that fully define it.
type box struct {
	center          Pose
	centerPt        r3.Vector
	halfSize        [3]float64
	boundingSphereR float64
	label           string
}

// NewBox instantiates a new box Geometry.
func NewBox(pose Pose, dims r3.Vector, label string) (Geometry, error) {
	// Negative dimensions not allowed. Zero dimensions are allowed for bounding boxes, etc.
	if dims.X < 0 || dims.Y < 0 || dims.Z < 0 {
		return nil, newBadGeometryDimensionsError(&box{})
	}
	halfSize := dims.Mul(0.5)
	return &box{
		center:          pose,
		centerPt:        pose.Point(),
		halfSize:        [3]float64{halfSize.X, halfSize.Y, halfSize.Z},
		boundingSphereR: halfSize.Norm(),
		label:           label,
	}, nil
}

// String returns a human readable string that represents the box.
func (b *box) String() string {
	return fmt.Sprintf("Type: Box | Position: X:%.1f, Y:%.1f, Z:%.1f | Dims: X:%.0f, Y:%.0f, Z:%.0f",
		b.centerPt.X, b.centerPt.Y, b.centerPt.Z, 2*b.halfSize[0], 2*b.halfSize[1], 2*b.halfSize[2])
}

func (b *box) SetLabel(label string) {
	b.label = label
}

func (b *box) Label() string {
	return b.label
}

func (b *box) Pose() Pose {
	return b.center
}

func (b *box) BoundingSphereRadius() float64 {
	return b.boundingSphereR
}

// Transform premultiplies the box pose with a transform, allowing the box to be moved in space.
func (b *box) Transform(toPremultiply Pose) Geometry {
	p := Compose(toPremultiply, b.center)
	return &box{
		center:          p,
		centerPt:        p.Point(),
		halfSize:        b.halfSize,
		boundingSphereR: b.boundingSphereR,
		label:           b.label,
	}
}

// CollidesWith checks if the given box collides with the given geometry and returns true if it does.
func (b *box) CollidesWith(g Geometry, buffer float64) (bool, error) {
	switch other := g.(type) {
	case *box:
		c, _ := boxVsBoxCollision(b, other, buffer)
		return c, nil
	case *sphere:
		return sphereVsBoxDistance(other, b) <= buffer, nil
	default:
		return true, newCollisionTypeUnsupportedError(b, g)
	}
}

func (b *box) DistanceFrom(g Geometry) (float64, error) {
	c, err := b.ClosestPoints(g)
	if err != nil {
		return math.Inf(-1), err
	}
	return c.Distance, nil
}

func (b *box) ClosestPoints(g Geometry) (Contact, error) {
	switch other := g.(type) {
	case *box:
		return boxVsBoxClosestPoints(b, other), nil
	case *sphere:
		return sphereVsBoxClosestPoints(other, b).Swap(), nil
	default:
		return Contact{Distance: math.Inf(-1)}, newCollisionTypeUnsupportedError(b, g)
	}
}

// closestPoint returns the closest point on the specified box to the specified point
// Reference: https://github.com/gszauer/GamePhysicsCookbook/blob/a0b8ee0c39fed6d4b90bb6d2195004dfcf5a1115/Code/Geometry3D.cpp#L165
func (b *box) closestPoint(pt r3.Vector) r3.Vector {
	result := b.centerPt
	direction := pt.Sub(result)
	rm := b.center.Orientation()
	for i := 0; i < 3; i++ {
		axis := rm.Col(i)
		distance := utils.Clamp(direction.Dot(axis), -b.halfSize[i], b.halfSize[i])
		result = result.Add(axis.Mul(distance))
	}
	return result
}

// pointPenetrationDepth returns the minimum distance needed to move a pt inside the box to the edge of the box.
func (b *box) pointPenetrationDepth(pt r3.Vector) float64 {
	direction := pt.Sub(b.centerPt)
	rm := b.center.Orientation()
	minDist := math.Inf(1)
	for i := 0; i < 3; i++ {
		projection := direction.Dot(rm.Col(i))
		minDist = math.Min(minDist, math.Abs(projection-b.halfSize[i]))
		minDist = math.Min(minDist, math.Abs(projection+b.halfSize[i]))
	}
	return minDist
}

// triangleID returns the index of the surface triangle closest to a point on (or near) the box.
// Faces are numbered +x, +y, +z, -x, -y, -z and each face is split into two triangles.
func (b *box) triangleID(pt r3.Vector) int {
	local := b.center.Orientation().Transpose().Apply(pt.Sub(b.centerPt))
	coords := [3]float64{local.X, local.Y, local.Z}
	face, best := 0, math.Inf(-1)
	for i := 0; i < 3; i++ {
		var ratio float64
		if b.halfSize[i] > floatEpsilon {
			ratio = math.Abs(coords[i]) / b.halfSize[i]
		} else {
			ratio = math.Inf(1)
		}
		if ratio > best {
			best = ratio
			face = i
			if coords[i] < 0 {
				face = i + 3
			}
		}
	}
	tri := face * 2
	// the face diagonal runs from the (+,+) to the (-,-) corner of the two remaining axes
	u, v := coords[(face%3+1)%3], coords[(face%3+2)%3]
	if u < v {
		tri++
	}
	return tri
}

// vertices returns the vertices defining the box.
func (b *box) vertices() []r3.Vector {
	verts := make([]r3.Vector, 0, 8)
	for _, vert := range boxVertices {
		offset := r3.Vector{X: vert.X * b.halfSize[0], Y: vert.Y * b.halfSize[1], Z: vert.Z * b.halfSize[2]}
		verts = append(verts, TransformPoint(b.center, offset))
	}
	return verts
}

// boxVsBoxCollision takes two boxes as arguments and returns a bool describing if they are in collision,
// true == collision / false == no collision.
// Since the separating axis test can exit early if no collision is found, it is efficient to avoid calling boxVsBoxDistance.
func boxVsBoxCollision(a, b *box, buffer float64) (bool, float64) {
	centerDist := b.centerPt.Sub(a.centerPt)

	// check if there is a distance between bounding spheres to potentially exit early
	dist := centerDist.Norm() - (a.boundingSphereR + b.boundingSphereR)
	if dist > buffer {
		return false, dist
	}

	rmA := a.center.Orientation()
	rmB := b.center.Orientation()

	maxDist := math.Inf(-1)
	for i := 0; i < 3; i++ {
		for _, axis := range []r3.Vector{rmA.Col(i), rmB.Col(i)} {
			dist = separatingAxisTest(centerDist, axis, a.halfSize, b.halfSize, rmA, rmB)
			if dist > buffer {
				return false, dist
			}
			maxDist = math.Max(maxDist, dist)
		}
		for j := 0; j < 3; j++ {
			crossProductPlane := rmA.Col(i).Cross(rmB.Col(j))

			// if edges are parallel, this check is already accounted for by one of the face projections, so skip this case
			if !utils.Float64AlmostEqual(crossProductPlane.Norm(), 0, floatEpsilon) {
				dist = separatingAxisTest(centerDist, crossProductPlane.Normalize(), a.halfSize, b.halfSize, rmA, rmB)
				if dist > buffer {
					return false, dist
				}
				maxDist = math.Max(maxDist, dist)
			}
		}
	}
	return true, maxDist
}

// boxVsBoxClosestPoints returns the penetration depth (non-positive) or separation distance of two boxes along
// with witness points. Separation is exact: every vertex-to-box and edge-to-edge feature pair is checked.
//
// references:  https://comp.graphics.algorithms.narkive.com/jRAgjIUh/obb-obb-distance-calculation
//
//	https://dyn4j.org/2010/01/sat/#sat-nointer
func boxVsBoxClosestPoints(a, b *box) Contact {
	if colliding, depth := boxVsBoxCollision(a, b, 0); colliding {
		p2 := b.closestPoint(a.centerPt)
		p1 := a.closestPoint(p2)
		return Contact{Distance: math.Min(depth, 0), P1: p1, P2: p2, Feature1: a.triangleID(p1), Feature2: b.triangleID(p2)}
	}

	vertsA := a.vertices()
	vertsB := b.vertices()
	best := Contact{Distance: math.Inf(1)}
	consider := func(p1, p2 r3.Vector) {
		if d := p1.Sub(p2).Norm(); d < best.Distance {
			best.Distance, best.P1, best.P2 = d, p1, p2
		}
	}

	for _, v := range vertsA {
		consider(v, b.closestPoint(v))
	}
	for _, v := range vertsB {
		consider(a.closestPoint(v), v)
	}
	for _, ea := range boxEdgeIndices {
		for _, eb := range boxEdgeIndices {
			p1, p2 := ClosestPointsSegmentSegment(vertsA[ea[0]], vertsA[ea[1]], vertsB[eb[0]], vertsB[eb[1]])
			consider(p1, p2)
		}
	}
	best.Feature1 = a.triangleID(best.P1)
	best.Feature2 = b.triangleID(best.P2)
	return best
}

// separatingAxisTest projects two boxes onto the given plane and compute how much distance is between them along
// this plane.  Per the separating hyperplane theorem, if such a plane exists (and a positive number is returned)
// this proves that there is no collision between the boxes
// references:  https://gamedev.stackexchange.com/questions/112883/simple-3d-obb-collision-directx9-c
//
//	https://gamedev.stackexchange.com/questions/25397/obb-vs-obb-collision-detection
//	https://www.cs.bgu.ac.il/~vgp192/wiki.files/Separating%20Axis%20Theorem%20for%20Oriented%20Bounding%20Boxes.pdf
//	https://gamedev.stackexchange.com/questions/112883/simple-3d-obb-collision-directx9-c
func separatingAxisTest(positionDelta, plane r3.Vector, halfSizeA, halfSizeB [3]float64, rmA, rmB *RotationMatrix) float64 {
	sum := math.Abs(positionDelta.Dot(plane))
	for i := 0; i < 3; i++ {
		sum -= math.Abs(rmA.Col(i).Mul(halfSizeA[i]).Dot(plane))
		sum -= math.Abs(rmB.Col(i).Mul(halfSizeB[i]).Dot(plane))
	}
	return sum
}

// ClosestPointsSegmentSegment returns the closest pair of points on segments p1-q1 and p2-q2.
// Reference: Ericson, Real-Time Collision Detection, 5.1.9.
func ClosestPointsSegmentSegment(p1, q1, p2, q2 r3.Vector) (r3.Vector, r3.Vector) {
	d1 := q1.Sub(p1)
	d2 := q2.Sub(p2)
	r := p1.Sub(p2)
	a := d1.Dot(d1)
	e := d2.Dot(d2)
	f := d2.Dot(r)

	var s, t float64
	switch {
	case a <= floatEpsilon && e <= floatEpsilon:
		return p1, p2
	case a <= floatEpsilon:
		t = utils.Clamp(f/e, 0, 1)
	default:
		c := d1.Dot(r)
		if e <= floatEpsilon {
			s = utils.Clamp(-c/a, 0, 1)
		} else {
			b := d1.Dot(d2)
			denom := a*e - b*b
			if denom > floatEpsilon {
				s = utils.Clamp((b*f-c*e)/denom, 0, 1)
			}
			t = (b*s + f) / e
			if t < 0 {
				t = 0
				s = utils.Clamp(-c/a, 0, 1)
			} else if t > 1 {
				t = 1
				s = utils.Clamp((b-c)/a, 0, 1)
			}
		}
	}
	return p1.Add(d1.Mul(s)), p2.Add(d2.Mul(t))
}
