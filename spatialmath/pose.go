package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// Pose represents a rigid transform: a translation followed by an orientation.
type Pose interface {
	Point() r3.Vector
	Orientation() *RotationMatrix
}

type basicPose struct {
	point       r3.Vector
	orientation *RotationMatrix
}

// NewPose returns a pose built from a point and an orientation. A nil orientation means identity.
func NewPose(p r3.Vector, o *RotationMatrix) Pose {
	if o == nil {
		o = NewIdentityRotation()
	}
	return &basicPose{point: p, orientation: o}
}

// NewZeroPose returns the identity pose.
func NewZeroPose() Pose {
	return NewPose(r3.Vector{}, nil)
}

// NewPoseFromPoint returns a pure translation.
func NewPoseFromPoint(p r3.Vector) Pose {
	return NewPose(p, nil)
}

// NewPoseFromRPY returns the pose with translation (x, y, z) and orientation Rz(yaw)*Ry(pitch)*Rx(roll).
func NewPoseFromRPY(x, y, z, roll, pitch, yaw float64) Pose {
	return NewPose(r3.Vector{X: x, Y: y, Z: z}, NewRotationMatrixFromRPY(roll, pitch, yaw))
}

func (p *basicPose) Point() r3.Vector {
	return p.point
}

func (p *basicPose) Orientation() *RotationMatrix {
	return p.orientation
}

func (p *basicPose) String() string {
	return fmt.Sprintf("{X:%.3f Y:%.3f Z:%.3f %s}", p.point.X, p.point.Y, p.point.Z, p.orientation)
}

// Compose returns a * b.
func Compose(a, b Pose) Pose {
	return &basicPose{
		point:       a.Point().Add(a.Orientation().Apply(b.Point())),
		orientation: a.Orientation().Mul(b.Orientation()),
	}
}

// PoseInverse returns the inverse of p.
func PoseInverse(p Pose) Pose {
	inv := p.Orientation().Transpose()
	return &basicPose{point: inv.Apply(p.Point()).Mul(-1), orientation: inv}
}

// PoseBetween returns the pose that takes a to b, i.e. inverse(a) * b.
func PoseBetween(a, b Pose) Pose {
	return Compose(PoseInverse(a), b)
}

// TransformPoint maps a point given in p's frame into the frame p is expressed in.
func TransformPoint(p Pose, pt r3.Vector) r3.Vector {
	return p.Point().Add(p.Orientation().Apply(pt))
}

// PoseToRPY returns the six component vector [x, y, z, roll, pitch, yaw] of p.
func PoseToRPY(p Pose) [6]float64 {
	r, pi, y := p.Orientation().RPY()
	pt := p.Point()
	return [6]float64{pt.X, pt.Y, pt.Z, r, pi, y}
}

// PoseAlmostEqual returns whether two poses are equal within the default tolerances.
func PoseAlmostEqual(a, b Pose) bool {
	return PoseAlmostEqualEps(a, b, 1e-6)
}

// PoseAlmostEqualEps compares points and rotation matrix entries with the given tolerance.
func PoseAlmostEqualEps(a, b Pose, eps float64) bool {
	return R3VectorAlmostEqual(a.Point(), b.Point(), eps) && a.Orientation().AlmostEqual(b.Orientation(), eps)
}

// R3VectorAlmostEqual compares two r3.Vector objects and returns if the all elementwise differences are less than epsilon.
func R3VectorAlmostEqual(a, b r3.Vector, epsilon float64) bool {
	return math.Abs(a.X-b.X) < epsilon && math.Abs(a.Y-b.Y) < epsilon && math.Abs(a.Z-b.Z) < epsilon
}
