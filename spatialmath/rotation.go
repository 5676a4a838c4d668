// Package spatialmath defines poses, rotations and the collision geometries attached to model links.
package spatialmath

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

const floatEpsilon = 1e-8

// RotationMatrix is a 3x3 orthonormal matrix. Column i is the i-th local axis expressed in the parent frame.
type RotationMatrix struct {
	mat mgl64.Mat3
}

// NewIdentityRotation returns the rotation that does nothing.
func NewIdentityRotation() *RotationMatrix {
	return &RotationMatrix{mat: mgl64.Ident3()}
}

// NewRotationMatrix wraps a 3x3 matrix. The matrix is assumed to be orthonormal.
func NewRotationMatrix(m mgl64.Mat3) *RotationMatrix {
	return &RotationMatrix{mat: m}
}

// NewRotationMatrixFromAxisAngle returns the rotation of theta radians about axis. A zero axis yields identity.
func NewRotationMatrixFromAxisAngle(axis r3.Vector, theta float64) *RotationMatrix {
	if axis.Norm() < floatEpsilon {
		return NewIdentityRotation()
	}
	axis = axis.Normalize()
	q := mgl64.QuatRotate(theta, mgl64.Vec3{axis.X, axis.Y, axis.Z})
	return &RotationMatrix{mat: q.Mat4().Mat3()}
}

// NewRotationMatrixFromRPY returns R = Rz(yaw) * Ry(pitch) * Rx(roll).
func NewRotationMatrixFromRPY(roll, pitch, yaw float64) *RotationMatrix {
	m := mgl64.Rotate3DZ(yaw).Mul3(mgl64.Rotate3DY(pitch)).Mul3(mgl64.Rotate3DX(roll))
	return &RotationMatrix{mat: m}
}

// NewRotationMatrixFromQuat converts a unit quaternion into a rotation matrix.
func NewRotationMatrixFromQuat(q quat.Number) *RotationMatrix {
	n := quat.Abs(q)
	if n < floatEpsilon {
		return NewIdentityRotation()
	}
	mq := mgl64.Quat{W: q.Real / n, V: mgl64.Vec3{q.Imag / n, q.Jmag / n, q.Kmag / n}}
	return &RotationMatrix{mat: mq.Mat4().Mat3()}
}

// At returns the element at row, col.
func (rm *RotationMatrix) At(row, col int) float64 {
	return rm.mat.At(row, col)
}

// Row returns row i as a vector.
func (rm *RotationMatrix) Row(i int) r3.Vector {
	v := rm.mat.Row(i)
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

// Col returns column i as a vector, which is the i-th local axis.
func (rm *RotationMatrix) Col(i int) r3.Vector {
	v := rm.mat.Col(i)
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

// Mul returns rm * other.
func (rm *RotationMatrix) Mul(other *RotationMatrix) *RotationMatrix {
	return &RotationMatrix{mat: rm.mat.Mul3(other.mat)}
}

// Transpose returns the inverse rotation.
func (rm *RotationMatrix) Transpose() *RotationMatrix {
	return &RotationMatrix{mat: rm.mat.Transpose()}
}

// Apply rotates v.
func (rm *RotationMatrix) Apply(v r3.Vector) r3.Vector {
	out := rm.mat.Mul3x1(mgl64.Vec3{v.X, v.Y, v.Z})
	return r3.Vector{X: out[0], Y: out[1], Z: out[2]}
}

// Mat3 returns a copy of the underlying matrix.
func (rm *RotationMatrix) Mat3() mgl64.Mat3 {
	return rm.mat
}

// Quaternion returns the unit quaternion with non-negative real part equivalent to this rotation.
func (rm *RotationMatrix) Quaternion() quat.Number {
	q := mgl64.Mat4ToQuat(rm.mat.Mat4()).Normalize()
	out := quat.Number{Real: q.W, Imag: q.V[0], Jmag: q.V[1], Kmag: q.V[2]}
	if out.Real < 0 {
		out = quat.Scale(-1, out)
	}
	return out
}

// RPY returns roll, pitch and yaw such that rm = Rz(yaw) * Ry(pitch) * Rx(roll).
func (rm *RotationMatrix) RPY() (roll, pitch, yaw float64) {
	m := rm.mat
	yaw = math.Atan2(m.At(1, 0), m.At(0, 0))
	pitch = math.Atan2(-m.At(2, 0), math.Hypot(m.At(0, 0), m.At(1, 0)))
	roll = math.Atan2(m.At(2, 1), m.At(2, 2))
	return roll, pitch, yaw
}

// LogMap returns the rotation vector (axis scaled by angle in [0, pi]) of this rotation.
func (rm *RotationMatrix) LogMap() r3.Vector {
	q := rm.Quaternion()
	v := r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	sinHalf := v.Norm()
	if sinHalf < floatEpsilon {
		// first order approximation around identity
		return v.Mul(2)
	}
	theta := 2 * math.Atan2(sinHalf, q.Real)
	return v.Mul(theta / sinHalf)
}

// Angle returns the rotation angle in [0, pi].
func (rm *RotationMatrix) Angle() float64 {
	return rm.LogMap().Norm()
}

// AlmostEqual reports whether every element differs by at most eps.
func (rm *RotationMatrix) AlmostEqual(other *RotationMatrix, eps float64) bool {
	for i := range rm.mat {
		if math.Abs(rm.mat[i]-other.mat[i]) > eps {
			return false
		}
	}
	return true
}

func (rm *RotationMatrix) String() string {
	r, p, y := rm.RPY()
	return fmt.Sprintf("rpy(%.4f, %.4f, %.4f)", r, p, y)
}
