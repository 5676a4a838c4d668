package spatialmath

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// GeometryType identifies a concrete geometry.
type GeometryType string

// The geometry types that can be described in a GeometryConfig.
const (
	BoxType    = GeometryType("box")
	SphereType = GeometryType("sphere")
)

// Geometry is an entity in 3D space that can be tested for collision and distance against other geometries.
type Geometry interface {
	Pose() Pose
	// Transform premultiplies the geometry's pose by toPremultiply.
	Transform(toPremultiply Pose) Geometry
	Label() string
	SetLabel(string)
	BoundingSphereRadius() float64
	// CollidesWith reports whether the two geometries are closer than buffer.
	CollidesWith(g Geometry, buffer float64) (bool, error)
	// DistanceFrom returns the separation distance, negative when penetrating.
	DistanceFrom(g Geometry) (float64, error)
	// ClosestPoints returns the distance together with the witness points on both geometries.
	ClosestPoints(g Geometry) (Contact, error)
	String() string
}

// Contact is the result of a closest point query between two geometries. Feature ids identify the
// surface triangle of a box (two per face); spheres always report feature 0.
type Contact struct {
	Distance float64
	P1, P2   r3.Vector
	Feature1 int
	Feature2 int
}

// Swap returns the contact as seen from the other geometry.
func (c Contact) Swap() Contact {
	return Contact{Distance: c.Distance, P1: c.P2, P2: c.P1, Feature1: c.Feature2, Feature2: c.Feature1}
}

// GeometryConfig describes a geometry relative to the frame of the link that owns it.
type GeometryConfig struct {
	Type GeometryType `json:"type"`

	// box dimensions
	X float64 `json:"x,omitempty"`
	Y float64 `json:"y,omitempty"`
	Z float64 `json:"z,omitempty"`

	// sphere radius
	R float64 `json:"r,omitempty"`

	Translation []float64 `json:"translation,omitempty"`
	RPY         []float64 `json:"rpy,omitempty"`
	Label       string    `json:"label,omitempty"`
}

// ParseConfig builds the geometry the config describes.
func (config *GeometryConfig) ParseConfig() (Geometry, error) {
	offset, err := config.offset()
	if err != nil {
		return nil, err
	}
	switch config.Type {
	case BoxType:
		return NewBox(offset, r3.Vector{X: config.X, Y: config.Y, Z: config.Z}, config.Label)
	case SphereType:
		return NewSphere(offset, config.R, config.Label)
	case "":
		return nil, errors.New("geometry config is missing a type")
	default:
		return nil, errors.Errorf("geometry type %q is unsupported", config.Type)
	}
}

func (config *GeometryConfig) offset() (Pose, error) {
	var v [6]float64
	switch len(config.Translation) {
	case 0:
	case 3:
		copy(v[:3], config.Translation)
	default:
		return nil, errors.Errorf("translation needs 3 values, got %d", len(config.Translation))
	}
	switch len(config.RPY) {
	case 0:
	case 3:
		copy(v[3:], config.RPY)
	default:
		return nil, errors.Errorf("rpy needs 3 values, got %d", len(config.RPY))
	}
	return NewPoseFromRPY(v[0], v[1], v[2], v[3], v[4], v[5]), nil
}

func newCollisionTypeUnsupportedError(g1, g2 Geometry) error {
	return fmt.Errorf("collisions between %T and %T are not supported", g1, g2)
}

func newBadGeometryDimensionsError(g Geometry) error {
	return fmt.Errorf("invalid dimension(s) for Geometry type %T", g)
}
