package model

import (
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/motionkit/spatialmath"
)

// NodeID addresses a node inside the arena of the model that created it.
type NodeID int

// NoNode is the parent of the root node.
const NoNode NodeID = -1

// NodeType is the kind of a model node.
type NodeType string

// The supported node types.
const (
	Link           = NodeType("link")
	JointRevolute  = NodeType("revolute")
	JointPrismatic = NodeType("prismatic")
	JointFixed     = NodeType("fixed")
)

// IsJoint reports whether nodes of this type carry a joint value.
func (t NodeType) IsJoint() bool {
	return t == JointRevolute || t == JointPrismatic
}

type node struct {
	name     string
	typ      NodeType
	parent   NodeID
	children []NodeID

	// transform from the parent frame to this node's frame, applied before joint motion
	local  spatialmath.Pose
	global spatialmath.Pose

	// joint data
	axis            r3.Vector
	value           float64
	offset          float64
	lower, upper    float64
	maxVelocity     float64
	maxAcceleration float64
	maxTorque       float64
	propagated      map[string]float64

	// link data
	geometry     spatialmath.Geometry
	mass         float64
	centerOfMass r3.Vector
}

func (n *node) clone() *node {
	c := *n
	c.children = append([]NodeID(nil), n.children...)
	if n.propagated != nil {
		c.propagated = make(map[string]float64, len(n.propagated))
		for k, v := range n.propagated {
			c.propagated[k] = v
		}
	}
	return &c
}

// motion returns the transform produced by the current joint value.
func (n *node) motion() spatialmath.Pose {
	q := n.value + n.offset
	switch n.typ {
	case JointRevolute:
		return spatialmath.NewPose(r3.Vector{}, spatialmath.NewRotationMatrixFromAxisAngle(n.axis, q))
	case JointPrismatic:
		return spatialmath.NewPoseFromPoint(n.axis.Mul(q))
	case Link, JointFixed:
	}
	return spatialmath.NewZeroPose()
}

// JointConfig describes a joint node.
type JointConfig struct {
	Name   string
	Parent string
	Type   NodeType
	// Transform is the static offset from the parent frame.
	Transform spatialmath.Pose
	Axis      r3.Vector
	Lower     float64
	Upper     float64
	// Offset is added to the joint value when computing the joint motion.
	Offset          float64
	MaxVelocity     float64
	MaxAcceleration float64
	MaxTorque       float64
}

func (cfg *JointConfig) toNode() *node {
	lower, upper := cfg.Lower, cfg.Upper
	if cfg.Type == JointFixed {
		lower, upper = 0, 0
	}
	axis := cfg.Axis
	if axis.Norm() > 0 {
		axis = axis.Normalize()
	}
	n := &node{
		name:            cfg.Name,
		typ:             cfg.Type,
		local:           orZero(cfg.Transform),
		axis:            axis,
		offset:          cfg.Offset,
		lower:           lower,
		upper:           upper,
		maxVelocity:     cfg.MaxVelocity,
		maxAcceleration: cfg.MaxAcceleration,
		maxTorque:       cfg.MaxTorque,
	}
	// start inside the limits
	n.value = math.Max(lower, math.Min(upper, 0))
	return n
}

// LinkConfig describes a link node.
type LinkConfig struct {
	Name      string
	Parent    string
	Transform spatialmath.Pose
	// Geometry is expressed in the link frame and may be nil.
	Geometry     spatialmath.Geometry
	Mass         float64
	CenterOfMass r3.Vector
}

func (cfg *LinkConfig) toNode() *node {
	return &node{
		name:         cfg.Name,
		typ:          Link,
		local:        orZero(cfg.Transform),
		geometry:     cfg.Geometry,
		mass:         cfg.Mass,
		centerOfMass: cfg.CenterOfMass,
	}
}

func orZero(p spatialmath.Pose) spatialmath.Pose {
	if p == nil {
		return spatialmath.NewZeroPose()
	}
	return p
}
