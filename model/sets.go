package model

import (
	"github.com/pkg/errors"

	"go.viam.com/motionkit/spatialmath"
	"go.viam.com/motionkit/utils"
)

// nodeSet is the shared part of LinkSet and JointSet: an ordered, immutable view over nodes of one model.
type nodeSet struct {
	name          string
	model         *Model
	nodes         []NodeID
	kinematicRoot NodeID
	tcp           NodeID
}

func newNodeSet(m *Model, name string, nodeNames []string, kinematicRoot, tcp string, accept func(NodeType) bool) (nodeSet, error) {
	if m == nil {
		return nodeSet{}, errors.New("node set needs a model")
	}
	if len(nodeNames) == 0 {
		return nodeSet{}, errors.Errorf("node set %q is empty", name)
	}
	s := nodeSet{name: name, model: m, kinematicRoot: m.Root()}
	seen := map[NodeID]bool{}
	for _, nn := range nodeNames {
		id, ok := m.Node(nn)
		if !ok {
			return nodeSet{}, errors.Errorf("node %q of set %q not found in model %q", nn, name, m.Name())
		}
		if !accept(m.NodeType(id)) {
			return nodeSet{}, errors.Errorf("node %q of set %q has type %s", nn, name, m.NodeType(id))
		}
		if seen[id] {
			return nodeSet{}, errors.Errorf("node %q appears twice in set %q", nn, name)
		}
		seen[id] = true
		s.nodes = append(s.nodes, id)
	}
	s.tcp = s.nodes[len(s.nodes)-1]
	if kinematicRoot != "" {
		id, ok := m.Node(kinematicRoot)
		if !ok {
			return nodeSet{}, errors.Errorf("kinematic root %q of set %q not found", kinematicRoot, name)
		}
		s.kinematicRoot = id
	}
	if tcp != "" {
		id, ok := m.Node(tcp)
		if !ok {
			return nodeSet{}, errors.Errorf("tcp %q of set %q not found", tcp, name)
		}
		s.tcp = id
	}
	return s, nil
}

// Name returns the name of the set.
func (s *nodeSet) Name() string {
	return s.name
}

// Model returns the model the set was created for.
func (s *nodeSet) Model() *Model {
	return s.model
}

// Size returns the number of member nodes.
func (s *nodeSet) Size() int {
	return len(s.nodes)
}

// Nodes returns a copy of the member node ids.
func (s *nodeSet) Nodes() []NodeID {
	return append([]NodeID(nil), s.nodes...)
}

// Node returns the i-th member.
func (s *nodeSet) Node(i int) NodeID {
	return s.nodes[i]
}

// NodeNames returns the member names in order.
func (s *nodeSet) NodeNames() []string {
	names := make([]string, 0, len(s.nodes))
	for _, id := range s.nodes {
		names = append(names, s.model.NodeName(id))
	}
	return names
}

// HasNode reports whether id is a member.
func (s *nodeSet) HasNode(id NodeID) bool {
	for _, n := range s.nodes {
		if n == id {
			return true
		}
	}
	return false
}

// KinematicRoot returns the first node whose subtree is updated when member values change.
func (s *nodeSet) KinematicRoot() NodeID {
	return s.kinematicRoot
}

// TCP returns the tool frame used for Cartesian queries.
func (s *nodeSet) TCP() NodeID {
	return s.tcp
}

// LinkSet is a named, ordered set of link nodes tested for collision as one unit.
type LinkSet struct {
	nodeSet
}

// NewLinkSet creates a link set. kinematicRoot and tcp may be empty to default to the model root and the last link.
func NewLinkSet(m *Model, name string, links []string, kinematicRoot, tcp string) (*LinkSet, error) {
	s, err := newNodeSet(m, name, links, kinematicRoot, tcp, func(t NodeType) bool { return t == Link })
	if err != nil {
		return nil, err
	}
	return &LinkSet{nodeSet: s}, nil
}

// NewLinkSetFromModel returns a set of every link of m that carries geometry, in insertion order.
func NewLinkSetFromModel(m *Model, name string) (*LinkSet, error) {
	links := []string{}
	for _, n := range m.NodeNames() {
		id, _ := m.Node(n)
		if m.NodeType(id) == Link && m.Geometry(id) != nil {
			links = append(links, n)
		}
	}
	return NewLinkSet(m, name, links, "", "")
}

// CollisionChecker returns the checker context of the owning model.
func (s *LinkSet) CollisionChecker() CollisionContext {
	return s.model.CollisionChecker()
}

// Geometries returns the world frame geometry of every member that has one.
func (s *LinkSet) Geometries() []spatialmath.Geometry {
	defer s.model.lock.Read()()
	geoms := make([]spatialmath.Geometry, 0, len(s.nodes))
	for _, id := range s.nodes {
		if g := s.model.geometry(id); g != nil {
			geoms = append(geoms, g)
		}
	}
	return geoms
}

// JointSet is a named, ordered set of revolute and prismatic joints: the decision variables of planning and IK.
type JointSet struct {
	nodeSet
}

// NewJointSet creates a joint set. kinematicRoot and tcp may be empty to default to the model root and the last joint.
func NewJointSet(m *Model, name string, joints []string, kinematicRoot, tcp string) (*JointSet, error) {
	s, err := newNodeSet(m, name, joints, kinematicRoot, tcp, NodeType.IsJoint)
	if err != nil {
		return nil, err
	}
	return &JointSet{nodeSet: s}, nil
}

// JointValues returns the current member values.
func (s *JointSet) JointValues() []float64 {
	defer s.model.lock.Read()()
	vals := make([]float64, len(s.nodes))
	for i, id := range s.nodes {
		vals[i] = s.model.nodes[id].value
	}
	return vals
}

// SetJointValues writes all member values (clamped) and updates poses once from the kinematic root.
func (s *JointSet) SetJointValues(values []float64) error {
	if len(values) != len(s.nodes) {
		return errors.Errorf("joint set %q has %d joints, got %d values", s.name, len(s.nodes), len(values))
	}
	return s.model.SetJointValues(s.nodes, values, s.kinematicRoot)
}

// Limits returns the lower and upper limits of every member.
func (s *JointSet) Limits() (lower, upper []float64) {
	defer s.model.lock.Read()()
	lower = make([]float64, len(s.nodes))
	upper = make([]float64, len(s.nodes))
	for i, id := range s.nodes {
		lower[i], upper[i] = s.model.nodes[id].lower, s.model.nodes[id].upper
	}
	return lower, upper
}

// IsRotational reports whether the i-th member is a revolute joint.
func (s *JointSet) IsRotational(i int) bool {
	return s.model.NodeType(s.nodes[i]) == JointRevolute
}

// RespectJointLimits returns a copy of values clamped into the member limits.
func (s *JointSet) RespectJointLimits(values []float64) []float64 {
	lower, upper := s.Limits()
	out := make([]float64, len(values))
	for i, v := range values {
		if i < len(lower) {
			v = utils.Clamp(v, lower[i], upper[i])
		}
		out[i] = v
	}
	return out
}

// CheckJointLimits reports whether every value lies inside its member's limits.
func (s *JointSet) CheckJointLimits(values []float64) bool {
	if len(values) != len(s.nodes) {
		return false
	}
	lower, upper := s.Limits()
	for i, v := range values {
		if v < lower[i] || v > upper[i] {
			return false
		}
	}
	return true
}

// RegisterJointSet stores the definition of a joint set so it survives Clone and can be looked up by name.
func (m *Model) RegisterJointSet(s *JointSet) error {
	return m.registerSet(m.jointSetDefs, &s.nodeSet)
}

// RegisterLinkSet stores the definition of a link set so it survives Clone and can be looked up by name.
func (m *Model) RegisterLinkSet(s *LinkSet) error {
	return m.registerSet(m.linkSetDefs, &s.nodeSet)
}

func (m *Model) registerSet(defs map[string]setDef, s *nodeSet) error {
	if s.model != m {
		return errors.Errorf("set %q belongs to model %q, not %q", s.name, s.model.Name(), m.name)
	}
	def := setDef{nodes: s.NodeNames(), kinematicRoot: m.NodeName(s.kinematicRoot), tcp: m.NodeName(s.tcp)}
	defer m.lock.Write()()
	defs[s.name] = def
	return nil
}

// JointSet returns a registered joint set bound to this model.
func (m *Model) JointSet(name string) (*JointSet, error) {
	def, ok := m.lookupSet(m.jointSetDefs, name)
	if !ok {
		return nil, errors.Errorf("joint set %q not registered in model %q", name, m.name)
	}
	return NewJointSet(m, name, def.nodes, def.kinematicRoot, def.tcp)
}

// LinkSet returns a registered link set bound to this model.
func (m *Model) LinkSet(name string) (*LinkSet, error) {
	def, ok := m.lookupSet(m.linkSetDefs, name)
	if !ok {
		return nil, errors.Errorf("link set %q not registered in model %q", name, m.name)
	}
	return NewLinkSet(m, name, def.nodes, def.kinematicRoot, def.tcp)
}

func (m *Model) lookupSet(defs map[string]setDef, name string) (setDef, bool) {
	defer m.lock.Read()()
	def, ok := defs[name]
	return def, ok
}
