// Package model implements the kinematic model graph: an arena of link and joint nodes forming a tree,
// guarded by a reader/writer lock, with forward kinematics propagated parent before child.
package model

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/motionkit/spatialmath"
	"go.viam.com/motionkit/utils"
)

// ErrNonFiniteJointValue is returned when a NaN or infinite joint value is written.
var ErrNonFiniteJointValue = errors.New("joint value must be finite")

// CollisionContext identifies the collision checker instance that a model's geometry is registered with.
type CollisionContext interface {
	Name() string
}

// PoseObserver is notified after a write changed the global pose of a node. Notifications run
// synchronously on the writing goroutine once the model lock has been released.
type PoseObserver interface {
	PoseChanged(modelName, nodeName string, pose spatialmath.Pose)
}

// Attachment is a named frame rigidly fixed to a node. It refers to its node by id only.
type Attachment struct {
	Name   string
	Node   NodeID
	Offset spatialmath.Pose
	global spatialmath.Pose
}

// Model owns an arena of nodes forming a single tree.
type Model struct {
	name    string
	checker CollisionContext
	lock    RWLock

	nodes       []*node
	index       map[string]NodeID
	root        NodeID
	globalPose  spatialmath.Pose
	attachments []*Attachment

	jointSetDefs map[string]setDef
	linkSetDefs  map[string]setDef

	observers           []PoseObserver
	updateVisualization bool
}

type setDef struct {
	nodes         []string
	kinematicRoot string
	tcp           string
}

// NewModel returns an empty model whose geometry belongs to checker. The first node added becomes the root.
func NewModel(name string, checker CollisionContext) *Model {
	return &Model{
		name:                name,
		checker:             checker,
		index:               map[string]NodeID{},
		root:                NoNode,
		globalPose:          spatialmath.NewZeroPose(),
		jointSetDefs:        map[string]setDef{},
		linkSetDefs:         map[string]setDef{},
		updateVisualization: true,
	}
}

// Name returns the name of the model.
func (m *Model) Name() string {
	return m.name
}

// CollisionChecker returns the checker context the model was built or cloned for.
func (m *Model) CollisionChecker() CollisionContext {
	return m.checker
}

// AddLink appends a link node below parent. An empty parent makes it the root.
func (m *Model) AddLink(cfg LinkConfig) (NodeID, error) {
	return m.addNode(cfg.Parent, cfg.toNode())
}

// AddJoint appends a joint node below parent. An empty parent makes it the root.
func (m *Model) AddJoint(cfg JointConfig) (NodeID, error) {
	switch cfg.Type {
	case JointRevolute, JointPrismatic:
		if cfg.Axis.Norm() == 0 {
			return NoNode, errors.Errorf("joint %q needs a non zero axis", cfg.Name)
		}
		if cfg.Lower > cfg.Upper {
			return NoNode, errors.Errorf("joint %q has lower limit %v above upper limit %v", cfg.Name, cfg.Lower, cfg.Upper)
		}
	case JointFixed:
	case Link:
		return NoNode, errors.Errorf("node %q: use AddLink for links", cfg.Name)
	default:
		return NoNode, errors.Errorf("joint %q has unsupported type %q", cfg.Name, cfg.Type)
	}
	return m.addNode(cfg.Parent, cfg.toNode())
}

func (m *Model) addNode(parent string, n *node) (NodeID, error) {
	defer m.lock.Write()()
	if n.name == "" {
		return NoNode, errors.New("node name cannot be empty")
	}
	if _, ok := m.index[n.name]; ok {
		return NoNode, errors.Errorf("node %q already exists in model %q", n.name, m.name)
	}
	n.parent = NoNode
	if parent == "" {
		if m.root != NoNode {
			return NoNode, errors.Errorf("node %q has no parent but model %q already has root %q",
				n.name, m.name, m.nodes[m.root].name)
		}
	} else {
		pid, ok := m.index[parent]
		if !ok {
			return NoNode, errors.Errorf("parent %q of node %q not found", parent, n.name)
		}
		n.parent = pid
	}
	id := NodeID(len(m.nodes))
	m.nodes = append(m.nodes, n)
	m.index[n.name] = id
	if n.parent == NoNode {
		m.root = id
	} else {
		m.nodes[n.parent].children = append(m.nodes[n.parent].children, id)
	}
	m.updatePoses(id)
	return id, nil
}

// Attach fixes a named frame to a node.
func (m *Model) Attach(name, nodeName string, offset spatialmath.Pose) error {
	defer m.lock.Write()()
	id, ok := m.index[nodeName]
	if !ok {
		return errors.Errorf("cannot attach %q: node %q not found", name, nodeName)
	}
	a := &Attachment{Name: name, Node: id, Offset: orZero(offset)}
	a.global = spatialmath.Compose(m.nodes[id].global, a.Offset)
	m.attachments = append(m.attachments, a)
	return nil
}

// AttachmentPose returns the global pose of a named attachment.
func (m *Model) AttachmentPose(name string) (spatialmath.Pose, bool) {
	defer m.lock.Read()()
	for _, a := range m.attachments {
		if a.Name == name {
			return a.global, true
		}
	}
	return nil, false
}

// Root returns the id of the root node, or NoNode for an empty model.
func (m *Model) Root() NodeID {
	defer m.lock.Read()()
	return m.root
}

// NumNodes returns the number of nodes in the model.
func (m *Model) NumNodes() int {
	defer m.lock.Read()()
	return len(m.nodes)
}

// Node looks a node up by name.
func (m *Model) Node(name string) (NodeID, bool) {
	defer m.lock.Read()()
	id, ok := m.index[name]
	return id, ok
}

// NodeNames returns the node names in insertion order.
func (m *Model) NodeNames() []string {
	defer m.lock.Read()()
	names := make([]string, 0, len(m.nodes))
	for _, n := range m.nodes {
		names = append(names, n.name)
	}
	return names
}

// HasNode reports whether id addresses a node of this model.
func (m *Model) HasNode(id NodeID) bool {
	defer m.lock.Read()()
	return m.valid(id)
}

func (m *Model) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(m.nodes)
}

// NodeName returns the name of a node, or "" if id is unknown.
func (m *Model) NodeName(id NodeID) string {
	defer m.lock.Read()()
	if !m.valid(id) {
		return ""
	}
	return m.nodes[id].name
}

// NodeType returns the type of a node.
func (m *Model) NodeType(id NodeID) NodeType {
	defer m.lock.Read()()
	if !m.valid(id) {
		return ""
	}
	return m.nodes[id].typ
}

// Parent returns the parent of a node, NoNode for the root.
func (m *Model) Parent(id NodeID) NodeID {
	defer m.lock.Read()()
	if !m.valid(id) {
		return NoNode
	}
	return m.nodes[id].parent
}

// Children returns a copy of the children of a node.
func (m *Model) Children(id NodeID) []NodeID {
	defer m.lock.Read()()
	if !m.valid(id) {
		return nil
	}
	return append([]NodeID(nil), m.nodes[id].children...)
}

// IsAncestor reports whether ancestor lies on the path from id to the root (a node is its own ancestor).
func (m *Model) IsAncestor(ancestor, id NodeID) bool {
	defer m.lock.Read()()
	return m.isAncestor(ancestor, id)
}

func (m *Model) isAncestor(ancestor, id NodeID) bool {
	for cur := id; m.valid(cur); cur = m.nodes[cur].parent {
		if cur == ancestor {
			return true
		}
	}
	return false
}

// GlobalPose returns the pose of a node in the world frame.
func (m *Model) GlobalPose(id NodeID) (spatialmath.Pose, error) {
	defer m.lock.Read()()
	if !m.valid(id) {
		return nil, errors.Errorf("node %d not in model %q", id, m.name)
	}
	return m.nodes[id].global, nil
}

// SetGlobalPose places the model root in the world and updates every node.
func (m *Model) SetGlobalPose(p spatialmath.Pose) {
	changed := func() []notification {
		defer m.lock.Write()()
		m.globalPose = orZero(p)
		if m.root == NoNode {
			return nil
		}
		return m.updatePoses(m.root)
	}()
	m.notify(changed)
}

// ModelGlobalPose returns the placement of the model root.
func (m *Model) ModelGlobalPose() spatialmath.Pose {
	defer m.lock.Read()()
	return m.globalPose
}

// JointValue returns the current value of a joint node. Non joint nodes report 0.
func (m *Model) JointValue(id NodeID) float64 {
	defer m.lock.Read()()
	if !m.valid(id) {
		return 0
	}
	return m.nodes[id].value
}

// SetJointValue clamps v into the joint limits, writes it, applies coupling propagation and recomputes
// the poses of the joint's subtree. NaN and infinite values are rejected without touching the model.
func (m *Model) SetJointValue(id NodeID, v float64) error {
	changed, err := func() ([]notification, error) {
		defer m.lock.Write()()
		if err := m.writeJointValue(id, v); err != nil {
			return nil, err
		}
		roots := append([]NodeID{id}, m.propagationTargets(id)...)
		return m.updatePoses(roots...), nil
	}()
	if err != nil {
		return err
	}
	m.notify(changed)
	return nil
}

// SetJointValues writes several joints and recomputes poses once from the given kinematic root.
// If kinematicRoot is NoNode the whole model is updated.
func (m *Model) SetJointValues(ids []NodeID, values []float64, kinematicRoot NodeID) error {
	if len(ids) != len(values) {
		return errors.Errorf("got %d values for %d joints", len(values), len(ids))
	}
	changed, err := func() ([]notification, error) {
		defer m.lock.Write()()
		for i, v := range values {
			if !utils.IsFinite(v) {
				return nil, ErrNonFiniteJointValue
			}
			if !m.valid(ids[i]) || !m.nodes[ids[i]].typ.IsJoint() {
				return nil, errors.Errorf("node %d is not a joint of model %q", ids[i], m.name)
			}
		}
		if !m.valid(kinematicRoot) {
			kinematicRoot = m.root
		}
		roots := []NodeID{}
		for i, id := range ids {
			if err := m.writeJointValue(id, values[i]); err != nil {
				return nil, err
			}
			for _, target := range m.propagationTargets(id) {
				if !m.isAncestor(kinematicRoot, target) {
					roots = append(roots, target)
				}
			}
		}
		for _, id := range ids {
			if !m.isAncestor(kinematicRoot, id) {
				roots = append(roots, id)
			}
		}
		return m.updatePoses(append([]NodeID{kinematicRoot}, roots...)...), nil
	}()
	if err != nil {
		return err
	}
	m.notify(changed)
	return nil
}

// writeJointValue clamps and stores a value, then writes coupled joints transitively. Poses are not updated.
func (m *Model) writeJointValue(id NodeID, v float64) error {
	if !m.valid(id) {
		return errors.Errorf("node %d not in model %q", id, m.name)
	}
	n := m.nodes[id]
	if !n.typ.IsJoint() {
		return errors.Errorf("node %q is a %s and has no joint value", n.name, n.typ)
	}
	if !utils.IsFinite(v) {
		return ErrNonFiniteJointValue
	}
	m.propagateValue(id, v, map[NodeID]bool{})
	return nil
}

// propagateValue writes v to id and value*factor down the coupling chain. Each joint is written at most once
// per call so cyclic couplings terminate.
func (m *Model) propagateValue(id NodeID, v float64, visited map[NodeID]bool) {
	visited[id] = true
	n := m.nodes[id]
	n.value = utils.Clamp(v, n.lower, n.upper)
	for name, factor := range n.propagated {
		dep, ok := m.index[name]
		if !ok || visited[dep] || !m.nodes[dep].typ.IsJoint() {
			continue
		}
		m.propagateValue(dep, n.value*factor, visited)
	}
}

// propagationTargets returns every joint reached from id through couplings, id excluded.
func (m *Model) propagationTargets(id NodeID) []NodeID {
	targets := []NodeID{}
	visited := map[NodeID]bool{id: true}
	queue := []NodeID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for name := range m.nodes[cur].propagated {
			dep, ok := m.index[name]
			if !ok || visited[dep] {
				continue
			}
			visited[dep] = true
			targets = append(targets, dep)
			queue = append(queue, dep)
		}
	}
	return targets
}

// PropagateJointValue couples dependent to the joint id: writes to id set dependent to value*factor.
// A factor of 0 removes the coupling.
func (m *Model) PropagateJointValue(id NodeID, dependent string, factor float64) error {
	defer m.lock.Write()()
	if !m.valid(id) || !m.nodes[id].typ.IsJoint() {
		return errors.Errorf("node %d is not a joint of model %q", id, m.name)
	}
	n := m.nodes[id]
	if factor == 0 {
		delete(n.propagated, dependent)
		return nil
	}
	dep, ok := m.index[dependent]
	if !ok || !m.nodes[dep].typ.IsJoint() {
		return errors.Errorf("cannot propagate %q to %q: not a joint", n.name, dependent)
	}
	if dep == id {
		return errors.Errorf("joint %q cannot propagate to itself", n.name)
	}
	if n.propagated == nil {
		n.propagated = map[string]float64{}
	}
	n.propagated[dependent] = factor
	return nil
}

// JointLimits returns the limits of a joint.
func (m *Model) JointLimits(id NodeID) (lower, upper float64) {
	defer m.lock.Read()()
	if !m.valid(id) {
		return 0, 0
	}
	return m.nodes[id].lower, m.nodes[id].upper
}

// SetJointLimits replaces the limits of a joint and re-clamps its value.
func (m *Model) SetJointLimits(id NodeID, lower, upper float64) error {
	changed, err := func() ([]notification, error) {
		defer m.lock.Write()()
		if !m.valid(id) || !m.nodes[id].typ.IsJoint() {
			return nil, errors.Errorf("node %d is not a joint of model %q", id, m.name)
		}
		if lower > upper || !utils.IsFinite(lower) || !utils.IsFinite(upper) {
			return nil, errors.Errorf("invalid joint limits [%v, %v]", lower, upper)
		}
		n := m.nodes[id]
		n.lower, n.upper = lower, upper
		if err := m.writeJointValue(id, n.value); err != nil {
			return nil, err
		}
		return m.updatePoses(id), nil
	}()
	if err != nil {
		return err
	}
	m.notify(changed)
	return nil
}

// CheckJointLimits reports whether v lies within the limits of the joint.
func (m *Model) CheckJointLimits(id NodeID, v float64) bool {
	lower, upper := m.JointLimits(id)
	return v >= lower && v <= upper
}

// JointOffset returns the constant value offset of a joint.
func (m *Model) JointOffset(id NodeID) float64 {
	defer m.lock.Read()()
	if !m.valid(id) {
		return 0
	}
	return m.nodes[id].offset
}

// JointDynamicsLimits returns the max velocity, acceleration and torque of a joint. Zero means unset.
func (m *Model) JointDynamicsLimits(id NodeID) (velocity, acceleration, torque float64) {
	defer m.lock.Read()()
	if !m.valid(id) {
		return 0, 0, 0
	}
	n := m.nodes[id]
	return n.maxVelocity, n.maxAcceleration, n.maxTorque
}

// JointAxis returns the joint axis and the joint origin in the world frame.
func (m *Model) JointAxis(id NodeID) (axis, origin r3.Vector) {
	defer m.lock.Read()()
	if !m.valid(id) {
		return r3.Vector{}, r3.Vector{}
	}
	n := m.nodes[id]
	return n.global.Orientation().Apply(n.axis), n.global.Point()
}

// Geometry returns the geometry of a link in the world frame, or nil if it has none.
func (m *Model) Geometry(id NodeID) spatialmath.Geometry {
	defer m.lock.Read()()
	return m.geometry(id)
}

func (m *Model) geometry(id NodeID) spatialmath.Geometry {
	if !m.valid(id) || m.nodes[id].geometry == nil {
		return nil
	}
	return m.nodes[id].geometry.Transform(m.nodes[id].global)
}

// Mass returns the mass of a link.
func (m *Model) Mass(id NodeID) float64 {
	defer m.lock.Read()()
	if !m.valid(id) {
		return 0
	}
	return m.nodes[id].mass
}

// CenterOfMass returns the mass weighted average of the global centres of mass of the given links, and their
// total mass. Links without mass are ignored.
func (m *Model) CenterOfMass(ids []NodeID) (r3.Vector, float64) {
	defer m.lock.Read()()
	var com r3.Vector
	total := 0.
	for _, id := range ids {
		if !m.valid(id) || m.nodes[id].mass <= 0 {
			continue
		}
		n := m.nodes[id]
		com = com.Add(spatialmath.TransformPoint(n.global, n.centerOfMass).Mul(n.mass))
		total += n.mass
	}
	if total == 0 {
		return r3.Vector{}, 0
	}
	return com.Mul(1 / total), total
}

// AddPoseObserver registers an observer notified of every pose change.
func (m *Model) AddPoseObserver(o PoseObserver) {
	defer m.lock.Write()()
	m.observers = append(m.observers, o)
}

// SetUpdateVisualization enables or disables pose notifications.
func (m *Model) SetUpdateVisualization(enable bool) {
	defer m.lock.Write()()
	m.updateVisualization = enable
}

// UpdateVisualization reports whether pose notifications are enabled.
func (m *Model) UpdateVisualization() bool {
	defer m.lock.Read()()
	return m.updateVisualization
}

type notification struct {
	name string
	pose spatialmath.Pose
}

// updatePoses recomputes the global pose of each root and all of its descendants, parent before child.
// Roots inside an earlier root's subtree are skipped since they were refreshed with it. Must be called with the write lock held.
func (m *Model) updatePoses(roots ...NodeID) []notification {
	visited := map[NodeID]bool{}
	var changed []notification
	for _, r := range roots {
		if !m.valid(r) || visited[r] {
			continue
		}
		stack := []NodeID{r}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			visited[id] = true
			n := m.nodes[id]
			parentPose := m.globalPose
			if n.parent != NoNode {
				parentPose = m.nodes[n.parent].global
			}
			n.global = spatialmath.Compose(spatialmath.Compose(parentPose, n.local), n.motion())
			if m.updateVisualization && len(m.observers) > 0 {
				changed = append(changed, notification{name: n.name, pose: n.global})
			}
			// push in reverse so children are visited in insertion order
			for i := len(n.children) - 1; i >= 0; i-- {
				stack = append(stack, n.children[i])
			}
		}
	}
	for _, a := range m.attachments {
		if visited[a.Node] {
			a.global = spatialmath.Compose(m.nodes[a.Node].global, a.Offset)
			if m.updateVisualization && len(m.observers) > 0 {
				changed = append(changed, notification{name: a.Name, pose: a.global})
			}
		}
	}
	return changed
}

func (m *Model) notify(changed []notification) {
	if len(changed) == 0 {
		return
	}
	observers := func() []PoseObserver {
		defer m.lock.Read()()
		return append([]PoseObserver(nil), m.observers...)
	}()
	for _, c := range changed {
		for _, o := range observers {
			o.PoseChanged(m.name, c.name, c.pose)
		}
	}
}

// Clone deep copies the node tree, geometry and physics metadata into an independent model bound to checker.
// Observers are not copied. A nil checker keeps the original checker.
func (m *Model) Clone(name string, checker CollisionContext) *Model {
	defer m.lock.Read()()
	if checker == nil {
		checker = m.checker
	}
	c := NewModel(name, checker)
	c.root = m.root
	c.globalPose = m.globalPose
	c.updateVisualization = m.updateVisualization
	c.nodes = make([]*node, 0, len(m.nodes))
	for _, n := range m.nodes {
		c.nodes = append(c.nodes, n.clone())
	}
	for k, v := range m.index {
		c.index[k] = v
	}
	for _, a := range m.attachments {
		cp := *a
		c.attachments = append(c.attachments, &cp)
	}
	for k, v := range m.jointSetDefs {
		c.jointSetDefs[k] = v
	}
	for k, v := range m.linkSetDefs {
		c.linkSetDefs[k] = v
	}
	return c
}

func (m *Model) String() string {
	defer m.lock.Read()()
	return fmt.Sprintf("model %q (%d nodes)", m.name, len(m.nodes))
}

// NewObstacle returns a single link model carrying geom, placed at pose.
func NewObstacle(name string, geom spatialmath.Geometry, pose spatialmath.Pose, checker CollisionContext) (*Model, error) {
	m := NewModel(name, checker)
	if _, err := m.AddLink(LinkConfig{Name: name, Geometry: geom}); err != nil {
		return nil, err
	}
	m.SetGlobalPose(pose)
	return m, nil
}
