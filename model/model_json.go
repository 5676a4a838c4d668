package model

import (
	"encoding/json"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"go.viam.com/motionkit/spatialmath"
	"go.viam.com/motionkit/utils"
)

// ErrNoModelInformation is used when there is no model information.
var ErrNoModelInformation = errors.New("no model information")

// ModelConfigJSON represents all supported fields in a kinematics JSON file.
type ModelConfigJSON struct {
	Name      string            `json:"name"`
	Links     []LinkConfigJSON  `json:"links,omitempty"`
	Joints    []JointConfigJSON `json:"joints,omitempty"`
	JointSets []SetConfigJSON   `json:"joint_sets,omitempty"`
	LinkSets  []SetConfigJSON   `json:"link_sets,omitempty"`
}

// LinkConfigJSON is a link entry of a model file.
type LinkConfigJSON struct {
	ID           string                      `json:"id"`
	Parent       string                      `json:"parent,omitempty"`
	Translation  []float64                   `json:"translation,omitempty"`
	RPY          []float64                   `json:"rpy,omitempty"`
	Geometry     *spatialmath.GeometryConfig `json:"geometry,omitempty"`
	Mass         float64                     `json:"mass,omitempty"`
	CenterOfMass []float64                   `json:"center_of_mass,omitempty"`
}

// JointConfigJSON is a joint entry of a model file. Revolute limits are in degrees.
type JointConfigJSON struct {
	ID              string             `json:"id"`
	Type            string             `json:"type"`
	Parent          string             `json:"parent,omitempty"`
	Axis            []float64          `json:"axis,omitempty"`
	Min             float64            `json:"min"`
	Max             float64            `json:"max"`
	Offset          float64            `json:"offset,omitempty"`
	Translation     []float64          `json:"translation,omitempty"`
	RPY             []float64          `json:"rpy,omitempty"`
	MaxVelocity     float64            `json:"max_velocity,omitempty"`
	MaxAcceleration float64            `json:"max_acceleration,omitempty"`
	MaxTorque       float64            `json:"max_torque,omitempty"`
	Propagate       map[string]float64 `json:"propagate,omitempty"`
}

// SetConfigJSON names a joint or link set of a model file.
type SetConfigJSON struct {
	Name          string   `json:"name"`
	Nodes         []string `json:"nodes"`
	KinematicRoot string   `json:"kinematic_root,omitempty"`
	TCP           string   `json:"tcp,omitempty"`
}

// UnmarshalModelJSON will parse the given JSON data into a kinematic model. modelName sets the name of the model,
// the name from the JSON is used if it is empty.
func UnmarshalModelJSON(jsonData []byte, modelName string, checker CollisionContext) (*Model, error) {
	// empty data probably means that the robot has no model information
	if len(jsonData) == 0 {
		return nil, ErrNoModelInformation
	}
	cfg := &ModelConfigJSON{}
	if err := json.Unmarshal(jsonData, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal json file")
	}
	return cfg.ParseConfig(modelName, checker)
}

// ParseModelJSONFile will read a given file and then parse the contained JSON data.
func ParseModelJSONFile(filename, modelName string, checker CollisionContext) (*Model, error) {
	//nolint:gosec
	jsonData, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read json file")
	}
	return UnmarshalModelJSON(jsonData, modelName, checker)
}

// ParseConfig converts the config into a model. Entries may appear in any order; they are added
// parent before child.
func (cfg *ModelConfigJSON) ParseConfig(modelName string, checker CollisionContext) (*Model, error) {
	if modelName == "" {
		modelName = cfg.Name
	}
	order, err := cfg.topologicalOrder()
	if err != nil {
		return nil, err
	}

	links := map[string]LinkConfigJSON{}
	for _, l := range cfg.Links {
		links[l.ID] = l
	}
	joints := map[string]JointConfigJSON{}
	for _, j := range cfg.Joints {
		joints[j.ID] = j
	}

	m := NewModel(modelName, checker)
	for _, name := range order {
		if l, ok := links[name]; ok {
			lc, err := l.toLinkConfig()
			if err != nil {
				return nil, err
			}
			if _, err := m.AddLink(lc); err != nil {
				return nil, err
			}
			continue
		}
		jc, err := joints[name].toJointConfig()
		if err != nil {
			return nil, err
		}
		if _, err := m.AddJoint(jc); err != nil {
			return nil, err
		}
	}
	for _, j := range cfg.Joints {
		id, _ := m.Node(j.ID)
		for dep, factor := range j.Propagate {
			if err := m.PropagateJointValue(id, dep, factor); err != nil {
				return nil, err
			}
		}
	}
	for _, sc := range cfg.JointSets {
		js, err := NewJointSet(m, sc.Name, sc.Nodes, sc.KinematicRoot, sc.TCP)
		if err != nil {
			return nil, err
		}
		if err := m.RegisterJointSet(js); err != nil {
			return nil, err
		}
	}
	for _, sc := range cfg.LinkSets {
		ls, err := NewLinkSet(m, sc.Name, sc.Nodes, sc.KinematicRoot, sc.TCP)
		if err != nil {
			return nil, err
		}
		if err := m.RegisterLinkSet(ls); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// topologicalOrder sorts every node name so that parents come before children, rejecting cycles,
// duplicate ids, missing parents and forests.
func (cfg *ModelConfigJSON) topologicalOrder() ([]string, error) {
	parents := map[string]string{}
	names := []string{}
	add := func(id, parent string) error {
		if id == "" {
			return errors.New("model entry with empty id")
		}
		if _, dup := parents[id]; dup {
			return errors.Errorf("duplicate model entry %q", id)
		}
		parents[id] = parent
		names = append(names, id)
		return nil
	}
	for _, l := range cfg.Links {
		if err := add(l.ID, l.Parent); err != nil {
			return nil, err
		}
	}
	for _, j := range cfg.Joints {
		if err := add(j.ID, j.Parent); err != nil {
			return nil, err
		}
	}

	g := simple.NewDirectedGraph()
	ids := map[string]int64{}
	for i, name := range names {
		ids[name] = int64(i)
		g.AddNode(simple.Node(i))
	}
	roots := 0
	for _, name := range names {
		parent := parents[name]
		if parent == "" {
			roots++
			continue
		}
		pid, ok := ids[parent]
		if !ok {
			return nil, errors.Errorf("parent %q of %q not found", parent, name)
		}
		if parent == name {
			return nil, errors.Errorf("%q is its own parent", name)
		}
		g.SetEdge(g.NewEdge(g.Node(pid), g.Node(ids[name])))
	}
	if roots != 1 {
		return nil, errors.Errorf("model needs exactly one root, found %d", roots)
	}
	sorted, err := topo.SortStabilized(g, nil)
	if err != nil {
		return nil, errors.Wrap(err, "model description is not a tree")
	}
	order := make([]string, 0, len(sorted))
	for _, n := range sorted {
		order = append(order, names[n.ID()])
	}
	return order, nil
}

func (l LinkConfigJSON) toLinkConfig() (LinkConfig, error) {
	transform, err := staticTransform(l.Translation, l.RPY)
	if err != nil {
		return LinkConfig{}, errors.Wrapf(err, "link %q", l.ID)
	}
	lc := LinkConfig{Name: l.ID, Parent: l.Parent, Transform: transform, Mass: l.Mass}
	if l.Geometry != nil {
		if lc.Geometry, err = l.Geometry.ParseConfig(); err != nil {
			return LinkConfig{}, errors.Wrapf(err, "link %q", l.ID)
		}
		if lc.Geometry.Label() == "" {
			lc.Geometry.SetLabel(l.ID)
		}
	}
	if lc.CenterOfMass, err = vector(l.CenterOfMass); err != nil {
		return LinkConfig{}, errors.Wrapf(err, "link %q center_of_mass", l.ID)
	}
	return lc, nil
}

func (j JointConfigJSON) toJointConfig() (JointConfig, error) {
	transform, err := staticTransform(j.Translation, j.RPY)
	if err != nil {
		return JointConfig{}, errors.Wrapf(err, "joint %q", j.ID)
	}
	axis, err := vector(j.Axis)
	if err != nil {
		return JointConfig{}, errors.Wrapf(err, "joint %q axis", j.ID)
	}
	jc := JointConfig{
		Name:            j.ID,
		Parent:          j.Parent,
		Type:            NodeType(j.Type),
		Transform:       transform,
		Axis:            axis,
		Lower:           j.Min,
		Upper:           j.Max,
		Offset:          j.Offset,
		MaxVelocity:     j.MaxVelocity,
		MaxAcceleration: j.MaxAcceleration,
		MaxTorque:       j.MaxTorque,
	}
	if jc.Type == JointRevolute {
		jc.Lower = utils.DegToRad(j.Min)
		jc.Upper = utils.DegToRad(j.Max)
		jc.Offset = utils.DegToRad(j.Offset)
	}
	return jc, nil
}

func staticTransform(translation, rpy []float64) (spatialmath.Pose, error) {
	pt, err := vector(translation)
	if err != nil {
		return nil, err
	}
	o, err := vector(rpy)
	if err != nil {
		return nil, err
	}
	return spatialmath.NewPose(pt, spatialmath.NewRotationMatrixFromRPY(o.X, o.Y, o.Z)), nil
}

func vector(v []float64) (r3.Vector, error) {
	switch len(v) {
	case 0:
		return r3.Vector{}, nil
	case 3:
		return r3.Vector{X: v[0], Y: v[1], Z: v[2]}, nil
	default:
		return r3.Vector{}, errors.Errorf("expected 3 values, got %d", len(v))
	}
}
