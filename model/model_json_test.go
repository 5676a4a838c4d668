package model

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

const twoJointJSON = `{
  "name": "planar",
  "joints": [
    {"id": "tcp", "type": "fixed", "parent": "link2", "translation": [1, 0, 0]},
    {"id": "j2", "type": "revolute", "parent": "link1", "axis": [0, 0, 1], "min": -90, "max": 90, "translation": [1, 0, 0]},
    {"id": "j1", "type": "revolute", "parent": "base", "axis": [0, 0, 1], "min": -180, "max": 180,
     "propagate": {"j2": 0.5}}
  ],
  "links": [
    {"id": "link2", "parent": "j2", "geometry": {"type": "box", "x": 1, "y": 0.1, "z": 0.1, "translation": [0.5, 0, 0]}},
    {"id": "link1", "parent": "j1", "geometry": {"type": "sphere", "r": 0.2}, "mass": 2},
    {"id": "base"}
  ],
  "joint_sets": [{"name": "arm", "nodes": ["j1", "j2"], "tcp": "tcp"}],
  "link_sets": [{"name": "body", "nodes": ["link1", "link2"]}]
}`

func TestParseModelJSON(t *testing.T) {
	m, err := UnmarshalModelJSON([]byte(twoJointJSON), "", namedChecker("default"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.Name(), test.ShouldEqual, "planar")
	test.That(t, m.NodeNames(), test.ShouldResemble, []string{"base", "j1", "link1", "j2", "link2", "tcp"})

	j2 := mustNode(t, m, "j2")
	lo, hi := m.JointLimits(j2)
	test.That(t, lo, test.ShouldAlmostEqual, -math.Pi/2)
	test.That(t, hi, test.ShouldAlmostEqual, math.Pi/2)

	js, err := m.JointSet("arm")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.SetJointValue(js.Node(0), 1), test.ShouldBeNil)
	test.That(t, m.JointValue(j2), test.ShouldAlmostEqual, 0.5)

	ls, err := m.LinkSet("body")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(ls.Geometries()), test.ShouldEqual, 2)
	test.That(t, ls.Geometries()[1].Label(), test.ShouldEqual, "link2")
	test.That(t, m.Mass(mustNode(t, m, "link1")), test.ShouldEqual, 2.)

	_, err = m.JointSet("missing")
	test.That(t, err, test.ShouldNotBeNil)

	named, err := UnmarshalModelJSON([]byte(twoJointJSON), "renamed", nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, named.Name(), test.ShouldEqual, "renamed")
}

func TestParseModelJSONErrors(t *testing.T) {
	_, err := UnmarshalModelJSON(nil, "", nil)
	test.That(t, err, test.ShouldBeError, ErrNoModelInformation)

	for name, doc := range map[string]string{
		"cycle":          `{"links": [{"id": "a"}, {"id": "b", "parent": "c"}, {"id": "c", "parent": "b"}]}`,
		"two roots":      `{"links": [{"id": "a"}, {"id": "b"}]}`,
		"missing parent": `{"links": [{"id": "a"}, {"id": "b", "parent": "x"}]}`,
		"duplicate":      `{"links": [{"id": "a"}, {"id": "a", "parent": "a"}]}`,
		"bad joint":      `{"links": [{"id": "a"}], "joints": [{"id": "j", "type": "helical", "parent": "a", "axis": [1, 0, 0]}]}`,
		"bad vector":     `{"links": [{"id": "a", "translation": [1, 2]}]}`,
		"not json":       `{"links": [`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := UnmarshalModelJSON([]byte(doc), "", nil)
			test.That(t, err, test.ShouldNotBeNil)
		})
	}
}

func TestParseModelJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planar.json")
	test.That(t, os.WriteFile(path, []byte(twoJointJSON), 0o600), test.ShouldBeNil)
	m, err := ParseModelJSONFile(path, "", nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.NumNodes(), test.ShouldEqual, 6)

	_, err = ParseModelJSONFile(filepath.Join(t.TempDir(), "missing.json"), "", nil)
	test.That(t, err, test.ShouldNotBeNil)
}
