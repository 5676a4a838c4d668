package model

import (
	"math"
	"sync"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/motionkit/spatialmath"
)

type namedChecker string

func (c namedChecker) Name() string { return string(c) }

// planarArm builds base -> j1 -> link1 -> j2 -> link2 -> tcp with unit length links along x.
func planarArm(t *testing.T) *Model {
	t.Helper()
	m := NewModel("arm", namedChecker("default"))
	geom, err := spatialmath.NewBox(spatialmath.NewPoseFromPoint(r3.Vector{X: 0.5}), r3.Vector{X: 1, Y: 0.1, Z: 0.1}, "")
	test.That(t, err, test.ShouldBeNil)

	_, err = m.AddLink(LinkConfig{Name: "base"})
	test.That(t, err, test.ShouldBeNil)
	_, err = m.AddJoint(JointConfig{Name: "j1", Parent: "base", Type: JointRevolute, Axis: r3.Vector{Z: 1}, Lower: -math.Pi, Upper: math.Pi})
	test.That(t, err, test.ShouldBeNil)
	_, err = m.AddLink(LinkConfig{Name: "link1", Parent: "j1", Geometry: geom, Mass: 1, CenterOfMass: r3.Vector{X: 0.5}})
	test.That(t, err, test.ShouldBeNil)
	_, err = m.AddJoint(JointConfig{
		Name: "j2", Parent: "link1", Type: JointRevolute, Axis: r3.Vector{Z: 1},
		Transform: spatialmath.NewPoseFromPoint(r3.Vector{X: 1}), Lower: -math.Pi, Upper: math.Pi,
	})
	test.That(t, err, test.ShouldBeNil)
	_, err = m.AddLink(LinkConfig{Name: "link2", Parent: "j2", Geometry: geom, Mass: 1, CenterOfMass: r3.Vector{X: 0.5}})
	test.That(t, err, test.ShouldBeNil)
	_, err = m.AddJoint(JointConfig{Name: "tcp", Parent: "link2", Type: JointFixed, Transform: spatialmath.NewPoseFromPoint(r3.Vector{X: 1})})
	test.That(t, err, test.ShouldBeNil)
	return m
}

func mustNode(t *testing.T, m *Model, name string) NodeID {
	t.Helper()
	id, ok := m.Node(name)
	test.That(t, ok, test.ShouldBeTrue)
	return id
}

func TestJointClamping(t *testing.T) {
	m := NewModel("one", namedChecker("default"))
	_, err := m.AddLink(LinkConfig{Name: "base"})
	test.That(t, err, test.ShouldBeNil)
	j, err := m.AddJoint(JointConfig{Name: "j", Parent: "base", Type: JointRevolute, Axis: r3.Vector{Z: 1}, Lower: 0, Upper: 1.57})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, m.SetJointValue(j, 2.0), test.ShouldBeNil)
	test.That(t, m.JointValue(j), test.ShouldEqual, 1.57)

	test.That(t, m.SetJointValue(j, -4), test.ShouldBeNil)
	test.That(t, m.JointValue(j), test.ShouldEqual, 0.)

	test.That(t, m.SetJointValue(j, 0.5), test.ShouldBeNil)
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		err := m.SetJointValue(j, bad)
		test.That(t, err, test.ShouldBeError, ErrNonFiniteJointValue)
		test.That(t, m.JointValue(j), test.ShouldEqual, 0.5)
	}

	base := mustNode(t, m, "base")
	test.That(t, m.SetJointValue(base, 1), test.ShouldNotBeNil)

	test.That(t, m.SetJointLimits(j, 0, 0.2), test.ShouldBeNil)
	test.That(t, m.JointValue(j), test.ShouldEqual, 0.2)
	test.That(t, m.SetJointLimits(j, 1, 0), test.ShouldNotBeNil)
	test.That(t, m.CheckJointLimits(j, 0.1), test.ShouldBeTrue)
	test.That(t, m.CheckJointLimits(j, 0.3), test.ShouldBeFalse)
}

func TestBuildErrors(t *testing.T) {
	m := NewModel("bad", nil)
	_, err := m.AddLink(LinkConfig{Name: "base"})
	test.That(t, err, test.ShouldBeNil)
	_, err = m.AddLink(LinkConfig{Name: "base", Parent: "base"})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = m.AddLink(LinkConfig{Name: "other"})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = m.AddLink(LinkConfig{Name: "orphan", Parent: "missing"})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = m.AddJoint(JointConfig{Name: "noaxis", Parent: "base", Type: JointPrismatic})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = m.AddJoint(JointConfig{Name: "badlimits", Parent: "base", Type: JointPrismatic, Axis: r3.Vector{X: 1}, Lower: 1, Upper: -1})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, m.NumNodes(), test.ShouldEqual, 1)
}

func TestForwardKinematics(t *testing.T) {
	m := planarArm(t)
	tcp := mustNode(t, m, "tcp")
	pose, err := m.GlobalPose(tcp)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.R3VectorAlmostEqual(pose.Point(), r3.Vector{X: 2}, 1e-9), test.ShouldBeTrue)

	test.That(t, m.SetJointValue(mustNode(t, m, "j1"), math.Pi/2), test.ShouldBeNil)
	pose, err = m.GlobalPose(tcp)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.R3VectorAlmostEqual(pose.Point(), r3.Vector{Y: 2}, 1e-9), test.ShouldBeTrue)

	test.That(t, m.SetJointValue(mustNode(t, m, "j2"), -math.Pi/2), test.ShouldBeNil)
	pose, err = m.GlobalPose(tcp)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.R3VectorAlmostEqual(pose.Point(), r3.Vector{X: 1, Y: 1}, 1e-9), test.ShouldBeTrue)

	// link2's geometry follows its node
	g := m.Geometry(mustNode(t, m, "link2"))
	test.That(t, g, test.ShouldNotBeNil)
	test.That(t, spatialmath.R3VectorAlmostEqual(g.Pose().Point(), r3.Vector{X: 0.5, Y: 1}, 1e-9), test.ShouldBeTrue)

	m.SetGlobalPose(spatialmath.NewPoseFromPoint(r3.Vector{Z: 3}))
	pose, err = m.GlobalPose(tcp)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pose.Point().Z, test.ShouldAlmostEqual, 3)

	com, mass := m.CenterOfMass([]NodeID{mustNode(t, m, "link1"), mustNode(t, m, "link2")})
	test.That(t, mass, test.ShouldEqual, 2.)
	test.That(t, com.X, test.ShouldAlmostEqual, 0.25)
	test.That(t, com.Y, test.ShouldAlmostEqual, 0.75)
}

func TestPropagation(t *testing.T) {
	m := planarArm(t)
	j1 := mustNode(t, m, "j1")
	j2 := mustNode(t, m, "j2")

	test.That(t, m.PropagateJointValue(j1, "j2", 0.5), test.ShouldBeNil)
	test.That(t, m.SetJointValue(j1, 1), test.ShouldBeNil)
	test.That(t, m.JointValue(j2), test.ShouldAlmostEqual, 0.5)

	// the coupled joint's pose is current too
	pose, err := m.GlobalPose(mustNode(t, m, "tcp"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pose.Point().X, test.ShouldAlmostEqual, math.Cos(1)+math.Cos(1.5))

	test.That(t, m.PropagateJointValue(j1, "j2", 0), test.ShouldBeNil)
	test.That(t, m.SetJointValue(j1, 0.2), test.ShouldBeNil)
	test.That(t, m.JointValue(j2), test.ShouldAlmostEqual, 0.5)

	test.That(t, m.PropagateJointValue(j1, "j1", 2), test.ShouldNotBeNil)
	test.That(t, m.PropagateJointValue(j1, "link1", 2), test.ShouldNotBeNil)
}

// threeJoints builds base -> a -> la -> b -> lb -> c -> lc, all revolute about z.
func threeJoints(t *testing.T) (*Model, NodeID, NodeID, NodeID) {
	t.Helper()
	m := NewModel("chain", namedChecker("default"))
	_, err := m.AddLink(LinkConfig{Name: "base"})
	test.That(t, err, test.ShouldBeNil)
	ids := []NodeID{}
	parent := "base"
	for _, name := range []string{"a", "b", "c"} {
		id, err := m.AddJoint(JointConfig{
			Name: name, Parent: parent, Type: JointRevolute, Axis: r3.Vector{Z: 1},
			Transform: spatialmath.NewPoseFromPoint(r3.Vector{X: 1}), Lower: -math.Pi, Upper: math.Pi,
		})
		test.That(t, err, test.ShouldBeNil)
		parent = "l" + name
		_, err = m.AddLink(LinkConfig{Name: parent, Parent: name})
		test.That(t, err, test.ShouldBeNil)
		ids = append(ids, id)
	}
	return m, ids[0], ids[1], ids[2]
}

func TestPropagationChain(t *testing.T) {
	m, a, b, c := threeJoints(t)
	test.That(t, m.PropagateJointValue(a, "b", 2), test.ShouldBeNil)
	test.That(t, m.PropagateJointValue(b, "c", 0.5), test.ShouldBeNil)

	test.That(t, m.SetJointValue(a, 1), test.ShouldBeNil)
	test.That(t, m.JointValue(a), test.ShouldAlmostEqual, 1)
	test.That(t, m.JointValue(b), test.ShouldAlmostEqual, 2)
	test.That(t, m.JointValue(c), test.ShouldAlmostEqual, 1)

	// the indirectly coupled joint is re-posed: lc sits at angle a+b+c = 4
	pose, err := m.GlobalPose(mustNode(t, m, "lc"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pose.Point().X, test.ShouldAlmostEqual, 1+math.Cos(1)+math.Cos(3), 1e-9)
	test.That(t, pose.Point().Y, test.ShouldAlmostEqual, math.Sin(1)+math.Sin(3), 1e-9)

	test.That(t, m.SetJointValues([]NodeID{a}, []float64{0.5}, NoNode), test.ShouldBeNil)
	test.That(t, m.JointValue(b), test.ShouldAlmostEqual, 1)
	test.That(t, m.JointValue(c), test.ShouldAlmostEqual, 0.5)
	pose, err = m.GlobalPose(mustNode(t, m, "lc"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pose.Point().X, test.ShouldAlmostEqual, 1+math.Cos(0.5)+math.Cos(1.5), 1e-9)
}

func TestPropagationCycle(t *testing.T) {
	m, a, b, c := threeJoints(t)
	test.That(t, m.PropagateJointValue(a, "b", 2), test.ShouldBeNil)
	test.That(t, m.PropagateJointValue(b, "c", 1), test.ShouldBeNil)
	test.That(t, m.PropagateJointValue(c, "a", 3), test.ShouldBeNil)

	// each joint is written once, the cycle does not feed back into a
	test.That(t, m.SetJointValue(a, 0.5), test.ShouldBeNil)
	test.That(t, m.JointValue(a), test.ShouldAlmostEqual, 0.5)
	test.That(t, m.JointValue(b), test.ShouldAlmostEqual, 1)
	test.That(t, m.JointValue(c), test.ShouldAlmostEqual, 1)
}

func TestSetJointValuesRejectsBadIDs(t *testing.T) {
	m, a, b, _ := threeJoints(t)
	test.That(t, m.SetJointValues([]NodeID{a, b}, []float64{0.1, 0.2}, NoNode), test.ShouldBeNil)

	err := m.SetJointValues([]NodeID{a, mustNode(t, m, "la"), b}, []float64{0.7, 0.8, 0.9}, NoNode)
	test.That(t, err, test.ShouldNotBeNil)
	err = m.SetJointValues([]NodeID{a, NodeID(99)}, []float64{0.7, 0.8}, NoNode)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, m.JointValue(a), test.ShouldEqual, 0.1)
	test.That(t, m.JointValue(b), test.ShouldEqual, 0.2)

	pose, err := m.GlobalPose(mustNode(t, m, "lc"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pose.Point().X, test.ShouldAlmostEqual, 1+math.Cos(0.1)+math.Cos(0.3), 1e-9)
}

type recorder struct {
	m     *Model
	mu    sync.Mutex
	names []string
}

func (r *recorder) PoseChanged(modelName, nodeName string, pose spatialmath.Pose) {
	// reading back from the model must not deadlock
	_ = r.m.NumNodes()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, nodeName)
}

func TestPoseNotifications(t *testing.T) {
	m := planarArm(t)
	rec := &recorder{m: m}
	m.AddPoseObserver(rec)

	test.That(t, m.SetJointValue(mustNode(t, m, "j2"), 0.3), test.ShouldBeNil)
	test.That(t, rec.names, test.ShouldResemble, []string{"j2", "link2", "tcp"})

	rec.names = nil
	m.SetUpdateVisualization(false)
	test.That(t, m.SetJointValue(mustNode(t, m, "j1"), 0.3), test.ShouldBeNil)
	test.That(t, rec.names, test.ShouldBeEmpty)
	test.That(t, m.UpdateVisualization(), test.ShouldBeFalse)
}

func TestAttachments(t *testing.T) {
	m := planarArm(t)
	test.That(t, m.Attach("camera", "link2", spatialmath.NewPoseFromPoint(r3.Vector{Z: 1})), test.ShouldBeNil)
	test.That(t, m.Attach("nowhere", "missing", nil), test.ShouldNotBeNil)

	test.That(t, m.SetJointValue(mustNode(t, m, "j1"), math.Pi), test.ShouldBeNil)
	pose, ok := m.AttachmentPose("camera")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, spatialmath.R3VectorAlmostEqual(pose.Point(), r3.Vector{X: -1, Z: 1}, 1e-9), test.ShouldBeTrue)
}

func TestClone(t *testing.T) {
	m := planarArm(t)
	js, err := NewJointSet(m, "arm", []string{"j1", "j2"}, "", "tcp")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.RegisterJointSet(js), test.ShouldBeNil)

	c := m.Clone("arm2", namedChecker("private"))
	test.That(t, c.Name(), test.ShouldEqual, "arm2")
	test.That(t, c.CollisionChecker().Name(), test.ShouldEqual, "private")
	test.That(t, m.CollisionChecker().Name(), test.ShouldEqual, "default")

	test.That(t, c.SetJointValue(mustNode(t, c, "j1"), 1), test.ShouldBeNil)
	test.That(t, m.JointValue(mustNode(t, m, "j1")), test.ShouldEqual, 0.)
	test.That(t, c.Mass(mustNode(t, c, "link1")), test.ShouldEqual, 1.)

	cjs, err := c.JointSet("arm")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cjs.Model(), test.ShouldEqual, c)
	test.That(t, cjs.JointValues(), test.ShouldResemble, []float64{1, 0})
	test.That(t, c.Clone("arm3", nil).CollisionChecker().Name(), test.ShouldEqual, "private")
}

func TestJointSet(t *testing.T) {
	m := planarArm(t)
	js, err := NewJointSet(m, "arm", []string{"j1", "j2"}, "base", "tcp")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, js.Size(), test.ShouldEqual, 2)
	test.That(t, js.IsRotational(0), test.ShouldBeTrue)
	test.That(t, js.NodeNames(), test.ShouldResemble, []string{"j1", "j2"})

	test.That(t, js.SetJointValues([]float64{0.1, 5}), test.ShouldBeNil)
	test.That(t, js.JointValues(), test.ShouldResemble, []float64{0.1, math.Pi})
	test.That(t, js.SetJointValues([]float64{0.1}), test.ShouldNotBeNil)
	test.That(t, js.SetJointValues([]float64{0.2, math.NaN()}), test.ShouldBeError, ErrNonFiniteJointValue)
	test.That(t, js.JointValues(), test.ShouldResemble, []float64{0.1, math.Pi})

	test.That(t, js.CheckJointLimits([]float64{0, 4}), test.ShouldBeFalse)
	test.That(t, js.RespectJointLimits([]float64{0, 4}), test.ShouldResemble, []float64{0, math.Pi})

	_, err = NewJointSet(m, "bad", []string{"link1"}, "", "")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewJointSet(m, "bad", []string{"j1", "j1"}, "", "")
	test.That(t, err, test.ShouldNotBeNil)

	ls, err := NewLinkSetFromModel(m, "links")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ls.NodeNames(), test.ShouldResemble, []string{"link1", "link2"})
	test.That(t, len(ls.Geometries()), test.ShouldEqual, 2)
	test.That(t, ls.CollisionChecker().Name(), test.ShouldEqual, "default")
}

func TestJacobian(t *testing.T) {
	m := planarArm(t)
	js, err := NewJointSet(m, "arm", []string{"j1", "j2"}, "", "tcp")
	test.That(t, err, test.ShouldBeNil)
	tcp := js.TCP()
	q := []float64{0.4, -0.7}
	test.That(t, js.SetJointValues(q), test.ShouldBeNil)
	jac := Jacobian(js, tcp)

	// compare the positional rows against finite differences
	const h = 1e-6
	base, err := m.GlobalPose(tcp)
	test.That(t, err, test.ShouldBeNil)
	for i := range q {
		dq := append([]float64(nil), q...)
		dq[i] += h
		test.That(t, js.SetJointValues(dq), test.ShouldBeNil)
		moved, err := m.GlobalPose(tcp)
		test.That(t, err, test.ShouldBeNil)
		diff := moved.Point().Sub(base.Point()).Mul(1 / h)
		test.That(t, jac.At(0, i), test.ShouldAlmostEqual, diff.X, 1e-4)
		test.That(t, jac.At(1, i), test.ShouldAlmostEqual, diff.Y, 1e-4)
		test.That(t, jac.At(5, i), test.ShouldAlmostEqual, 1.)
	}

	// the base link does not depend on any joint
	zero := Jacobian(js, mustNode(t, m, "base"))
	test.That(t, mat.Norm(zero, 2), test.ShouldEqual, 0.)
}

func TestCenterOfMassJacobian(t *testing.T) {
	m := planarArm(t)
	js, err := NewJointSet(m, "arm", []string{"j1", "j2"}, "", "tcp")
	test.That(t, err, test.ShouldBeNil)
	links := []NodeID{mustNode(t, m, "link1"), mustNode(t, m, "link2")}
	q := []float64{-0.3, 1.1}
	test.That(t, js.SetJointValues(q), test.ShouldBeNil)
	jac := CenterOfMassJacobian(js, links)
	r, c := jac.Dims()
	test.That(t, r, test.ShouldEqual, 3)
	test.That(t, c, test.ShouldEqual, 2)

	const h = 1e-6
	base, total := m.CenterOfMass(links)
	test.That(t, total, test.ShouldEqual, 2.)
	for i := range q {
		dq := append([]float64(nil), q...)
		dq[i] += h
		test.That(t, js.SetJointValues(dq), test.ShouldBeNil)
		moved, _ := m.CenterOfMass(links)
		diff := moved.Sub(base).Mul(1 / h)
		test.That(t, jac.At(0, i), test.ShouldAlmostEqual, diff.X, 1e-4)
		test.That(t, jac.At(1, i), test.ShouldAlmostEqual, diff.Y, 1e-4)
		test.That(t, jac.At(2, i), test.ShouldAlmostEqual, 0.)
	}

	massless := CenterOfMassJacobian(js, []NodeID{mustNode(t, m, "base")})
	test.That(t, mat.Norm(massless, 2), test.ShouldEqual, 0.)
}

func TestConcurrentAccess(t *testing.T) {
	m := planarArm(t)
	j1 := mustNode(t, m, "j1")
	tcp := mustNode(t, m, "tcp")
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = m.SetJointValue(j1, float64(w*i)*0.001)
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				pose, err := m.GlobalPose(tcp)
				if err != nil || math.Abs(pose.Point().Norm()-2) > 1e-9 {
					t.Errorf("inconsistent tcp pose %v %v", pose, err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
