// Package mtplanning runs many independent planning problems on their own goroutines against a shared random
// obstacle field.
package mtplanning

import (
	"fmt"
	"math/rand"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/motionkit/model"
	"go.viam.com/motionkit/spatialmath"
)

// EnvironmentLinkSet is the name of the link set holding every obstacle of the environment model.
const EnvironmentLinkSet = "obstacles"

// NewRandomEnvironment builds a static model holding count cubes of edge size placed at integer positions inside
// [-(playfield-size), playfield-size) on every axis.
func NewRandomEnvironment(
	name string,
	count int,
	size, playfield float64,
	r *rand.Rand,
	checker model.CollisionContext,
) (*model.Model, error) {
	if count < 0 {
		return nil, errors.Errorf("obstacle count must not be negative, got %d", count)
	}
	extent := int(playfield - size)
	if count > 0 && (size <= 0 || extent <= 0) {
		return nil, errors.Errorf("obstacles of size %v do not fit a playfield of %v", size, playfield)
	}
	env := model.NewModel(name, checker)
	if _, err := env.AddLink(model.LinkConfig{Name: "ground"}); err != nil {
		return nil, err
	}
	names := make([]string, 0, count)
	for i := 0; i < count; i++ {
		p := r3.Vector{
			X: float64(r.Intn(2*extent) - extent),
			Y: float64(r.Intn(2*extent) - extent),
			Z: float64(r.Intn(2*extent) - extent),
		}
		linkName := fmt.Sprintf("obstacle-%d", i)
		cube, err := spatialmath.NewBox(spatialmath.NewZeroPose(), r3.Vector{X: size, Y: size, Z: size}, linkName)
		if err != nil {
			return nil, err
		}
		if _, err := env.AddLink(model.LinkConfig{
			Name:      linkName,
			Parent:    "ground",
			Transform: spatialmath.NewPoseFromPoint(p),
			Geometry:  cube,
		}); err != nil {
			return nil, err
		}
		names = append(names, linkName)
	}
	if len(names) == 0 {
		return env, nil
	}
	set, err := model.NewLinkSet(env, EnvironmentLinkSet, names, "", "")
	if err != nil {
		return nil, err
	}
	return env, env.RegisterLinkSet(set)
}

// randomFacePosition picks a point on the surface of the playfield cube: one coordinate sits on a face and the
// others are random integers inside the playfield.
func randomFacePosition(r *rand.Rand, playfield float64) r3.Vector {
	pf := int(playfield)
	x := playfield
	if r.Intn(2) == 0 {
		x = -playfield
	}
	y := float64(r.Intn(2*pf) - pf)
	z := float64(r.Intn(2*pf) - pf)
	switch r.Intn(3) {
	case 0:
		x, y = y, x
	case 1:
		x, z = z, x
	}
	return r3.Vector{X: x, Y: y, Z: z}
}
