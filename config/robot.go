package config

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/motionkit/model"
	"go.viam.com/motionkit/spatialmath"
)

// Build loads the robot model. A model file is parsed as a JSON model, otherwise a cartesian robot limited to
// the playfield is built.
func (r *Robot) Build(playfield float64, checker model.CollisionContext) (*model.Model, error) {
	if r.ModelFile != "" {
		m, err := model.ParseModelJSONFile(r.ModelFile, r.Name, checker)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load robot model %q", r.ModelFile)
		}
		return m, nil
	}
	cube, err := spatialmath.NewBox(spatialmath.NewZeroPose(), r3.Vector{X: r.CubeSize, Y: r.CubeSize, Z: r.CubeSize}, r.Name)
	if err != nil {
		return nil, err
	}
	return model.NewCartesianRobot(r.Name, checker, playfield, cube)
}
