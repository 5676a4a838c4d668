// Package config defines the file format driving the planning and IK commands.
package config

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/motionkit/ik"
	"go.viam.com/motionkit/model"
	"go.viam.com/motionkit/motionplan/mtplanning"
)

// Config is the whole configuration of a run.
type Config struct {
	ConfigFilePath string `json:"-"`

	Robot       *Robot              `json:"robot"`
	Planning    *mtplanning.Options `json:"planning"`
	Environment *Environment        `json:"environment"`
	IK          *ik.Options         `json:"ik"`
	Output      *Output             `json:"output"`
	// Timeout bounds a whole run. Zero means no limit.
	Timeout time.Duration `json:"timeout"`
}

// Robot selects the model to plan for. Without a model file a cartesian robot carrying a cube is used.
type Robot struct {
	Name      string  `json:"name"`
	ModelFile string  `json:"model_file"`
	JointSet  string  `json:"joint_set"`
	LinkSet   string  `json:"link_set"`
	TCP       string  `json:"tcp"`
	CubeSize  float64 `json:"cube_size"`
}

// Environment describes the random obstacle field. It overrides the matching planning fields.
type Environment struct {
	Obstacles     int     `json:"obstacles"`
	ObstacleSize  float64 `json:"obstacle_size"`
	Playfield     float64 `json:"playfield"`
	FaceEndpoints bool    `json:"face_endpoints"`
}

// Output says where results go.
type Output struct {
	Dir          string `json:"dir"`
	RenderTree   bool   `json:"render_tree"`
	PlotPath     bool   `json:"plot_path"`
	MaxTreeNodes int    `json:"max_tree_nodes"`
}

// NewDefault returns the reference configuration.
func NewDefault() *Config {
	planning := mtplanning.NewDefaultOptions()
	return &Config{
		Robot: &Robot{
			Name:     "robot",
			JointSet: model.CartesianJointSet,
			LinkSet:  model.CartesianLinkSet,
			TCP:      model.CartesianTCP,
			CubeSize: 20,
		},
		Planning: planning,
		Environment: &Environment{
			Obstacles:     planning.Obstacles,
			ObstacleSize:  planning.ObstacleSize,
			Playfield:     planning.Playfield,
			FaceEndpoints: planning.FaceEndpoints,
		},
		IK:     ik.NewDefaultOptions(),
		Output: &Output{},
	}
}

// SceneryOptions returns the planning options with the robot and environment sections applied.
func (c *Config) SceneryOptions() *mtplanning.Options {
	opts := *c.Planning
	if c.Robot.JointSet != "" {
		opts.JointSet = c.Robot.JointSet
	}
	if c.Robot.LinkSet != "" {
		opts.LinkSet = c.Robot.LinkSet
	}
	if c.Environment != nil {
		opts.Obstacles = c.Environment.Obstacles
		opts.ObstacleSize = c.Environment.ObstacleSize
		opts.Playfield = c.Environment.Playfield
		opts.FaceEndpoints = c.Environment.FaceEndpoints
	}
	return &opts
}

// Validate reports every invalid field. Sections are validated independently so a single pass lists all
// problems.
func (c *Config) Validate() error {
	var err error
	if c.Robot == nil {
		err = multierr.Append(err, goutils.NewConfigValidationFieldRequiredError("", "robot"))
	} else {
		err = multierr.Append(err, c.Robot.Validate("robot"))
	}
	if c.Planning == nil {
		err = multierr.Append(err, goutils.NewConfigValidationFieldRequiredError("", "planning"))
	} else if c.Robot != nil {
		if perr := c.SceneryOptions().Validate(); perr != nil {
			err = multierr.Append(err, goutils.NewConfigValidationError("planning", perr))
		}
	}
	if c.IK == nil {
		err = multierr.Append(err, goutils.NewConfigValidationFieldRequiredError("", "ik"))
	} else if ierr := c.IK.Validate(); ierr != nil {
		err = multierr.Append(err, goutils.NewConfigValidationError("ik", ierr))
	}
	if c.Output != nil {
		err = multierr.Append(err, c.Output.Validate("output"))
	}
	if c.Timeout < 0 {
		err = multierr.Append(err, errors.Errorf("timeout must not be negative, got %v", c.Timeout))
	}
	return err
}

// Validate ensures all parts of the robot section are valid.
func (r *Robot) Validate(path string) error {
	var err error
	if r.Name == "" {
		err = multierr.Append(err, goutils.NewConfigValidationFieldRequiredError(path, "name"))
	}
	if r.JointSet == "" {
		err = multierr.Append(err, goutils.NewConfigValidationFieldRequiredError(path, "joint_set"))
	}
	if r.LinkSet == "" {
		err = multierr.Append(err, goutils.NewConfigValidationFieldRequiredError(path, "link_set"))
	}
	if r.ModelFile == "" && !(r.CubeSize > 0) {
		err = multierr.Append(err, goutils.NewConfigValidationError(path,
			errors.Errorf("cube_size must be positive without a model_file, got %v", r.CubeSize)))
	}
	return err
}

// Validate ensures all parts of the output section are valid. The directory is checked by ExportDir once a
// command line override is known.
func (o *Output) Validate(path string) error {
	if o.MaxTreeNodes < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("max_tree_nodes must not be negative, got %d", o.MaxTreeNodes))
	}
	return nil
}

// ExportDir returns the directory files are written to, override taking precedence over dir. An empty result
// means nothing is exported; requesting a tree or a plot without any directory is an error.
func (o *Output) ExportDir(override string) (string, error) {
	if o == nil {
		return override, nil
	}
	dir := o.Dir
	if override != "" {
		dir = override
	}
	if dir == "" && (o.RenderTree || o.PlotPath) {
		return "", goutils.NewConfigValidationFieldRequiredError("output", "dir")
	}
	return dir, nil
}
