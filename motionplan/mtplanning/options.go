package mtplanning

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/motionkit/model"
)

// Options configures a Scenery.
type Options struct {
	NumProblems int `json:"num_problems"`
	// MultiCheckers gives every problem its own checker and environment clone. Otherwise one checker is shared
	// and every query holds its lock.
	MultiCheckers bool `json:"multi_checkers"`
	// RobotPairs lists pairs of robot link set names checked against each other.
	RobotPairs [][2]string `json:"robot_pairs,omitempty"`

	JointSet string `json:"joint_set"`
	LinkSet  string `json:"link_set"`

	SamplingSize    float64 `json:"sampling_size"`
	DCDSamplingSize float64 `json:"dcd_sampling_size"`
	MaxCycles       int     `json:"max_cycles"`
	ShortenLoops    int     `json:"shorten_loops"`
	Seed            int64   `json:"seed"`

	Obstacles    int     `json:"obstacles"`
	ObstacleSize float64 `json:"obstacle_size"`
	Playfield    float64 `json:"playfield"`
	// FaceEndpoints samples starts and goals of three joint robots on the faces of the playfield.
	FaceEndpoints bool `json:"face_endpoints"`

	Start []float64 `json:"start,omitempty"`
	Goal  []float64 `json:"goal,omitempty"`

	PollInterval time.Duration `json:"poll_interval"`
}

// NewDefaultOptions returns the reference scenery: 2000 cubes of size 50 in a playfield of 1000.
func NewDefaultOptions() *Options {
	return &Options{
		NumProblems:     4,
		MultiCheckers:   true,
		JointSet:        model.CartesianJointSet,
		LinkSet:         model.CartesianLinkSet,
		SamplingSize:    20,
		DCDSamplingSize: 1,
		MaxCycles:       100000,
		ShortenLoops:    600,
		Seed:            1,
		Obstacles:       2000,
		ObstacleSize:    50,
		Playfield:       1000,
		FaceEndpoints:   true,
		PollInterval:    50 * time.Millisecond,
	}
}

// Validate reports every invalid field.
func (o *Options) Validate() error {
	var err error
	if o.NumProblems < 0 {
		err = multierr.Append(err, errors.Errorf("num_problems must not be negative, got %d", o.NumProblems))
	}
	if o.JointSet == "" {
		err = multierr.Append(err, errors.New("joint_set is required"))
	}
	if o.LinkSet == "" {
		err = multierr.Append(err, errors.New("link_set is required"))
	}
	if !(o.SamplingSize > 0) {
		err = multierr.Append(err, errors.Errorf("sampling_size must be positive, got %v", o.SamplingSize))
	}
	if !(o.DCDSamplingSize > 0) {
		err = multierr.Append(err, errors.Errorf("dcd_sampling_size must be positive, got %v", o.DCDSamplingSize))
	}
	if o.MaxCycles <= 0 {
		err = multierr.Append(err, errors.Errorf("max_cycles must be positive, got %d", o.MaxCycles))
	}
	if o.ShortenLoops < 0 {
		err = multierr.Append(err, errors.Errorf("shorten_loops must not be negative, got %d", o.ShortenLoops))
	}
	if o.Obstacles < 0 {
		err = multierr.Append(err, errors.Errorf("obstacles must not be negative, got %d", o.Obstacles))
	}
	if o.Obstacles > 0 && !(o.ObstacleSize > 0 && o.ObstacleSize < o.Playfield) {
		err = multierr.Append(err, errors.Errorf("obstacle_size %v does not fit playfield %v", o.ObstacleSize, o.Playfield))
	}
	if o.FaceEndpoints && !(o.Playfield >= 1) {
		err = multierr.Append(err, errors.Errorf("playfield must be at least 1, got %v", o.Playfield))
	}
	if o.PollInterval <= 0 {
		err = multierr.Append(err, errors.Errorf("poll_interval must be positive, got %v", o.PollInterval))
	}
	for _, pair := range o.RobotPairs {
		if pair[0] == "" || pair[1] == "" {
			err = multierr.Append(err, errors.Errorf("robot pair %v names an empty link set", pair))
		}
	}
	return err
}
