package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/multierr"
	"go.viam.com/test"

	"go.viam.com/motionkit/collision"
	"go.viam.com/motionkit/logging"
	"go.viam.com/motionkit/model"
)

const yamlConfig = `
robot:
  name: mover
  cube_size: 5
planning:
  num_problems: 2
  multi_checkers: false
  sampling_size: 4
  poll_interval: 10ms
  robot_pairs:
    - [left, right]
environment:
  obstacles: ${MK_OBSTACLES}
  obstacle_size: 10
  playfield: 200
  face_endpoints: false
ik:
  timeout: 1s
  max_attempts: 5
output:
  dir: out
  plot_path: true
timeout: 2m
colour: blue
`

const jsonConfig = `{
	"robot": {"name": "json", "cube_size": 2},
	"planning": {"max_cycles": 500, "poll_interval": "20ms"},
	"environment": {"obstacles": 3, "obstacle_size": 1, "playfield": 10},
	"ik": {"global_tolerance": 0.001}
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	test.That(t, os.WriteFile(path, []byte(content), 0o600), test.ShouldBeNil)
	return path
}

func TestReadYAML(t *testing.T) {
	t.Setenv("MK_OBSTACLES", "17")
	logger, logs := logging.NewObservedTestLogger(t)
	path := writeFile(t, "run.yaml", yamlConfig)

	cfg, err := Read(context.Background(), path, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, path)
	test.That(t, cfg.Robot.Name, test.ShouldEqual, "mover")
	test.That(t, cfg.Robot.CubeSize, test.ShouldEqual, 5.)
	test.That(t, cfg.Robot.JointSet, test.ShouldEqual, model.CartesianJointSet)
	test.That(t, cfg.Planning.NumProblems, test.ShouldEqual, 2)
	test.That(t, cfg.Planning.MultiCheckers, test.ShouldBeFalse)
	test.That(t, cfg.Planning.PollInterval, test.ShouldEqual, 10*time.Millisecond)
	test.That(t, cfg.Planning.RobotPairs, test.ShouldResemble, [][2]string{{"left", "right"}})
	// untouched planning fields keep their defaults
	test.That(t, cfg.Planning.MaxCycles, test.ShouldEqual, 100000)
	test.That(t, cfg.Environment.Obstacles, test.ShouldEqual, 17)
	test.That(t, cfg.IK.Timeout, test.ShouldEqual, time.Second)
	test.That(t, cfg.IK.MaxAttempts, test.ShouldEqual, 5)
	test.That(t, cfg.Output.PlotPath, test.ShouldBeTrue)
	test.That(t, cfg.Timeout, test.ShouldEqual, 2*time.Minute)
	test.That(t, logs.FilterMessage("unused config key").Len(), test.ShouldEqual, 1)

	opts := cfg.SceneryOptions()
	test.That(t, opts.Obstacles, test.ShouldEqual, 17)
	test.That(t, opts.Playfield, test.ShouldEqual, 200.)
	test.That(t, opts.FaceEndpoints, test.ShouldBeFalse)
	test.That(t, cfg.Planning.Obstacles, test.ShouldEqual, 2000)
}

func TestReadJSON(t *testing.T) {
	path := writeFile(t, "run.json", jsonConfig)
	cfg, err := Read(context.Background(), path, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Robot.Name, test.ShouldEqual, "json")
	test.That(t, cfg.Planning.MaxCycles, test.ShouldEqual, 500)
	test.That(t, cfg.Planning.PollInterval, test.ShouldEqual, 20*time.Millisecond)
	test.That(t, cfg.IK.GlobalTolerance, test.ShouldEqual, 0.001)
	test.That(t, cfg.SceneryOptions().ObstacleSize, test.ShouldEqual, 1.)
}

func TestReadErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ctx := context.Background()

	_, err := Read(ctx, filepath.Join(t.TempDir(), "missing.json"), logger)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = Read(ctx, writeFile(t, "bad.json", "{"), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "json")

	_, err = Read(ctx, writeFile(t, "bad.yml", "robot: [unclosed"), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "yaml")

	_, err = Read(ctx, writeFile(t, "pair.yaml", "planning:\n  robot_pairs:\n    - [a, b, c]\n"), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "exactly two")

	_, err = Read(ctx, writeFile(t, "invalid.yaml", "planning:\n  sampling_size: -1\n"), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "sampling_size")
}

func TestValidate(t *testing.T) {
	test.That(t, NewDefault().Validate(), test.ShouldBeNil)

	cfg := NewDefault()
	cfg.Robot.Name = ""
	cfg.Robot.JointSet = ""
	cfg.Planning.NumProblems = -1
	cfg.IK.MaxAttempts = 0
	cfg.Output.MaxTreeNodes = -1
	cfg.Timeout = -time.Second
	err := cfg.Validate()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, multierr.Errors(err), test.ShouldHaveLength, 6)

	cfg = NewDefault()
	cfg.Robot = nil
	cfg.IK = nil
	test.That(t, multierr.Errors(cfg.Validate()), test.ShouldHaveLength, 2)
}

func TestOutputExportDir(t *testing.T) {
	out := NewDefault().Output
	dir, err := out.ExportDir("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dir, test.ShouldBeEmpty)

	// a tree without a directory passes validation, the directory may still come from a flag
	out.RenderTree = true
	test.That(t, out.Validate("output"), test.ShouldBeNil)
	_, err = out.ExportDir("")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "dir")
	dir, err = out.ExportDir("flag")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dir, test.ShouldEqual, "flag")

	out.Dir = "configured"
	dir, err = out.ExportDir("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dir, test.ShouldEqual, "configured")
	dir, err = out.ExportDir("flag")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dir, test.ShouldEqual, "flag")
}

func TestRobotBuild(t *testing.T) {
	logger := logging.NewTestLogger(t)
	checker := collision.NewGeometryChecker("default", 0, logger)
	cfg := NewDefault()

	m, err := cfg.Robot.Build(100, checker)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.Name(), test.ShouldEqual, "robot")
	js, err := m.JointSet(cfg.Robot.JointSet)
	test.That(t, err, test.ShouldBeNil)
	lower, upper := js.Limits()
	test.That(t, lower, test.ShouldResemble, []float64{-100, -100, -100})
	test.That(t, upper, test.ShouldResemble, []float64{100, 100, 100})

	_, err = cfg.Robot.Build(0, checker)
	test.That(t, err, test.ShouldNotBeNil)

	cfg.Robot.ModelFile = filepath.Join(t.TempDir(), "missing.json")
	_, err = cfg.Robot.Build(100, checker)
	test.That(t, err, test.ShouldNotBeNil)
}
