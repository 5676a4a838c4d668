package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"

	"go.viam.com/motionkit/logging"
)

const planConfig = `
robot:
  cube_size: 5
planning:
  num_problems: 2
  sampling_size: 10
  dcd_sampling_size: 2
  max_cycles: 20000
  shorten_loops: 50
  poll_interval: 5ms
environment:
  obstacles: 10
  obstacle_size: 10
  playfield: 100
  face_endpoints: true
output:
  render_tree: true
timeout: 2m
`

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp(logging.NewTestLogger(t))
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"mtplan", "--no-color"}, args...))
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mtplan.yaml")
	test.That(t, os.WriteFile(path, []byte(content), 0o600), test.ShouldBeNil)
	return path
}

func TestPlanCommand(t *testing.T) {
	cfg := writeConfig(t, planConfig)
	dir := filepath.Join(t.TempDir(), "out")

	out, err := runApp(t, "-c", cfg, "plan", "--output", dir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "Solved 2 of 2")
	test.That(t, out, test.ShouldContainSubstring, "SHORTENED")
	test.That(t, out, test.ShouldContainSubstring, "wrote 6 files")

	for _, name := range []string{"solution-orig-0.png", "solution-orig-1_tree.svg", "solution-optimized-1.png"} {
		_, err := os.Stat(filepath.Join(dir, name))
		test.That(t, err, test.ShouldBeNil)
	}
}

func TestPlanCommandNoOptimize(t *testing.T) {
	cfg := strings.Replace(planConfig, "render_tree: true", "render_tree: false", 1)
	out, err := runApp(t, "-c", writeConfig(t, cfg), "plan", "--problems", "1", "--no-optimize")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "Solved 1 of 1")
	test.That(t, out, test.ShouldNotContainSubstring, "mean shortened length")
	test.That(t, out, test.ShouldNotContainSubstring, "wrote")
}

func TestCommandErrors(t *testing.T) {
	_, err := runApp(t, "-c", filepath.Join(t.TempDir(), "missing.yaml"), "plan")
	test.That(t, err, test.ShouldNotBeNil)

	_, err = runApp(t, "-c", writeConfig(t, "planning:\n  max_cycles: 0\n"), "plan")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "max_cycles")

	// a tree was requested but neither the config nor the flag names a directory
	_, err = runApp(t, "-c", writeConfig(t, planConfig), "plan", "--problems", "1")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "dir")

	_, err = runApp(t, "ik", "--target", "1,2")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "three values")

	_, err = runApp(t, "-c", writeConfig(t, "robot:\n  tcp: nowhere\n"), "ik", "--target", "1,2,3")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "nowhere")
}
