package main

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/motionkit/collision"
	"go.viam.com/motionkit/ik"
)

func ikAction(c *cli.Context) error {
	logger := loggerFrom(c)
	cfg, err := loadConfig(c, logger)
	if err != nil {
		return err
	}
	target := c.Float64Slice(flagTarget)
	if len(target) != 3 {
		return errors.Errorf("--%s needs three values, got %d", flagTarget, len(target))
	}
	ctx, cancel := runContext(c, cfg)
	defer cancel()

	checker := collision.NewGeometryChecker("default", 0, logger.Sublogger("checker"))
	robot, err := cfg.Robot.Build(cfg.SceneryOptions().Playfield, checker)
	if err != nil {
		return err
	}
	js, err := robot.JointSet(cfg.Robot.JointSet)
	if err != nil {
		return err
	}
	tcp := js.TCP()
	if cfg.Robot.TCP != "" {
		id, ok := robot.Node(cfg.Robot.TCP)
		if !ok {
			return errors.Errorf("tcp %q not found in model %q", cfg.Robot.TCP, robot.Name())
		}
		tcp = id
	}

	solver, err := ik.NewConstrainedOptimizationIK(js, cfg.IK, logger.Sublogger("ik"))
	if err != nil {
		return err
	}
	pos, err := ik.NewPositionConstraint(js, tcp, r3.Vector{X: target[0], Y: target[1], Z: target[2]}, ik.SelectAll)
	if err != nil {
		return err
	}
	pos.SetTolerance(c.Float64(flagTolerance))
	avoid, err := ik.NewJointLimitAvoidanceConstraint(js)
	if err != nil {
		return err
	}
	avoid.SetOptimizationFunctionFactor(1e-3)
	for _, constraint := range []ik.Constraint{pos, avoid} {
		if err := solver.AddConstraint(constraint); err != nil {
			return err
		}
	}
	if err := solver.Initialize(); err != nil {
		return err
	}
	solved, err := solver.Solve(ctx)
	if err != nil {
		return err
	}

	p := newPrinter(c)
	p.attempts(solver.Attempts())
	p.joints(js.NodeNames(), js.JointValues())
	if !solved {
		p.failure("no solution within tolerance, best error %.6g", solver.BestError())
		return errors.New("inverse kinematics failed")
	}
	p.success("solved, error %.6g", solver.BestError())
	return nil
}
