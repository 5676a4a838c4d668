package main

import (
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/motionkit/collision"
	"go.viam.com/motionkit/motionplan/mtplanning"
	"go.viam.com/motionkit/viz"
)

func planAction(c *cli.Context) error {
	logger := loggerFrom(c)
	cfg, err := loadConfig(c, logger)
	if err != nil {
		return err
	}
	ctx, cancel := runContext(c, cfg)
	defer cancel()

	opts := cfg.SceneryOptions()
	if c.IsSet(flagProblems) {
		opts.NumProblems = c.Int(flagProblems)
	}
	if c.IsSet(flagObstacles) {
		opts.Obstacles = c.Int(flagObstacles)
	}
	if c.IsSet(flagSeed) {
		opts.Seed = c.Int64(flagSeed)
	}
	outDir, err := cfg.Output.ExportDir(c.String(flagOutput))
	if err != nil {
		return err
	}

	checker := collision.NewGeometryChecker("default", 0, logger.Sublogger("checker"))
	robot, err := cfg.Robot.Build(opts.Playfield, checker)
	if err != nil {
		return err
	}
	params := mtplanning.Params{Robot: robot, Checker: checker, Logger: logger.Sublogger("scenery")}
	var exporter *viz.FileExporter
	if outDir != "" {
		if exporter, err = viz.NewFileExporter(outDir, cfg.Output.RenderTree, logger.Sublogger("export")); err != nil {
			return err
		}
		exporter.MaxNodes = cfg.Output.MaxTreeNodes
		if js, err := robot.JointSet(opts.JointSet); err == nil {
			exporter.JointNames = js.NodeNames()
		}
		params.Exporter = exporter
	}

	scenery, err := mtplanning.NewScenery(opts, params)
	if err != nil {
		return err
	}
	defer scenery.Reset()
	if err := scenery.BuildProblems(); err != nil {
		return err
	}

	began := scenery.Now()
	if err := scenery.StartPlanning(ctx); err != nil {
		return err
	}
	if err := scenery.WaitForPlanning(ctx); err != nil {
		scenery.StopPlanning()
		return errors.Wrap(err, "planning did not finish")
	}
	logger.Infof("planning took %v", scenery.Elapsed(began))

	if !c.Bool(flagNoOptimize) {
		began = scenery.Now()
		if err := scenery.StartOptimizing(ctx); err != nil {
			return err
		}
		if err := scenery.WaitForOptimizing(ctx); err != nil {
			scenery.StopOptimizing()
			return errors.Wrap(err, "path shortening did not finish")
		}
		logger.Infof("path shortening took %v", scenery.Elapsed(began))
	}

	results := scenery.Results()
	summary, err := mtplanning.Summarize(results)
	if err != nil {
		return err
	}
	p := newPrinter(c)
	p.results(results)
	p.summary(summary)
	if exporter != nil {
		p.linef("wrote %d files to %s", len(exporter.Written()), outDir)
	}
	return nil
}
