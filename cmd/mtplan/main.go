// Package main is the mtplan command: multi-threaded motion planning and IK from a config file.
package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v2"

	"go.viam.com/motionkit/config"
	"go.viam.com/motionkit/logging"
)

const (
	flagConfig     = "config"
	flagDebug      = "debug"
	flagProblems   = "problems"
	flagObstacles  = "obstacles"
	flagSeed       = "seed"
	flagNoOptimize = "no-optimize"
	flagOutput     = "output"
	flagTarget     = "target"
	flagTolerance  = "tolerance"
	flagNoColor    = "no-color"
)

const metadataLogger = "logger"

func main() {
	if err := newApp(nil).Run(os.Args); err != nil {
		logging.Global().Error(err)
		os.Exit(1)
	}
}

// newApp builds the command line application. A nil logger is created from the flags.
func newApp(logger logging.Logger) *cli.App {
	return &cli.App{
		Name:  "mtplan",
		Usage: "plan collision free motions and solve inverse kinematics",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE` (JSON or YAML)",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
			&cli.BoolFlag{
				Name:  flagNoColor,
				Usage: "disable colored output",
			},
		},
		Before: func(c *cli.Context) error {
			if logger == nil {
				logger = logging.NewLogger("mtplan")
				if c.Bool(flagDebug) {
					logger = logging.NewDebugLogger("mtplan")
				}
				logging.ReplaceGlobal(logger)
			}
			if c.App.Metadata == nil {
				c.App.Metadata = map[string]interface{}{}
			}
			c.App.Metadata[metadataLogger] = logger
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "plan",
				Usage: "plan paths for several robots in a random obstacle field, then shorten them",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: flagProblems, Usage: "override the number of planning problems"},
					&cli.IntFlag{Name: flagObstacles, Usage: "override the number of obstacles"},
					&cli.Int64Flag{Name: flagSeed, Usage: "override the random seed"},
					&cli.BoolFlag{Name: flagNoOptimize, Usage: "skip path shortening"},
					&cli.StringFlag{Name: flagOutput, Usage: "write plots and trees to `DIR`"},
				},
				Action: planAction,
			},
			{
				Name:  "ik",
				Usage: "move the robot tcp to a position",
				Flags: []cli.Flag{
					&cli.Float64SliceFlag{Name: flagTarget, Required: true, Usage: "target position as x,y,z"},
					&cli.Float64Flag{Name: flagTolerance, Value: 1e-3, Usage: "allowed distance to the target"},
				},
				Action: ikAction,
			},
		},
	}
}

func loggerFrom(c *cli.Context) logging.Logger {
	if logger, ok := c.App.Metadata[metadataLogger].(logging.Logger); ok {
		return logger
	}
	return logging.Global()
}

// loadConfig reads the config named by the global flag, or the defaults without one.
func loadConfig(c *cli.Context, logger logging.Logger) (*config.Config, error) {
	path := c.String(flagConfig)
	if path == "" {
		return config.NewDefault(), nil
	}
	return config.Read(c.Context, path, logger)
}

// runContext applies the configured run timeout.
func runContext(c *cli.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	if cfg.Timeout > 0 {
		return context.WithTimeout(c.Context, cfg.Timeout)
	}
	return context.WithCancel(c.Context)
}
