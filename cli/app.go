// Package cli contains the flexblock command line: validate a config, simulate a shape offline or
// run the sculpture.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	generalFlagConfig    = "config"
	generalFlagDebug     = "debug"
	generalFlagLogFile   = "log-file"
	simulateFlagShape    = "shape"
	simulateFlagSteps    = "steps"
	simulateFlagDrive    = "drive"
	simulateFlagSlack    = "slack"
	simulateFlagRealtime = "realtime"
	runFlagDuration      = "duration"

	defaultSimulateSteps = 2000
)

// NewApp returns a new app with the flexblock commands, Writer set to out, and ErrWriter set to
// errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "flexblock",
		Usage:           "drive a cable actuated kinetic sculpture",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		// Errors are returned from Run; only main decides to exit.
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    generalFlagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  generalFlagLogFile,
				Usage: "also write logs to a rotating `FILE`",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "check a config file and print what it resolves to",
				UsageText: "flexblock validate --config <path>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     generalFlagConfig,
						Aliases:  []string{"c"},
						Required: true,
						Usage:    "load configuration from `FILE`",
					},
				},
				Action: ValidateAction,
			},
			{
				Name:      "simulate",
				Usage:     "relax a shape offline and print the resulting rope lengths",
				UsageText: "flexblock simulate [--shape <path>] [--steps <n>] [--drive <rope>=<value>...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    generalFlagConfig,
						Aliases: []string{"c"},
						Usage:   "take the shape and loop settings from `FILE`",
					},
					&cli.StringFlag{
						Name:  simulateFlagShape,
						Usage: "shape descriptor `FILE` (.json or .yaml), overriding the config",
					},
					&cli.IntFlag{
						Name:  simulateFlagSteps,
						Value: defaultSimulateSteps,
						Usage: "number of relaxation steps",
					},
					&cli.StringSliceFlag{
						Name:  simulateFlagDrive,
						Usage: "drive value for a rope as `ROPE=VALUE`, may be repeated",
					},
					&cli.Float64Flag{
						Name:  simulateFlagSlack,
						Usage: "rope slack in meters",
					},
					&cli.DurationFlag{
						Name:  simulateFlagRealtime,
						Usage: "also run the control loop without motors for this long and print its timing",
					},
				},
				Action: SimulateAction,
			},
			{
				Name:      "run",
				Usage:     "run the control loop and the motor interface until interrupted",
				UsageText: "flexblock run --config <path> [--duration <d>]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     generalFlagConfig,
						Aliases:  []string{"c"},
						Required: true,
						Usage:    "load configuration from `FILE`",
					},
					&cli.DurationFlag{
						Name:  runFlagDuration,
						Usage: "stop after this long instead of waiting for a signal",
					},
				},
				Action: RunAction,
			},
		},
	}
}
