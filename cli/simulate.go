package cli

import (
	"fmt"
	"math"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	goutils "go.viam.com/utils"

	"go.viam.com/flexblock/config"
	"go.viam.com/flexblock/control"
	"go.viam.com/flexblock/flex"
	"go.viam.com/flexblock/shape"
)

// SimulateAction relaxes a shape for a number of steps without any motors and prints the rope
// lengths and motor steps the loop would command.
func SimulateAction(c *cli.Context) error {
	cfg, err := simulationConfig(c)
	if err != nil {
		return err
	}
	topo, err := flex.NewTopology(cfg.Shape)
	if err != nil {
		return err
	}
	steps := c.Int(simulateFlagSteps)
	if steps <= 0 {
		return errors.Errorf("--%s must be positive, got %d", simulateFlagSteps, steps)
	}
	drive, err := parseDrive(c.StringSlice(simulateFlagDrive), topo.Motors)
	if err != nil {
		return err
	}
	in := flex.NewInput(topo.Motors)
	in.Drive = drive
	in.Slack = c.Float64(simulateFlagSlack)

	engine := flex.NewEngine(topo, cfg.Loop.Frequency)
	rest := control.ComposeRopeLengths(engine.RopeLengths(), in, cfg.Loop, 0)
	if err := engine.SetMotorDrive(in.Drive); err != nil {
		return err
	}
	var peakSpeed, peakAccel float64
	for i := 0; i < steps; i++ {
		engine.Relax()
		peakSpeed = math.Max(peakSpeed, engine.MotorSpeed())
		peakAccel = math.Max(peakAccel, math.Abs(engine.MotorAcceleration()))
	}
	lengths := control.ComposeRopeLengths(engine.RopeLengths(), in, cfg.Loop, 0)

	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("%s after %d steps (%.3fs)", topo.Name, steps, float64(steps)/cfg.Loop.Frequency))
	t.AppendHeader(table.Row{"Rope", "Drive", "Rest (m)", "Length (m)", "Change (mm)", "Steps"})
	for i, length := range lengths {
		t.AppendRow(table.Row{
			i,
			fmt.Sprintf("%.2f", in.Drive[i]),
			fmt.Sprintf("%.4f", rest[i]),
			fmt.Sprintf("%.4f", length),
			fmt.Sprintf("%+.1f", (length-rest[i])*1000),
			fmt.Sprintf("%.0f", cfg.Loop.MetersToSteps(length)),
		})
	}
	t.AppendFooter(table.Row{
		"", "",
		"peak speed", fmt.Sprintf("%.4f m/s", peakSpeed),
		"displacement", fmt.Sprintf("%.2e m", engine.MaxDisplacement()),
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	printf(c.App.Writer, "%s", t.Render())
	printf(c.App.Writer, "peak acceleration %.4f m/s^2", peakAccel)

	if d := c.Duration(simulateFlagRealtime); d > 0 {
		return simulateRealtime(c, cfg, topo, in)
	}
	return nil
}

// simulationConfig returns the config named by --config or the defaults, with the shape replaced
// by --shape if given.
func simulationConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	if path := c.String(generalFlagConfig); path != "" {
		var err error
		if cfg, err = config.Read(path); err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
		if err := cfg.Ensure(); err != nil {
			return nil, err
		}
	}
	if path := c.String(simulateFlagShape); path != "" {
		desc, err := shape.Load(path)
		if err != nil {
			return nil, err
		}
		if err := desc.Validate("shape"); err != nil {
			return nil, err
		}
		cfg.Shape = desc
		// A mapping written for another shape does not apply.
		cfg.Loop.MotorMapping = nil
	}
	return cfg, nil
}

// simulateRealtime runs the control loop without motors for the --realtime duration and prints
// how well it kept its rate.
func simulateRealtime(c *cli.Context, cfg *config.Config, topo *flex.Topology, in flex.Input) error {
	logger, closer := newLogger(c, &cfg.Log)
	defer func() {
		if err := closer.Close(); err != nil {
			warningf(c.App.ErrWriter, "cannot close log files: %v", err)
		}
	}()

	loop, err := control.NewLoop(logger.Sublogger("loop"), cfg.Loop, flex.NewEngine(topo, cfg.Loop.Frequency), nil, nil)
	if err != nil {
		return err
	}
	if err := loop.SetInput(in); err != nil {
		return err
	}
	loop.Start()
	goutils.SelectContextOrWait(c.Context, c.Duration(simulateFlagRealtime))
	loop.Stop()

	stats, err := loop.Stats()
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", statsTable(cfg.Loop.Frequency, stats))
	return nil
}
