package cli

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"go.viam.com/flexblock/adapter"
	"go.viam.com/flexblock/config"
	"go.viam.com/flexblock/flex"
)

// ValidateAction reads a config, builds the topology it describes and prints a summary.
func ValidateAction(c *cli.Context) error {
	cfg, err := config.Read(c.String(generalFlagConfig))
	if err != nil {
		return err
	}
	topo, err := flex.NewTopology(cfg.Shape)
	if err != nil {
		return err
	}
	if path := cfg.PresetsPath(); path != "" {
		presets, err := config.ReadPresets(path)
		if err != nil {
			return err
		}
		if _, ok := presets[config.InitialPreset]; !ok {
			warningf(c.App.ErrWriter, "presets file %q has no %q preset", path, config.InitialPreset)
		}
	}

	t := table.NewWriter()
	t.SetTitle(cfg.ConfigFilePath)
	t.AppendRows([]table.Row{
		{"shape", fmt.Sprintf("%s (%d ropes, %d object points, %d object edges)",
			topo.Name, topo.Motors, topo.ObjectPoints, topo.ObjectEdges)},
		{"loop", fmt.Sprintf("%.0f Hz, motors enabled: %t", cfg.Loop.Frequency, cfg.Loop.EnableMotors)},
		{"master", masterSummary(cfg)},
		{"adapters", adapterSummary(cfg.Adapters)},
		{"presets", lo.Ternary(cfg.PresetsPath() == "", "none", cfg.PresetsPath())},
		{"log level", cfg.Log.Level.String()},
	})
	printf(c.App.Writer, "%s", t.Render())
	printf(c.App.Writer, "config is valid")
	return nil
}

func masterSummary(cfg *config.Config) string {
	if cfg.Master == nil {
		return "none, simulation only"
	}
	return fmt.Sprintf("adapter %q, cycle %s, drive mode %s",
		cfg.Master.Adapter, cfg.Master.CycleTime(), lo.Ternary(cfg.MAC.Mode == "", "position", cfg.MAC.Mode))
}

func adapterSummary(cfgs []adapter.Config) string {
	if len(cfgs) == 0 {
		return "none"
	}
	return strings.Join(lo.Map(cfgs, func(a adapter.Config, _ int) string {
		if a.Disabled {
			return fmt.Sprintf("%s (%s, disabled)", a.Name, a.Type)
		}
		return fmt.Sprintf("%s (%s)", a.Name, a.Type)
	}), ", ")
}
