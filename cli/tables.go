package cli

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"

	"go.viam.com/flexblock/control"
	"go.viam.com/flexblock/mac"
)

func statsTable(target float64, stats control.Stats) string {
	t := table.NewWriter()
	t.SetTitle("control loop")
	t.AppendRows([]table.Row{
		{"ticks", stats.Ticks},
		{"rate", fmt.Sprintf("%.1f Hz of %.0f Hz", stats.Frequency, target)},
		{"tick mean", stats.TickMean},
		{"tick p99", stats.TickP99},
		{"tick max", stats.TickMax},
	})
	return t.Render()
}

func slavesTable(slaves []mac.SlaveInfo) string {
	t := table.NewWriter()
	t.SetTitle("drives")
	t.AppendHeader(table.Row{"#", "Name", "State", "Mode", "Target", "Actual", "Errors"})
	for _, s := range slaves {
		errs := "none"
		if len(s.Errors) != 0 {
			errs = strings.Join(lo.Map(s.Errors, func(e mac.DriveError, _ int) string {
				return e.String()
			}), ", ")
		}
		t.AppendRow(table.Row{s.Index, s.Name, s.State, s.Mode, s.TargetPosition, s.ActualPosition, errs})
	}
	return t.Render()
}
