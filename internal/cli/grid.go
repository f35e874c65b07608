package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/riskcube/config"
	"github.com/rustyeddy/riskcube/dategrid"
)

func newGridCmd() *cobra.Command {
	def := config.Default()
	cfg := &config.Config{Asof: def.Asof, Grid: def.Grid}
	var lag string

	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Print the simulation date grid for a grid spec",
		Example: `  riskcube grid --grid 40,3M
  riskcube grid --asof 2024-06-28 --grid 1W,1M,3M,1Y --close-out-lag 2W`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Grid.CloseOutLag = dategrid.Period{}
			if lag != "" {
				p, err := dategrid.ParsePeriod(lag)
				if err != nil {
					return err
				}
				cfg.Grid.CloseOutLag = p
			}

			g, err := cfg.BuildGrid()
			if err != nil {
				return err
			}
			printGrid(cmd, g)
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.Asof, "asof", def.Asof, "Valuation date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&cfg.Grid.Spec, "grid", def.Grid.Spec, "Grid spec: count,spacing, a tenor list, ALPHA or BETA")
	cmd.Flags().StringVar(&cfg.Grid.Calendar, "calendar", def.Grid.Calendar, "Calendar: weekends|none")
	cmd.Flags().StringVar(&cfg.Grid.DayCounter, "day-counter", def.Grid.DayCounter, "Day counter: A365F|ACT/ACT")
	cmd.Flags().StringVar(&lag, "close-out-lag", "", "Add close-out dates this period after each valuation date")
	return cmd
}

func printGrid(cmd *cobra.Command, g *dategrid.Grid) {
	out := cmd.OutOrStdout()
	tenors := g.Tenors()
	times := g.Times()
	val := g.IsValuationDate()
	co := g.IsCloseOutDate()

	fmt.Fprintf(out, "asof %s, %d dates (%s, %s)\n",
		g.Asof().Format(time.DateOnly), g.Size(), g.Calendar().Name(), g.DayCounter().Name())
	fmt.Fprintf(out, "%4s  %-10s  %6s  %8s  %s\n", "idx", "date", "tenor", "time", "flags")
	for i, d := range g.Dates() {
		flags := ""
		if val[i] {
			flags += "V"
		}
		if co[i] {
			flags += "C"
		}
		fmt.Fprintf(out, "%4d  %-10s  %6s  %8.4f  %s\n", i, d.Format(time.DateOnly), tenors[i], times[i], flags)
	}
}
