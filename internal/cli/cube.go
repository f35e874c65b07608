package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/riskcube/cube"
)

func newCubeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cube",
		Short: "Inspect saved NPV cubes",
	}
	cmd.AddCommand(newCubeInspectCmd(), newCubeRunsCmd())
	return cmd
}

func newCubeInspectCmd() *cobra.Command {
	var (
		db    string
		runID string
		trade string
		depth int
	)

	cmd := &cobra.Command{
		Use:   "inspect [path]",
		Short: "Print a cube's dimensions and the sample mean per date",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				c   cube.NPVCube
				err error
			)
			switch {
			case db != "":
				if runID == "" {
					return fmt.Errorf("--run is required with --db")
				}
				store, err := cube.NewSQLiteStore(db)
				if err != nil {
					return err
				}
				defer store.Close()
				c, err = store.Load(cmd.Context(), runID)
				if err != nil {
					return err
				}
			case len(args) == 1:
				c, err = cube.LoadFile(args[0])
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("need a cube file or --db and --run")
			}
			return describeCube(cmd.OutOrStdout(), c, trade, depth)
		},
	}

	cmd.Flags().StringVar(&db, "db", "", "SQLite cube store")
	cmd.Flags().StringVar(&runID, "run", "", "Run id to load from --db")
	cmd.Flags().StringVar(&trade, "trade", "", "Only show this trade")
	cmd.Flags().IntVar(&depth, "depth", 0, "Depth index to summarise")
	return cmd
}

func newCubeRunsCmd() *cobra.Command {
	var db string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the run ids in a SQLite cube store",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cube.NewSQLiteStore(db)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Runs(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Fprintln(cmd.OutOrStdout(), r)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&db, "db", "", "SQLite cube store")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func describeCube(w io.Writer, c cube.NPVCube, trade string, depth int) error {
	if depth < 0 || depth >= c.Depth() {
		return fmt.Errorf("depth %d outside cube depth %d", depth, c.Depth())
	}
	fmt.Fprintf(w, "asof %s, %s precision\n", c.Asof().Format(time.DateOnly), c.Precision())
	fmt.Fprintf(w, "trades=%d dates=%d samples=%d depth=%d\n", c.NumIDs(), c.NumDates(), c.Samples(), c.Depth())

	ids := c.IDs()
	dates := c.Dates()
	for i, id := range ids {
		if trade != "" && id != trade {
			continue
		}
		t0, err := c.GetT0(i, depth)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%s  T0 %.2f\n", id, t0)
		for j, d := range dates {
			var sum float64
			for k := range c.Samples() {
				v, err := c.Get(i, j, k, depth)
				if err != nil {
					return err
				}
				sum += v
			}
			fmt.Fprintf(w, "  %s  %14.2f\n", d.Format(time.DateOnly), sum/float64(c.Samples()))
		}
	}
	return nil
}
