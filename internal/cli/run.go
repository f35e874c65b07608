package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/riskcube/collateral"
	"github.com/rustyeddy/riskcube/config"
	"github.com/rustyeddy/riskcube/cube"
	"github.com/rustyeddy/riskcube/exposure"
	"github.com/rustyeddy/riskcube/internal/demo"
	"github.com/rustyeddy/riskcube/journal"
	"github.com/rustyeddy/riskcube/valuation"
)

func newRunCmd(rc *RootConfig) *cobra.Command {
	var (
		samples int
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate the portfolio into an NPV cube, then build collateral and exposure profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rc.load()
			if err != nil {
				return err
			}
			defer a.close()

			if samples > 0 {
				a.cfg.Simulation.Samples = samples
			}
			if cmd.Flags().Changed("dry-run") {
				a.cfg.Simulation.DryRun = dryRun
			}

			sum, err := runExposure(cmd.Context(), a)
			if err != nil {
				return err
			}
			return printSummary(cmd, a.cfg, sum)
		},
	}

	cmd.Flags().IntVar(&samples, "samples", 0, "Override simulation.samples")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Value the first sample only and fill the rest from T0")
	return cmd
}

// cubeLayout is the depth index of each calculator.
type cubeLayout struct {
	npv, closeOut, cashflow, depth int
}

func layoutFor(hasCloseOut bool) cubeLayout {
	if hasCloseOut {
		return cubeLayout{npv: 0, closeOut: 1, cashflow: 2, depth: 3}
	}
	return cubeLayout{npv: 0, closeOut: 0, cashflow: 1, depth: 2}
}

func runExposure(ctx context.Context, a *app) (*journal.RunSummary, error) {
	cfg := a.cfg
	start := time.Now()

	asof, err := cfg.AsofDate()
	if err != nil {
		return nil, err
	}
	grid, err := cfg.BuildGrid()
	if err != nil {
		return nil, err
	}
	dc := grid.DayCounter()

	market, err := demo.NewMarket(cfg.Market, asof, dc)
	if err != nil {
		return nil, err
	}
	p, err := demo.BuildPortfolio(asof, cfg.Market.BaseCurrency, cfg.Trades, dc)
	if err != nil {
		return nil, err
	}
	precision, err := cube.ParsePrecision(cfg.Simulation.Precision)
	if err != nil {
		return nil, err
	}

	hasCloseOut := len(grid.CloseOutDates()) > 0
	layout := layoutFor(hasCloseOut)
	c, err := cube.New(precision, asof, p.IDs(), grid.ValuationDates(), cfg.Simulation.Samples, layout.depth)
	if err != nil {
		return nil, err
	}

	engine := valuation.NewEngine(grid, market)
	engine.Workers = cfg.Simulation.Workers
	engine.DryRun = cfg.Simulation.DryRun
	engine.Logger = a.log
	engine.Metrics = a.metrics

	opts := []valuation.Option{valuation.WithLogger(a.log), valuation.WithMetrics(a.metrics)}
	err = engine.BuildCube(ctx, p, c,
		valuation.NewNPVCalculator(layout.npv, layout.closeOut, opts...),
		valuation.NewCashflowCalculator(layout.cashflow, grid, opts...),
	)
	if err != nil {
		return nil, err
	}

	if err := saveCube(ctx, cfg.Cube, a.runID, c); err != nil {
		return nil, err
	}
	a.log.Info("cube saved", "path", cfg.Cube.Path, "format", cfg.Cube.Format)

	sum := &journal.RunSummary{
		RunID:       a.runID,
		Kind:        "exposure",
		Created:     start,
		Asof:        asof,
		Grid:        cfg.Grid.Spec,
		Trades:      c.NumIDs(),
		Dates:       c.NumDates(),
		Samples:     c.Samples(),
		Depth:       c.Depth(),
		Precision:   c.Precision().String(),
		CubePath:    cfg.Cube.Path,
		JournalPath: cfg.Journal.Path,
	}
	if cfg.Simulation.DryRun {
		sum.Notes = append(sum.Notes, "dry run: only the first sample was simulated")
	}

	if err := writeExposures(ctx, a, p, c, layout, hasCloseOut, sum); err != nil {
		return nil, err
	}
	sum.Elapsed = time.Since(start).Round(time.Millisecond)
	if cfg.Journal.Summary != "" {
		if err := sum.AppendOrg(cfg.Journal.Summary); err != nil {
			return nil, err
		}
	}
	return sum, nil
}

// writeExposures journals every netting set and adds its summary to sum. The
// journal is closed on every path; a close error is returned when nothing
// failed before it.
func writeExposures(ctx context.Context, a *app, p valuation.Portfolio, c cube.NPVCube, layout cubeLayout,
	hasCloseOut bool, sum *journal.RunSummary) (err error) {

	cfg := a.cfg
	j, err := journal.Open(cfg.Journal.Type, cfg.Journal.Path, a.runID)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := j.Close(); err == nil {
			err = cerr
		}
	}()

	index := make(map[string]int, len(p))
	for i, t := range p {
		index[t.ID()] = i
	}
	for _, ns := range cfg.NettingSets {
		nss, err := nettingSetExposure(ctx, a, ns, p, index, c, layout, hasCloseOut, j)
		if err != nil {
			return fmt.Errorf("netting set %s: %w", ns.ID, err)
		}
		sum.NettingSets = append(sum.NettingSets, nss)
	}
	return nil
}

func nettingSetExposure(ctx context.Context, a *app, ns config.NettingSet, p valuation.Portfolio, index map[string]int,
	c cube.NPVCube, layout cubeLayout, hasCloseOut bool, j journal.Journal) (journal.NettingSetSummary, error) {

	idx := make([]int, len(ns.Trades))
	trades := make(valuation.Portfolio, len(ns.Trades))
	for k, id := range ns.Trades {
		i, ok := index[id]
		if !ok {
			return journal.NettingSetSummary{}, fmt.Errorf("unknown trade %q", id)
		}
		idx[k] = i
		trades[k] = p[i]
	}

	values, err := exposure.NettingSetValues(c, idx, layout.npv)
	if err != nil {
		return journal.NettingSetSummary{}, err
	}
	valueT0, err := exposure.NettingSetT0(c, idx, layout.npv)
	if err != nil {
		return journal.NettingSetSummary{}, err
	}
	dates := c.Dates()
	q := a.cfg.Simulation.Quantile

	uncollat, err := exposure.Profile(dates, values, q)
	if err != nil {
		return journal.NettingSetSummary{}, err
	}
	if err := journal.WriteExposure(j, ns.ID, false, uncollat, a.metrics); err != nil {
		return journal.NettingSetSummary{}, err
	}

	accounts, err := collateral.BalancePaths(ctx, collateral.BalancePathInput{
		CSA:            ns.CSA,
		CalcType:       ns.CalculationType,
		T0:             c.Asof(),
		ValueT0:        valueT0,
		InitialBalance: ns.InitialBalance,
		Maturity:       demo.Maturity(trades),
		Dates:          dates,
		Values:         values,
		FXToday:        1,
		RateToday:      a.cfg.Market.Rates[a.cfg.Market.BaseCurrency],
		Workers:        a.cfg.Simulation.Workers,
		Logger:         a.log,
		Metrics:        a.metrics,
	})
	if err != nil {
		return journal.NettingSetSummary{}, err
	}
	if err := journal.WriteBalances(j, ns.ID, accounts, a.metrics); err != nil {
		return journal.NettingSetSummary{}, err
	}

	// collateral held on a date covers the value a margin period later
	exposed := values
	if hasCloseOut {
		exposed, err = exposure.NettingSetValues(c, idx, layout.closeOut)
		if err != nil {
			return journal.NettingSetSummary{}, err
		}
	}
	net, err := exposure.CollateralizedValues(dates, exposed, accounts)
	if err != nil {
		return journal.NettingSetSummary{}, err
	}
	collat, err := exposure.Profile(dates, net, q)
	if err != nil {
		return journal.NettingSetSummary{}, err
	}
	if err := journal.WriteExposure(j, ns.ID, true, collat, a.metrics); err != nil {
		return journal.NettingSetSummary{}, err
	}

	out := journal.NettingSetSummary{ID: ns.ID, Paths: len(accounts)}
	if peak, ok := exposure.Peak(collat); ok {
		out.PeakDate, out.PeakEPE, out.PeakPFE = peak.Date, peak.EPE, peak.PFE
	}
	a.log.Info("netting set done", "netting_set", ns.ID, "trades", len(idx), "peak_pfe", out.PeakPFE)
	return out, nil
}

func saveCube(ctx context.Context, cc config.CubeConfig, runID string, c cube.NPVCube) error {
	switch cc.Format {
	case "binary":
		return cube.SaveFile(cc.Path, c)
	case "sqlite":
		store, err := cube.NewSQLiteStore(cc.Path)
		if err != nil {
			return err
		}
		if err := store.Save(ctx, runID, c); err != nil {
			store.Close()
			return err
		}
		return store.Close()
	}
	return fmt.Errorf("unknown cube format %q", cc.Format)
}

func printSummary(cmd *cobra.Command, cfg *config.Config, sum *journal.RunSummary) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s (%s) asof %s\n", sum.RunID, sum.Kind, sum.Asof.Format(time.DateOnly))
	fmt.Fprintf(out, "  trades=%d dates=%d samples=%d depth=%d elapsed=%s\n",
		sum.Trades, sum.Dates, sum.Samples, sum.Depth, sum.Elapsed)
	if sum.CubePath != "" {
		fmt.Fprintf(out, "  cube:    %s (%s)\n", sum.CubePath, cfg.Cube.Format)
	}
	fmt.Fprintf(out, "  journal: %s (%s)\n", sum.JournalPath, cfg.Journal.Type)
	for _, ns := range sum.NettingSets {
		fmt.Fprintf(out, "  %-12s paths=%d peak PFE %.2f on %s\n", ns.ID, ns.Paths, ns.PeakPFE, ns.PeakDate.Format(time.DateOnly))
	}
	return nil
}
