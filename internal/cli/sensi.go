package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/riskcube/cube"
	"github.com/rustyeddy/riskcube/dategrid"
	"github.com/rustyeddy/riskcube/internal/demo"
	"github.com/rustyeddy/riskcube/journal"
	"github.com/rustyeddy/riskcube/sensitivity"
	"github.com/rustyeddy/riskcube/valuation"
)

func newSensiCmd(rc *RootConfig) *cobra.Command {
	var threshold float64

	cmd := &cobra.Command{
		Use:   "sensi",
		Short: "Bump and revalue the portfolio, then write scenario, delta/gamma and cross gamma reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rc.load()
			if err != nil {
				return err
			}
			defer a.close()

			if cmd.Flags().Changed("threshold") {
				a.cfg.Sensitivity.Threshold = threshold
			}

			sum, err := runSensitivity(cmd.Context(), a)
			if err != nil {
				return err
			}
			return printSummary(cmd, a.cfg, sum)
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Override sensitivity.threshold")
	return cmd
}

func runSensitivity(ctx context.Context, a *app) (*journal.RunSummary, error) {
	cfg := a.cfg
	start := time.Now()

	asof, err := cfg.AsofDate()
	if err != nil {
		return nil, err
	}
	dc, err := dategrid.ParseDayCounter(cfg.Grid.DayCounter)
	if err != nil {
		return nil, err
	}

	keys, err := cfg.Sensitivity.Keys(demo.Factors(cfg.Market))
	if err != nil {
		return nil, err
	}
	shifts, err := cfg.Sensitivity.ShiftSizes(keys)
	if err != nil {
		return nil, err
	}
	filter, err := cfg.Sensitivity.Filter()
	if err != nil {
		return nil, err
	}
	descs := sensitivity.BuildCatalog(keys, filter)

	market, err := demo.NewScenarioMarket(cfg.Market, asof, dc, descs, shifts)
	if err != nil {
		return nil, err
	}
	p, err := demo.BuildPortfolio(asof, cfg.Market.BaseCurrency, cfg.Trades, dc)
	if err != nil {
		return nil, err
	}

	c, err := cube.NewDoublePrecision(asof, p.IDs(), []time.Time{asof}, len(descs), 1)
	if err != nil {
		return nil, err
	}
	engine := valuation.NewEngine(nil, market)
	engine.Logger = a.log
	engine.Metrics = a.metrics
	err = engine.BuildScenarioCube(ctx, p, c,
		valuation.NewNPVCalculator(0, 0, valuation.WithLogger(a.log), valuation.WithMetrics(a.metrics)))
	if err != nil {
		return nil, err
	}

	s, err := sensitivity.New(c, descs, shifts)
	if err != nil {
		return nil, err
	}

	if err := writeSensitivities(a, s); err != nil {
		return nil, err
	}
	a.log.Info("sensitivity reports written", "factors", len(keys), "scenarios", len(descs), "path", cfg.Journal.Path)

	sum := &journal.RunSummary{
		RunID:       a.runID,
		Kind:        "sensitivity",
		Created:     start,
		Asof:        asof,
		Trades:      c.NumIDs(),
		Dates:       c.NumDates(),
		Samples:     c.Samples(),
		Depth:       c.Depth(),
		Precision:   c.Precision().String(),
		JournalPath: cfg.Journal.Path,
		Elapsed:     time.Since(start).Round(time.Millisecond),
	}
	if len(s.CrossFactors()) == 0 {
		sum.Notes = append(sum.Notes, "no cross gamma pairs")
	}
	if cfg.Journal.Summary != "" {
		if err := sum.AppendOrg(cfg.Journal.Summary); err != nil {
			return nil, err
		}
	}
	return sum, nil
}

// writeSensitivities journals the reports of s and closes the journal on every
// path.
func writeSensitivities(a *app, s *sensitivity.Cube) (err error) {
	j, err := journal.Open(a.cfg.Journal.Type, a.cfg.Journal.Path, a.runID)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := j.Close(); err == nil {
			err = cerr
		}
	}()
	return journal.WriteSensitivityReports(j, s, a.cfg.Sensitivity.Threshold, a.metrics)
}
