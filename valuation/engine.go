package valuation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/riskcube/cube"
	"github.com/rustyeddy/riskcube/dategrid"
	"github.com/rustyeddy/riskcube/logging"
	"github.com/rustyeddy/riskcube/metrics"
)

var ErrDimension = errors.New("valuation: cube does not match portfolio or grid")

// Engine fills cubes by walking samples, then grid dates, then trades.
//
// The cube's date axis is the grid's valuation dates. Close-out dates are
// written at the previous valuation date's index, at the calculators'
// close-out depth.
type Engine struct {
	Grid   *dategrid.Grid
	Market SimMarket

	// Workers bounds concurrent trade pricing per node. Zero means GOMAXPROCS.
	Workers int
	// DryRun prices the first sample only and fills the rest from T0.
	DryRun bool

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func NewEngine(g *dategrid.Grid, m SimMarket) *Engine {
	return &Engine{Grid: g, Market: m}
}

func (e *Engine) workers() int {
	if e.Workers > 0 {
		return e.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (e *Engine) validate(p Portfolio, c cube.NPVCube, calcs []Calculator) error {
	if e.Grid == nil || e.Market == nil {
		return fmt.Errorf("valuation: engine needs a grid and a market")
	}
	if len(p) == 0 {
		return fmt.Errorf("valuation: empty portfolio")
	}
	if len(calcs) == 0 {
		return fmt.Errorf("valuation: no calculators")
	}
	if c.NumIDs() != len(p) {
		return fmt.Errorf("%w: %d cube ids, %d trades", ErrDimension, c.NumIDs(), len(p))
	}
	if !slices.Equal(c.IDs(), p.IDs()) {
		return fmt.Errorf("%w: cube ids are not in portfolio order", ErrDimension)
	}
	vd := e.Grid.ValuationDates()
	if c.NumDates() != len(vd) {
		return fmt.Errorf("%w: %d cube dates, %d valuation dates", ErrDimension, c.NumDates(), len(vd))
	}
	for j, d := range c.Dates() {
		if !d.Equal(vd[j]) {
			return fmt.Errorf("%w: cube date %d is %s, grid has %s", ErrDimension, j,
				d.Format(time.DateOnly), vd[j].Format(time.DateOnly))
		}
	}
	for _, t := range p {
		if t.NPVCurrency() == "" {
			return fmt.Errorf("valuation: trade %s has no NPV currency", t.ID())
		}
	}
	return nil
}

// BuildCube fills c for every trade in p. ctx is checked between grid dates;
// a cancelled fill returns ctx.Err() and leaves c partly written.
func (e *Engine) BuildCube(ctx context.Context, p Portfolio, c cube.NPVCube, calcs ...Calculator) error {
	if err := e.validate(p, c, calcs); err != nil {
		return err
	}
	log := logging.OrDefault(e.Logger)
	start := time.Now()

	samples := c.Samples()
	if e.DryRun {
		samples = min(1, samples)
	}
	log.Info("building cube",
		"trades", len(p),
		"dates", e.Grid.Size(),
		"samples", c.Samples(),
		"depth", c.Depth(),
		"workers", e.workers(),
		"dry_run", e.DryRun,
	)

	for _, calc := range calcs {
		if err := calc.Init(p, e.Market); err != nil {
			return fmt.Errorf("valuation: init %s: %w", calc.Name(), err)
		}
		if err := calc.InitScenario(); err != nil {
			return fmt.Errorf("valuation: init scenario %s: %w", calc.Name(), err)
		}
	}

	for i, t := range p {
		for _, calc := range calcs {
			if err := calc.CalculateT0(t, i, e.Market, c); err != nil {
				return fmt.Errorf("valuation: T0 %s: %w", t.ID(), err)
			}
		}
	}

	dates := e.Grid.Dates()
	isValuation := e.Grid.IsValuationDate()
	isCloseOut := e.Grid.IsCloseOutDate()

	for sample := range samples {
		cubeDate := -1
		for i, d := range dates {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := e.Market.Update(d, sample); err != nil {
				return fmt.Errorf("valuation: market update %s sample %d: %w", d.Format(time.DateOnly), sample, err)
			}

			if isCloseOut[i] {
				if cubeDate < 0 {
					return fmt.Errorf("valuation: grid must start with a valuation date")
				}
				if err := e.runCalculators(p, c, calcs, d, cubeDate, sample, true); err != nil {
					return err
				}
			}
			if isValuation[i] {
				cubeDate++
				if err := e.runCalculators(p, c, calcs, d, cubeDate, sample, false); err != nil {
					return err
				}
			}
		}
		log.Debug("sample done", "sample", sample, "label", e.Market.Label())
	}

	if e.DryRun {
		if err := fillDryRun(c); err != nil {
			return err
		}
	}

	if err := e.Market.Reset(); err != nil {
		return fmt.Errorf("valuation: market reset: %w", err)
	}

	elapsed := time.Since(start)
	mode := "full"
	if e.DryRun {
		mode = "dry_run"
	}
	e.Metrics.ObserveFill(mode, elapsed)
	log.Info("cube built", "elapsed", elapsed.Round(time.Millisecond), "samples_valued", samples)
	return nil
}

func (e *Engine) runCalculators(p Portfolio, c cube.NPVCube, calcs []Calculator, d time.Time, cubeDate, sample int, closeOut bool) error {
	for _, calc := range calcs {
		if err := calc.InitScenario(); err != nil {
			return fmt.Errorf("valuation: init scenario %s: %w", calc.Name(), err)
		}
	}

	var g errgroup.Group
	g.SetLimit(e.workers())
	for j, t := range p {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("valuation: %s panicked: %v", t.ID(), r)
				}
			}()
			for _, calc := range calcs {
				if err := calc.Calculate(t, j, e.Market, c, d, cubeDate, sample, closeOut); err != nil {
					return fmt.Errorf("valuation: %s %s: %w", calc.Name(), t.ID(), err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// BuildScenarioCube values every trade once per scenario at the market's
// asof. Sample k of c holds scenario k, which the market selects in
// Update(asof, k); c has a single date equal to the asof. T0 is valued before
// any scenario is applied.
func (e *Engine) BuildScenarioCube(ctx context.Context, p Portfolio, c cube.NPVCube, calcs ...Calculator) error {
	if e.Market == nil {
		return fmt.Errorf("valuation: engine needs a market")
	}
	if len(p) == 0 || len(calcs) == 0 {
		return fmt.Errorf("valuation: empty portfolio or no calculators")
	}
	if c.NumIDs() != len(p) || !slices.Equal(c.IDs(), p.IDs()) {
		return fmt.Errorf("%w: cube ids are not the portfolio", ErrDimension)
	}
	asof := dategrid.Truncate(e.Market.Asof())
	if c.NumDates() != 1 || !c.Dates()[0].Equal(asof) {
		return fmt.Errorf("%w: scenario cube needs the single date %s", ErrDimension, asof.Format(time.DateOnly))
	}
	log := logging.OrDefault(e.Logger)
	start := time.Now()

	for _, calc := range calcs {
		if err := calc.Init(p, e.Market); err != nil {
			return fmt.Errorf("valuation: init %s: %w", calc.Name(), err)
		}
	}
	for i, t := range p {
		for _, calc := range calcs {
			if err := calc.CalculateT0(t, i, e.Market, c); err != nil {
				return fmt.Errorf("valuation: T0 %s: %w", t.ID(), err)
			}
		}
	}

	for k := range c.Samples() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.Market.Update(asof, k); err != nil {
			return fmt.Errorf("valuation: apply scenario %d: %w", k, err)
		}
		if err := e.runCalculators(p, c, calcs, asof, 0, k, false); err != nil {
			return err
		}
	}
	if err := e.Market.Reset(); err != nil {
		return fmt.Errorf("valuation: market reset: %w", err)
	}

	elapsed := time.Since(start)
	e.Metrics.ObserveFill("scenario", elapsed)
	log.Info("scenario cube built", "trades", len(p), "scenarios", c.Samples(), "elapsed", elapsed.Round(time.Millisecond))
	return nil
}

// fillDryRun copies T0 into every sample after the first, adding a small
// index-dependent offset to the first ten samples.
func fillDryRun(c cube.NPVCube) error {
	for k := 1; k < c.Samples(); k++ {
		for j := range c.NumDates() {
			for i := range c.NumIDs() {
				for d := range c.Depth() {
					t0, err := c.GetT0(i, d)
					if err != nil {
						return err
					}
					var noise float64
					if k < 10 {
						noise = float64(i + j + d + k)
					}
					if err := c.Set(t0+noise, i, j, k, d); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
