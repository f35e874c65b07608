package collateral

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/rustyeddy/riskcube/dategrid"
	"github.com/rustyeddy/riskcube/logging"
	"github.com/rustyeddy/riskcube/metrics"
)

// BalancePathInput describes one netting set's simulated values and the
// market data its collateral accrues on. Profiles are indexed
// [dateIdx][scenario] over Dates.
type BalancePathInput struct {
	CSA      CSA
	CalcType CalculationType

	T0             time.Time
	ValueT0        float64
	InitialBalance float64
	Maturity       time.Time

	Dates  []time.Time
	Values [][]float64

	// FX converts CSA currency to base; nil scenarios mean FXToday
	// throughout.
	FXToday     float64
	FXScenarios [][]float64

	// Annualised collateral zero rate; nil scenarios mean RateToday
	// throughout.
	RateToday     float64
	RateScenarios [][]float64

	Workers int
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (in *BalancePathInput) scenarios() int {
	if len(in.Values) == 0 {
		return 0
	}
	return len(in.Values[0])
}

func (in *BalancePathInput) validate() error {
	if err := in.CSA.Validate(); err != nil {
		return err
	}
	if len(in.Dates) == 0 || len(in.Values) != len(in.Dates) {
		return fmt.Errorf("%w: %d value rows for %d dates", ErrPrecondition, len(in.Values), len(in.Dates))
	}
	n := in.scenarios()
	if n == 0 {
		return fmt.Errorf("%w: no scenarios", ErrPrecondition)
	}
	check := func(name string, rows [][]float64) error {
		if rows == nil {
			return nil
		}
		if len(rows) != len(in.Dates) {
			return fmt.Errorf("%w: %d %s rows for %d dates", ErrPrecondition, len(rows), name, len(in.Dates))
		}
		for _, r := range rows {
			if len(r) != n {
				return fmt.Errorf("%w: %s scenarios %d, values %d", ErrPrecondition, name, len(r), n)
			}
		}
		return nil
	}
	for _, r := range in.Values {
		if len(r) != n {
			return fmt.Errorf("%w: ragged value profile", ErrPrecondition)
		}
	}
	if err := check("fx", in.FXScenarios); err != nil {
		return err
	}
	if err := check("rate", in.RateScenarios); err != nil {
		return err
	}
	if in.FXToday == 0 && in.FXScenarios == nil {
		return fmt.Errorf("%w: zero fx rate", ErrPrecondition)
	}
	return nil
}

// estimate reads a profile on d, or today when no scenario profile is set.
func (in *BalancePathInput) estimate(d time.Time, today float64, rows [][]float64, scenario int) (float64, error) {
	if rows == nil {
		return today, nil
	}
	return EstimateUncollatValue(d, today, in.T0, rows, scenario, in.Dates)
}

// BalancePaths simulates one collateral account per scenario. Each account
// starts from the margin requirement at t0 and is stepped on the union of the
// margin call and margin post schedules until min(maturity, last date) plus
// the margin period of risk, then closed a day later.
func BalancePaths(ctx context.Context, in BalancePathInput) ([]*Account, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	log := logging.OrDefault(in.Logger)

	t0 := dategrid.Truncate(in.T0)
	tmp := NewAccount(in.CSA, in.InitialBalance, t0)
	balT0, err := MarginRequirement(tmp, in.ValueT0, t0)
	if err != nil {
		return nil, err
	}
	base := NewAccount(in.CSA, balT0, t0)

	end := dategrid.Truncate(in.Dates[len(in.Dates)-1])
	if !in.Maturity.IsZero() && in.Maturity.Before(end) {
		end = dategrid.Truncate(in.Maturity)
	}
	simEnd := in.CSA.MarginPeriodOfRisk.AddTo(end)

	workers := in.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	n := in.scenarios()
	out := make([]*Account, n)
	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx).WithCancelOnError()
	for s := range n {
		start := base.Clone()
		p.Go(func(ctx context.Context) error {
			acc, err := in.path(ctx, start, s, simEnd)
			if err != nil {
				return fmt.Errorf("collateral: scenario %d: %w", s, err)
			}
			out[s] = acc
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	in.Metrics.PathsSimulated(n)
	log.Info("collateral paths built", "scenarios", n, "balance_t0", balT0, "sim_end", simEnd.Format(time.DateOnly))
	return out, nil
}

func (in *BalancePathInput) path(ctx context.Context, acc *Account, s int, simEnd time.Time) (*Account, error) {
	t0 := acc.StartDate()
	d, nextUs, nextCtp := t0, t0, t0

	for !d.After(simEnd) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		eligUs, eligCtp := d.Equal(nextUs), d.Equal(nextCtp)

		v, err := in.estimate(d, in.ValueT0, in.Values, s)
		if err != nil {
			return nil, err
		}
		fx, err := in.estimate(d, in.FXToday, in.FXScenarios, s)
		if err != nil {
			return nil, err
		}
		rate, err := in.estimate(d, in.RateToday, in.RateScenarios, s)
		if err != nil {
			return nil, err
		}
		if fx == 0 {
			return nil, fmt.Errorf("%w: zero fx rate on %s", ErrPrecondition, d.Format(time.DateOnly))
		}

		if err := UpdateMarginCall(acc, v/fx, d, rate, in.CalcType, eligUs, eligCtp); err != nil {
			return nil, err
		}

		if eligUs {
			nextUs = in.CSA.MarginCallFrequency.AddTo(d)
		}
		if eligCtp {
			nextCtp = in.CSA.MarginPostFrequency.AddTo(d)
		}
		d = nextUs
		if nextCtp.Before(d) {
			d = nextCtp
		}
	}

	if err := acc.CloseAccount(simEnd.AddDate(0, 0, 1)); err != nil {
		return nil, err
	}
	return acc, nil
}
