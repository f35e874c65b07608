package valuation

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/rustyeddy/riskcube/cube"
	"github.com/rustyeddy/riskcube/dategrid"
	"github.com/rustyeddy/riskcube/logging"
	"github.com/rustyeddy/riskcube/metrics"
)

// Calculator writes one measure of one trade into a cube.
//
// Init runs once before any concurrent work. InitScenario runs once per
// (date, sample) node and completes before any Calculate call for that node.
// Calculate and CalculateT0 only return errors for cube writes that fail;
// pricing failures are absorbed.
type Calculator interface {
	Name() string
	Init(p Portfolio, m SimMarket) error
	InitScenario() error
	Calculate(t Trade, tradeIdx int, m SimMarket, c cube.NPVCube, d time.Time, dateIdx, sample int, closeOut bool) error
	CalculateT0(t Trade, tradeIdx int, m SimMarket, c cube.NPVCube) error
}

type Option func(*base)

func WithLogger(l *slog.Logger) Option {
	return func(b *base) { b.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *base) { b.metrics = m }
}

type base struct {
	name    string
	log     *slog.Logger
	metrics *metrics.Metrics
}

func newBase(name string, opts []Option) base {
	b := base{name: name}
	for _, o := range opts {
		o(&b)
	}
	b.log = logging.OrDefault(b.log)
	return b
}

func (b *base) Name() string { return b.name }

// result turns a pricing outcome into the value stored in the cube.
func (b *base) result(v float64, err error, t Trade, d time.Time, sample int, label string) float64 {
	if err != nil {
		b.log.Warn("valuation failed, cell set to zero",
			"calculator", b.name,
			"trade", t.ID(),
			"date", d.Format(time.DateOnly),
			"sample", sample,
			"label", label,
			"error", err,
		)
		b.metrics.ValuationFailed(b.name)
		return 0
	}
	b.metrics.CellValued(b.name)
	return v
}

// recoverPricing turns a panic raised while pricing into an error so the
// cell takes the pricing failure path.
func recoverPricing(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("valuation: pricing panicked: %v", r)
	}
}

func npvInBase(t Trade, m SimMarket, fx func(string) (float64, error)) (_ float64, err error) {
	defer recoverPricing(&err)

	v, err := m.NPV(t)
	if err != nil {
		return 0, err
	}
	rate, err := fx(t.NPVCurrency())
	if err != nil {
		return 0, err
	}
	num := m.Numeraire()
	if num == 0 {
		return 0, fmt.Errorf("valuation: zero numeraire")
	}
	return v * rate / num, nil
}

// NPVCalculator stores NPV × FX(trade ccy → base) / numeraire at Index, or at
// CloseOutIndex on close-out dates.
type NPVCalculator struct {
	base
	Index         int
	CloseOutIndex int
}

func NewNPVCalculator(index, closeOutIndex int, opts ...Option) *NPVCalculator {
	return &NPVCalculator{base: newBase("npv", opts), Index: index, CloseOutIndex: closeOutIndex}
}

func (c *NPVCalculator) Init(Portfolio, SimMarket) error { return nil }
func (c *NPVCalculator) InitScenario() error             { return nil }

func (c *NPVCalculator) Calculate(t Trade, tradeIdx int, m SimMarket, out cube.NPVCube, d time.Time, dateIdx, sample int, closeOut bool) error {
	v, err := npvInBase(t, m, m.FXRate)
	depth := c.Index
	if closeOut {
		depth = c.CloseOutIndex
	}
	return out.Set(c.result(v, err, t, d, sample, m.Label()), tradeIdx, dateIdx, sample, depth)
}

func (c *NPVCalculator) CalculateT0(t Trade, tradeIdx int, m SimMarket, out cube.NPVCube) error {
	v, err := npvInBase(t, m, m.FXRate)
	return out.SetT0(c.result(v, err, t, m.Asof(), -1, m.Label()), tradeIdx, c.Index)
}

// NPVCalculatorFXT0 is NPVCalculator with FX rates frozen at their T0 values,
// for bump runs that must not pick up FX moves.
type NPVCalculatorFXT0 struct {
	base
	Index         int
	CloseOutIndex int

	fxT0 map[string]float64
}

func NewNPVCalculatorFXT0(index, closeOutIndex int, opts ...Option) *NPVCalculatorFXT0 {
	return &NPVCalculatorFXT0{base: newBase("npv_fxt0", opts), Index: index, CloseOutIndex: closeOutIndex}
}

func (c *NPVCalculatorFXT0) Init(p Portfolio, m SimMarket) error {
	c.fxT0 = make(map[string]float64)
	for _, t := range p {
		ccy := t.NPVCurrency()
		if _, ok := c.fxT0[ccy]; ok {
			continue
		}
		rate, err := m.FXRate(ccy)
		if err != nil {
			return fmt.Errorf("valuation: T0 fx rate %s: %w", ccy, err)
		}
		c.fxT0[ccy] = rate
	}
	return nil
}

func (c *NPVCalculatorFXT0) InitScenario() error { return nil }

func (c *NPVCalculatorFXT0) fx(ccy string) (float64, error) {
	rate, ok := c.fxT0[ccy]
	if !ok {
		return 0, fmt.Errorf("valuation: no T0 fx rate for %s", ccy)
	}
	return rate, nil
}

func (c *NPVCalculatorFXT0) Calculate(t Trade, tradeIdx int, m SimMarket, out cube.NPVCube, d time.Time, dateIdx, sample int, closeOut bool) error {
	v, err := npvInBase(t, m, c.fx)
	depth := c.Index
	if closeOut {
		depth = c.CloseOutIndex
	}
	return out.Set(c.result(v, err, t, d, sample, m.Label()), tradeIdx, dateIdx, sample, depth)
}

func (c *NPVCalculatorFXT0) CalculateT0(t Trade, tradeIdx int, m SimMarket, out cube.NPVCube) error {
	v, err := npvInBase(t, m, c.fx)
	return out.SetT0(c.result(v, err, t, m.Asof(), -1, m.Label()), tradeIdx, c.Index)
}

// CashflowCalculator stores the flows paid in (t_j, t_j+1] between two
// consecutive valuation dates, converted to base at the scenario FX rate and
// deflated by the numeraire. The last valuation date and T0 get 0. Close-out
// dates are skipped.
type CashflowCalculator struct {
	base
	Index int

	grid  *dategrid.Grid
	dates []time.Time
}

func NewCashflowCalculator(index int, grid *dategrid.Grid, opts ...Option) *CashflowCalculator {
	return &CashflowCalculator{base: newBase("cashflow", opts), Index: index, grid: grid}
}

func (c *CashflowCalculator) Init(Portfolio, SimMarket) error {
	if c.grid == nil {
		return fmt.Errorf("valuation: cashflow calculator has no grid")
	}
	c.dates = c.grid.ValuationDates()
	return nil
}

func (c *CashflowCalculator) InitScenario() error { return nil }

func (c *CashflowCalculator) Calculate(t Trade, tradeIdx int, m SimMarket, out cube.NPVCube, d time.Time, dateIdx, sample int, closeOut bool) error {
	if closeOut {
		return nil
	}
	var (
		v   float64
		err error
	)
	if dateIdx+1 < len(c.dates) {
		v, err = flowsBetween(t, m, c.dates[dateIdx], c.dates[dateIdx+1])
	}
	return out.Set(c.result(v, err, t, d, sample, m.Label()), tradeIdx, dateIdx, sample, c.Index)
}

func (c *CashflowCalculator) CalculateT0(_ Trade, tradeIdx int, _ SimMarket, out cube.NPVCube) error {
	return out.SetT0(0, tradeIdx, c.Index)
}

func flowsBetween(t Trade, m SimMarket, from, to time.Time) (_ float64, err error) {
	defer recoverPricing(&err)

	var total float64
	for _, leg := range t.Legs() {
		var legTotal float64
		for _, f := range leg.Flows {
			pay := dategrid.Truncate(f.Date())
			if !pay.After(from) || pay.After(to) {
				continue
			}
			amt, err := f.Amount()
			if err != nil {
				return 0, fmt.Errorf("valuation: flow on %s: %w", pay.Format(time.DateOnly), err)
			}
			legTotal += amt
		}
		if legTotal == 0 {
			continue
		}
		rate, err := m.FXRate(leg.Currency)
		if err != nil {
			return 0, err
		}
		if leg.Payer {
			legTotal = -legTotal
		}
		total += legTotal * rate
	}
	num := m.Numeraire()
	if num == 0 {
		return 0, fmt.Errorf("valuation: zero numeraire")
	}
	return total / num, nil
}
