package demo

import (
	"fmt"
	"time"

	"github.com/rustyeddy/riskcube/dategrid"
	"github.com/rustyeddy/riskcube/valuation"
)

// TradeSpec describes one demo trade in a config file.
//
// Rate is the coupon for a bond, the forward rate (Currency units per unit of
// BuyCurrency) for an fx_forward, and the strike for an equity_forward.
type TradeSpec struct {
	ID          string          `yaml:"id" json:"id"`
	Type        string          `yaml:"type" json:"type"`
	Currency    string          `yaml:"currency,omitempty" json:"currency,omitempty"`
	BuyCurrency string          `yaml:"buy_currency,omitempty" json:"buy_currency,omitempty"`
	Notional    float64         `yaml:"notional" json:"notional"`
	Rate        float64         `yaml:"rate" json:"rate"`
	Maturity    dategrid.Period `yaml:"maturity" json:"maturity"`
	Frequency   dategrid.Period `yaml:"frequency,omitempty" json:"frequency,omitempty"`
	Short       bool            `yaml:"short,omitempty" json:"short,omitempty"`
}

func DefaultTrades() []TradeSpec {
	return []TradeSpec{
		{ID: "BOND_EUR_5Y", Type: "bond", Currency: "EUR", Notional: 1_000_000, Rate: 0.035,
			Maturity: dategrid.NewPeriod(5, dategrid.Years), Frequency: dategrid.NewPeriod(1, dategrid.Years)},
		{ID: "FXFWD_USDEUR_1Y", Type: "fx_forward", Currency: "EUR", BuyCurrency: "USD", Notional: 1_000_000, Rate: 0.91,
			Maturity: dategrid.NewPeriod(1, dategrid.Years)},
		{ID: "EQFWD_2Y", Type: "equity_forward", Notional: 100, Rate: 4600,
			Maturity: dategrid.NewPeriod(2, dategrid.Years), Short: true},
	}
}

func (s TradeSpec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("demo: trade id is required")
	}
	if s.Notional <= 0 {
		return fmt.Errorf("demo: trade %s: notional must be positive", s.ID)
	}
	if s.Maturity.Length <= 0 {
		return fmt.Errorf("demo: trade %s: maturity must be positive", s.ID)
	}
	switch s.Type {
	case "bond":
		if s.Currency == "" {
			return fmt.Errorf("demo: trade %s: currency is required", s.ID)
		}
	case "fx_forward":
		if s.Currency == "" || s.BuyCurrency == "" || s.Currency == s.BuyCurrency {
			return fmt.Errorf("demo: trade %s: needs two different currencies", s.ID)
		}
		if s.Rate <= 0 {
			return fmt.Errorf("demo: trade %s: forward rate must be positive", s.ID)
		}
	case "equity_forward":
		if s.Rate <= 0 {
			return fmt.Errorf("demo: trade %s: strike must be positive", s.ID)
		}
	default:
		return fmt.Errorf("demo: trade %s: unknown type %q", s.ID, s.Type)
	}
	return nil
}

// CashflowTrade is a set of fixed legs.
type CashflowTrade struct {
	id       string
	ccy      string
	maturity time.Time
	legs     []valuation.Leg
}

func (t *CashflowTrade) ID() string            { return t.id }
func (t *CashflowTrade) NPVCurrency() string   { return t.ccy }
func (t *CashflowTrade) Legs() []valuation.Leg { return t.legs }
func (t *CashflowTrade) Maturity() time.Time   { return t.maturity }

// EquityForward buys (or sells, when short) units of the equity index at
// strike on maturity. It is physically settled and has no cash legs.
type EquityForward struct {
	id       string
	ccy      string
	units    float64
	strike   float64
	maturity time.Time
	short    bool
}

func (f *EquityForward) ID() string            { return f.id }
func (f *EquityForward) NPVCurrency() string   { return f.ccy }
func (f *EquityForward) Legs() []valuation.Leg { return nil }
func (f *EquityForward) Maturity() time.Time   { return f.maturity }

// BuildPortfolio turns specs into trades in spec order. Equity forwards are
// in the base currency.
func BuildPortfolio(asof time.Time, base string, specs []TradeSpec, dc dategrid.DayCounter) (valuation.Portfolio, error) {
	if dc == nil {
		dc = dategrid.Actual365Fixed{}
	}
	asof = dategrid.Truncate(asof)

	seen := make(map[string]bool, len(specs))
	p := make(valuation.Portfolio, 0, len(specs))
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("demo: duplicate trade id %q", s.ID)
		}
		seen[s.ID] = true

		maturity := s.Maturity.AddTo(asof)
		switch s.Type {
		case "bond":
			p = append(p, bond(asof, maturity, s, dc))
		case "fx_forward":
			p = append(p, &CashflowTrade{
				id:       s.ID,
				ccy:      s.Currency,
				maturity: maturity,
				legs: []valuation.Leg{
					{Currency: s.BuyCurrency, Payer: s.Short, Flows: []valuation.Cashflow{
						valuation.FixedCashflow{PayDate: maturity, Value: s.Notional},
					}},
					{Currency: s.Currency, Payer: !s.Short, Flows: []valuation.Cashflow{
						valuation.FixedCashflow{PayDate: maturity, Value: s.Notional * s.Rate},
					}},
				},
			})
		case "equity_forward":
			p = append(p, &EquityForward{
				id:       s.ID,
				ccy:      base,
				units:    s.Notional,
				strike:   s.Rate,
				maturity: maturity,
				short:    s.Short,
			})
		}
	}
	return p, nil
}

func bond(asof, maturity time.Time, s TradeSpec, dc dategrid.DayCounter) *CashflowTrade {
	freq := s.Frequency
	if freq.Length <= 0 {
		freq = dategrid.NewPeriod(1, dategrid.Years)
	}

	var flows []valuation.Cashflow
	prev := asof
	for i := 1; ; i++ {
		d := freq.Mul(i).AddTo(asof)
		if d.After(maturity) {
			d = maturity
		}
		amt := s.Notional * s.Rate * dc.YearFraction(prev, d)
		if d.Equal(maturity) {
			amt += s.Notional
		}
		flows = append(flows, valuation.FixedCashflow{PayDate: d, Value: amt})
		if !d.Before(maturity) {
			break
		}
		prev = d
	}

	return &CashflowTrade{
		id:       s.ID,
		ccy:      s.Currency,
		maturity: maturity,
		legs:     []valuation.Leg{{Currency: s.Currency, Payer: s.Short, Flows: flows}},
	}
}

// Maturity is the latest maturity of the trades that report one.
func Maturity(p valuation.Portfolio) time.Time {
	var last time.Time
	for _, t := range p {
		m, ok := t.(interface{ Maturity() time.Time })
		if ok && m.Maturity().After(last) {
			last = m.Maturity()
		}
	}
	return last
}
