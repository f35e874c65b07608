// Package valuation fills NPV cubes from a simulated market.
//
// An Engine walks samples and grid dates, moves the market to each node and
// lets every Calculator write its measure for every trade. Calculators never
// return pricing errors: a failed cell is logged, counted and left at zero so a
// large fill tolerates isolated bad trades.
package valuation

import (
	"time"
)

// Cashflow is one payment of a leg. Amount may depend on the current market
// state, so it can fail.
type Cashflow interface {
	Date() time.Time
	Amount() (float64, error)
}

// FixedCashflow is a known amount paid on PayDate.
type FixedCashflow struct {
	PayDate time.Time
	Value   float64
}

func (f FixedCashflow) Date() time.Time          { return f.PayDate }
func (f FixedCashflow) Amount() (float64, error) { return f.Value, nil }

type Leg struct {
	Currency string
	Payer    bool
	Flows    []Cashflow
}

type Trade interface {
	ID() string
	NPVCurrency() string
	Legs() []Leg
}

// Portfolio is an ordered list of trades. The order defines cube row indices.
type Portfolio []Trade

func (p Portfolio) IDs() []string {
	ids := make([]string, len(p))
	for i, t := range p {
		ids[i] = t.ID()
	}
	return ids
}

// SimMarket is the simulated market a cube is filled from.
//
// Update moves the market to (date, sample). Between two Updates the engine
// prices trades concurrently, so NPV, FXRate and Numeraire must be safe for
// concurrent use. Reset returns the market to its T0 state.
type SimMarket interface {
	Asof() time.Time
	BaseCurrency() string
	Label() string

	Update(d time.Time, sample int) error
	Reset() error

	// NPV of t in its NPV currency at the current node.
	NPV(t Trade) (float64, error)
	// FXRate converts one unit of ccy into the base currency.
	FXRate(ccy string) (float64, error)
	Numeraire() float64
}
