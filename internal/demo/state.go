package demo

import (
	"fmt"
	"maps"
	"math"
	"time"

	"github.com/rustyeddy/riskcube/dategrid"
	"github.com/rustyeddy/riskcube/valuation"
)

// state is the market at one node.
type state struct {
	date      time.Time
	base      string
	rates     map[string]float64
	fx        map[string]float64
	equity    float64
	numeraire float64
}

func initialState(m Model, asof time.Time) state {
	fx := maps.Clone(m.FXSpots)
	if fx == nil {
		fx = make(map[string]float64)
	}
	fx[m.BaseCurrency] = 1
	return state{
		date:      asof,
		base:      m.BaseCurrency,
		rates:     maps.Clone(m.Rates),
		fx:        fx,
		equity:    m.Equity,
		numeraire: 1,
	}
}

func (s state) clone() state {
	s.rates = maps.Clone(s.rates)
	s.fx = maps.Clone(s.fx)
	return s
}

func (s state) fxRate(ccy string) (float64, error) {
	v, ok := s.fx[ccy]
	if !ok {
		return 0, fmt.Errorf("demo: no fx rate for %s", ccy)
	}
	return v, nil
}

// discount is the flat-rate discount factor in ccy from the node date to d.
func (s state) discount(dc dategrid.DayCounter, ccy string, d time.Time) (float64, error) {
	r, ok := s.rates[ccy]
	if !ok {
		return 0, fmt.Errorf("demo: no rate for %s", ccy)
	}
	return math.Exp(-r * dc.YearFraction(s.date, d)), nil
}

func (s state) npv(dc dategrid.DayCounter, t valuation.Trade) (float64, error) {
	if f, ok := t.(*EquityForward); ok {
		return s.equityForward(dc, f)
	}

	npvFX, err := s.fxRate(t.NPVCurrency())
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, leg := range t.Legs() {
		fx, err := s.fxRate(leg.Currency)
		if err != nil {
			return 0, err
		}
		for _, f := range leg.Flows {
			if !f.Date().After(s.date) {
				continue
			}
			amt, err := f.Amount()
			if err != nil {
				return 0, err
			}
			df, err := s.discount(dc, leg.Currency, f.Date())
			if err != nil {
				return 0, err
			}
			v := amt * df * fx / npvFX
			if leg.Payer {
				v = -v
			}
			sum += v
		}
	}
	return sum, nil
}

func (s state) equityForward(dc dategrid.DayCounter, f *EquityForward) (float64, error) {
	if s.date.After(f.maturity) {
		return 0, nil
	}
	df, err := s.discount(dc, s.base, f.maturity)
	if err != nil {
		return 0, err
	}
	v := f.units * (s.equity - f.strike*df)
	if f.short {
		v = -v
	}
	return v, nil
}
