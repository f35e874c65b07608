// Package demo is a toy simulated market and portfolio for the riskcube CLI.
//
// Short rates follow a mean reverting normal process, FX spots and one equity
// index follow lognormal processes, and all drivers share one correlation.
// Pricing is deliberately simple: discounted fixed flows and a forward on the
// index.
package demo

import (
	"fmt"
	"maps"
	"slices"
)

// Model holds the T0 market and the dynamics of the toy market.
type Model struct {
	BaseCurrency string             `yaml:"base_currency" json:"base_currency"`
	Rates        map[string]float64 `yaml:"rates" json:"rates"`
	// FXSpots quotes units of base currency per unit of each currency.
	FXSpots    map[string]float64 `yaml:"fx_spots" json:"fx_spots"`
	EquityName string             `yaml:"equity_name" json:"equity_name"`
	Equity     float64            `yaml:"equity" json:"equity"`

	MeanReversion float64 `yaml:"mean_reversion" json:"mean_reversion"`
	RateVol       float64 `yaml:"rate_vol" json:"rate_vol"`
	FXVol         float64 `yaml:"fx_vol" json:"fx_vol"`
	EquityVol     float64 `yaml:"equity_vol" json:"equity_vol"`
	Correlation   float64 `yaml:"correlation" json:"correlation"`
	Seed          uint64  `yaml:"seed" json:"seed"`
}

func DefaultModel() Model {
	return Model{
		BaseCurrency:  "EUR",
		Rates:         map[string]float64{"EUR": 0.03, "USD": 0.045, "GBP": 0.04},
		FXSpots:       map[string]float64{"USD": 0.92, "GBP": 1.16},
		EquityName:    "SX5E",
		Equity:        4500,
		MeanReversion: 0.05,
		RateVol:       0.01,
		FXVol:         0.1,
		EquityVol:     0.2,
		Correlation:   0.3,
		Seed:          42,
	}
}

func (m Model) Validate() error {
	if m.BaseCurrency == "" {
		return fmt.Errorf("demo: base currency is required")
	}
	if _, ok := m.Rates[m.BaseCurrency]; !ok {
		return fmt.Errorf("demo: no rate for base currency %s", m.BaseCurrency)
	}
	for ccy, s := range m.FXSpots {
		if ccy == m.BaseCurrency {
			return fmt.Errorf("demo: fx spot quoted for base currency %s", ccy)
		}
		if s <= 0 {
			return fmt.Errorf("demo: fx spot %s must be positive", ccy)
		}
		if _, ok := m.Rates[ccy]; !ok {
			return fmt.Errorf("demo: no rate for currency %s", ccy)
		}
	}
	for ccy := range m.Rates {
		if _, ok := m.FXSpots[ccy]; !ok && ccy != m.BaseCurrency {
			return fmt.Errorf("demo: no fx spot for currency %s", ccy)
		}
	}
	if m.Equity <= 0 {
		return fmt.Errorf("demo: equity spot must be positive")
	}
	if m.MeanReversion < 0 || m.RateVol < 0 || m.FXVol < 0 || m.EquityVol < 0 {
		return fmt.Errorf("demo: mean reversion and volatilities must be >= 0")
	}
	if m.Correlation <= -1 || m.Correlation >= 1 {
		return fmt.Errorf("demo: correlation %v outside (-1, 1)", m.Correlation)
	}
	return nil
}

func (m Model) equityName() string {
	if m.EquityName == "" {
		return "IDX"
	}
	return m.EquityName
}

// currencies returns the rate currencies in sorted order.
func (m Model) currencies() []string {
	return slices.Sorted(maps.Keys(m.Rates))
}

// foreign returns the non-base currencies in sorted order.
func (m Model) foreign() []string {
	return slices.Sorted(maps.Keys(m.FXSpots))
}
