package valuation

import (
	"errors"
	"time"

	"github.com/rustyeddy/riskcube/dategrid"
)

var asof = dategrid.NewDate(2024, time.January, 3)

type stubTrade struct {
	id   string
	ccy  string
	legs []Leg
}

func (t stubTrade) ID() string          { return t.id }
func (t stubTrade) NPVCurrency() string { return t.ccy }
func (t stubTrade) Legs() []Leg         { return t.legs }

var errPricing = errors.New("pricing blew up")

// stubMarket prices trades with npv and moves FX per Update through fxAt.
// Update and Reset run sequentially; reads between them are concurrent.
type stubMarket struct {
	date   time.Time
	sample int

	npv       func(t Trade, d time.Time, sample int) (float64, error)
	fx        map[string]float64
	fxAt      func(ccy string, d time.Time, sample int) float64
	numeraire float64

	updates int
	resets  int
}

func newStubMarket(npv func(Trade, time.Time, int) (float64, error)) *stubMarket {
	return &stubMarket{
		date:      asof,
		sample:    -1,
		npv:       npv,
		fx:        map[string]float64{"EUR": 1},
		numeraire: 1,
	}
}

func (m *stubMarket) Asof() time.Time      { return asof }
func (m *stubMarket) BaseCurrency() string { return "EUR" }
func (m *stubMarket) Label() string        { return "stub" }
func (m *stubMarket) Numeraire() float64   { return m.numeraire }

func (m *stubMarket) Update(d time.Time, sample int) error {
	m.date, m.sample = d, sample
	m.updates++
	return nil
}

func (m *stubMarket) Reset() error {
	m.date, m.sample = asof, -1
	m.resets++
	return nil
}

func (m *stubMarket) NPV(t Trade) (float64, error) {
	return m.npv(t, m.date, m.sample)
}

func (m *stubMarket) FXRate(ccy string) (float64, error) {
	if m.fxAt != nil {
		return m.fxAt(ccy, m.date, m.sample), nil
	}
	rate, ok := m.fx[ccy]
	if !ok {
		return 0, errors.New("no fx rate for " + ccy)
	}
	return rate, nil
}
