package demo

import (
	"fmt"
	"time"

	"github.com/rustyeddy/riskcube/dategrid"
	"github.com/rustyeddy/riskcube/sensitivity"
	"github.com/rustyeddy/riskcube/valuation"
)

// Risk factor types understood by the demo market. Discount curve shifts are
// absolute rate moves, spot shifts are relative.
const (
	DiscountCurve = "DiscountCurve"
	FXSpot        = "FXSpot"
	EquitySpot    = "EquitySpot"
)

// Factors lists every risk factor of the model: one discount curve per
// currency, one FX spot per foreign currency and the equity index.
func Factors(m Model) []sensitivity.RiskFactorKey {
	var out []sensitivity.RiskFactorKey
	for _, ccy := range m.currencies() {
		out = append(out, sensitivity.RiskFactorKey{Type: DiscountCurve, Name: ccy})
	}
	for _, ccy := range m.foreign() {
		out = append(out, sensitivity.RiskFactorKey{Type: FXSpot, Name: ccy + m.BaseCurrency})
	}
	return append(out, sensitivity.RiskFactorKey{Type: EquitySpot, Name: m.equityName()})
}

var _ valuation.SimMarket = (*ScenarioMarket)(nil)

// ScenarioMarket revalues the T0 market under the shifted scenarios of a
// catalog. Update(asof, k) moves it to catalog row k.
type ScenarioMarket struct {
	model  Model
	asof   time.Time
	dc     dategrid.DayCounter
	descs  []sensitivity.ScenarioDescription
	shifts map[sensitivity.RiskFactorKey]float64

	t0  state
	cur state
}

func NewScenarioMarket(model Model, asof time.Time, dc dategrid.DayCounter, descs []sensitivity.ScenarioDescription, shifts map[sensitivity.RiskFactorKey]float64) (*ScenarioMarket, error) {
	if err := model.Validate(); err != nil {
		return nil, err
	}
	if dc == nil {
		dc = dategrid.Actual365Fixed{}
	}
	asof = dategrid.Truncate(asof)
	m := &ScenarioMarket{
		model:  model,
		asof:   asof,
		dc:     dc,
		descs:  descs,
		shifts: shifts,
		t0:     initialState(model, asof),
	}
	// every scenario must apply cleanly before any valuation starts
	for _, d := range descs {
		if _, err := m.apply(d); err != nil {
			return nil, err
		}
	}
	m.cur = m.t0.clone()
	return m, nil
}

func (m *ScenarioMarket) Asof() time.Time      { return m.asof }
func (m *ScenarioMarket) BaseCurrency() string { return m.model.BaseCurrency }
func (m *ScenarioMarket) Label() string        { return "demo-sensitivity" }
func (m *ScenarioMarket) Numeraire() float64   { return 1 }

func (m *ScenarioMarket) FXRate(ccy string) (float64, error) { return m.cur.fxRate(ccy) }

func (m *ScenarioMarket) NPV(t valuation.Trade) (float64, error) { return m.cur.npv(m.dc, t) }

func (m *ScenarioMarket) Update(d time.Time, sample int) error {
	if !dategrid.Truncate(d).Equal(m.asof) {
		return fmt.Errorf("demo: scenario market only values on asof, got %s", d.Format(time.DateOnly))
	}
	if sample < 0 || sample >= len(m.descs) {
		return fmt.Errorf("demo: scenario %d outside catalog of %d", sample, len(m.descs))
	}
	s, err := m.apply(m.descs[sample])
	if err != nil {
		return err
	}
	m.cur = s
	return nil
}

func (m *ScenarioMarket) Reset() error {
	m.cur = m.t0.clone()
	return nil
}

func (m *ScenarioMarket) apply(d sensitivity.ScenarioDescription) (state, error) {
	s := m.t0.clone()
	switch d.Kind {
	case sensitivity.Base:
		return s, nil
	case sensitivity.Up:
		return s, m.shift(&s, d.Key1, 1)
	case sensitivity.Down:
		return s, m.shift(&s, d.Key1, -1)
	case sensitivity.Cross:
		if err := m.shift(&s, d.Key1, 1); err != nil {
			return s, err
		}
		return s, m.shift(&s, d.Key2, 1)
	}
	return s, fmt.Errorf("demo: unknown scenario kind %s", d.Kind)
}

func (m *ScenarioMarket) shift(s *state, k sensitivity.RiskFactorKey, sign float64) error {
	size, ok := m.shifts[k]
	if !ok {
		return fmt.Errorf("demo: no shift size for %s", k)
	}
	h := sign * size

	switch k.Type {
	case DiscountCurve:
		if _, ok := s.rates[k.Name]; !ok {
			return fmt.Errorf("demo: unknown discount curve %s", k.Name)
		}
		s.rates[k.Name] += h
		return nil
	case FXSpot:
		for ccy := range s.fx {
			if ccy != s.base && ccy+s.base == k.Name {
				s.fx[ccy] *= 1 + h
				return nil
			}
		}
		return fmt.Errorf("demo: unknown fx spot %s", k.Name)
	case EquitySpot:
		if k.Name != m.model.equityName() {
			return fmt.Errorf("demo: unknown equity %s", k.Name)
		}
		s.equity *= 1 + h
		return nil
	}
	return fmt.Errorf("demo: unsupported risk factor type %s", k.Type)
}
