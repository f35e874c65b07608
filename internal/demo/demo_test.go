package demo

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/riskcube/cube"
	"github.com/rustyeddy/riskcube/dategrid"
	"github.com/rustyeddy/riskcube/sensitivity"
	"github.com/rustyeddy/riskcube/valuation"
)

var asof = dategrid.NewDate(2024, time.January, 3)

func flatModel() Model {
	m := DefaultModel()
	m.MeanReversion = 0
	m.RateVol = 0
	m.FXVol = 0
	m.EquityVol = 0
	return m
}

func portfolio(t *testing.T, m Model) valuation.Portfolio {
	t.Helper()
	p, err := BuildPortfolio(asof, m.BaseCurrency, DefaultTrades(), nil)
	require.NoError(t, err)
	return p
}

func TestModelValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*Model)
	}{
		{"no base", func(m *Model) { m.BaseCurrency = "" }},
		{"no base rate", func(m *Model) { delete(m.Rates, "EUR") }},
		{"spot without rate", func(m *Model) { m.FXSpots["JPY"] = 0.006 }},
		{"rate without spot", func(m *Model) { m.Rates["CHF"] = 0.01 }},
		{"negative spot", func(m *Model) { m.FXSpots["USD"] = -1 }},
		{"zero equity", func(m *Model) { m.Equity = 0 }},
		{"negative vol", func(m *Model) { m.FXVol = -0.1 }},
		{"correlation", func(m *Model) { m.Correlation = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := DefaultModel()
			tt.modify(&m)
			assert.Error(t, m.Validate())
		})
	}
	assert.NoError(t, DefaultModel().Validate())
}

func TestBuildPortfolio(t *testing.T) {
	t.Parallel()

	p := portfolio(t, DefaultModel())
	require.Len(t, p, 3)
	assert.Equal(t, []string{"BOND_EUR_5Y", "FXFWD_USDEUR_1Y", "EQFWD_2Y"}, p.IDs())

	bond := p[0].(*CashflowTrade)
	flows := bond.Legs()[0].Flows
	require.Len(t, flows, 5)
	assert.True(t, flows[4].Date().Equal(dategrid.NewDate(2029, time.January, 3)))
	last, err := flows[4].Amount()
	require.NoError(t, err)
	assert.Greater(t, last, 1_000_000.0)

	fwd := p[1].(*CashflowTrade)
	require.Len(t, fwd.Legs(), 2)
	assert.Equal(t, "USD", fwd.Legs()[0].Currency)
	assert.False(t, fwd.Legs()[0].Payer)
	assert.True(t, fwd.Legs()[1].Payer)

	assert.Equal(t, "EUR", p[2].NPVCurrency())
	assert.True(t, Maturity(p).Equal(dategrid.NewDate(2029, time.January, 3)))
}

func TestBuildPortfolioRejects(t *testing.T) {
	t.Parallel()

	dup := []TradeSpec{DefaultTrades()[0], DefaultTrades()[0]}
	_, err := BuildPortfolio(asof, "EUR", dup, nil)
	assert.Error(t, err)

	bad := DefaultTrades()[:1]
	bad[0].Type = "swaption"
	_, err = BuildPortfolio(asof, "EUR", bad, nil)
	assert.Error(t, err)
}

func TestMarketPathsAreReproducible(t *testing.T) {
	t.Parallel()

	m1, err := NewMarket(DefaultModel(), asof, nil)
	require.NoError(t, err)
	m2, err := NewMarket(DefaultModel(), asof, nil)
	require.NoError(t, err)

	p := portfolio(t, DefaultModel())
	d1 := dategrid.NewDate(2024, time.April, 3)
	d2 := dategrid.NewDate(2024, time.July, 3)

	// m1 visits sample 0 first, m2 jumps straight to sample 1
	require.NoError(t, m1.Update(d1, 0))
	require.NoError(t, m1.Update(d2, 0))
	require.NoError(t, m1.Update(d1, 1))
	require.NoError(t, m1.Update(d2, 1))

	require.NoError(t, m2.Update(d1, 1))
	require.NoError(t, m2.Update(d2, 1))

	for _, tr := range p {
		v1, err := m1.NPV(tr)
		require.NoError(t, err)
		v2, err := m2.NPV(tr)
		require.NoError(t, err)
		assert.Equal(t, v1, v2, tr.ID())
	}
	assert.Equal(t, m1.Numeraire(), m2.Numeraire())

	require.NoError(t, m1.Reset())
	assert.Equal(t, 1.0, m1.Numeraire())
	assert.Error(t, m1.Update(asof.AddDate(0, 0, -1), 0))
}

func TestMarketRejectsBadCorrelation(t *testing.T) {
	t.Parallel()

	m := DefaultModel()
	m.Correlation = -0.9 // six drivers need correlation > -0.2
	_, err := NewMarket(m, asof, nil)
	assert.Error(t, err)
}

// Without volatility every deflated price is a martingale, so the cube holds
// the T0 value on every date before the first payment.
func TestFlatMarketDeflatedValuesAreConstant(t *testing.T) {
	t.Parallel()

	model := flatModel()
	m, err := NewMarket(model, asof, nil)
	require.NoError(t, err)
	p := portfolio(t, model)

	g, err := dategrid.New(asof, "3,3M", nil, nil)
	require.NoError(t, err)
	c, err := cube.NewDoublePrecision(asof, p.IDs(), g.ValuationDates(), 2, 1)
	require.NoError(t, err)

	e := valuation.NewEngine(g, m)
	require.NoError(t, e.BuildCube(context.Background(), p, c, valuation.NewNPVCalculator(0, 0)))

	for i := range p {
		t0, err := c.GetT0(i, 0)
		require.NoError(t, err)
		for j := range c.NumDates() {
			for k := range c.Samples() {
				v, err := c.Get(i, j, k, 0)
				require.NoError(t, err)
				assert.InDelta(t, t0, v, 1e-6*math.Max(1, math.Abs(t0)), "%s date %d sample %d", p[i].ID(), j, k)
			}
		}
	}
}

func TestScenarioMarket(t *testing.T) {
	t.Parallel()

	model := DefaultModel()
	p := portfolio(t, model)
	factors := Factors(model)
	assert.Equal(t, []sensitivity.RiskFactorKey{
		{Type: DiscountCurve, Name: "EUR"},
		{Type: DiscountCurve, Name: "GBP"},
		{Type: DiscountCurve, Name: "USD"},
		{Type: FXSpot, Name: "GBPEUR"},
		{Type: FXSpot, Name: "USDEUR"},
		{Type: EquitySpot, Name: "SX5E"},
	}, factors)

	shifts := make(map[sensitivity.RiskFactorKey]float64)
	for _, k := range factors {
		shifts[k] = 0.01
	}
	descs := sensitivity.BuildCatalog(factors, nil)
	m, err := NewScenarioMarket(model, asof, nil, descs, shifts)
	require.NoError(t, err)

	npv := func(row int, tr valuation.Trade) float64 {
		require.NoError(t, m.Update(asof, row))
		v, err := m.NPV(tr)
		require.NoError(t, err)
		return v
	}

	bond, fxfwd, eqfwd := p[0], p[1], p[2]
	base := npv(0, bond)
	assert.Less(t, npv(1, bond), base, "EUR rates up")
	assert.Greater(t, npv(1+len(factors), bond), base, "EUR rates down")

	assert.Greater(t, npv(5, fxfwd), npv(0, fxfwd), "USDEUR up")
	assert.Less(t, npv(6, eqfwd), npv(0, eqfwd), "short equity forward, index up")

	assert.Error(t, m.Update(asof.AddDate(0, 0, 1), 0))
	assert.Error(t, m.Update(asof, len(descs)))

	_, err = NewScenarioMarket(model, asof, nil,
		[]sensitivity.ScenarioDescription{sensitivity.BaseScenario(), sensitivity.UpScenario(sensitivity.RiskFactorKey{Type: FXSpot, Name: "JPYEUR"})},
		map[sensitivity.RiskFactorKey]float64{{Type: FXSpot, Name: "JPYEUR"}: 0.01})
	assert.Error(t, err)
}
