package valuation

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/riskcube/cube"
	"github.com/rustyeddy/riskcube/dategrid"
	"github.com/rustyeddy/riskcube/logging"
	"github.com/rustyeddy/riskcube/sensitivity"
)

// indexCalculator writes tradeIdx*1000 + dateIdx + sample/1e6 and counts
// its lifecycle calls.
type indexCalculator struct {
	inits     atomic.Int32
	scenarios atomic.Int32
	calls     atomic.Int32
}

func (c *indexCalculator) Name() string { return "index" }

func (c *indexCalculator) Init(Portfolio, SimMarket) error {
	c.inits.Add(1)
	return nil
}

func (c *indexCalculator) InitScenario() error {
	c.scenarios.Add(1)
	return nil
}

func (c *indexCalculator) Calculate(_ Trade, tradeIdx int, _ SimMarket, out cube.NPVCube, _ time.Time, dateIdx, sample int, _ bool) error {
	c.calls.Add(1)
	return out.Set(float64(tradeIdx*1000+dateIdx)+float64(sample)/1e6, tradeIdx, dateIdx, sample, 0)
}

func (c *indexCalculator) CalculateT0(_ Trade, tradeIdx int, _ SimMarket, out cube.NPVCube) error {
	return out.SetT0(float64(tradeIdx*1000)-1, tradeIdx, 0)
}

func TestBuildCubeFillsEveryCell(t *testing.T) {
	t.Parallel()

	g := quarterly(t)
	require.Equal(t, 4, g.Size())

	p := Portfolio{stubTrade{id: "A", ccy: "EUR"}, stubTrade{id: "B", ccy: "EUR"}}
	m := newStubMarket(func(Trade, time.Time, int) (float64, error) { return 0, nil })
	const samples = 25

	c := newCube(t, g, p, samples, 1)
	calc := &indexCalculator{}
	e := &Engine{Grid: g, Market: m, Workers: 3, Logger: logging.Discard()}
	require.NoError(t, e.BuildCube(context.Background(), p, c, calc))

	for i := range 2 {
		t0, err := c.GetT0(i, 0)
		require.NoError(t, err)
		assert.Equal(t, float64(i*1000)-1, t0)
		for j := range 4 {
			for k := range samples {
				v, err := c.Get(i, j, k, 0)
				require.NoError(t, err)
				assert.Equal(t, float64(i*1000+j)+float64(k)/1e6, v)
			}
		}
	}

	assert.Equal(t, int32(1), calc.inits.Load())
	assert.Equal(t, int32(1+4*samples), calc.scenarios.Load())
	assert.Equal(t, int32(2*4*samples), calc.calls.Load())
	assert.Equal(t, 4*samples, m.updates)
	assert.Equal(t, 1, m.resets)
}

func TestBuildCubeDryRun(t *testing.T) {
	t.Parallel()

	g := quarterly(t)
	p := Portfolio{stubTrade{id: "A", ccy: "EUR"}, stubTrade{id: "B", ccy: "EUR"}}
	m := newStubMarket(func(Trade, time.Time, int) (float64, error) { return 0, nil })

	c := newCube(t, g, p, 12, 1)
	e := &Engine{Grid: g, Market: m, DryRun: true, Logger: logging.Discard()}
	require.NoError(t, e.BuildCube(context.Background(), p, c, &indexCalculator{}))
	assert.Equal(t, 4, m.updates)

	v, err := c.Get(1, 2, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1002.0, v)

	v, err = c.Get(1, 2, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 999.0+float64(1+2+0+3), v)

	v, err = c.Get(1, 2, 11, 0)
	require.NoError(t, err)
	assert.Equal(t, 999.0, v)
}

func TestBuildCubeStopsOnCancel(t *testing.T) {
	t.Parallel()

	g := quarterly(t)
	p := Portfolio{stubTrade{id: "A", ccy: "EUR"}}
	m := newStubMarket(func(Trade, time.Time, int) (float64, error) { return 0, nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := &Engine{Grid: g, Market: m, Logger: logging.Discard()}
	err := e.BuildCube(ctx, p, newCube(t, g, p, 2, 1), &indexCalculator{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, m.updates)
}

func TestBuildCubeRejectsMismatchedCube(t *testing.T) {
	t.Parallel()

	g := quarterly(t)
	p := Portfolio{stubTrade{id: "A", ccy: "EUR"}, stubTrade{id: "B", ccy: "EUR"}}
	m := newStubMarket(func(Trade, time.Time, int) (float64, error) { return 0, nil })
	e := &Engine{Grid: g, Market: m, Logger: logging.Discard()}
	ctx := context.Background()

	wrongIDs, err := cube.NewDoublePrecision(asof, []string{"B", "A"}, g.ValuationDates(), 1, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, e.BuildCube(ctx, p, wrongIDs, &indexCalculator{}), ErrDimension)

	wrongDates, err := cube.NewDoublePrecision(asof, p.IDs(), g.ValuationDates()[:3], 1, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, e.BuildCube(ctx, p, wrongDates, &indexCalculator{}), ErrDimension)

	assert.Error(t, e.BuildCube(ctx, Portfolio{stubTrade{id: "A"}}, newCube(t, g, Portfolio{stubTrade{id: "A"}}, 1, 1), &indexCalculator{}))
	assert.Error(t, e.BuildCube(ctx, p, newCube(t, g, p, 1, 1)))
}

// quadMarket prices every trade as 50·x², where x is shifted up or down by
// the scenario selected in Update.
type quadMarket struct {
	stubMarket
	catalog []sensitivity.ScenarioDescription
	x0      float64
	shift   float64
	x       float64
}

func (m *quadMarket) Update(d time.Time, sample int) error {
	m.x = m.x0
	switch m.catalog[sample].Kind {
	case sensitivity.Up:
		m.x += m.shift
	case sensitivity.Down:
		m.x -= m.shift
	case sensitivity.Cross:
		m.x += 2 * m.shift
	}
	return nil
}

func (m *quadMarket) Reset() error {
	m.x = m.x0
	return nil
}

func (m *quadMarket) NPV(Trade) (float64, error) { return 50 * m.x * m.x, nil }

func TestEndToEndGridCubeSensitivity(t *testing.T) {
	t.Parallel()

	g := quarterly(t)
	p := Portfolio{stubTrade{id: "A", ccy: "EUR"}, stubTrade{id: "B", ccy: "EUR"}}
	m := newStubMarket(func(Trade, time.Time, int) (float64, error) { return 0, nil })

	c := newCube(t, g, p, 4, 1)
	e := &Engine{Grid: g, Market: m, Logger: logging.Discard()}
	require.NoError(t, e.BuildCube(context.Background(), p, c, &indexCalculator{}))
	for i := range 2 {
		for j := range 4 {
			for k := range 4 {
				v, err := c.Get(i, j, k, 0)
				require.NoError(t, err)
				assert.Equal(t, float64(i*1000+j)+float64(k)/1e6, v)
			}
		}
	}

	key := sensitivity.RiskFactorKey{Type: "FXSpot", Name: "EURUSD", Index: 0}
	catalog := sensitivity.BuildCatalog([]sensitivity.RiskFactorKey{key}, nil)
	const shift = 0.0001

	qm := &quadMarket{stubMarket: *newStubMarket(nil), catalog: catalog, x0: 1.2, shift: shift, x: 1.2}
	sc, err := cube.NewDoublePrecision(asof, p.IDs(), []time.Time{asof}, len(catalog), 1)
	require.NoError(t, err)

	se := &Engine{Market: qm, Logger: logging.Discard()}
	require.NoError(t, se.BuildScenarioCube(context.Background(), p, sc, NewNPVCalculator(0, 0)))

	s, err := sensitivity.New(sc, catalog, map[sensitivity.RiskFactorKey]float64{key: shift})
	require.NoError(t, err)

	for _, id := range p.IDs() {
		npv, err := s.NPV(id)
		require.NoError(t, err)
		assert.InDelta(t, 50*1.2*1.2, npv, 1e-12)

		gamma, err := s.Gamma(id, key)
		require.NoError(t, err)
		size, err := s.ShiftSize(key)
		require.NoError(t, err)
		assert.InDelta(t, 100.0, gamma/(size*size), 1e-3)

		delta, err := s.Delta(id, key)
		require.NoError(t, err)
		assert.InDelta(t, 120.0, delta/size, 1e-2)
	}
}

func TestBuildScenarioCubeNeedsAsofDate(t *testing.T) {
	t.Parallel()

	p := Portfolio{stubTrade{id: "A", ccy: "EUR"}}
	m := newStubMarket(func(Trade, time.Time, int) (float64, error) { return 1, nil })
	c, err := cube.NewDoublePrecision(asof, p.IDs(), []time.Time{dategrid.NewDate(2024, time.February, 1)}, 1, 1)
	require.NoError(t, err)

	e := &Engine{Market: m, Logger: logging.Discard()}
	assert.ErrorIs(t, e.BuildScenarioCube(context.Background(), p, c, NewNPVCalculator(0, 0)), ErrDimension)
}
