package sensitivity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/riskcube/cube"
	"github.com/rustyeddy/riskcube/dategrid"
)

var (
	asof = dategrid.NewDate(2024, time.January, 3)
	kEUR = RiskFactorKey{Type: "DiscountCurve", Name: "EUR", Index: 0}
	kUSD = RiskFactorKey{Type: "DiscountCurve", Name: "USD", Index: 0}
	kFX  = RiskFactorKey{Type: "FXSpot", Name: "EURUSD", Index: 0}
)

// newCube builds a one-trade cube with base as T0 and row values in catalog
// order. Row 0 also holds base.
func newCube(t *testing.T, base float64, descs []ScenarioDescription, rows map[ScenarioDescription]float64) cube.NPVCube {
	t.Helper()
	c, err := cube.NewDoublePrecision(asof, []string{"T1"}, []time.Time{asof}, len(descs), 1)
	require.NoError(t, err)
	require.NoError(t, c.SetT0(base, 0, 0))
	for k, d := range descs {
		v := base
		if rv, ok := rows[d]; ok {
			v = rv
		}
		require.NoError(t, c.Set(v, 0, 0, k, 0))
	}
	return c
}

func shifts(keys ...RiskFactorKey) map[RiskFactorKey]float64 {
	m := make(map[RiskFactorKey]float64)
	for _, k := range keys {
		m[k] = 0.0001
	}
	return m
}

func TestDeltaGammaCrossGamma(t *testing.T) {
	t.Parallel()

	descs := BuildCatalog([]RiskFactorKey{kEUR, kUSD}, AllPairs)
	require.Len(t, descs, 6)

	c := newCube(t, 100, descs, map[ScenarioDescription]float64{
		UpScenario(kEUR):          101,
		DownScenario(kEUR):        99,
		UpScenario(kUSD):          102,
		DownScenario(kUSD):        97,
		CrossScenario(kEUR, kUSD): 104,
	})
	s, err := New(c, descs, shifts(kEUR, kUSD))
	require.NoError(t, err)

	npv, err := s.NPV("T1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, npv)

	delta, err := s.Delta("T1", kEUR)
	require.NoError(t, err)
	assert.Equal(t, 1.0, delta)

	gamma, err := s.Gamma("T1", kEUR)
	require.NoError(t, err)
	assert.Equal(t, 0.0, gamma)

	gamma, err = s.Gamma("T1", kUSD)
	require.NoError(t, err)
	assert.Equal(t, -1.0, gamma)

	cg, err := s.CrossGamma("T1", kEUR, kUSD)
	require.NoError(t, err)
	assert.Equal(t, 1.0, cg)

	rev, err := s.CrossGamma("T1", kUSD, kEUR)
	require.NoError(t, err)
	assert.Equal(t, cg, rev)

	v, err := s.ScenarioNPV("T1", DownScenario(kUSD))
	require.NoError(t, err)
	assert.Equal(t, 97.0, v)

	shift, err := s.ShiftSize(kUSD)
	require.NoError(t, err)
	assert.Equal(t, 0.0001, shift)

	assert.Equal(t, []RiskFactorKey{kEUR, kUSD}, s.UpFactors())
	assert.Equal(t, []RiskFactorKey{kEUR, kUSD}, s.DownFactors())
	assert.Equal(t, [][2]RiskFactorKey{{kEUR, kUSD}}, s.CrossFactors())
	assert.Equal(t, []string{"T1"}, s.TradeIDs())
}

func TestKeyNotFound(t *testing.T) {
	t.Parallel()

	descs := BuildCatalog([]RiskFactorKey{kEUR}, nil)
	s, err := New(newCube(t, 100, descs, nil), descs, shifts(kEUR))
	require.NoError(t, err)

	_, err = s.NPV("T2")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	_, err = s.Delta("T1", kUSD)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	_, err = s.Gamma("T1", kFX)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	_, err = s.CrossGamma("T1", kEUR, kUSD)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	_, err = s.ScenarioNPV("T1", UpScenario(kUSD))
	assert.ErrorIs(t, err, ErrKeyNotFound)
	_, err = s.ShiftSize(kUSD)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestNewRejectsBadCatalogs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		descs  []ScenarioDescription
		shifts map[RiskFactorKey]float64
	}{
		{
			name:   "up without down",
			descs:  []ScenarioDescription{BaseScenario(), UpScenario(kEUR)},
			shifts: shifts(kEUR),
		},
		{
			name:   "first row not base",
			descs:  []ScenarioDescription{UpScenario(kEUR), BaseScenario(), DownScenario(kEUR)},
			shifts: shifts(kEUR),
		},
		{
			name:   "second base",
			descs:  []ScenarioDescription{BaseScenario(), UpScenario(kEUR), DownScenario(kEUR), BaseScenario()},
			shifts: shifts(kEUR),
		},
		{
			name:   "duplicate up",
			descs:  []ScenarioDescription{BaseScenario(), UpScenario(kEUR), UpScenario(kEUR), DownScenario(kEUR)},
			shifts: shifts(kEUR),
		},
		{
			name:   "down set differs",
			descs:  []ScenarioDescription{BaseScenario(), UpScenario(kEUR), DownScenario(kUSD)},
			shifts: shifts(kEUR, kUSD),
		},
		{
			name:   "missing shift",
			descs:  []ScenarioDescription{BaseScenario(), UpScenario(kEUR), DownScenario(kEUR)},
			shifts: nil,
		},
		{
			name: "duplicate cross in reverse order",
			descs: []ScenarioDescription{
				BaseScenario(), UpScenario(kEUR), UpScenario(kUSD), DownScenario(kEUR), DownScenario(kUSD),
				CrossScenario(kEUR, kUSD), CrossScenario(kUSD, kEUR),
			},
			shifts: shifts(kEUR, kUSD),
		},
		{
			name: "cross without up",
			descs: []ScenarioDescription{
				BaseScenario(), UpScenario(kEUR), DownScenario(kEUR), CrossScenario(kEUR, kFX),
			},
			shifts: shifts(kEUR),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(newCube(t, 100, tt.descs, nil), tt.descs, tt.shifts)
			assert.ErrorIs(t, err, ErrInvalidCatalog)
		})
	}
}

func TestNewRejectsInfiniteShift(t *testing.T) {
	t.Parallel()

	descs := BuildCatalog([]RiskFactorKey{kEUR}, nil)
	inf := map[RiskFactorKey]float64{kEUR: 1 / zero()}
	_, err := New(newCube(t, 1, descs, nil), descs, inf)
	assert.ErrorIs(t, err, ErrInvalidCatalog)
}

func zero() float64 { return 0 }

func TestNewRejectsSampleMismatch(t *testing.T) {
	t.Parallel()

	descs := BuildCatalog([]RiskFactorKey{kEUR}, nil)
	c := newCube(t, 1, descs, nil)
	_, err := New(c, descs[:2], shifts(kEUR))
	assert.ErrorIs(t, err, ErrInvalidCatalog)
}

func TestReports(t *testing.T) {
	t.Parallel()

	descs := BuildCatalog([]RiskFactorKey{kEUR, kUSD}, AllPairs)
	c := newCube(t, 100, descs, map[ScenarioDescription]float64{
		UpScenario(kEUR):          101,
		DownScenario(kEUR):        99,
		CrossScenario(kEUR, kUSD): 104,
	})
	s, err := New(c, descs, shifts(kEUR, kUSD))
	require.NoError(t, err)

	scen, err := ScenarioRecords(s, 0.5)
	require.NoError(t, err)
	require.Len(t, scen, 3)
	assert.Equal(t, ScenarioRecord{TradeID: "T1", Factor: kEUR.String(), Kind: Up, BaseNPV: 100, ScenarioNPV: 101, Difference: 1}, scen[0])
	assert.Equal(t, Down, scen[1].Kind)
	assert.Equal(t, kEUR.String()+":"+kUSD.String(), scen[2].Factor)

	sens, err := SensitivityRecords(s, 0.5)
	require.NoError(t, err)
	require.Len(t, sens, 1)
	assert.Equal(t, kEUR.String(), sens[0].Factor)
	assert.Equal(t, 1.0, sens[0].Delta)
	assert.Equal(t, 0.0001, sens[0].ShiftSize)

	cross, err := CrossGammaRecords(s, 0)
	require.NoError(t, err)
	require.Len(t, cross, 1)
	assert.Equal(t, 3.0, cross[0].CrossGamma)

	cross, err = CrossGammaRecords(s, 3)
	require.NoError(t, err)
	assert.Empty(t, cross)
}
