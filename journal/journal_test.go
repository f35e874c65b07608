package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/riskcube/collateral"
	"github.com/rustyeddy/riskcube/cube"
	"github.com/rustyeddy/riskcube/dategrid"
	"github.com/rustyeddy/riskcube/exposure"
	"github.com/rustyeddy/riskcube/sensitivity"
)

var (
	asof = dategrid.NewDate(2024, time.January, 3)
	kEUR = sensitivity.RiskFactorKey{Type: "DiscountCurve", Name: "EUR", Index: 0}
	kUSD = sensitivity.RiskFactorKey{Type: "DiscountCurve", Name: "USD", Index: 0}
)

// sensiCube has one trade with base 100, EUR delta 1 gamma 0, USD delta 2
// gamma -1 and cross gamma 1.
func sensiCube(t *testing.T) *sensitivity.Cube {
	t.Helper()

	descs := sensitivity.BuildCatalog([]sensitivity.RiskFactorKey{kEUR, kUSD}, sensitivity.AllPairs)
	rows := map[sensitivity.ScenarioDescription]float64{
		sensitivity.UpScenario(kEUR):          101,
		sensitivity.DownScenario(kEUR):        99,
		sensitivity.UpScenario(kUSD):          102,
		sensitivity.DownScenario(kUSD):        97,
		sensitivity.CrossScenario(kEUR, kUSD): 104,
	}

	c, err := cube.NewDoublePrecision(asof, []string{"T1"}, []time.Time{asof}, len(descs), 1)
	require.NoError(t, err)
	require.NoError(t, c.SetT0(100, 0, 0))
	for k, d := range descs {
		v := 100.0
		if rv, ok := rows[d]; ok {
			v = rv
		}
		require.NoError(t, c.Set(v, 0, 0, k, 0))
	}

	s, err := sensitivity.New(c, descs, map[sensitivity.RiskFactorKey]float64{kEUR: 0.0001, kUSD: 0.0001})
	require.NoError(t, err)
	return s
}

func accounts(t *testing.T) []*collateral.Account {
	t.Helper()

	var out []*collateral.Account
	for k := range 2 {
		a := collateral.NewAccount(collateral.CSA{}, 100+float64(k), asof)
		require.NoError(t, a.CloseAccount(asof.AddDate(0, 0, 10)))
		out = append(out, a)
	}
	return out
}

func profile() []exposure.Point {
	return []exposure.Point{
		{Date: asof.AddDate(0, 3, 0), EE: 1.005, EPE: 2.5, ENE: -1.5, PFE: 7.125},
		{Date: asof.AddDate(0, 6, 0), EE: 2, EPE: 3, ENE: -1, PFE: 9.5},
	}
}
