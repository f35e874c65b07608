package exposure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/riskcube/collateral"
	"github.com/rustyeddy/riskcube/cube"
	"github.com/rustyeddy/riskcube/dategrid"
)

var (
	asof  = dategrid.NewDate(2024, time.January, 3)
	dates = []time.Time{
		dategrid.NewDate(2024, time.April, 3),
		dategrid.NewDate(2024, time.July, 3),
	}
)

func TestProfile(t *testing.T) {
	t.Parallel()

	values := [][]float64{
		{-2, -1, 1, 2},
		{10, 20, 30, 40},
	}
	points, err := Profile(dates, values, 0.75)
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, 0.0, points[0].EE)
	assert.Equal(t, 0.75, points[0].EPE)
	assert.Equal(t, -0.75, points[0].ENE)
	assert.Equal(t, 1.0, points[0].PFE)

	assert.Equal(t, 25.0, points[1].EE)
	assert.Equal(t, 25.0, points[1].EPE)
	assert.Equal(t, 0.0, points[1].ENE)
	assert.Equal(t, 30.0, points[1].PFE)

	peak, ok := Peak(points)
	require.True(t, ok)
	assert.Equal(t, dates[1], peak.Date)

	_, err = Profile(dates, values[:1], 0.9)
	assert.ErrorIs(t, err, ErrShape)
	_, err = Profile(dates, values, 1)
	assert.Error(t, err)
}

func TestNettingSetValues(t *testing.T) {
	t.Parallel()

	c, err := cube.NewDoublePrecision(asof, []string{"A", "B", "C"}, dates, 2, 2)
	require.NoError(t, err)
	for i := range 3 {
		require.NoError(t, c.SetT0(float64(i+1), i, 0))
		for j := range 2 {
			for k := range 2 {
				require.NoError(t, c.Set(float64(100*i+10*j+k), i, j, k, 0))
				require.NoError(t, c.Set(-1, i, j, k, 1))
			}
		}
	}

	got, err := NettingSetValues(c, []int{0, 2}, 0)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{200, 202}, {220, 222}}, got)

	t0, err := NettingSetT0(c, []int{0, 2}, 0)
	require.NoError(t, err)
	assert.Equal(t, 4.0, t0)

	_, err = NettingSetValues(c, []int{3}, 0)
	assert.ErrorIs(t, err, cube.ErrOutOfRange)
}

func TestCollateralizedValues(t *testing.T) {
	t.Parallel()

	held := collateral.NewAccount(collateral.CSA{}, 50, asof)
	posted := collateral.NewAccount(collateral.CSA{}, -20, asof)

	got, err := CollateralizedValues(dates, [][]float64{{100, -30}, {40, 0}}, []*collateral.Account{held, posted})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{50, -10}, {-10, 20}}, got)

	_, err = CollateralizedValues(dates, [][]float64{{1}, {2}}, []*collateral.Account{held, posted})
	assert.ErrorIs(t, err, ErrShape)
}
