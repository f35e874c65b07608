// Package exposure aggregates simulated netting set values into exposure
// profiles, optionally net of collateral.
package exposure

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/rustyeddy/riskcube/collateral"
	"github.com/rustyeddy/riskcube/cube"
)

var ErrShape = errors.New("exposure: mismatched dimensions")

// Point is the exposure on one date across all scenarios.
type Point struct {
	Date time.Time
	EE   float64 // mean value
	EPE  float64 // mean of positive part
	ENE  float64 // mean of negative part
	PFE  float64 // quantile of positive part
}

// Profile computes exposure statistics per date from values[dateIdx][scenario].
// quantile is the PFE confidence level in (0, 1).
func Profile(dates []time.Time, values [][]float64, quantile float64) ([]Point, error) {
	if len(dates) != len(values) {
		return nil, fmt.Errorf("%w: %d dates, %d value rows", ErrShape, len(dates), len(values))
	}
	if quantile <= 0 || quantile >= 1 {
		return nil, fmt.Errorf("exposure: quantile %v outside (0, 1)", quantile)
	}

	out := make([]Point, len(dates))
	for j, row := range values {
		if len(row) == 0 {
			return nil, fmt.Errorf("%w: no scenarios on %s", ErrShape, dates[j].Format(time.DateOnly))
		}
		pos := make([]float64, len(row))
		neg := make([]float64, len(row))
		for k, v := range row {
			pos[k] = math.Max(v, 0)
			neg[k] = math.Min(v, 0)
		}
		slices.Sort(pos)
		out[j] = Point{
			Date: dates[j],
			EE:   stat.Mean(row, nil),
			EPE:  stat.Mean(pos, nil),
			ENE:  stat.Mean(neg, nil),
			PFE:  stat.Quantile(quantile, stat.Empirical, pos, nil),
		}
	}
	return out, nil
}

// NettingSetValues sums the given cube rows at depth into values[dateIdx][sample].
func NettingSetValues(c cube.NPVCube, trades []int, depth int) ([][]float64, error) {
	out := make([][]float64, c.NumDates())
	row := make([]float64, c.Samples())
	for j := range out {
		out[j] = make([]float64, c.Samples())
		for _, i := range trades {
			for k := range row {
				v, err := c.Get(i, j, k, depth)
				if err != nil {
					return nil, err
				}
				row[k] = v
			}
			floats.Add(out[j], row)
		}
	}
	return out, nil
}

// NettingSetT0 sums the T0 values of the given cube rows at depth.
func NettingSetT0(c cube.NPVCube, trades []int, depth int) (float64, error) {
	var sum float64
	for _, i := range trades {
		v, err := c.GetT0(i, depth)
		if err != nil {
			return 0, err
		}
		sum += v
	}
	return sum, nil
}

// CollateralizedValues subtracts from each scenario value the collateral
// balance in force on its date. accounts holds one account per scenario.
func CollateralizedValues(dates []time.Time, values [][]float64, accounts []*collateral.Account) ([][]float64, error) {
	if len(dates) != len(values) {
		return nil, fmt.Errorf("%w: %d dates, %d value rows", ErrShape, len(dates), len(values))
	}
	out := make([][]float64, len(values))
	for j, row := range values {
		if len(row) != len(accounts) {
			return nil, fmt.Errorf("%w: %d scenarios, %d accounts", ErrShape, len(row), len(accounts))
		}
		out[j] = make([]float64, len(row))
		for k, v := range row {
			bal, err := accounts[k].AccountBalance(dates[j])
			if err != nil {
				return nil, err
			}
			out[j][k] = v - bal
		}
	}
	return out, nil
}

// Peak returns the point with the largest PFE.
func Peak(points []Point) (Point, bool) {
	if len(points) == 0 {
		return Point{}, false
	}
	pfe := make([]float64, len(points))
	for i, p := range points {
		pfe[i] = p.PFE
	}
	return points[floats.MaxIdx(pfe)], true
}
