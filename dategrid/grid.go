// Package dategrid builds the simulation time axis: tenors, dates and year
// fractions measured from the as-of date.
package dategrid

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidGrid = errors.New("dategrid: invalid grid")

// Grid is the simulation date grid. Tenors, dates and times are parallel and
// strictly increasing. After construction the grid can only shrink, apart from
// AddCloseOutDates.
type Grid struct {
	asof time.Time
	cal  Calendar
	dc   DayCounter

	tenors      []Period
	dates       []time.Time
	times       []float64
	timeGrid    []float64
	isValuation []bool
	isCloseOut  []bool
}

// New builds a grid from a grid spec: "ALPHA", "BETA", "count,spacing"
// (e.g. "40,3M"), a bare count (annual spacing) or an explicit tenor list
// ("1W,1M,3M,1Y").
func New(asof time.Time, spec string, cal Calendar, dc DayCounter) (*Grid, error) {
	if cal == nil {
		cal = NullCalendar{}
	}
	if dc == nil {
		dc = Actual365Fixed{}
	}
	asof = Truncate(asof)

	tenors, err := parseSpec(asof, strings.TrimSpace(spec), cal)
	if err != nil {
		return nil, err
	}

	g := &Grid{asof: asof, cal: cal, dc: dc, tenors: tenors}
	g.dates = make([]time.Time, len(tenors))
	for i, t := range tenors {
		if t.Unit == Days {
			g.dates[i] = Adjust(cal, t.AddTo(asof), Following)
		} else {
			g.dates[i] = Advance(cal, asof, t, Following)
		}
	}
	if !g.dates[0].After(asof) {
		return nil, fmt.Errorf("%w: grid %q: first date %s is not after asof %s",
			ErrInvalidGrid, spec, g.dates[0].Format(time.DateOnly), asof.Format(time.DateOnly))
	}
	if err := checkIncreasing(g.dates); err != nil {
		return nil, fmt.Errorf("grid %q: %w", spec, err)
	}
	g.build()
	return g, nil
}

// NewFromDates builds a grid from explicit dates. Dates must be strictly
// increasing and strictly after asof; tenors are derived as day counts.
func NewFromDates(asof time.Time, dates []time.Time, cal Calendar, dc DayCounter) (*Grid, error) {
	if cal == nil {
		cal = NullCalendar{}
	}
	if dc == nil {
		dc = Actual365Fixed{}
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("%w: no dates", ErrInvalidGrid)
	}
	asof = Truncate(asof)

	g := &Grid{asof: asof, cal: cal, dc: dc}
	g.dates = make([]time.Time, len(dates))
	for i, d := range dates {
		g.dates[i] = Truncate(d)
	}
	if !g.dates[0].After(asof) {
		return nil, fmt.Errorf("%w: first date %s is not after asof %s",
			ErrInvalidGrid, g.dates[0].Format(time.DateOnly), asof.Format(time.DateOnly))
	}
	if err := checkIncreasing(g.dates); err != nil {
		return nil, err
	}

	g.tenors = make([]Period, len(g.dates))
	for i, d := range g.dates {
		g.tenors[i] = Period{Length: DaysBetween(asof, d), Unit: Days}
	}
	g.build()
	return g, nil
}

func parseSpec(asof time.Time, spec string, cal Calendar) ([]Period, error) {
	if spec == "" {
		return nil, fmt.Errorf("%w: empty grid spec", ErrInvalidGrid)
	}

	switch strings.ToUpper(spec) {
	case "ALPHA":
		var out []Period
		for i := 1; i < 40; i++ {
			out = append(out, Period{i * 3, Months}.Normalize())
		}
		for i := 10; i < 30; i++ {
			out = append(out, Period{i, Years})
		}
		for i := 30; i <= 100; i += 5 {
			out = append(out, Period{i, Years})
		}
		return out, nil
	case "BETA":
		var out []Period
		for i := 1; i < 120; i++ {
			out = append(out, Period{i, Months}.Normalize())
		}
		for i := 40; i < 80; i++ {
			out = append(out, Period{i * 3, Months}.Normalize())
		}
		for i := 20; i < 50; i++ {
			out = append(out, Period{i, Years})
		}
		for i := 50; i <= 100; i += 5 {
			out = append(out, Period{i, Years})
		}
		return out, nil
	}

	tokens := strings.Split(spec, ",")
	count, err := strconv.Atoi(strings.TrimSpace(tokens[0]))
	if err != nil || len(tokens) > 2 {
		// explicit tenor list
		out := make([]Period, 0, len(tokens))
		for _, tok := range tokens {
			p, err := ParsePeriod(tok)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	}

	if count <= 0 {
		return nil, fmt.Errorf("%w: grid size must be positive in %q", ErrInvalidGrid, spec)
	}
	spacing := Period{1, Years}
	if len(tokens) == 2 {
		if spacing, err = ParsePeriod(tokens[1]); err != nil {
			return nil, err
		}
	}

	out := make([]Period, 0, count)
	if spacing == (Period{1, Days}) {
		// daily grids step through working days
		d := asof
		for range count {
			d = Advance(cal, d, Period{1, Days}, Following)
			out = append(out, Period{DaysBetween(asof, d), Days})
		}
		return out, nil
	}
	for i := range count {
		out = append(out, spacing.Mul(i+1))
	}
	return out, nil
}

func checkIncreasing(dates []time.Time) error {
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return fmt.Errorf("%w: dates not strictly increasing at %d (%s <= %s)", ErrInvalidGrid, i,
				dates[i].Format(time.DateOnly), dates[i-1].Format(time.DateOnly))
		}
	}
	return nil
}

// build recomputes times, the merged time grid and the date flags.
func (g *Grid) build() {
	g.times = make([]float64, len(g.dates))
	for i, d := range g.dates {
		g.times[i] = g.dc.YearFraction(g.asof, d)
	}
	g.timeGrid = mergeTimes(g.times)

	if len(g.isValuation) != len(g.dates) {
		g.isValuation = make([]bool, len(g.dates))
		g.isCloseOut = make([]bool, len(g.dates))
		for i := range g.isValuation {
			g.isValuation[i] = true
		}
	}
}

// mergeTimes returns 0 plus the given times, sorted and de-duplicated.
func mergeTimes(times []float64) []float64 {
	out := make([]float64, 0, len(times)+1)
	out = append(out, 0)
	out = append(out, times...)
	slices.Sort(out)
	return slices.CompactFunc(out, func(a, b float64) bool {
		return math.Abs(a-b) < 1e-12
	})
}

func (g *Grid) Asof() time.Time          { return g.asof }
func (g *Grid) Calendar() Calendar       { return g.cal }
func (g *Grid) DayCounter() DayCounter   { return g.dc }
func (g *Grid) Size() int                { return len(g.dates) }
func (g *Grid) Tenors() []Period         { return slices.Clone(g.tenors) }
func (g *Grid) Dates() []time.Time       { return slices.Clone(g.dates) }
func (g *Grid) Times() []float64         { return slices.Clone(g.times) }
func (g *Grid) TimeGrid() []float64      { return slices.Clone(g.timeGrid) }
func (g *Grid) IsValuationDate() []bool  { return slices.Clone(g.isValuation) }
func (g *Grid) IsCloseOutDate() []bool   { return slices.Clone(g.isCloseOut) }
func (g *Grid) Date(i int) time.Time     { return g.dates[i] }

// Index returns the position of date d in the grid.
func (g *Grid) Index(d time.Time) (int, bool) {
	return slices.BinarySearchFunc(g.dates, Truncate(d), func(a, b time.Time) int {
		return a.Compare(b)
	})
}

// ValuationDates returns the dates at which NPVs are stored in the cube.
func (g *Grid) ValuationDates() []time.Time {
	return g.filter(g.isValuation)
}

func (g *Grid) CloseOutDates() []time.Time {
	return g.filter(g.isCloseOut)
}

func (g *Grid) filter(flags []bool) []time.Time {
	var out []time.Time
	for i, f := range flags {
		if f {
			out = append(out, g.dates[i])
		}
	}
	return out
}

// AddCloseOutDates adds, for every valuation date d, the close-out date d+lag.
// A close-out date that coincides with an existing grid date only sets that
// date's close-out flag.
func (g *Grid) AddCloseOutDates(lag Period) error {
	if lag.Length <= 0 {
		return fmt.Errorf("%w: close-out lag must be positive, got %s", ErrInvalidGrid, lag)
	}

	type point struct {
		date      time.Time
		valuation bool
		closeOut  bool
	}
	points := make(map[time.Time]*point, 2*len(g.dates))
	for i, d := range g.dates {
		points[d] = &point{date: d, valuation: g.isValuation[i], closeOut: g.isCloseOut[i]}
	}
	for i, d := range g.dates {
		if !g.isValuation[i] {
			continue
		}
		var c time.Time
		if lag.Unit == Days {
			c = Adjust(g.cal, lag.AddTo(d), Following)
		} else {
			c = Advance(g.cal, d, lag, Following)
		}
		if p, ok := points[c]; ok {
			p.closeOut = true
			continue
		}
		points[c] = &point{date: c, closeOut: true}
	}

	merged := make([]*point, 0, len(points))
	for _, p := range points {
		merged = append(merged, p)
	}
	slices.SortFunc(merged, func(a, b *point) int { return a.date.Compare(b.date) })

	g.dates = make([]time.Time, len(merged))
	g.tenors = make([]Period, len(merged))
	g.isValuation = make([]bool, len(merged))
	g.isCloseOut = make([]bool, len(merged))
	for i, p := range merged {
		g.dates[i] = p.date
		g.tenors[i] = Period{DaysBetween(g.asof, p.date), Days}
		g.isValuation[i] = p.valuation
		g.isCloseOut[i] = p.closeOut
	}
	g.build()
	return nil
}

// Truncate drops all points after d. With overrun the first point after d is
// kept as well. Truncation that would empty the grid fails.
func (g *Grid) Truncate(d time.Time, overrun bool) error {
	d = Truncate(d)
	n, _ := slices.BinarySearchFunc(g.dates, d, func(a, b time.Time) int {
		if a.After(b) {
			return 1
		}
		return -1
	})
	if overrun && n < len(g.dates) {
		n++
	}
	if n == 0 {
		return fmt.Errorf("%w: truncating at %s leaves an empty grid", ErrInvalidGrid, d.Format(time.DateOnly))
	}
	g.resize(n)
	return nil
}

// TruncateLen keeps only the first n points.
func (g *Grid) TruncateLen(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: truncating to length %d leaves an empty grid", ErrInvalidGrid, n)
	}
	if n < len(g.dates) {
		g.resize(n)
	}
	return nil
}

func (g *Grid) resize(n int) {
	if n >= len(g.dates) {
		return
	}
	g.dates = g.dates[:n]
	g.tenors = g.tenors[:n]
	g.isValuation = g.isValuation[:n]
	g.isCloseOut = g.isCloseOut[:n]
	g.build()
}
