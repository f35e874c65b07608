package cube

import (
	"fmt"
	"slices"
	"time"

	"github.com/rustyeddy/riskcube/dategrid"
)

type value interface {
	~float32 | ~float64
}

// InMemoryCube keeps every cell in one flat buffer laid out trade-major:
// ((trade*dates + date)*samples + sample)*depth + depth.
type InMemoryCube[T value] struct {
	asof    time.Time
	ids     []string
	idIndex map[string]int
	dates   []time.Time
	samples int
	depth   int

	t0   []T
	data []T
}

func NewSinglePrecision(asof time.Time, ids []string, dates []time.Time, samples, depth int) (*InMemoryCube[float32], error) {
	return newInMemory[float32](asof, ids, dates, samples, depth)
}

func NewDoublePrecision(asof time.Time, ids []string, dates []time.Time, samples, depth int) (*InMemoryCube[float64], error) {
	return newInMemory[float64](asof, ids, dates, samples, depth)
}

func newInMemory[T value](asof time.Time, ids []string, dates []time.Time, samples, depth int) (*InMemoryCube[T], error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("cube: no ids")
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("cube: no dates")
	}
	if samples <= 0 || depth <= 0 {
		return nil, fmt.Errorf("cube: samples (%d) and depth (%d) must be positive", samples, depth)
	}

	idIndex := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, dup := idIndex[id]; dup {
			return nil, fmt.Errorf("cube: duplicate id %q", id)
		}
		idIndex[id] = i
	}

	ds := make([]time.Time, len(dates))
	for i, d := range dates {
		ds[i] = dategrid.Truncate(d)
		if i > 0 && !ds[i].After(ds[i-1]) {
			return nil, fmt.Errorf("cube: dates not strictly increasing at %d", i)
		}
	}

	return &InMemoryCube[T]{
		asof:    dategrid.Truncate(asof),
		ids:     slices.Clone(ids),
		idIndex: idIndex,
		dates:   ds,
		samples: samples,
		depth:   depth,
		t0:      make([]T, len(ids)*depth),
		data:    make([]T, len(ids)*len(ds)*samples*depth),
	}, nil
}

func (c *InMemoryCube[T]) Asof() time.Time    { return c.asof }
func (c *InMemoryCube[T]) NumIDs() int        { return len(c.ids) }
func (c *InMemoryCube[T]) NumDates() int      { return len(c.dates) }
func (c *InMemoryCube[T]) Samples() int       { return c.samples }
func (c *InMemoryCube[T]) Depth() int         { return c.depth }
func (c *InMemoryCube[T]) IDs() []string      { return slices.Clone(c.ids) }
func (c *InMemoryCube[T]) Dates() []time.Time { return slices.Clone(c.dates) }

func (c *InMemoryCube[T]) Precision() Precision {
	var zero T
	switch any(zero).(type) {
	case float32:
		return Single
	}
	return Double
}

func (c *InMemoryCube[T]) IDIndex(id string) (int, error) {
	i, ok := c.idIndex[id]
	if !ok {
		return 0, fmt.Errorf("%w: unknown id %q", ErrOutOfRange, id)
	}
	return i, nil
}

func (c *InMemoryCube[T]) DateIndex(d time.Time) (int, error) {
	i, ok := slices.BinarySearchFunc(c.dates, dategrid.Truncate(d), func(a, b time.Time) int {
		return a.Compare(b)
	})
	if !ok {
		return 0, fmt.Errorf("%w: unknown date %s", ErrOutOfRange, d.Format(time.DateOnly))
	}
	return i, nil
}

func (c *InMemoryCube[T]) index(trade, date, sample, depth int) (int, error) {
	if trade < 0 || trade >= len(c.ids) {
		return 0, fmt.Errorf("%w: trade index %d, size %d", ErrOutOfRange, trade, len(c.ids))
	}
	if date < 0 || date >= len(c.dates) {
		return 0, fmt.Errorf("%w: date index %d, size %d", ErrOutOfRange, date, len(c.dates))
	}
	if sample < 0 || sample >= c.samples {
		return 0, fmt.Errorf("%w: sample index %d, size %d", ErrOutOfRange, sample, c.samples)
	}
	if depth < 0 || depth >= c.depth {
		return 0, fmt.Errorf("%w: depth index %d, size %d", ErrOutOfRange, depth, c.depth)
	}
	return ((trade*len(c.dates)+date)*c.samples+sample)*c.depth + depth, nil
}

func (c *InMemoryCube[T]) t0Index(trade, depth int) (int, error) {
	if trade < 0 || trade >= len(c.ids) {
		return 0, fmt.Errorf("%w: trade index %d, size %d", ErrOutOfRange, trade, len(c.ids))
	}
	if depth < 0 || depth >= c.depth {
		return 0, fmt.Errorf("%w: depth index %d, size %d", ErrOutOfRange, depth, c.depth)
	}
	return trade*c.depth + depth, nil
}

func (c *InMemoryCube[T]) Get(trade, date, sample, depth int) (float64, error) {
	i, err := c.index(trade, date, sample, depth)
	if err != nil {
		return 0, err
	}
	return float64(c.data[i]), nil
}

func (c *InMemoryCube[T]) Set(v float64, trade, date, sample, depth int) error {
	i, err := c.index(trade, date, sample, depth)
	if err != nil {
		return err
	}
	c.data[i] = T(v)
	return nil
}

func (c *InMemoryCube[T]) GetT0(trade, depth int) (float64, error) {
	i, err := c.t0Index(trade, depth)
	if err != nil {
		return 0, err
	}
	return float64(c.t0[i]), nil
}

func (c *InMemoryCube[T]) SetT0(v float64, trade, depth int) error {
	i, err := c.t0Index(trade, depth)
	if err != nil {
		return err
	}
	c.t0[i] = T(v)
	return nil
}

func (c *InMemoryCube[T]) GetByKey(id string, d time.Time, sample, depth int) (float64, error) {
	i, j, err := c.keys(id, d)
	if err != nil {
		return 0, err
	}
	return c.Get(i, j, sample, depth)
}

func (c *InMemoryCube[T]) SetByKey(v float64, id string, d time.Time, sample, depth int) error {
	i, j, err := c.keys(id, d)
	if err != nil {
		return err
	}
	return c.Set(v, i, j, sample, depth)
}

func (c *InMemoryCube[T]) keys(id string, d time.Time) (int, int, error) {
	i, err := c.IDIndex(id)
	if err != nil {
		return 0, 0, err
	}
	j, err := c.DateIndex(d)
	if err != nil {
		return 0, 0, err
	}
	return i, j, nil
}
