// Package sensitivity derives delta, gamma and cross gamma from a cube of
// base and shifted scenario values.
//
// The wrapped cube holds one row per trade, a single date and one sample per
// scenario; depth 0 carries the value and the T0 slice the base NPV. A Cube is
// immutable once built and safe for concurrent readers.
package sensitivity

import (
	"errors"
	"fmt"
	"math"

	"github.com/rustyeddy/riskcube/cube"
)

var (
	ErrInvalidCatalog = errors.New("sensitivity: invalid scenario catalog")
	ErrKeyNotFound    = errors.New("sensitivity: key not found")
)

type pair struct{ k1, k2 RiskFactorKey }

type Cube struct {
	cube   cube.NPVCube
	descs  []ScenarioDescription
	shifts map[RiskFactorKey]float64

	trades map[string]int
	rows   map[ScenarioDescription]int
	up     map[RiskFactorKey]int
	down   map[RiskFactorKey]int
	cross  map[pair]int

	upOrder    []RiskFactorKey
	downOrder  []RiskFactorKey
	crossOrder []pair
}

// New indexes c by the scenario catalog descs, which must have one entry per
// cube sample. The catalog is checked up front: row 0 is the only Base row,
// Up, Down and Cross keys are unique (Cross pairs in either order), the Up and
// Down factor sets match, Cross factors have Up rows and every Up factor has
// a finite shift size.
func New(c cube.NPVCube, descs []ScenarioDescription, shifts map[RiskFactorKey]float64) (*Cube, error) {
	if len(descs) == 0 {
		return nil, fmt.Errorf("%w: empty catalog", ErrInvalidCatalog)
	}
	if len(descs) != c.Samples() {
		return nil, fmt.Errorf("%w: %d descriptions for %d cube samples", ErrInvalidCatalog, len(descs), c.Samples())
	}
	if descs[0].Kind != Base {
		return nil, fmt.Errorf("%w: first scenario is %s, want Base", ErrInvalidCatalog, descs[0])
	}

	s := &Cube{
		cube:   c,
		descs:  append([]ScenarioDescription(nil), descs...),
		shifts: make(map[RiskFactorKey]float64, len(shifts)),
		trades: make(map[string]int, c.NumIDs()),
		rows:   make(map[ScenarioDescription]int, len(descs)),
		up:     make(map[RiskFactorKey]int),
		down:   make(map[RiskFactorKey]int),
		cross:  make(map[pair]int),
	}
	for i, id := range c.IDs() {
		s.trades[id] = i
	}

	for i, d := range descs {
		switch d.Kind {
		case Base:
			if i != 0 {
				return nil, fmt.Errorf("%w: second Base scenario at row %d", ErrInvalidCatalog, i)
			}
		case Up:
			if _, dup := s.up[d.Key1]; dup {
				return nil, fmt.Errorf("%w: duplicate Up factor %s", ErrInvalidCatalog, d.Key1)
			}
			s.up[d.Key1] = i
			s.upOrder = append(s.upOrder, d.Key1)
		case Down:
			if _, dup := s.down[d.Key1]; dup {
				return nil, fmt.Errorf("%w: duplicate Down factor %s", ErrInvalidCatalog, d.Key1)
			}
			s.down[d.Key1] = i
			s.downOrder = append(s.downOrder, d.Key1)
		case Cross:
			p := pair{d.Key1, d.Key2}
			_, dup := s.cross[p]
			_, rdup := s.cross[pair{d.Key2, d.Key1}]
			if dup || rdup {
				return nil, fmt.Errorf("%w: duplicate Cross pair %s", ErrInvalidCatalog, d.Factor())
			}
			s.cross[p] = i
			s.crossOrder = append(s.crossOrder, p)
		default:
			return nil, fmt.Errorf("%w: unknown scenario kind at row %d", ErrInvalidCatalog, i)
		}
		s.rows[d] = i
	}

	if len(s.up) != len(s.down) {
		return nil, fmt.Errorf("%w: %d Up factors, %d Down factors", ErrInvalidCatalog, len(s.up), len(s.down))
	}
	for k := range s.up {
		if _, ok := s.down[k]; !ok {
			return nil, fmt.Errorf("%w: Up factor %s has no Down scenario", ErrInvalidCatalog, k)
		}
		shift, ok := shifts[k]
		if !ok || math.IsNaN(shift) || math.IsInf(shift, 0) {
			return nil, fmt.Errorf("%w: no finite shift size for %s", ErrInvalidCatalog, k)
		}
		s.shifts[k] = shift
	}
	for _, p := range s.crossOrder {
		_, ok1 := s.up[p.k1]
		_, ok2 := s.up[p.k2]
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: Cross pair %s:%s lacks Up scenarios", ErrInvalidCatalog, p.k1, p.k2)
		}
	}
	return s, nil
}

func (s *Cube) NPVCube() cube.NPVCube { return s.cube }

func (s *Cube) TradeIDs() []string { return s.cube.IDs() }

func (s *Cube) Scenarios() []ScenarioDescription {
	return append([]ScenarioDescription(nil), s.descs...)
}

func (s *Cube) UpFactors() []RiskFactorKey {
	return append([]RiskFactorKey(nil), s.upOrder...)
}

func (s *Cube) DownFactors() []RiskFactorKey {
	return append([]RiskFactorKey(nil), s.downOrder...)
}

// CrossFactors returns the Cross pairs in catalog order.
func (s *Cube) CrossFactors() [][2]RiskFactorKey {
	out := make([][2]RiskFactorKey, len(s.crossOrder))
	for i, p := range s.crossOrder {
		out[i] = [2]RiskFactorKey{p.k1, p.k2}
	}
	return out
}

func (s *Cube) ShiftSize(k RiskFactorKey) (float64, error) {
	v, ok := s.shifts[k]
	if !ok {
		return 0, fmt.Errorf("%w: risk factor %s", ErrKeyNotFound, k)
	}
	return v, nil
}

func (s *Cube) tradeIndex(id string) (int, error) {
	i, ok := s.trades[id]
	if !ok {
		return 0, fmt.Errorf("%w: trade %q", ErrKeyNotFound, id)
	}
	return i, nil
}

func (s *Cube) value(trade, row int) (float64, error) {
	return s.cube.Get(trade, 0, row, 0)
}

// NPV is the base value of a trade.
func (s *Cube) NPV(trade string) (float64, error) {
	i, err := s.tradeIndex(trade)
	if err != nil {
		return 0, err
	}
	return s.cube.GetT0(i, 0)
}

func (s *Cube) ScenarioNPV(trade string, d ScenarioDescription) (float64, error) {
	i, err := s.tradeIndex(trade)
	if err != nil {
		return 0, err
	}
	row, ok := s.rows[d]
	if !ok {
		return 0, fmt.Errorf("%w: scenario %s", ErrKeyNotFound, d)
	}
	return s.value(i, row)
}

// values returns the base value and the values of the given rows for trade.
func (s *Cube) values(trade string, rows ...int) (float64, []float64, error) {
	i, err := s.tradeIndex(trade)
	if err != nil {
		return 0, nil, err
	}
	base, err := s.cube.GetT0(i, 0)
	if err != nil {
		return 0, nil, err
	}
	out := make([]float64, len(rows))
	for n, r := range rows {
		if out[n], err = s.value(i, r); err != nil {
			return 0, nil, err
		}
	}
	return base, out, nil
}

// Delta is V(Up) - V(Base).
func (s *Cube) Delta(trade string, k RiskFactorKey) (float64, error) {
	up, ok := s.up[k]
	if !ok {
		return 0, fmt.Errorf("%w: Up factor %s", ErrKeyNotFound, k)
	}
	base, v, err := s.values(trade, up)
	if err != nil {
		return 0, err
	}
	return v[0] - base, nil
}

// Gamma is V(Up) - 2 V(Base) + V(Down), not divided by the shift size.
func (s *Cube) Gamma(trade string, k RiskFactorKey) (float64, error) {
	up, okUp := s.up[k]
	down, okDown := s.down[k]
	if !okUp || !okDown {
		return 0, fmt.Errorf("%w: factor %s", ErrKeyNotFound, k)
	}
	base, v, err := s.values(trade, up, down)
	if err != nil {
		return 0, err
	}
	return v[0] - 2*base + v[1], nil
}

// CrossGamma is V(Cross) - V(Up1) - V(Up2) + V(Base), not divided by the
// shift sizes. The pair may be given in either order.
func (s *Cube) CrossGamma(trade string, k1, k2 RiskFactorKey) (float64, error) {
	row, ok := s.cross[pair{k1, k2}]
	if !ok {
		row, ok = s.cross[pair{k2, k1}]
	}
	if !ok {
		return 0, fmt.Errorf("%w: Cross pair %s:%s", ErrKeyNotFound, k1, k2)
	}
	up1, ok1 := s.up[k1]
	up2, ok2 := s.up[k2]
	if !ok1 || !ok2 {
		return 0, fmt.Errorf("%w: Up factors of %s:%s", ErrKeyNotFound, k1, k2)
	}
	base, v, err := s.values(trade, row, up1, up2)
	if err != nil {
		return 0, err
	}
	return v[0] - v[1] - v[2] + base, nil
}
