// Package cube stores simulated values per trade, date, sample and depth.
package cube

import (
	"errors"
	"fmt"
	"time"
)

var ErrOutOfRange = errors.New("cube: out of range")

type Precision uint8

const (
	Single Precision = 4
	Double Precision = 8
)

func (p Precision) String() string {
	switch p {
	case Single:
		return "single"
	case Double:
		return "double"
	}
	return fmt.Sprintf("precision(%d)", uint8(p))
}

func ParsePrecision(s string) (Precision, error) {
	switch s {
	case "single", "float32":
		return Single, nil
	case "", "double", "float64":
		return Double, nil
	}
	return 0, fmt.Errorf("cube: unknown precision %q", s)
}

// NPVCube is a dense store of simulated values addressed by
// (trade, date, sample, depth), plus a T0 slice addressed by (trade, depth).
//
// Dimensions are fixed at construction. Writers touching disjoint cells may
// run concurrently without locking.
type NPVCube interface {
	Asof() time.Time
	NumIDs() int
	NumDates() int
	Samples() int
	Depth() int
	Precision() Precision

	IDs() []string
	Dates() []time.Time
	IDIndex(id string) (int, error)
	DateIndex(d time.Time) (int, error)

	Get(trade, date, sample, depth int) (float64, error)
	Set(v float64, trade, date, sample, depth int) error
	GetT0(trade, depth int) (float64, error)
	SetT0(v float64, trade, depth int) error

	GetByKey(id string, d time.Time, sample, depth int) (float64, error)
	SetByKey(v float64, id string, d time.Time, sample, depth int) error
}

// New allocates an in-memory cube of the requested precision.
func New(p Precision, asof time.Time, ids []string, dates []time.Time, samples, depth int) (NPVCube, error) {
	switch p {
	case Single:
		return NewSinglePrecision(asof, ids, dates, samples, depth)
	case Double:
		return NewDoublePrecision(asof, ids, dates, samples, depth)
	}
	return nil, fmt.Errorf("cube: unknown precision %d", p)
}
