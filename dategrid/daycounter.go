package dategrid

import (
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/now"
)

// DayCounter converts a date interval into a year fraction.
type DayCounter interface {
	Name() string
	YearFraction(from, to time.Time) float64
}

type Actual365Fixed struct{}

func (Actual365Fixed) Name() string { return "A365F" }

func (Actual365Fixed) YearFraction(from, to time.Time) float64 {
	return float64(DaysBetween(from, to)) / 365.0
}

// ActualActualISDA splits the interval at year boundaries and divides each
// piece by the length of its own year.
type ActualActualISDA struct{}

func (ActualActualISDA) Name() string { return "ACT/ACT" }

func (a ActualActualISDA) YearFraction(from, to time.Time) float64 {
	from, to = Truncate(from), Truncate(to)
	if from.Equal(to) {
		return 0
	}
	if from.After(to) {
		return -a.YearFraction(to, from)
	}

	startOfNext := now.With(from).EndOfYear().Add(time.Nanosecond)
	startOfLast := now.With(to).BeginningOfYear()
	sum := float64(to.Year() - from.Year() - 1)
	sum += float64(DaysBetween(from, startOfNext)) / daysInYear(from)
	sum += float64(DaysBetween(startOfLast, to)) / daysInYear(to)
	return sum
}

func daysInYear(t time.Time) float64 {
	return float64(now.With(t).EndOfYear().YearDay())
}

func ParseDayCounter(name string) (DayCounter, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "A365F", "A365", "ACT/365", "ACTUAL/365 (FIXED)":
		return Actual365Fixed{}, nil
	case "ACT/ACT", "ACTACT", "ACT/ACT (ISDA)":
		return ActualActualISDA{}, nil
	}
	return nil, fmt.Errorf("%w: unknown day counter %q", ErrInvalidGrid, name)
}
