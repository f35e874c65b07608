package dategrid

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/now"
)

type TimeUnit int

const (
	Days TimeUnit = iota
	Weeks
	Months
	Years
)

func (u TimeUnit) String() string {
	switch u {
	case Days:
		return "D"
	case Weeks:
		return "W"
	case Months:
		return "M"
	case Years:
		return "Y"
	}
	return "?"
}

// Period is a tenor such as 3M or 10Y.
type Period struct {
	Length int
	Unit   TimeUnit
}

func NewPeriod(n int, u TimeUnit) Period { return Period{Length: n, Unit: u} }

// ParsePeriod parses tenors of the form "3M", "10Y", "2W", "1D" (case insensitive).
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if len(s) < 2 {
		return Period{}, fmt.Errorf("%w: bad period %q", ErrInvalidGrid, s)
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return Period{}, fmt.Errorf("%w: bad period %q", ErrInvalidGrid, s)
	}
	if n < 0 {
		return Period{}, fmt.Errorf("%w: negative period %q", ErrInvalidGrid, s)
	}

	var u TimeUnit
	switch s[len(s)-1] {
	case 'D':
		u = Days
	case 'W':
		u = Weeks
	case 'M':
		u = Months
	case 'Y':
		u = Years
	default:
		return Period{}, fmt.Errorf("%w: bad period unit %q", ErrInvalidGrid, s)
	}
	return Period{Length: n, Unit: u}, nil
}

func (p Period) String() string {
	return strconv.Itoa(p.Length) + p.Unit.String()
}

func (p Period) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Period) UnmarshalText(b []byte) error {
	v, err := ParsePeriod(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (p Period) IsZero() bool { return p.Length == 0 }

// Mul scales the period length.
func (p Period) Mul(n int) Period {
	return Period{Length: p.Length * n, Unit: p.Unit}
}

// Normalize rewrites whole years expressed in months (and whole weeks in days)
// in the larger unit, e.g. 12M -> 1Y.
func (p Period) Normalize() Period {
	switch p.Unit {
	case Months:
		if p.Length%12 == 0 {
			return Period{Length: p.Length / 12, Unit: Years}
		}
	case Days:
		if p.Length != 0 && p.Length%7 == 0 {
			return Period{Length: p.Length / 7, Unit: Weeks}
		}
	}
	return p
}

// Equivalent reports whether p and o describe the same calendar offset.
func (p Period) Equivalent(o Period) bool {
	return p.Normalize() == o.Normalize()
}

// AddTo adds the period to t without any business day adjustment. Month and
// year arithmetic clamps to the end of the target month (Jan 31 + 1M = Feb 28/29).
func (p Period) AddTo(t time.Time) time.Time {
	t = Truncate(t)
	switch p.Unit {
	case Days:
		return t.AddDate(0, 0, p.Length)
	case Weeks:
		return t.AddDate(0, 0, 7*p.Length)
	case Months:
		return addMonths(t, p.Length)
	case Years:
		return addMonths(t, 12*p.Length)
	}
	return t
}

func addMonths(t time.Time, n int) time.Time {
	first := now.With(t).BeginningOfMonth().AddDate(0, n, 0)
	last := now.With(first).EndOfMonth()
	if t.Day() > last.Day() {
		return Truncate(last)
	}
	return first.AddDate(0, 0, t.Day()-1)
}

// NewDate returns midnight UTC for the given calendar day.
func NewDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the time of day, keeping the calendar date in UTC.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Truncate(b).Sub(Truncate(a)).Hours() / 24)
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}
