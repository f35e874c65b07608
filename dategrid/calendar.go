package dategrid

import (
	"fmt"
	"strings"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/ecb"
	"github.com/rickar/cal/v2/gb"
	"github.com/rickar/cal/v2/us"
)

// Calendar decides which days are business days.
type Calendar interface {
	Name() string
	IsBusinessDay(t time.Time) bool
}

type BusinessDayConvention int

const (
	Unadjusted BusinessDayConvention = iota
	Following
	ModifiedFollowing
	Preceding
)

// HolidayCalendar is a Monday to Friday business calendar with a set of
// holiday rules. The zero rule set gives a weekends-only calendar.
type HolidayCalendar struct {
	name string
	bc   *cal.BusinessCalendar
}

func newHolidayCalendar(name string, rules ...*cal.Holiday) *HolidayCalendar {
	bc := cal.NewBusinessCalendar()
	bc.Name = name
	bc.AddHoliday(rules...)
	return &HolidayCalendar{name: name, bc: bc}
}

// NewWeekendsOnly treats Saturday and Sunday plus the given one-off holidays
// as non-business days.
func NewWeekendsOnly(holidays ...time.Time) *HolidayCalendar {
	c := newHolidayCalendar("weekends")
	for _, h := range holidays {
		c.AddHoliday(h)
	}
	return c
}

// NewTarget is the TARGET2 settlement calendar.
func NewTarget() *HolidayCalendar { return newHolidayCalendar("target", ecb.Holidays...) }

// NewUS is the US federal holiday calendar.
func NewUS() *HolidayCalendar { return newHolidayCalendar("us", us.Holidays...) }

// NewUK is the England and Wales bank holiday calendar.
func NewUK() *HolidayCalendar { return newHolidayCalendar("uk", gb.Holidays...) }

// AddHoliday marks a single date as a holiday.
func (c *HolidayCalendar) AddHoliday(d time.Time) {
	y, m, day := d.Date()
	c.bc.AddHoliday(&cal.Holiday{
		Name:      d.Format(time.DateOnly),
		Type:      cal.ObservanceBank,
		StartYear: y,
		EndYear:   y,
		Month:     m,
		Day:       day,
		Func:      cal.CalcDayOfMonth,
	})
}

func (c *HolidayCalendar) Name() string { return c.name }

func (c *HolidayCalendar) IsBusinessDay(t time.Time) bool {
	return c.bc.IsWorkday(Truncate(t))
}

// businessDaysFrom moves n business days away from t.
func (c *HolidayCalendar) businessDaysFrom(t time.Time, n int) time.Time {
	return Truncate(c.bc.WorkdaysFrom(Truncate(t), n))
}

// NullCalendar has no holidays and no weekends.
type NullCalendar struct{}

func (NullCalendar) Name() string                 { return "none" }
func (NullCalendar) IsBusinessDay(time.Time) bool { return true }

// ParseCalendar maps a config name to a calendar.
func ParseCalendar(name string) (Calendar, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "weekends", "weekendsonly":
		return NewWeekendsOnly(), nil
	case "none", "null":
		return NullCalendar{}, nil
	case "target", "ecb":
		return NewTarget(), nil
	case "us", "unitedstates":
		return NewUS(), nil
	case "uk", "gb":
		return NewUK(), nil
	}
	return nil, fmt.Errorf("%w: unknown calendar %q", ErrInvalidGrid, name)
}

// Adjust rolls t onto a business day according to conv.
func Adjust(c Calendar, t time.Time, conv BusinessDayConvention) time.Time {
	t = Truncate(t)
	if c.IsBusinessDay(t) {
		return t
	}
	switch conv {
	case Following:
		return step(c, t, 1)
	case ModifiedFollowing:
		adj := step(c, t, 1)
		if adj.Month() != t.Month() {
			return step(c, t, -1)
		}
		return adj
	case Preceding:
		return step(c, t, -1)
	}
	return t
}

// Advance moves t by p. Day periods count business days; other units add the
// calendar offset and then adjust.
func Advance(c Calendar, t time.Time, p Period, conv BusinessDayConvention) time.Time {
	t = Truncate(t)
	if p.Unit != Days {
		return Adjust(c, p.AddTo(t), conv)
	}
	if p.Length == 0 {
		return Adjust(c, t, conv)
	}
	return step(c, t, p.Length)
}

// step moves n business days from t (n may be negative).
func step(c Calendar, t time.Time, n int) time.Time {
	switch c := c.(type) {
	case *HolidayCalendar:
		return c.businessDaysFrom(t, n)
	case NullCalendar:
		return t.AddDate(0, 0, n)
	}
	dir := 1
	if n < 0 {
		dir, n = -1, -n
	}
	for n > 0 {
		t = t.AddDate(0, 0, dir)
		if c.IsBusinessDay(t) {
			n--
		}
	}
	return t
}
