// Package collateral simulates the collateral balance of a netting set: a
// daily compounded balance history punctuated by settled margin calls.
//
// An Account assumes a monotonically advancing caller. Every precondition
// violation fails the call with ErrPrecondition and leaves the account
// unchanged.
package collateral

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tidwall/btree"

	"github.com/rustyeddy/riskcube/dategrid"
)

var ErrPrecondition = errors.New("collateral: precondition violated")

type MarginCall struct {
	Amount      float64
	PayDate     time.Time
	RequestDate time.Time
	Open        bool

	seq uint64
}

type BalancePoint struct {
	Date    time.Time
	Balance float64
}

type Account struct {
	csa     CSA
	history []BalancePoint

	// open calls ordered by pay date, then arrival
	calls       *btree.BTreeG[MarginCall]
	seq         uint64
	lastRequest time.Time
}

func callLess(a, b MarginCall) bool {
	if !a.PayDate.Equal(b.PayDate) {
		return a.PayDate.Before(b.PayDate)
	}
	return a.seq < b.seq
}

// NewAccount opens an account holding balance at t0.
func NewAccount(csa CSA, balance float64, t0 time.Time) *Account {
	return &Account{
		csa:     csa,
		history: []BalancePoint{{Date: dategrid.Truncate(t0), Balance: balance}},
		calls:   btree.NewBTreeG(callLess),
	}
}

// Clone returns an independent copy of a.
func (a *Account) Clone() *Account {
	return &Account{
		csa:         a.csa,
		history:     append([]BalancePoint(nil), a.history...),
		calls:       a.calls.Copy(),
		seq:         a.seq,
		lastRequest: a.lastRequest,
	}
}

func (a *Account) CSA() CSA { return a.csa }

func (a *Account) last() BalancePoint { return a.history[len(a.history)-1] }

// Balance is the most recently recorded balance.
func (a *Account) Balance() float64 { return a.last().Balance }

func (a *Account) LastDate() time.Time { return a.last().Date }

func (a *Account) StartDate() time.Time { return a.history[0].Date }

func (a *Account) History() []BalancePoint {
	return append([]BalancePoint(nil), a.history...)
}

// MarginCalls returns the open calls in pay date order.
func (a *Account) MarginCalls() []MarginCall {
	return a.calls.Items()
}

// UpdateMarginCall queues a call. Its request date must be later than that
// of any earlier call and not before the last recorded balance date. The
// ordering covers every call ever queued, settled ones included, which is
// stricter than comparing against the open calls only and is intended: a
// path never issues two calls on one date.
func (a *Account) UpdateMarginCall(amount float64, payDate, requestDate time.Time) error {
	payDate, requestDate = dategrid.Truncate(payDate), dategrid.Truncate(requestDate)

	if a.seq > 0 && !requestDate.After(a.lastRequest) {
		return fmt.Errorf("%w: margin call requested %s, previous call requested %s", ErrPrecondition,
			requestDate.Format(time.DateOnly), a.lastRequest.Format(time.DateOnly))
	}
	if requestDate.Before(a.LastDate()) {
		return fmt.Errorf("%w: margin call requested %s before last balance date %s", ErrPrecondition,
			requestDate.Format(time.DateOnly), a.LastDate().Format(time.DateOnly))
	}
	if payDate.Before(requestDate) {
		return fmt.Errorf("%w: margin call pays %s before its request date %s", ErrPrecondition,
			payDate.Format(time.DateOnly), requestDate.Format(time.DateOnly))
	}

	a.seq++
	a.lastRequest = requestDate
	a.calls.Set(MarginCall{
		Amount:      amount,
		PayDate:     payDate,
		RequestDate: requestDate,
		Open:        true,
		seq:         a.seq,
	})
	return nil
}

// accrue compounds balance over days at the CSA rate for its sign.
func (a *Account) accrue(balance float64, days int, zeroRate float64) float64 {
	rate := zeroRate - a.csa.SpreadRcv
	if balance < 0 {
		rate = zeroRate - a.csa.SpreadPay
	}
	return balance * math.Pow(1+rate/365, float64(days))
}

// UpdateAccountBalance settles every open call paying on or before simDate,
// in pay date order, accruing the balance between settlements, and then
// accrues the balance up to simDate.
func (a *Account) UpdateAccountBalance(simDate time.Time, zeroRate float64) error {
	simDate = dategrid.Truncate(simDate)
	if simDate.Before(a.LastDate()) {
		return fmt.Errorf("%w: balance update for %s before last balance date %s", ErrPrecondition,
			simDate.Format(time.DateOnly), a.LastDate().Format(time.DateOnly))
	}

	for {
		call, ok := a.calls.Min()
		if !ok || call.PayDate.After(simDate) {
			break
		}
		if !call.Open {
			return fmt.Errorf("%w: queued margin call paying %s is already closed", ErrPrecondition,
				call.PayDate.Format(time.DateOnly))
		}
		last := a.last()
		switch {
		case call.PayDate.Equal(last.Date):
			a.history[len(a.history)-1].Balance += call.Amount
		case call.PayDate.After(last.Date):
			days := dategrid.DaysBetween(last.Date, call.PayDate)
			a.history = append(a.history, BalancePoint{
				Date:    call.PayDate,
				Balance: a.accrue(last.Balance, days, zeroRate) + call.Amount,
			})
		default:
			return fmt.Errorf("%w: margin call paying %s is older than last balance date %s", ErrPrecondition,
				call.PayDate.Format(time.DateOnly), last.Date.Format(time.DateOnly))
		}
		a.calls.Delete(call)
	}

	if last := a.last(); simDate.After(last.Date) {
		days := dategrid.DaysBetween(last.Date, simDate)
		a.history = append(a.history, BalancePoint{Date: simDate, Balance: a.accrue(last.Balance, days, zeroRate)})
	}
	return nil
}

// AccountBalance is the balance in force on d. Dates after the last recorded
// date get the last balance.
func (a *Account) AccountBalance(d time.Time) (float64, error) {
	d = dategrid.Truncate(d)
	if d.Before(a.history[0].Date) {
		return 0, fmt.Errorf("%w: %s is before the account start %s", ErrPrecondition,
			d.Format(time.DateOnly), a.history[0].Date.Format(time.DateOnly))
	}
	if !d.Before(a.LastDate()) {
		return a.Balance(), nil
	}
	for i := 1; i < len(a.history); i++ {
		if d.Before(a.history[i].Date) {
			return a.history[i-1].Balance, nil
		}
	}
	return a.Balance(), nil
}

// OutstandingMarginAmount sums the open calls. All of them must pay after
// simDate; anything due earlier should have been settled already.
func (a *Account) OutstandingMarginAmount(simDate time.Time) (float64, error) {
	simDate = dategrid.Truncate(simDate)
	var (
		sum float64
		err error
	)
	a.calls.Scan(func(c MarginCall) bool {
		if !c.Open {
			err = fmt.Errorf("%w: queued margin call paying %s is closed", ErrPrecondition, c.PayDate.Format(time.DateOnly))
			return false
		}
		if !c.PayDate.After(simDate) {
			err = fmt.Errorf("%w: margin call paying %s is unsettled on %s", ErrPrecondition,
				c.PayDate.Format(time.DateOnly), simDate.Format(time.DateOnly))
			return false
		}
		sum += c.Amount
		return true
	})
	return sum, err
}

// CloseAccount drops all open calls and records a zero balance on closeDate.
func (a *Account) CloseAccount(closeDate time.Time) error {
	closeDate = dategrid.Truncate(closeDate)
	if !closeDate.After(a.LastDate()) {
		return fmt.Errorf("%w: close date %s not after last balance date %s", ErrPrecondition,
			closeDate.Format(time.DateOnly), a.LastDate().Format(time.DateOnly))
	}
	a.calls.Clear()
	a.history = append(a.history, BalancePoint{Date: closeDate})
	return nil
}
