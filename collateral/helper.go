package collateral

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/rustyeddy/riskcube/dategrid"
)

// CSA holds the collateral terms of a netting set. Spreads are annual rates
// subtracted from the collateral zero rate; a Rcv value applies while we hold
// collateral, a Pay value while we have posted it.
type CSA struct {
	SpreadRcv             float64         `yaml:"spread_rcv" json:"spread_rcv"`
	SpreadPay             float64         `yaml:"spread_pay" json:"spread_pay"`
	ThresholdRcv          float64         `yaml:"threshold_rcv" json:"threshold_rcv"`
	ThresholdPay          float64         `yaml:"threshold_pay" json:"threshold_pay"`
	MTARcv                float64         `yaml:"mta_rcv" json:"mta_rcv"`
	MTAPay                float64         `yaml:"mta_pay" json:"mta_pay"`
	IndependentAmountHeld float64         `yaml:"independent_amount_held" json:"independent_amount_held"`
	MarginPeriodOfRisk    dategrid.Period `yaml:"margin_period_of_risk" json:"margin_period_of_risk"`
	MarginCallFrequency   dategrid.Period `yaml:"margin_call_frequency" json:"margin_call_frequency"`
	MarginPostFrequency   dategrid.Period `yaml:"margin_post_frequency" json:"margin_post_frequency"`
}

func (c CSA) Validate() error {
	if c.ThresholdRcv < 0 || c.ThresholdPay < 0 {
		return fmt.Errorf("collateral: thresholds must be >= 0")
	}
	if c.MTARcv < 0 || c.MTAPay < 0 {
		return fmt.Errorf("collateral: minimum transfer amounts must be >= 0")
	}
	if c.MarginPeriodOfRisk.Length < 0 {
		return fmt.Errorf("collateral: margin period of risk must be >= 0")
	}
	if c.MarginCallFrequency.Length <= 0 || c.MarginPostFrequency.Length <= 0 {
		return fmt.Errorf("collateral: margin call and post frequencies must be positive")
	}
	return nil
}

type NettingSet struct {
	ID  string `yaml:"id" json:"id"`
	CSA CSA    `yaml:"csa" json:"csa"`
}

// CreditSupportAmount is the collateral the CSA requires for an uncollateralised
// value (in CSA currency): the value plus independent amount beyond the
// threshold on its side, or zero inside the threshold.
func CreditSupportAmount(csa CSA, value float64) float64 {
	v := value + csa.IndependentAmountHeld
	if v >= 0 {
		return math.Max(v-csa.ThresholdRcv, 0)
	}
	return math.Min(v+csa.ThresholdPay, 0)
}

// MarginRequirement is the amount to call given the current balance and the
// open calls. Shortfalls below the minimum transfer amount for their direction
// give zero.
func MarginRequirement(a *Account, value float64, simDate time.Time) (float64, error) {
	open, err := a.OutstandingMarginAmount(simDate)
	if err != nil {
		return 0, err
	}
	shortfall := CreditSupportAmount(a.csa, value) - a.Balance() - open

	mta := a.csa.MTARcv
	if shortfall < 0 {
		mta = a.csa.MTAPay
	}
	if math.Abs(shortfall) >= mta {
		return shortfall, nil
	}
	return 0, nil
}

// EstimateUncollatValue reads the value of one scenario on simDate from a
// profile sampled on dates (values[dateIdx][scenario]). Between grid dates the
// value is linear in days; before the first grid date it runs from valueT0 at
// t0. Dates past the grid take the last value.
func EstimateUncollatValue(simDate time.Time, valueT0 float64, t0 time.Time, values [][]float64, scenario int, dates []time.Time) (float64, error) {
	if len(dates) == 0 || len(values) != len(dates) {
		return 0, fmt.Errorf("%w: %d profile rows for %d dates", ErrPrecondition, len(values), len(dates))
	}
	if simDate.Before(t0) {
		return 0, fmt.Errorf("%w: simulation date %s before t0 %s", ErrPrecondition,
			simDate.Format(time.DateOnly), t0.Format(time.DateOnly))
	}
	if dates[0].Before(t0) {
		return 0, fmt.Errorf("%w: profile starts %s before t0 %s", ErrPrecondition,
			dates[0].Format(time.DateOnly), t0.Format(time.DateOnly))
	}
	at := func(i int) (float64, error) {
		if scenario < 0 || scenario >= len(values[i]) {
			return 0, fmt.Errorf("%w: scenario %d of %d", ErrPrecondition, scenario, len(values[i]))
		}
		return values[i][scenario], nil
	}

	n := len(dates)
	if !simDate.Before(dates[n-1]) {
		return at(n - 1)
	}
	if simDate.Equal(t0) {
		return valueT0, nil
	}

	// first grid date on or after simDate; i < n since simDate < dates[n-1]
	i, _ := slices.BinarySearchFunc(dates, simDate, func(d, t time.Time) int { return d.Compare(t) })
	v2, err := at(i)
	if err != nil || dates[i].Equal(simDate) {
		return v2, err
	}
	t1, v1 := t0, valueT0
	if i > 0 {
		t1 = dates[i-1]
		if v1, err = at(i - 1); err != nil {
			return 0, err
		}
	}

	w := float64(dategrid.DaysBetween(t1, simDate)) / float64(dategrid.DaysBetween(t1, dates[i]))
	v := v1 + (v2-v1)*w
	tol := 1e-12 * math.Max(1, math.Max(math.Abs(v1), math.Abs(v2)))
	if v < math.Min(v1, v2)-tol || v > math.Max(v1, v2)+tol {
		return 0, fmt.Errorf("%w: interpolated value %v out of range (%v, %v) on %s", ErrPrecondition,
			v, v1, v2, simDate.Format(time.DateOnly))
	}
	return v, nil
}

type CalculationType uint8

const (
	Symmetric CalculationType = iota
	AsymmetricCVA
	AsymmetricDVA
	NoLag
)

var calcTypeNames = map[CalculationType]string{
	Symmetric:     "Symmetric",
	AsymmetricCVA: "AsymmetricCVA",
	AsymmetricDVA: "AsymmetricDVA",
	NoLag:         "NoLag",
}

func (c CalculationType) String() string {
	if s, ok := calcTypeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CalculationType(%d)", uint8(c))
}

func ParseCalculationType(s string) (CalculationType, error) {
	for c, name := range calcTypeNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("collateral: unknown calculation type %q", s)
}

func (c CalculationType) MarshalText() ([]byte, error) {
	if _, ok := calcTypeNames[c]; !ok {
		return nil, fmt.Errorf("collateral: unknown calculation type %d", uint8(c))
	}
	return []byte(c.String()), nil
}

func (c *CalculationType) UnmarshalText(b []byte) error {
	v, err := ParseCalculationType(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// UpdateMarginCall brings a up to simDate and, when a margin is due and the
// side calling it may call on simDate, queues the call. Calls settle after the
// margin period of risk unless calcType removes the lag for that side.
func UpdateMarginCall(a *Account, value float64, simDate time.Time, zeroRate float64, calcType CalculationType, eligUs, eligCtp bool) error {
	if err := a.UpdateAccountBalance(simDate, zeroRate); err != nil {
		return err
	}
	margin, err := MarginRequirement(a, value, simDate)
	if err != nil {
		return err
	}

	lag := a.csa.MarginPeriodOfRisk
	if calcType == NoLag {
		lag = dategrid.Period{}
	}
	switch {
	case margin > 0 && eligUs:
		pay := lag.AddTo(simDate)
		if calcType == AsymmetricDVA {
			pay = simDate
		}
		return a.UpdateMarginCall(margin, pay, simDate)
	case margin < 0 && eligCtp:
		pay := lag.AddTo(simDate)
		if calcType == AsymmetricCVA {
			pay = simDate
		}
		return a.UpdateMarginCall(margin, pay, simDate)
	}
	return nil
}
