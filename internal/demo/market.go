package demo

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/rustyeddy/riskcube/dategrid"
	"github.com/rustyeddy/riskcube/valuation"
)

var _ valuation.SimMarket = (*Market)(nil)

// Market simulates Model paths. Each sample draws from its own generator
// seeded with (Seed, sample), so a sample's path does not depend on which
// samples were simulated before it.
type Market struct {
	model Model
	asof  time.Time
	dc    dategrid.DayCounter

	ccys    []string
	foreign []string
	chol    mat.TriDense

	t0     state
	cur    state
	sample int
	rng    *rand.Rand
	z, x   *mat.VecDense
}

func NewMarket(model Model, asof time.Time, dc dategrid.DayCounter) (*Market, error) {
	if err := model.Validate(); err != nil {
		return nil, err
	}
	if dc == nil {
		dc = dategrid.Actual365Fixed{}
	}

	m := &Market{
		model:   model,
		asof:    dategrid.Truncate(asof),
		dc:      dc,
		ccys:    model.currencies(),
		foreign: model.foreign(),
		sample:  -1,
	}

	n := len(m.ccys) + len(m.foreign) + 1
	corr := mat.NewSymDense(n, nil)
	for i := range n {
		for j := i; j < n; j++ {
			if i == j {
				corr.SetSym(i, j, 1)
			} else {
				corr.SetSym(i, j, model.Correlation)
			}
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(corr); !ok {
		return nil, fmt.Errorf("demo: correlation %v is not positive definite for %d drivers", model.Correlation, n)
	}
	chol.LTo(&m.chol)
	m.z = mat.NewVecDense(n, nil)
	m.x = mat.NewVecDense(n, nil)

	m.t0 = initialState(model, m.asof)
	m.cur = m.t0.clone()
	return m, nil
}

func (m *Market) Asof() time.Time      { return m.asof }
func (m *Market) BaseCurrency() string { return m.model.BaseCurrency }
func (m *Market) Label() string        { return "demo" }
func (m *Market) Numeraire() float64   { return m.cur.numeraire }

func (m *Market) FXRate(ccy string) (float64, error) { return m.cur.fxRate(ccy) }

func (m *Market) NPV(t valuation.Trade) (float64, error) { return m.cur.npv(m.dc, t) }

// Rate returns the current short rate of ccy.
func (m *Market) Rate(ccy string) (float64, error) {
	r, ok := m.cur.rates[ccy]
	if !ok {
		return 0, fmt.Errorf("demo: no rate for %s", ccy)
	}
	return r, nil
}

// Update evolves the current sample's path to d. A new sample, or a date
// before the current node, restarts the path from T0.
func (m *Market) Update(d time.Time, sample int) error {
	d = dategrid.Truncate(d)
	if d.Before(m.asof) {
		return fmt.Errorf("demo: update to %s before asof %s", d.Format(time.DateOnly), m.asof.Format(time.DateOnly))
	}
	if sample < 0 {
		return fmt.Errorf("demo: negative sample %d", sample)
	}
	if sample != m.sample || d.Before(m.cur.date) {
		m.cur = m.t0.clone()
		m.sample = sample
		m.rng = rand.New(rand.NewPCG(m.model.Seed, uint64(sample)))
	}

	dt := m.dc.YearFraction(m.cur.date, d)
	if dt > 0 {
		m.step(dt)
	}
	m.cur.date = d
	return nil
}

func (m *Market) step(dt float64) {
	for i := range m.z.Len() {
		m.z.SetVec(i, m.rng.NormFloat64())
	}
	m.x.MulVec(&m.chol, m.z)

	sq := math.Sqrt(dt)
	s := &m.cur
	old := s.rates[s.base]
	s.numeraire *= math.Exp(old * dt)

	next := make(map[string]float64, len(s.rates))
	i := 0
	for _, ccy := range m.ccys {
		r := s.rates[ccy]
		next[ccy] = r + m.model.MeanReversion*(m.model.Rates[ccy]-r)*dt + m.model.RateVol*sq*m.x.AtVec(i)
		i++
	}
	vol := m.model.FXVol
	for _, ccy := range m.foreign {
		drift := old - s.rates[ccy] - 0.5*vol*vol
		s.fx[ccy] *= math.Exp(drift*dt + vol*sq*m.x.AtVec(i))
		i++
	}
	ev := m.model.EquityVol
	s.equity *= math.Exp((old-0.5*ev*ev)*dt + ev*sq*m.x.AtVec(i))
	s.rates = next
}

func (m *Market) Reset() error {
	m.cur = m.t0.clone()
	m.sample = -1
	m.rng = nil
	return nil
}
