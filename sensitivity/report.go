package sensitivity

import "math"

type ScenarioRecord struct {
	TradeID     string
	Factor      string
	Kind        Kind
	BaseNPV     float64
	ScenarioNPV float64
	Difference  float64
}

type SensitivityRecord struct {
	TradeID   string
	Factor    string
	ShiftSize float64
	BaseNPV   float64
	Delta     float64
	Gamma     float64
}

type CrossGammaRecord struct {
	TradeID    string
	Factor1    string
	ShiftSize1 float64
	Factor2    string
	ShiftSize2 float64
	BaseNPV    float64
	CrossGamma float64
}

// ScenarioRecords lists every non-base scenario value whose difference to the
// base exceeds threshold in absolute terms.
func ScenarioRecords(s *Cube, threshold float64) ([]ScenarioRecord, error) {
	var out []ScenarioRecord
	for _, id := range s.TradeIDs() {
		base, err := s.NPV(id)
		if err != nil {
			return nil, err
		}
		for _, d := range s.descs[1:] {
			v, err := s.ScenarioNPV(id, d)
			if err != nil {
				return nil, err
			}
			diff := v - base
			if math.Abs(diff) <= threshold {
				continue
			}
			out = append(out, ScenarioRecord{
				TradeID:     id,
				Factor:      d.Factor(),
				Kind:        d.Kind,
				BaseNPV:     base,
				ScenarioNPV: v,
				Difference:  diff,
			})
		}
	}
	return out, nil
}

// SensitivityRecords lists delta and gamma per trade and Up factor, keeping
// rows where either exceeds threshold.
func SensitivityRecords(s *Cube, threshold float64) ([]SensitivityRecord, error) {
	var out []SensitivityRecord
	for _, id := range s.TradeIDs() {
		base, err := s.NPV(id)
		if err != nil {
			return nil, err
		}
		for _, k := range s.upOrder {
			d, err := s.Delta(id, k)
			if err != nil {
				return nil, err
			}
			g, err := s.Gamma(id, k)
			if err != nil {
				return nil, err
			}
			if math.Abs(d) <= threshold && math.Abs(g) <= threshold {
				continue
			}
			out = append(out, SensitivityRecord{
				TradeID:   id,
				Factor:    k.String(),
				ShiftSize: s.shifts[k],
				BaseNPV:   base,
				Delta:     d,
				Gamma:     g,
			})
		}
	}
	return out, nil
}

func CrossGammaRecords(s *Cube, threshold float64) ([]CrossGammaRecord, error) {
	var out []CrossGammaRecord
	for _, id := range s.TradeIDs() {
		base, err := s.NPV(id)
		if err != nil {
			return nil, err
		}
		for _, p := range s.crossOrder {
			cg, err := s.CrossGamma(id, p.k1, p.k2)
			if err != nil {
				return nil, err
			}
			if math.Abs(cg) <= threshold {
				continue
			}
			out = append(out, CrossGammaRecord{
				TradeID:    id,
				Factor1:    p.k1.String(),
				ShiftSize1: s.shifts[p.k1],
				Factor2:    p.k2.String(),
				ShiftSize2: s.shifts[p.k2],
				BaseNPV:    base,
				CrossGamma: cg,
			})
		}
	}
	return out, nil
}
