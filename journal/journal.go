// Package journal persists the report rows produced by a run: scenario and
// sensitivity reports, cross gammas, collateral balance paths and exposure
// profiles.
package journal

import (
	"fmt"
	"time"

	"github.com/rustyeddy/riskcube/collateral"
	"github.com/rustyeddy/riskcube/exposure"
	"github.com/rustyeddy/riskcube/metrics"
	"github.com/rustyeddy/riskcube/sensitivity"
)

// BalanceRecord is one point of a simulated collateral balance path.
type BalanceRecord struct {
	NettingSetID string
	Scenario     int
	Date         time.Time
	Balance      float64
}

// ExposureRecord is one date of a netting set exposure profile.
type ExposureRecord struct {
	NettingSetID   string
	Collateralized bool
	exposure.Point
}

type Journal interface {
	RecordScenario(sensitivity.ScenarioRecord) error
	RecordSensitivity(sensitivity.SensitivityRecord) error
	RecordCrossGamma(sensitivity.CrossGammaRecord) error
	RecordBalance(BalanceRecord) error
	RecordExposure(ExposureRecord) error
	Close() error
}

// Open returns a CSV journal writing into the directory path, or a SQLite
// journal backed by the database file path.
func Open(kind, path, runID string) (Journal, error) {
	switch kind {
	case "csv":
		return NewCSV(path, runID)
	case "sqlite":
		return NewSQLite(path, runID)
	}
	return nil, fmt.Errorf("journal: unknown type %q", kind)
}

// WriteSensitivityReports writes the scenario, sensitivity and cross gamma
// reports of s. Rows at or below threshold in absolute value are skipped.
// Row counts go to m, which may be nil.
func WriteSensitivityReports(j Journal, s *sensitivity.Cube, threshold float64, m *metrics.Metrics) error {
	scen, err := sensitivity.ScenarioRecords(s, threshold)
	if err != nil {
		return fmt.Errorf("journal: scenario report: %w", err)
	}
	for _, r := range scen {
		if err := j.RecordScenario(r); err != nil {
			return err
		}
	}
	m.RecordsWritten("scenario", len(scen))

	sens, err := sensitivity.SensitivityRecords(s, threshold)
	if err != nil {
		return fmt.Errorf("journal: sensitivity report: %w", err)
	}
	for _, r := range sens {
		if err := j.RecordSensitivity(r); err != nil {
			return err
		}
	}
	m.RecordsWritten("sensitivity", len(sens))

	cross, err := sensitivity.CrossGammaRecords(s, threshold)
	if err != nil {
		return fmt.Errorf("journal: cross gamma report: %w", err)
	}
	for _, r := range cross {
		if err := j.RecordCrossGamma(r); err != nil {
			return err
		}
	}
	m.RecordsWritten("crossgamma", len(cross))
	return nil
}

// WriteBalances records the full history of every account, one scenario per
// account index.
func WriteBalances(j Journal, nettingSetID string, accounts []*collateral.Account, m *metrics.Metrics) error {
	n := 0
	for k, a := range accounts {
		for _, p := range a.History() {
			rec := BalanceRecord{
				NettingSetID: nettingSetID,
				Scenario:     k,
				Date:         p.Date,
				Balance:      p.Balance,
			}
			if err := j.RecordBalance(rec); err != nil {
				return err
			}
			n++
		}
	}
	m.RecordsWritten("collateral_balances", n)
	return nil
}

func WriteExposure(j Journal, nettingSetID string, collateralized bool, points []exposure.Point, m *metrics.Metrics) error {
	for _, p := range points {
		if err := j.RecordExposure(ExposureRecord{NettingSetID: nettingSetID, Collateralized: collateralized, Point: p}); err != nil {
			return err
		}
	}
	m.RecordsWritten("exposure", len(points))
	return nil
}
