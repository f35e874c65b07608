package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/riskcube/sensitivity"
)

// SQLiteJournal stores every record kind in its own table, tagged with the
// run id it was opened with. Several runs may share one database.
type SQLiteJournal struct {
	db    *sql.DB
	runID string
}

func NewSQLite(path, runID string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteJournal{db: db, runID: runID}, nil
}

func (j *SQLiteJournal) RunID() string { return j.runID }

func (j *SQLiteJournal) RecordScenario(r sensitivity.ScenarioRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO scenario_report
		(run_id, trade_id, factor, kind, base_npv, scenario_npv, difference)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.runID, r.TradeID, r.Factor, r.Kind.String(), r.BaseNPV, r.ScenarioNPV, r.Difference,
	)
	return err
}

func (j *SQLiteJournal) RecordSensitivity(r sensitivity.SensitivityRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO sensitivity_report
		(run_id, trade_id, factor, shift_size, base_npv, delta, gamma)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.runID, r.TradeID, r.Factor, r.ShiftSize, r.BaseNPV, r.Delta, r.Gamma,
	)
	return err
}

func (j *SQLiteJournal) RecordCrossGamma(r sensitivity.CrossGammaRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO crossgamma_report
		(run_id, trade_id, factor_1, shift_size_1, factor_2, shift_size_2, base_npv, cross_gamma)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.runID, r.TradeID, r.Factor1, r.ShiftSize1, r.Factor2, r.ShiftSize2, r.BaseNPV, r.CrossGamma,
	)
	return err
}

func (j *SQLiteJournal) RecordBalance(r BalanceRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO collateral_balances
		(run_id, netting_set_id, scenario, date, balance)
		VALUES (?, ?, ?, ?, ?)`,
		j.runID, r.NettingSetID, r.Scenario, r.Date, r.Balance,
	)
	return err
}

func (j *SQLiteJournal) RecordExposure(r ExposureRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO exposure
		(run_id, netting_set_id, collateralized, date, ee, epe, ene, pfe)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.runID, r.NettingSetID, r.Collateralized, r.Date, r.EE, r.EPE, r.ENE, r.PFE,
	)
	return err
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
