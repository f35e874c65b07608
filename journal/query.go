package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/riskcube/sensitivity"
)

// ListSensitivities returns the sensitivity rows of a run ordered by trade
// and factor.
func (j *SQLiteJournal) ListSensitivities(ctx context.Context, runID string) ([]sensitivity.SensitivityRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT trade_id, factor, shift_size, base_npv, delta, gamma
		FROM sensitivity_report
		WHERE run_id = ?
		ORDER BY trade_id, factor`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sensitivity.SensitivityRecord
	for rows.Next() {
		var rec sensitivity.SensitivityRecord
		if err := rows.Scan(
			&rec.TradeID,
			&rec.Factor,
			&rec.ShiftSize,
			&rec.BaseNPV,
			&rec.Delta,
			&rec.Gamma,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// BalancePath returns the balance history of one scenario in date order.
func (j *SQLiteJournal) BalancePath(ctx context.Context, runID, nettingSetID string, scenario int) ([]BalanceRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT date, balance
		FROM collateral_balances
		WHERE run_id = ? AND netting_set_id = ? AND scenario = ?
		ORDER BY date ASC`, runID, nettingSetID, scenario)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BalanceRecord
	for rows.Next() {
		rec := BalanceRecord{NettingSetID: nettingSetID, Scenario: scenario}
		if err := rows.Scan(&rec.Date, &rec.Balance); err != nil {
			return nil, err
		}
		rec.Date = rec.Date.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("journal: no balances for run %q netting set %q scenario %d", runID, nettingSetID, scenario)
	}
	return out, nil
}

// PeakExposure returns the exposure row with the largest PFE of a netting set.
func (j *SQLiteJournal) PeakExposure(ctx context.Context, runID, nettingSetID string, collateralized bool) (ExposureRecord, error) {
	rec := ExposureRecord{NettingSetID: nettingSetID, Collateralized: collateralized}
	var d time.Time
	err := j.db.QueryRowContext(ctx, `
		SELECT date, ee, epe, ene, pfe
		FROM exposure
		WHERE run_id = ? AND netting_set_id = ? AND collateralized = ?
		ORDER BY pfe DESC, date ASC
		LIMIT 1`, runID, nettingSetID, collateralized).
		Scan(&d, &rec.EE, &rec.EPE, &rec.ENE, &rec.PFE)
	if err != nil {
		return ExposureRecord{}, fmt.Errorf("journal: peak exposure %q: %w", nettingSetID, err)
	}
	rec.Date = d.UTC()
	return rec, nil
}

// Runs lists the distinct run ids present in any report table.
func (j *SQLiteJournal) Runs(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id FROM sensitivity_report
		UNION SELECT run_id FROM scenario_report
		UNION SELECT run_id FROM collateral_balances
		UNION SELECT run_id FROM exposure
		ORDER BY run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
