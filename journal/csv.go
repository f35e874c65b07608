package journal

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/riskcube/sensitivity"
)

// File names used by the CSV journal inside its directory.
const (
	ScenarioFile    = "scenario.csv"
	SensitivityFile = "sensitivity.csv"
	CrossGammaFile  = "crossgamma.csv"
	BalanceFile     = "collateral_balances.csv"
	ExposureFile    = "exposure.csv"
)

var (
	scenarioHeader    = []string{"run_id", "trade_id", "factor", "kind", "base_npv", "scenario_npv", "difference"}
	sensitivityHeader = []string{"run_id", "trade_id", "factor", "shift_size", "base_npv", "delta", "gamma"}
	crossGammaHeader  = []string{"run_id", "trade_id", "factor_1", "shift_size_1", "factor_2", "shift_size_2", "base_npv", "cross_gamma"}
	balanceHeader     = []string{"run_id", "netting_set_id", "scenario", "date", "balance"}
	exposureHeader    = []string{"run_id", "netting_set_id", "collateralized", "date", "ee", "epe", "ene", "pfe"}
)

// CSVJournal writes one file per record kind. Amounts are rounded to cents,
// shift sizes to six places.
type CSVJournal struct {
	runID string

	scenario    *csvFile
	sensitivity *csvFile
	crossGamma  *csvFile
	balance     *csvFile
	exposure    *csvFile
}

type csvFile struct {
	f *os.File
	w *csv.Writer
}

func createCSV(path string, header []string) (*csvFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	c := &csvFile{f: f, w: csv.NewWriter(f)}
	if err := c.write(header); err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

func (c *csvFile) write(row []string) error {
	if err := c.w.Write(row); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *csvFile) close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}

// NewCSV creates dir if needed and opens the report files inside it.
func NewCSV(dir, runID string) (*CSVJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create %s: %w", dir, err)
	}

	j := &CSVJournal{runID: runID}
	files := []struct {
		dst    **csvFile
		name   string
		header []string
	}{
		{&j.scenario, ScenarioFile, scenarioHeader},
		{&j.sensitivity, SensitivityFile, sensitivityHeader},
		{&j.crossGamma, CrossGammaFile, crossGammaHeader},
		{&j.balance, BalanceFile, balanceHeader},
		{&j.exposure, ExposureFile, exposureHeader},
	}
	for _, fl := range files {
		c, err := createCSV(filepath.Join(dir, fl.name), fl.header)
		if err != nil {
			j.Close()
			return nil, fmt.Errorf("journal: %s: %w", fl.name, err)
		}
		*fl.dst = c
	}
	return j, nil
}

func (j *CSVJournal) RecordScenario(r sensitivity.ScenarioRecord) error {
	return j.scenario.write([]string{
		j.runID,
		r.TradeID,
		r.Factor,
		r.Kind.String(),
		amount(r.BaseNPV),
		amount(r.ScenarioNPV),
		amount(r.Difference),
	})
}

func (j *CSVJournal) RecordSensitivity(r sensitivity.SensitivityRecord) error {
	return j.sensitivity.write([]string{
		j.runID,
		r.TradeID,
		r.Factor,
		shift(r.ShiftSize),
		amount(r.BaseNPV),
		amount(r.Delta),
		amount(r.Gamma),
	})
}

func (j *CSVJournal) RecordCrossGamma(r sensitivity.CrossGammaRecord) error {
	return j.crossGamma.write([]string{
		j.runID,
		r.TradeID,
		r.Factor1,
		shift(r.ShiftSize1),
		r.Factor2,
		shift(r.ShiftSize2),
		amount(r.BaseNPV),
		amount(r.CrossGamma),
	})
}

func (j *CSVJournal) RecordBalance(r BalanceRecord) error {
	return j.balance.write([]string{
		j.runID,
		r.NettingSetID,
		strconv.Itoa(r.Scenario),
		r.Date.Format(time.DateOnly),
		amount(r.Balance),
	})
}

func (j *CSVJournal) RecordExposure(r ExposureRecord) error {
	return j.exposure.write([]string{
		j.runID,
		r.NettingSetID,
		strconv.FormatBool(r.Collateralized),
		r.Date.Format(time.DateOnly),
		amount(r.EE),
		amount(r.EPE),
		amount(r.ENE),
		amount(r.PFE),
	})
}

func (j *CSVJournal) Close() error {
	var first error
	for _, c := range []*csvFile{j.scenario, j.sensitivity, j.crossGamma, j.balance, j.exposure} {
		if c == nil {
			continue
		}
		if err := c.close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func amount(x float64) string { return fixed(x, 2) }

func shift(x float64) string { return fixed(x, 6) }

// fixed rounds half away from zero; decimal panics on NaN and Inf so those
// are written as-is.
func fixed(x float64, places int32) string {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return decimal.NewFromFloat(x).StringFixed(places)
}
