package cli

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/riskcube/config"
	"github.com/rustyeddy/riskcube/cube"
	"github.com/rustyeddy/riskcube/dategrid"
	"github.com/rustyeddy/riskcube/journal"
)

// testConfig writes a small, fast configuration into a temp dir.
func testConfig(t *testing.T, edit func(*config.Config)) (string, *config.Config) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Grid.Spec = "4,6M"
	cfg.Simulation.Samples = 20
	cfg.Simulation.Workers = 2
	cfg.Cube.Path = filepath.Join(dir, "cube.bin")
	cfg.Journal.Path = filepath.Join(dir, "reports")
	cfg.Journal.Summary = filepath.Join(dir, "runs.org")
	cfg.Log.Level = "error"
	if edit != nil {
		edit(cfg)
	}

	path := filepath.Join(dir, "riskcube.yaml")
	require.NoError(t, cfg.SaveToFile(path))
	return path, cfg
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "riskcube (dev)\n", out)
}

func TestGridCommand(t *testing.T) {
	out, err := execute(t, "grid", "--asof", "2024-01-03", "--grid", "1W,1M,3M", "--calendar", "none", "--close-out-lag", "2W")
	require.NoError(t, err)

	assert.Contains(t, out, "asof 2024-01-03")
	assert.Contains(t, out, "2024-01-10")
	assert.Contains(t, out, "2024-02-03")
	assert.Contains(t, out, "2024-04-03")
	// close-out of the 1W date
	assert.Regexp(t, `2024-01-24\s.*\sC\n`, out)
	assert.Regexp(t, `2024-04-03\s.*\sV\n`, out)

	_, err = execute(t, "grid", "--grid", "bogus")
	assert.Error(t, err)
}

func TestRunWritesCubeAndReports(t *testing.T) {
	path, cfg := testConfig(t, nil)

	out, err := execute(t, "run", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "(exposure)")
	assert.Contains(t, out, "CPTY_A")

	c, err := cube.LoadFile(cfg.Cube.Path)
	require.NoError(t, err)
	assert.Equal(t, 3, c.NumIDs())
	assert.Equal(t, 4, c.NumDates())
	assert.Equal(t, 20, c.Samples())
	assert.Equal(t, 3, c.Depth(), "npv, close-out and cashflow depths")

	rows := readCSV(t, filepath.Join(cfg.Journal.Path, journal.ExposureFile))
	// header plus collateralized and uncollateralized rows per date
	assert.Len(t, rows, 1+2*4)

	rows = readCSV(t, filepath.Join(cfg.Journal.Path, journal.BalanceFile))
	assert.Greater(t, len(rows), 20)

	org, err := os.ReadFile(cfg.Journal.Summary)
	require.NoError(t, err)
	assert.Contains(t, string(org), "* RUN: exposure 2024-01-03")
	assert.Contains(t, string(org), "| CPTY_A")
}

func TestRunSQLite(t *testing.T) {
	path, cfg := testConfig(t, func(c *config.Config) {
		dir := filepath.Dir(c.Cube.Path)
		c.Grid.CloseOutLag = dategrid.Period{}
		c.Cube.Format = "sqlite"
		c.Cube.Path = filepath.Join(dir, "cubes.db")
		c.Journal.Type = "sqlite"
		c.Journal.Path = filepath.Join(dir, "journal.db")
		c.Journal.Summary = ""
	})

	_, err := execute(t, "run", "-f", path, "--samples", "5")
	require.NoError(t, err)

	out, err := execute(t, "cube", "runs", "--db", cfg.Cube.Path)
	require.NoError(t, err)
	runID := string(bytes.TrimSpace([]byte(out)))
	require.NotEmpty(t, runID)

	out, err = execute(t, "cube", "inspect", "--db", cfg.Cube.Path, "--run", runID, "--trade", "EQFWD_2Y")
	require.NoError(t, err)
	assert.Contains(t, out, "trades=3 dates=4 samples=5 depth=2")
	assert.Contains(t, out, "EQFWD_2Y")
	assert.NotContains(t, out, "BOND_EUR_5Y")

	j, err := journal.NewSQLite(cfg.Journal.Path, runID)
	require.NoError(t, err)
	defer j.Close()
	peak, err := j.PeakExposure(context.Background(), runID, "CPTY_A", false)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, peak.PFE, 0.0)
}

func TestRunDryRun(t *testing.T) {
	path, cfg := testConfig(t, nil)

	_, err := execute(t, "run", "-f", path, "--dry-run")
	require.NoError(t, err)

	c, err := cube.LoadFile(cfg.Cube.Path)
	require.NoError(t, err)
	// samples past the first ten are exact copies of T0
	t0, err := c.GetT0(0, 0)
	require.NoError(t, err)
	v, err := c.Get(0, 2, 15, 0)
	require.NoError(t, err)
	assert.Equal(t, t0, v)
}

func TestSensiCommand(t *testing.T) {
	path, cfg := testConfig(t, func(c *config.Config) {
		c.Sensitivity.Threshold = 0
	})

	out, err := execute(t, "sensi", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "(sensitivity)")

	rows := readCSV(t, filepath.Join(cfg.Journal.Path, journal.ScenarioFile))
	require.NotEmpty(t, rows)
	assert.Equal(t, []string{"run_id", "trade_id", "factor"}, rows[0][:3])
	// 6 up, 6 down and 4 same-type cross rows per trade, less those that do
	// not move it
	assert.Greater(t, len(rows), 1)
	assert.Less(t, len(rows), 1+3*16)

	sens := readCSV(t, filepath.Join(cfg.Journal.Path, journal.SensitivityFile))
	assert.Greater(t, len(sens), 1)

	org, err := os.ReadFile(cfg.Journal.Summary)
	require.NoError(t, err)
	assert.Contains(t, string(org), "* RUN: sensitivity 2024-01-03")
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "riskcube.yaml")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	out, err = execute(t, "config", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok (3 trades, 1 netting sets, 500 samples)")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("simulation:\n  samples: -1\n"), 0o644))
	_, err = execute(t, "config", "validate", bad)
	assert.Error(t, err)

	_, err = execute(t, "config", "validate")
	assert.Error(t, err)
}

func TestBadConfigFails(t *testing.T) {
	path, _ := testConfig(t, func(c *config.Config) {
		c.Journal.Type = "parquet"
	})
	_, err := execute(t, "-f", path, "run")
	assert.Error(t, err)
}
