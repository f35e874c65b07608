package journal

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T, runID string) (*SQLiteJournal, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewSQLite(path, runID)
	require.NoError(t, err)

	return j, path
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t, "run-1")
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	for _, table := range []string{"scenario_report", "sensitivity_report", "crossgamma_report", "collateral_balances", "exposure"} {
		assert.True(t, found[table], table)
	}
}

func TestSQLiteSensitivityReports(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t, "run-1")
	require.NoError(t, WriteSensitivityReports(j, sensiCube(t), 0, nil))

	got, err := j.ListSensitivities(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "DiscountCurve/USD/0", got[1].Factor)
	assert.InDelta(t, 2.0, got[1].Delta, 1e-12)
	assert.InDelta(t, -1.0, got[1].Gamma, 1e-12)
	assert.InDelta(t, 0.0001, got[1].ShiftSize, 1e-12)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var scenarios, cross int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM scenario_report WHERE run_id = 'run-1'`).Scan(&scenarios))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM crossgamma_report WHERE run_id = 'run-1'`).Scan(&cross))
	assert.Equal(t, 5, scenarios)
	assert.Equal(t, 1, cross)
}

func TestSQLiteBalancePath(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t, "run-1")
	defer j.Close()

	require.NoError(t, WriteBalances(j, "NS1", accounts(t), nil))

	ctx := context.Background()
	path, err := j.BalancePath(ctx, "run-1", "NS1", 1)
	require.NoError(t, err)
	require.Len(t, path, 2)
	assert.True(t, path[0].Date.Equal(asof))
	assert.InDelta(t, 101.0, path[0].Balance, 1e-12)
	assert.Equal(t, 0.0, path[1].Balance)

	_, err = j.BalancePath(ctx, "run-1", "NS2", 0)
	assert.Error(t, err)
}

func TestSQLitePeakExposure(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t, "run-1")
	defer j.Close()

	require.NoError(t, WriteExposure(j, "NS1", false, profile(), nil))

	ctx := context.Background()
	peak, err := j.PeakExposure(ctx, "run-1", "NS1", false)
	require.NoError(t, err)
	assert.True(t, peak.Date.Equal(asof.AddDate(0, 6, 0)))
	assert.InDelta(t, 9.5, peak.PFE, 1e-12)

	_, err = j.PeakExposure(ctx, "run-1", "NS1", true)
	assert.Error(t, err)
}

func TestSQLiteRunsShareDatabase(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.db")
	for _, run := range []string{"run-b", "run-a"} {
		j, err := NewSQLite(path, run)
		require.NoError(t, err)
		assert.Equal(t, run, j.RunID())
		require.NoError(t, WriteExposure(j, "NS1", false, profile(), nil))
		require.NoError(t, j.Close())
	}

	j, err := NewSQLite(path, "reader")
	require.NoError(t, err)
	defer j.Close()

	runs, err := j.Runs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"run-a", "run-b"}, runs)
}
