package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSummaryOrg(t *testing.T) {
	t.Parallel()

	s := &RunSummary{
		RunID:     "01HQ",
		Kind:      "exposure",
		Created:   time.Date(2024, 1, 3, 9, 30, 0, 0, time.UTC),
		Asof:      asof,
		Grid:      "4,3M",
		Trades:    3,
		Dates:     4,
		Samples:   100,
		Depth:     2,
		Precision: "double",
		CubePath:  "cube.bin",
		NettingSets: []NettingSetSummary{
			{ID: "NS1", PeakDate: asof.AddDate(0, 6, 0), PeakEPE: 3, PeakPFE: 9.456, Paths: 100},
		},
		Notes: []string{"dry run"},
	}

	out, err := s.Org()
	require.NoError(t, err)

	assert.Contains(t, out, "* RUN: exposure 2024-01-03")
	assert.Contains(t, out, ":RUN_ID:      01HQ")
	assert.Contains(t, out, ":GRID:        4,3M")
	assert.Contains(t, out, ":CREATED:     [2024-01-03 Wed 09:30]")
	assert.Contains(t, out, "[[file:cube.bin]]")
	assert.NotContains(t, out, "Journal:")
	assert.Contains(t, out, "| NS1 | 100 | 2024-07-03 | 3.00 | 9.46 |")
	assert.Contains(t, out, "- dry run")
}

func TestRunSummaryPlaceholders(t *testing.T) {
	t.Parallel()

	out, err := (&RunSummary{Kind: "sensitivity", Asof: asof}).Org()
	require.NoError(t, err)
	assert.Contains(t, out, "(run-id?)")
	assert.Contains(t, out, "(grid?)")
	assert.NotContains(t, out, "** Netting Sets")
	assert.NotContains(t, out, "** Outputs")
}

func TestRunSummaryAppendOrg(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "runs.org")
	for _, id := range []string{"A", "B"} {
		s := &RunSummary{RunID: id, Kind: "exposure", Asof: asof}
		require.NoError(t, s.AppendOrg(path))
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "* RUN: exposure"))
}
