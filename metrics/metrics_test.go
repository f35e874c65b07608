package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	t.Parallel()

	m := New()
	m.CellValued("npv")
	m.CellValued("npv")
	m.ValuationFailed("cashflow")
	m.PathsSimulated(7)
	m.RecordsWritten("delta", 3)
	m.ObserveFill("full", 250*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CellsValued.WithLabelValues("npv")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValuationFailures.WithLabelValues("cashflow")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.CollateralPaths))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ReportRecords.WithLabelValues("delta")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.CellValued("npv")
		m.ValuationFailed("npv")
		m.ObserveFill("full", time.Second)
		m.PathsSimulated(1)
		m.RecordsWritten("delta", 1)
	})
}

func TestHandler(t *testing.T) {
	t.Parallel()

	m := New()
	m.ValuationFailed("npv")

	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `riskcube_valuation_failures_total{calculator="npv"} 1`)
}
