// Package metrics exposes simulation counters on a private Prometheus
// registry.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the riskcube collectors. A nil *Metrics is valid and records
// nothing, so libraries can take one unconditionally.
type Metrics struct {
	registry *prometheus.Registry

	CellsValued       *prometheus.CounterVec
	ValuationFailures *prometheus.CounterVec
	FillDuration      *prometheus.HistogramVec
	CollateralPaths   prometheus.Counter
	ReportRecords     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.CellsValued = m.NewCounterVec(prometheus.CounterOpts{
		Name: "riskcube_cells_valued_total",
		Help: "Cube cells written by valuation calculators",
	}, []string{"calculator"})

	m.ValuationFailures = m.NewCounterVec(prometheus.CounterOpts{
		Name: "riskcube_valuation_failures_total",
		Help: "Cells set to zero after a pricing failure",
	}, []string{"calculator"})

	m.FillDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "riskcube_fill_duration_seconds",
		Help:    "Wall time to fill one cube",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"mode"})

	m.CollateralPaths = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "riskcube_collateral_paths_total",
		Help: "Collateral balance paths simulated",
	})
	reg.MustRegister(m.CollateralPaths)

	m.ReportRecords = m.NewCounterVec(prometheus.CounterOpts{
		Name: "riskcube_report_records_total",
		Help: "Report rows written to the journal",
	}, []string{"report"})

	return m
}

func (m *Metrics) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labelNames)
	m.registry.MustRegister(cv)
	return cv
}

func (m *Metrics) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(opts, labelNames)
	m.registry.MustRegister(hv)
	return hv
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) CellValued(calc string) {
	if m == nil {
		return
	}
	m.CellsValued.WithLabelValues(calc).Inc()
}

func (m *Metrics) ValuationFailed(calc string) {
	if m == nil {
		return
	}
	m.ValuationFailures.WithLabelValues(calc).Inc()
}

func (m *Metrics) ObserveFill(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.FillDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *Metrics) PathsSimulated(n int) {
	if m == nil {
		return
	}
	m.CollateralPaths.Add(float64(n))
}

func (m *Metrics) RecordsWritten(report string, n int) {
	if m == nil {
		return
	}
	m.ReportRecords.WithLabelValues(report).Add(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes Handler on addr until the returned stop func is called.
func (m *Metrics) Serve(addr string, log *slog.Logger) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", "addr", addr, "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("metrics shutdown", "error", err)
		}
	}
}
