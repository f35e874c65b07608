package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/riskcube/collateral"
	"github.com/rustyeddy/riskcube/cube"
	"github.com/rustyeddy/riskcube/dategrid"
	"github.com/rustyeddy/riskcube/internal/demo"
	"github.com/rustyeddy/riskcube/logging"
	"github.com/rustyeddy/riskcube/sensitivity"
)

// Config represents a complete riskcube run
type Config struct {
	Asof        string            `json:"asof" yaml:"asof"` // YYYY-MM-DD
	Grid        GridConfig        `json:"grid" yaml:"grid"`
	Simulation  SimulationConfig  `json:"simulation" yaml:"simulation"`
	Market      demo.Model        `json:"market" yaml:"market"`
	Trades      []demo.TradeSpec  `json:"trades" yaml:"trades"`
	Cube        CubeConfig        `json:"cube" yaml:"cube"`
	Sensitivity SensitivityConfig `json:"sensitivity" yaml:"sensitivity"`
	NettingSets []NettingSet      `json:"netting_sets,omitempty" yaml:"netting_sets,omitempty"`
	Journal     JournalConfig     `json:"journal" yaml:"journal"`
	Log         logging.Config    `json:"log" yaml:"log"`
	Metrics     MetricsConfig     `json:"metrics" yaml:"metrics"`
}

// GridConfig describes the simulation date grid
type GridConfig struct {
	Spec        string          `json:"spec" yaml:"spec"`               // e.g. "40,3M" or "1W,1M,1Y"
	Calendar    string          `json:"calendar" yaml:"calendar"`       // "weekends" or "none"
	DayCounter  string          `json:"day_counter" yaml:"day_counter"` // "A365F" or "ACT/ACT"
	CloseOutLag dategrid.Period `json:"close_out_lag,omitempty" yaml:"close_out_lag,omitempty"`
}

// SimulationConfig contains cube fill parameters
type SimulationConfig struct {
	Samples   int    `json:"samples" yaml:"samples"`
	Workers   int    `json:"workers" yaml:"workers"` // 0 means GOMAXPROCS
	Precision string `json:"precision" yaml:"precision"`
	DryRun    bool   `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	// PFE quantile in (0, 1)
	Quantile float64 `json:"quantile" yaml:"quantile"`
}

// CubeConfig says where the filled cube is written
type CubeConfig struct {
	Path   string `json:"path" yaml:"path"`
	Format string `json:"format" yaml:"format"` // "binary" or "sqlite"
}

// SensitivityConfig drives bump and revalue runs
type SensitivityConfig struct {
	// Shift size per risk factor type, e.g. DiscountCurve: 0.0001
	Shifts map[string]float64 `json:"shifts" yaml:"shifts"`
	// Factors restricts the run to these keys (Type/Name/Index); empty means all
	Factors    []string `json:"factors,omitempty" yaml:"factors,omitempty"`
	CrossGamma string   `json:"cross_gamma" yaml:"cross_gamma"` // "none", "same_type" or "all"
	Threshold  float64  `json:"threshold" yaml:"threshold"`
}

// NettingSet groups trades under one CSA
type NettingSet struct {
	collateral.NettingSet `yaml:",inline"`
	CalculationType       collateral.CalculationType `json:"calculation_type" yaml:"calculation_type"`
	InitialBalance        float64                    `json:"initial_balance" yaml:"initial_balance"`
	Trades                []string                   `json:"trades" yaml:"trades"`
}

// JournalConfig contains report journaling parameters
type JournalConfig struct {
	Type string `json:"type" yaml:"type"` // "csv" or "sqlite"
	// Directory for CSV reports, database file for SQLite
	Path string `json:"path" yaml:"path"`
	// Org mode run log appended after every run; empty disables it
	Summary string `json:"summary,omitempty" yaml:"summary,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := c.AsofDate(); err != nil {
		return fmt.Errorf("asof: %w", err)
	}
	if c.Grid.Spec == "" {
		return fmt.Errorf("grid.spec is required")
	}
	if _, err := dategrid.ParseCalendar(c.Grid.Calendar); err != nil {
		return fmt.Errorf("grid.calendar: %w", err)
	}
	if _, err := dategrid.ParseDayCounter(c.Grid.DayCounter); err != nil {
		return fmt.Errorf("grid.day_counter: %w", err)
	}
	if c.Simulation.Samples <= 0 {
		return fmt.Errorf("simulation.samples must be positive")
	}
	if c.Simulation.Workers < 0 {
		return fmt.Errorf("simulation.workers must be >= 0")
	}
	if _, err := cube.ParsePrecision(c.Simulation.Precision); err != nil {
		return fmt.Errorf("simulation.precision: %w", err)
	}
	if c.Simulation.Quantile <= 0 || c.Simulation.Quantile >= 1 {
		return fmt.Errorf("simulation.quantile must be between 0 and 1")
	}
	if err := c.Market.Validate(); err != nil {
		return fmt.Errorf("market: %w", err)
	}
	if len(c.Trades) == 0 {
		return fmt.Errorf("at least one trade is required")
	}
	ids := make([]string, 0, len(c.Trades))
	for _, t := range c.Trades {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("trades: %w", err)
		}
		ids = append(ids, t.ID)
	}
	if c.Cube.Format != "binary" && c.Cube.Format != "sqlite" {
		return fmt.Errorf("cube.format must be 'binary' or 'sqlite'")
	}
	if c.Cube.Path == "" {
		return fmt.Errorf("cube.path is required")
	}
	if err := c.validateSensitivity(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.NettingSets))
	for _, ns := range c.NettingSets {
		if ns.ID == "" {
			return fmt.Errorf("netting_sets: id is required")
		}
		if seen[ns.ID] {
			return fmt.Errorf("netting_sets: duplicate id %q", ns.ID)
		}
		seen[ns.ID] = true
		if err := ns.CSA.Validate(); err != nil {
			return fmt.Errorf("netting_sets %s: %w", ns.ID, err)
		}
		if len(ns.Trades) == 0 {
			return fmt.Errorf("netting_sets %s: no trades", ns.ID)
		}
		for _, id := range ns.Trades {
			if !slices.Contains(ids, id) {
				return fmt.Errorf("netting_sets %s: unknown trade %q", ns.ID, id)
			}
		}
	}
	if c.Journal.Type != "csv" && c.Journal.Type != "sqlite" {
		return fmt.Errorf("journal.type must be 'csv' or 'sqlite'")
	}
	if c.Journal.Path == "" {
		return fmt.Errorf("journal.path is required")
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr required when metrics are enabled")
	}
	return nil
}

func (c *Config) validateSensitivity() error {
	s := c.Sensitivity
	if s.Threshold < 0 {
		return fmt.Errorf("sensitivity.threshold must be >= 0")
	}
	if _, err := s.Filter(); err != nil {
		return err
	}
	for typ, h := range s.Shifts {
		if h <= 0 {
			return fmt.Errorf("sensitivity.shifts.%s must be positive", typ)
		}
	}
	for _, f := range s.Factors {
		if _, err := sensitivity.ParseRiskFactorKey(f); err != nil {
			return fmt.Errorf("sensitivity.factors: %w", err)
		}
	}
	return nil
}

func (c *Config) AsofDate() (time.Time, error) {
	return dategrid.ParseDate(c.Asof)
}

// BuildGrid builds the simulation grid, with close-out dates when a lag is
// configured.
func (c *Config) BuildGrid() (*dategrid.Grid, error) {
	asof, err := c.AsofDate()
	if err != nil {
		return nil, err
	}
	cal, err := dategrid.ParseCalendar(c.Grid.Calendar)
	if err != nil {
		return nil, err
	}
	dc, err := dategrid.ParseDayCounter(c.Grid.DayCounter)
	if err != nil {
		return nil, err
	}
	g, err := dategrid.New(asof, c.Grid.Spec, cal, dc)
	if err != nil {
		return nil, err
	}
	if !c.Grid.CloseOutLag.IsZero() {
		if err := g.AddCloseOutDates(c.Grid.CloseOutLag); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Filter maps cross_gamma to a catalog cross filter; nil means no Cross rows.
func (s SensitivityConfig) Filter() (sensitivity.CrossFilter, error) {
	switch s.CrossGamma {
	case "", "none":
		return nil, nil
	case "same_type":
		return sensitivity.SameType, nil
	case "all":
		return sensitivity.AllPairs, nil
	}
	return nil, fmt.Errorf("sensitivity.cross_gamma must be 'none', 'same_type' or 'all'")
}

// Keys selects the configured factors out of all, keeping the order of all.
func (s SensitivityConfig) Keys(all []sensitivity.RiskFactorKey) ([]sensitivity.RiskFactorKey, error) {
	if len(s.Factors) == 0 {
		return all, nil
	}
	want := make(map[sensitivity.RiskFactorKey]bool, len(s.Factors))
	for _, f := range s.Factors {
		k, err := sensitivity.ParseRiskFactorKey(f)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(all, k) {
			return nil, fmt.Errorf("sensitivity: unknown factor %s", k)
		}
		want[k] = true
	}
	var out []sensitivity.RiskFactorKey
	for _, k := range all {
		if want[k] {
			out = append(out, k)
		}
	}
	return out, nil
}

// ShiftSizes assigns each key the shift of its type.
func (s SensitivityConfig) ShiftSizes(keys []sensitivity.RiskFactorKey) (map[sensitivity.RiskFactorKey]float64, error) {
	out := make(map[sensitivity.RiskFactorKey]float64, len(keys))
	for _, k := range keys {
		h, ok := s.Shifts[k.Type]
		if !ok {
			return nil, fmt.Errorf("sensitivity: no shift size for %s", k.Type)
		}
		out[k] = h
	}
	return out, nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Asof: "2024-01-03",
		Grid: GridConfig{
			Spec:        "20,3M",
			Calendar:    "weekends",
			DayCounter:  "A365F",
			CloseOutLag: dategrid.NewPeriod(2, dategrid.Weeks),
		},
		Simulation: SimulationConfig{
			Samples:   500,
			Precision: "double",
			Quantile:  0.95,
		},
		Market: demo.DefaultModel(),
		Trades: demo.DefaultTrades(),
		Cube: CubeConfig{
			Path:   "./cube.bin",
			Format: "binary",
		},
		Sensitivity: SensitivityConfig{
			Shifts: map[string]float64{
				demo.DiscountCurve: 0.0001,
				demo.FXSpot:        0.01,
				demo.EquitySpot:    0.01,
			},
			CrossGamma: "same_type",
			Threshold:  0.01,
		},
		NettingSets: []NettingSet{{
			NettingSet: collateral.NettingSet{
				ID: "CPTY_A",
				CSA: collateral.CSA{
					ThresholdRcv:        10_000,
					ThresholdPay:        10_000,
					MTARcv:              1_000,
					MTAPay:              1_000,
					MarginPeriodOfRisk:  dategrid.NewPeriod(2, dategrid.Weeks),
					MarginCallFrequency: dategrid.NewPeriod(1, dategrid.Weeks),
					MarginPostFrequency: dategrid.NewPeriod(1, dategrid.Weeks),
				},
			},
			CalculationType: collateral.Symmetric,
			Trades:          []string{"BOND_EUR_5Y", "FXFWD_USDEUR_1Y", "EQFWD_2Y"},
		}},
		Journal: JournalConfig{
			Type:    "csv",
			Path:    "./reports",
			Summary: "./runs.org",
		},
		Log: logging.DefaultConfig(),
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}
