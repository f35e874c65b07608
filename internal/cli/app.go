package cli

import (
	"fmt"
	"log/slog"

	"github.com/rustyeddy/riskcube/config"
	"github.com/rustyeddy/riskcube/internal/id"
	"github.com/rustyeddy/riskcube/logging"
	"github.com/rustyeddy/riskcube/metrics"
)

// app is everything a run needs, built from the config file and the
// persistent flags.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *metrics.Metrics
	runID   string

	stop func()
}

func (rc *RootConfig) load() (*app, error) {
	cfg := config.Default()
	if rc.ConfigPath != "" {
		var err error
		cfg, err = config.LoadFromFile(rc.ConfigPath)
		if err != nil {
			return nil, err
		}
	}
	if rc.LogLevel != "" {
		cfg.Log.Level = rc.LogLevel
	}
	if rc.Metrics != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = rc.Metrics
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &app{
		cfg:     cfg,
		log:     logging.New(cfg.Log),
		metrics: metrics.New(),
		runID:   id.New(),
		stop:    func() {},
	}
	a.log = a.log.With("run_id", a.runID)
	if cfg.Metrics.Enabled {
		a.stop = a.metrics.Serve(cfg.Metrics.Addr, a.log)
		a.log.Info("serving metrics", "addr", cfg.Metrics.Addr)
	}
	return a, nil
}

func (a *app) close() { a.stop() }
