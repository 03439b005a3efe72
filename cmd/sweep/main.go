// Package main runs the envelope pipeline over a list of retained plane
// counts on one bump set and grid, and records how the reconstruction error
// changes with the plane count.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/pthm-cable/envelope/config"
	"github.com/pthm-cable/envelope/envelope"
	"github.com/pthm-cable/envelope/telemetry"
)

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	outputDir := flag.String("output", "", "Output directory; the sweep writes to <dir>/<run id> (overrides output.dir)")
	planes := flag.String("planes", "", "Comma separated plane counts (overrides sweep.planes)")
	overrides := config.Overrides{}
	flag.Var(overrides, "set", "Override a config value as key=value (repeatable)")
	flag.Parse()

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	if *planes != "" {
		overrides["sweep.planes"] = *planes
	}
	if *outputDir != "" {
		overrides["output.dir"] = *outputDir
	}
	if err := cfg.ApplyOverrides(overrides); err != nil {
		slog.Error("invalid override", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	if len(cfg.Sweep.Planes) == 0 {
		slog.Error("no plane counts to sweep", "error", envelope.ErrInvalidParameter)
		os.Exit(1)
	}

	slog.SetDefault(telemetry.NewLogger(os.Stdout, cfg.Telemetry.Level, cfg.Telemetry.Format))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := sweep(ctx, cfg); err != nil {
		slog.Error("sweep failed", "error", err)
		os.Exit(1)
	}
}

func sweep(ctx context.Context, cfg *config.Config) error {
	bumps, err := cfg.BumpSet()
	if err != nil {
		return fmt.Errorf("building bumps: %w", err)
	}
	grid, err := cfg.Grid()
	if err != nil {
		return fmt.Errorf("building grid: %w", err)
	}

	rec := telemetry.NewRunRecord("sweep", time.Now())
	var om *telemetry.OutputManager
	if cfg.Output.Dir != "" {
		om, err = telemetry.NewOutputManager(filepath.Join(cfg.Output.Dir, rec.ID))
		if err != nil {
			return err
		}
		defer om.Close()
	}
	if err := om.WriteConfig(cfg); err != nil {
		return err
	}

	slog.Info("starting sweep",
		"id", rec.ID,
		"planes", cfg.Sweep.Planes,
		"grid_size", grid.Len(),
		"bumps", bumps.Len(),
		"host", rec.Host,
	)

	pc := telemetry.NewPerfCollector(len(cfg.Sweep.Planes))
	startTime := time.Now()
	prevMAE := -1.0
	nonIncreasing := true

	for i, l := range cfg.Sweep.Planes {
		params, err := cfg.ParamsFor(l)
		if err != nil {
			return err
		}
		params.OnStage = pc.StartPhase
		if i == 0 && !params.Blend.Sharp(bumps.PeakWeight()) {
			slog.Warn("soft blend temperature is coarse for this field, reconstruction will flatten",
				"field_temperature", params.Blend.FieldTemperature(),
				"peak_weight", bumps.PeakWeight(),
			)
		}

		pc.StartRun()
		res, err := envelope.Run(ctx, bumps, grid, params)
		if err != nil {
			return fmt.Errorf("planes %d: %w", l, err)
		}
		row := telemetry.NewSweepRow(l, res, pc.EndRun(grid.Len()))
		if err := om.WriteSweep(row); err != nil {
			return err
		}

		if prevMAE >= 0 && row.MAE > prevMAE {
			nonIncreasing = false
			slog.Warn("error increased with more planes", "planes", l, "mae", row.MAE, "previous_mae", prevMAE)
		}
		prevMAE = row.MAE

		elapsed := time.Since(startTime)
		remaining := time.Duration(len(cfg.Sweep.Planes)-i-1) * (elapsed / time.Duration(i+1))
		slog.Info("sweep step",
			"label", telemetry.RunLabel(row.Retained, cfg.Domain.Dimensions, cfg.Domain.Increments,
				cfg.Bumps.Spread, cfg.Bumps.Narrowness, bumps.Len()),
			"mae", row.MAE,
			"rmse", row.RMSE,
			"max_abs", row.MaxAbs,
			"run_ms", row.RunMS,
			"elapsed", formatDuration(elapsed),
			"eta", formatDuration(remaining),
		)
	}

	stats := pc.Stats()
	stats.LogStats()
	if err := om.WritePerf(stats, len(cfg.Sweep.Planes)); err != nil {
		return err
	}

	slog.Info("sweep complete",
		"steps", len(cfg.Sweep.Planes),
		"non_increasing", nonIncreasing,
		"elapsed", formatDuration(time.Since(startTime)),
		"dir", om.Dir(),
	)
	return om.Close()
}
