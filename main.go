package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pthm-cable/envelope/config"
	"github.com/pthm-cable/envelope/envelope"
	"github.com/pthm-cable/envelope/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	outputDir := flag.String("output-dir", "", "Output directory; each run writes to <dir>/<run id> (overrides output.dir)")
	planes := flag.Int("planes", 0, "Retained planes per kind (0 = use config)")
	soft := flag.Bool("soft", false, "Use the soft blend (overrides envelope.mode)")
	noPlot := flag.Bool("no-plot", false, "Skip PNG plots")
	runs := flag.Int("runs", 1, "Repeat the pipeline N times and report perf over the repeats")
	overrides := config.Overrides{}
	flag.Var(overrides, "set", "Override a config value as key=value (repeatable)")
	flag.Parse()

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	if *planes > 0 {
		overrides["envelope.planes"] = strconv.Itoa(*planes)
	}
	if *soft {
		overrides["envelope.mode"] = envelope.Soft.String()
	}
	if *outputDir != "" {
		overrides["output.dir"] = *outputDir
	}
	if *noPlot {
		overrides["output.plot"] = "false"
	}
	if err := cfg.ApplyOverrides(overrides); err != nil {
		slog.Error("invalid override", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(os.Stdout, cfg.Telemetry.Level, cfg.Telemetry.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, max(*runs, 1)); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, runs int) error {
	bumps, err := cfg.BumpSet()
	if err != nil {
		return fmt.Errorf("building bumps: %w", err)
	}
	grid, err := cfg.Grid()
	if err != nil {
		return fmt.Errorf("building grid: %w", err)
	}
	params, err := cfg.Params()
	if err != nil {
		return err
	}
	if span := bumps.PeakWeight(); !params.Blend.Sharp(span) {
		slog.Warn("soft blend temperature is coarse for this field, reconstruction will flatten",
			"field_temperature", params.Blend.FieldTemperature(),
			"peak_weight", span,
		)
	}

	label := telemetry.RunLabel(cfg.Derived.Planes, cfg.Domain.Dimensions, cfg.Domain.Increments,
		cfg.Bumps.Spread, cfg.Bumps.Narrowness, cfg.BumpCount())
	rec := telemetry.NewRunRecord(label, time.Now())
	rec.Dimensions = cfg.Domain.Dimensions
	rec.Increments = cfg.Domain.Increments
	rec.GridSize = grid.Len()
	rec.Bumps = bumps.Len()
	rec.Planes = cfg.Derived.Planes
	rec.Mode = cfg.Derived.Mode.String()
	rec.Workers = cfg.Derived.Workers

	slog.Info("starting run",
		"id", rec.ID,
		"label", label,
		"grid_size", grid.Len(),
		"mode", rec.Mode,
		"workers", rec.Workers,
		"host", rec.Host,
	)

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

	pc := telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow)
	params.OnStage = func(stage envelope.Stage) {
		slog.Debug("stage", "stage", stage)
		pc.StartPhase(stage)
	}
	params.Progress = telemetry.ProgressLogger(slog.Default(), 0.1)

	var res *envelope.Result
	var sample telemetry.PerfSample
	for i := 1; i <= runs; i++ {
		pc.StartRun()
		res, err = envelope.Run(ctx, bumps, grid, params)
		if err != nil {
			return err
		}
		sample = pc.EndRun(grid.Len())
		if err := om.WritePerf(pc.Stats(), i); err != nil {
			return err
		}
	}
	pc.Stats().LogStats()

	rec.Error = telemetry.ComputeErrorStats(res.Error)
	rec.SetTiming(sample)
	slog.Info("reconstruction", "label", label, "error", rec.Error)

	if err := om.WriteResult(res); err != nil {
		return err
	}
	if err := om.WriteRecord(rec); err != nil {
		return err
	}
	if cfg.Output.Plot {
		paths, err := om.WritePlots(res, label, cfg.Output.PlotWidth, cfg.Output.PlotHeight)
		if err != nil {
			return err
		}
		if len(paths) > 0 {
			slog.Info("plots written", "paths", paths)
		}
	}
	if om != nil {
		slog.Info("output written", "dir", om.Dir())
	}
	return om.Close()
}
