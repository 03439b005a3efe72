// Package config provides configuration loading and access for envelope runs.
package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"runtime"

	"github.com/klauspost/cpuid/v2"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/envelope/envelope"
	"github.com/pthm-cable/envelope/parallel"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all run configuration parameters.
type Config struct {
	Domain    DomainConfig    `yaml:"domain"`
	Bumps     BumpsConfig     `yaml:"bumps"`
	Envelope  EnvelopeConfig  `yaml:"envelope"`
	Parallel  ParallelConfig  `yaml:"parallel"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Output    OutputConfig    `yaml:"output"`
	Sweep     SweepConfig     `yaml:"sweep"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// DomainConfig holds the sampling grid. Every axis shares the same bounds.
type DomainConfig struct {
	Dimensions int     `yaml:"dimensions"`
	Min        float64 `yaml:"min"`
	Max        float64 `yaml:"max"`
	Increments int     `yaml:"increments"` // Points per axis, including both bounds
}

// BumpsConfig holds the field definition. A non-empty List replaces
// random generation.
type BumpsConfig struct {
	Count      int          `yaml:"count"`
	Spread     float64      `yaml:"spread"`     // Means drawn from [-spread/2, spread/2)
	Narrowness float64      `yaml:"narrowness"` // Stds drawn from (0, narrowness)
	Weighting  float64      `yaml:"weighting"`  // Weights drawn from [-weighting/2, weighting/2)
	Seed       uint64       `yaml:"seed"`
	List       []BumpConfig `yaml:"list"`
}

// BumpConfig is one explicitly listed bump.
type BumpConfig struct {
	Means  []float64 `yaml:"means"`
	Stds   []float64 `yaml:"stds"`
	Weight float64   `yaml:"weight"`
}

// EnvelopeConfig holds plane retention and blending parameters.
type EnvelopeConfig struct {
	Planes      int     `yaml:"planes"`       // Retained planes per kind (clamped to grid size)
	Mode        string  `yaml:"mode"`         // hard or soft
	Temperature float64 `yaml:"temperature"`  // Soft mode only
	ScaleFactor float64 `yaml:"scale_factor"` // Planes are evaluated in units of 1/scale_factor
	Curvature   float64 `yaml:"curvature"`    // Convexity numerator, c = curvature/std²
}

// ParallelConfig holds worker pool parameters.
type ParallelConfig struct {
	Workers   int `yaml:"workers"`    // 0 = physical core count
	BatchSize int `yaml:"batch_size"` // 0 = parallel.DefaultBatchSize
}

// TelemetryConfig holds logging and perf parameters.
type TelemetryConfig struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	Format     string `yaml:"format"`      // json or text
	PerfWindow int    `yaml:"perf_window"` // Runs kept in the rolling perf window
}

// OutputConfig holds output directory and plot settings.
type OutputConfig struct {
	Dir        string  `yaml:"dir"` // Empty disables file output
	Plot       bool    `yaml:"plot"`
	PlotWidth  float64 `yaml:"plot_width"`  // Inches
	PlotHeight float64 `yaml:"plot_height"` // Inches
}

// SweepConfig holds the plane counts visited by the sweep tool.
type SweepConfig struct {
	Planes []int `yaml:"planes"`
}

// DerivedConfig holds computed values derived from the loaded config.
// Load and ApplyOverrides refresh it. Code that sets fields directly must
// call computeDerived afterwards, or Params will see stale planes, mode and
// workers.
type DerivedConfig struct {
	GridSize int           // Increments^Dimensions, saturating at MaxInt
	Planes   int           // Envelope.Planes clamped to GridSize
	Mode     envelope.Mode // Parsed Envelope.Mode
	Workers  int           // Effective worker count
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()
	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
// Invalid inputs leave zero values behind; Validate reports them.
func (c *Config) computeDerived() {
	c.Derived.GridSize = gridSize(c.Domain.Increments, c.Domain.Dimensions)
	c.Derived.Planes = min(c.Envelope.Planes, c.Derived.GridSize)

	if mode, err := envelope.ParseMode(c.Envelope.Mode); err == nil {
		c.Derived.Mode = mode
	}

	c.Derived.Workers = c.Parallel.Workers
	if c.Derived.Workers <= 0 {
		c.Derived.Workers = DefaultWorkers()
	}
}

// DefaultWorkers is the physical core count when the CPU reports it,
// otherwise GOMAXPROCS.
func DefaultWorkers() int {
	if n := cpuid.CPU.PhysicalCores; n > 0 {
		return min(n, runtime.GOMAXPROCS(0))
	}
	return runtime.GOMAXPROCS(0)
}

func gridSize(increments, dims int) int {
	if increments < 1 || dims < 1 {
		return 0
	}
	n := 1
	for d := 0; d < dims; d++ {
		if n > math.MaxInt/increments {
			return math.MaxInt
		}
		n *= increments
	}
	return n
}

// Validate checks every setting the pipeline depends on. Failures wrap
// envelope.ErrInvalidParameter, or envelope.ErrNumericDegenerate for a
// soft blend temperature.
func (c *Config) Validate() error {
	d := c.Domain
	if d.Dimensions < 1 {
		return invalid("domain.dimensions = %d, must be at least 1", d.Dimensions)
	}
	if d.Increments < 2 {
		return invalid("domain.increments = %d, must be at least 2", d.Increments)
	}
	if !(d.Min < d.Max) || math.IsInf(d.Min, 0) || math.IsInf(d.Max, 0) {
		return invalid("domain bounds [%v, %v] must be finite with min < max", d.Min, d.Max)
	}

	if len(c.Bumps.List) == 0 {
		if c.Bumps.Count < 0 {
			return invalid("bumps.count = %d, must not be negative", c.Bumps.Count)
		}
		if err := c.Ranges().Validate(); err != nil {
			return fmt.Errorf("bumps: %w", err)
		}
	} else if _, err := c.BumpSet(); err != nil {
		return err
	}

	if _, err := envelope.ParseMode(c.Envelope.Mode); err != nil {
		return fmt.Errorf("envelope.mode: %w", err)
	}
	params, err := c.Params()
	if err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("envelope: %w", err)
	}

	switch c.Telemetry.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("telemetry.level = %q, must be debug, info, warn or error", c.Telemetry.Level)
	}
	switch c.Telemetry.Format {
	case "json", "text":
	default:
		return invalid("telemetry.format = %q, must be json or text", c.Telemetry.Format)
	}
	if c.Telemetry.PerfWindow < 1 {
		return invalid("telemetry.perf_window = %d, must be at least 1", c.Telemetry.PerfWindow)
	}

	if c.Output.Plot && (c.Output.PlotWidth <= 0 || c.Output.PlotHeight <= 0) {
		return invalid("output plot size %vx%v must be positive", c.Output.PlotWidth, c.Output.PlotHeight)
	}

	for i, l := range c.Sweep.Planes {
		if l < 1 {
			return invalid("sweep.planes[%d] = %d, must be at least 1", i, l)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{envelope.ErrInvalidParameter}, args...)...)
}

// Ranges returns the random generation ranges.
func (c *Config) Ranges() envelope.Ranges {
	return envelope.Ranges{
		Spread:     c.Bumps.Spread,
		Narrowness: c.Bumps.Narrowness,
		Weighting:  c.Bumps.Weighting,
	}
}

// BumpCount is the number of bumps the config describes.
func (c *Config) BumpCount() int {
	if len(c.Bumps.List) > 0 {
		return len(c.Bumps.List)
	}
	return c.Bumps.Count
}

// BumpSet builds the explicit bump list, or generates Count bumps from Seed.
func (c *Config) BumpSet() (*envelope.BumpSet, error) {
	if len(c.Bumps.List) == 0 {
		return envelope.Generate(c.Bumps.Count, c.Domain.Dimensions, c.Ranges(), envelope.NewSource(c.Bumps.Seed))
	}
	bumps := make([]envelope.Bump, len(c.Bumps.List))
	for i, b := range c.Bumps.List {
		bump, err := envelope.NewBump(b.Means, b.Stds, b.Weight)
		if err != nil {
			return nil, fmt.Errorf("bumps.list[%d]: %w", i, err)
		}
		bumps[i] = bump
	}
	return envelope.NewBumpSet(c.Domain.Dimensions, bumps...)
}

// Grid builds the sampling grid.
func (c *Config) Grid() (*envelope.Grid, error) {
	return envelope.NewGrid(c.Domain.Dimensions, c.Domain.Increments, c.Domain.Min, c.Domain.Max)
}

// Blend builds the envelope blend.
func (c *Config) Blend() (envelope.Blend, error) {
	mode, err := envelope.ParseMode(c.Envelope.Mode)
	if err != nil {
		return envelope.Blend{}, err
	}
	return envelope.Blend{
		Mode:        mode,
		Temperature: c.Envelope.Temperature,
		ScaleFactor: c.Envelope.ScaleFactor,
	}, nil
}

// Params builds pipeline parameters retaining the configured plane count.
func (c *Config) Params() (envelope.Params, error) {
	return c.ParamsFor(c.Envelope.Planes)
}

// ParamsFor is like Params with a different retained plane count.
func (c *Config) ParamsFor(planes int) (envelope.Params, error) {
	blend, err := c.Blend()
	if err != nil {
		return envelope.Params{}, err
	}
	return envelope.Params{
		Planes: planes,
		Blend:  blend,
		Options: envelope.Options{
			Parallel: parallel.Options{
				Workers:   c.Derived.Workers,
				BatchSize: c.Parallel.BatchSize,
			},
			Curvature: c.Envelope.Curvature,
		},
	}, nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
