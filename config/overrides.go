package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/pthm-cable/envelope/envelope"
)

// setter parses a string value into one config field.
type setter func(c *Config, v string) error

func setInt(field func(*Config) *int) setter {
	return func(c *Config, v string) error {
		n, err := cast.ToIntE(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func setFloat(field func(*Config) *float64) setter {
	return func(c *Config, v string) error {
		f, err := cast.ToFloat64E(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

func setString(field func(*Config) *string) setter {
	return func(c *Config, v string) error {
		*field(c) = strings.TrimSpace(v)
		return nil
	}
}

func setBool(field func(*Config) *bool) setter {
	return func(c *Config, v string) error {
		b, err := cast.ToBoolE(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

// setters maps dotted yaml keys to their fields. bumps.list has no flat form
// and can only be set from a file.
var setters = map[string]setter{
	"domain.dimensions": setInt(func(c *Config) *int { return &c.Domain.Dimensions }),
	"domain.min":        setFloat(func(c *Config) *float64 { return &c.Domain.Min }),
	"domain.max":        setFloat(func(c *Config) *float64 { return &c.Domain.Max }),
	"domain.increments": setInt(func(c *Config) *int { return &c.Domain.Increments }),

	"bumps.count":      setInt(func(c *Config) *int { return &c.Bumps.Count }),
	"bumps.spread":     setFloat(func(c *Config) *float64 { return &c.Bumps.Spread }),
	"bumps.narrowness": setFloat(func(c *Config) *float64 { return &c.Bumps.Narrowness }),
	"bumps.weighting":  setFloat(func(c *Config) *float64 { return &c.Bumps.Weighting }),
	"bumps.seed": func(c *Config, v string) error {
		seed, err := cast.ToUint64E(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		c.Bumps.Seed = seed
		return nil
	},

	"envelope.planes":       setInt(func(c *Config) *int { return &c.Envelope.Planes }),
	"envelope.mode":         setString(func(c *Config) *string { return &c.Envelope.Mode }),
	"envelope.temperature":  setFloat(func(c *Config) *float64 { return &c.Envelope.Temperature }),
	"envelope.scale_factor": setFloat(func(c *Config) *float64 { return &c.Envelope.ScaleFactor }),
	"envelope.curvature":    setFloat(func(c *Config) *float64 { return &c.Envelope.Curvature }),

	"parallel.workers":    setInt(func(c *Config) *int { return &c.Parallel.Workers }),
	"parallel.batch_size": setInt(func(c *Config) *int { return &c.Parallel.BatchSize }),

	"telemetry.level":       setString(func(c *Config) *string { return &c.Telemetry.Level }),
	"telemetry.format":      setString(func(c *Config) *string { return &c.Telemetry.Format }),
	"telemetry.perf_window": setInt(func(c *Config) *int { return &c.Telemetry.PerfWindow }),

	"output.dir":         setString(func(c *Config) *string { return &c.Output.Dir }),
	"output.plot":        setBool(func(c *Config) *bool { return &c.Output.Plot }),
	"output.plot_width":  setFloat(func(c *Config) *float64 { return &c.Output.PlotWidth }),
	"output.plot_height": setFloat(func(c *Config) *float64 { return &c.Output.PlotHeight }),

	// Comma separated, e.g. sweep.planes=10,50,200
	"sweep.planes": func(c *Config, v string) error {
		var parts []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		planes, err := cast.ToIntSliceE(parts)
		if err != nil {
			return err
		}
		c.Sweep.Planes = planes
		return nil
	},
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// OverrideKeys lists the keys accepted by ApplyOverrides.
func OverrideKeys() []string {
	return sortedKeys(setters)
}

// ApplyOverrides sets fields from dotted yaml keys, as given by repeated
// -set key=value flags, and recomputes derived values. Keys are applied in
// sorted order so the first failure is deterministic.
func (c *Config) ApplyOverrides(overrides map[string]string) error {
	for _, k := range sortedKeys(overrides) {
		set, ok := setters[k]
		if !ok {
			return fmt.Errorf("%w: unknown setting %q", envelope.ErrInvalidParameter, k)
		}
		if err := set(c, overrides[k]); err != nil {
			return fmt.Errorf("%w: %s=%q: %v", envelope.ErrInvalidParameter, k, overrides[k], err)
		}
	}
	c.computeDerived()
	return nil
}

// ParseOverride splits a key=value flag argument.
func ParseOverride(arg string) (key, value string, err error) {
	key, value, ok := strings.Cut(arg, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("%w: override %q is not key=value", envelope.ErrInvalidParameter, arg)
	}
	return key, value, nil
}

// Overrides collects repeated -set key=value flags. It implements flag.Value.
type Overrides map[string]string

func (o Overrides) String() string {
	parts := make([]string, 0, len(o))
	for _, k := range sortedKeys(o) {
		parts = append(parts, k+"="+o[k])
	}
	return strings.Join(parts, ",")
}

// Set parses one key=value argument. A repeated key keeps the last value.
func (o Overrides) Set(arg string) error {
	k, v, err := ParseOverride(arg)
	if err != nil {
		return err
	}
	o[k] = v
	return nil
}
