package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/envelope/envelope"
)

func TestApplyOverrides(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	err = cfg.ApplyOverrides(map[string]string{
		"domain.dimensions":    "3",
		"domain.increments":    " 12 ",
		"domain.min":           "-2.5",
		"bumps.seed":           "42",
		"envelope.mode":        "soft",
		"envelope.temperature": "1e-4",
		"envelope.planes":      "5000",
		"output.plot":          "false",
		"sweep.planes":         "10, 50,200",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Domain.Dimensions)
	assert.Equal(t, 12, cfg.Domain.Increments)
	assert.Equal(t, -2.5, cfg.Domain.Min)
	assert.Equal(t, uint64(42), cfg.Bumps.Seed)
	assert.Equal(t, 1e-4, cfg.Envelope.Temperature)
	assert.False(t, cfg.Output.Plot)
	assert.Equal(t, []int{10, 50, 200}, cfg.Sweep.Planes)

	// Derived values follow the overrides.
	assert.Equal(t, envelope.Soft, cfg.Derived.Mode)
	assert.Equal(t, 1728, cfg.Derived.GridSize)
	assert.Equal(t, 1728, cfg.Derived.Planes)
	require.NoError(t, cfg.Validate())
}

func TestApplyOverridesRejects(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]string
	}{
		{"unknown key", map[string]string{"domain.depth": "3"}},
		{"not a number", map[string]string{"domain.increments": "many"}},
		{"not a bool", map[string]string{"output.plot": "perhaps"}},
		{"negative seed", map[string]string{"bumps.seed": "-1"}},
		{"bad sweep entry", map[string]string{"sweep.planes": "10,x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			assert.ErrorIs(t, cfg.ApplyOverrides(tt.overrides), envelope.ErrInvalidParameter)
		})
	}
}

func TestParseOverride(t *testing.T) {
	k, v, err := ParseOverride("envelope.planes=50")
	require.NoError(t, err)
	assert.Equal(t, "envelope.planes", k)
	assert.Equal(t, "50", v)

	k, v, err = ParseOverride("output.dir=a=b")
	require.NoError(t, err)
	assert.Equal(t, "output.dir", k)
	assert.Equal(t, "a=b", v)

	for _, arg := range []string{"planes", "=5", ""} {
		_, _, err := ParseOverride(arg)
		assert.ErrorIs(t, err, envelope.ErrInvalidParameter, arg)
	}
}

func TestOverrideKeysSorted(t *testing.T) {
	keys := OverrideKeys()
	assert.IsIncreasing(t, keys)
	assert.Contains(t, keys, "envelope.planes")
	assert.NotContains(t, keys, "bumps.list")
}

func TestOverridesFlag(t *testing.T) {
	o := Overrides{}
	require.NoError(t, o.Set("envelope.planes=10"))
	require.NoError(t, o.Set("domain.min=-2"))
	require.NoError(t, o.Set("envelope.planes=20"))
	assert.Equal(t, "domain.min=-2,envelope.planes=20", o.String())
	assert.ErrorIs(t, o.Set("oops"), envelope.ErrInvalidParameter)

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.ApplyOverrides(o))
	assert.Equal(t, 20, cfg.Envelope.Planes)
	assert.Equal(t, -2.0, cfg.Domain.Min)
}
