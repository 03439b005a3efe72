package envelope

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
)

func mustBump(t testing.TB, means, stds []float64, weight float64) Bump {
	t.Helper()
	b, err := NewBump(means, stds, weight)
	require.NoError(t, err)
	return b
}

// randomBump draws a bump with means in [-1, 1], stds in [0.3, 1.5] and
// weights in [-2, 2].
func randomBump(rng *rand.Rand, dims int) Bump {
	b := Bump{Means: make([]float64, dims), Stds: make([]float64, dims)}
	for i := 0; i < dims; i++ {
		b.Means[i] = rng.Float64()*2 - 1
		b.Stds[i] = 0.3 + rng.Float64()*1.2
	}
	b.Weight = rng.Float64()*4 - 2
	return b
}

func randomPoint(rng *rand.Rand, dims int) []float64 {
	p := make([]float64, dims)
	for i := range p {
		p[i] = rng.Float64()*2 - 1
	}
	return p
}

func TestValueAtMeanEqualsWeight(t *testing.T) {
	tests := []struct {
		name  string
		means []float64
		stds  []float64
		w     float64
	}{
		{"1d unit", []float64{0}, []float64{1}, 1},
		{"1d offset", []float64{0.37}, []float64{0.2}, -0.7},
		{"3d", []float64{-0.5, 0.25, 0.9}, []float64{0.1, 2, 0.45}, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := mustBump(t, tt.means, tt.stds, tt.w)
			assert.Equal(t, tt.w, Value(tt.means, b))
		})
	}
}

func TestVexMinusCaveIsTwiceQuadratic(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for n := 0; n < 200; n++ {
		dims := 1 + n%4
		b := randomBump(rng, dims)
		p := randomPoint(rng, dims)

		var q float64
		for i, x := range p {
			q += ConvexityConstant(b.Stds[i]) * x * x
		}
		diff := VexValue(p, b) - CaveValue(p, b)
		assert.InDelta(t, 2*q, diff, 1e-12*math.Max(1, q))

		// Moving the means changes the value but not the difference.
		moved := Bump{Means: randomPoint(rng, dims), Stds: b.Stds, Weight: b.Weight}
		assert.InDelta(t, diff, VexValue(p, moved)-CaveValue(p, moved), 1e-12*math.Max(1, q))
	}
}

// relTol is a 1e-4 relative bound. The absolute floor only covers central
// difference rounding near zero gradients.
func relTol(want float64) float64 {
	return 1e-4*math.Abs(want) + 1e-8
}

func TestGradientsMatchFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	settings := &fd.Settings{Formula: fd.Central, Step: 1e-5}

	for n := 0; n < 100; n++ {
		dims := 1 + n%3
		b := randomBump(rng, dims)
		p := randomPoint(rng, dims)

		wantVex := fd.Gradient(nil, func(x []float64) float64 { return VexValue(x, b) }, p, settings)
		wantCave := fd.Gradient(nil, func(x []float64) float64 { return CaveValue(x, b) }, p, settings)
		gotVex := VexGradient(nil, p, b)
		gotCave := CaveGradient(nil, p, b)

		for i := range p {
			assert.InDelta(t, wantVex[i], gotVex[i], relTol(wantVex[i]), "vex dim %d of %+v at %v", i, b, p)
			assert.InDelta(t, wantCave[i], gotCave[i], relTol(wantCave[i]), "cave dim %d of %+v at %v", i, b, p)
		}
	}
}

func TestDecomposeMatchesIndividualFunctions(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	for n := 0; n < 50; n++ {
		dims := 1 + n%3
		b := randomBump(rng, dims)
		p := randomPoint(rng, dims)

		vexGrad := make([]float64, dims)
		caveGrad := make([]float64, dims)
		value, vex, cave := DefaultConvexifier.Decompose(p, b, vexGrad, caveGrad)

		require.Equal(t, Value(p, b), value)
		require.Equal(t, VexValue(p, b), vex)
		require.Equal(t, CaveValue(p, b), cave)
		require.Equal(t, VexGradient(nil, p, b), vexGrad)
		require.Equal(t, CaveGradient(nil, p, b), caveGrad)
	}
}

func TestBumpValidate(t *testing.T) {
	tests := []struct {
		name string
		b    Bump
	}{
		{"zero std", Bump{Means: []float64{0, 0}, Stds: []float64{1, 0}, Weight: 1}},
		{"negative std", Bump{Means: []float64{0}, Stds: []float64{-0.5}, Weight: 1}},
		{"nan std", Bump{Means: []float64{0}, Stds: []float64{math.NaN()}, Weight: 1}},
		{"inf std", Bump{Means: []float64{0}, Stds: []float64{math.Inf(1)}, Weight: 1}},
		{"nan mean", Bump{Means: []float64{math.NaN()}, Stds: []float64{1}, Weight: 1}},
		{"inf weight", Bump{Means: []float64{0}, Stds: []float64{1}, Weight: math.Inf(-1)}},
		{"length mismatch", Bump{Means: []float64{0, 1}, Stds: []float64{1}, Weight: 1}},
		{"no dimensions", Bump{Weight: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.b.Validate(), ErrInvalidParameter)
		})
	}

	assert.NoError(t, Bump{Means: []float64{0}, Stds: []float64{1e-9}, Weight: -3}.Validate())
}

func TestNewBumpCopiesInputs(t *testing.T) {
	means := []float64{0.5}
	stds := []float64{1}
	b := mustBump(t, means, stds, 1)
	means[0] = 9
	stds[0] = 9
	assert.Equal(t, []float64{0.5}, b.Means)
	assert.Equal(t, []float64{1}, b.Stds)
}

func TestNewBumpSet(t *testing.T) {
	a := mustBump(t, []float64{0, 1}, []float64{1, 2}, 1)
	b := mustBump(t, []float64{-1, 0.5}, []float64{0.5, 0.25}, -2)

	set, err := NewBumpSet(2, a, b)
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, 2, set.Dims())
	assert.Equal(t, b, set.At(1))
	assert.Equal(t, []Bump{a, b}, set.Bumps())

	_, err = NewBumpSet(2, a, Bump{Means: []float64{0, 0}, Stds: []float64{0, 1}, Weight: 1})
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = NewBumpSet(3, a)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = NewBumpSet(0)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	empty, err := NewBumpSet(1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, empty.Field([]float64{0.3}))
}

// The 0.75 curvature constant is an empirical bound, not a proof of
// convexity: it covers a unit-weight bump but not a heavy one.
func TestConvexityConstantIsEmpirical(t *testing.T) {
	secondDiff := func(b Bump, x float64) float64 {
		const h = 1e-3
		f := func(x float64) float64 { return VexValue([]float64{x}, b) }
		return (f(x+h) - 2*f(x) + f(x-h)) / (h * h)
	}

	light := mustBump(t, []float64{0}, []float64{1}, 1)
	for x := -3.0; x <= 3; x += 0.05 {
		assert.Greater(t, secondDiff(light, x), 0.0, "unit bump should be convex at %v", x)
	}

	heavy := mustBump(t, []float64{0}, []float64{1}, 3)
	assert.Less(t, secondDiff(heavy, 0), 0.0, "weight 3 exceeds the empirical bound at the mean")
}
