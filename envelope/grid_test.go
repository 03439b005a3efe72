package envelope

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridTraversalOrder(t *testing.T) {
	g, err := NewGrid(2, 3, -1, 1)
	require.NoError(t, err)

	want := [][]float64{
		{-1, -1}, {-1, 0}, {-1, 1},
		{0, -1}, {0, 0}, {0, 1},
		{1, -1}, {1, 0}, {1, 1},
	}
	if diff := cmp.Diff(want, g.Positions()); diff != "" {
		t.Errorf("positions mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []int{3, 3}, g.Shape())
	assert.Equal(t, 9, g.Len())
}

func TestGridAxisEndpoints(t *testing.T) {
	g, err := NewGrid(1, 5, -1, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, -0.5, 0, 0.5, 1}, g.Axis())

	lo, hi := g.Bounds()
	assert.Equal(t, -1.0, lo)
	assert.Equal(t, 1.0, hi)
}

func TestGridCoordsIndexRoundTrip(t *testing.T) {
	g, err := NewGrid(3, 4, 0, 1)
	require.NoError(t, err)

	var coords []int
	for i := 0; i < g.Len(); i++ {
		coords = g.Coords(coords, i)
		require.Equal(t, i, g.Index(coords))

		p := g.Position(nil, i)
		for d, c := range coords {
			require.Equal(t, g.axis[c], p[d])
		}
	}
}

func TestNewGridInvalid(t *testing.T) {
	tests := []struct {
		name       string
		dims, incs int
		min, max   float64
	}{
		{"no dimensions", 0, 5, -1, 1},
		{"one increment", 2, 1, -1, 1},
		{"empty bounds", 2, 5, 1, 1},
		{"reversed bounds", 2, 5, 1, -1},
		{"too large", 64, 4, -1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGrid(tt.dims, tt.incs, tt.min, tt.max)
			assert.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
}

func TestSpread(t *testing.T) {
	tests := []struct {
		name string
		n, l int
		want []int
	}{
		{"none", 10, 0, nil},
		{"one", 10, 1, []int{0}},
		{"ends", 10, 2, []int{0, 9}},
		{"even", 10, 4, []int{0, 3, 6, 9}},
		{"uneven", 10, 3, []int{0, 4, 9}},
		{"exact", 5, 5, []int{0, 1, 2, 3, 4}},
		{"clamped", 5, 100, []int{0, 1, 2, 3, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Spread(tt.n, tt.l))
		})
	}
}

func TestSpreadStrictlyIncreasing(t *testing.T) {
	idx := Spread(1600, 224)
	require.Len(t, idx, 224)
	assert.Equal(t, 0, idx[0])
	assert.Equal(t, 1599, idx[len(idx)-1])
	for k := 1; k < len(idx); k++ {
		assert.Greater(t, idx[k], idx[k-1])
	}
}

func TestSelect(t *testing.T) {
	g, err := NewGrid(2, 4, -1, 1)
	require.NoError(t, err)

	sel, err := g.Select(4)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 5, 10, 15}, sel.Indices())
	for i := 0; i < g.Len(); i++ {
		assert.Equal(t, i%5 == 0, sel.Contains(i), "index %d", i)
	}
	assert.False(t, sel.Contains(-1))
	assert.False(t, sel.Contains(1000))

	all, err := g.Select(1000)
	require.NoError(t, err)
	assert.Equal(t, g.Len(), all.Len())

	_, err = g.Select(-1)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
