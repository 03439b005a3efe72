package envelope

import (
	"fmt"
	"math"
	"math/bits"

	"gonum.org/v1/gonum/floats"
)

// Grid is the Cartesian product of Dims axes, each Increments points spaced
// evenly over [Min, Max]. Positions are numbered row-major over axis
// indices, last axis fastest, so any per-position slice reshapes directly
// into an Increments×...×Increments array.
type Grid struct {
	dims       int
	increments int
	min, max   float64
	axis       []float64
	n          int
}

// NewGrid builds a grid. It rejects dims < 1, increments < 2, non-finite or
// empty bounds, and grids whose size overflows int.
func NewGrid(dims, increments int, min, max float64) (*Grid, error) {
	if dims < 1 {
		return nil, fmt.Errorf("%w: dimensions = %d, must be at least 1", ErrInvalidParameter, dims)
	}
	if increments < 2 {
		return nil, fmt.Errorf("%w: increments = %d, must be at least 2", ErrInvalidParameter, increments)
	}
	if math.IsNaN(min) || math.IsNaN(max) || math.IsInf(min, 0) || math.IsInf(max, 0) {
		return nil, fmt.Errorf("%w: bounds [%v, %v] must be finite", ErrInvalidParameter, min, max)
	}
	if min >= max {
		return nil, fmt.Errorf("%w: bounds [%v, %v] must satisfy min < max", ErrInvalidParameter, min, max)
	}

	n := 1
	for i := 0; i < dims; i++ {
		hi, lo := bits.Mul64(uint64(n), uint64(increments))
		if hi != 0 || lo > math.MaxInt {
			return nil, fmt.Errorf("%w: grid of %d^%d points is too large", ErrInvalidParameter, increments, dims)
		}
		n = int(lo)
	}

	return &Grid{
		dims:       dims,
		increments: increments,
		min:        min,
		max:        max,
		axis:       floats.Span(make([]float64, increments), min, max),
		n:          n,
	}, nil
}

// Len returns the number of positions, Increments^Dims.
func (g *Grid) Len() int { return g.n }

// Dims returns the number of axes.
func (g *Grid) Dims() int { return g.dims }

// Increments returns the number of points per axis.
func (g *Grid) Increments() int { return g.increments }

// Bounds returns the shared per-axis bounds.
func (g *Grid) Bounds() (min, max float64) { return g.min, g.max }

// Axis returns a copy of the per-axis sample values.
func (g *Grid) Axis() []float64 {
	return append([]float64(nil), g.axis...)
}

// Shape returns the D-dimensional array shape of per-position outputs.
func (g *Grid) Shape() []int {
	shape := make([]int, g.dims)
	for i := range shape {
		shape[i] = g.increments
	}
	return shape
}

// Coords writes the per-axis indices of position i into dst.
func (g *Grid) Coords(dst []int, i int) []int {
	if cap(dst) < g.dims {
		dst = make([]int, g.dims)
	}
	dst = dst[:g.dims]
	for d := g.dims - 1; d >= 0; d-- {
		dst[d] = i % g.increments
		i /= g.increments
	}
	return dst
}

// Index is the inverse of Coords.
func (g *Grid) Index(coords []int) int {
	i := 0
	for _, c := range coords {
		i = i*g.increments + c
	}
	return i
}

// Position writes the coordinates of position i into dst.
func (g *Grid) Position(dst []float64, i int) []float64 {
	dst = resize(dst, g.dims)
	for d := g.dims - 1; d >= 0; d-- {
		dst[d] = g.axis[i%g.increments]
		i /= g.increments
	}
	return dst
}

// Positions materializes every position in traversal order.
func (g *Grid) Positions() [][]float64 {
	out := make([][]float64, g.n)
	flat := make([]float64, g.n*g.dims)
	for i := range out {
		out[i] = g.Position(flat[i*g.dims:(i+1)*g.dims:(i+1)*g.dims], i)
	}
	return out
}

// Select returns the retained-index set of size min(l, Len()). Indices are
// spread evenly over the flattened range [0, Len()), not over space.
func (g *Grid) Select(l int) (*Selection, error) {
	if l < 0 {
		return nil, fmt.Errorf("%w: retained plane count = %d, must not be negative", ErrInvalidParameter, l)
	}
	return newSelection(g.n, Spread(g.n, l)), nil
}

// Spread returns min(l, n) indices evenly spaced over [0, n):
// floor(k·(n-1)/(l-1)) for k in [0, l). It returns every index when l >= n.
func Spread(n, l int) []int {
	switch {
	case l <= 0 || n <= 0:
		return nil
	case l >= n:
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	case l == 1:
		return []int{0}
	}
	out := make([]int, l)
	for k := range out {
		hi, lo := bits.Mul64(uint64(k), uint64(n-1))
		q, _ := bits.Div64(hi, lo, uint64(l-1))
		out[k] = int(q)
	}
	return out
}

// Selection is a sorted set of retained grid indices with O(1) membership.
type Selection struct {
	indices []int
	bits    []uint64
}

func newSelection(n int, indices []int) *Selection {
	s := &Selection{
		indices: indices,
		bits:    make([]uint64, (n+63)/64),
	}
	for _, i := range indices {
		s.bits[i/64] |= 1 << (uint(i) % 64)
	}
	return s
}

// Len returns the number of retained indices.
func (s *Selection) Len() int { return len(s.indices) }

// Contains reports whether grid index i is retained.
func (s *Selection) Contains(i int) bool {
	if i < 0 || i/64 >= len(s.bits) {
		return false
	}
	return s.bits[i/64]&(1<<(uint(i)%64)) != 0
}

// Indices returns a copy of the retained indices in ascending order.
func (s *Selection) Indices() []int {
	return append([]int(nil), s.indices...)
}
