package envelope

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// DefaultCurvature is the numerator of the per-dimension convexification
// constant c = Curvature / std². It is an empirical bound: large bump weights
// or tightly packed bumps can still leave the lifted surface non-convex.
const DefaultCurvature = 0.75

// Bump is one anisotropic Gaussian contribution to the field.
type Bump struct {
	Means  []float64
	Stds   []float64
	Weight float64
}

// NewBump copies means and stds into a validated Bump.
func NewBump(means, stds []float64, weight float64) (Bump, error) {
	b := Bump{
		Means:  append([]float64(nil), means...),
		Stds:   append([]float64(nil), stds...),
		Weight: weight,
	}
	if err := b.Validate(); err != nil {
		return Bump{}, err
	}
	return b, nil
}

// Dims returns the number of dimensions of the bump.
func (b Bump) Dims() int {
	return len(b.Means)
}

// Validate checks that every std is positive and finite and that means and
// weight are finite.
func (b Bump) Validate() error {
	if len(b.Means) == 0 {
		return fmt.Errorf("%w: bump has no dimensions", ErrInvalidParameter)
	}
	if len(b.Means) != len(b.Stds) {
		return fmt.Errorf("%w: bump has %d means but %d stds", ErrInvalidParameter, len(b.Means), len(b.Stds))
	}
	for i, s := range b.Stds {
		if !(s > 0) || math.IsInf(s, 1) {
			return fmt.Errorf("%w: std[%d] = %v, must be positive and finite", ErrInvalidParameter, i, s)
		}
		if m := b.Means[i]; math.IsNaN(m) || math.IsInf(m, 0) {
			return fmt.Errorf("%w: mean[%d] = %v, must be finite", ErrInvalidParameter, i, m)
		}
	}
	if math.IsNaN(b.Weight) || math.IsInf(b.Weight, 0) {
		return fmt.Errorf("%w: weight = %v, must be finite", ErrInvalidParameter, b.Weight)
	}
	return nil
}

// Value returns weight · Π exp(-(p_i-mean_i)² / (2·std_i²)).
func Value(p []float64, b Bump) float64 {
	out := b.Weight
	for i, x := range p {
		d := x - b.Means[i]
		s := b.Stds[i]
		out *= math.Exp(-d * d / (2 * s * s))
	}
	return out
}

// Convexifier lifts a bump into a locally convex (vex) and locally concave
// (cave) surface by adding or subtracting Σ c_i·p_i², c_i = Curvature/std_i².
type Convexifier struct {
	Curvature float64
}

// DefaultConvexifier uses DefaultCurvature.
var DefaultConvexifier = Convexifier{Curvature: DefaultCurvature}

// Constant returns the convexification constant for one dimension.
func (c Convexifier) Constant(std float64) float64 {
	return c.Curvature / (std * std)
}

// Quadratic returns Σ c_i·p_i².
func (c Convexifier) Quadratic(p []float64, b Bump) float64 {
	var q float64
	for i, x := range p {
		q += c.Constant(b.Stds[i]) * x * x
	}
	return q
}

// VexValue returns Value + Quadratic.
func (c Convexifier) VexValue(p []float64, b Bump) float64 {
	return Value(p, b) + c.Quadratic(p, b)
}

// CaveValue returns Value - Quadratic.
func (c Convexifier) CaveValue(p []float64, b Bump) float64 {
	return Value(p, b) - c.Quadratic(p, b)
}

// VexGradient writes the gradient of VexValue at p into dst, allocating it
// if nil, and returns it.
func (c Convexifier) VexGradient(dst, p []float64, b Bump) []float64 {
	dst = resize(dst, len(p))
	v := Value(p, b)
	for i, x := range p {
		s := b.Stds[i]
		dst[i] = (b.Means[i]-x)/(s*s)*v + 2*c.Constant(s)*x
	}
	return dst
}

// CaveGradient writes the gradient of CaveValue at p into dst, allocating it
// if nil, and returns it.
func (c Convexifier) CaveGradient(dst, p []float64, b Bump) []float64 {
	dst = resize(dst, len(p))
	v := Value(p, b)
	for i, x := range p {
		s := b.Stds[i]
		dst[i] = (b.Means[i]-x)/(s*s)*v - 2*c.Constant(s)*x
	}
	return dst
}

// Decompose evaluates the bump once and returns its value together with the
// vex and cave values, writing both gradients. Results are identical to the
// individual VexValue/CaveValue/VexGradient/CaveGradient calls.
func (c Convexifier) Decompose(p []float64, b Bump, vexGrad, caveGrad []float64) (value, vex, cave float64) {
	value = Value(p, b)
	q := c.Quadratic(p, b)
	for i, x := range p {
		s := b.Stds[i]
		slope := (b.Means[i] - x) / (s * s) * value
		lift := 2 * c.Constant(s) * x
		vexGrad[i] = slope + lift
		caveGrad[i] = slope - lift
	}
	return value, value + q, value - q
}

// ConvexityConstant returns DefaultCurvature / std².
func ConvexityConstant(std float64) float64 {
	return DefaultConvexifier.Constant(std)
}

// VexValue uses DefaultConvexifier.
func VexValue(p []float64, b Bump) float64 {
	return DefaultConvexifier.VexValue(p, b)
}

// CaveValue uses DefaultConvexifier.
func CaveValue(p []float64, b Bump) float64 {
	return DefaultConvexifier.CaveValue(p, b)
}

// VexGradient uses DefaultConvexifier.
func VexGradient(dst, p []float64, b Bump) []float64 {
	return DefaultConvexifier.VexGradient(dst, p, b)
}

// CaveGradient uses DefaultConvexifier.
func CaveGradient(dst, p []float64, b Bump) []float64 {
	return DefaultConvexifier.CaveGradient(dst, p, b)
}

func resize(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	return s[:n]
}

// BumpSet stores N bumps of the same dimension contiguously, indexed by id.
type BumpSet struct {
	dims    int
	means   []float64 // len n*dims
	stds    []float64 // len n*dims
	weights []float64 // len n
}

// NewBumpSet validates and copies bumps. An empty set is allowed and
// describes the zero field.
func NewBumpSet(dims int, bumps ...Bump) (*BumpSet, error) {
	if dims < 1 {
		return nil, fmt.Errorf("%w: dimensions = %d, must be at least 1", ErrInvalidParameter, dims)
	}
	s := &BumpSet{
		dims:    dims,
		means:   make([]float64, 0, len(bumps)*dims),
		stds:    make([]float64, 0, len(bumps)*dims),
		weights: make([]float64, 0, len(bumps)),
	}
	for i, b := range bumps {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("bump %d: %w", i, err)
		}
		if b.Dims() != dims {
			return nil, fmt.Errorf("%w: bump %d has %d dimensions, want %d", ErrInvalidParameter, i, b.Dims(), dims)
		}
		s.means = append(s.means, b.Means...)
		s.stds = append(s.stds, b.Stds...)
		s.weights = append(s.weights, b.Weight)
	}
	return s, nil
}

// Len returns the number of bumps.
func (s *BumpSet) Len() int {
	return len(s.weights)
}

// Dims returns the dimension shared by every bump.
func (s *BumpSet) Dims() int {
	return s.dims
}

// At returns bump i. The returned slices alias the set's storage and must
// not be modified.
func (s *BumpSet) At(i int) Bump {
	lo, hi := i*s.dims, (i+1)*s.dims
	return Bump{
		Means:  s.means[lo:hi:hi],
		Stds:   s.stds[lo:hi:hi],
		Weight: s.weights[i],
	}
}

// Bumps returns copies of every bump in id order.
func (s *BumpSet) Bumps() []Bump {
	out := make([]Bump, s.Len())
	for i := range out {
		b := s.At(i)
		out[i] = Bump{
			Means:  append([]float64(nil), b.Means...),
			Stds:   append([]float64(nil), b.Stds...),
			Weight: b.Weight,
		}
	}
	return out
}

// PeakWeight returns the largest |weight| in the set, the height of the
// tallest single bump. It is 0 for an empty set.
func (s *BumpSet) PeakWeight() float64 {
	if s.Len() == 0 {
		return 0
	}
	return floats.Norm(s.weights, math.Inf(1))
}

// Field returns Σ Value(p, bump) over the set.
func (s *BumpSet) Field(p []float64) float64 {
	var total float64
	for i := 0; i < s.Len(); i++ {
		total += Value(p, s.At(i))
	}
	return total
}
