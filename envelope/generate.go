package envelope

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Ranges controls random bump generation.
type Ranges struct {
	// Spread is the width of the interval means are drawn from, centred on 0.
	Spread float64
	// Narrowness is the upper bound of the std interval (0, Narrowness).
	Narrowness float64
	// Weighting is the width of the interval weights are drawn from, centred on 0.
	Weighting float64
}

// Validate checks the ranges can produce valid bumps.
func (r Ranges) Validate() error {
	if !(r.Narrowness > 0) || math.IsInf(r.Narrowness, 0) {
		return fmt.Errorf("%w: narrowness = %v, must be positive and finite", ErrInvalidParameter, r.Narrowness)
	}
	if !(r.Spread >= 0) || math.IsInf(r.Spread, 0) {
		return fmt.Errorf("%w: spread = %v, must be non-negative and finite", ErrInvalidParameter, r.Spread)
	}
	if !(r.Weighting >= 0) || math.IsInf(r.Weighting, 0) {
		return fmt.Errorf("%w: weighting = %v, must be non-negative and finite", ErrInvalidParameter, r.Weighting)
	}
	return nil
}

// Generate draws n bumps of the given dimension. For each bump, every
// dimension draws its mean then its std, and the weight is drawn last.
// A std that lands exactly on 0 is redrawn.
func Generate(n, dims int, r Ranges, src rand.Source) (*BumpSet, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: bump count = %d, must not be negative", ErrInvalidParameter, n)
	}
	if dims < 1 {
		return nil, fmt.Errorf("%w: dimensions = %d, must be at least 1", ErrInvalidParameter, dims)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	mean := distuv.Uniform{Min: -r.Spread / 2, Max: r.Spread / 2, Src: src}
	std := distuv.Uniform{Min: 0, Max: r.Narrowness, Src: src}
	weight := distuv.Uniform{Min: -r.Weighting / 2, Max: r.Weighting / 2, Src: src}

	bumps := make([]Bump, n)
	for j := range bumps {
		b := Bump{
			Means: make([]float64, dims),
			Stds:  make([]float64, dims),
		}
		for i := 0; i < dims; i++ {
			b.Means[i] = mean.Rand()
			s := std.Rand()
			for s == 0 {
				s = std.Rand()
			}
			b.Stds[i] = s
		}
		b.Weight = weight.Rand()
		bumps[j] = b
	}
	return NewBumpSet(dims, bumps...)
}

// NewSource returns the deterministic source used for seeded generation.
func NewSource(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}
