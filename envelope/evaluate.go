package envelope

import (
	"context"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/envelope/parallel"
)

const (
	// DefaultScaleFactor divides every plane value before blending and is
	// multiplied back into the combined reconstruction.
	DefaultScaleFactor = 1e7
	// DefaultTemperature is the soft blend temperature. It applies to scaled
	// plane values, so in field units it is 1e-5.
	DefaultTemperature = 1e-5 / DefaultScaleFactor

	// sharpRatio bounds the field-unit temperature relative to the field's
	// span for a soft blend to stay close to the hard one.
	sharpRatio = 1e-3
)

// Mode selects how plane values are collapsed into an envelope value.
type Mode int

const (
	// Hard takes the exact max (convex) or min (concave).
	Hard Mode = iota
	// Soft takes a softmax (convex) or softmin (concave) weighted average.
	Soft
)

func (m Mode) String() string {
	switch m {
	case Hard:
		return "hard"
	case Soft:
		return "soft"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses "hard" or "soft". An empty string is rejected.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hard":
		return Hard, nil
	case "soft":
		return Soft, nil
	}
	return Hard, fmt.Errorf("%w: unknown blend mode %q", ErrInvalidParameter, s)
}

// Blend configures envelope evaluation.
type Blend struct {
	Mode        Mode
	Temperature float64
	ScaleFactor float64
}

// DefaultBlend returns a hard blend with the default constants.
func DefaultBlend() Blend {
	return Blend{Mode: Hard, Temperature: DefaultTemperature, ScaleFactor: DefaultScaleFactor}
}

// Validate rejects a non-positive soft temperature (ErrNumericDegenerate)
// and a non-positive or non-finite scale factor (ErrInvalidParameter).
func (b Blend) Validate() error {
	if b.Mode != Hard && b.Mode != Soft {
		return fmt.Errorf("%w: unknown blend mode %d", ErrInvalidParameter, int(b.Mode))
	}
	if !(b.ScaleFactor > 0) || math.IsInf(b.ScaleFactor, 0) {
		return fmt.Errorf("%w: scale factor = %v, must be positive and finite", ErrInvalidParameter, b.ScaleFactor)
	}
	if b.Mode == Soft && (!(b.Temperature > 0) || math.IsInf(b.Temperature, 0)) {
		return fmt.Errorf("%w: soft temperature = %v, must be positive and finite", ErrNumericDegenerate, b.Temperature)
	}
	return nil
}

// FieldTemperature is the temperature in field units, Temperature ·
// ScaleFactor. Softmax weights fall off with plane gaps measured in these
// units.
func (b Blend) FieldTemperature() float64 {
	return b.Temperature * b.ScaleFactor
}

// Sharp reports whether the blend can resolve features of the given span
// (field units). Hard blends always can. A soft blend needs a field
// temperature well below the span, otherwise the softmax flattens toward a
// plain average of the planes.
func (b Blend) Sharp(span float64) bool {
	if b.Mode == Hard || !(span > 0) {
		return true
	}
	return b.FieldTemperature() <= sharpRatio*span
}

// Reduce collapses scaled plane values ys into one envelope value: the max
// (Convex) or min (Concave) in hard mode, the softmax- or softmin-weighted
// average in soft mode. It panics if ys is empty.
func (b Blend) Reduce(kind Kind, ys []float64) float64 {
	ref := floats.Max(ys)
	sign := 1.0
	if kind == Concave {
		ref = floats.Min(ys)
		sign = -1
	}
	if b.Mode == Hard {
		return ref
	}

	// Shift by the extreme so the largest weight is exactly 1.
	var num, den float64
	for _, y := range ys {
		w := math.Exp(sign * (y - ref) / b.Temperature)
		num += w * y
		den += w
	}
	return num / den
}

// Evaluator reconstructs values from an EnvelopeSet. It is read-only and
// safe for concurrent use.
type Evaluator struct {
	set   *EnvelopeSet
	blend Blend
}

// NewEvaluator validates blend and requires at least one plane of each kind.
func NewEvaluator(set *EnvelopeSet, blend Blend) (*Evaluator, error) {
	if err := blend.Validate(); err != nil {
		return nil, err
	}
	if set == nil || len(set.Convex) == 0 || len(set.Concave) == 0 {
		return nil, fmt.Errorf("%w: envelope needs at least one plane of each kind", ErrInvalidParameter)
	}
	dims := len(set.Convex[0].Slope)
	for _, kind := range []Kind{Convex, Concave} {
		for i, pl := range set.Planes(kind) {
			if len(pl.Slope) != dims {
				return nil, fmt.Errorf("%w: %s plane %d has %d dimensions, want %d",
					ErrInvalidParameter, kind, i, len(pl.Slope), dims)
			}
		}
	}
	return &Evaluator{set: set, blend: blend}, nil
}

// Dims returns the dimension shared by every plane.
func (e *Evaluator) Dims() int { return len(e.set.Convex[0].Slope) }

// Blend returns the evaluator's blend settings.
func (e *Evaluator) Blend() Blend { return e.blend }

// Set returns the planes being evaluated.
func (e *Evaluator) Set() *EnvelopeSet { return e.set }

// Affine writes (slope·p + intercept) / ScaleFactor for every plane of the
// given kind into dst.
func (e *Evaluator) Affine(dst []float64, kind Kind, p []float64) []float64 {
	planes := e.set.Planes(kind)
	dst = resize(dst, len(planes))
	for i, pl := range planes {
		dst[i] = pl.At(p) / e.blend.ScaleFactor
	}
	return dst
}

// Envelope returns the blended value of one side at p, in scaled units.
// It gives the same result as Reduce over Affine without allocating.
func (e *Evaluator) Envelope(kind Kind, p []float64) float64 {
	planes := e.set.Planes(kind)
	sign := 1.0
	if kind == Concave {
		sign = -1
	}
	scale := e.blend.ScaleFactor

	if e.blend.Mode == Hard {
		best := planes[0].At(p) / scale
		for _, pl := range planes[1:] {
			y := pl.At(p) / scale
			if sign*y > sign*best {
				best = y
			}
		}
		return best
	}

	// Online softmax: m is the running max of z = sign·y/T, s and t are the
	// weight sum and weighted y sum relative to exp(m).
	temp := e.blend.Temperature
	m := math.Inf(-1)
	var s, t float64
	for _, pl := range planes {
		y := pl.At(p) / scale
		z := sign * y / temp
		if z > m {
			r := math.Exp(m - z)
			s = s*r + 1
			t = t*r + y
			m = z
			continue
		}
		w := math.Exp(z - m)
		s += w
		t += w * y
	}
	return t / s
}

// Upper returns the convex-side envelope at p, in scaled units.
func (e *Evaluator) Upper(p []float64) float64 {
	return e.Envelope(Convex, p)
}

// Lower returns the concave-side envelope at p, in scaled units.
func (e *Evaluator) Lower(p []float64) float64 {
	return e.Envelope(Concave, p)
}

// Total averages both sides and undoes the scaling:
// (Upper + Lower) · ScaleFactor/2.
func (e *Evaluator) Total(p []float64) float64 {
	return (e.Upper(p) + e.Lower(p)) * (e.blend.ScaleFactor / 2)
}

// Reconstruction holds the reconstructed values at every grid position.
// Upper and Lower are multiplied back by the scale factor, so they
// approximate the accumulated vex and cave totals.
type Reconstruction struct {
	Total []float64
	Upper []float64
	Lower []float64
}

// Reconstruct evaluates ev at every position of grid.
func Reconstruct(ctx context.Context, ev *Evaluator, grid *Grid, opts Options) (*Reconstruction, error) {
	if ev == nil || grid == nil {
		return nil, fmt.Errorf("%w: evaluator and grid are required", ErrInvalidParameter)
	}
	if d := ev.Dims(); d != grid.Dims() {
		return nil, fmt.Errorf("%w: planes have %d dimensions, grid has %d", ErrInvalidParameter, d, grid.Dims())
	}

	n := grid.Len()
	scale := ev.blend.ScaleFactor
	rec := &Reconstruction{
		Total: make([]float64, n),
		Upper: make([]float64, n),
		Lower: make([]float64, n),
	}
	positions := parallel.NewScratch(opts.Parallel, func() []float64 {
		return make([]float64, grid.Dims())
	})
	progress := opts.track(StageReconstruct, n)

	err := parallel.ForChunks(ctx, n, opts.Parallel, func(start, end, worker int) {
		p := positions.Get(worker)
		for i := start; i < end; i++ {
			grid.Position(p, i)
			upper, lower := ev.Upper(p), ev.Lower(p)
			rec.Total[i] = (upper + lower) * (scale / 2)
			rec.Upper[i] = upper * scale
			rec.Lower[i] = lower * scale
		}
		progress.add(end - start)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}
