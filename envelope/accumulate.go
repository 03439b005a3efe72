package envelope

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/envelope/parallel"
)

// Accumulation holds, for every grid position, the field, vex and cave
// totals over all bumps and the vex and cave gradients, flattened as
// [i*Dims : (i+1)*Dims].
type Accumulation struct {
	dims      int
	Field     []float64
	Vex       []float64
	Cave      []float64
	VexSlope  []float64
	CaveSlope []float64
}

// Len returns the number of grid positions.
func (a *Accumulation) Len() int { return len(a.Field) }

// Dims returns the dimension of each gradient.
func (a *Accumulation) Dims() int { return a.dims }

// VexSlopeAt returns the vex gradient at position i. The slice aliases the
// accumulation.
func (a *Accumulation) VexSlopeAt(i int) []float64 {
	return a.VexSlope[i*a.dims : (i+1)*a.dims : (i+1)*a.dims]
}

// CaveSlopeAt returns the cave gradient at position i. The slice aliases
// the accumulation.
func (a *Accumulation) CaveSlopeAt(i int) []float64 {
	return a.CaveSlope[i*a.dims : (i+1)*a.dims : (i+1)*a.dims]
}

// accScratch holds per-worker reusable buffers.
type accScratch struct {
	pos      []float64
	vexGrad  []float64
	caveGrad []float64
}

// Accumulate reduces every bump at every grid position. Each position is
// independent and bumps are summed in id order, so the result does not
// depend on the worker count or batch size.
func Accumulate(ctx context.Context, bumps *BumpSet, grid *Grid, opts Options) (*Accumulation, error) {
	if bumps == nil || grid == nil {
		return nil, fmt.Errorf("%w: bumps and grid are required", ErrInvalidParameter)
	}
	if bumps.Dims() != grid.Dims() {
		return nil, fmt.Errorf("%w: bumps have %d dimensions, grid has %d", ErrInvalidParameter, bumps.Dims(), grid.Dims())
	}

	n, dims := grid.Len(), grid.Dims()
	conv := opts.convexifier()
	acc := &Accumulation{
		dims:      dims,
		Field:     make([]float64, n),
		Vex:       make([]float64, n),
		Cave:      make([]float64, n),
		VexSlope:  make([]float64, n*dims),
		CaveSlope: make([]float64, n*dims),
	}

	scratch := parallel.NewScratch(opts.Parallel, func() *accScratch {
		return &accScratch{
			pos:      make([]float64, dims),
			vexGrad:  make([]float64, dims),
			caveGrad: make([]float64, dims),
		}
	})
	progress := opts.track(StageAccumulate, n)

	err := parallel.ForChunks(ctx, n, opts.Parallel, func(start, end, worker int) {
		s := scratch.Get(worker)
		for i := start; i < end; i++ {
			p := grid.Position(s.pos, i)
			vexSlope := acc.VexSlopeAt(i)
			caveSlope := acc.CaveSlopeAt(i)

			var field, vex, cave float64
			for j := 0; j < bumps.Len(); j++ {
				v, vx, cv := conv.Decompose(p, bumps.At(j), s.vexGrad, s.caveGrad)
				field += v
				vex += vx
				cave += cv
				floats.Add(vexSlope, s.vexGrad)
				floats.Add(caveSlope, s.caveGrad)
			}
			acc.Field[i] = field
			acc.Vex[i] = vex
			acc.Cave[i] = cave
		}
		progress.add(end - start)
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}
