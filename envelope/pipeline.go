package envelope

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Params configures one pipeline run.
type Params struct {
	// Planes is the retained plane count L per kind; values above the grid
	// size keep every plane.
	Planes int
	Blend  Blend
	Options
	// OnStage is called as each stage begins.
	OnStage func(Stage)
}

// Validate checks everything that can be checked before any work starts.
func (p Params) Validate() error {
	if p.Planes < 1 {
		return fmt.Errorf("%w: retained plane count = %d, must be at least 1", ErrInvalidParameter, p.Planes)
	}
	if math.IsNaN(p.Curvature) || p.Curvature < 0 || math.IsInf(p.Curvature, 0) {
		return fmt.Errorf("%w: curvature = %v, must be finite and non-negative", ErrInvalidParameter, p.Curvature)
	}
	if p.Parallel.Workers < 0 || p.Parallel.BatchSize < 0 {
		return fmt.Errorf("%w: workers = %d, batch size = %d, must not be negative",
			ErrInvalidParameter, p.Parallel.Workers, p.Parallel.BatchSize)
	}
	return p.Blend.Validate()
}

func (p Params) enter(stage Stage) {
	if p.OnStage != nil {
		p.OnStage(stage)
	}
}

// Result is the output of Run. Every per-position slice is in grid order.
type Result struct {
	Grid         *Grid
	Selection    *Selection
	Accumulation *Accumulation
	Envelopes    *EnvelopeSet

	// Field is the ground truth Σ Value at each position.
	Field []float64
	// Reconstructed is (Upper + Lower) / 2 from the envelopes.
	Reconstructed []float64
	// Error is Reconstructed - Field.
	Error []float64
	// Upper and Lower are the one-sided envelopes in field units.
	Upper []float64
	Lower []float64
}

// Run validates its inputs, then accumulates, selects and extracts planes,
// reconstructs every grid position and compares with the ground truth.
func Run(ctx context.Context, bumps *BumpSet, grid *Grid, params Params) (*Result, error) {
	params.enter(StageValidate)
	if bumps == nil || grid == nil {
		return nil, fmt.Errorf("%w: bumps and grid are required", ErrInvalidParameter)
	}
	if bumps.Dims() != grid.Dims() {
		return nil, fmt.Errorf("%w: bumps have %d dimensions, grid has %d", ErrInvalidParameter, bumps.Dims(), grid.Dims())
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	sel, err := grid.Select(params.Planes)
	if err != nil {
		return nil, err
	}

	params.enter(StageAccumulate)
	acc, err := Accumulate(ctx, bumps, grid, params.Options)
	if err != nil {
		return nil, fmt.Errorf("accumulating: %w", err)
	}

	params.enter(StageExtract)
	set := Extract(acc, grid, sel)
	ev, err := NewEvaluator(set, params.Blend)
	if err != nil {
		return nil, err
	}

	params.enter(StageReconstruct)
	rec, err := Reconstruct(ctx, ev, grid, params.Options)
	if err != nil {
		return nil, fmt.Errorf("reconstructing: %w", err)
	}

	params.enter(StageCompare)
	return &Result{
		Grid:          grid,
		Selection:     sel,
		Accumulation:  acc,
		Envelopes:     set,
		Field:         acc.Field,
		Reconstructed: rec.Total,
		Error:         floats.SubTo(make([]float64, grid.Len()), rec.Total, acc.Field),
		Upper:         rec.Upper,
		Lower:         rec.Lower,
	}, nil
}
