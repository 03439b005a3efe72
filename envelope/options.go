package envelope

import (
	"sync"

	"github.com/pthm-cable/envelope/parallel"
)

// Stage names a pipeline stage.
type Stage string

const (
	StageValidate    Stage = "validate"
	StageAccumulate  Stage = "accumulate"
	StageExtract     Stage = "extract"
	StageReconstruct Stage = "reconstruct"
	StageCompare     Stage = "compare"
)

// ProgressFunc receives the number of grid points finished so far in a
// stage. Calls are serialized.
type ProgressFunc func(stage Stage, done, total int)

// Options controls the parallel stages.
type Options struct {
	Parallel parallel.Options
	// Curvature overrides DefaultCurvature when positive.
	Curvature float64
	Progress  ProgressFunc
}

func (o Options) convexifier() Convexifier {
	if o.Curvature > 0 {
		return Convexifier{Curvature: o.Curvature}
	}
	return DefaultConvexifier
}

// tracker serializes progress reports from concurrent workers.
type tracker struct {
	mu    sync.Mutex
	fn    ProgressFunc
	stage Stage
	done  int
	total int
}

func (o Options) track(stage Stage, total int) *tracker {
	if o.Progress == nil {
		return nil
	}
	return &tracker{fn: o.Progress, stage: stage, total: total}
}

func (t *tracker) add(k int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.done += k
	t.fn(t.stage, t.done, t.total)
	t.mu.Unlock()
}
