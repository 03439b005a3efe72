package telemetry

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrorStats summarizes reconstruction error over a grid.
type ErrorStats struct {
	Points int     `csv:"points" yaml:"points"`
	MAE    float64 `csv:"mae" yaml:"mae"`         // Mean |err|
	RMSE   float64 `csv:"rmse" yaml:"rmse"`       // sqrt(mean err²)
	MaxAbs float64 `csv:"max_abs" yaml:"max_abs"` // max |err|
	Bias   float64 `csv:"bias" yaml:"bias"`       // Mean err, positive when reconstruction overshoots
	StdDev float64 `csv:"std_dev" yaml:"std_dev"`

	// Percentiles of |err|
	P50 float64 `csv:"p50" yaml:"p50"`
	P90 float64 `csv:"p90" yaml:"p90"`
	P99 float64 `csv:"p99" yaml:"p99"`
}

// Percentile calculates the p-th percentile of a sorted slice by linear
// interpolation of the empirical CDF. p is clamped to [0, 1]. Returns 0 if
// slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return stat.Quantile(math.Min(math.Max(p, 0), 1), stat.LinInterp, sorted, nil)
}

// ComputeErrorStats summarizes errs, typically envelope.Result.Error.
func ComputeErrorStats(errs []float64) ErrorStats {
	n := len(errs)
	if n == 0 {
		return ErrorStats{}
	}

	abs := make([]float64, n)
	for i, e := range errs {
		abs[i] = math.Abs(e)
	}
	sort.Float64s(abs)

	s := ErrorStats{
		Points: n,
		MAE:    floats.Sum(abs) / float64(n),
		RMSE:   floats.Norm(errs, 2) / math.Sqrt(float64(n)),
		MaxAbs: abs[n-1],
		P50:    Percentile(abs, 0.50),
		P90:    Percentile(abs, 0.90),
		P99:    Percentile(abs, 0.99),
	}
	s.Bias, s.StdDev = stat.PopMeanStdDev(errs, nil)
	return s
}

// LogValue implements slog.LogValuer for structured logging.
func (s ErrorStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("points", s.Points),
		slog.Float64("mae", s.MAE),
		slog.Float64("rmse", s.RMSE),
		slog.Float64("max_abs", s.MaxAbs),
		slog.Float64("bias", s.Bias),
		slog.Float64("std_dev", s.StdDev),
		slog.Float64("p50", s.P50),
		slog.Float64("p90", s.P90),
		slog.Float64("p99", s.P99),
	)
}

// LogStats logs the error summary using slog.
func (s ErrorStats) LogStats(label string) {
	slog.Info("error",
		"label", label,
		"points", s.Points,
		"mae", s.MAE,
		"rmse", s.RMSE,
		"max_abs", s.MaxAbs,
		"bias", s.Bias,
	)
}

// RunLabel describes a run in the form used for plot titles, e.g.
// "224L 2Dx40 n(1m, 0.5s)x200": retained planes, dimensions by increments,
// bump spread and narrowness, bump count.
func RunLabel(planes, dims, increments int, spread, narrowness float64, bumps int) string {
	return fmt.Sprintf("%dL %dDx%d n(%gm, %gs)x%d", planes, dims, increments, spread, narrowness, bumps)
}
