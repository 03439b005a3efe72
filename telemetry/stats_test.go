package telemetry

import (
	"math"
	"testing"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty slice", []float64{}, 0.5, 0},
		{"single element", []float64{5.0}, 0.5, 5.0},
		{"p0", []float64{1, 2, 3, 4, 5}, 0.0, 1.0},
		{"p100", []float64{1, 2, 3, 4, 5}, 1.0, 5.0},
		{"below range", []float64{1, 2, 3}, -0.5, 1.0},
		{"above range", []float64{1, 2, 3}, 1.5, 3.0},
		{"p50 odd", []float64{1, 2, 3, 4, 5}, 0.5, 2.5},
		{"p50 even", []float64{1, 2, 3, 4}, 0.5, 2.0},
		{"p25 between", []float64{1, 2, 3, 4, 5, 6}, 0.25, 1.5},
		{"p10", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.1, 1.0},
		{"p90", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.9, 9.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.sorted, tt.p)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestComputeErrorStats(t *testing.T) {
	errs := []float64{-3, 1, 1, -1, 2}
	s := ComputeErrorStats(errs)

	checks := []struct {
		name      string
		got, want float64
	}{
		{"mae", s.MAE, 8.0 / 5},
		{"rmse", s.RMSE, math.Sqrt(16.0 / 5)},
		{"max_abs", s.MaxAbs, 3},
		{"bias", s.Bias, 0},
		{"std_dev", s.StdDev, math.Sqrt(16.0 / 5)},
		{"p50", s.P50, 1},
		{"p90", s.P90, 2.5},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > 1e-12 {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if s.Points != 5 {
		t.Errorf("points = %d, want 5", s.Points)
	}
	// Input is left unsorted.
	if errs[0] != -3 {
		t.Error("input was modified")
	}
}

func TestComputeErrorStatsEmpty(t *testing.T) {
	if s := ComputeErrorStats(nil); s != (ErrorStats{}) {
		t.Errorf("empty slice should return zero stats, got %+v", s)
	}
}

func TestRunLabel(t *testing.T) {
	got := RunLabel(224, 2, 40, 1, 0.5, 200)
	want := "224L 2Dx40 n(1m, 0.5s)x200"
	if got != want {
		t.Errorf("RunLabel = %q, want %q", got, want)
	}
}
