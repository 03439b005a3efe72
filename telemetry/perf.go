package telemetry

import (
	"log/slog"
	"time"

	"github.com/pthm-cable/envelope/envelope"
)

// Phases timed for a pipeline run, in execution order.
var Phases = []envelope.Stage{
	envelope.StageValidate,
	envelope.StageAccumulate,
	envelope.StageExtract,
	envelope.StageReconstruct,
	envelope.StageCompare,
}

// PerfSample holds timing data for a single run.
type PerfSample struct {
	RunDuration time.Duration
	Points      int
	Phases      map[envelope.Stage]time.Duration
}

// PerfCollector tracks pipeline timings over a rolling window of runs.
// It is not safe for concurrent use; runs are timed one at a time.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[envelope.Stage]time.Duration
	runStart      time.Time
	phaseStart    time.Time
	lastPhase     envelope.Stage

	now func() time.Time
}

// NewPerfCollector creates a new performance collector.
// windowSize: number of runs to average over.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 20
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[envelope.Stage]time.Duration),
		now:           time.Now,
	}
}

// StartRun begins timing a new pipeline run.
func (p *PerfCollector) StartRun() {
	p.runStart = p.now()
	p.currentPhases = make(map[envelope.Stage]time.Duration)
	p.lastPhase = ""
}

// StartPhase ends the previous phase, if any, and begins timing phase.
// Its signature matches envelope.Params.OnStage.
func (p *PerfCollector) StartPhase(phase envelope.Stage) {
	now := p.now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndRun finishes timing the current run over points grid positions and
// records the sample. The sample is returned for per-run reporting.
func (p *PerfCollector) EndRun(points int) PerfSample {
	now := p.now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.lastPhase = ""

	sample := PerfSample{
		RunDuration: now.Sub(p.runStart),
		Points:      points,
		Phases:      p.currentPhases,
	}

	p.samples[p.writeIndex] = sample
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
	return sample
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	Runs int

	AvgRunDuration time.Duration
	MinRunDuration time.Duration
	MaxRunDuration time.Duration

	// Phase breakdown (average durations)
	PhaseAvg map[envelope.Stage]time.Duration

	// Phase percentages of total run time
	PhasePct map[envelope.Stage]float64

	// Grid positions processed per second, across the whole run
	PointsPerSecond float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg: make(map[envelope.Stage]time.Duration),
			PhasePct: make(map[envelope.Stage]float64),
		}
	}

	var totalRun time.Duration
	var minRun, maxRun time.Duration
	var totalPoints int
	phaseSum := make(map[envelope.Stage]time.Duration)

	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		totalRun += s.RunDuration
		totalPoints += s.Points

		if i == 0 || s.RunDuration < minRun {
			minRun = s.RunDuration
		}
		if s.RunDuration > maxRun {
			maxRun = s.RunDuration
		}

		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	avgRun := totalRun / time.Duration(p.sampleCount)

	phaseAvg := make(map[envelope.Stage]time.Duration)
	phasePct := make(map[envelope.Stage]float64)
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avgRun > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avgRun) * 100
		}
	}

	var pointsPerSec float64
	if totalRun > 0 {
		pointsPerSec = float64(totalPoints) / totalRun.Seconds()
	}

	return PerfStats{
		Runs:            p.sampleCount,
		AvgRunDuration:  avgRun,
		MinRunDuration:  minRun,
		MaxRunDuration:  maxRun,
		PhaseAvg:        phaseAvg,
		PhasePct:        phasePct,
		PointsPerSecond: pointsPerSec,
	}
}

// LogStats logs performance statistics.
func (s PerfStats) LogStats() {
	attrs := []any{
		"runs", s.Runs,
		"avg_run_ms", s.AvgRunDuration.Milliseconds(),
		"min_run_ms", s.MinRunDuration.Milliseconds(),
		"max_run_ms", s.MaxRunDuration.Milliseconds(),
		"points_per_sec", int(s.PointsPerSecond),
	}

	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, string(phase)+"_pct", int(pct*10)/10.0)
		}
	}

	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("runs", s.Runs),
		slog.Int64("avg_run_ms", s.AvgRunDuration.Milliseconds()),
		slog.Int64("min_run_ms", s.MinRunDuration.Milliseconds()),
		slog.Int64("max_run_ms", s.MaxRunDuration.Milliseconds()),
		slog.Float64("points_per_sec", s.PointsPerSecond),
	}

	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok {
			attrs = append(attrs, slog.Float64(string(phase)+"_pct", pct))
		}
	}

	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	Run            int     `csv:"run"`
	Runs           int     `csv:"runs"`
	AvgRunMS       float64 `csv:"avg_run_ms"`
	MinRunMS       float64 `csv:"min_run_ms"`
	MaxRunMS       float64 `csv:"max_run_ms"`
	PointsPerSec   float64 `csv:"points_per_sec"`
	ValidatePct    float64 `csv:"validate_pct"`
	AccumulatePct  float64 `csv:"accumulate_pct"`
	ExtractPct     float64 `csv:"extract_pct"`
	ReconstructPct float64 `csv:"reconstruct_pct"`
	ComparePct     float64 `csv:"compare_pct"`
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(run int) PerfStatsCSV {
	return PerfStatsCSV{
		Run:            run,
		Runs:           s.Runs,
		AvgRunMS:       millis(s.AvgRunDuration),
		MinRunMS:       millis(s.MinRunDuration),
		MaxRunMS:       millis(s.MaxRunDuration),
		PointsPerSec:   s.PointsPerSecond,
		ValidatePct:    s.PhasePct[envelope.StageValidate],
		AccumulatePct:  s.PhasePct[envelope.StageAccumulate],
		ExtractPct:     s.PhasePct[envelope.StageExtract],
		ReconstructPct: s.PhasePct[envelope.StageReconstruct],
		ComparePct:     s.PhasePct[envelope.StageCompare],
	}
}
