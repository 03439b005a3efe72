package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/envelope/config"
	"github.com/pthm-cable/envelope/envelope"
)

// Point is a coordinate vector written to CSV as space-separated values.
type Point []float64

// MarshalCSV implements gocsv.TypeMarshaller.
func (p Point) MarshalCSV() (string, error) {
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " "), nil
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (p *Point) UnmarshalCSV(s string) error {
	fields := strings.Fields(s)
	out := make(Point, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return fmt.Errorf("point component %d: %w", i, err)
		}
		out[i] = v
	}
	*p = out
	return nil
}

// SampleRow is one grid position of a run.
type SampleRow struct {
	Index         int     `csv:"index"`
	Position      Point   `csv:"position"`
	Field         float64 `csv:"field"`
	Reconstructed float64 `csv:"reconstructed"`
	Error         float64 `csv:"error"`
	Upper         float64 `csv:"upper"`
	Lower         float64 `csv:"lower"`
}

// PlaneRow is one retained tangent plane.
type PlaneRow struct {
	Kind      string  `csv:"kind"`
	Source    int     `csv:"source"`
	Position  Point   `csv:"position"`
	Slope     Point   `csv:"slope"`
	Intercept float64 `csv:"intercept"`
}

// SweepRow is one plane count visited by a sweep.
type SweepRow struct {
	Planes   int     `csv:"planes"`
	Retained int     `csv:"retained"`
	MAE      float64 `csv:"mae"`
	RMSE     float64 `csv:"rmse"`
	MaxAbs   float64 `csv:"max_abs"`
	Bias     float64 `csv:"bias"`
	RunMS    float64 `csv:"run_ms"`
	// Time in the reconstruct stage, which grows with the retained count
	ReconstructMS float64 `csv:"reconstruct_ms"`
}

// SampleRows flattens a result into one row per grid position.
func SampleRows(res *envelope.Result) []SampleRow {
	rows := make([]SampleRow, res.Grid.Len())
	for i := range rows {
		rows[i] = SampleRow{
			Index:         i,
			Position:      res.Grid.Position(nil, i),
			Field:         res.Field[i],
			Reconstructed: res.Reconstructed[i],
			Error:         res.Error[i],
			Upper:         res.Upper[i],
			Lower:         res.Lower[i],
		}
	}
	return rows
}

// PlaneRows lists convex planes followed by concave planes.
func PlaneRows(res *envelope.Result) []PlaneRow {
	rows := make([]PlaneRow, 0, 2*res.Envelopes.Len())
	for _, kind := range []envelope.Kind{envelope.Convex, envelope.Concave} {
		for _, pl := range res.Envelopes.Planes(kind) {
			rows = append(rows, PlaneRow{
				Kind:      kind.String(),
				Source:    pl.Source,
				Position:  res.Grid.Position(nil, pl.Source),
				Slope:     append(Point(nil), pl.Slope...),
				Intercept: pl.Intercept,
			})
		}
	}
	return rows
}

// csvLog is a CSV file opened on first write. The header is written once.
type csvLog struct {
	path          string
	file          *os.File
	headerWritten bool
}

func (l *csvLog) write(records any) error {
	if l.file == nil {
		f, err := os.Create(l.path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Base(l.path), err)
		}
		l.file = f
	}

	if !l.headerWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, l.file); err != nil {
			return fmt.Errorf("writing %s: %w", filepath.Base(l.path), err)
		}
		l.headerWritten = true
		return nil
	}
	// Subsequent writes skip headers
	if err := gocsv.MarshalWithoutHeaders(records, l.file); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(l.path), err)
	}
	return nil
}

func (l *csvLog) close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// OutputManager handles structured run output: CSV logs, YAML snapshots
// and plots, all in one directory.
type OutputManager struct {
	dir     string
	samples *csvLog
	planes  *csvLog
	perf    *csvLog
	sweep   *csvLog
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled). All methods accept a nil receiver.
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	return &OutputManager{
		dir:     dir,
		samples: &csvLog{path: filepath.Join(dir, "samples.csv")},
		planes:  &csvLog{path: filepath.Join(dir, "planes.csv")},
		perf:    &csvLog{path: filepath.Join(dir, "perf.csv")},
		sweep:   &csvLog{path: filepath.Join(dir, "sweep.csv")},
	}, nil
}

// WriteConfig saves the effective configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteRecord saves the run record as run.yaml.
func (om *OutputManager) WriteRecord(rec RunRecord) error {
	if om == nil {
		return nil
	}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling run record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(om.dir, "run.yaml"), data, 0644); err != nil {
		return fmt.Errorf("writing run.yaml: %w", err)
	}
	return nil
}

// WriteResult writes every grid position to samples.csv and every retained
// plane to planes.csv.
func (om *OutputManager) WriteResult(res *envelope.Result) error {
	if om == nil {
		return nil
	}
	if err := om.samples.write(SampleRows(res)); err != nil {
		return err
	}
	return om.planes.write(PlaneRows(res))
}

// WritePerf appends a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, run int) error {
	if om == nil {
		return nil
	}
	return om.perf.write([]PerfStatsCSV{stats.ToCSV(run)})
}

// WriteSweep appends a sweep row to sweep.csv.
func (om *OutputManager) WriteSweep(row SweepRow) error {
	if om == nil {
		return nil
	}
	return om.sweep.write([]SweepRow{row})
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	for _, l := range []*csvLog{om.samples, om.planes, om.perf, om.sweep} {
		if err := l.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewSweepRow summarizes one sweep step.
func NewSweepRow(planes int, res *envelope.Result, sample PerfSample) SweepRow {
	stats := ComputeErrorStats(res.Error)
	return SweepRow{
		Planes:        planes,
		Retained:      res.Selection.Len(),
		MAE:           stats.MAE,
		RMSE:          stats.RMSE,
		MaxAbs:        stats.MaxAbs,
		Bias:          stats.Bias,
		RunMS:         millis(sample.RunDuration),
		ReconstructMS: millis(sample.Phases[envelope.StageReconstruct]),
	}
}
