package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/envelope/config"
	"github.com/pthm-cable/envelope/envelope"
)

func runPipeline(t *testing.T, dims, increments, planes int) *envelope.Result {
	t.Helper()
	bumps, err := envelope.Generate(4, dims, envelope.Ranges{Spread: 1, Narrowness: 0.5, Weighting: 2}, envelope.NewSource(7))
	require.NoError(t, err)
	grid, err := envelope.NewGrid(dims, increments, -1, 1)
	require.NoError(t, err)
	res, err := envelope.Run(context.Background(), bumps, grid, envelope.Params{Planes: planes, Blend: envelope.DefaultBlend()})
	require.NoError(t, err)
	return res
}

func TestNewOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("")
	require.NoError(t, err)
	assert.Nil(t, om)

	// Every method is a no-op on a nil manager.
	assert.NoError(t, om.WriteResult(nil))
	assert.NoError(t, om.WriteSweep(SweepRow{}))
	assert.NoError(t, om.WritePerf(PerfStats{}, 0))
	assert.NoError(t, om.WriteRecord(RunRecord{}))
	assert.NoError(t, om.WriteConfig(nil))
	paths, err := om.WritePlots(nil, "", 1, 1)
	assert.NoError(t, err)
	assert.Empty(t, paths)
	assert.Equal(t, "", om.Dir())
	assert.NoError(t, om.Close())
}

func TestWriteResultRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	om, err := NewOutputManager(dir)
	require.NoError(t, err)

	res := runPipeline(t, 2, 6, 5)
	require.NoError(t, om.WriteResult(res))
	require.NoError(t, om.Close())

	var samples []SampleRow
	require.NoError(t, gocsv.UnmarshalFile(mustOpen(t, filepath.Join(dir, "samples.csv")), &samples))
	require.Len(t, samples, 36)
	for i, row := range samples {
		assert.Equal(t, i, row.Index)
		assert.Equal(t, Point(res.Grid.Position(nil, i)), row.Position)
		assert.Equal(t, res.Field[i], row.Field)
		assert.Equal(t, res.Error[i], row.Error)
	}

	var planes []PlaneRow
	require.NoError(t, gocsv.UnmarshalFile(mustOpen(t, filepath.Join(dir, "planes.csv")), &planes))
	require.Len(t, planes, 10)
	assert.Equal(t, "convex", planes[0].Kind)
	assert.Equal(t, "concave", planes[5].Kind)
	assert.Equal(t, res.Selection.Indices(), []int{planes[0].Source, planes[1].Source, planes[2].Source, planes[3].Source, planes[4].Source})
	assert.Equal(t, res.Envelopes.Convex[2].Intercept, planes[2].Intercept)
	assert.Equal(t, Point(res.Envelopes.Concave[1].Slope), planes[6].Slope)
}

func TestWriteSweepAppends(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir)
	require.NoError(t, err)

	for _, l := range []int{10, 50, 200} {
		require.NoError(t, om.WriteSweep(SweepRow{Planes: l, Retained: l, MAE: 1 / float64(l)}))
	}
	require.NoError(t, om.Close())

	var rows []SweepRow
	require.NoError(t, gocsv.UnmarshalFile(mustOpen(t, filepath.Join(dir, "sweep.csv")), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, 50, rows[1].Planes)
	assert.Equal(t, 0.005, rows[2].MAE)

	// Files that were never written are not created.
	_, err = os.Stat(filepath.Join(dir, "samples.csv"))
	assert.True(t, os.IsNotExist(err))
}

func TestWritePerf(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir)
	require.NoError(t, err)

	pc, clock := newTestCollector(4)
	for run := 1; run <= 2; run++ {
		pc.StartRun()
		pc.StartPhase(envelope.StageAccumulate)
		clock.advance(2 * time.Millisecond)
		pc.EndRun(100)
		require.NoError(t, om.WritePerf(pc.Stats(), run))
	}
	require.NoError(t, om.Close())

	var rows []PerfStatsCSV
	require.NoError(t, gocsv.UnmarshalFile(mustOpen(t, filepath.Join(dir, "perf.csv")), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[1].Runs)
	assert.Equal(t, 100.0, rows[1].AccumulatePct)
}

func TestWriteRecordAndConfig(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir)
	require.NoError(t, err)
	defer om.Close()

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.NoError(t, om.WriteConfig(cfg))

	rec := NewRunRecord("5L 1Dx5 n(1m, 0.5s)x1", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	rec.Planes = 5
	rec.Error = ComputeErrorStats([]float64{0.5, -0.5})
	rec.SetTiming(PerfSample{RunDuration: 3 * time.Millisecond, Phases: map[envelope.Stage]time.Duration{
		envelope.StageAccumulate: 2 * time.Millisecond,
	}})
	require.NoError(t, om.WriteRecord(rec))

	data, err := os.ReadFile(filepath.Join(dir, "run.yaml"))
	require.NoError(t, err)
	var back RunRecord
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, rec.ID, back.ID)
	assert.Len(t, back.ID, 36)
	assert.Equal(t, rec.Label, back.Label)
	assert.True(t, rec.Started.Equal(back.Started))
	assert.Equal(t, "3ms", back.Duration)
	assert.Equal(t, 2.0, back.Phases["accumulate"])
	assert.Equal(t, 0.5, back.Error.MAE)

	loaded, err := config.Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, cfg.Domain, loaded.Domain)
}

func TestNewRunRecordUniqueIDs(t *testing.T) {
	a := NewRunRecord("a", time.Now())
	b := NewRunRecord("a", time.Now())
	assert.NotEqual(t, a.ID, b.ID)
	assert.Positive(t, a.Host.GOMAXPROCS)
}

func TestPointCSV(t *testing.T) {
	s, err := Point{-1, 0.25, 3}.MarshalCSV()
	require.NoError(t, err)
	assert.Equal(t, "-1 0.25 3", s)

	var p Point
	require.NoError(t, p.UnmarshalCSV(s))
	assert.Equal(t, Point{-1, 0.25, 3}, p)

	assert.Error(t, p.UnmarshalCSV("1 x"))
}

func mustOpen(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestNewSweepRow(t *testing.T) {
	res := runPipeline(t, 1, 30, 8)
	sample := PerfSample{
		RunDuration: 4 * time.Millisecond,
		Phases:      map[envelope.Stage]time.Duration{envelope.StageReconstruct: time.Millisecond},
	}
	row := NewSweepRow(8, res, sample)

	stats := ComputeErrorStats(res.Error)
	assert.Equal(t, 8, row.Planes)
	assert.Equal(t, 8, row.Retained)
	assert.Equal(t, stats.MAE, row.MAE)
	assert.Equal(t, stats.MaxAbs, row.MaxAbs)
	assert.Equal(t, 4.0, row.RunMS)
	assert.Equal(t, 1.0, row.ReconstructMS)
}
