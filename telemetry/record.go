package telemetry

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/cpuid/v2"
)

// HostInfo describes the machine a run executed on.
type HostInfo struct {
	CPU           string   `yaml:"cpu"`
	Vendor        string   `yaml:"vendor"`
	PhysicalCores int      `yaml:"physical_cores"`
	LogicalCores  int      `yaml:"logical_cores"`
	GOMAXPROCS    int      `yaml:"gomaxprocs"`
	Features      []string `yaml:"features,flow"`
	GoVersion     string   `yaml:"go_version"`
}

// DetectHost reads host details from cpuid and the runtime.
func DetectHost() HostInfo {
	return HostInfo{
		CPU:           cpuid.CPU.BrandName,
		Vendor:        cpuid.CPU.VendorString,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		GOMAXPROCS:    runtime.GOMAXPROCS(0),
		Features:      cpuid.CPU.FeatureSet(),
		GoVersion:     runtime.Version(),
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (h HostInfo) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("cpu", h.CPU),
		slog.Int("physical_cores", h.PhysicalCores),
		slog.Int("logical_cores", h.LogicalCores),
		slog.Int("gomaxprocs", h.GOMAXPROCS),
		slog.Bool("avx2", cpuid.CPU.Supports(cpuid.AVX2)),
	)
}

// RunRecord is the summary written to run.yaml for each pipeline run.
type RunRecord struct {
	ID       string    `yaml:"id"`
	Label    string    `yaml:"label"`
	Started  time.Time `yaml:"started"`
	Duration string    `yaml:"duration"`
	Host     HostInfo  `yaml:"host"`

	Dimensions int    `yaml:"dimensions"`
	Increments int    `yaml:"increments"`
	GridSize   int    `yaml:"grid_size"`
	Bumps      int    `yaml:"bumps"`
	Planes     int    `yaml:"planes"` // Retained per kind after clamping
	Mode       string `yaml:"mode"`
	Workers    int    `yaml:"workers"`

	Error  ErrorStats         `yaml:"error"`
	Phases map[string]float64 `yaml:"phases_ms"`
}

// NewRunRecord starts a record with a fresh id.
func NewRunRecord(label string, started time.Time) RunRecord {
	return RunRecord{
		ID:      uuid.NewString(),
		Label:   label,
		Started: started,
		Host:    DetectHost(),
	}
}

// SetTiming fills Duration and Phases from a perf sample.
func (r *RunRecord) SetTiming(s PerfSample) {
	r.Duration = s.RunDuration.String()
	r.Phases = make(map[string]float64, len(s.Phases))
	for phase, d := range s.Phases {
		r.Phases[string(phase)] = millis(d)
	}
}
