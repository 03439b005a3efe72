package telemetry

import (
	"io"
	"log/slog"

	"github.com/pthm-cable/envelope/envelope"
)

// NewLogger builds a JSON or text slog logger at the given level
// ("debug", "info", "warn" or "error"; anything else is info).
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ProgressLogger returns a progress callback that logs at debug level each
// time a stage crosses another step fraction of its grid points, and once
// on completion.
func ProgressLogger(logger *slog.Logger, step float64) envelope.ProgressFunc {
	if step <= 0 || step > 1 {
		step = 0.1
	}
	var current envelope.Stage
	var next float64
	return func(stage envelope.Stage, done, total int) {
		if stage != current {
			current, next = stage, step
		}
		if total <= 0 {
			return
		}
		frac := float64(done) / float64(total)
		if frac < next && done < total {
			return
		}
		for next <= frac {
			next += step
		}
		logger.Debug("progress", "stage", stage, "done", done, "total", total)
	}
}
