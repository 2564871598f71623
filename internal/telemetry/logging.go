package telemetry

import (
	"fmt"
	"io"
	"log/slog"
)

// NewLogger builds a text or JSON slog logger writing to w. Verbose lowers
// the level to Debug.
func NewLogger(w io.Writer, verbose bool, format string) (*slog.Logger, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q (use text or json)", format)
}

// SetupLogging installs the logger as the slog default.
func SetupLogging(w io.Writer, verbose bool, format string) error {
	logger, err := NewLogger(w, verbose, format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}
