package helpers

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// NewLogger returns a diagnostics logger writing to stderr at the given level.
// Unknown levels fall back to warn.
func NewLogger(level string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.WarnLevel
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		Level:           lvl,
		Prefix:          "req-studio",
		ReportTimestamp: true,
	})
}

// DiscardLogger returns a logger that drops everything
func DiscardLogger() *log.Logger {
	return log.New(io.Discard)
}

// OrDiscard returns logger, or a discarding logger when it is nil
func OrDiscard(logger *log.Logger) *log.Logger {
	if logger == nil {
		return DiscardLogger()
	}
	return logger
}
