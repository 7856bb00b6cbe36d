package logger

import (
	"io"
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. JSON output keeps log
// aggregation simple in container environments.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

// NewNop returns a logger that discards everything; for tests that do not
// assert on log output.
func NewNop() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
