package postgres

import (
	"io"
	"log/slog"
)

// testLogger returns a logger that discards output, keeping test runs
// quiet while still exercising the logging paths.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
