// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package arena

import (
	"log/slog"

	"github.com/gogpu/arena/glo"
)

// SetLogger configures the logger for arena and all its sub-packages.
// By default the library produces no log output. Pass nil to restore the
// default silent behavior.
//
// SetLogger is safe for concurrent use: the logger is stored atomically.
//
// Log levels used:
//   - [slog.LevelDebug]: per-frame drain diagnostics (queue depths, upload ranges)
//   - [slog.LevelInfo]: lifecycle events (context creation, arena teardown)
//   - [slog.LevelWarn]: non-fatal issues (driver failures retried next frame,
//     asset load failures skipped during residency updates)
//
// Example:
//
//	// Enable info-level logging to stderr:
//	arena.SetLogger(slog.Default())
//
//	// Enable debug-level logging for full drain diagnostics:
//	arena.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	glo.SetLogger(l)
}

// Logger returns the current logger shared by arena and its sub-packages.
func Logger() *slog.Logger {
	return glo.Logger()
}
