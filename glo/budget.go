// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package glo

import "time"

// FrameBudget is a monotonic time slice for per-frame drains. Drains
// check Exhausted between work items so one item always makes progress
// regardless of how small the slice is.
type FrameBudget struct {
	start time.Time
	slice time.Duration
}

// StartBudget starts a budget over the given slice. A non-positive slice
// produces a budget that is never exhausted.
func StartBudget(slice time.Duration) FrameBudget {
	return FrameBudget{start: time.Now(), slice: slice}
}

// Exhausted reports whether the slice is spent.
func (b FrameBudget) Exhausted() bool {
	return b.slice > 0 && time.Since(b.start) >= b.slice
}

// Sliced reports whether a slice was configured at all.
func (b FrameBudget) Sliced() bool { return b.slice > 0 }
