// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package glo

// StateAttribute is the closed capability interface every GPU-table holder
// implements so the host's state framework can drive it per frame: apply
// pending work for one context, resize per-context state, release one
// context's GPU data.
//
// Apply runs on the context's thread once per frame; implementations drain
// their pending requests under the context's GPU lock. Errors from Apply
// are reported, not thrown: the host logs and retries next frame, since a
// mid-frame abort would leave the context in an undefined GPU state.
type StateAttribute interface {
	// Apply drains pending state changes onto the given context.
	Apply(ctx *Context) error

	// ResizeBuffers grows per-context state to n slots, preserving
	// existing entries by index.
	ResizeBuffers(n int)

	// Release frees the given context's GPU data. Other contexts are
	// unaffected.
	Release(ctx *Context)
}

// Comparable is implemented by state attributes that define a strict
// ordering among themselves, for hosts that sort attributes.
type Comparable interface {
	// Compare returns a negative value, zero, or a positive value as the
	// receiver orders before, equal to, or after other.
	Compare(other StateAttribute) int
}

// CompareAlwaysDifferent is the Compare result for attributes that carry
// dynamic GPU tables and can never be deduplicated by the host: any two
// distinct instances order by identity, never equal.
func CompareAlwaysDifferent(a, b StateAttribute) int {
	if a == b {
		return 0
	}
	// Identity ordering: arbitrary but strict.
	return -1
}
