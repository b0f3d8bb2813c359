// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package job provides an asynchronous work queue bound to a graphics
// context: jobs dispatched from any goroutine run on the context's render
// thread, drained once per frame against a time slice, with a
// future/promise handle for the result.
//
// No goroutines are created. The arena has exactly one drain point, the
// attached context's per-frame Frame call, which is what makes it safe
// for jobs to touch native GPU state. Discarding a future does not cancel
// the job (execution is at-most-once either way); it only suppresses
// result delivery. Cooperative cancellation is signalled to jobs through
// the token channel when the arena closes.
package job
