// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package glo provides the GPU object layer underneath the arena: native
// handle wrappers over the gogpu/wgpu HAL, per-context buffered state, the
// generic GPU lookup table, and the per-context deferred releaser.
//
// # Contexts and threads
//
// A Context pairs a GPU device with the single thread that performs native
// calls for it. This is a hard platform constraint: handles may only be
// created, bound, or destroyed from the thread currently owning the
// context. Everything in this package is written around that rule. Calls
// that mutate pending state are safe from any goroutine; calls that touch
// the driver (Create, Upload, Refresh, Frame, Release) must run on the
// context's thread.
//
// The library never creates a device. The host attaches one through
// Context.SetDeviceProvider, following the gpucontext HAL provider
// convention (HalDevice() any, HalQueue() any). A context without a device
// operates in logical-only mode: object lifecycles proceed normally but no
// driver calls are made. Tests rely on this.
//
// # Objects and deferred release
//
// Buffer and TextureObject wrap native handles, each tied to one context
// for its whole life. When a logical owner drops an object from another
// thread, it hands it to the context's Releaser; the releaser destroys
// watched objects on the context's thread, time-sliced across frames, and
// unconditionally on teardown.
//
// # Lookup tables
//
// LookupTable is a GPU-side array of fixed-size records with a CPU mirror.
// Writes mark a per-context dirty range; Refresh uploads only that range,
// growing the allocation to the alignment boundary and never shrinking
// within a frame.
package glo
