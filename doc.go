// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package arena manages large catalogs of bindless GPU textures across
// multiple rendering contexts.
//
// # Overview
//
// A TextureArena owns an ordered catalog of logical textures. Worker
// threads add, activate, and deactivate textures freely; all actual GPU
// work happens once per frame, per context, when the renderer calls Apply
// on the context's thread. Each context maintains its own GPU state and a
// GPU-visible handle table mapping stable catalog indices to 64-bit
// bindless handles, so shaders sample any committed texture by index.
//
// The design reconciles two constraints: requests arrive from arbitrary
// goroutines, but native graphics handles may only be created, bound, or
// destroyed on the thread owning the target context. Every entry point
// either mutates thread-safe pending state or is documented as a
// per-frame, context-thread drain.
//
// # Sub-packages
//
//   - glo: GPU object layer: HAL-backed buffers and textures, per-context
//     buffered state, GPU lookup tables, the deferred releaser.
//   - job: asynchronous job queue bound to a context, drained per frame,
//     with future/promise result delivery.
//   - biome: reference-counted residency of model-asset collections on
//     top of the texture arena.
//   - cache: sharded LRU used for decoded-image reuse.
//
// # Devices
//
// The library never creates a GPU device. The host attaches one per
// context via glo.Context.SetDeviceProvider, following the gpucontext HAL
// provider convention. Without a device a context runs in logical-only
// mode, which the tests rely on.
//
// # Typical frame
//
//	// render thread of context ctx, once per frame:
//	texArena.Apply(ctx)               // drain adds/activates/deactivates
//	jobs.Frame(2 * time.Millisecond)  // run queued GPU jobs
//	ctx.Releaser().Frame(time.Millisecond)
//	ctx.EndFrame()
//
// # Logging
//
// The library is silent by default. Call SetLogger to direct output to a
// log/slog logger shared by all sub-packages.
package arena
