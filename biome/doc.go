// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package biome keeps the assets of reference-counted biomes resident
// on the GPU.
//
// A Manager owns a catalog of biome definitions. Gameplay code calls
// Ref and Unref from any goroutine as terrain pages in and out; these
// only adjust counters. A designated thread periodically calls
// UpdateResidency, which loads the assets of newly referenced biomes,
// registers their billboard textures with the texture arena, evicts
// assets no resident biome uses anymore, and publishes an immutable
// Snapshot of geometry clouds for the renderer.
//
// Assets shared between biomes are loaded and stored once. Two GPU
// lookup tables, refreshed per context through Manager.Apply, expose
// the resident set to shaders: one maps a biome index to its range in
// the second, which holds one rendering command per resident asset
// usage.
package biome
