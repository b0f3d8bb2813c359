// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package biome

import "github.com/gogpu/arena"

// Biome is a named collection of asset usage records: the content that
// should render in one kind of geographic region. Biomes are definitions;
// the Manager decides nothing about *what* should be resident, it only
// materializes biomes whose reference count is positive.
type Biome struct {
	// ID is the biome's identity, used as the refcount key.
	ID string

	// Index is the biome's dense position in the biome lookup table.
	// Indices are assigned by the catalog and must be unique.
	Index int

	// Name is the display name.
	Name string

	// Groups are the biome's asset groups.
	Groups []*AssetGroup
}

// Cloud is the imposter geometry for one biome asset group, produced by
// the host's CloudBuilder from the group's resident assets.
type Cloud struct {
	// BiomeID identifies the owning biome.
	BiomeID string

	// Group is the asset group name.
	Group string

	// Node is the host-defined geometry node.
	Node any

	// Assets are the group's resident assets, in command-table order.
	Assets []*ResidentAsset
}

// CloudBuilder builds one imposter geometry node from an asset group and
// the textures its resident assets registered. Supplied by the host's
// geometry pipeline; called from the residency update thread during a
// snapshot rebuild. A nil node is allowed and simply omitted from draw
// traversal by the host.
type CloudBuilder func(group *AssetGroup, textures []*arena.Texture) any
