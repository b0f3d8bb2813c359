// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package biome

import (
	"image"

	"github.com/gogpu/arena"
)

// ReadOptions carries host options through to the loader callback.
type ReadOptions struct {
	// BasePath resolves relative asset URIs.
	BasePath string

	// MaxTextureDim caps billboard image dimensions; larger sources
	// should be downscaled by the loader. 0 disables the cap.
	MaxTextureDim int
}

// AssetDefinition identifies one model asset in a catalog. Definitions
// are plain data; nothing is loaded until a biome referencing the asset
// becomes resident.
type AssetDefinition struct {
	// ID is the asset's identity. Assets shared between biomes carry
	// the same ID and are loaded once.
	ID string

	// ModelURI locates the 3D model, "" for billboard-only assets.
	ModelURI string

	// SideURI and TopURI locate the impostor billboard images.
	SideURI string
	TopURI  string

	// Width and Height are the asset's world-space dimensions.
	Width  float32
	Height float32

	// SizeVariation scales random per-instance size jitter.
	SizeVariation float32
}

// AssetData is the loaded payload for one asset, produced by the loader
// callback.
type AssetData struct {
	// Model is host-defined geometry (the scene node, mesh, or raw
	// buffer the host's renderer consumes). May be nil for
	// billboard-only assets.
	Model any

	// SideImage and TopImage are the decoded impostor billboards.
	// Either may be nil.
	SideImage *image.RGBA
	TopImage  *image.RGBA
}

// Loader loads one asset definition. It is supplied by the host's asset
// pipeline and called from the residency update thread, never from a
// render thread. Returning an error skips the asset; the surrounding
// biome stays active with a partial asset set.
type Loader func(def *AssetDefinition, opts ReadOptions) (*AssetData, error)

// AssetRef is one asset's usage within a group definition: the asset
// plus its selection weight and coverage fill.
type AssetRef struct {
	Def    *AssetDefinition
	Weight float32
	Fill   float32
}

// AssetGroup is a named collection of asset usages within a biome
// (for example "trees" or "shrubs").
type AssetGroup struct {
	Name   string
	Assets []AssetRef
}

// ResidentAsset is one loaded asset, shared across every biome that
// references it. The residency manager holds the authoritative strong
// reference; usage records hold secondary ones. When the last usage
// record disappears the asset is evicted and its textures deactivated.
type ResidentAsset struct {
	def  *AssetDefinition
	data *AssetData

	sideTex *arena.Texture
	topTex  *arena.Texture

	// index is the asset's row in the command table, assigned during
	// each snapshot rebuild.
	index int
}

// Definition returns the asset's definition.
func (ra *ResidentAsset) Definition() *AssetDefinition { return ra.def }

// Data returns the loaded payload.
func (ra *ResidentAsset) Data() *AssetData { return ra.data }

// SideTexture returns the registered side billboard texture, or nil.
func (ra *ResidentAsset) SideTexture() *arena.Texture { return ra.sideTex }

// TopTexture returns the registered top billboard texture, or nil.
func (ra *ResidentAsset) TopTexture() *arena.Texture { return ra.topTex }

// Index returns the asset's row in the command table as of the snapshot
// it was published with.
func (ra *ResidentAsset) Index() int { return ra.index }

// textures returns the asset's non-nil registered textures.
func (ra *ResidentAsset) textures() []*arena.Texture {
	var out []*arena.Texture
	if ra.sideTex != nil {
		out = append(out, ra.sideTex)
	}
	if ra.topTex != nil {
		out = append(out, ra.topTex)
	}
	return out
}

// usage is a per-biome per-group usage record. Its strong asset
// reference keeps the asset, and through it the asset's textures,
// resident.
type usage struct {
	asset  *ResidentAsset
	group  string
	weight float32
	fill   float32
}
