// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package biome

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/arena/glo"
)

// NoTexture marks a command-table texture slot with no registered texture.
const NoTexture = ^uint32(0)

// BiomeRecord maps one biome index to its contiguous command range:
// Offset is the first row in the command table belonging to the biome,
// Count the number of rows. Non-resident biomes hold {0, 0}.
type BiomeRecord struct {
	Offset uint32
	Count  uint32
}

// biomeRecordStride is the GPU byte size of one BiomeRecord.
const biomeRecordStride = 8

func putBiomeRecord(dst []byte, r BiomeRecord) {
	binary.LittleEndian.PutUint32(dst[0:], r.Offset)
	binary.LittleEndian.PutUint32(dst[4:], r.Count)
}

// CommandRecord describes one renderable asset instance within a biome's
// command range: which catalog textures to sample and the selection
// parameters the instancing shader needs.
type CommandRecord struct {
	// SideTexture and TopTexture are handle-table rows in the texture
	// arena, NoTexture when the asset has no such billboard.
	SideTexture uint32
	TopTexture  uint32

	// Width and Height are the asset's world-space dimensions.
	Width  float32
	Height float32

	// Weight and Fill are the asset's selection weight and coverage
	// fill within its group.
	Weight float32
	Fill   float32

	// SizeVariation scales per-instance size jitter.
	SizeVariation float32
}

// commandRecordStride is the GPU byte size of one CommandRecord,
// padded to a 32-byte slot (std430-friendly).
const commandRecordStride = 32

func putCommandRecord(dst []byte, r CommandRecord) {
	binary.LittleEndian.PutUint32(dst[0:], r.SideTexture)
	binary.LittleEndian.PutUint32(dst[4:], r.TopTexture)
	binary.LittleEndian.PutUint32(dst[8:], math.Float32bits(r.Width))
	binary.LittleEndian.PutUint32(dst[12:], math.Float32bits(r.Height))
	binary.LittleEndian.PutUint32(dst[16:], math.Float32bits(r.Weight))
	binary.LittleEndian.PutUint32(dst[20:], math.Float32bits(r.Fill))
	binary.LittleEndian.PutUint32(dst[24:], math.Float32bits(r.SizeVariation))
	// dst[28:32] is padding.
}

// newBiomeTable creates the biome index -> command range lookup table.
func newBiomeTable(label string) *glo.LookupTable[BiomeRecord] {
	return glo.NewLookupTable(label+"_biomes", biomeRecordStride, putBiomeRecord)
}

// newCommandTable creates the asset -> rendering command lookup table.
func newCommandTable(label string) *glo.LookupTable[CommandRecord] {
	return glo.NewLookupTable(label+"_commands", commandRecordStride, putCommandRecord)
}
