// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package biome

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gogpu/arena"
	"github.com/gogpu/arena/cache"
	"github.com/gogpu/arena/glo"
	"github.com/gogpu/arena/job"
)

// ErrNoArena is returned by NewManager without a texture arena.
var ErrNoArena = errors.New("biome: manager requires a texture arena")

// ManagerConfig holds configuration for creating a Manager.
type ManagerConfig struct {
	// Textures is the texture arena billboard textures register with.
	// Required.
	Textures *arena.TextureArena

	// Jobs, when set, receives background compile work for newly
	// registered textures so they are warm before first use.
	Jobs *job.Arena

	// Builder builds imposter geometry per biome asset group during
	// snapshot rebuilds. Optional; without it snapshots carry clouds
	// with nil nodes.
	Builder CloudBuilder

	// CacheCapacity is the per-shard capacity of the asset payload
	// cache that survives evictions. 0 uses the cache default;
	// negative disables caching.
	CacheCapacity int

	// Label prefixes GPU table labels.
	Label string
}

// Manager reference-counts biomes and keeps their model assets resident.
//
// Ref and Unref are cheap and safe from any goroutine: they only adjust
// counts and set a dirty flag. All loading, eviction, and table rebuild
// work happens in UpdateResidency, called from one designated thread.
// Counts and resident data use separate locks so paging-driven Ref/Unref
// never waits on a geometry rebuild.
//
// The manager's two GPU lookup tables (biome -> command range, asset ->
// rendering command) refresh per context through Apply; Manager
// implements glo.StateAttribute.
type Manager struct {
	textures *arena.TextureArena
	jobs     *job.Arena
	builder  CloudBuilder
	label    string

	payloads *cache.LRU[string, *AssetData]

	countsMu sync.Mutex
	counts   map[string]int
	dirty    bool

	// residentMu guards the resident-data structures and the published
	// snapshot. Held only for structure mutation, never across a load.
	residentMu sync.Mutex
	biomes     map[string]*Biome
	resident   map[string]struct{}
	assets     map[string]*ResidentAsset
	usages     map[string][]*usage
	snapshot   *Snapshot

	biomeTable *glo.LookupTable[BiomeRecord]
	cmdTable   *glo.LookupTable[CommandRecord]

	revision atomic.Uint64
}

var _ glo.StateAttribute = (*Manager)(nil)

// NewManager creates a residency manager over the given texture arena.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Textures == nil {
		return nil, ErrNoArena
	}
	label := cfg.Label
	if label == "" {
		label = "biome"
	}

	var payloads *cache.LRU[string, *AssetData]
	if cfg.CacheCapacity >= 0 {
		payloads = cache.New[string, *AssetData](cfg.CacheCapacity, cache.StringHasher)
	}

	m := &Manager{
		textures:   cfg.Textures,
		jobs:       cfg.Jobs,
		builder:    cfg.Builder,
		label:      label,
		payloads:   payloads,
		counts:     make(map[string]int),
		biomes:     make(map[string]*Biome),
		resident:   make(map[string]struct{}),
		assets:     make(map[string]*ResidentAsset),
		usages:     make(map[string][]*usage),
		snapshot:   &Snapshot{},
		biomeTable: newBiomeTable(label),
		cmdTable:   newCommandTable(label),
	}
	return m, nil
}

// SetBiomes replaces the biome catalog. Definitions are plain data; a
// catalog change takes effect for biomes materialized after it.
func (m *Manager) SetBiomes(biomes []*Biome) {
	m.residentMu.Lock()
	defer m.residentMu.Unlock()
	m.biomes = make(map[string]*Biome, len(biomes))
	for _, b := range biomes {
		m.biomes[b.ID] = b
	}
}

// Biome returns the catalog definition for an ID, or nil.
func (m *Manager) Biome(id string) *Biome {
	m.residentMu.Lock()
	defer m.residentMu.Unlock()
	return m.biomes[id]
}

// Ref increments the biome's reference count. The first reference
// schedules materialization for the next UpdateResidency; no loading or
// GPU work happens here. Safe from any goroutine.
func (m *Manager) Ref(id string) {
	m.countsMu.Lock()
	m.counts[id]++
	m.dirty = true
	m.countsMu.Unlock()
}

// Unref decrements the biome's reference count. Reaching zero schedules
// eviction for the next UpdateResidency. Unref below zero is clamped.
// Safe from any goroutine.
func (m *Manager) Unref(id string) {
	m.countsMu.Lock()
	if m.counts[id] > 0 {
		m.counts[id]--
		if m.counts[id] == 0 {
			delete(m.counts, id)
		}
		m.dirty = true
	}
	m.countsMu.Unlock()
}

// Count returns the biome's current reference count.
func (m *Manager) Count(id string) int {
	m.countsMu.Lock()
	defer m.countsMu.Unlock()
	return m.counts[id]
}

// Reset zeroes every reference count. The next UpdateResidency evicts
// everything. Safe from any goroutine.
func (m *Manager) Reset() {
	m.countsMu.Lock()
	m.counts = make(map[string]int)
	m.dirty = true
	m.countsMu.Unlock()
}

// Revision returns the resident-set revision: a strictly increasing
// counter bumped exactly once per UpdateResidency call that changed the
// resident biome set.
func (m *Manager) Revision() uint64 {
	return m.revision.Load()
}

// Snapshot returns the most recently published snapshot.
func (m *Manager) Snapshot() *Snapshot {
	m.residentMu.Lock()
	defer m.residentMu.Unlock()
	return m.snapshot
}

// Resident returns the sorted IDs of currently resident biomes.
func (m *Manager) Resident() []string {
	m.residentMu.Lock()
	defer m.residentMu.Unlock()
	return m.snapshot.resident
}

// Asset returns the resident asset for an ID, or nil. Mainly for tests
// and diagnostics.
func (m *Manager) Asset(id string) *ResidentAsset {
	m.residentMu.Lock()
	defer m.residentMu.Unlock()
	return m.assets[id]
}

// UsageCount returns the number of usage records referencing the asset.
func (m *Manager) UsageCount(assetID string) int {
	m.residentMu.Lock()
	defer m.residentMu.Unlock()
	n := 0
	for _, us := range m.usages {
		for _, u := range us {
			if u.asset.def.ID == assetID {
				n++
			}
		}
	}
	return n
}

// UpdateResidency reconciles the resident set with the current reference
// counts: it materializes newly referenced biomes through the loader,
// evicts biomes whose count reached zero, rebuilds the geometry-cloud
// collection and the two GPU lookup tables, and publishes a new
// immutable snapshot.
//
// Called from one designated thread, typically at a lower frequency than
// Ref/Unref. An asset that fails to load is skipped with a warning; its
// biome stays resident with a partial asset set. The revision counter
// increments iff the resident biome set changed; a call that changes
// nothing returns the previous snapshot unchanged, and a call with no
// count movement since the last update skips the delta computation
// entirely.
func (m *Manager) UpdateResidency(loader Loader, opts ReadOptions) (*Snapshot, error) {
	// Snapshot the counts under the counts lock; everything after runs
	// without it so Ref/Unref never block on loading.
	m.countsMu.Lock()
	if !m.dirty {
		m.countsMu.Unlock()
		m.residentMu.Lock()
		snap := m.snapshot
		m.residentMu.Unlock()
		return snap, nil
	}
	active := make(map[string]struct{}, len(m.counts))
	for id, n := range m.counts {
		if n > 0 {
			active[id] = struct{}{}
		}
	}
	m.dirty = false
	m.countsMu.Unlock()

	m.residentMu.Lock()
	var added, removed []string
	for id := range active {
		if _, ok := m.resident[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range m.resident {
		if _, ok := active[id]; !ok {
			removed = append(removed, id)
		}
	}
	if len(added) == 0 && len(removed) == 0 {
		snap := m.snapshot
		m.residentMu.Unlock()
		return snap, nil
	}
	catalog := m.biomes
	m.residentMu.Unlock()

	sort.Strings(added)
	sort.Strings(removed)

	// Materialize newly active biomes. Loader calls run outside every
	// lock; only the update thread touches newUsages until install.
	newUsages := make(map[string][]*usage, len(added))
	var firstErr error
	for _, id := range added {
		b := catalog[id]
		if b == nil {
			glo.Logger().Warn("biome: referenced biome not in catalog", "id", id)
			newUsages[id] = nil
			continue
		}
		us, err := m.materialize(b, loader, opts)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		newUsages[id] = us
	}

	// Install the delta and rebuild under the resident-data lock.
	m.residentMu.Lock()
	for id, us := range newUsages {
		m.usages[id] = us
		m.resident[id] = struct{}{}
	}
	for _, id := range removed {
		delete(m.usages, id)
		delete(m.resident, id)
	}
	m.evictUnusedLocked()
	snap := m.rebuildLocked()
	m.residentMu.Unlock()

	glo.Logger().Info("biome: residency updated",
		"added", len(added), "removed", len(removed),
		"resident", len(snap.resident), "revision", snap.revision)
	return snap, firstErr
}

// materialize loads a biome's assets and builds its usage records,
// resolving assets already resident from another biome without reloading.
// Called off-lock from the update thread.
func (m *Manager) materialize(b *Biome, loader Loader, opts ReadOptions) ([]*usage, error) {
	var out []*usage
	var firstErr error
	for _, g := range b.Groups {
		for _, ref := range g.Assets {
			ra, err := m.residentAsset(ref.Def, loader, opts)
			if err != nil {
				glo.Logger().Warn("biome: asset load failed, skipping",
					"biome", b.ID, "asset", ref.Def.ID, "err", err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			out = append(out, &usage{
				asset:  ra,
				group:  g.Name,
				weight: ref.Weight,
				fill:   ref.Fill,
			})
		}
	}
	return out, firstErr
}

// residentAsset returns the shared resident asset for a definition,
// loading and registering it on first use.
func (m *Manager) residentAsset(def *AssetDefinition, loader Loader, opts ReadOptions) (*ResidentAsset, error) {
	m.residentMu.Lock()
	ra := m.assets[def.ID]
	m.residentMu.Unlock()
	if ra != nil {
		return ra, nil
	}

	data, err := m.loadPayload(def, loader, opts)
	if err != nil {
		return nil, err
	}

	ra = &ResidentAsset{def: def, data: data}
	if data.SideImage != nil {
		ra.sideTex = arena.NewTextureFromImage(def.ID+"_side", data.SideImage)
	}
	if data.TopImage != nil {
		ra.topTex = arena.NewTextureFromImage(def.ID+"_top", data.TopImage)
	}
	for _, tex := range ra.textures() {
		if !m.textures.Add(tex) {
			return nil, fmt.Errorf("biome: register texture for asset %q failed", def.ID)
		}
		m.textures.Activate(tex)
		m.precompile(tex)
	}

	m.residentMu.Lock()
	// Another update-thread call cannot race here, but keep the check
	// so the invariant is visible: one resident asset per ID.
	if prior := m.assets[def.ID]; prior != nil {
		ra = prior
	} else {
		m.assets[def.ID] = ra
	}
	m.residentMu.Unlock()
	return ra, nil
}

// loadPayload loads an asset payload through the cache, so that
// re-materializing an evicted biome avoids a second decode.
func (m *Manager) loadPayload(def *AssetDefinition, loader Loader, opts ReadOptions) (*AssetData, error) {
	if m.payloads == nil {
		return loader(def, opts)
	}
	return m.payloads.GetOrCreate(def.ID, func() (*AssetData, error) {
		return loader(def, opts)
	})
}

// precompile pushes a texture upload onto the job queue, if configured.
func (m *Manager) precompile(tex *arena.Texture) {
	if m.jobs == nil {
		return
	}
	m.jobs.Dispatch(func(ctx *glo.Context, cancel <-chan struct{}) (any, error) {
		select {
		case <-cancel:
			return nil, job.ErrClosed
		default:
		}
		ctx.Lock()
		defer ctx.Unlock()
		return nil, tex.Compile(ctx)
	})
}

// evictUnusedLocked drops assets no usage record references anymore and
// deactivates their textures. Caller holds residentMu.
func (m *Manager) evictUnusedLocked() {
	inUse := make(map[string]struct{})
	for _, us := range m.usages {
		for _, u := range us {
			inUse[u.asset.def.ID] = struct{}{}
		}
	}
	for id, ra := range m.assets {
		if _, ok := inUse[id]; ok {
			continue
		}
		for _, tex := range ra.textures() {
			m.textures.Deactivate(tex)
		}
		delete(m.assets, id)
		glo.Logger().Debug("biome: asset evicted", "asset", id)
	}
}

// rebuildLocked rebuilds the cloud collection and both lookup tables
// from the resident set, bumps the revision, and publishes a new
// snapshot. Caller holds residentMu.
func (m *Manager) rebuildLocked() *Snapshot {
	ids := make([]string, 0, len(m.resident))
	for id := range m.resident {
		ids = append(ids, id)
	}
	// Biome-index order gives each biome a contiguous command range in
	// a stable position.
	sort.Slice(ids, func(i, j int) bool {
		bi, bj := m.biomes[ids[i]], m.biomes[ids[j]]
		if bi == nil || bj == nil {
			return ids[i] < ids[j]
		}
		return bi.Index < bj.Index
	})

	maxIndex := -1
	for _, b := range m.biomes {
		if b.Index > maxIndex {
			maxIndex = b.Index
		}
	}
	biomeRecords := make([]BiomeRecord, maxIndex+1)

	var commands []CommandRecord
	var clouds []*Cloud
	for _, id := range ids {
		b := m.biomes[id]
		us := m.usages[id]
		if b == nil || len(us) == 0 {
			continue
		}

		offset := len(commands)
		for _, u := range us {
			u.asset.index = len(commands)
			commands = append(commands, m.command(u))
		}
		if b.Index >= 0 && b.Index < len(biomeRecords) {
			biomeRecords[b.Index] = BiomeRecord{
				Offset: uint32(offset),
				Count:  uint32(len(commands) - offset),
			}
		}

		clouds = append(clouds, m.cloudsFor(b, us)...)
	}

	m.biomeTable.SetAll(biomeRecords)
	m.cmdTable.SetAll(commands)

	rev := m.revision.Add(1)
	resident := make([]string, len(ids))
	copy(resident, ids)
	sort.Strings(resident)

	m.snapshot = &Snapshot{revision: rev, clouds: clouds, resident: resident}
	return m.snapshot
}

// command builds the rendering-command record for one usage.
func (m *Manager) command(u *usage) CommandRecord {
	rec := CommandRecord{
		SideTexture:   NoTexture,
		TopTexture:    NoTexture,
		Width:         u.asset.def.Width,
		Height:        u.asset.def.Height,
		Weight:        u.weight,
		Fill:          u.fill,
		SizeVariation: u.asset.def.SizeVariation,
	}
	if u.asset.sideTex != nil {
		if i, ok := m.textures.IndexOf(u.asset.sideTex); ok {
			rec.SideTexture = uint32(i)
		}
	}
	if u.asset.topTex != nil {
		if i, ok := m.textures.IndexOf(u.asset.topTex); ok {
			rec.TopTexture = uint32(i)
		}
	}
	return rec
}

// cloudsFor groups a biome's usage records by asset group and builds one
// cloud per group.
func (m *Manager) cloudsFor(b *Biome, us []*usage) []*Cloud {
	var out []*Cloud
	for _, g := range b.Groups {
		var assets []*ResidentAsset
		var texs []*arena.Texture
		for _, u := range us {
			if u.group != g.Name {
				continue
			}
			assets = append(assets, u.asset)
			texs = append(texs, u.asset.textures()...)
		}
		if len(assets) == 0 {
			continue
		}
		cloud := &Cloud{BiomeID: b.ID, Group: g.Name, Assets: assets}
		if m.builder != nil {
			cloud.Node = m.builder(g, texs)
		}
		out = append(out, cloud)
	}
	return out
}

// Apply refreshes both GPU lookup tables on the given context, under the
// context's lock. Invoked once per frame by the renderer; Manager
// implements glo.StateAttribute.
func (m *Manager) Apply(ctx *glo.Context) error {
	ctx.Lock()
	defer ctx.Unlock()

	if err := m.biomeTable.Refresh(ctx); err != nil {
		return err
	}
	return m.cmdTable.Refresh(ctx)
}

// ResizeBuffers grows per-context state on both lookup tables.
func (m *Manager) ResizeBuffers(n int) {
	m.biomeTable.ResizeBuffers(n)
	m.cmdTable.ResizeBuffers(n)
}

// Release frees the given context's GPU data for both lookup tables.
// Must run on the context's thread.
func (m *Manager) Release(ctx *glo.Context) {
	ctx.Lock()
	defer ctx.Unlock()
	m.biomeTable.Release(ctx)
	m.cmdTable.Release(ctx)
}

// BiomeTable returns the biome -> command range lookup table.
func (m *Manager) BiomeTable() *glo.LookupTable[BiomeRecord] { return m.biomeTable }

// CommandTable returns the asset -> rendering command lookup table.
func (m *Manager) CommandTable() *glo.LookupTable[CommandRecord] { return m.cmdTable }
