// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package arena

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/arena/glo"
	"github.com/gogpu/arena/job"
)

// Config holds configuration for creating a TextureArena.
type Config struct {
	// Label is an optional debug label, prefixed onto GPU object labels.
	Label string

	// MaxTextureDim caps the dimensions of images loaded from a URI;
	// larger sources are downscaled on load. 0 disables the cap.
	MaxTextureDim int

	// Jobs, when set, is used by PreCompile to push texture compilation
	// onto a context's frame drain ahead of activation.
	Jobs *job.Arena
}

// arenaGC is the arena's per-context drain state.
type arenaGC struct {
	// appliedLen is the catalog length this context has drained up to.
	// Entries beyond it are pending adds from this context's viewpoint.
	appliedLen int

	// changed holds catalog indices whose desired activation state
	// changed since this context's last drain, plus failed slots queued
	// for retry.
	changed map[int]struct{}
}

// drainItem is one slot of work for a context drain: the catalog index,
// its texture, and the desired state captured under the arena lock. The
// three travel together so reordering the work list cannot pair an index
// with another slot's texture.
type drainItem struct {
	index  int
	tex    *Texture
	active bool
}

// TextureArena owns an ordered catalog of bindless textures and keeps a
// GPU-visible handle table per rendering context.
//
// Worker threads call Add, Activate, and Deactivate; these only mutate
// pending state and never touch the driver. Each context's render thread
// calls Apply once per frame to drain pending requests into actual GPU
// state: adds first, then activations, then deactivations, then the
// minimal handle-table upload.
//
// Catalog indices are stable for the arena's lifetime: deactivation frees
// GPU memory but never the slot, so an index handed to a shader can never
// come to mean a different texture.
//
// TextureArena implements glo.StateAttribute.
type TextureArena struct {
	label  string
	maxDim int
	jobs   *job.Arena

	mu      sync.Mutex
	catalog []*Texture
	index   map[*Texture]int
	active  []bool
	perCtx  glo.Buffered[arenaGC]

	table *glo.LookupTable[*Texture]
}

var _ glo.StateAttribute = (*TextureArena)(nil)

// New creates an empty texture arena.
func New(cfg Config) *TextureArena {
	label := cfg.Label
	if label == "" {
		label = "texture_arena"
	}
	return &TextureArena{
		label:  label,
		maxDim: cfg.MaxTextureDim,
		jobs:   cfg.Jobs,
		index:  make(map[*Texture]int),
		table:  glo.NewContextLookupTable[*Texture](label+"_handles", 8, putHandle),
	}
}

// putHandle encodes one handle-table row for the refreshing context: the
// texture's bindless handle on that context, zero for empty rows and
// non-committed textures. Handles are strictly per context, so row bytes
// are resolved at refresh time instead of being stored in the mirror.
func putHandle(ctx *glo.Context, dst []byte, tex *Texture) {
	var h uint64
	if tex != nil && tex.Committed(ctx) {
		h = tex.Handle(ctx)
	}
	glo.PutUint64(dst, h)
}

// Add appends a texture to the catalog. Re-adding a texture already in
// the catalog is a no-op on size. Returns false when the texture has
// neither a usable image nor a resolvable locator.
//
// Adding has no immediate GPU effect; the new row appears on each context
// after that context's next Apply.
func (a *TextureArena) Add(tex *Texture) bool {
	if tex == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addLocked(tex)
}

func (a *TextureArena) addLocked(tex *Texture) bool {
	if _, ok := a.index[tex]; ok {
		return true
	}
	if !tex.hasSource() {
		return false
	}

	tex.mu.Lock()
	tex.maxDim = a.maxDim
	tex.mu.Unlock()

	i := len(a.catalog)
	a.catalog = append(a.catalog, tex)
	a.active = append(a.active, false)
	a.index[tex] = i

	glo.Logger().Debug("arena: texture added", "arena", a.label, "name", tex.Name(), "index", i)
	return true
}

// Activate requests that the texture become sampleable on every context.
// Idempotent; adds the texture first if it is not in the catalog. Within
// one undrained window the later of Activate/Deactivate wins.
func (a *TextureArena) Activate(tex *Texture) {
	a.setActive(tex, true)
}

// Deactivate requests that the texture's GPU data be released on every
// context while its catalog slot stays reserved. Idempotent; within one
// undrained window the later of Activate/Deactivate wins.
func (a *TextureArena) Deactivate(tex *Texture) {
	a.setActive(tex, false)
}

func (a *TextureArena) setActive(tex *Texture, on bool) {
	if tex == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	i, ok := a.index[tex]
	if !ok {
		if !on || !a.addLocked(tex) {
			return
		}
		i = a.index[tex]
	}
	if a.active[i] == on {
		return
	}
	a.active[i] = on

	// Contexts that have already drained index i need an explicit nudge;
	// the rest will reach it through their appliedLen scan.
	a.perCtx.ForEach(func(_ int, gc *arenaGC) {
		if i < gc.appliedLen {
			if gc.changed == nil {
				gc.changed = make(map[int]struct{})
			}
			gc.changed[i] = struct{}{}
		}
	})
}

// Size returns the catalog size.
func (a *TextureArena) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.catalog)
}

// Texture returns the catalog entry at index i, or nil if out of range.
func (a *TextureArena) Texture(i int) *Texture {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i < 0 || i >= len(a.catalog) {
		return nil
	}
	return a.catalog[i]
}

// IndexOf returns the stable catalog index of a texture.
func (a *TextureArena) IndexOf(tex *Texture) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i, ok := a.index[tex]
	return i, ok
}

// Find returns the first catalog texture with the given name, or nil.
func (a *TextureArena) Find(name string) *Texture {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, tex := range a.catalog {
		if tex.Name() == name {
			return tex
		}
	}
	return nil
}

// Table returns the bindless handle table. Row i identifies catalog
// texture i; each context's refresh encodes that context's handle for
// the row, zero for non-committed slots.
func (a *TextureArena) Table() *glo.LookupTable[*Texture] {
	return a.table
}

// Apply drains pending adds, activations, and deactivations onto the
// given context, then refreshes the context's handle table. Invoked once
// per frame by the renderer, on the context's thread. No other context is
// touched.
//
// Driver failures leave the affected slot at its previous residency stage
// and queue it for retry on the next drain; Apply reports the first such
// failure but always finishes the drain.
func (a *TextureArena) Apply(ctx *glo.Context) error {
	ctx.Lock()
	defer ctx.Unlock()

	a.mu.Lock()
	gc := a.perCtx.Get(ctx)
	total := len(a.catalog)

	items := make([]drainItem, 0, total-gc.appliedLen+len(gc.changed))
	for i := gc.appliedLen; i < total; i++ {
		items = append(items, drainItem{index: i, tex: a.catalog[i], active: a.active[i]})
	}
	for i := range gc.changed {
		if i < gc.appliedLen {
			items = append(items, drainItem{index: i, tex: a.catalog[i], active: a.active[i]})
		}
	}
	gc.changed = nil
	gc.appliedLen = total

	// Adds before activations: rows exist before any handle lands in them.
	for a.table.Len() < total {
		a.table.Append(a.catalog[a.table.Len()])
	}
	a.mu.Unlock()

	sort.Slice(items, func(x, y int) bool { return items[x].index < items[y].index })

	var firstErr error
	for _, it := range items {
		st := it.tex.get(ctx)
		st.allocated = true

		if !it.active {
			if err := it.tex.makeResident(ctx, false); err == nil {
				a.table.Set(it.index, it.tex)
			}
			continue
		}

		if err := it.tex.makeResident(ctx, true); err != nil {
			a.retry(ctx, it.index)
			glo.Logger().Warn("arena: activate failed, will retry",
				"arena", a.label, "name", it.tex.Name(), "context", ctx.ID(), "err", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		// Re-setting the row marks it dirty on every context; each one
		// resolves its own handle bytes during its refresh.
		a.table.Set(it.index, it.tex)
	}

	if err := a.table.Refresh(ctx); err != nil {
		// Dirty range survives a failed refresh; next frame re-uploads.
		glo.Logger().Warn("arena: handle table refresh failed",
			"arena", a.label, "context", ctx.ID(), "err", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// retry queues a catalog index for the context's next drain.
func (a *TextureArena) retry(ctx *glo.Context, i int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	gc := a.perCtx.Get(ctx)
	if gc.changed == nil {
		gc.changed = make(map[int]struct{})
	}
	gc.changed[i] = struct{}{}
}

// Compile eagerly uploads every active texture on the given context,
// without waiting for its next Apply. Used for pre-warming a fresh
// context. Must run on the context's thread.
func (a *TextureArena) Compile(ctx *glo.Context) error {
	ctx.Lock()
	defer ctx.Unlock()

	a.mu.Lock()
	texs := make([]*Texture, 0, len(a.catalog))
	for i, tex := range a.catalog {
		if a.active[i] {
			texs = append(texs, tex)
		}
	}
	a.mu.Unlock()

	var firstErr error
	for _, tex := range texs {
		if err := tex.Compile(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PreCompile submits the texture's upload to the arena's job queue so the
// attached context compiles it during an upcoming frame, ahead of
// activation. Returns nil when the arena has no job queue configured.
func (a *TextureArena) PreCompile(tex *Texture) *job.Future {
	if a.jobs == nil || tex == nil {
		return nil
	}
	f := a.jobs.Dispatch(func(ctx *glo.Context, cancel <-chan struct{}) (any, error) {
		select {
		case <-cancel:
			return nil, job.ErrClosed
		default:
		}
		ctx.Lock()
		defer ctx.Unlock()
		return nil, tex.Compile(ctx)
	})
	if ctx := a.jobs.Context(); ctx != nil {
		tex.get(ctx).compile = f
	}
	return f
}

// ResizeBuffers grows per-context state on the arena, its handle table,
// and every catalog texture. Existing entries are preserved by index.
func (a *TextureArena) ResizeBuffers(n int) {
	a.mu.Lock()
	texs := make([]*Texture, len(a.catalog))
	copy(texs, a.catalog)
	a.perCtx.Resize(n)
	a.mu.Unlock()

	a.table.ResizeBuffers(n)
	for _, tex := range texs {
		tex.ResizeBuffers(n)
	}
}

// Release frees the given context's GPU data for every catalog texture
// and the handle table. Catalog and pending state for other contexts are
// unaffected; a later Apply on this context rebuilds everything.
//
// Must run on the context's thread.
func (a *TextureArena) Release(ctx *glo.Context) {
	ctx.Lock()
	defer ctx.Unlock()

	a.mu.Lock()
	texs := make([]*Texture, len(a.catalog))
	copy(texs, a.catalog)
	gc := a.perCtx.Get(ctx)
	gc.appliedLen = 0
	gc.changed = nil
	a.mu.Unlock()

	for _, tex := range texs {
		tex.Release(ctx)
	}
	a.table.Release(ctx)
	glo.Logger().Info("arena: released", "arena", a.label, "context", ctx.ID())
}

// Stats summarizes the arena's state on one context.
type Stats struct {
	// Textures is the catalog size.
	Textures int

	// Committed is the number of textures sampleable on the context.
	Committed int

	// GPUBytes is the texture memory attributed to the context.
	GPUBytes uint64

	// TableBytes is the handle table allocation on the context.
	TableBytes uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Arena[%d textures, %d committed, %d KiB textures, %d B table]",
		s.Textures, s.Committed, s.GPUBytes/1024, s.TableBytes)
}

// Stats reports catalog and GPU memory counters for one context.
func (a *TextureArena) Stats(ctx *glo.Context) Stats {
	a.mu.Lock()
	texs := make([]*Texture, len(a.catalog))
	copy(texs, a.catalog)
	a.mu.Unlock()

	st := Stats{Textures: len(texs)}
	for _, tex := range texs {
		tgc := tex.get(ctx)
		if tgc.committed {
			st.Committed++
		}
		if tgc.obj != nil {
			st.GPUBytes += tgc.obj.SizeBytes()
		}
	}
	if buf := a.table.Buffer(ctx); buf != nil {
		st.TableBytes = buf.SizeBytes()
	}
	return st
}
