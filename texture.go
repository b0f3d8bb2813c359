// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package arena

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/arena/glo"
	"github.com/gogpu/arena/internal/imageio"
	"github.com/gogpu/arena/job"
)

// Texture errors.
var (
	// ErrNoSource is returned when a texture has neither an image nor a
	// source locator to load one from.
	ErrNoSource = errors.New("arena: texture has no image and no source URI")
)

// Stage is the coarse lifecycle position of a texture on one context.
// Stages are ordered: a texture only ever reports a stage it has actually
// reached on that context.
type Stage uint8

const (
	// StageNotResident means only the source locator is known.
	StageNotResident Stage = iota

	// StageCPUResident means the decoded image is in memory.
	StageCPUResident

	// StageGPUAllocated means the texture's row is reserved in the
	// handle table; texture storage may not exist yet.
	StageGPUAllocated

	// StageGPUCommitted means the bindless handle is live and the
	// texture is fully sampleable.
	StageGPUCommitted
)

// String returns a human-readable name for the stage.
func (s Stage) String() string {
	switch s {
	case StageNotResident:
		return "NotResident"
	case StageCPUResident:
		return "CPUResident"
	case StageGPUAllocated:
		return "GPUAllocated"
	case StageGPUCommitted:
		return "GPUCommitted"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(s))
	}
}

// texGC is a texture's per-context GPU state. All fields are mutated on
// the owning context's thread, during a drain.
type texGC struct {
	obj       *glo.TextureObject
	allocated bool // row reserved in the handle table on this context
	committed bool
	uploaded  int // imgRev covered by the last upload

	// compile is the outstanding background compile, if any.
	compile *job.Future
}

// Texture is one logical bindless texture: a source locator or an
// in-memory image on the CPU side, and per-context GPU state.
//
// GPU state is never shared across contexts; each context allocates,
// commits, and releases independently during its own drains. CPU-side
// state is guarded by a mutex so loads may happen off the render thread.
type Texture struct {
	name     string
	uri      string
	compress bool

	mu     sync.Mutex
	img    *image.RGBA
	imgRev int
	maxDim int // downscale cap applied on load; set by the owning arena

	gc glo.Buffered[texGC]
}

// NewTexture creates a detached texture that will load its image from the
// given source URI on demand.
func NewTexture(uri string) *Texture {
	return &Texture{name: uri, uri: uri}
}

// NewTextureFromImage creates a texture from an already decoded image.
func NewTextureFromImage(name string, img *image.RGBA) *Texture {
	t := &Texture{name: name}
	t.SetImage(img)
	return t
}

// Name returns the display name.
func (t *Texture) Name() string { return t.name }

// URI returns the source locator, or "" for in-memory textures.
func (t *Texture) URI() string { return t.uri }

// SetCompression records the compression preference. The arena does not
// compress; the flag is forwarded to hosts that pick compressed formats.
func (t *Texture) SetCompression(on bool) { t.compress = on }

// Compression returns the compression preference.
func (t *Texture) Compression() bool { return t.compress }

// SetImage replaces the CPU-side image. A nil image returns the texture
// to the not-yet-loaded state. Contexts re-upload on their next compile.
func (t *Texture) SetImage(img *image.RGBA) {
	t.mu.Lock()
	t.img = img
	t.imgRev++
	t.mu.Unlock()
}

// Image returns the decoded image, or nil when not loaded.
func (t *Texture) Image() *image.RGBA {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.img
}

// hasSource reports whether Add can accept the texture: a usable image or
// a locator to resolve one from.
func (t *Texture) hasSource() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.img != nil || t.uri != ""
}

// ensureLoaded decodes the source image if none is in memory yet.
// Runs without any per-context state; safe from loader goroutines.
func (t *Texture) ensureLoaded() error {
	t.mu.Lock()
	if t.img != nil {
		t.mu.Unlock()
		return nil
	}
	uri := t.uri
	maxDim := t.maxDim
	t.mu.Unlock()

	if uri == "" {
		return ErrNoSource
	}
	img, err := imageio.Load(uri)
	if err != nil {
		return fmt.Errorf("arena: load texture %q: %w", t.name, err)
	}
	t.SetImage(imageio.Downscale(img, maxDim))
	return nil
}

// get returns the per-context state record, creating it if absent.
// Never blocks on GPU work.
func (t *Texture) get(ctx *glo.Context) *texGC {
	return t.gc.Get(ctx)
}

// Stage reports the texture's residency stage on the given context.
func (t *Texture) Stage(ctx *glo.Context) Stage {
	st := t.get(ctx)
	switch {
	case st.committed:
		return StageGPUCommitted
	case st.allocated:
		return StageGPUAllocated
	case t.Image() != nil:
		return StageCPUResident
	default:
		return StageNotResident
	}
}

// Committed reports whether the bindless handle is live on the context.
func (t *Texture) Committed(ctx *glo.Context) bool {
	return t.get(ctx).committed
}

// Handle returns the context's bindless handle, or zero when not committed.
func (t *Texture) Handle(ctx *glo.Context) uint64 {
	st := t.get(ctx)
	if st.obj == nil {
		return 0
	}
	return st.obj.Handle()
}

// IsCompiled reports whether the CPU image has been fully uploaded on the
// given context.
func (t *Texture) IsCompiled(ctx *glo.Context) bool {
	st := t.get(ctx)
	t.mu.Lock()
	rev := t.imgRev
	t.mu.Unlock()
	return st.obj != nil && st.obj.Valid() && st.uploaded == rev && rev > 0
}

// Compile allocates storage and uploads the image on the given context.
// Idempotent: calling it twice without an intervening image change is a
// no-op. Loads the source image first if needed.
//
// Must run on the context's thread.
func (t *Texture) Compile(ctx *glo.Context) error {
	if err := t.ensureLoaded(); err != nil {
		return err
	}

	t.mu.Lock()
	img := t.img
	rev := t.imgRev
	t.mu.Unlock()

	st := t.get(ctx)
	st.compile = nil
	if st.obj != nil && st.obj.Valid() && st.uploaded == rev {
		return nil
	}

	if st.obj == nil {
		st.obj = glo.NewTextureObject(ctx, t.name)
	}
	b := img.Bounds()
	if err := st.obj.Create(b.Dx(), b.Dy()); err != nil {
		return err
	}
	if err := st.obj.Upload(img); err != nil {
		return err
	}
	st.uploaded = rev
	return nil
}

// makeResident flips the committed bit for the context's handle. Called
// only while the owning arena holds the context's GPU lock during a drain.
//
// Committing compiles first if needed and acquires the bindless handle;
// decommitting hands the GPU object to the context's releaser and keeps
// only the catalog-slot reservation.
func (t *Texture) makeResident(ctx *glo.Context, on bool) error {
	st := t.get(ctx)
	if !on {
		if st.obj != nil {
			ctx.Releaser().Watch(st.obj)
			st.obj = nil
		}
		st.committed = false
		st.uploaded = 0
		return nil
	}

	if err := t.Compile(ctx); err != nil {
		return err
	}
	if _, err := st.obj.AcquireHandle(); err != nil {
		return err
	}
	st.committed = true
	return nil
}

// ResizeBuffers grows the per-context state array, preserving existing
// entries by index and default-constructing new ones.
func (t *Texture) ResizeBuffers(n int) {
	t.gc.Resize(n)
}

// Release destroys the given context's GPU state synchronously. Other
// contexts are unaffected. Must run on the context's thread.
func (t *Texture) Release(ctx *glo.Context) {
	st := t.get(ctx)
	if st.compile != nil {
		st.compile.Abandon()
	}
	if st.obj != nil {
		st.obj.Release()
	}
	*st = texGC{}
}
