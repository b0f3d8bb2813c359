// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package glo

import (
	"errors"
	"fmt"
	"image"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Texture object errors.
var (
	// ErrTextureReleased is returned when operating on a released texture object.
	ErrTextureReleased = errors.New("glo: texture object has been released")

	// ErrNilImage is returned when an upload is attempted with no image.
	ErrNilImage = errors.New("glo: image is nil")

	// ErrNotCreated is returned when a handle is requested before Create.
	ErrNotCreated = errors.New("glo: texture object not created")
)

// TextureObject is a sampleable GPU texture bound to one context: the native
// texture, its view, and the bindless handle acquired for it.
//
// Like Buffer, a TextureObject on a detached context tracks logical state
// only; Create and Upload succeed without touching a driver.
type TextureObject struct {
	ctx   *Context
	label string

	width  int
	height int
	format gputypes.TextureFormat

	tex  hal.Texture
	view hal.TextureView

	handle   uint64
	created  bool
	released atomic.Bool
}

// NewTextureObject creates an empty texture object owned by ctx.
func NewTextureObject(ctx *Context, label string) *TextureObject {
	return &TextureObject{ctx: ctx, label: label, format: gputypes.TextureFormatRGBA8Unorm}
}

// Create allocates texture storage. Idempotent for matching dimensions;
// differing dimensions release the old storage deferred and reallocate.
//
// Must run on the owning context's thread.
func (t *TextureObject) Create(width, height int) error {
	if t.released.Load() {
		return ErrTextureReleased
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("glo: create texture %q: invalid size %dx%d", t.label, width, height)
	}
	if t.created && t.width == width && t.height == height {
		return nil
	}
	if t.created {
		t.releaseStorage()
	}

	device := t.ctx.Device()
	if device != nil {
		tex, err := device.CreateTexture(&hal.TextureDescriptor{
			Label: t.label,
			Size: hal.Extent3D{
				Width:              uint32(width),
				Height:             uint32(height),
				DepthOrArrayLayers: 1,
			},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        t.format,
			Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("glo: create texture %q: %w", t.label, err)
		}
		view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
			Label: t.label + "_view",
		})
		if err != nil {
			device.DestroyTexture(tex)
			return fmt.Errorf("glo: create texture view %q: %w", t.label, err)
		}
		t.tex = tex
		t.view = view
	}

	t.width = width
	t.height = height
	t.created = true
	return nil
}

// Upload writes an RGBA image into the texture. The image bounds must
// match the created dimensions.
//
// Must run on the owning context's thread.
func (t *TextureObject) Upload(img *image.RGBA) error {
	if t.released.Load() {
		return ErrTextureReleased
	}
	if img == nil {
		return ErrNilImage
	}
	if !t.created {
		return ErrNotCreated
	}
	b := img.Bounds()
	if b.Dx() != t.width || b.Dy() != t.height {
		return fmt.Errorf("glo: upload %q: image is %dx%d, texture is %dx%d",
			t.label, b.Dx(), b.Dy(), t.width, t.height)
	}

	queue := t.ctx.Queue()
	if queue == nil || t.tex == nil {
		return nil
	}

	err := queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: 0,
			Origin:   hal.Origin3D{X: 0, Y: 0, Z: 0},
			Aspect:   gputypes.TextureAspectAll,
		},
		img.Pix,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(img.Stride),
			RowsPerImage: uint32(t.height),
		},
		&hal.Extent3D{
			Width:              uint32(t.width),
			Height:             uint32(t.height),
			DepthOrArrayLayers: 1,
		},
	)
	if err != nil {
		return fmt.Errorf("glo: upload %q: %w", t.label, err)
	}
	return nil
}

// AcquireHandle returns the texture's bindless handle, acquiring one from
// the context's allocator on first call.
func (t *TextureObject) AcquireHandle() (uint64, error) {
	if t.released.Load() {
		return 0, ErrTextureReleased
	}
	if !t.created {
		return 0, ErrNotCreated
	}
	if t.handle != 0 {
		return t.handle, nil
	}
	handle, err := t.ctx.Handles().AcquireHandle(t)
	if err != nil {
		return 0, fmt.Errorf("glo: acquire handle for %q: %w", t.label, err)
	}
	t.handle = handle
	return handle, nil
}

// Handle returns the acquired bindless handle, or zero if none.
func (t *TextureObject) Handle() uint64 { return t.handle }

// View returns the underlying texture view, or nil on a detached context.
func (t *TextureObject) View() hal.TextureView { return t.view }

// Label returns the debug label.
func (t *TextureObject) Label() string { return t.label }

// SizeBytes returns the GPU memory attributed to the texture storage.
func (t *TextureObject) SizeBytes() uint64 {
	return uint64(t.width) * uint64(t.height) * 4
}

// Valid reports whether the object holds live storage.
func (t *TextureObject) Valid() bool {
	return t.created && !t.released.Load()
}

// Release destroys the native storage and returns the bindless handle.
// Idempotent; must run on the owning context's thread.
func (t *TextureObject) Release() {
	if t.released.Swap(true) {
		return
	}
	t.releaseStorage()
	t.created = false
}

func (t *TextureObject) releaseStorage() {
	if t.handle != 0 {
		t.ctx.Handles().ReleaseHandle(t.handle)
		t.handle = 0
	}
	device := t.ctx.Device()
	if device != nil {
		if t.view != nil {
			device.DestroyTextureView(t.view)
		}
		if t.tex != nil {
			device.DestroyTexture(t.tex)
		}
	}
	t.view = nil
	t.tex = nil
}
