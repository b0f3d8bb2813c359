// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package glo

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Buffer errors.
var (
	// ErrBufferReleased is returned when operating on a released buffer.
	ErrBufferReleased = errors.New("glo: buffer has been released")

	// ErrInvalidBufferSize is returned when a buffer size is zero.
	ErrInvalidBufferSize = errors.New("glo: invalid buffer size")

	// ErrUploadOutOfRange is returned when an upload exceeds buffer bounds.
	ErrUploadOutOfRange = errors.New("glo: upload range exceeds buffer size")
)

// DefaultBufferUsage is the usage for lookup-table storage buffers.
const DefaultBufferUsage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst

// Object is a native-handle wrapper tied to one context. The closed set of
// implementations is Buffer and TextureObject.
//
// Release destroys the native handle and must run on the owning context's
// thread; the Releaser exists to guarantee exactly that.
type Object interface {
	// Label returns the debug label.
	Label() string

	// Valid reports whether the object currently owns a live handle
	// (logical-only objects on a detached context count as valid).
	Valid() bool

	// SizeBytes returns the GPU memory attributed to the object.
	SizeBytes() uint64

	// Release destroys the native handle. Idempotent.
	Release()
}

// Buffer is a GPU buffer bound to one context.
//
// On a detached context (no device) the buffer tracks logical state only:
// Create succeeds, Upload is a no-op, Valid reports true. This mirrors how
// every other object in the package degrades without a device and keeps
// the drain logic testable off-GPU.
type Buffer struct {
	ctx   *Context
	label string
	size  uint64
	usage gputypes.BufferUsage

	buf      hal.Buffer
	created  bool
	released atomic.Bool
}

// NewBuffer creates an empty buffer record owned by ctx. No GPU memory is
// allocated until Create.
func NewBuffer(ctx *Context, label string, usage gputypes.BufferUsage) *Buffer {
	if usage == 0 {
		usage = DefaultBufferUsage
	}
	return &Buffer{ctx: ctx, label: label, usage: usage}
}

// Create allocates size bytes of GPU memory. Calling Create on an already
// created buffer of the same size is a no-op; a different size reallocates,
// handing the old handle to the context's releaser.
//
// Must run on the owning context's thread.
func (b *Buffer) Create(size uint64) error {
	if b.released.Load() {
		return ErrBufferReleased
	}
	if size == 0 {
		return ErrInvalidBufferSize
	}
	if b.created && b.size == size {
		return nil
	}

	if b.created && b.buf != nil {
		// Old allocation is destroyed deferred so in-flight frames
		// referencing it stay valid.
		old := b.buf
		oldSize := b.size
		b.ctx.Releaser().watchRaw(b.label+"_stale", oldSize, func(device hal.Device) {
			device.DestroyBuffer(old)
		})
		b.buf = nil
	}

	device := b.ctx.Device()
	if device != nil {
		buf, err := device.CreateBuffer(&hal.BufferDescriptor{
			Label: b.label,
			Size:  size,
			Usage: b.usage,
		})
		if err != nil {
			return fmt.Errorf("glo: create buffer %q: %w", b.label, err)
		}
		b.buf = buf
	}

	b.size = size
	b.created = true
	return nil
}

// Upload writes data at the given byte offset.
// Must run on the owning context's thread.
func (b *Buffer) Upload(offset uint64, data []byte) error {
	if b.released.Load() {
		return ErrBufferReleased
	}
	if !b.created {
		return fmt.Errorf("glo: upload to %q: buffer not created", b.label)
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("%w: offset %d + %d bytes > size %d",
			ErrUploadOutOfRange, offset, len(data), b.size)
	}

	queue := b.ctx.Queue()
	if queue != nil && b.buf != nil {
		if err := queue.WriteBuffer(b.buf, offset, data); err != nil {
			return fmt.Errorf("glo: upload to %q: %w", b.label, err)
		}
	}
	return nil
}

// Raw returns the underlying hal.Buffer, or nil on a detached context.
func (b *Buffer) Raw() hal.Buffer { return b.buf }

// Label returns the debug label.
func (b *Buffer) Label() string { return b.label }

// SizeBytes returns the allocated size in bytes.
func (b *Buffer) SizeBytes() uint64 { return b.size }

// Valid reports whether the buffer holds a live allocation.
func (b *Buffer) Valid() bool {
	return b.created && !b.released.Load()
}

// Release destroys the native handle. Idempotent; must run on the owning
// context's thread (or via the Releaser, which guarantees it).
func (b *Buffer) Release() {
	if b.released.Swap(true) {
		return
	}
	if b.buf != nil {
		if device := b.ctx.Device(); device != nil {
			device.DestroyBuffer(b.buf)
		}
		b.buf = nil
	}
	b.created = false
}
