// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package glo

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"
)

// Context errors.
var (
	// ErrInvalidContextID is returned when a context is created with a
	// negative ID.
	ErrInvalidContextID = errors.New("glo: context ID must be non-negative")

	// ErrNilProvider is returned when a nil DeviceProvider is passed.
	ErrNilProvider = errors.New("glo: nil DeviceProvider")
)

// DeviceProvider supplies the host application's GPU device. The library
// never creates a device; the host (e.g. gogpu.App) implements
// gpucontext.DeviceProvider and hands it to each context.
type DeviceProvider = gpucontext.DeviceProvider

// DefaultStorageAlignment is the storage-buffer offset alignment assumed
// when the host does not report one. 256 is the WebGPU default minimum.
const DefaultStorageAlignment = 256

// ContextConfig holds configuration for creating a Context.
type ContextConfig struct {
	// StorageAlignment is the driver-reported minimum alignment for
	// storage-buffer allocations. Lookup tables round their byte sizes
	// up to this boundary. Defaults to DefaultStorageAlignment if <= 0.
	StorageAlignment uint64

	// Handles supplies bindless handles for committed textures.
	// Defaults to an in-process allocator when nil, which is suitable
	// for hosts whose HAL lacks native bindless support, and for tests.
	Handles HandleAllocator

	// Label is an optional debug label, prefixed onto GPU object labels.
	Label string
}

// Context represents one rendering context: the pairing of a GPU device
// and the single thread that performs native GPU calls for it.
//
// The library never creates a device; the host supplies one (see
// SetDeviceProvider). All native handle creation, upload, and destruction
// for a context must happen on the thread that invokes its per-frame
// hooks: Apply on arenas, Frame on the Releaser and job arenas.
//
// The small integer ID is a stable index into per-context buffered state
// (see Buffered). IDs should be dense and assigned by the host, one per
// window or viewer.
type Context struct {
	id        int
	label     string
	alignment uint64

	// mu is the context's GPU lock. Arenas hold it for the duration of
	// a drain; it is never held across a load operation.
	mu sync.Mutex

	device  hal.Device
	queue   hal.Queue
	handles HandleAllocator

	releaser *Releaser
	frame    uint64
}

// NewContext creates a context with the given stable ID.
// The context starts detached: with no device, GPU objects created
// against it track logical state only and allocate no native handles.
func NewContext(id int, cfg ContextConfig) (*Context, error) {
	if id < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidContextID, id)
	}

	alignment := cfg.StorageAlignment
	if alignment == 0 {
		alignment = DefaultStorageAlignment
	}

	handles := cfg.Handles
	if handles == nil {
		handles = NewLocalHandles()
	}

	c := &Context{
		id:        id,
		label:     cfg.Label,
		alignment: alignment,
		handles:   handles,
	}
	c.releaser = newReleaser(c)

	Logger().Info("glo: context created", "id", id, "alignment", alignment)
	return c, nil
}

// SetDeviceProvider attaches the host's GPU device to the context.
// The provider must additionally expose HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue (the gpucontext HAL provider
// convention); providers without HAL access cannot back an arena context.
func (c *Context) SetDeviceProvider(provider DeviceProvider) error {
	if provider == nil {
		return ErrNilProvider
	}
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("glo: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("glo: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("glo: provider HalQueue is not hal.Queue")
	}
	c.SetDevice(device, queue)
	return nil
}

// SetDevice attaches a device and queue directly.
// Must be called before the first frame, from the context's thread.
func (c *Context) SetDevice(device hal.Device, queue hal.Queue) {
	c.mu.Lock()
	c.device = device
	c.queue = queue
	c.mu.Unlock()
}

// ID returns the context's stable index.
func (c *Context) ID() int { return c.id }

// Label returns the debug label.
func (c *Context) Label() string { return c.label }

// Alignment returns the storage-buffer offset alignment for this context.
func (c *Context) Alignment() uint64 { return c.alignment }

// Device returns the attached hal.Device, or nil when detached.
func (c *Context) Device() hal.Device { return c.device }

// Queue returns the attached hal.Queue, or nil when detached.
func (c *Context) Queue() hal.Queue { return c.queue }

// Handles returns the bindless handle allocator for this context.
func (c *Context) Handles() HandleAllocator { return c.handles }

// Releaser returns the context's deferred releaser.
func (c *Context) Releaser() *Releaser { return c.releaser }

// Lock acquires the context's GPU lock. Arenas hold it while draining.
func (c *Context) Lock() { c.mu.Lock() }

// Unlock releases the context's GPU lock.
func (c *Context) Unlock() { c.mu.Unlock() }

// Frame returns the number of completed frames on this context.
func (c *Context) Frame() uint64 { return c.frame }

// EndFrame advances the frame counter. The host calls this once per
// rendered frame, after all drains, from the context's thread.
func (c *Context) EndFrame() { c.frame++ }

// Teardown destroys everything the releaser still tracks, synchronously
// and without a time budget. Must run on the context's thread.
func (c *Context) Teardown() {
	c.releaser.ReleaseAll()
	Logger().Info("glo: context teardown", "id", c.id)
}
