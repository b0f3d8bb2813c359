// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package glo

import "sync"

// HandleAllocator acquires and releases 64-bit bindless handles: GPU-visible
// tokens that let a shader sample a texture without a numbered texture unit.
//
// The driver layer implements this when native bindless support exists.
// LocalHandles provides a deterministic in-process fallback.
type HandleAllocator interface {
	// AcquireHandle returns a non-zero handle for the given texture object.
	// Calling it twice for the same object returns the same handle.
	AcquireHandle(obj *TextureObject) (uint64, error)

	// ReleaseHandle invalidates a previously acquired handle.
	// Releasing an unknown or zero handle is a no-op.
	ReleaseHandle(handle uint64)
}

// LocalHandles is an in-process HandleAllocator that hands out strictly
// increasing non-zero handles. Handles are never reused, which keeps a
// released handle distinguishable from a live one.
//
// LocalHandles is safe for concurrent use.
type LocalHandles struct {
	mu   sync.Mutex
	next uint64
	live map[*TextureObject]uint64
}

// NewLocalHandles creates an empty in-process handle allocator.
func NewLocalHandles() *LocalHandles {
	return &LocalHandles{
		next: 1,
		live: make(map[*TextureObject]uint64),
	}
}

// AcquireHandle returns the object's handle, allocating one if needed.
func (h *LocalHandles) AcquireHandle(obj *TextureObject) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if handle, ok := h.live[obj]; ok {
		return handle, nil
	}
	handle := h.next
	h.next++
	h.live[obj] = handle
	return handle, nil
}

// ReleaseHandle invalidates a handle. The handle value is never reissued.
func (h *LocalHandles) ReleaseHandle(handle uint64) {
	if handle == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for obj, v := range h.live {
		if v == handle {
			delete(h.live, obj)
			return
		}
	}
}

// Live returns the number of currently acquired handles.
func (h *LocalHandles) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}
