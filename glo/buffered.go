// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package glo

import "sync"

// Buffered is a per-context slot array: one element per rendering context,
// indexed by the context's stable ID.
//
// Slots grow on demand and are never shrunk; growth default-initializes new
// slots and preserves existing entries by index. An operation addressed to an
// index beyond the current size therefore resizes first and then observes a
// zero-value slot, matching the stale-context rule: resize, then no-op.
//
// Buffered is safe for concurrent use.
type Buffered[T any] struct {
	mu    sync.RWMutex
	slots []T
}

// Get returns a pointer to the slot for the given context, growing the
// array if needed. The pointer stays valid only until the next growth;
// callers must not retain it across frames.
func (b *Buffered[T]) Get(ctx *Context) *T {
	return b.Index(ctx.ID())
}

// Index is Get by raw context ID.
func (b *Buffered[T]) Index(id int) *T {
	b.mu.RLock()
	if id < len(b.slots) {
		p := &b.slots[id]
		b.mu.RUnlock()
		return p
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if id >= len(b.slots) {
		grown := make([]T, id+1)
		copy(grown, b.slots)
		b.slots = grown
	}
	return &b.slots[id]
}

// Resize grows the array to hold at least n slots. Shrinking is ignored:
// existing per-context entries must survive a resize by index.
func (b *Buffered[T]) Resize(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= len(b.slots) {
		return
	}
	grown := make([]T, n)
	copy(grown, b.slots)
	b.slots = grown
}

// Len returns the current number of slots.
func (b *Buffered[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.slots)
}

// ForEach calls fn for every allocated slot, passing the slot index.
// The lock is held for the duration; fn must not call back into Buffered.
func (b *Buffered[T]) ForEach(fn func(id int, slot *T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.slots {
		fn(i, &b.slots[i])
	}
}
