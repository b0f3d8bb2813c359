// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package glo

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Encoder serializes one record of a lookup table into a fixed-size slot.
// dst is exactly Stride bytes, zeroed. Layout must match the shader-side
// record (std430-style, little-endian).
type Encoder[T any] func(dst []byte, v T)

// ContextEncoder serializes one record for a specific context. Used when
// the GPU-side bytes of a record differ per context, as bindless handles
// do: the CPU mirror then holds context-independent identities and each
// context's refresh resolves its own values.
type ContextEncoder[T any] func(ctx *Context, dst []byte, v T)

// PutUint64 is the Encoder for a table of raw 64-bit bindless handles.
func PutUint64(dst []byte, v uint64) {
	binary.LittleEndian.PutUint64(dst, v)
}

// lookupGC is the per-context GPU state of a LookupTable: the storage
// buffer plus the dirty element range not yet uploaded on that context.
type lookupGC struct {
	buf *Buffer

	// uploaded is the element count covered by the last refresh.
	uploaded int

	// dirtyLo/dirtyHi bound the dirty element range, half-open.
	// dirtyLo == dirtyHi means clean.
	dirtyLo int
	dirtyHi int
}

func (gc *lookupGC) markDirty(lo, hi int) {
	if gc.dirtyLo == gc.dirtyHi {
		gc.dirtyLo, gc.dirtyHi = lo, hi
		return
	}
	if lo < gc.dirtyLo {
		gc.dirtyLo = lo
	}
	if hi > gc.dirtyHi {
		gc.dirtyHi = hi
	}
}

// LookupTable is a dynamically sized GPU-side array of fixed-size records
// with a CPU mirror, replicated across rendering contexts.
//
// Element writes go to the mirror and mark a dirty range per context;
// Refresh uploads only the minimal dirty byte range on the context it is
// given. The GPU allocation grows by reallocation, rounded up to the
// driver-reported alignment, and never shrinks within a frame.
//
// Mutations (Append, Set) are safe from any goroutine; Refresh and Release
// must run on the respective context's thread.
type LookupTable[T any] struct {
	label     string
	stride    int
	encode    Encoder[T]
	ctxEncode ContextEncoder[T]

	mu     sync.Mutex
	mirror []T

	states Buffered[lookupGC]
}

// NewLookupTable creates an empty table. stride is the per-record byte
// size on the GPU; encode writes one record into a stride-sized slot.
func NewLookupTable[T any](label string, stride int, encode Encoder[T]) *LookupTable[T] {
	if stride <= 0 {
		panic("glo: lookup table stride must be positive")
	}
	return &LookupTable[T]{label: label, stride: stride, encode: encode}
}

// NewContextLookupTable creates an empty table whose records encode
// differently per context. The mirror holds the shared record identity;
// encode resolves the refreshing context's bytes for it, so no context
// ever uploads another context's values.
func NewContextLookupTable[T any](label string, stride int, encode ContextEncoder[T]) *LookupTable[T] {
	if stride <= 0 {
		panic("glo: lookup table stride must be positive")
	}
	return &LookupTable[T]{label: label, stride: stride, ctxEncode: encode}
}

// NewHandleTable creates a table of 64-bit bindless handles.
func NewHandleTable(label string) *LookupTable[uint64] {
	return NewLookupTable[uint64](label, 8, PutUint64)
}

// Len returns the logical element count.
func (t *LookupTable[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.mirror)
}

// Stride returns the per-record byte size.
func (t *LookupTable[T]) Stride() int { return t.stride }

// At returns the mirror record at index i.
func (t *LookupTable[T]) At(i int) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 || i >= len(t.mirror) {
		var zero T
		return zero, false
	}
	return t.mirror[i], true
}

// Append adds a record and returns its index. Indices are stable: once
// assigned, an index is never reused for a different record slot.
func (t *LookupTable[T]) Append(v T) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := len(t.mirror)
	t.mirror = append(t.mirror, v)
	t.states.ForEach(func(_ int, gc *lookupGC) {
		gc.markDirty(i, i+1)
	})
	return i
}

// Set overwrites the record at index i. Out-of-range indices are ignored.
func (t *LookupTable[T]) Set(i int, v T) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i < 0 || i >= len(t.mirror) {
		return
	}
	t.mirror[i] = v
	t.states.ForEach(func(_ int, gc *lookupGC) {
		gc.markDirty(i, i+1)
	})
}

// SetAll replaces the whole mirror. Used when a table is rebuilt from
// scratch (residency snapshots): every context re-uploads everything.
func (t *LookupTable[T]) SetAll(records []T) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.mirror = append(t.mirror[:0], records...)
	n := len(t.mirror)
	t.states.ForEach(func(_ int, gc *lookupGC) {
		gc.dirtyLo, gc.dirtyHi = 0, n
		if gc.uploaded > n {
			// Shrunk logically. The GPU allocation stays; stale tail
			// records are unreachable because consumers index < Len.
			gc.uploaded = n
		}
	})
}

// Refresh uploads the context's dirty range, creating or growing the GPU
// buffer first if the logical byte size outgrew it. The new allocation is
// the logical byte size rounded up to the context's alignment; shrink
// never reallocates.
//
// Must run on the context's thread, under the context's GPU lock.
func (t *LookupTable[T]) Refresh(ctx *Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	gc := t.states.Get(ctx)
	n := len(t.mirror)
	if n == 0 {
		return nil
	}

	newCtx := gc.buf == nil
	if newCtx {
		gc.buf = NewBuffer(ctx, t.label, DefaultBufferUsage)
		gc.dirtyLo, gc.dirtyHi = 0, n
	} else if gc.uploaded < n {
		// Elements appended since the last refresh on this context.
		gc.markDirty(gc.uploaded, n)
	}

	logical := uint64(n * t.stride)
	if logical > gc.buf.SizeBytes() {
		rounded := roundUp(logical, ctx.Alignment())
		if err := gc.buf.Create(rounded); err != nil {
			return fmt.Errorf("glo: grow lookup table %q: %w", t.label, err)
		}
		// Reallocation invalidates previous contents.
		gc.dirtyLo, gc.dirtyHi = 0, n
	}

	if gc.dirtyLo == gc.dirtyHi {
		return nil
	}

	lo, hi := gc.dirtyLo, gc.dirtyHi
	if hi > n {
		hi = n
	}
	data := make([]byte, (hi-lo)*t.stride)
	for i := lo; i < hi; i++ {
		slot := data[(i-lo)*t.stride : (i-lo+1)*t.stride]
		if t.ctxEncode != nil {
			t.ctxEncode(ctx, slot, t.mirror[i])
		} else {
			t.encode(slot, t.mirror[i])
		}
	}
	if err := gc.buf.Upload(uint64(lo*t.stride), data); err != nil {
		return fmt.Errorf("glo: refresh lookup table %q: %w", t.label, err)
	}

	Logger().Debug("glo: lookup table refreshed",
		"table", t.label, "context", ctx.ID(), "lo", lo, "hi", hi)

	gc.dirtyLo, gc.dirtyHi = 0, 0
	gc.uploaded = n
	return nil
}

// Buffer returns the context's storage buffer, or nil before the first
// refresh on that context.
func (t *LookupTable[T]) Buffer(ctx *Context) *Buffer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states.Get(ctx).buf
}

// ResizeBuffers grows the per-context state array to n slots.
func (t *LookupTable[T]) ResizeBuffers(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states.Resize(n)
}

// Release hands the context's GPU buffer to the context's releaser and
// clears that context's state. Other contexts are unaffected.
func (t *LookupTable[T]) Release(ctx *Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	gc := t.states.Get(ctx)
	if gc.buf != nil {
		ctx.Releaser().Watch(gc.buf)
		gc.buf = nil
	}
	gc.uploaded = 0
	gc.dirtyLo, gc.dirtyHi = 0, 0
}

// roundUp rounds v up to the next multiple of align (align must be > 0).
func roundUp(v, align uint64) uint64 {
	return (v + align - 1) / align * align
}
