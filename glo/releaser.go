// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package glo

import (
	"sync"
	"time"

	"github.com/gogpu/wgpu/hal"
)

// pendingRelease is one queued destruction. Either obj or destroy is set.
type pendingRelease struct {
	label   string
	size    uint64
	obj     Object
	destroy func(hal.Device)
}

// Releaser collects GPU objects whose logical owner has gone away and
// destroys their native handles on the thread that owns the context,
// time-sliced across frames.
//
// The releaser does not own the objects it watches; it only guarantees the
// final Release call happens on the correct thread. Watch may be called
// from any goroutine; Frame and ReleaseAll must run on the context's thread.
type Releaser struct {
	ctx *Context

	mu      sync.Mutex
	pending []pendingRelease

	released uint64
	deferred uint64
}

func newReleaser(ctx *Context) *Releaser {
	return &Releaser{ctx: ctx}
}

// Watch registers an object for eventual destruction on the context's thread.
func (r *Releaser) Watch(obj Object) {
	if obj == nil {
		return
	}
	r.mu.Lock()
	r.pending = append(r.pending, pendingRelease{
		label: obj.Label(),
		size:  obj.SizeBytes(),
		obj:   obj,
	})
	r.mu.Unlock()
}

// watchRaw registers a bare destroy closure. Used internally when a live
// object swaps out its native handle (buffer reallocation) and the stale
// handle must outlive the current frame.
func (r *Releaser) watchRaw(label string, size uint64, destroy func(hal.Device)) {
	r.mu.Lock()
	r.pending = append(r.pending, pendingRelease{label: label, size: size, destroy: destroy})
	r.mu.Unlock()
}

// Frame destroys as many pending objects as fit in the time budget and
// defers the rest to the next frame. A zero budget destroys everything
// pending. Returns the number of objects destroyed.
//
// Must run on the context's thread, once per frame.
func (r *Releaser) Frame(budget time.Duration) int {
	r.mu.Lock()
	queue := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(queue) == 0 {
		return 0
	}

	bud := StartBudget(budget)
	destroyed := 0
	for i, p := range queue {
		if bud.Exhausted() && destroyed > 0 {
			// Push the remainder back for the next frame.
			r.mu.Lock()
			r.pending = append(queue[i:], r.pending...)
			kept := len(r.pending)
			r.mu.Unlock()

			r.deferred += uint64(kept)
			Logger().Debug("glo: release budget exhausted",
				"context", r.ctx.ID(), "destroyed", destroyed, "deferred", kept)
			return destroyed
		}
		r.destroyOne(p)
		destroyed++
	}

	r.released += uint64(destroyed)
	return destroyed
}

// ReleaseAll destroys everything pending, unconditionally and synchronously.
// Called on full teardown; must run on the context's thread.
func (r *Releaser) ReleaseAll() {
	r.mu.Lock()
	queue := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, p := range queue {
		r.destroyOne(p)
	}
	r.released += uint64(len(queue))
}

func (r *Releaser) destroyOne(p pendingRelease) {
	if p.obj != nil {
		p.obj.Release()
		return
	}
	if p.destroy != nil {
		if device := r.ctx.Device(); device != nil {
			p.destroy(device)
		}
	}
}

// Pending returns the number of objects awaiting destruction.
func (r *Releaser) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
