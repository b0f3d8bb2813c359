// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package job

import (
	"errors"
	"sync"
	"time"

	"github.com/gogpu/arena/glo"
)

// Arena errors.
var (
	// ErrClosed is returned for jobs still queued when the arena closes,
	// and by Dispatch after Close.
	ErrClosed = errors.New("job: arena closed")

	// ErrAttached is returned by Attach when the arena is already bound
	// to a different context.
	ErrAttached = errors.New("job: arena already attached to a context")
)

// Job is a unit of work that needs a graphics-capable thread. It runs
// during the bound context's frame drain, with that context's state and a
// cancellation token. Jobs must check the token cooperatively and may
// return early; closing happens when the arena closes.
type Job func(ctx *glo.Context, cancel <-chan struct{}) (any, error)

// task pairs a job with its future.
type task struct {
	job    Job
	future *Future
}

// Arena is a single logical work queue bound to at most one graphics
// context at a time. Dispatch is safe from any goroutine and always
// enqueues, attached or not; queued jobs wait until a context is attached
// and its render thread drains the arena once per frame.
//
// Attachment is exclusive. Use a Pool to multiplex arenas when several
// contexts need async dispatch.
type Arena struct {
	mu       sync.Mutex
	queue    []task
	attached *glo.Context
	closed   bool

	cancel chan struct{}
}

// New creates an empty, detached arena.
func New() *Arena {
	return &Arena{cancel: make(chan struct{})}
}

// Dispatch enqueues a job and returns its future immediately. The caller
// may run on any thread. If the arena is closed the returned future is
// already resolved with ErrClosed.
func (a *Arena) Dispatch(job Job) *Future {
	f := newFuture()
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		f.deliver(nil, ErrClosed)
		return f
	}
	a.queue = append(a.queue, task{job: job, future: f})
	a.mu.Unlock()
	return f
}

// Valid reports whether dispatched jobs can currently make progress:
// a context is attached and the arena is open. Dispatch still enqueues
// when Valid is false; callers use Valid to decide whether to skip.
func (a *Arena) Valid() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attached != nil && !a.closed
}

// Attach binds the arena to a context. At most one context owns an arena
// at a time; attaching while bound to a different context fails with
// ErrAttached. Re-attaching the same context is a no-op.
func (a *Arena) Attach(ctx *glo.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if a.attached != nil && a.attached != ctx {
		return ErrAttached
	}
	a.attached = ctx
	return nil
}

// Detach unbinds the arena from its context. Queued jobs stay queued.
func (a *Arena) Detach() {
	a.mu.Lock()
	a.attached = nil
	a.mu.Unlock()
}

// Context returns the currently attached context, or nil.
func (a *Arena) Context() *glo.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attached
}

// Len returns the number of queued jobs.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

// Frame drains queued jobs against the time slice. With no slice set
// (budget <= 0) exactly one job runs per frame. Otherwise jobs run until
// the slice is spent; at least one job runs whenever the queue is
// non-empty.
//
// Must be called from the attached context's thread, once per frame.
// Returns the number of jobs executed. Detached arenas execute nothing.
func (a *Arena) Frame(budget time.Duration) int {
	a.mu.Lock()
	ctx := a.attached
	a.mu.Unlock()
	if ctx == nil {
		return 0
	}

	bud := glo.StartBudget(budget)
	ran := 0
	for {
		a.mu.Lock()
		if len(a.queue) == 0 || a.closed {
			a.mu.Unlock()
			return ran
		}
		t := a.queue[0]
		a.queue = a.queue[1:]
		a.mu.Unlock()

		result, err := t.job(ctx, a.cancel)
		t.future.deliver(result, err)
		ran++

		if !bud.Sliced() {
			// No slice configured: one job per frame.
			return ran
		}
		if bud.Exhausted() {
			return ran
		}
	}
}

// Close signals cancellation to running jobs, resolves all queued futures
// with ErrClosed, and rejects further dispatch. Idempotent.
func (a *Arena) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	orphans := a.queue
	a.queue = nil
	a.attached = nil
	a.mu.Unlock()

	close(a.cancel)
	for _, t := range orphans {
		t.future.deliver(nil, ErrClosed)
	}
	glo.Logger().Debug("job: arena closed", "orphaned", len(orphans))
}
