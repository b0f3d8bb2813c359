// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package job

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/arena/glo"
)

// Pool multiplexes a fixed set of arenas across rendering contexts.
// Each context claims one arena; dispatchers without a context preference
// spread jobs round-robin with Next.
type Pool struct {
	mu     sync.Mutex
	arenas []*Arena
	byCtx  map[*glo.Context]*Arena

	rr atomic.Uint64
}

// NewPool creates a pool of n arenas. n < 1 is treated as 1.
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	arenas := make([]*Arena, n)
	for i := range arenas {
		arenas[i] = New()
	}
	return &Pool{arenas: arenas, byCtx: make(map[*glo.Context]*Arena)}
}

// Len returns the number of arenas in the pool.
func (p *Pool) Len() int { return len(p.arenas) }

// Next returns an arena by round-robin. Useful for callers that do not
// care which context runs their job.
func (p *Pool) Next() *Arena {
	i := p.rr.Add(1) - 1
	return p.arenas[i%uint64(len(p.arenas))]
}

// Attach claims an unbound arena for the context and returns it.
// A context that already holds an arena gets the same one back.
// Returns nil when every arena is taken.
func (p *Pool) Attach(ctx *glo.Context) *Arena {
	p.mu.Lock()
	defer p.mu.Unlock()

	if a, ok := p.byCtx[ctx]; ok {
		return a
	}
	for _, a := range p.arenas {
		if a.Attach(ctx) == nil {
			p.byCtx[ctx] = a
			return a
		}
	}
	return nil
}

// AttachAll claims an arena for each context in order and returns the
// number attached. Contexts beyond the pool's capacity are skipped.
func (p *Pool) AttachAll(ctxs []*glo.Context) int {
	attached := 0
	for _, ctx := range ctxs {
		if p.Attach(ctx) != nil {
			attached++
		}
	}
	return attached
}

// Detach releases the context's arena back to the pool.
func (p *Pool) Detach(ctx *glo.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if a, ok := p.byCtx[ctx]; ok {
		a.Detach()
		delete(p.byCtx, ctx)
	}
}

// Frame drains the arena attached to ctx. Called from the context's
// thread once per frame; contexts without an arena drain nothing.
func (p *Pool) Frame(ctx *glo.Context, budget time.Duration) int {
	p.mu.Lock()
	a := p.byCtx[ctx]
	p.mu.Unlock()

	if a == nil {
		return 0
	}
	return a.Frame(budget)
}

// Close closes every arena in the pool.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, a := range p.arenas {
		a.Close()
	}
	p.byCtx = make(map[*glo.Context]*Arena)
}
