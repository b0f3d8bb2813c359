// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package job

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Future errors.
var (
	// ErrAbandoned is returned by Result when the caller abandoned the
	// future before the job delivered.
	ErrAbandoned = errors.New("job: future abandoned")

	// ErrNotReady is returned by TryResult when the job has not run yet.
	ErrNotReady = errors.New("job: result not ready")
)

// Future is the consumer half of a dispatched job. The producer (the
// arena's frame drain) resolves it exactly once; the consumer may block on
// Result from any goroutine, poll with TryResult, or walk away with
// Abandon.
//
// Abandoning does not stop the job: execution is at-most-once regardless,
// only result delivery becomes a no-op.
type Future struct {
	done      chan struct{}
	abandoned atomic.Bool

	mu     sync.Mutex
	result any
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Done returns a channel closed when the job has run (or the arena closed).
func (f *Future) Done() <-chan struct{} { return f.done }

// Result blocks until the job has run and returns its result.
// After Abandon, Result returns ErrAbandoned immediately.
func (f *Future) Result() (any, error) {
	if f.abandoned.Load() {
		return nil, ErrAbandoned
	}
	<-f.done
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.err
}

// TryResult returns the result if the job has already run.
// It returns ErrNotReady without blocking otherwise.
func (f *Future) TryResult() (any, error) {
	if f.abandoned.Load() {
		return nil, ErrAbandoned
	}
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.result, f.err
	default:
		return nil, ErrNotReady
	}
}

// Abandon marks the future as discarded. The job still runs, but its
// result is dropped instead of stored. Safe to call from any goroutine,
// any number of times.
func (f *Future) Abandon() {
	f.abandoned.Store(true)
}

// Await blocks on the future and asserts its result to T. A result of a
// different dynamic type is reported as an error rather than a panic.
func Await[T any](f *Future) (T, error) {
	var zero T
	v, err := f.Result()
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("job: result is %T, want %T", v, zero)
	}
	return t, nil
}

// deliver resolves the future. Called exactly once by the arena.
func (f *Future) deliver(result any, err error) {
	if !f.abandoned.Load() {
		f.mu.Lock()
		f.result = result
		f.err = err
		f.mu.Unlock()
	}
	close(f.done)
}
