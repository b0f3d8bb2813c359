// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package glo

import (
	"testing"
	"time"
)

// fakeObject counts Release calls and optionally stalls to exercise
// the frame time budget.
type fakeObject struct {
	label    string
	released int
	delay    time.Duration
}

func (f *fakeObject) Label() string     { return f.label }
func (f *fakeObject) Valid() bool       { return f.released == 0 }
func (f *fakeObject) SizeBytes() uint64 { return 64 }
func (f *fakeObject) Release() {
	f.released++
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
}

func TestReleaserFrameDestroysAll(t *testing.T) {
	ctx := newTestContext(t, 0)
	r := ctx.Releaser()

	objs := make([]*fakeObject, 5)
	for i := range objs {
		objs[i] = &fakeObject{label: "obj"}
		r.Watch(objs[i])
	}
	if r.Pending() != 5 {
		t.Fatalf("expected 5 pending, got %d", r.Pending())
	}

	// Zero budget destroys everything.
	if n := r.Frame(0); n != 5 {
		t.Errorf("expected 5 destroyed, got %d", n)
	}
	if r.Pending() != 0 {
		t.Errorf("expected 0 pending, got %d", r.Pending())
	}
	for i, o := range objs {
		if o.released != 1 {
			t.Errorf("obj %d: expected 1 release, got %d", i, o.released)
		}
	}
}

func TestReleaserFrameBudget(t *testing.T) {
	ctx := newTestContext(t, 0)
	r := ctx.Releaser()

	for i := 0; i < 4; i++ {
		r.Watch(&fakeObject{label: "slow", delay: 5 * time.Millisecond})
	}

	// A tiny budget still destroys at least one object per frame,
	// deferring the rest.
	n := r.Frame(time.Microsecond)
	if n < 1 {
		t.Fatalf("expected at least 1 destroyed, got %d", n)
	}
	if n+r.Pending() != 4 {
		t.Errorf("expected destroyed + pending == 4, got %d + %d", n, r.Pending())
	}

	// Repeated frames drain the rest.
	for r.Pending() > 0 {
		if r.Frame(time.Microsecond) == 0 {
			t.Fatal("frame with pending work destroyed nothing")
		}
	}
}

func TestReleaserWatchNil(t *testing.T) {
	ctx := newTestContext(t, 0)
	r := ctx.Releaser()
	r.Watch(nil)
	if r.Pending() != 0 {
		t.Errorf("expected nil watch ignored, got %d pending", r.Pending())
	}
}

func TestReleaserTeardown(t *testing.T) {
	ctx := newTestContext(t, 0)

	obj := &fakeObject{label: "obj"}
	ctx.Releaser().Watch(obj)

	ctx.Teardown()
	if obj.released != 1 {
		t.Errorf("expected object released on teardown, got %d", obj.released)
	}
	if ctx.Releaser().Pending() != 0 {
		t.Errorf("expected 0 pending after teardown, got %d", ctx.Releaser().Pending())
	}
}

func TestReleaserFrameEmpty(t *testing.T) {
	ctx := newTestContext(t, 0)
	if n := ctx.Releaser().Frame(time.Millisecond); n != 0 {
		t.Errorf("expected 0 destroyed on empty queue, got %d", n)
	}
}
