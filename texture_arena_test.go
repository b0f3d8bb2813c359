// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package arena

import (
	"encoding/binary"
	"fmt"
	"testing"
	"time"

	"github.com/gogpu/arena/glo"
	"github.com/gogpu/arena/job"
)

// tableRow resolves the handle-table bytes encoded for row i on ctx.
func tableRow(a *TextureArena, ctx *glo.Context, i int) uint64 {
	tex, ok := a.Table().At(i)
	if !ok {
		return 0
	}
	var row [8]byte
	putHandle(ctx, row[:], tex)
	return binary.LittleEndian.Uint64(row[:])
}

func TestArenaAdd(t *testing.T) {
	a := New(Config{})

	texs := make([]*Texture, 5)
	for i := range texs {
		texs[i] = NewTextureFromImage(fmt.Sprintf("tex%d", i), testImage(2, 2))
		if !a.Add(texs[i]) {
			t.Fatalf("Add tex%d failed", i)
		}
	}
	if a.Size() != 5 {
		t.Fatalf("expected 5 textures, got %d", a.Size())
	}

	// Re-adding is a no-op on size.
	if !a.Add(texs[2]) {
		t.Error("expected re-add to succeed")
	}
	if a.Size() != 5 {
		t.Errorf("expected 5 textures after re-add, got %d", a.Size())
	}

	// A texture with no image and no locator is rejected.
	if a.Add(&Texture{name: "empty"}) {
		t.Error("expected sourceless texture rejected")
	}
	if a.Add(nil) {
		t.Error("expected nil texture rejected")
	}
}

func TestArenaStableIndices(t *testing.T) {
	a := New(Config{})

	t0 := NewTextureFromImage("t0", testImage(2, 2))
	t1 := NewTextureFromImage("t1", testImage(2, 2))
	a.Add(t0)
	a.Add(t1)

	i0, _ := a.IndexOf(t0)
	i1, _ := a.IndexOf(t1)
	if i0 != 0 || i1 != 1 {
		t.Fatalf("expected indices 0 and 1, got %d and %d", i0, i1)
	}

	// Deactivation frees GPU data, never the slot.
	ctx := newTestContext(t, 0)
	a.Activate(t0)
	if err := a.Apply(ctx); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	a.Deactivate(t0)
	if err := a.Apply(ctx); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if got, _ := a.IndexOf(t0); got != i0 {
		t.Errorf("expected index %d preserved, got %d", i0, got)
	}
	if a.Texture(i0) != t0 {
		t.Error("expected catalog slot unchanged")
	}
}

func TestArenaActivateCommits(t *testing.T) {
	ctx := newTestContext(t, 0)
	a := New(Config{})
	tex := NewTextureFromImage("tex", testImage(4, 4))

	// Activate auto-adds.
	a.Activate(tex)
	if a.Size() != 1 {
		t.Fatalf("expected activate to add, got size %d", a.Size())
	}

	// Nothing is committed until the context drains.
	if tex.Committed(ctx) {
		t.Error("expected not committed before Apply")
	}

	if err := a.Apply(ctx); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !tex.Committed(ctx) {
		t.Error("expected committed after Apply")
	}
	if tex.Handle(ctx) == 0 {
		t.Error("expected non-zero handle after Apply")
	}
	if got := tex.Stage(ctx); got != StageGPUCommitted {
		t.Errorf("expected GPUCommitted, got %v", got)
	}
	// The handle table row exists for every catalog entry.
	if a.Table().Len() != a.Size() {
		t.Errorf("expected table length %d, got %d", a.Size(), a.Table().Len())
	}
}

func TestArenaDeactivateReleasesDeferred(t *testing.T) {
	ctx := newTestContext(t, 0)
	a := New(Config{})
	tex := NewTextureFromImage("tex", testImage(4, 4))

	a.Activate(tex)
	if err := a.Apply(ctx); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	a.Deactivate(tex)
	// Still committed until the next drain.
	if !tex.Committed(ctx) {
		t.Error("expected committed until the next Apply")
	}

	if err := a.Apply(ctx); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if tex.Committed(ctx) {
		t.Error("expected decommitted after Apply")
	}
	if tex.Handle(ctx) != 0 {
		t.Error("expected zero handle after deactivation")
	}
	// The GPU object went to the releaser, not destroyed inline.
	if ctx.Releaser().Pending() == 0 {
		t.Error("expected pending deferred release")
	}
	ctx.Releaser().Frame(0)

	// The slot stays allocated for the stable index.
	if got := tex.Stage(ctx); got != StageGPUAllocated {
		t.Errorf("expected GPUAllocated after deactivation, got %v", got)
	}
}

func TestArenaLastWriteWins(t *testing.T) {
	ctx := newTestContext(t, 0)
	a := New(Config{})
	tex := NewTextureFromImage("tex", testImage(4, 4))

	// Activate then deactivate within one undrained window: the later
	// request wins and the texture is never committed.
	a.Activate(tex)
	a.Deactivate(tex)
	if err := a.Apply(ctx); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if tex.Committed(ctx) {
		t.Error("expected deactivate to win")
	}

	// Deactivate then activate: committed.
	a.Deactivate(tex)
	a.Activate(tex)
	if err := a.Apply(ctx); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !tex.Committed(ctx) {
		t.Error("expected activate to win")
	}
}

func TestArenaMultiContextConvergence(t *testing.T) {
	ctx0 := newTestContext(t, 0)
	ctx1 := newTestContext(t, 1)
	a := New(Config{})

	tex := NewTextureFromImage("tex", testImage(4, 4))
	a.Activate(tex)

	// A context that drains late still converges: it scans the whole
	// catalog on its first Apply.
	if err := a.Apply(ctx0); err != nil {
		t.Fatalf("Apply ctx0: %v", err)
	}
	a.Deactivate(tex)
	a.Activate(tex)

	if err := a.Apply(ctx1); err != nil {
		t.Fatalf("Apply ctx1: %v", err)
	}
	if err := a.Apply(ctx0); err != nil {
		t.Fatalf("Apply ctx0: %v", err)
	}

	if !tex.Committed(ctx0) || !tex.Committed(ctx1) {
		t.Error("expected texture committed on both contexts")
	}
	// Handles are per context.
	if tex.Handle(ctx0) == 0 || tex.Handle(ctx1) == 0 {
		t.Error("expected handles on both contexts")
	}
}

func TestArenaMixedDrainRowIntegrity(t *testing.T) {
	ctx := newTestContext(t, 0)
	a := New(Config{})

	x := NewTextureFromImage("x", testImage(4, 4))
	y := NewTextureFromImage("y", testImage(4, 4))

	a.Activate(x)
	if err := a.Apply(ctx); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// One drain window carrying both a fresh add and a state flip on an
	// already drained slot: each row must keep its own texture's state.
	a.Activate(y)
	a.Deactivate(x)
	if err := a.Apply(ctx); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if x.Committed(ctx) {
		t.Error("expected x decommitted")
	}
	if !y.Committed(ctx) {
		t.Error("expected y committed")
	}

	ix, _ := a.IndexOf(x)
	iy, _ := a.IndexOf(y)
	if tex, _ := a.Table().At(ix); tex != x {
		t.Errorf("row %d does not identify x", ix)
	}
	if tex, _ := a.Table().At(iy); tex != y {
		t.Errorf("row %d does not identify y", iy)
	}
	if got := tableRow(a, ctx, ix); got != 0 {
		t.Errorf("decommitted row %d encodes handle %d, want 0", ix, got)
	}
	if got := tableRow(a, ctx, iy); got == 0 || got != y.Handle(ctx) {
		t.Errorf("row %d encodes %d, want y's handle %d", iy, got, y.Handle(ctx))
	}
}

func TestArenaTableRowsPerContext(t *testing.T) {
	ctx0 := newTestContext(t, 0)
	ctx1 := newTestContext(t, 1)
	a := New(Config{})

	tex := NewTextureFromImage("tex", testImage(4, 4))

	// Cycle the texture on ctx0 so its handle there moves past the value
	// ctx1 will allocate first.
	a.Activate(tex)
	if err := a.Apply(ctx0); err != nil {
		t.Fatalf("Apply ctx0: %v", err)
	}
	a.Deactivate(tex)
	if err := a.Apply(ctx0); err != nil {
		t.Fatalf("Apply ctx0: %v", err)
	}
	a.Activate(tex)
	if err := a.Apply(ctx0); err != nil {
		t.Fatalf("Apply ctx0: %v", err)
	}
	if err := a.Apply(ctx1); err != nil {
		t.Fatalf("Apply ctx1: %v", err)
	}
	if err := a.Apply(ctx0); err != nil {
		t.Fatalf("Apply ctx0: %v", err)
	}

	h0, h1 := tex.Handle(ctx0), tex.Handle(ctx1)
	if h0 == 0 || h1 == 0 {
		t.Fatalf("expected live handles on both contexts, got %d and %d", h0, h1)
	}
	if h0 == h1 {
		t.Fatalf("expected distinct per-context handles, both %d", h0)
	}

	// Each context's table row encodes that context's handle, never the
	// other's.
	i, _ := a.IndexOf(tex)
	if got := tableRow(a, ctx0, i); got != h0 {
		t.Errorf("ctx0 row = %d, want %d", got, h0)
	}
	if got := tableRow(a, ctx1, i); got != h1 {
		t.Errorf("ctx1 row = %d, want %d", got, h1)
	}
}

func TestArenaFind(t *testing.T) {
	a := New(Config{})
	tex := NewTextureFromImage("bark", testImage(2, 2))
	a.Add(tex)

	if a.Find("bark") != tex {
		t.Error("expected Find to return the texture")
	}
	if a.Find("missing") != nil {
		t.Error("expected nil for unknown name")
	}
	if a.Texture(99) != nil {
		t.Error("expected nil for out-of-range index")
	}
}

func TestArenaCompileEager(t *testing.T) {
	ctx := newTestContext(t, 0)
	a := New(Config{})

	active := NewTextureFromImage("active", testImage(4, 4))
	idle := NewTextureFromImage("idle", testImage(4, 4))
	a.Activate(active)
	a.Add(idle)

	if err := a.Compile(ctx); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !active.IsCompiled(ctx) {
		t.Error("expected active texture compiled")
	}
	if idle.IsCompiled(ctx) {
		t.Error("expected inactive texture untouched")
	}
}

func TestArenaPreCompile(t *testing.T) {
	ctx := newTestContext(t, 0)
	jobs := job.New()
	if err := jobs.Attach(ctx); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	a := New(Config{Jobs: jobs})

	tex := NewTextureFromImage("tex", testImage(4, 4))
	a.Add(tex)

	f := a.PreCompile(tex)
	if f == nil {
		t.Fatal("expected a future")
	}
	if tex.IsCompiled(ctx) {
		t.Error("expected compile deferred to the frame drain")
	}

	jobs.Frame(time.Millisecond)
	if _, err := f.Result(); err != nil {
		t.Fatalf("PreCompile job: %v", err)
	}
	if !tex.IsCompiled(ctx) {
		t.Error("expected texture compiled after drain")
	}
}

func TestArenaPreCompileWithoutJobs(t *testing.T) {
	a := New(Config{})
	tex := NewTextureFromImage("tex", testImage(2, 2))
	if a.PreCompile(tex) != nil {
		t.Error("expected nil future without a job queue")
	}
}

func TestArenaRelease(t *testing.T) {
	ctx := newTestContext(t, 0)
	a := New(Config{})

	tex := NewTextureFromImage("tex", testImage(4, 4))
	a.Activate(tex)
	if err := a.Apply(ctx); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	a.Release(ctx)
	if tex.Committed(ctx) {
		t.Error("expected decommitted after Release")
	}

	// Catalog survives; the next Apply rebuilds the context.
	if a.Size() != 1 {
		t.Fatalf("expected catalog intact, got %d", a.Size())
	}
	if err := a.Apply(ctx); err != nil {
		t.Fatalf("Apply after Release: %v", err)
	}
	if !tex.Committed(ctx) {
		t.Error("expected recommitted after Apply")
	}
}

func TestArenaStats(t *testing.T) {
	ctx := newTestContext(t, 0)
	a := New(Config{})

	a.Activate(NewTextureFromImage("a", testImage(4, 4)))
	a.Add(NewTextureFromImage("b", testImage(4, 4)))
	if err := a.Apply(ctx); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	st := a.Stats(ctx)
	if st.Textures != 2 {
		t.Errorf("expected 2 textures, got %d", st.Textures)
	}
	if st.Committed != 1 {
		t.Errorf("expected 1 committed, got %d", st.Committed)
	}
	if st.GPUBytes != 4*4*4 {
		t.Errorf("expected %d GPU bytes, got %d", 4*4*4, st.GPUBytes)
	}
	if st.TableBytes == 0 {
		t.Error("expected non-zero table allocation")
	}
	if st.String() == "" {
		t.Error("expected non-empty summary")
	}
}
