// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cache

import (
	"errors"
	"strconv"
	"sync"
	"testing"
)

func TestNew(t *testing.T) {
	c := New[string, int](100, StringHasher)
	if c == nil {
		t.Fatal("New returned nil")
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}
}

func TestCacheGetSet(t *testing.T) {
	c := New[string, int](10, StringHasher)

	c.Set("key1", 42)

	val, ok := c.Get("key1")
	if !ok {
		t.Error("expected key1 to exist")
	}
	if val != 42 {
		t.Errorf("expected 42, got %d", val)
	}

	// Overwrite does not grow the cache.
	c.Set("key1", 43)
	if c.Len() != 1 {
		t.Errorf("expected 1 entry after overwrite, got %d", c.Len())
	}
	val, _ = c.Get("key1")
	if val != 43 {
		t.Errorf("expected 43, got %d", val)
	}

	_, ok = c.Get("nonexistent")
	if ok {
		t.Error("expected nonexistent key to not exist")
	}
}

func TestCacheGetOrCreate(t *testing.T) {
	c := New[string, int](10, StringHasher)
	createCalled := 0

	// First call should create
	val, err := c.GetOrCreate("key1", func() (int, error) {
		createCalled++
		return 100, nil
	})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if val != 100 {
		t.Errorf("expected 100, got %d", val)
	}
	if createCalled != 1 {
		t.Errorf("expected create called once, got %d", createCalled)
	}

	// Second call should return cached
	val, err = c.GetOrCreate("key1", func() (int, error) {
		createCalled++
		return 200, nil
	})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if val != 100 {
		t.Errorf("expected 100 (cached), got %d", val)
	}
	if createCalled != 1 {
		t.Errorf("expected create still called once, got %d", createCalled)
	}
}

func TestCacheGetOrCreateError(t *testing.T) {
	c := New[string, int](10, StringHasher)
	wantErr := errors.New("load failed")

	_, err := c.GetOrCreate("key1", func() (int, error) {
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected load error, got %v", err)
	}

	// A failed create must not be cached.
	if _, ok := c.Get("key1"); ok {
		t.Error("expected failed create to leave no entry")
	}
}

func TestCacheEviction(t *testing.T) {
	// Capacity is per shard, so force every key into one shard.
	sameShard := func(string) uint64 { return 0 }
	c := New[string, int](3, sameShard)

	for i := 0; i < 5; i++ {
		c.Set("key"+strconv.Itoa(i), i)
	}
	if c.Len() != 3 {
		t.Fatalf("expected 3 entries after eviction, got %d", c.Len())
	}

	// Oldest two evicted, newest three remain.
	for i := 0; i < 2; i++ {
		if _, ok := c.Get("key" + strconv.Itoa(i)); ok {
			t.Errorf("expected key%d evicted", i)
		}
	}
	for i := 2; i < 5; i++ {
		if _, ok := c.Get("key" + strconv.Itoa(i)); !ok {
			t.Errorf("expected key%d resident", i)
		}
	}

	if got := c.Stats().Evictions; got != 2 {
		t.Errorf("expected 2 evictions, got %d", got)
	}
}

func TestCacheLRUOrder(t *testing.T) {
	sameShard := func(string) uint64 { return 0 }
	c := New[string, int](2, sameShard)

	c.Set("a", 1)
	c.Set("b", 2)

	// Touch a so b becomes the eviction candidate.
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("expected b evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a resident")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c resident")
	}
}

func TestCacheClear(t *testing.T) {
	c := New[string, int](10, StringHasher)
	for i := 0; i < 8; i++ {
		c.Set(strconv.Itoa(i), i)
	}
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("expected empty cache after Clear, got %d", c.Len())
	}
}

func TestCacheStats(t *testing.T) {
	c := New[string, int](10, StringHasher)
	c.Set("a", 1)

	c.Get("a")
	c.Get("a")
	c.Get("missing")

	st := c.Stats()
	if st.Hits != 2 {
		t.Errorf("expected 2 hits, got %d", st.Hits)
	}
	if st.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", st.Misses)
	}
}

func TestCacheConcurrent(t *testing.T) {
	c := New[uint64, int](32, Uint64Hasher)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := uint64(g*200 + i)
				c.Set(k, i)
				c.Get(k)
				c.GetOrCreate(k, func() (int, error) { return i, nil })
			}
		}(g)
	}
	wg.Wait()
}
