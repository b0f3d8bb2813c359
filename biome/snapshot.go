// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package biome

// Snapshot is an immutable view of the resident set, published by one
// UpdateResidency call. A consumer may hold a snapshot for as long as it
// likes; later updates publish new snapshots without touching old ones.
type Snapshot struct {
	revision uint64
	clouds   []*Cloud
	resident []string
}

// Revision returns the resident-set revision the snapshot was published
// with. Revisions increase strictly across snapshots whose resident set
// differs.
func (s *Snapshot) Revision() uint64 { return s.revision }

// Clouds returns the grouped geometry-cloud collection, ordered by biome
// index, then by group definition order. Callers must not mutate it.
func (s *Snapshot) Clouds() []*Cloud { return s.clouds }

// Resident returns the IDs of the resident biomes, sorted. Callers must
// not mutate it.
func (s *Snapshot) Resident() []string { return s.resident }
