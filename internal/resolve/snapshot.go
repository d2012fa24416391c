package resolve

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/rosterbridge/internal/model"
)

// MappingSource supplies the full mapping history. Implemented by *store.Store.
type MappingSource interface {
	AllMappings(ctx context.Context) ([]model.MappingEntry, error)
}

// Snapshot is an immutable in-memory copy of the mapping history.
//
// Every worker in a pass reads the same Snapshot, so a reconciliation
// committed mid-pass cannot change answers underfoot.
//
// Thread-safety: Snapshot is read-only after construction and safe for
// concurrent use.
type Snapshot struct {
	entries   []model.MappingEntry
	byOrdinal map[int][]model.MappingEntry
	current   map[int]model.MappingEntry
	names     map[string][]string
	stableIDs []string
}

// TakeSnapshot reads the full mapping history from src.
func TakeSnapshot(ctx context.Context, src MappingSource) (*Snapshot, error) {
	entries, err := src.AllMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("take snapshot: %w", err)
	}
	return NewSnapshot(entries), nil
}

// NewSnapshot builds a Snapshot from entries. entries is copied.
func NewSnapshot(entries []model.MappingEntry) *Snapshot {
	s := &Snapshot{
		entries:   make([]model.MappingEntry, len(entries)),
		byOrdinal: make(map[int][]model.MappingEntry),
		current:   make(map[int]model.MappingEntry),
		names:     make(map[string][]string),
	}
	copy(s.entries, entries)
	sort.SliceStable(s.entries, func(i, j int) bool {
		return s.entries[i].ID < s.entries[j].ID
	})

	seenName := make(map[string]map[string]bool)
	for _, e := range s.entries {
		s.byOrdinal[e.Ordinal] = append(s.byOrdinal[e.Ordinal], e)
		if e.Current() {
			s.current[e.Ordinal] = e
		}
		if seenName[e.StableID] == nil {
			seenName[e.StableID] = make(map[string]bool)
			s.stableIDs = append(s.stableIDs, e.StableID)
		}
		if e.DisplayName != "" && !seenName[e.StableID][e.DisplayName] {
			seenName[e.StableID][e.DisplayName] = true
			s.names[e.StableID] = append(s.names[e.StableID], e.DisplayName)
		}
	}
	sort.Strings(s.stableIDs)
	return s
}

// Len returns the number of entries in the snapshot.
func (s *Snapshot) Len() int { return len(s.entries) }

// Current returns the non-stale entry for ordinal.
func (s *Snapshot) Current(ordinal int) (model.MappingEntry, bool) {
	e, ok := s.current[ordinal]
	return e, ok
}

// OrdinalHistory returns every entry that ever held ordinal, oldest first.
func (s *Snapshot) OrdinalHistory(ordinal int) []model.MappingEntry {
	return s.byOrdinal[ordinal]
}

// Holders returns the distinct stable IDs that ever held ordinal, sorted.
func (s *Snapshot) Holders(ordinal int) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, e := range s.byOrdinal[ordinal] {
		if !seen[e.StableID] {
			seen[e.StableID] = true
			ids = append(ids, e.StableID)
		}
	}
	sort.Strings(ids)
	return ids
}

// StableIDs returns every stable ID in the history, sorted.
func (s *Snapshot) StableIDs() []string {
	return s.stableIDs
}

// DisplayNames returns every display name a stable ID was recorded under,
// in the order first seen.
func (s *Snapshot) DisplayNames(stableID string) []string {
	return s.names[stableID]
}
