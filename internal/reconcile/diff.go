package reconcile

import (
	"sort"

	"github.com/roach88/rosterbridge/internal/model"
)

// Diff compares the current mapping with a freshly assigned snapshot.
//
//   - Added: stable IDs in next with no current entry.
//   - Removed: stable IDs with a current entry that are absent from next.
//   - Moved: stable IDs present in both at different ordinals.
//   - Stable: count of stable IDs present in both at the same ordinal.
//
// Added and Removed are sorted by stable ID, Moved by destination ordinal.
// Stale entries in prev are ignored.
func Diff(prev []model.MappingEntry, next []model.OrdinalEmployee) model.Changeset {
	before := make(map[string]int, len(prev))
	for _, e := range prev {
		if e.Current() {
			before[e.StableID] = e.Ordinal
		}
	}

	cs := model.Changeset{
		Added:   []string{},
		Removed: []string{},
		Moved:   []model.Move{},
	}
	seen := make(map[string]bool, len(next))
	for _, e := range next {
		seen[e.StableID] = true
		from, ok := before[e.StableID]
		switch {
		case !ok:
			cs.Added = append(cs.Added, e.StableID)
		case from != e.Ordinal:
			cs.Moved = append(cs.Moved, model.Move{StableID: e.StableID, FromOrdinal: from, ToOrdinal: e.Ordinal})
		default:
			cs.Stable++
		}
	}
	for id := range before {
		if !seen[id] {
			cs.Removed = append(cs.Removed, id)
		}
	}

	sort.Strings(cs.Added)
	sort.Strings(cs.Removed)
	sort.Slice(cs.Moved, func(i, j int) bool {
		return cs.Moved[i].ToOrdinal < cs.Moved[j].ToOrdinal
	})
	return cs
}
