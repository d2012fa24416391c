package roster

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/roach88/rosterbridge/internal/model"
)

// SortKey selects how a snapshot is ordered before ordinals are assigned.
type SortKey string

const (
	// SortStableID orders by stable ID, bytewise. This is the default.
	SortStableID SortKey = "stable_id"
	// SortSource keeps the order the Reader returned. Only deterministic if
	// the source is.
	SortSource SortKey = "source"
	// SortDisplayName orders by display name using locale collation.
	SortDisplayName SortKey = "display_name"
	// SortAttribute orders by one attribute value using locale collation.
	SortAttribute SortKey = "attribute"
)

// Ordering describes the roster sort. The zero value orders by stable ID.
type Ordering struct {
	By        SortKey
	Attribute string
	Locale    language.Tag
}

// ParseOrdering parses a sort specification: "source", "stable_id",
// "display_name" or "attribute:<name>". An empty string means stable ID.
func ParseOrdering(s string) (Ordering, error) {
	key, attr, hasAttr := strings.Cut(strings.TrimSpace(s), ":")
	switch SortKey(key) {
	case "":
		return Ordering{By: SortStableID}, nil
	case SortSource, SortStableID, SortDisplayName:
		if hasAttr {
			return Ordering{}, fmt.Errorf("sort key %q takes no argument", key)
		}
		return Ordering{By: SortKey(key)}, nil
	case SortAttribute:
		if attr == "" {
			return Ordering{}, fmt.Errorf("sort key %q requires an attribute name", key)
		}
		return Ordering{By: SortAttribute, Attribute: attr}, nil
	default:
		return Ordering{}, fmt.Errorf("unknown sort key %q", key)
	}
}

// String returns the form accepted by ParseOrdering.
func (o Ordering) String() string {
	switch o.By {
	case "":
		return string(SortStableID)
	case SortAttribute:
		return string(SortAttribute) + ":" + o.Attribute
	default:
		return string(o.By)
	}
}

// Assign orders employees and numbers them 1..n. The input is not modified.
//
// Apart from source order, ties are broken by stable ID so the same roster
// always produces the same ordinals.
func Assign(employees []model.Employee, o Ordering) []model.OrdinalEmployee {
	sorted := make([]model.Employee, len(employees))
	copy(sorted, employees)

	switch o.By {
	case "", SortStableID:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].StableID < sorted[j].StableID
		})
	case SortDisplayName:
		sortCollated(sorted, o.Locale, func(e model.Employee) string { return e.DisplayName })
	case SortAttribute:
		sortCollated(sorted, o.Locale, func(e model.Employee) string { return e.Attributes[o.Attribute] })
	}

	out := make([]model.OrdinalEmployee, len(sorted))
	for i, e := range sorted {
		out[i] = model.OrdinalEmployee{Ordinal: i + 1, Employee: e}
	}
	return out
}

func sortCollated(employees []model.Employee, locale language.Tag, key func(model.Employee) string) {
	c := collate.New(locale, collate.IgnoreCase)
	sort.SliceStable(employees, func(i, j int) bool {
		if cmp := c.CompareString(key(employees[i]), key(employees[j])); cmp != 0 {
			return cmp < 0
		}
		return employees[i].StableID < employees[j].StableID
	})
}

// Duplicates returns, for every stable ID that appears more than once, the
// ordinals claiming it in ascending order.
func Duplicates(entries []model.OrdinalEmployee) map[string][]int {
	seen := make(map[string][]int, len(entries))
	for _, e := range entries {
		seen[e.StableID] = append(seen[e.StableID], e.Ordinal)
	}
	dups := make(map[string][]int)
	for id, ords := range seen {
		if len(ords) > 1 {
			dups[id] = ords
		}
	}
	return dups
}
