package verify

import (
	"errors"
	"fmt"
	"strings"
)

// ViolationKind identifies the invariant a Violation breaks.
type ViolationKind string

const (
	// ViolationDuplicateStableID: a stable ID has more than one current entry.
	ViolationDuplicateStableID ViolationKind = "duplicate_stable_id"

	// ViolationDuplicateOrdinal: an ordinal has more than one current entry.
	ViolationDuplicateOrdinal ViolationKind = "duplicate_ordinal"

	// ViolationDanglingReference: a resolved annotation points at a stable ID
	// with no current entry.
	ViolationDanglingReference ViolationKind = "dangling_reference"
)

// Violation is one broken invariant found by the verifier.
type Violation struct {
	Kind      ViolationKind `json:"kind"`
	Key       string        `json:"key"`
	Ordinals  []int         `json:"ordinals,omitempty"`
	StableIDs []string      `json:"stable_ids,omitempty"`

	// AnnotationIDs is set for dangling references.
	AnnotationIDs []string `json:"annotation_ids,omitempty"`

	// Fatal violations mean the mapping itself is corrupt.
	Fatal bool `json:"fatal"`
}

func (v Violation) String() string {
	switch v.Kind {
	case ViolationDuplicateStableID:
		return fmt.Sprintf("stable id %q is current at ordinals %s", v.Key, joinInts(v.Ordinals))
	case ViolationDuplicateOrdinal:
		return fmt.Sprintf("ordinal %s is current for stable ids %s", v.Key, strings.Join(v.StableIDs, ","))
	case ViolationDanglingReference:
		return fmt.Sprintf("stable id %q is not on the roster but resolves %d annotation(s)", v.Key, len(v.AnnotationIDs))
	default:
		return fmt.Sprintf("%s: %s", v.Kind, v.Key)
	}
}

// InvariantViolation is returned by Report.Err when the report holds fatal
// violations.
type InvariantViolation struct {
	Violations []Violation
}

func (e *InvariantViolation) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "invariant violation: " + strings.Join(parts, "; ")
}

// IsInvariantViolation checks if the error is an *InvariantViolation.
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ",")
}
