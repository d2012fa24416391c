package resolve

import (
	"errors"
	"fmt"
	"strings"
)

// AmbiguousAttributionError reports that the content tier could not narrow
// an annotation to exactly one stable ID. It is not fatal: the annotation is
// recorded as Unresolved and surfaced to operators.
type AmbiguousAttributionError struct {
	AnnotationID string

	// Candidates are the stable IDs still in contention after the last
	// matcher that had an opinion. Empty when no matcher matched at all.
	Candidates []string
}

// Error implements the error interface.
func (e *AmbiguousAttributionError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("annotation %s: no content matcher identified a candidate", e.AnnotationID)
	}
	return fmt.Sprintf("annotation %s: ambiguous attribution among [%s]", e.AnnotationID, strings.Join(e.Candidates, ", "))
}

// IsAmbiguous returns true if err is or wraps an AmbiguousAttributionError.
func IsAmbiguous(err error) bool {
	var ae *AmbiguousAttributionError
	return errors.As(err, &ae)
}
