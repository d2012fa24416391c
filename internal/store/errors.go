package store

import (
	"errors"
	"fmt"
	"sort"
)

// DuplicateStableIDError reports that two ordinals in one batch claimed the
// same stable ID. It signals a corrupt roster snapshot; the whole batch is
// rolled back.
type DuplicateStableIDError struct {
	StableID string
	Ordinals []int
}

// Error implements the error interface.
func (e *DuplicateStableIDError) Error() string {
	ords := append([]int(nil), e.Ordinals...)
	sort.Ints(ords)
	return fmt.Sprintf("duplicate stable id %q claimed by ordinals %v", e.StableID, ords)
}

// IsDuplicateStableIDError returns true if err is or wraps a DuplicateStableIDError.
func IsDuplicateStableIDError(err error) bool {
	var de *DuplicateStableIDError
	return errors.As(err, &de)
}
