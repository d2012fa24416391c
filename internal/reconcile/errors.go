package reconcile

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/rosterbridge/internal/store"
)

// RunError represents a reconciliation run that aborted before commit.
// Nothing the run would have written is persisted.
type RunError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes run errors.
type ErrorCode string

const (
	// ErrCodeSnapshotFetch indicates the roster could not be fetched within
	// the retry budget.
	ErrCodeSnapshotFetch ErrorCode = "SNAPSHOT_FETCH_FAILED"

	// ErrCodeDuplicateStableID indicates two ordinals in one snapshot claim
	// the same stable ID.
	ErrCodeDuplicateStableID ErrorCode = "DUPLICATE_STABLE_ID"

	// ErrCodeInvalidSnapshot indicates a snapshot entry without a stable ID.
	ErrCodeInvalidSnapshot ErrorCode = "INVALID_SNAPSHOT"

	// ErrCodeEmptySnapshot indicates an empty roster would retire every
	// current entry. Use Rebuild to install an empty roster on purpose.
	ErrCodeEmptySnapshot ErrorCode = "EMPTY_SNAPSHOT"

	// ErrCodeMissingReason indicates a rebuild was requested without a reason.
	ErrCodeMissingReason ErrorCode = "MISSING_REASON"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RunError) Unwrap() error {
	return e.Err
}

// IsSnapshotFetchError returns true if the run aborted because the roster
// could not be fetched. Uses errors.As to handle wrapped errors.
func IsSnapshotFetchError(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeSnapshotFetch
	}
	return false
}

// IsDuplicateStableIDError returns true if the run aborted on a corrupt
// snapshot, whether detected before the transaction or by the store.
func IsDuplicateStableIDError(err error) bool {
	var re *RunError
	if errors.As(err, &re) && re.Code == ErrCodeDuplicateStableID {
		return true
	}
	return store.IsDuplicateStableIDError(err)
}

// NewSnapshotFetchError creates a RunError for an exhausted fetch.
func NewSnapshotFetchError(attempts int, err error) *RunError {
	return &RunError{
		Code:    ErrCodeSnapshotFetch,
		Message: fmt.Sprintf("roster fetch failed after %d attempt(s)", attempts),
		Details: map[string]string{"attempts": fmt.Sprintf("%d", attempts)},
		Err:     err,
	}
}

// NewDuplicateStableIDError creates a RunError listing every duplicated
// stable ID with the ordinals claiming it.
func NewDuplicateStableIDError(dups map[string][]int) *RunError {
	ids := make([]string, 0, len(dups))
	for id := range dups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	details := make(map[string]string, len(ids))
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		ords := make([]string, len(dups[id]))
		for i, o := range dups[id] {
			ords[i] = fmt.Sprintf("%d", o)
		}
		details[id] = strings.Join(ords, ",")
		parts = append(parts, fmt.Sprintf("%q at ordinals %s", id, details[id]))
	}

	return &RunError{
		Code:    ErrCodeDuplicateStableID,
		Message: "snapshot claims stable id more than once: " + strings.Join(parts, "; "),
		Details: details,
	}
}
