package reconcile

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/rosterbridge/internal/store"
)

func TestRunError_Message(t *testing.T) {
	err := NewSnapshotFetchError(3, errors.New("dial tcp: refused"))

	assert.Equal(t, "SNAPSHOT_FETCH_FAILED: roster fetch failed after 3 attempt(s): dial tcp: refused", err.Error())
}

func TestIsSnapshotFetchError_Wrapped(t *testing.T) {
	err := fmt.Errorf("job: %w", NewSnapshotFetchError(1, errors.New("x")))

	assert.True(t, IsSnapshotFetchError(err))
	assert.False(t, IsDuplicateStableIDError(err))
	assert.False(t, IsSnapshotFetchError(errors.New("other")))
}

func TestNewDuplicateStableIDError(t *testing.T) {
	err := NewDuplicateStableIDError(map[string][]int{"b": {2, 4}, "a": {1, 3}})

	assert.Equal(t, ErrCodeDuplicateStableID, err.Code)
	assert.Equal(t, `DUPLICATE_STABLE_ID: snapshot claims stable id more than once: "a" at ordinals 1,3; "b" at ordinals 2,4`, err.Error())
	assert.Equal(t, map[string]string{"a": "1,3", "b": "2,4"}, err.Details)
}

func TestIsDuplicateStableIDError_StoreError(t *testing.T) {
	err := fmt.Errorf("reconcile run x: %w", &store.DuplicateStableIDError{StableID: "a", Ordinals: []int{1, 2}})

	assert.True(t, IsDuplicateStableIDError(err))
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("run-a", "run-b")

	assert.Equal(t, "run-a", gen.Generate())
	assert.Equal(t, "run-b", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	gen := UUIDv7Generator{}
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := gen.Generate()
		assert.False(t, seen[id])
		seen[id] = true
	}
}
