package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/rosterbridge/internal/model"
)

// createTestStore creates a new file-backed store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testTime returns a fixed UTC time offset by n minutes.
func testTime(n int) time.Time {
	return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Minute)
}

// testRun builds a minimal reconcile run record.
func testRun(id string, ts time.Time) model.ReconciliationRun {
	return model.ReconciliationRun{
		ID:           id,
		Kind:         model.RunReconcile,
		Timestamp:    ts,
		SnapshotHash: "test-hash",
	}
}

// applySnapshot upserts ids at ordinals 1..n, retires the rest and appends
// the run, the way a reconciliation does.
func applySnapshot(t *testing.T, s *Store, runID string, ts time.Time, ids ...string) {
	t.Helper()
	ctx := context.Background()
	err := s.Update(ctx, runID, ts, func(tx *Tx) error {
		present := make(map[string]bool, len(ids))
		for i, id := range ids {
			present[id] = true
			if _, err := tx.UpsertMapping(ctx, i+1, id, "Name "+id); err != nil {
				return err
			}
		}
		if _, err := tx.RetireMissing(ctx, present); err != nil {
			return err
		}
		run := testRun(runID, ts)
		run.SnapshotSize = len(ids)
		return tx.AppendRun(ctx, run)
	})
	if err != nil {
		t.Fatalf("applySnapshot(%s) failed: %v", runID, err)
	}
}

// insertTestAnnotation inserts an unresolved annotation.
func insertTestAnnotation(t *testing.T, s *Store, id, sender string, ordinal int, createdAt time.Time) {
	t.Helper()
	err := s.InsertAnnotation(context.Background(), model.Annotation{
		ID:            id,
		Content:       "note " + id,
		Sender:        sender,
		CreatedAt:     createdAt,
		TargetOrdinal: ordinal,
	})
	if err != nil {
		t.Fatalf("InsertAnnotation(%s) failed: %v", id, err)
	}
}

// insertRawRun inserts a run row directly, bypassing Store validation.
func insertRawRun(t *testing.T, s *Store, id string) {
	t.Helper()
	_, err := s.db.Exec(`
		INSERT INTO reconciliation_runs
		(id, kind, ts, snapshot_size, snapshot_hash, added_count, removed_count, moved_count, added, removed, moved_sample)
		VALUES (?, 'reconcile', 0, 0, '', 0, 0, 0, '[]', '[]', '[]')
	`, id)
	if err != nil {
		t.Fatalf("insert raw run %s: %v", id, err)
	}
}

// insertRawMapping inserts a mapping row directly. Current rows only.
func insertRawMapping(t *testing.T, s *Store, ordinal int, stableID, state, runID string) {
	t.Helper()
	_, err := s.db.Exec(`
		INSERT INTO mappings (ordinal, stable_id, display_name, state, created_at, last_verified_at, run_id)
		VALUES (?, ?, ?, ?, 0, 0, ?)
	`, ordinal, stableID, stableID, state, runID)
	if err != nil {
		t.Fatalf("insert raw mapping (%d, %s): %v", ordinal, stableID, err)
	}
}
