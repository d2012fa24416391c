package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/rosterbridge/internal/model"
)

// Tx is a write transaction against the identity mapping.
//
// Every entry created or superseded inside a Tx is stamped with the same
// run ID and timestamp, so a reconciliation run is a single point in the
// mapping's history.
type Tx struct {
	tx    *sql.Tx
	runID string
	now   time.Time

	// claimed tracks stable id -> ordinal for DuplicateStableIDError.
	claimed map[string]int
}

// Update runs fn inside a single transaction. If fn returns an error, or the
// commit fails, nothing fn wrote is persisted.
//
// runID identifies the ReconciliationRun the writes belong to; the run row
// itself must be appended with Tx.AppendRun before fn returns (the foreign
// key is checked at commit).
func (s *Store) Update(ctx context.Context, runID string, now time.Time, fn func(*Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update: begin tx: %w", err)
	}
	defer sqlTx.Rollback() // No-op if committed

	tx := &Tx{
		tx:      sqlTx,
		runID:   runID,
		now:     now.UTC(),
		claimed: make(map[string]int),
	}
	if err := fn(tx); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("update: commit: %w", err)
	}
	return nil
}

// RunID returns the run the transaction writes on behalf of.
func (t *Tx) RunID() string { return t.runID }

// Now returns the transaction timestamp.
func (t *Tx) Now() time.Time { return t.now }

// UpsertMapping records that ordinal currently means stableID.
//
//   - Same stable ID already current at the ordinal: the entry is refreshed
//     (last_verified_at, display_name) without a state change.
//   - A different stable ID current at the ordinal: that entry becomes stale.
//   - The stable ID current at another ordinal: that entry becomes stale.
//
// In the last two cases a new mapped entry is inserted.
//
// Returns DuplicateStableIDError if a different ordinal already claimed
// stableID earlier in this transaction.
func (t *Tx) UpsertMapping(ctx context.Context, ordinal int, stableID, displayName string) (model.MappingEntry, error) {
	if ordinal < 1 {
		return model.MappingEntry{}, fmt.Errorf("upsert mapping: invalid ordinal %d", ordinal)
	}
	if stableID == "" {
		return model.MappingEntry{}, fmt.Errorf("upsert mapping: empty stable id at ordinal %d", ordinal)
	}
	if err := t.claim(ordinal, stableID); err != nil {
		return model.MappingEntry{}, err
	}

	current, err := lookupCurrentByOrdinal(ctx, t.tx, ordinal)
	switch {
	case err == nil && current.StableID == stableID:
		if _, err := t.tx.ExecContext(ctx, `
			UPDATE mappings SET last_verified_at = ?, display_name = ?
			WHERE id = ?
		`, toNanos(t.now), displayName, current.ID); err != nil {
			return model.MappingEntry{}, fmt.Errorf("upsert mapping: refresh: %w", err)
		}
		current.LastVerifiedAt = t.now
		current.DisplayName = displayName
		return current, nil
	case err == nil:
		if err := t.supersede(ctx, current.ID); err != nil {
			return model.MappingEntry{}, fmt.Errorf("upsert mapping: %w", err)
		}
	case !errors.Is(err, ErrNotFound):
		return model.MappingEntry{}, fmt.Errorf("upsert mapping: %w", err)
	}

	elsewhere, err := lookupCurrentByStableID(ctx, t.tx, stableID)
	switch {
	case err == nil:
		if err := t.supersede(ctx, elsewhere.ID); err != nil {
			return model.MappingEntry{}, fmt.Errorf("upsert mapping: %w", err)
		}
	case !errors.Is(err, ErrNotFound):
		return model.MappingEntry{}, fmt.Errorf("upsert mapping: %w", err)
	}

	entry, err := t.insert(ctx, ordinal, stableID, displayName)
	if err != nil {
		return model.MappingEntry{}, fmt.Errorf("upsert mapping: %w", err)
	}
	return entry, nil
}

// RetireMissing marks every current entry whose stable ID is not in present
// as stale. Returns the retired entries in ordinal order.
func (t *Tx) RetireMissing(ctx context.Context, present map[string]bool) ([]model.MappingEntry, error) {
	current, err := readCurrentMappings(ctx, t.tx)
	if err != nil {
		return nil, fmt.Errorf("retire missing: %w", err)
	}

	retired := []model.MappingEntry{}
	for _, e := range current {
		if present[e.StableID] {
			continue
		}
		if err := t.supersede(ctx, e.ID); err != nil {
			return nil, fmt.Errorf("retire missing: %w", err)
		}
		superseded := t.now
		e.State = model.StateStale
		e.SupersededAt = &superseded
		retired = append(retired, e)
	}
	return retired, nil
}

// RebuildAll marks every current entry stale and installs entries as the new
// mapping. Used when the stored mapping is globally untrustworthy.
func (t *Tx) RebuildAll(ctx context.Context, entries []model.OrdinalEmployee) ([]model.MappingEntry, error) {
	if _, err := t.tx.ExecContext(ctx, `
		UPDATE mappings SET state = 'stale', superseded_at = ?
		WHERE state = 'mapped'
	`, toNanos(t.now)); err != nil {
		return nil, fmt.Errorf("rebuild all: retire current: %w", err)
	}

	inserted := make([]model.MappingEntry, 0, len(entries))
	for _, e := range entries {
		if e.Ordinal < 1 || e.StableID == "" {
			return nil, fmt.Errorf("rebuild all: invalid entry (ordinal=%d, stable_id=%q)", e.Ordinal, e.StableID)
		}
		if err := t.claim(e.Ordinal, e.StableID); err != nil {
			return nil, err
		}
		entry, err := t.insert(ctx, e.Ordinal, e.StableID, e.DisplayName)
		if err != nil {
			return nil, fmt.Errorf("rebuild all: %w", err)
		}
		inserted = append(inserted, entry)
	}
	return inserted, nil
}

// CurrentMappings returns the non-stale entries as seen inside the transaction.
func (t *Tx) CurrentMappings(ctx context.Context) ([]model.MappingEntry, error) {
	return readCurrentMappings(ctx, t.tx)
}

// AppendRun appends the audit record for the transaction's run.
func (t *Tx) AppendRun(ctx context.Context, run model.ReconciliationRun) error {
	if run.ID != t.runID {
		return fmt.Errorf("append run: run id %q does not match transaction run %q", run.ID, t.runID)
	}
	return appendRun(ctx, t.tx, run)
}

// RebuildAll atomically replaces the current mapping with entries and
// appends run. run.ID and run.Timestamp stamp the new entries.
func (s *Store) RebuildAll(ctx context.Context, run model.ReconciliationRun, entries []model.OrdinalEmployee) ([]model.MappingEntry, error) {
	var inserted []model.MappingEntry
	err := s.Update(ctx, run.ID, run.Timestamp, func(tx *Tx) error {
		var err error
		inserted, err = tx.RebuildAll(ctx, entries)
		if err != nil {
			return err
		}
		return tx.AppendRun(ctx, run)
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

func (t *Tx) claim(ordinal int, stableID string) error {
	if prev, ok := t.claimed[stableID]; ok && prev != ordinal {
		return &DuplicateStableIDError{StableID: stableID, Ordinals: []int{prev, ordinal}}
	}
	t.claimed[stableID] = ordinal
	return nil
}

func (t *Tx) supersede(ctx context.Context, id int64) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE mappings SET state = 'stale', superseded_at = ?
		WHERE id = ? AND state = 'mapped'
	`, toNanos(t.now), id)
	if err != nil {
		return fmt.Errorf("supersede mapping %d: %w", id, err)
	}
	return nil
}

func (t *Tx) insert(ctx context.Context, ordinal int, stableID, displayName string) (model.MappingEntry, error) {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO mappings
		(ordinal, stable_id, display_name, state, created_at, last_verified_at, superseded_at, run_id)
		VALUES (?, ?, ?, 'mapped', ?, ?, NULL, ?)
	`, ordinal, stableID, displayName, toNanos(t.now), toNanos(t.now), t.runID)
	if err != nil {
		return model.MappingEntry{}, fmt.Errorf("insert mapping: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return model.MappingEntry{}, fmt.Errorf("insert mapping: last insert id: %w", err)
	}
	return model.MappingEntry{
		ID:             id,
		Ordinal:        ordinal,
		StableID:       stableID,
		DisplayName:    displayName,
		State:          model.StateMapped,
		CreatedAt:      t.now,
		LastVerifiedAt: t.now,
		RunID:          t.runID,
	}, nil
}
