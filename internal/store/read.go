package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/rosterbridge/internal/model"
)

const mappingColumns = `id, ordinal, stable_id, display_name, state, created_at, last_verified_at, superseded_at, run_id`

// LookupByOrdinal returns the current (non-stale) entry for an ordinal.
// Returns ErrNotFound if the ordinal is not currently mapped.
func (s *Store) LookupByOrdinal(ctx context.Context, ordinal int) (model.MappingEntry, error) {
	return lookupCurrentByOrdinal(ctx, s.db, ordinal)
}

// LookupByStableID returns the current (non-stale) entry for a stable ID.
// Returns ErrNotFound if the stable ID is not currently mapped.
func (s *Store) LookupByStableID(ctx context.Context, stableID string) (model.MappingEntry, error) {
	return lookupCurrentByStableID(ctx, s.db, stableID)
}

// History returns every entry, stale and current, for a stable ID.
// Ordered by created_at ASC, id ASC. Returns an empty slice if none exist.
func (s *Store) History(ctx context.Context, stableID string) ([]model.MappingEntry, error) {
	return queryMappings(ctx, s.db, `
		SELECT `+mappingColumns+`
		FROM mappings
		WHERE stable_id = ?
		ORDER BY created_at ASC, id ASC
	`, stableID)
}

// OrdinalHistory returns every entry, stale and current, that ever held an
// ordinal. Ordered by created_at ASC, id ASC.
func (s *Store) OrdinalHistory(ctx context.Context, ordinal int) ([]model.MappingEntry, error) {
	return queryMappings(ctx, s.db, `
		SELECT `+mappingColumns+`
		FROM mappings
		WHERE ordinal = ?
		ORDER BY created_at ASC, id ASC
	`, ordinal)
}

// AllMappings returns the complete mapping history ordered by id.
// Used to take frozen snapshots for the resolver.
func (s *Store) AllMappings(ctx context.Context) ([]model.MappingEntry, error) {
	return queryMappings(ctx, s.db, `
		SELECT `+mappingColumns+`
		FROM mappings
		ORDER BY id ASC
	`)
}

// CurrentMappings returns the non-stale entries ordered by ordinal.
func (s *Store) CurrentMappings(ctx context.Context) ([]model.MappingEntry, error) {
	return readCurrentMappings(ctx, s.db)
}

func readCurrentMappings(ctx context.Context, q querier) ([]model.MappingEntry, error) {
	return queryMappings(ctx, q, `
		SELECT `+mappingColumns+`
		FROM mappings
		WHERE state = 'mapped'
		ORDER BY ordinal ASC, id ASC
	`)
}

func lookupCurrentByOrdinal(ctx context.Context, q querier, ordinal int) (model.MappingEntry, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+mappingColumns+`
		FROM mappings
		WHERE ordinal = ? AND state = 'mapped'
		ORDER BY id DESC
		LIMIT 1
	`, ordinal)
	entry, err := scanMappingRow(row)
	if err != nil {
		return model.MappingEntry{}, fmt.Errorf("lookup ordinal %d: %w", ordinal, err)
	}
	return entry, nil
}

func lookupCurrentByStableID(ctx context.Context, q querier, stableID string) (model.MappingEntry, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+mappingColumns+`
		FROM mappings
		WHERE stable_id = ? AND state = 'mapped'
		ORDER BY id DESC
		LIMIT 1
	`, stableID)
	entry, err := scanMappingRow(row)
	if err != nil {
		return model.MappingEntry{}, fmt.Errorf("lookup stable id %q: %w", stableID, err)
	}
	return entry, nil
}

func queryMappings(ctx context.Context, q querier, query string, args ...any) ([]model.MappingEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query mappings: %w", err)
	}
	defer rows.Close()

	entries := []model.MappingEntry{}
	for rows.Next() {
		entry, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mappings: %w", err)
	}
	return entries, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMapping(rows *sql.Rows) (model.MappingEntry, error) {
	entry, err := scanMappingFrom(rows)
	if err != nil {
		return model.MappingEntry{}, fmt.Errorf("scan mapping: %w", err)
	}
	return entry, nil
}

func scanMappingRow(row *sql.Row) (model.MappingEntry, error) {
	entry, err := scanMappingFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.MappingEntry{}, ErrNotFound
	}
	if err != nil {
		return model.MappingEntry{}, fmt.Errorf("scan mapping: %w", err)
	}
	return entry, nil
}

func scanMappingFrom(r rowScanner) (model.MappingEntry, error) {
	var (
		e            model.MappingEntry
		state        string
		createdAt    int64
		verifiedAt   int64
		supersededAt sql.NullInt64
	)
	if err := r.Scan(
		&e.ID, &e.Ordinal, &e.StableID, &e.DisplayName, &state,
		&createdAt, &verifiedAt, &supersededAt, &e.RunID,
	); err != nil {
		return model.MappingEntry{}, err
	}
	e.State = model.MappingState(state)
	if !e.State.Valid() {
		return model.MappingEntry{}, fmt.Errorf("mapping %d has unknown state %q", e.ID, state)
	}
	e.CreatedAt = fromNanos(createdAt)
	e.LastVerifiedAt = fromNanos(verifiedAt)
	e.SupersededAt = timePtr(supersededAt)
	return e, nil
}
