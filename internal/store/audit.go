package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/rosterbridge/internal/model"
)

// DuplicateGroup lists the current entries sharing one key. For a stable ID
// duplicate Key is the stable ID and Ordinals the conflicting ordinals; for
// an ordinal duplicate Key is the ordinal and StableIDs the claimants.
type DuplicateGroup struct {
	Key       string
	Ordinals  []int
	StableIDs []string
}

// CurrentStableIDDuplicates finds stable IDs with more than one non-stale
// entry. The partial unique index makes this impossible through Store
// methods; it catches databases patched by hand.
func (s *Store) CurrentStableIDDuplicates(ctx context.Context) ([]DuplicateGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stable_id, ordinal FROM mappings
		WHERE state = 'mapped' AND stable_id IN (
			SELECT stable_id FROM mappings WHERE state = 'mapped'
			GROUP BY stable_id HAVING COUNT(*) > 1
		)
		ORDER BY stable_id COLLATE BINARY ASC, ordinal ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("stable id duplicates: %w", err)
	}
	defer rows.Close()

	groups := []DuplicateGroup{}
	for rows.Next() {
		var (
			id      string
			ordinal int
		)
		if err := rows.Scan(&id, &ordinal); err != nil {
			return nil, fmt.Errorf("scan stable id duplicate: %w", err)
		}
		if n := len(groups); n == 0 || groups[n-1].Key != id {
			groups = append(groups, DuplicateGroup{Key: id})
		}
		g := &groups[len(groups)-1]
		g.Ordinals = append(g.Ordinals, ordinal)
		g.StableIDs = append(g.StableIDs, id)
	}
	return groups, rows.Err()
}

// CurrentOrdinalDuplicates finds ordinals with more than one non-stale entry.
func (s *Store) CurrentOrdinalDuplicates(ctx context.Context) ([]DuplicateGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ordinal, stable_id FROM mappings
		WHERE state = 'mapped' AND ordinal IN (
			SELECT ordinal FROM mappings WHERE state = 'mapped'
			GROUP BY ordinal HAVING COUNT(*) > 1
		)
		ORDER BY ordinal ASC, stable_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("ordinal duplicates: %w", err)
	}
	defer rows.Close()

	groups := []DuplicateGroup{}
	for rows.Next() {
		var (
			ordinal int
			id      string
		)
		if err := rows.Scan(&ordinal, &id); err != nil {
			return nil, fmt.Errorf("scan ordinal duplicate: %w", err)
		}
		key := fmt.Sprintf("%d", ordinal)
		if n := len(groups); n == 0 || groups[n-1].Key != key {
			groups = append(groups, DuplicateGroup{Key: key})
		}
		g := &groups[len(groups)-1]
		g.Ordinals = append(g.Ordinals, ordinal)
		g.StableIDs = append(g.StableIDs, id)
	}
	return groups, rows.Err()
}

// DanglingAnnotations returns resolved annotations whose stable ID has no
// current mapping entry, i.e. it vanished from the latest roster snapshot.
func (s *Store) DanglingAnnotations(ctx context.Context) ([]model.Annotation, error) {
	return s.queryAnnotations(ctx, `
		SELECT `+annotationColumnList+`
		FROM annotations a
		WHERE a.resolved_stable_id IS NOT NULL
		  AND NOT EXISTS (
			SELECT 1 FROM mappings m
			WHERE m.stable_id = a.resolved_stable_id AND m.state = 'mapped'
		  )
		ORDER BY a.created_at ASC, a.id COLLATE BINARY ASC
	`)
}

// OrphanedAnnotations returns annotations whose target ordinal never
// appeared in any mapping entry.
func (s *Store) OrphanedAnnotations(ctx context.Context) ([]model.Annotation, error) {
	return s.queryAnnotations(ctx, `
		SELECT `+annotationColumnList+`
		FROM annotations a
		WHERE NOT EXISTS (
			SELECT 1 FROM mappings m WHERE m.ordinal = a.target_ordinal
		)
		ORDER BY a.created_at ASC, a.id COLLATE BINARY ASC
	`)
}

// CountAnnotationsByConfidence counts annotations per attribution confidence.
func (s *Store) CountAnnotationsByConfidence(ctx context.Context) (map[model.Confidence]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT attribution_confidence, COUNT(*) FROM annotations
		GROUP BY attribution_confidence
	`)
	if err != nil {
		return nil, fmt.Errorf("count annotations: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Confidence]int)
	for rows.Next() {
		var (
			c string
			n int
		)
		if err := rows.Scan(&c, &n); err != nil {
			return nil, fmt.Errorf("scan annotation count: %w", err)
		}
		counts[model.Confidence(c)] = n
	}
	return counts, rows.Err()
}

// CountCurrentMappings returns the number of non-stale entries.
func (s *Store) CountCurrentMappings(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM mappings WHERE state = 'mapped'
	`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count current mappings: %w", err)
	}
	return n, nil
}

func (s *Store) queryAnnotations(ctx context.Context, query string, args ...any) ([]model.Annotation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query annotations: %w", err)
	}
	defer rows.Close()

	out := []model.Annotation{}
	for rows.Next() {
		a, err := scanAnnotationFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate annotations: %w", err)
	}
	return out, nil
}

// Checkpoint marks the point up to which an operator reviewed a verifier
// report. "Moved since the last verified run" counts runs after LastRunID.
type Checkpoint struct {
	ID        string
	At        time.Time
	LastRunID string
	Report    string
}

// AppendCheckpoint records a verification checkpoint.
func (s *Store) AppendCheckpoint(ctx context.Context, cp Checkpoint) error {
	if cp.ID == "" {
		return fmt.Errorf("append checkpoint: empty id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_checkpoints (id, at, last_run_id, report)
		VALUES (?, ?, ?, ?)
	`, cp.ID, toNanos(cp.At), cp.LastRunID, cp.Report)
	if err != nil {
		return fmt.Errorf("append checkpoint: %w", err)
	}
	return nil
}

// LastCheckpoint returns the newest checkpoint or ErrNotFound.
func (s *Store) LastCheckpoint(ctx context.Context) (Checkpoint, error) {
	var (
		cp Checkpoint
		at int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, at, last_run_id, report FROM verification_checkpoints
		ORDER BY seq DESC LIMIT 1
	`).Scan(&cp.ID, &at, &cp.LastRunID, &cp.Report)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("last checkpoint: %w", err)
	}
	cp.At = fromNanos(at)
	return cp, nil
}
