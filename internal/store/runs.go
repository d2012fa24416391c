package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/rosterbridge/internal/model"
)

const runColumns = `id, kind, ts, snapshot_size, snapshot_hash, added_count, removed_count, moved_count, added, removed, moved_sample, reason`

func appendRun(ctx context.Context, q querier, run model.ReconciliationRun) error {
	added, err := marshalStrings(run.Added)
	if err != nil {
		return fmt.Errorf("append run: %w", err)
	}
	removed, err := marshalStrings(run.Removed)
	if err != nil {
		return fmt.Errorf("append run: %w", err)
	}
	moved, err := marshalMoves(run.MovedSample)
	if err != nil {
		return fmt.Errorf("append run: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO reconciliation_runs
		(id, kind, ts, snapshot_size, snapshot_hash, added_count, removed_count, moved_count, added, removed, moved_sample, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		string(run.Kind),
		toNanos(run.Timestamp),
		run.SnapshotSize,
		run.SnapshotHash,
		run.AddedCount,
		run.RemovedCount,
		run.MovedCount,
		added,
		removed,
		moved,
		run.Reason,
	)
	if err != nil {
		return fmt.Errorf("append run: %w", err)
	}
	return nil
}

// GetRun returns a run by ID, or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (model.ReconciliationRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM reconciliation_runs
		WHERE id = ?
	`, id)
	run, err := scanRunFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ReconciliationRun{}, ErrNotFound
	}
	if err != nil {
		return model.ReconciliationRun{}, fmt.Errorf("get run %q: %w", id, err)
	}
	return run, nil
}

// LastRun returns the most recent run, or ErrNotFound if none exist.
func (s *Store) LastRun(ctx context.Context) (model.ReconciliationRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM reconciliation_runs
		ORDER BY seq DESC
		LIMIT 1
	`)
	run, err := scanRunFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ReconciliationRun{}, ErrNotFound
	}
	if err != nil {
		return model.ReconciliationRun{}, fmt.Errorf("last run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]model.ReconciliationRun, error) {
	query := `SELECT ` + runColumns + ` FROM reconciliation_runs ORDER BY seq DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryRuns(ctx, query, args...)
}

// RunsSince returns the runs appended after the run with the given ID, oldest
// first. An empty runID returns every run.
func (s *Store) RunsSince(ctx context.Context, runID string) ([]model.ReconciliationRun, error) {
	if runID == "" {
		return s.queryRuns(ctx, `SELECT `+runColumns+` FROM reconciliation_runs ORDER BY seq ASC`)
	}
	return s.queryRuns(ctx, `
		SELECT `+runColumns+`
		FROM reconciliation_runs
		WHERE seq > (SELECT seq FROM reconciliation_runs WHERE id = ?)
		ORDER BY seq ASC
	`, runID)
}

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]model.ReconciliationRun, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []model.ReconciliationRun{}
	for rows.Next() {
		run, err := scanRunFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func scanRunFrom(r rowScanner) (model.ReconciliationRun, error) {
	var (
		run                   model.ReconciliationRun
		kind                  string
		ts                    int64
		added, removed, moved string
	)
	if err := r.Scan(
		&run.ID, &kind, &ts, &run.SnapshotSize, &run.SnapshotHash,
		&run.AddedCount, &run.RemovedCount, &run.MovedCount,
		&added, &removed, &moved, &run.Reason,
	); err != nil {
		return model.ReconciliationRun{}, err
	}
	run.Kind = model.RunKind(kind)
	run.Timestamp = fromNanos(ts)

	var err error
	if run.Added, err = unmarshalStrings(added); err != nil {
		return model.ReconciliationRun{}, err
	}
	if run.Removed, err = unmarshalStrings(removed); err != nil {
		return model.ReconciliationRun{}, err
	}
	if run.MovedSample, err = unmarshalMoves(moved); err != nil {
		return model.ReconciliationRun{}, err
	}
	return run, nil
}
