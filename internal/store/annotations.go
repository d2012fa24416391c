package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/rosterbridge/internal/model"
)

const annotationColumnList = `id, content, sender, created_at, target_ordinal, resolved_stable_id, attribution_confidence, resolved_at, resolution_tier`

// AnnotationFilter narrows ListAnnotations. Zero values match everything.
type AnnotationFilter struct {
	IDs         []string
	Sender      string
	Confidences []model.Confidence
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
}

// ResolutionAudit describes who changed a resolution and why.
type ResolutionAudit struct {
	PassID  string
	Tier    model.Tier
	Matcher string
	At      time.Time
}

// InsertAnnotation stores an annotation as the external writer would.
// Uses ON CONFLICT(id) DO NOTHING - duplicate IDs are silently ignored.
// Resolver-owned fields on a are ignored.
func (s *Store) InsertAnnotation(ctx context.Context, a model.Annotation) error {
	if a.ID == "" {
		return fmt.Errorf("insert annotation: empty id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO annotations (id, content, sender, created_at, target_ordinal)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, a.ID, a.Content, a.Sender, toNanos(a.CreatedAt), a.TargetOrdinal)
	if err != nil {
		return fmt.Errorf("insert annotation: %w", err)
	}
	return nil
}

// GetAnnotation returns a single annotation or ErrNotFound.
func (s *Store) GetAnnotation(ctx context.Context, id string) (model.Annotation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+annotationColumnList+`
		FROM annotations
		WHERE id = ?
	`, id)
	a, err := scanAnnotationFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Annotation{}, ErrNotFound
	}
	if err != nil {
		return model.Annotation{}, fmt.Errorf("get annotation %q: %w", id, err)
	}
	return a, nil
}

// ListAnnotations returns the annotations matching filter ordered by
// created_at ASC, id ASC COLLATE BINARY. Returns an empty slice if none match.
func (s *Store) ListAnnotations(ctx context.Context, filter AnnotationFilter) ([]model.Annotation, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(filter.IDs))+")")
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}
	if filter.Sender != "" {
		where = append(where, "sender = ?")
		args = append(args, filter.Sender)
	}
	if len(filter.Confidences) > 0 {
		where = append(where, "attribution_confidence IN ("+placeholders(len(filter.Confidences))+")")
		for _, c := range filter.Confidences {
			args = append(args, string(c))
		}
	}
	if filter.CreatedFrom != nil {
		where = append(where, "created_at >= ?")
		args = append(args, toNanos(*filter.CreatedFrom))
	}
	if filter.CreatedTo != nil {
		where = append(where, "created_at < ?")
		args = append(args, toNanos(*filter.CreatedTo))
	}

	query := `SELECT ` + annotationColumnList + ` FROM annotations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at ASC, id COLLATE BINARY ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer rows.Close()

	annotations := []model.Annotation{}
	for rows.Next() {
		a, err := scanAnnotationFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		annotations = append(annotations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate annotations: %w", err)
	}
	return annotations, nil
}

// SetResolution records the resolver's verdict for an annotation and appends
// a resolution_log row in the same transaction.
//
// stableID must be nil exactly when confidence is unresolved (or none).
// target_ordinal is never touched.
func (s *Store) SetResolution(ctx context.Context, id string, stableID *string, confidence model.Confidence, audit ResolutionAudit) error {
	if confidence.Resolved() != (stableID != nil) {
		return fmt.Errorf("set resolution %q: confidence %q inconsistent with stable id %v", id, confidence, stableID != nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set resolution: begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		prevID         sql.NullString
		prevConfidence string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT resolved_stable_id, attribution_confidence FROM annotations WHERE id = ?
	`, id).Scan(&prevID, &prevConfidence)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("set resolution %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("set resolution %q: read previous: %w", id, err)
	}

	at := audit.At.UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE annotations
		SET resolved_stable_id = ?, attribution_confidence = ?, resolved_at = ?, resolution_tier = ?
		WHERE id = ?
	`, nullString(stableID), string(confidence), toNanos(at), string(audit.Tier), id); err != nil {
		return fmt.Errorf("set resolution %q: update: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO resolution_log
		(annotation_id, pass_id, previous_stable_id, previous_confidence, new_stable_id, new_confidence, tier, matcher, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, audit.PassID, prevID, prevConfidence, nullString(stableID), string(confidence),
		string(audit.Tier), audit.Matcher, toNanos(at)); err != nil {
		return fmt.Errorf("set resolution %q: audit: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set resolution %q: commit: %w", id, err)
	}
	return nil
}

// ResolutionLog returns the audit trail for one annotation, oldest first.
func (s *Store) ResolutionLog(ctx context.Context, annotationID string) ([]model.ResolutionLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, annotation_id, pass_id, previous_stable_id, previous_confidence,
		       new_stable_id, new_confidence, tier, matcher, at
		FROM resolution_log
		WHERE annotation_id = ?
		ORDER BY id ASC
	`, annotationID)
	if err != nil {
		return nil, fmt.Errorf("resolution log: %w", err)
	}
	defer rows.Close()

	entries := []model.ResolutionLogEntry{}
	for rows.Next() {
		var (
			e                       model.ResolutionLogEntry
			prevID, newID           sql.NullString
			prevConf, newConf, tier string
			at                      int64
		)
		if err := rows.Scan(&e.ID, &e.AnnotationID, &e.PassID, &prevID, &prevConf,
			&newID, &newConf, &tier, &e.Matcher, &at); err != nil {
			return nil, fmt.Errorf("scan resolution log: %w", err)
		}
		e.PreviousStableID = stringPtr(prevID)
		e.NewStableID = stringPtr(newID)
		e.PreviousConfidence = model.Confidence(prevConf)
		e.NewConfidence = model.Confidence(newConf)
		e.Tier = model.Tier(tier)
		e.At = fromNanos(at)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resolution log: %w", err)
	}
	return entries, nil
}

func scanAnnotationFrom(r rowScanner) (model.Annotation, error) {
	var (
		a          model.Annotation
		createdAt  int64
		resolvedID sql.NullString
		confidence string
		resolvedAt sql.NullInt64
		tier       string
	)
	if err := r.Scan(&a.ID, &a.Content, &a.Sender, &createdAt, &a.TargetOrdinal,
		&resolvedID, &confidence, &resolvedAt, &tier); err != nil {
		return model.Annotation{}, err
	}
	c, err := model.ParseConfidence(confidence)
	if err != nil {
		return model.Annotation{}, fmt.Errorf("annotation %q: %w", a.ID, err)
	}
	a.CreatedAt = fromNanos(createdAt)
	a.ResolvedStableID = stringPtr(resolvedID)
	a.Confidence = c
	a.ResolvedAt = timePtr(resolvedAt)
	a.Tier = model.Tier(tier)
	return a, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
