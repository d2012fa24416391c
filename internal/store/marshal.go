package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/rosterbridge/internal/model"
)

// toNanos converts a time to the stored INTEGER representation.
func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

// fromNanos converts a stored INTEGER timestamp back to a UTC time.
func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// nullNanos converts an optional time to a nullable column value.
func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}

// timePtr converts a nullable column value to an optional time.
func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

// nullString converts an optional string to a nullable column value.
func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// stringPtr converts a nullable column value to an optional string.
func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}

// marshalStrings converts a stable ID list to canonical JSON TEXT.
func marshalStrings(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := model.MarshalCanonical(ids)
	if err != nil {
		return "", fmt.Errorf("marshal ids: %w", err)
	}
	return string(data), nil
}

// marshalMoves converts a move sample to canonical JSON TEXT.
func marshalMoves(moves []model.Move) (string, error) {
	arr := make([]any, len(moves))
	for i, m := range moves {
		arr[i] = map[string]any{
			"stable_id": m.StableID,
			"from":      m.FromOrdinal,
			"to":        m.ToOrdinal,
		}
	}
	data, err := model.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal moves: %w", err)
	}
	return string(data), nil
}

// unmarshalStrings parses a stable ID list; empty input yields an empty slice.
func unmarshalStrings(data string) ([]string, error) {
	ids := []string{}
	if data == "" {
		return ids, nil
	}
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, fmt.Errorf("unmarshal ids: %w", err)
	}
	return ids, nil
}

// unmarshalMoves parses a move sample; empty input yields an empty slice.
func unmarshalMoves(data string) ([]model.Move, error) {
	moves := []model.Move{}
	if data == "" {
		return moves, nil
	}
	if err := json.Unmarshal([]byte(data), &moves); err != nil {
		return nil, fmt.Errorf("unmarshal moves: %w", err)
	}
	return moves, nil
}
