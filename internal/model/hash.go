package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed fingerprints.
// The version suffix allows the algorithm to change without collisions.
const (
	DomainSnapshot = "rosterbridge/snapshot/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotHash fingerprints the ordinal assignment of a roster snapshot.
//
// Two snapshots hash equal exactly when they assign the same ordinals to the
// same stable IDs with the same display names, so an unchanged roster yields
// the same hash on every run. Attributes are excluded: they only matter
// through the ordering they produce.
func SnapshotHash(snapshot []OrdinalEmployee) (string, error) {
	rows := make([]any, len(snapshot))
	for i, e := range snapshot {
		rows[i] = map[string]any{
			"ordinal":      e.Ordinal,
			"stable_id":    e.StableID,
			"display_name": e.DisplayName,
		}
	}
	canonical, err := MarshalCanonical(rows)
	if err != nil {
		return "", fmt.Errorf("SnapshotHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}
