// Package model defines the records shared by the rosterbridge components.
//
// The model separates two kinds of employee identity:
//
//   - StableID: issued by the roster source, immutable, globally unique.
//   - Ordinal: the 1-based row position of an employee in a sorted roster
//     snapshot. Ordinals are recomputed on every snapshot and are a
//     projection, never an identity.
//
// MappingEntry records which stable ID an ordinal meant during an interval
// of time. Entries move from StateMapped to StateStale exactly once and are
// never deleted, so the full history of every ordinal is available for
// re-attributing annotations that were written against an old ordinal.
//
// Canonical JSON (canonical.go) and the snapshot fingerprint (hash.go) give
// reconciliation runs a deterministic, replay-stable audit trail.
package model
