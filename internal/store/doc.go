// Package store provides SQLite-backed durable storage for the identity
// mapping, the annotation table adapter, and the audit logs.
//
// Tables:
//   - mappings: ordinal -> stable ID entries, never deleted (state mapped|stale)
//   - reconciliation_runs: append-only log, one row per reconcile or rebuild
//   - annotations: external comments plus the resolver-owned columns
//   - resolution_log: one row per resolution change
//   - verification_checkpoints: cursor for "moved since last verified run"
//
// # Critical Patterns
//
// Single transaction per run:
//   - Store.Update wraps a whole reconciliation in one transaction. Any
//     error, including DuplicateStableIDError, rolls back every write.
//
// Current-entry uniqueness:
//   - Partial UNIQUE indexes on mappings(ordinal) and mappings(stable_id)
//     WHERE state = 'mapped' back the in-code checks.
//
// Deterministic query results:
//   - History queries order by created_at, id; annotation queries by
//     created_at, id COLLATE BINARY.
//
// Forensics:
//   - annotations.target_ordinal is protected by a trigger and can never be
//     rewritten once stored.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
