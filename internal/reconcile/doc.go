// Package reconcile keeps the identity mapping in step with the live roster.
//
// A reconciliation run fetches the roster, assigns ordinals, diffs the result
// against the current mapping and applies the changes in one store
// transaction together with the run's audit record. Either the whole new
// mapping is installed or the previous one is left untouched.
//
// Two kinds of run exist:
//
//   - Reconcile: incremental. Unchanged positions are refreshed in place,
//     moved and removed employees supersede their old entries.
//   - Rebuild: operator-triggered. Every current entry is superseded and the
//     snapshot is installed fresh, which resets exact-tier trust for all
//     annotations written before the rebuild.
//
// The engine is single-writer and run-to-completion. Concurrent runs against
// the same database are serialized by SQLite.
package reconcile
