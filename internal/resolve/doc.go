// Package resolve attributes annotations to stable IDs.
//
// An annotation records the ordinal its author saw at write time. Because
// ordinals drift between roster snapshots, the ordinal alone is not trusted.
// Resolution is a strict precedence chain over a frozen Snapshot of the
// mapping history:
//
//  1. Exact: the current entry for the ordinal has been verified since the
//     annotation was written, and no earlier holder could have been meant.
//  2. Historical: exactly one entry for the ordinal, current or stale, was
//     valid when the annotation was written.
//  3. Content: a ranked pipeline of deterministic matchers narrows the
//     candidates to exactly one stable ID.
//
// A lower tier runs only when the tier above has no unique answer. Anything
// the content tier cannot narrow to one candidate is Unresolved and surfaced
// to operators; it is never guessed.
//
// A Pass resolves a batch of annotations in parallel against one snapshot
// and persists only the resolutions that changed, each with an audit row.
package resolve
