// Package verify audits the mapping and annotation stores and reports
// structural problems without changing anything.
//
// A report lists unresolved annotations, how many mappings moved since the
// last checkpoint, duplicate current entries, annotations resolved to
// people no longer on the roster, annotations whose ordinal was never
// mapped, and a mismatch between the current mapping and the last run's
// snapshot size. Duplicate current entries are fatal: the fix is an
// operator-triggered rebuild, never an automatic correction.
package verify
