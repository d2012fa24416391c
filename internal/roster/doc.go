// Package roster reads the live employee roster and turns it into an
// ordinal-indexed snapshot.
//
// A Reader returns employees in source order. Assign applies an Ordering and
// numbers the result 1..n; the ordinal of an employee is only meaningful
// within the snapshot it was assigned in.
package roster
