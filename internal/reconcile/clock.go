package reconcile

import "time"

// Clock supplies run timestamps.
//
// Every entry created, refreshed or superseded by one run carries the same
// timestamp, read once at the start of the transaction.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
