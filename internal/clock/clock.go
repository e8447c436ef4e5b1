// Package clock supplies wall-clock time to components that stamp rows.
//
// Ledger transitions, record updates and merge snapshots all read time
// through a Clock so tests can substitute a deterministic one
// (see internal/testutil.FakeClock).
package clock

import "time"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// System is the production clock.
type System struct{}

// Now returns time.Now truncated to microseconds, the precision the store
// persists timestamps at.
func (System) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// OrSystem returns c, or System when c is nil.
func OrSystem(c Clock) Clock {
	if c == nil {
		return System{}
	}
	return c
}
