package fifo

import "time"

// Clock is the time source used to stamp and check expirations.
//
// Implementations must return times carrying a monotonic reading (as
// time.Now does) so that wall-clock adjustments do not move expirations.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }
