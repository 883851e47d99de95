package shared

import "time"

// Clock is the time source used for attempt timestamps and retry
// scheduling. Production code uses the system clock; tests substitute an
// advanceable implementation so that retry windows can be crossed
// deterministically instead of sleeping.
type Clock interface {
	// Now returns the current time in UTC
	Now() time.Time
}

// ClockFunc adapts a plain function to the Clock interface
type ClockFunc func() time.Time

// Now returns the current time
func (f ClockFunc) Now() time.Time {
	return f()
}
