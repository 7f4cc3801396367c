package queue

import "time"

// Clock supplies the current time for lease deadlines and claim predicates.
// Producers and consumers of a queue must agree on it; every stored deadline is
// compared against Now of the queue performing the operation.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock. Times are truncated to milliseconds so
// they survive a round trip through stores with millisecond precision.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }
