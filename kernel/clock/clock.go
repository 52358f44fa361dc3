// Package clock provides the monotonic kernel clock used for timeouts.
package clock

import "time"

// Instant is an opaque monotonic clock reading.
type Instant struct {
	t time.Time
}

// Elapsed is the difference between two instants split into whole seconds
// and the remaining milliseconds.
type Elapsed struct {
	Seconds uint64
	Millis  uint32
}

// Duration converts e to a time.Duration.
func (e Elapsed) Duration() time.Duration {
	return time.Duration(e.Seconds)*time.Second + time.Duration(e.Millis)*time.Millisecond
}

var (
	// clockReadFn is mocked by tests.
	clockReadFn = time.Now
)

// Read returns the current value of the monotonic clock.
func Read() Instant {
	return Instant{t: clockReadFn()}
}

// Diff returns the time elapsed between start and end. If end precedes start
// the difference is zero.
func Diff(start, end Instant) Elapsed {
	d := end.t.Sub(start.t)
	if d < 0 {
		return Elapsed{}
	}

	return Elapsed{
		Seconds: uint64(d / time.Second),
		Millis:  uint32((d % time.Second) / time.Millisecond),
	}
}

// Since is shorthand for Diff(start, Read()).
func Since(start Instant) Elapsed {
	return Diff(start, Read())
}
