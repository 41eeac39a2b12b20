package stream

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Clock anchors all record timestamps to one run-relative monotonic
// timebase. Kernel tracing sources stamp events with CLOCK_MONOTONIC
// since boot; subtracting the run start lines them up with the
// timestamps collectors generate themselves.
type Clock struct {
	base int64
}

// NewClock captures the run start on the monotonic clock.
func NewClock() (*Clock, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return nil, errors.Wrap(err, "reading monotonic clock")
	}

	return &Clock{base: ts.Nano()}, nil
}

// Now returns nanoseconds elapsed since the run start.
func (c *Clock) Now() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}

	return ts.Nano() - c.base
}

// FromMonotonic converts an absolute CLOCK_MONOTONIC stamp in
// nanoseconds into the run-relative timebase.
func (c *Clock) FromMonotonic(ns int64) int64 {
	return ns - c.base
}

// FromMonotonicSeconds converts a boot-relative stamp expressed in
// seconds, the format perf and tracefs print, into run-relative
// nanoseconds.
func (c *Clock) FromMonotonicSeconds(sec float64) int64 {
	return int64(sec*1e9) - c.base
}
