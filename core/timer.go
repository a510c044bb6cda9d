package core

import "time"

// Control loop timing. The loop period is fixed at build time.
const (
	LoopFrequency = 500                     // control ticks per second
	TickPeriodUS  = 1000000 / LoopFrequency // microseconds between ticks
	TickPeriodMS  = 1000 / LoopFrequency

	// LoopInterval is the tick period in seconds
	LoopInterval float32 = 1.0 / LoopFrequency
)

// Clock is the microsecond time base the scheduler runs on.
// Now wraps at 2^32 us (about 71 minutes); comparisons must use timeBefore.
type Clock interface {
	// Now returns the current time in microseconds
	Now() uint32

	// Sleep blocks for roughly us microseconds
	Sleep(us uint32)
}

// SystemClock is a Clock backed by the monotonic runtime clock.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a clock whose zero is the moment of the call
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now returns microseconds since the clock was created
func (c *SystemClock) Now() uint32 {
	return uint32(time.Since(c.start).Microseconds())
}

// Sleep yields for us microseconds
func (c *SystemClock) Sleep(us uint32) {
	time.Sleep(time.Duration(us) * time.Microsecond)
}

// TicksToMS converts a number of control ticks to milliseconds
func TicksToMS(ticks uint32) uint32 {
	return ticks * TickPeriodMS
}

// MSToTicks converts milliseconds to control ticks, rounding up
func MSToTicks(ms uint32) uint32 {
	return (ms + TickPeriodMS - 1) / TickPeriodMS
}

// timeBefore reports whether a is earlier than b on the wrapping clock
func timeBefore(a, b uint32) bool {
	return int32(a-b) < 0
}
