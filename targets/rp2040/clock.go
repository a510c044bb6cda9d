//go:build rp2040

package main

import (
	"device/rp"
	"time"
)

// hwClock reads the RP2040 1MHz timer
type hwClock struct{}

// Now returns the low 32 bits of the microsecond counter
func (hwClock) Now() uint32 {
	return rp.TIMER.TIMERAWL.Get()
}

// Sleep yields to the runtime for us microseconds
func (hwClock) Sleep(us uint32) {
	time.Sleep(time.Duration(us) * time.Microsecond)
}
