//go:build !tinygo

package core

import "sync"

// State is a placeholder for interrupt state on regular Go
type State uintptr

// On the Go runtime edge handlers and the scheduler run on separate
// goroutines, so masking becomes a package mutex. Sections must not nest.
var interruptMu sync.Mutex

// disableInterrupts enters the critical section shared with edge handlers
func disableInterrupts() State {
	interruptMu.Lock()
	return 0
}

// restoreInterrupts leaves the critical section
func restoreInterrupts(state State) {
	interruptMu.Unlock()
}
