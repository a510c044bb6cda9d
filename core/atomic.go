package core

import (
	"math"
	"sync/atomic"
)

// Float32 is a float32 cell that may be read and written from different
// execution contexts without a critical section.
type Float32 struct {
	bits atomic.Uint32
}

// Load returns the stored value
func (f *Float32) Load() float32 {
	return math.Float32frombits(f.bits.Load())
}

// Store sets the value
func (f *Float32) Store(v float32) {
	f.bits.Store(math.Float32bits(v))
}
