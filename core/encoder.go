package core

import "sync/atomic"

// AveragerLength is the number of per-tick pulse counts averaged for speed
const AveragerLength = 8

// quadratureTable maps old<<2|new to a count step, with states encoded as A<<1|B.
// The forward sequence is 00, 01, 11, 10. Illegal double transitions give 0.
var quadratureTable = [16]int8{
	0, +1, -1, 0,
	-1, 0, 0, +1,
	+1, 0, 0, -1,
	0, -1, +1, 0,
}

// EncoderPins describes how a quadrature encoder is wired
type EncoderPins struct {
	A GPIOPin // channel A, or the XOR-ed clock when XORClock is set
	B GPIOPin // channel B (direction)

	// XORClock is set on boards that feed A^B into the interrupt pin so
	// a single pin-change interrupt sees every edge.
	XORClock bool

	// Polarity is +1 or -1 and is applied to every step
	Polarity int8
}

// Decoder turns pin edges into signed pulse counts. OnEdge runs in
// interrupt context; the scheduler drains the count once per tick.
type Decoder struct {
	gpio     GPIODriver
	pins     EncoderPins
	state    uint8 // last A<<1|B, guarded by the critical section
	pulses   atomic.Int32
	illegal  atomic.Uint32
	polarity int8
}

// NewDecoder creates a decoder reading pins through gpio
func NewDecoder(gpio GPIODriver, pins EncoderPins) *Decoder {
	polarity := pins.Polarity
	if polarity >= 0 {
		polarity = 1
	} else {
		polarity = -1
	}
	return &Decoder{gpio: gpio, pins: pins, polarity: polarity}
}

// Configure sets both pins as pulled-up inputs and latches the current state
func (d *Decoder) Configure() error {
	if err := d.gpio.ConfigureInputPullUp(d.pins.A); err != nil {
		return err
	}
	if err := d.gpio.ConfigureInputPullUp(d.pins.B); err != nil {
		return err
	}
	state := disableInterrupts()
	d.state = d.readAB()
	restoreInterrupts(state)
	return nil
}

// readAB samples both channels
func (d *Decoder) readAB() uint8 {
	a := d.gpio.ReadPin(d.pins.A)
	b := d.gpio.ReadPin(d.pins.B)
	if d.pins.XORClock {
		a = a != b
	}
	var ab uint8
	if a {
		ab |= 2
	}
	if b {
		ab |= 1
	}
	return ab
}

// OnEdge is the pin-change handler for either channel
func (d *Decoder) OnEdge() {
	state := disableInterrupts()
	ab := d.readAB()
	idx := d.state<<2 | ab
	d.state = ab
	restoreInterrupts(state)

	step := quadratureTable[idx]
	if step == 0 {
		if idx == 0b0011 || idx == 0b0110 || idx == 0b1001 || idx == 0b1100 {
			d.illegal.Add(1)
		}
		return
	}
	d.pulses.Add(int32(step) * int32(d.polarity))
}

// take drains the pulse accumulator
func (d *Decoder) take() int32 {
	return d.pulses.Swap(0)
}

// Illegal returns how many edges skipped a quadrature state
func (d *Decoder) Illegal() uint32 {
	return d.illegal.Load()
}

// Encoder estimates position and speed from a Decoder using a moving
// average of the last AveragerLength tick deltas.
type Encoder struct {
	decoder     *Decoder
	degPerCount Float32

	// Ring state, written by Update and Reset inside the critical section.
	ring      [AveragerLength]int32
	ringIndex uint8
	ringSum   int32
	counts    int32

	distance Float32 // degrees
	change   Float32 // degrees per tick
}

// NewEncoder creates an encoder over d scaled by degPerCount
func NewEncoder(d *Decoder, degPerCount float32) *Encoder {
	e := &Encoder{decoder: d}
	e.degPerCount.Store(degPerCount)
	return e
}

// Decoder returns the underlying edge decoder
func (e *Encoder) Decoder() *Decoder {
	return e.decoder
}

// SetDegPerCount changes the count scale. Call between trials.
func (e *Encoder) SetDegPerCount(degPerCount float32) {
	e.degPerCount.Store(degPerCount)
}

// Update drains the pulse count and advances the averager.
// Called once per control tick.
func (e *Encoder) Update() {
	delta := e.decoder.take()
	scale := e.degPerCount.Load()

	state := disableInterrupts()
	e.ringSum += delta - e.ring[e.ringIndex]
	e.ring[e.ringIndex] = delta
	e.ringIndex = (e.ringIndex + 1) % AveragerLength
	e.counts += delta
	change := float32(e.ringSum) * (1.0 / AveragerLength) * scale
	e.change.Store(change)
	e.distance.Store(e.distance.Load() + change)
	restoreInterrupts(state)
}

// Distance returns the accumulated position in degrees
func (e *Encoder) Distance() float32 {
	return e.distance.Load()
}

// Speed returns the averaged speed in degrees per second
func (e *Encoder) Speed() float32 {
	return e.change.Load() * LoopFrequency
}

// Counts returns the raw pulse total since the last reset
func (e *Encoder) Counts() int32 {
	state := disableInterrupts()
	n := e.counts
	restoreInterrupts(state)
	return n
}

// Reset zeroes position, speed and the averager
func (e *Encoder) Reset() {
	e.decoder.take()
	state := disableInterrupts()
	e.ring = [AveragerLength]int32{}
	e.ringIndex = 0
	e.ringSum = 0
	e.counts = 0
	e.distance.Store(0)
	e.change.Store(0)
	restoreInterrupts(state)
}
