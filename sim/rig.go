// Package sim is a bench without hardware: a first-order motor model behind
// GPIO, PWM, ADC and edge drivers, driven by a virtual clock.
package sim

import (
	"math"
	"sync"
	"time"

	"motorlab/core"
)

// Pin assignments on the simulated board
const (
	PinEncoderA    core.GPIOPin      = 2
	PinEncoderB    core.GPIOPin      = 3
	PinDir         core.GPIOPin      = 7
	PinPWM         core.PWMPin       = 9
	BatteryChannel core.ADCChannelID = 0
)

// Config parameterises the simulated motor and its wiring
type Config struct {
	Km            float64 // degrees/s per volt at the output shaft
	Tm            float64 // seconds
	FrictionVolts float64 // voltage lost to coulomb friction
	BatteryVolts  float64
	Substeps      int // integration steps per control tick
	DegPerCount   float64

	// Wiring. Matching polarities in the controller cancel these.
	MotorPolarity   int8
	EncoderPolarity int8
	XORClock        bool

	ReferenceMV  uint32
	DividerRatio float64

	// Realtime paces Sleep against the wall clock
	Realtime bool
}

// DefaultConfig returns the bench motor
func DefaultConfig() Config {
	return Config{
		Km:              core.DefaultKm,
		Tm:              core.DefaultTm,
		FrictionVolts:   core.DefaultBiasFF,
		BatteryVolts:    8,
		Substeps:        40,
		DegPerCount:     360.0 / (core.DefaultEncoderPulses * core.DefaultGearRatio),
		MotorPolarity:   1,
		EncoderPolarity: 1,
		ReferenceMV:     3300,
		DividerRatio:    3,
	}
}

// quadrature levels for the forward sequence 00, 01, 11, 10
var quadrature = [4][2]bool{{false, false}, {false, true}, {true, true}, {true, false}}

// Rig is the simulated board. It implements core.GPIODriver, core.PWMDriver,
// core.ADCDriver, core.EdgeDriver and core.Clock.
type Rig struct {
	cfg Config

	mu       sync.Mutex
	now      uint32
	angle    float64 // degrees
	speed    float64 // degrees/s
	counts   int64
	phase    int
	levels   map[core.GPIOPin]bool
	outputs  map[core.GPIOPin]bool
	duty     map[core.PWMPin]core.PWMValue
	handlers map[core.GPIOPin]func()
	edges    uint64
}

// New creates a rig at rest
func New(cfg Config) *Rig {
	if cfg.Substeps <= 0 {
		cfg.Substeps = 1
	}
	if cfg.MotorPolarity == 0 {
		cfg.MotorPolarity = 1
	}
	if cfg.EncoderPolarity == 0 {
		cfg.EncoderPolarity = 1
	}
	return &Rig{
		cfg:      cfg,
		levels:   make(map[core.GPIOPin]bool),
		outputs:  make(map[core.GPIOPin]bool),
		duty:     make(map[core.PWMPin]core.PWMValue),
		handlers: make(map[core.GPIOPin]func()),
	}
}

// Config returns the rig parameters
func (r *Rig) Config() Config {
	return r.cfg
}

// Now returns virtual microseconds
func (r *Rig) Now() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now
}

// Sleep advances the motor model by us microseconds, firing edge handlers
// as the encoder turns.
func (r *Rig) Sleep(us uint32) {
	if us == 0 {
		return
	}
	if r.cfg.Realtime {
		time.Sleep(time.Duration(us) * time.Microsecond)
	}

	total := float64(us) * 1e-6
	h := core.TickPeriodUS * 1e-6 / float64(r.cfg.Substeps)
	n := int(math.Ceil(total / h))
	dt := total / float64(n)
	for i := 0; i < n; i++ {
		r.mu.Lock()
		steps := r.advance(dt)
		r.mu.Unlock()
		r.emit(steps)
	}

	r.mu.Lock()
	r.now += us
	r.mu.Unlock()
}

// appliedVolts is the voltage across the motor terminals
func (r *Rig) appliedVolts() float64 {
	v := float64(r.duty[PinPWM]) / core.PWM_MAX * r.cfg.BatteryVolts
	if r.levels[PinDir] {
		v = -v
	}
	return v * float64(r.cfg.MotorPolarity)
}

// advance integrates the plant over dt and returns encoder steps taken
func (r *Rig) advance(dt float64) int64 {
	v := r.appliedVolts()
	f := r.cfg.FrictionVolts
	switch {
	case r.speed > 0:
		v -= f
	case r.speed < 0:
		v += f
	case math.Abs(v) <= f:
		v = 0 // stiction
	case v > 0:
		v -= f
	default:
		v += f
	}

	prev := r.speed
	r.speed += (r.cfg.Km*v - r.speed) / r.cfg.Tm * dt
	if prev != 0 && (prev > 0) != (r.speed > 0) {
		// friction stops the shaft rather than reversing it
		r.speed = 0
	}
	r.angle += r.speed * dt

	c := int64(math.Floor(r.angle / r.cfg.DegPerCount))
	steps := c - r.counts
	r.counts = c
	return steps * int64(r.cfg.EncoderPolarity)
}

// emit walks the quadrature phase one state per step, calling the
// handler of every pin that changed
func (r *Rig) emit(steps int64) {
	dir := int64(1)
	if steps < 0 {
		dir = -1
	}
	for ; steps != 0; steps -= dir {
		r.mu.Lock()
		r.phase = (r.phase + int(dir) + 4) % 4
		a, b := quadrature[r.phase][0], quadrature[r.phase][1]
		if r.cfg.XORClock {
			a = a != b
		}
		changedA := r.levels[PinEncoderA] != a
		changedB := r.levels[PinEncoderB] != b
		r.levels[PinEncoderA] = a
		r.levels[PinEncoderB] = b
		r.edges++
		var ha, hb func()
		if changedA {
			ha = r.handlers[PinEncoderA]
		}
		if changedB {
			hb = r.handlers[PinEncoderB]
		}
		r.mu.Unlock()

		if ha != nil {
			ha()
		}
		if hb != nil {
			hb()
		}
	}
}

// Angle returns the true shaft angle in degrees
func (r *Rig) Angle() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.angle
}

// Speed returns the true shaft speed in degrees/s
func (r *Rig) Speed() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.speed
}

// AppliedVolts returns the voltage the motor currently sees
func (r *Rig) AppliedVolts() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appliedVolts()
}

// Edges returns the number of encoder states generated
func (r *Rig) Edges() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.edges
}

// SetBatteryVolts changes the supply voltage
func (r *Rig) SetBatteryVolts(v float64) {
	r.mu.Lock()
	r.cfg.BatteryVolts = v
	r.mu.Unlock()
}

// ConfigureOutput configures a pin as a digital output
func (r *Rig) ConfigureOutput(pin core.GPIOPin) error {
	r.mu.Lock()
	r.outputs[pin] = true
	r.mu.Unlock()
	return nil
}

// ConfigureInputPullUp is a no-op on the rig
func (r *Rig) ConfigureInputPullUp(pin core.GPIOPin) error { return nil }

// ConfigureInputPullDown is a no-op on the rig
func (r *Rig) ConfigureInputPullDown(pin core.GPIOPin) error { return nil }

// SetPin drives an output
func (r *Rig) SetPin(pin core.GPIOPin, value bool) error {
	r.mu.Lock()
	r.levels[pin] = value
	r.mu.Unlock()
	return nil
}

// GetPin reads a pin
func (r *Rig) GetPin(pin core.GPIOPin) (bool, error) {
	return r.ReadPin(pin), nil
}

// ReadPin reads a pin
func (r *Rig) ReadPin(pin core.GPIOPin) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.levels[pin]
}

// WatchEdges registers an edge handler
func (r *Rig) WatchEdges(pin core.GPIOPin, handler func()) error {
	r.mu.Lock()
	r.handlers[pin] = handler
	r.mu.Unlock()
	return nil
}

// ConfigureHardwarePWM accepts any period
func (r *Rig) ConfigureHardwarePWM(pin core.PWMPin, periodUS uint32) (uint32, error) {
	return periodUS, nil
}

// SetDutyCycle sets the motor drive duty
func (r *Rig) SetDutyCycle(pin core.PWMPin, value core.PWMValue) error {
	if value > core.PWM_MAX {
		value = core.PWM_MAX
	}
	r.mu.Lock()
	r.duty[pin] = value
	r.mu.Unlock()
	return nil
}

// GetMaxValue returns PWM_MAX
func (r *Rig) GetMaxValue() uint32 { return core.PWM_MAX }

// DisablePWM zeroes the duty
func (r *Rig) DisablePWM(pin core.PWMPin) error {
	return r.SetDutyCycle(pin, 0)
}

// Init accepts any ADC config
func (r *Rig) Init(cfg core.ADCConfig) error { return nil }

// ConfigureChannel accepts any channel
func (r *Rig) ConfigureChannel(ch core.ADCChannelID) error { return nil }

// ReadRaw returns the divided battery voltage on the battery channel
func (r *Rig) ReadRaw(ch core.ADCChannelID) (core.ADCValue, error) {
	if ch != BatteryChannel {
		return 0, nil
	}
	r.mu.Lock()
	volts := r.cfg.BatteryVolts
	r.mu.Unlock()
	raw := volts / r.cfg.DividerRatio / (float64(r.cfg.ReferenceMV) / 1000) * core.ADCFullScale
	if raw > core.ADCFullScale {
		raw = core.ADCFullScale
	}
	return core.ADCValue(raw + 0.5), nil
}

// AxisConfig returns core wiring for the rig with the given calibration
func (r *Rig) AxisConfig(cal core.Calibration, battery core.BatterySource) core.AxisConfig {
	return core.AxisConfig{
		GPIO:  r,
		PWM:   r,
		Edges: r,
		Encoder: core.EncoderPins{
			A:        PinEncoderA,
			B:        PinEncoderB,
			XORClock: r.cfg.XORClock,
			Polarity: r.cfg.EncoderPolarity,
		},
		Motor: core.MotorPins{
			PWM:      PinPWM,
			Dir:      PinDir,
			Polarity: r.cfg.MotorPolarity,
		},
		Battery:     battery,
		Calibration: cal,
	}
}
