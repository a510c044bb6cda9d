//go:build !tinygo

// Package periph drives the rig from a Linux single board computer through
// periph.io: encoder inputs with edge detection, a direction output and a
// hardware PWM output.
package periph

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"motorlab/config"
	"motorlab/core"
)

// Logical pin numbers handed to core
const (
	PinEncoderA core.GPIOPin = iota
	PinEncoderB
	PinDir
	PinPWM
	numPins
)

// edgePoll bounds how long a watcher blocks before checking for Close
const edgePoll = 100 * time.Millisecond

// ErrUnknownPin is returned for a logical pin the board does not map
var ErrUnknownPin = errors.New("unknown pin")

// Board implements core.GPIODriver, core.PWMDriver and core.EdgeDriver
// over periph GPIO pins.
type Board struct {
	pins [numPins]gpio.PinIO

	mu      sync.Mutex
	periods map[core.PWMPin]uint32

	done chan struct{}
	wg   sync.WaitGroup
}

// Open initialises the host drivers and resolves the configured pin names
func Open(names config.PinConfig) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return NewBoard(names, gpioreg.ByName)
}

// NewBoard resolves pin names with lookup
func NewBoard(names config.PinConfig, lookup func(string) gpio.PinIO) (*Board, error) {
	b := &Board{
		periods: make(map[core.PWMPin]uint32),
		done:    make(chan struct{}),
	}
	for i, name := range [numPins]string{names.EncoderA, names.EncoderB, names.Dir, names.PWM} {
		p := lookup(name)
		if p == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPin, name)
		}
		b.pins[i] = p
	}
	return b, nil
}

func (b *Board) pin(n core.GPIOPin) (gpio.PinIO, error) {
	if n >= numPins {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPin, n)
	}
	return b.pins[n], nil
}

// ConfigureOutput drives the pin low
func (b *Board) ConfigureOutput(n core.GPIOPin) error {
	p, err := b.pin(n)
	if err != nil {
		return err
	}
	return p.Out(gpio.Low)
}

// ConfigureInputPullUp makes the pin an input with both edges detected
func (b *Board) ConfigureInputPullUp(n core.GPIOPin) error {
	p, err := b.pin(n)
	if err != nil {
		return err
	}
	return p.In(gpio.PullUp, gpio.BothEdges)
}

// ConfigureInputPullDown makes the pin an input with both edges detected
func (b *Board) ConfigureInputPullDown(n core.GPIOPin) error {
	p, err := b.pin(n)
	if err != nil {
		return err
	}
	return p.In(gpio.PullDown, gpio.BothEdges)
}

// SetPin drives an output
func (b *Board) SetPin(n core.GPIOPin, value bool) error {
	p, err := b.pin(n)
	if err != nil {
		return err
	}
	return p.Out(gpio.Level(value))
}

// GetPin reads a pin
func (b *Board) GetPin(n core.GPIOPin) (bool, error) {
	p, err := b.pin(n)
	if err != nil {
		return false, err
	}
	return p.Read() == gpio.High, nil
}

// ReadPin reads a pin, returning false for an unmapped pin
func (b *Board) ReadPin(n core.GPIOPin) bool {
	v, _ := b.GetPin(n)
	return v
}

// WatchEdges starts a goroutine calling handler on every edge of the pin
// until Close.
func (b *Board) WatchEdges(n core.GPIOPin, handler func()) error {
	p, err := b.pin(n)
	if err != nil {
		return err
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-b.done:
				return
			default:
			}
			if p.WaitForEdge(edgePoll) {
				handler()
			}
		}
	}()
	return nil
}

func frequency(periodUS uint32) physic.Frequency {
	return physic.Frequency(1000000/periodUS) * physic.Hertz
}

// ConfigureHardwarePWM starts the PWM pin at zero duty
func (b *Board) ConfigureHardwarePWM(n core.PWMPin, periodUS uint32) (uint32, error) {
	if periodUS == 0 {
		periodUS = core.DefaultPWMPeriodUS
	}
	p, err := b.pin(core.GPIOPin(n))
	if err != nil {
		return 0, err
	}
	if err := p.PWM(0, frequency(periodUS)); err != nil {
		return 0, err
	}
	b.mu.Lock()
	b.periods[n] = periodUS
	b.mu.Unlock()
	return periodUS, nil
}

// SetDutyCycle scales value from PWM_MAX to the periph duty range
func (b *Board) SetDutyCycle(n core.PWMPin, value core.PWMValue) error {
	p, err := b.pin(core.GPIOPin(n))
	if err != nil {
		return err
	}
	if value > core.PWM_MAX {
		value = core.PWM_MAX
	}
	b.mu.Lock()
	period, ok := b.periods[n]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("pwm pin %d not configured", n)
	}
	duty := gpio.Duty(int64(value) * int64(gpio.DutyMax) / core.PWM_MAX)
	return p.PWM(duty, frequency(period))
}

// GetMaxValue returns PWM_MAX
func (b *Board) GetMaxValue() uint32 {
	return core.PWM_MAX
}

// DisablePWM returns the pin to a low output
func (b *Board) DisablePWM(n core.PWMPin) error {
	p, err := b.pin(core.GPIOPin(n))
	if err != nil {
		return err
	}
	b.mu.Lock()
	delete(b.periods, n)
	b.mu.Unlock()
	return p.Out(gpio.Low)
}

// AxisConfig returns core wiring for the board
func (b *Board) AxisConfig(cfg *config.Config, cal core.Calibration, battery core.BatterySource) core.AxisConfig {
	return core.AxisConfig{
		GPIO:  b,
		PWM:   b,
		Edges: b,
		Encoder: core.EncoderPins{
			A:        PinEncoderA,
			B:        PinEncoderB,
			XORClock: cfg.Drivetrain.XORClock,
			Polarity: cfg.Drivetrain.EncoderPolarity,
		},
		Motor: core.MotorPins{
			PWM:      core.PWMPin(PinPWM),
			Dir:      PinDir,
			Polarity: cfg.Drivetrain.MotorPolarity,
			PeriodUS: cfg.Drivetrain.PWMPeriodUS,
		},
		Battery:     battery,
		Calibration: cal,
	}
}

// Close stops the edge watchers and halts every pin
func (b *Board) Close() error {
	select {
	case <-b.done:
		return nil
	default:
		close(b.done)
	}
	b.wg.Wait()
	var err error
	for _, p := range b.pins {
		if herr := p.Halt(); herr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", p.Name(), herr))
		}
	}
	return err
}
