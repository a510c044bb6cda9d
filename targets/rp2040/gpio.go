//go:build rp2040

package main

import (
	"errors"
	"machine"

	"motorlab/core"
)

const numGPIO = 30

var errBadPin = errors.New("no such GPIO")

// RPGPIODriver implements core.GPIODriver and core.EdgeDriver for the
// RP2040. Pin state lives in fixed arrays so the edge interrupt can read it.
type RPGPIODriver struct {
	configured [numGPIO]bool
	handlers   [numGPIO]func()
}

// NewRPGPIODriver creates a new RP2040 GPIO driver
func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{}
}

func (d *RPGPIODriver) configure(pin core.GPIOPin, mode machine.PinMode) error {
	if pin >= numGPIO {
		return errBadPin
	}
	machine.Pin(pin).Configure(machine.PinConfig{Mode: mode})
	d.configured[pin] = true
	return nil
}

// ConfigureOutput configures a pin as a digital output
func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	return d.configure(pin, machine.PinOutput)
}

func (d *RPGPIODriver) ConfigureInputPullUp(pin core.GPIOPin) error {
	return d.configure(pin, machine.PinInputPullup)
}

func (d *RPGPIODriver) ConfigureInputPullDown(pin core.GPIOPin) error {
	return d.configure(pin, machine.PinInputPulldown)
}

// SetPin sets the pin to high (true) or low (false)
func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	if pin >= numGPIO {
		return errBadPin
	}
	if !d.configured[pin] {
		if err := d.ConfigureOutput(pin); err != nil {
			return err
		}
	}
	machine.Pin(pin).Set(value)
	return nil
}

// GetPin reads the current pin state
func (d *RPGPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	if pin >= numGPIO {
		return false, errBadPin
	}
	return machine.Pin(pin).Get(), nil
}

func (d *RPGPIODriver) ReadPin(pin core.GPIOPin) bool {
	if pin >= numGPIO {
		return false
	}
	return machine.Pin(pin).Get()
}

// WatchEdges calls handler from the pin-change interrupt on both edges
func (d *RPGPIODriver) WatchEdges(pin core.GPIOPin, handler func()) error {
	if pin >= numGPIO {
		return errBadPin
	}
	d.handlers[pin] = handler
	return machine.Pin(pin).SetInterrupt(machine.PinToggle, d.onEdge)
}

func (d *RPGPIODriver) onEdge(p machine.Pin) {
	if h := d.handlers[p]; h != nil {
		h()
	}
}
