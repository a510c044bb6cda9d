//go:build rp2040

package main

import (
	"machine"

	"motorlab/core"
)

// pwmPeripheral abstracts over TinyGo's unexported *pwmGroup type
type pwmPeripheral interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

// RP2040PWMDriver implements core.PWMDriver on the RP2040's eight PWM
// slices. GPIO N belongs to slice (N>>1)&7, channel A when N is even.
type RP2040PWMDriver struct {
	channels    map[core.PWMPin]uint8
	peripherals map[uint8]pwmPeripheral
}

// NewRP2040PWMDriver creates a new RP2040 PWM driver
func NewRP2040PWMDriver() *RP2040PWMDriver {
	return &RP2040PWMDriver{
		channels:    make(map[core.PWMPin]uint8),
		peripherals: make(map[uint8]pwmPeripheral),
	}
}

// GetMaxValue returns core.PWM_MAX
func (d *RP2040PWMDriver) GetMaxValue() uint32 {
	return core.PWM_MAX
}

func slice(pin core.PWMPin) uint8 {
	return uint8((pin >> 1) & 0x7)
}

// ConfigureHardwarePWM sets the slice period and claims the pin's channel
func (d *RP2040PWMDriver) ConfigureHardwarePWM(pin core.PWMPin, periodUS uint32) (uint32, error) {
	if periodUS == 0 {
		periodUS = core.DefaultPWMPeriodUS
	}
	s := slice(pin)
	pwm, ok := d.peripherals[s]
	if !ok {
		pwm = pwmGroup(s)
		d.peripherals[s] = pwm
	}

	if err := pwm.Configure(machine.PWMConfig{Period: uint64(periodUS) * 1000}); err != nil {
		return 0, err
	}
	channel, err := pwm.Channel(machine.Pin(pin))
	if err != nil {
		return 0, err
	}
	d.channels[pin] = channel
	pwm.Set(channel, 0)
	return periodUS, nil
}

// SetDutyCycle scales value from 0..PWM_MAX to the slice's counter top
func (d *RP2040PWMDriver) SetDutyCycle(pin core.PWMPin, value core.PWMValue) error {
	channel, ok := d.channels[pin]
	if !ok {
		return nil
	}
	if value > core.PWM_MAX {
		value = core.PWM_MAX
	}
	pwm := d.peripherals[slice(pin)]
	pwm.Set(channel, uint32(value)*pwm.Top()/core.PWM_MAX)
	return nil
}

// DisablePWM drives the channel low. TinyGo cannot hand the pin back to
// the GPIO function.
func (d *RP2040PWMDriver) DisablePWM(pin core.PWMPin) error {
	channel, ok := d.channels[pin]
	if !ok {
		return nil
	}
	d.peripherals[slice(pin)].Set(channel, 0)
	delete(d.channels, pin)
	return nil
}

// pwmGroup returns TinyGo's PWM0..PWM7
func pwmGroup(s uint8) pwmPeripheral {
	switch s {
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	case 7:
		return machine.PWM7
	default:
		return machine.PWM0
	}
}
