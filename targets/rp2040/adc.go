//go:build rp2040

package main

import (
	"errors"
	"machine"

	"motorlab/core"
)

// RpAdcDriver implements core.ADCDriver on ADC0..ADC3 (GPIO26..GPIO29)
type RpAdcDriver struct {
	channels [4]*machine.ADC
}

// NewRPAdcDriver constructs the driver but does not Init() it yet.
func NewRPAdcDriver() *RpAdcDriver {
	return &RpAdcDriver{}
}

func (d *RpAdcDriver) Init(cfg core.ADCConfig) error {
	machine.InitADC()
	return nil
}

// ConfigureChannel muxes the channel's pin to the ADC
func (d *RpAdcDriver) ConfigureChannel(ch core.ADCChannelID) error {
	if int(ch) >= len(d.channels) {
		return errors.New("unsupported ADC channel")
	}
	if d.channels[ch] != nil {
		return nil
	}
	pins := [4]machine.Pin{machine.ADC0, machine.ADC1, machine.ADC2, machine.ADC3}
	adc := &machine.ADC{Pin: pins[ch]}
	if err := adc.Configure(machine.ADCConfig{}); err != nil {
		return err
	}
	d.channels[ch] = adc
	return nil
}

// ReadRaw returns a reading scaled to 0..core.ADCFullScale. TinyGo already
// left-justifies the 12-bit result into 16 bits.
func (d *RpAdcDriver) ReadRaw(ch core.ADCChannelID) (core.ADCValue, error) {
	if int(ch) >= len(d.channels) || d.channels[ch] == nil {
		if err := d.ConfigureChannel(ch); err != nil {
			return 0, err
		}
	}
	return core.ADCValue(d.channels[ch].Get()), nil
}
