package core

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCalibration is returned by Validate
var ErrInvalidCalibration = errors.New("invalid calibration")

// Control flag bits stored with the calibration
const (
	FlagSpeedError uint8 = 1 << 0 // controller acts on speed error instead of position error
)

// Model and gain constants
const (
	DefaultGearRatio     = 9.966
	DefaultEncoderPulses = 12
	DefaultKm            = 2064.7 // degrees/s per volt
	DefaultTm            = 0.325  // seconds
	DefaultZeta          = 0.707
	DefaultBiasFF        = 0.145 // volts

	// gainFloor keeps the gain formulas finite for tiny zeta or Td
	gainFloor = 0.005
)

// Calibration is the flat tuning record shared by the controller and the
// persisted settings.
type Calibration struct {
	ControlFlags uint8
	DegPerCount  float32 // degrees per encoder count
	Km           float32 // motor gain, degrees/s per volt
	Tm           float32 // motor time constant, seconds
	Zeta         float32 // damping ratio
	Td           float32 // closed-loop time constant, seconds
	Kp           float32
	Kd           float32
	BiasFF       float32 // volts
	SpeedFF      float32 // volts per degree/s
	AccFF        float32 // volts per degree/s^2
}

// DefaultCalibration returns the bench defaults for a motor with the given
// gear ratio and encoder pulses per motor revolution.
func DefaultCalibration(gearRatio float32, pulses int) Calibration {
	if gearRatio <= 0 {
		gearRatio = DefaultGearRatio
	}
	if pulses <= 0 {
		pulses = DefaultEncoderPulses
	}
	c := Calibration{
		DegPerCount: 360.0 / (float32(pulses) * gearRatio),
		Km:          DefaultKm,
		Tm:          DefaultTm,
		Zeta:        DefaultZeta,
		Td:          DefaultTm / 2,
		BiasFF:      DefaultBiasFF,
	}
	c.DeriveGains()
	return c
}

// DeriveGains recomputes Kp, Kd and the feedforward terms from the model
func (c *Calibration) DeriveGains() {
	zeta := c.Zeta
	if zeta < gainFloor {
		zeta = gainFloor
	}
	td := c.Td
	if td < gainFloor {
		td = gainFloor
	}
	if c.Km <= 0 {
		return
	}
	c.Kp = 16 * c.Tm / (c.Km * zeta * zeta * td * td)
	c.Kd = (8*c.Tm - td) / (c.Km * td)
	c.SpeedFF = 1 / c.Km
	c.AccFF = c.Tm / c.Km
}

// Validate rejects records the controller cannot run with
func (c *Calibration) Validate() error {
	fields := []struct {
		name     string
		v        float32
		positive bool
	}{
		{"degPerCount", c.DegPerCount, true},
		{"Km", c.Km, true},
		{"Tm", c.Tm, true},
		{"zeta", c.Zeta, true},
		{"Td", c.Td, true},
		{"Kp", c.Kp, false},
		{"Kd", c.Kd, false},
		{"biasFF", c.BiasFF, false},
		{"speedFF", c.SpeedFF, false},
		{"accFF", c.AccFF, false},
	}
	for _, f := range fields {
		v := float64(f.v)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidCalibration, f.name)
		}
		if f.positive && v <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidCalibration, f.name)
		}
	}
	return nil
}
