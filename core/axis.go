package core

import "fmt"

// AxisConfig collects the drivers and wiring for one motor axis
type AxisConfig struct {
	GPIO  GPIODriver
	PWM   PWMDriver
	Edges EdgeDriver // nil when the target attaches OnEdge itself

	Encoder     EncoderPins
	Motor       MotorPins
	Battery     BatterySource
	Calibration Calibration
}

// Axis is a fully wired control pipeline for one motor
type Axis struct {
	Decoder   *Decoder
	Encoder   *Encoder
	Profile   *Profile
	Motor     *Motor
	Scheduler *Scheduler
	Battery   BatterySource
}

// NewAxis configures pins and wires decoder, encoder, profile, motor and
// scheduler. The scheduler is not started.
func NewAxis(cfg AxisConfig) (*Axis, error) {
	a := &Axis{
		Decoder: NewDecoder(cfg.GPIO, cfg.Encoder),
		Profile: NewProfile(),
		Battery: cfg.Battery,
	}
	if err := a.Decoder.Configure(); err != nil {
		return nil, fmt.Errorf("encoder pins: %w", err)
	}
	if cfg.Edges != nil {
		if err := cfg.Edges.WatchEdges(cfg.Encoder.A, a.Decoder.OnEdge); err != nil {
			return nil, fmt.Errorf("encoder edge A: %w", err)
		}
		if !cfg.Encoder.XORClock {
			if err := cfg.Edges.WatchEdges(cfg.Encoder.B, a.Decoder.OnEdge); err != nil {
				return nil, fmt.Errorf("encoder edge B: %w", err)
			}
		}
	}

	a.Encoder = NewEncoder(a.Decoder, cfg.Calibration.DegPerCount)
	a.Motor = NewMotor(cfg.PWM, cfg.GPIO, cfg.Motor, cfg.Battery, a.Encoder, a.Profile, cfg.Calibration)
	if err := a.Motor.Configure(); err != nil {
		return nil, fmt.Errorf("motor pins: %w", err)
	}
	a.Scheduler = NewScheduler(a.Encoder, a.Profile, a.Motor)
	return a, nil
}

// ApplyCalibration installs a validated calibration on encoder and motor
func (a *Axis) ApplyCalibration(cal Calibration) {
	a.Encoder.SetDegPerCount(cal.DegPerCount)
	a.Motor.SetCalibration(cal)
}
