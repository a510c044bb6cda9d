package core

import "sync/atomic"

// ControlMode selects which terms of the control law are active
type ControlMode uint8

const (
	ModeOff         ControlMode = 0
	ModeFeedback    ControlMode = 1 << 0
	ModeFeedforward ControlMode = 1 << 1
	ModeFull                    = ModeFeedback | ModeFeedforward
)

func (m ControlMode) String() string {
	switch m {
	case ModeFeedback:
		return "feedback"
	case ModeFeedforward:
		return "feedforward"
	case ModeFull:
		return "full"
	default:
		return "off"
	}
}

// ErrorForm selects the quantity the feedback term acts on
type ErrorForm uint8

const (
	PositionError ErrorForm = iota
	SpeedError
)

// DefaultPWMPeriodUS gives a 20kHz drive frequency
const DefaultPWMPeriodUS = 50

// MotorPins describes a DIR+PWM motor driver
type MotorPins struct {
	PWM      PWMPin
	Dir      GPIOPin
	Polarity int8   // +1 or -1, applied to the duty sign
	PeriodUS uint32 // PWM period, 0 for DefaultPWMPeriodUS
}

// Motor is the voltage controller. Each tick it combines a PD term on the
// profile error with speed, acceleration and friction feedforward, then
// drives the H-bridge with a battery compensated duty.
type Motor struct {
	pwm      PWMDriver
	gpio     GPIODriver
	pins     MotorPins
	polarity int32
	battery  BatterySource
	encoder  *Encoder
	profile  *Profile

	// Guarded by the critical section.
	cal        Calibration
	kdTick     float32 // Kd pre-scaled by LoopFrequency
	mode       ControlMode
	form       ErrorForm
	closedLoop bool
	prevError  float32

	ctrlVolts  Float32
	ffVolts    Float32
	motorVolts Float32
	duty       atomic.Int32
	outErrors  atomic.Uint32
}

// NewMotor creates a motor controller. The controller starts in open loop
// with both control terms disabled.
func NewMotor(pwm PWMDriver, gpio GPIODriver, pins MotorPins, battery BatterySource, enc *Encoder, prof *Profile, cal Calibration) *Motor {
	polarity := int32(1)
	if pins.Polarity < 0 {
		polarity = -1
	}
	if pins.PeriodUS == 0 {
		pins.PeriodUS = DefaultPWMPeriodUS
	}
	m := &Motor{
		pwm:      pwm,
		gpio:     gpio,
		pins:     pins,
		polarity: polarity,
		battery:  battery,
		encoder:  enc,
		profile:  prof,
	}
	m.SetCalibration(cal)
	return m
}

// Configure sets up the direction and PWM pins and drives zero
func (m *Motor) Configure() error {
	if err := m.gpio.ConfigureOutput(m.pins.Dir); err != nil {
		return err
	}
	if _, err := m.pwm.ConfigureHardwarePWM(m.pins.PWM, m.pins.PeriodUS); err != nil {
		return err
	}
	m.output(0, m.battery.BatteryVolts())
	return nil
}

// SetCalibration installs new gains. Kd is scaled to per-tick form here so
// the tick path multiplies the raw error difference.
func (m *Motor) SetCalibration(cal Calibration) {
	state := disableInterrupts()
	m.cal = cal
	m.kdTick = cal.Kd * LoopFrequency
	m.form = PositionError
	if cal.ControlFlags&FlagSpeedError != 0 {
		m.form = SpeedError
	}
	restoreInterrupts(state)
}

// Calibration returns the installed calibration
func (m *Motor) Calibration() Calibration {
	state := disableInterrupts()
	cal := m.cal
	restoreInterrupts(state)
	return cal
}

// Update runs the control law for one tick
func (m *Motor) Update() {
	pos, speed, accel := m.profile.Setpoint()
	measuredPos := m.encoder.Distance()
	measuredSpeed := m.encoder.Speed()
	battery := m.battery.BatteryVolts()

	state := disableInterrupts()
	if !m.closedLoop || m.mode == ModeOff {
		volts := m.motorVolts.Load()
		restoreInterrupts(state)
		m.output(volts, battery)
		return
	}

	var err float32
	if m.form == SpeedError {
		err = speed - measuredSpeed
	} else {
		err = pos - measuredPos
	}

	var ctrl, ff float32
	if m.mode&ModeFeedback != 0 {
		ctrl = m.cal.Kp*err + m.kdTick*(err-m.prevError)
	}
	m.prevError = err
	if m.mode&ModeFeedforward != 0 {
		ff = m.cal.SpeedFF*speed + m.cal.AccFF*accel
		if speed > 0 {
			ff += m.cal.BiasFF
		} else if speed < 0 {
			ff -= m.cal.BiasFF
		}
	}
	volts := ctrl + ff
	m.ctrlVolts.Store(ctrl)
	m.ffVolts.Store(ff)
	m.motorVolts.Store(volts)
	restoreInterrupts(state)

	m.output(volts, battery)
}

// output converts volts to a compensated duty and drives the pins
func (m *Motor) output(volts, battery float32) {
	scaled := volts * BatteryCompensation(battery)
	var duty int32
	if scaled >= 0 {
		duty = int32(scaled + 0.5)
	} else {
		duty = int32(scaled - 0.5)
	}
	if duty > PWM_MAX {
		duty = PWM_MAX
	} else if duty < -PWM_MAX {
		duty = -PWM_MAX
	}
	m.duty.Store(duty)

	duty *= m.polarity
	reverse := duty < 0
	if reverse {
		duty = -duty
	}
	errDir := m.gpio.SetPin(m.pins.Dir, reverse)
	errPWM := m.pwm.SetDutyCycle(m.pins.PWM, PWMValue(duty))
	if errDir != nil || errPWM != nil {
		m.outErrors.Add(1)
		RecordTiming(EvtDutyError, 0, 0, uint32(duty), m.outErrors.Load())
	}
}

// setMode changes the active terms and clears the derivative history
func (m *Motor) setMode(mode ControlMode) {
	state := disableInterrupts()
	changed := m.mode != mode
	m.mode = mode
	m.prevError = 0
	restoreInterrupts(state)
	if changed {
		RecordTiming(EvtModeChange, 0, 0, uint32(mode), 0)
	}
}

// Mode returns the active control terms
func (m *Motor) Mode() ControlMode {
	state := disableInterrupts()
	mode := m.mode
	restoreInterrupts(state)
	return mode
}

// EnableControllers turns the feedback term on
func (m *Motor) EnableControllers() {
	m.setMode(m.Mode() | ModeFeedback)
}

// DisableControllers turns the feedback term off and zeroes the feedback
// and commanded voltage.
func (m *Motor) DisableControllers() {
	m.setMode(m.Mode() &^ ModeFeedback)
	m.ctrlVolts.Store(0)
	m.motorVolts.Store(0)
	m.output(0, m.battery.BatteryVolts())
}

// EnableFeedForward turns the feedforward term on
func (m *Motor) EnableFeedForward() {
	m.setMode(m.Mode() | ModeFeedforward)
}

// DisableFeedForward turns the feedforward term off
func (m *Motor) DisableFeedForward() {
	m.setMode(m.Mode() &^ ModeFeedforward)
	m.ffVolts.Store(0)
}

// SetMode sets both terms at once
func (m *Motor) SetMode(mode ControlMode) {
	m.setMode(mode & ModeFull)
}

// ResetControllers clears controller history without changing the mode
func (m *Motor) ResetControllers() {
	state := disableInterrupts()
	m.prevError = 0
	restoreInterrupts(state)
	m.ctrlVolts.Store(0)
	m.ffVolts.Store(0)
}

// SetClosedLoop selects between the control law and literal voltage
func (m *Motor) SetClosedLoop(on bool) {
	state := disableInterrupts()
	m.closedLoop = on
	m.prevError = 0
	restoreInterrupts(state)
}

// ClosedLoop reports whether the control law is driving the motor
func (m *Motor) ClosedLoop() bool {
	state := disableInterrupts()
	on := m.closedLoop
	restoreInterrupts(state)
	return on
}

// SetMotorVolts applies a literal voltage, battery compensated. In open
// loop the voltage is re-applied every tick.
func (m *Motor) SetMotorVolts(volts float32) {
	m.motorVolts.Store(volts)
	m.output(volts, m.battery.BatteryVolts())
}

// Stop disables both terms, leaves closed loop and drives zero
func (m *Motor) Stop() {
	m.SetMode(ModeOff)
	m.SetClosedLoop(false)
	m.ResetControllers()
	m.SetMotorVolts(0)
}

// MotorVolts returns the last commanded voltage
func (m *Motor) MotorVolts() float32 {
	return m.motorVolts.Load()
}

// FeedbackVolts returns the feedback part of the last command
func (m *Motor) FeedbackVolts() float32 {
	return m.ctrlVolts.Load()
}

// FeedforwardVolts returns the feedforward part of the last command
func (m *Motor) FeedforwardVolts() float32 {
	return m.ffVolts.Load()
}

// Duty returns the signed duty last written, before polarity
func (m *Motor) Duty() int32 {
	return m.duty.Load()
}

// OutputErrors returns how many pin writes failed
func (m *Motor) OutputErrors() uint32 {
	return m.outErrors.Load()
}
