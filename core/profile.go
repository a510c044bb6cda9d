package core

// Phase is the state of a trapezoidal move
type Phase uint8

const (
	PhaseFinished Phase = iota
	PhaseAccelerating
	PhaseCruising
	PhaseDecelerating
)

func (p Phase) String() string {
	switch p {
	case PhaseAccelerating:
		return "accelerating"
	case PhaseCruising:
		return "cruising"
	case PhaseDecelerating:
		return "decelerating"
	default:
		return "finished"
	}
}

// Move defaults used when a Start argument is zero
const (
	DefaultMoveDistance = 1440  // degrees
	DefaultMoveSpeed    = 3600  // degrees/s
	DefaultMoveAccel    = 14400 // degrees/s^2
)

const (
	// FinishTolerance is the remaining distance at which a move is complete
	FinishTolerance = 0.125 // degrees

	// CreepSpeed floors the deceleration phase of a move that ends at rest
	// so the setpoint always reaches the target.
	CreepSpeed = 5.0 // degrees/s
)

// Profile generates a trapezoidal position/speed setpoint, one step per
// control tick. Distances are degrees, speeds degrees/s.
type Profile struct {
	// All fields are guarded by the critical section.
	position float32 // setpoint position
	speed    float32 // setpoint speed magnitude
	accelNow float32 // signed acceleration applied on the last tick
	target   float32 // absolute target position
	topSpeed float32
	endSpeed float32
	accel    float32
	sign     float32 // direction of travel, +1 or -1
	phase    Phase
}

// NewProfile returns an idle profile at position zero
func NewProfile() *Profile {
	return &Profile{sign: 1}
}

// Start begins a move of distance from position zero. Zero arguments other
// than endSpeed take the Default* values. A negative distance moves backwards.
func (p *Profile) Start(distance, topSpeed, endSpeed, accel float32) {
	state := disableInterrupts()
	p.position = 0
	p.speed = 0
	p.begin(distance, topSpeed, endSpeed, accel)
	restoreInterrupts(state)
}

// Continue begins a move of distance relative to the current setpoint,
// keeping the current setpoint speed.
func (p *Profile) Continue(distance, topSpeed, endSpeed, accel float32) {
	state := disableInterrupts()
	p.begin(distance, topSpeed, endSpeed, accel)
	restoreInterrupts(state)
}

// begin loads a move relative to the current position
func (p *Profile) begin(distance, topSpeed, endSpeed, accel float32) {
	if distance == 0 {
		distance = DefaultMoveDistance
	}
	if topSpeed == 0 {
		topSpeed = DefaultMoveSpeed
	}
	if accel == 0 {
		accel = DefaultMoveAccel
	}
	p.sign = 1
	if distance < 0 {
		p.sign = -1
		distance = -distance
	}
	p.target = p.position + p.sign*distance
	p.topSpeed = abs32(topSpeed)
	p.endSpeed = min32(abs32(endSpeed), p.topSpeed)
	p.accel = abs32(accel)
	p.accelNow = 0
	p.phase = PhaseAccelerating
	if distance < FinishTolerance {
		p.phase = PhaseFinished
		p.speed = p.endSpeed
	}
}

// SetPosition jumps the setpoint to target with zero speed.
// The profile is finished afterwards; this is how step trials are made.
func (p *Profile) SetPosition(target float32) {
	state := disableInterrupts()
	p.position = target
	p.target = target
	p.speed = 0
	p.accelNow = 0
	p.phase = PhaseFinished
	restoreInterrupts(state)
}

// Reset returns the profile to rest at position zero
func (p *Profile) Reset() {
	p.SetPosition(0)
}

// Update advances the setpoint by one control tick
func (p *Profile) Update() {
	state := disableInterrupts()
	p.step()
	restoreInterrupts(state)
}

// step advances one tick; caller holds the critical section
func (p *Profile) step() {
	if p.phase == PhaseFinished {
		p.accelNow = 0
		return
	}
	prev := p.speed

	remaining := p.sign * (p.target - p.position)
	if p.phase != PhaseDecelerating && remaining <= p.brakingDistance() {
		p.phase = PhaseDecelerating
	}

	dv := p.accel * LoopInterval
	if p.phase == PhaseDecelerating {
		floor := p.endSpeed
		if floor == 0 {
			floor = CreepSpeed
		}
		if p.speed > floor {
			p.speed = max32(p.speed-dv, floor)
		} else {
			p.speed = min32(p.speed+dv, floor)
		}
	} else {
		if p.speed > p.topSpeed {
			p.speed = max32(p.speed-dv, p.topSpeed)
		} else {
			p.speed = min32(p.speed+dv, p.topSpeed)
		}
		if p.speed == p.topSpeed {
			p.phase = PhaseCruising
		} else {
			p.phase = PhaseAccelerating
		}
	}

	p.position += p.sign * p.speed * LoopInterval
	p.accelNow = p.sign * (p.speed - prev) * LoopFrequency

	if p.sign*(p.target-p.position) < FinishTolerance {
		p.phase = PhaseFinished
		p.speed = p.endSpeed
	}
}

// brakingDistance is the distance needed to slow to the end speed
func (p *Profile) brakingDistance() float32 {
	if p.speed <= p.endSpeed {
		return 0
	}
	return (p.speed*p.speed - p.endSpeed*p.endSpeed) / (2 * p.accel)
}

// Position returns the setpoint position in degrees
func (p *Profile) Position() float32 {
	state := disableInterrupts()
	v := p.position
	restoreInterrupts(state)
	return v
}

// Speed returns the signed setpoint speed in degrees/s
func (p *Profile) Speed() float32 {
	state := disableInterrupts()
	v := p.sign * p.speed
	restoreInterrupts(state)
	return v
}

// Acceleration returns the signed acceleration applied on the last tick
func (p *Profile) Acceleration() float32 {
	state := disableInterrupts()
	v := p.accelNow
	restoreInterrupts(state)
	return v
}

// Setpoint returns position, signed speed and acceleration in one read
func (p *Profile) Setpoint() (position, speed, accel float32) {
	state := disableInterrupts()
	position, speed, accel = p.position, p.sign*p.speed, p.accelNow
	restoreInterrupts(state)
	return position, speed, accel
}

// Phase returns the current move phase
func (p *Profile) Phase() Phase {
	state := disableInterrupts()
	ph := p.phase
	restoreInterrupts(state)
	return ph
}

// IsFinished reports whether the move has reached its target
func (p *Profile) IsFinished() bool {
	return p.Phase() == PhaseFinished
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
