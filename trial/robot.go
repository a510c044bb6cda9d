// Package trial runs bench trials on one motor axis: open loop
// identification, controller step responses and profiled moves.
// Trials only start, stop and observe the control pipeline; all control
// computation happens on the scheduler tick.
package trial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"motorlab/core"
)

var (
	// ErrTrialTimeout is returned when a trial runs past Options.MaxDuration
	ErrTrialTimeout = errors.New("trial timed out")

	// ErrInvalidMode is returned by Move for an unknown control mode
	ErrInvalidMode = errors.New("invalid move mode")
)

// Trial defaults
const (
	DefaultOpenLoopVolts = 3.0
	DefaultOpenLoopMS    = 2000
	DefaultStepDistance  = 30.0 // degrees
	DefaultReportTicks   = 5
	DefaultMaxDuration   = 10 * time.Second
	DefaultMaxVolts      = 6.0

	openLoopCoastMS = 200
	stepRestMS      = 100
	stepEndMS       = 600
	stepTailMS      = 100
	moveTailMS      = 200
)

// MoveMode selects which control terms a profiled move uses
type MoveMode int

const (
	MoveFull            MoveMode = 0
	MoveFeedbackOnly    MoveMode = 1
	MoveFeedforwardOnly MoveMode = 2
)

func (m MoveMode) String() string {
	switch m {
	case MoveFull:
		return "Full Control"
	case MoveFeedbackOnly:
		return "No Feedforward"
	case MoveFeedforwardOnly:
		return "Only Feedforward"
	default:
		return fmt.Sprintf("mode %d", int(m))
	}
}

// Options tunes trial execution. Zero fields take the defaults.
type Options struct {
	ReportTicks uint32        // control ticks between telemetry rows
	MaxDuration time.Duration // elapsed-time bound on any trial
	MaxVolts    float32       // limit on open loop drive voltage
}

func (o Options) withDefaults() Options {
	if o.ReportTicks == 0 {
		o.ReportTicks = DefaultReportTicks
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = DefaultMaxDuration
	}
	if o.MaxVolts <= 0 {
		o.MaxVolts = DefaultMaxVolts
	}
	return o
}

// Sample is one open loop telemetry row
type Sample struct {
	TimeMS uint32
	Volts  float32
	Speed  float32 // degrees/s
}

// Result summarises a closed loop trial
type Result struct {
	Setpoint  float32 // final setpoint position, degrees
	Position  float32 // final measured position, degrees
	ElapsedMS uint32
}

// Error returns setpoint minus measured position
func (r Result) Error() float32 {
	return r.Setpoint - r.Position
}

// Robot orchestrates trials on one axis. Only one trial runs at a time;
// Robot is not safe for concurrent use.
type Robot struct {
	axis *core.Axis
	wait core.TickWaiter
	rep  *Reporter
	opts Options

	nextReport uint32 // elapsed ms of the next telemetry row

	// LastResult survives drive resets
	LastResult Result
}

// NewRobot creates an orchestrator. wait paces the trial loops and must
// return once per control tick of axis.Scheduler.
func NewRobot(axis *core.Axis, wait core.TickWaiter, out io.Writer, opts Options) *Robot {
	r := &Robot{
		axis: axis,
		wait: wait,
		rep:  NewReporter(out),
		opts: opts.withDefaults(),
	}
	r.ResetDrive()
	return r
}

// Axis returns the driven axis
func (r *Robot) Axis() *core.Axis {
	return r.axis
}

// Options returns the effective options
func (r *Robot) Options() Options {
	return r.opts
}

// SetOutput redirects telemetry
func (r *Robot) SetOutput(w io.Writer) {
	r.rep = NewReporter(w)
}

// BatteryVolts returns the measured supply voltage
func (r *Robot) BatteryVolts() float32 {
	return r.axis.Battery.BatteryVolts()
}

// ResetDrive puts profile, encoder and controller history in a known state
// with the motor at zero volts. Control modes are left unchanged.
func (r *Robot) ResetDrive() {
	r.axis.Motor.SetMotorVolts(0)
	r.axis.Encoder.Reset()
	r.axis.Profile.Reset()
	r.axis.Motor.ResetControllers()
}

// EnableDrive resets the drive and closes the loop with feedback on
func (r *Robot) EnableDrive() {
	r.ResetDrive()
	r.axis.Motor.SetClosedLoop(true)
	r.axis.Motor.EnableControllers()
}

// DisableDrive resets the drive and turns every control term off
func (r *Robot) DisableDrive() {
	r.ResetDrive()
	r.axis.Motor.Stop()
}

// elapsedMS returns milliseconds of control ticks since start
func (r *Robot) elapsedMS(start uint32) uint32 {
	return core.TicksToMS(r.axis.Scheduler.Ticks() - start)
}

// run waits tick by tick until done reports true, calling report every
// ReportTicks. It returns ErrTrialTimeout once the trial has run for longer
// than MaxDuration.
func (r *Robot) run(ctx context.Context, start uint32, untilMS uint32, done func() bool, report func(elapsed uint32)) error {
	limit := uint32(r.opts.MaxDuration / time.Millisecond)
	reportMS := core.TicksToMS(r.opts.ReportTicks)
	for {
		elapsed := r.elapsedMS(start)
		if report != nil && elapsed >= r.nextReport {
			report(elapsed)
			r.nextReport = elapsed + reportMS
		}
		if done != nil && done() {
			return nil
		}
		if done == nil && elapsed >= untilMS {
			return nil
		}
		if elapsed > limit {
			return fmt.Errorf("%w after %d ms", ErrTrialTimeout, elapsed)
		}
		if err := r.wait.WaitTick(ctx); err != nil {
			return err
		}
	}
}

// begin marks the start of a trial and returns its start tick
func (r *Robot) begin(kind uint8) uint32 {
	start := r.axis.Scheduler.Ticks()
	r.nextReport = 0
	core.RecordTiming(core.EvtTrialStart, kind, 0, start, 0)
	return start
}

// finish records the end of a trial and returns err, stopping the drive
// first if the trial failed.
func (r *Robot) finish(kind uint8, start uint32, err error) error {
	if err != nil {
		r.DisableDrive()
		core.RecordTiming(core.EvtTrialAbort, kind, 0, r.elapsedMS(start), 0)
		r.rep.Comment("aborted: %v", err)
		return err
	}
	core.RecordTiming(core.EvtTrialEnd, kind, 0, r.elapsedMS(start), 0)
	if werr := r.rep.Err(); werr != nil {
		return fmt.Errorf("telemetry: %w", werr)
	}
	return nil
}

// Trial kinds recorded in the timing ring
const (
	kindOpenLoop uint8 = iota + 1
	kindStep
	kindMove
)

// OpenLoop drives the motor at a literal voltage for durationMS, then lets
// it coast for 200 ms, sampling speed every report interval. The voltage is
// limited to Options.MaxVolts.
func (r *Robot) OpenLoop(ctx context.Context, volts float32, durationMS uint32) ([]Sample, error) {
	if volts > r.opts.MaxVolts {
		volts = r.opts.MaxVolts
	} else if volts < -r.opts.MaxVolts {
		volts = -r.opts.MaxVolts
	}

	mot := r.axis.Motor
	r.rep.OpenLoopHeader(volts)
	r.axis.Encoder.Reset()
	mot.DisableControllers()
	mot.SetClosedLoop(false)
	mot.SetMotorVolts(volts)

	samples := make([]Sample, 0, (durationMS+openLoopCoastMS)/core.TicksToMS(r.opts.ReportTicks)+1)
	record := func(elapsed uint32) {
		s := Sample{TimeMS: elapsed, Volts: mot.MotorVolts(), Speed: r.axis.Encoder.Speed()}
		samples = append(samples, s)
		r.rep.OpenLoop(s)
	}

	start := r.begin(kindOpenLoop)
	err := r.run(ctx, start, durationMS, nil, record)
	if err == nil {
		mot.SetMotorVolts(0)
		err = r.run(ctx, start, durationMS+openLoopCoastMS, nil, record)
	}
	mot.SetClosedLoop(true)
	return samples, r.finish(kindOpenLoop, start, err)
}

// Step runs a controller-only step response: feedforward off, feedback on,
// 100 ms at rest, then a step of distance degrees held until 600 ms.
// A zero distance takes DefaultStepDistance.
func (r *Robot) Step(ctx context.Context, distance float32) (Result, error) {
	if distance == 0 {
		distance = DefaultStepDistance
	}
	r.rep.Comment("Controller Only")
	r.EnableDrive()
	r.axis.Motor.DisableFeedForward()
	r.axis.Motor.EnableControllers()

	r.rep.ControllerHeader()
	report := func(elapsed uint32) { r.rep.Controller(elapsed, r.axis) }
	start := r.begin(kindStep)
	err := r.run(ctx, start, stepRestMS, nil, report)
	if err == nil {
		r.axis.Profile.SetPosition(distance)
		err = r.run(ctx, start, stepEndMS, nil, report)
	}
	if err == nil {
		r.axis.Motor.SetMotorVolts(0)
		err = r.run(ctx, start, stepEndMS+stepTailMS, nil, report)
	}
	res := r.result(start)
	if err != nil {
		return res, r.finish(kindStep, start, err)
	}
	r.DisableDrive()
	r.rep.End()
	return res, r.finish(kindStep, start, nil)
}

// Move runs a trapezoidal profiled move. Zero distance, topSpeed or accel
// take the profile defaults. The trial ends 200 ms after the profile
// finishes, or with ErrTrialTimeout if it never does.
func (r *Robot) Move(ctx context.Context, mode MoveMode, distance, topSpeed, endSpeed, accel float32) (Result, error) {
	if mode < MoveFull || mode > MoveFeedforwardOnly {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}
	if distance == 0 {
		distance = core.DefaultMoveDistance
	}
	if topSpeed == 0 {
		topSpeed = core.DefaultMoveSpeed
	}
	if accel == 0 {
		accel = core.DefaultMoveAccel
	}

	mot := r.axis.Motor
	r.EnableDrive()
	r.rep.Comment("MOVE %d %g %g %g %g", int(mode), distance, topSpeed, endSpeed, accel)
	r.rep.Comment("%s", mode)
	switch mode {
	case MoveFull:
		mot.EnableFeedForward()
		mot.EnableControllers()
	case MoveFeedbackOnly:
		mot.DisableFeedForward()
		mot.EnableControllers()
	case MoveFeedforwardOnly:
		mot.EnableFeedForward()
		mot.DisableControllers()
	}

	r.rep.ControllerHeader()
	report := func(elapsed uint32) { r.rep.Controller(elapsed, r.axis) }
	start := r.begin(kindMove)
	r.axis.Profile.Start(distance, topSpeed, endSpeed, accel)
	err := r.run(ctx, start, 0, r.axis.Profile.IsFinished, report)
	if err == nil {
		done := r.elapsedMS(start)
		core.RecordTiming(core.EvtProfileDone, kindMove, 0, r.axis.Scheduler.Ticks(), done)
		mot.SetMotorVolts(0)
		mot.DisableControllers()
		err = r.run(ctx, start, done+moveTailMS, nil, report)
	}
	res := r.result(start)
	if err != nil {
		return res, r.finish(kindMove, start, err)
	}
	r.DisableDrive()
	r.rep.End()
	return res, r.finish(kindMove, start, nil)
}

func (r *Robot) result(start uint32) Result {
	res := Result{
		Setpoint:  r.axis.Profile.Position(),
		Position:  r.axis.Encoder.Distance(),
		ElapsedMS: r.elapsedMS(start),
	}
	r.LastResult = res
	return res
}
