package trial

import (
	"fmt"
	"io"

	"motorlab/core"
)

// Telemetry table headers
const (
	ControllerHeader = "$time set_pos robot_pos set_speed robot_speed ctrl_volts ff_volts motor_volts"
	OpenLoopHeader   = "$time(ms) Volts(V) Speed(deg/s)"
)

// Reporter writes space separated telemetry rows. Header rows start with '$'
// and comment rows with '#'. The first write error is kept and later writes
// are dropped.
type Reporter struct {
	w   io.Writer
	err error
}

// NewReporter returns a reporter writing to w
func NewReporter(w io.Writer) *Reporter {
	if w == nil {
		w = io.Discard
	}
	return &Reporter{w: w}
}

func (r *Reporter) printf(format string, args ...interface{}) {
	if r.err != nil {
		return
	}
	_, r.err = fmt.Fprintf(r.w, format, args...)
}

// Comment writes a '#' line
func (r *Reporter) Comment(format string, args ...interface{}) {
	r.printf("# "+format+"\n", args...)
}

// End writes the bare '#' that closes a trial table
func (r *Reporter) End() {
	r.printf("#\n")
}

// ControllerHeader starts a controller table
func (r *Reporter) ControllerHeader() {
	r.printf("%s\n", ControllerHeader)
}

// Controller writes one controller row sampled from axis
func (r *Reporter) Controller(elapsedMS uint32, axis *core.Axis) {
	pos, speed, _ := axis.Profile.Setpoint()
	r.printf("%d %.2f %.2f %.2f %.2f %.2f %.2f %.2f\n",
		elapsedMS,
		pos,
		axis.Encoder.Distance(),
		speed,
		axis.Encoder.Speed(),
		axis.Motor.FeedbackVolts(),
		axis.Motor.FeedforwardVolts(),
		axis.Motor.MotorVolts(),
	)
}

// OpenLoopHeader starts an open loop table
func (r *Reporter) OpenLoopHeader(volts float32) {
	r.printf("#Open Loop Identification - %.1f Volts\n", volts)
	r.printf("%s\n", OpenLoopHeader)
}

// OpenLoop writes one open loop row
func (r *Reporter) OpenLoop(s Sample) {
	r.printf("%d %.1f %.1f\n", s.TimeMS, s.Volts, s.Speed)
}

// Err returns the first write error
func (r *Reporter) Err() error {
	return r.err
}
