package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"motorlab/core"
	"motorlab/settings"
	"motorlab/trial"
)

// Identity is the reply to *IDN?
const Identity = "MOTORLAB V1.0"

// ErrBadArgument is returned when a command argument is not a number
var ErrBadArgument = errors.New("bad argument")

// errNoRobot is returned by trial commands on an interpreter without a robot
var errNoRobot = errors.New("no robot attached")

func (in *Interpreter) registerCommands() {
	r := in.reg
	r.Register("*IDN?", "Request robot ID", in.sendID)
	r.Register("$", "Display all Settings", in.printSettings)
	r.Register("!", "Write settings to storage", in.writeSettings)
	r.Register("@", "Read settings from storage", in.readSettings)
	r.Register("#", "Initialise settings to defaults", in.initSettings)
	help := map[string]string{
		"KM":      "Set/Get Km",
		"TM":      "Set/Get Tm",
		"KP":      "Set/Get Kp",
		"KD":      "Set/Get Kd",
		"ZETA":    "Set/Get Damping Ratio, zeta",
		"TD":      "Set/Get settling time, Td",
		"BIASFF":  "Set/Get bias feed forward",
		"SPEEDFF": "Set/Get speed feedforward",
		"ACCFF":   "Set/Get acceleration feedforward",
	}
	for _, name := range settings.Names() {
		r.Register(name, help[name], in.setGet)
	}
	r.Register("FLAGS", "Set/Get control flags (1 = speed error)", in.flags)
	r.Register("BATT", "Get battery Voltage", in.batteryVolts)
	r.Register("MOVE", "Execute move profile: mode dist top end accel", in.move)
	r.Register("STEP", "Execute single step: dist", in.step)
	r.Register("VOLTS", "Execute open loop: volts ms", in.openLoop)
	r.Register("ENC", "Show encoder state", in.encoders)
	r.Register("TIMING", "Dump the timing ring", in.timing)
	r.Register("DEBUG", "Event trace: on|off", in.debug)
	r.Register("HELP", "List commands", in.help)
}

// floatArg parses args[i], returning def when it is absent
func floatArg(args []string, i int, def float32) (float32, error) {
	if i >= len(args) {
		return def, nil
	}
	v, err := strconv.ParseFloat(args[i], 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadArgument, args[i])
	}
	return float32(v), nil
}

func intArg(args []string, i int, def int) (int, error) {
	if i >= len(args) {
		return def, nil
	}
	v, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadArgument, args[i])
	}
	return v, nil
}

func (in *Interpreter) sendID(ctx context.Context, w io.Writer, args []string) error {
	fmt.Fprintln(w, Identity)
	return nil
}

func (in *Interpreter) printSettings(ctx context.Context, w io.Writer, args []string) error {
	in.settings.Print(w)
	return nil
}

func (in *Interpreter) writeSettings(ctx context.Context, w io.Writer, args []string) error {
	return in.settings.Write()
}

func (in *Interpreter) readSettings(ctx context.Context, w io.Writer, args []string) error {
	if err := in.settings.Read(); err != nil {
		return err
	}
	return in.apply()
}

func (in *Interpreter) initSettings(ctx context.Context, w io.Writer, args []string) error {
	in.settings.Init()
	return in.apply()
}

// setGet handles the tunable values: NAME prints, NAME value sets and prints
func (in *Interpreter) setGet(ctx context.Context, w io.Writer, args []string) error {
	if len(args) > 1 {
		v, err := floatArg(args, 1, 0)
		if err != nil {
			return err
		}
		if _, err := in.settings.Set(args[0], v); err != nil {
			return err
		}
	}
	line, err := in.settings.Format(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(w, line)
	if len(args) > 1 {
		return in.apply()
	}
	return nil
}

// apply installs the working calibration on the axis if it is usable
func (in *Interpreter) apply() error {
	cal, err := in.settings.Validated()
	if err != nil {
		return err
	}
	if in.robot != nil {
		in.robot.Axis().ApplyCalibration(cal)
	}
	return nil
}

func (in *Interpreter) flags(ctx context.Context, w io.Writer, args []string) error {
	if len(args) > 1 {
		v, err := strconv.ParseUint(args[1], 0, 8)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrBadArgument, args[1])
		}
		in.settings.SetFlags(uint8(v))
	}
	fmt.Fprintf(w, "FLAGS = %d\n", in.settings.Flags())
	if len(args) > 1 {
		return in.apply()
	}
	return nil
}

func (in *Interpreter) batteryVolts(ctx context.Context, w io.Writer, args []string) error {
	if in.robot == nil {
		return errNoRobot
	}
	fmt.Fprintf(w, "%.2f Volts\n", in.robot.BatteryVolts())
	return nil
}

func (in *Interpreter) move(ctx context.Context, w io.Writer, args []string) error {
	if in.robot == nil {
		return errNoRobot
	}
	mode, err := intArg(args, 1, 0)
	if err != nil {
		return err
	}
	var p [4]float32
	for i := range p {
		if p[i], err = floatArg(args, i+2, 0); err != nil {
			return err
		}
	}
	_, err = in.robot.Move(ctx, trial.MoveMode(mode), p[0], p[1], p[2], p[3])
	return err
}

func (in *Interpreter) step(ctx context.Context, w io.Writer, args []string) error {
	if in.robot == nil {
		return errNoRobot
	}
	dist, err := floatArg(args, 1, 0)
	if err != nil {
		return err
	}
	_, err = in.robot.Step(ctx, dist)
	return err
}

// openLoop runs an open loop trial and reports the fitted motor model
func (in *Interpreter) openLoop(ctx context.Context, w io.Writer, args []string) error {
	if in.robot == nil {
		return errNoRobot
	}
	volts, err := floatArg(args, 1, trial.DefaultOpenLoopVolts)
	if err != nil {
		return err
	}
	ms, err := intArg(args, 2, trial.DefaultOpenLoopMS)
	if err != nil {
		return err
	}
	if ms <= 0 {
		return fmt.Errorf("%w: duration %d ms", ErrBadArgument, ms)
	}
	samples, err := in.robot.OpenLoop(ctx, volts, uint32(ms))
	if err != nil {
		return err
	}
	cal := in.settings.Calibration()
	model, err := trial.Identify(samples, volts, cal.BiasFF, uint32(ms))
	if err != nil {
		fmt.Fprintf(w, "# %v\n", err)
		return nil
	}
	fmt.Fprintf(w, "# KM = %.1f TM = %.6f\n", model.Km, model.Tm)
	return nil
}

func (in *Interpreter) encoders(ctx context.Context, w io.Writer, args []string) error {
	if in.robot == nil {
		return errNoRobot
	}
	axis := in.robot.Axis()
	fmt.Fprintln(w, "Encoders:")
	fmt.Fprintf(w, "  counts %d distance %.2f speed %.2f illegal %d\n",
		axis.Encoder.Counts(), axis.Encoder.Distance(), axis.Encoder.Speed(), axis.Decoder.Illegal())
	fmt.Fprintf(w, "  ticks %d late %d\n", axis.Scheduler.Ticks(), axis.Scheduler.LateEvents())
	return nil
}

func (in *Interpreter) timing(ctx context.Context, w io.Writer, args []string) error {
	core.WriteTimingRing(func(s string) { fmt.Fprintln(w, s) })
	return nil
}

// debug switches the core event trace on the debug writer
func (in *Interpreter) debug(ctx context.Context, w io.Writer, args []string) error {
	if len(args) > 1 {
		switch args[1] {
		case "ON", "1":
			core.SetDebugEnabled(true)
		case "OFF", "0":
			core.SetDebugEnabled(false)
		default:
			return fmt.Errorf("%w: %q", ErrBadArgument, args[1])
		}
	}
	state := "OFF"
	if core.IsDebugEnabled() {
		state = "ON"
	}
	fmt.Fprintf(w, "DEBUG = %s\n", state)
	return nil
}

func (in *Interpreter) help(ctx context.Context, w io.Writer, args []string) error {
	in.reg.Help(w)
	return nil
}
