package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"motorlab/core"
	"motorlab/settings"
	"motorlab/sim"
	"motorlab/trial"
)

func newBench(out io.Writer) (*Interpreter, *trial.Robot, *settings.MemoryStore) {
	cfg := sim.DefaultConfig()
	rig := sim.New(cfg)
	cal := core.DefaultCalibration(0, 0)
	axis, err := core.NewAxis(rig.AxisConfig(cal, core.FixedBattery(cfg.BatteryVolts)))
	if err != nil {
		panic(err)
	}
	robot := trial.NewRobot(axis, core.NewLockstep(axis.Scheduler, rig), nil, trial.Options{})
	store := &settings.MemoryStore{}
	return NewInterpreter(robot, settings.New(cal, store), out), robot, store
}

func TestTokenize(t *testing.T) {
	Convey("Tokenize", t, func() {
		Convey("splits on spaces, commas and equals signs", func() {
			args, err := Tokenize("km = 2000")
			So(err, ShouldBeNil)
			So(args, ShouldResemble, []string{"KM", "2000"})

			args, err = Tokenize("MOVE 0,360, 1800 0 7200")
			So(err, ShouldBeNil)
			So(args, ShouldResemble, []string{"MOVE", "0", "360", "1800", "0", "7200"})
		})

		Convey("keeps single character commands", func() {
			for _, c := range []string{"#", "$", "!", "@", "?"} {
				args, err := Tokenize(c)
				So(err, ShouldBeNil)
				So(args, ShouldResemble, []string{c})
			}
		})

		Convey("returns nothing for a blank line", func() {
			args, err := Tokenize("   ")
			So(err, ShouldBeNil)
			So(args, ShouldBeEmpty)
		})
	})
}

func TestRegistry(t *testing.T) {
	Convey("Given a registry", t, func() {
		r := NewRegistry()
		var got []string
		r.Register("ping", "Reply", func(ctx context.Context, w io.Writer, args []string) error {
			got = args
			return nil
		})

		Convey("names are stored upper case and found in any case", func() {
			cmd, ok := r.Lookup("PiNg")
			So(ok, ShouldBeTrue)
			So(cmd.Name, ShouldEqual, "PING")
		})

		Convey("a second registration keeps the first handler", func() {
			first, _ := r.Lookup("PING")
			again := r.Register("PING", "other", nil)
			So(again, ShouldEqual, first)
			So(r.Count(), ShouldEqual, 1)
		})

		Convey("dispatch passes the canonical name", func() {
			err := r.Dispatch(context.Background(), io.Discard, []string{"ping", "1"})
			So(err, ShouldBeNil)
			So(got, ShouldResemble, []string{"PING", "1"})
		})

		Convey("unknown commands are an error", func() {
			err := r.Dispatch(context.Background(), io.Discard, []string{"PONG"})
			So(errors.Is(err, ErrUnknownCommand), ShouldBeTrue)
		})

		Convey("help pads names to ten columns", func() {
			var buf bytes.Buffer
			r.Help(&buf)
			So(buf.String(), ShouldEqual, "1 commands\nPING      Reply\n")
		})
	})
}

func TestCommands(t *testing.T) {
	Convey("Given an interpreter on the simulated bench", t, func() {
		var out bytes.Buffer
		in, robot, store := newBench(&out)
		ctx := context.Background()

		Convey("*IDN? identifies the firmware", func() {
			So(in.Execute(ctx, "*idn?"), ShouldBeNil)
			So(out.String(), ShouldEqual, "MOTORLAB V1.0\n")
		})

		Convey("a tunable prints its value", func() {
			So(in.Execute(ctx, "KM"), ShouldBeNil)
			So(out.String(), ShouldEqual, "KM = 2064.7\n")
		})

		Convey("setting a tunable clamps it and reaches the controller", func() {
			So(in.Execute(ctx, "KP = 20"), ShouldBeNil)
			So(out.String(), ShouldEqual, "KP = 10.000000\n")
			So(robot.Axis().Motor.Calibration().Kp, ShouldEqual, float32(10))
		})

		Convey("setting a model parameter re-derives the gains", func() {
			before := robot.Axis().Motor.Calibration().Kp
			So(in.Execute(ctx, "TD 0.1"), ShouldBeNil)
			So(robot.Axis().Motor.Calibration().Kp, ShouldBeGreaterThan, before)
		})

		Convey("an unusable calibration is reported and not applied", func() {
			err := in.Execute(ctx, "KM 0")
			So(errors.Is(err, core.ErrInvalidCalibration), ShouldBeTrue)
			So(robot.Axis().Motor.Calibration().Km, ShouldEqual, float32(core.DefaultKm))
		})

		Convey("a bad number is rejected", func() {
			err := in.Execute(ctx, "KM fast")
			So(errors.Is(err, ErrBadArgument), ShouldBeTrue)
		})

		Convey("settings round trip through the store", func() {
			So(in.Execute(ctx, "BIASFF 0.3"), ShouldBeNil)
			So(in.Execute(ctx, "!"), ShouldBeNil)
			saved, err := store.Load()
			So(err, ShouldBeNil)
			So(saved.BiasFF, ShouldAlmostEqual, 0.3, 1e-6)

			So(in.Execute(ctx, "#"), ShouldBeNil)
			So(robot.Axis().Motor.Calibration().BiasFF, ShouldEqual, float32(core.DefaultBiasFF))

			So(in.Execute(ctx, "@"), ShouldBeNil)
			So(robot.Axis().Motor.Calibration().BiasFF, ShouldAlmostEqual, 0.3, 1e-6)
		})

		Convey("$ prints every setting", func() {
			So(in.Execute(ctx, "$"), ShouldBeNil)
			for _, name := range settings.Names() {
				So(out.String(), ShouldContainSubstring, name+" = ")
			}
		})

		Convey("BATT prints the supply voltage", func() {
			So(in.Execute(ctx, "BATT"), ShouldBeNil)
			So(out.String(), ShouldEqual, "8.00 Volts\n")
		})

		Convey("unknown commands are reported", func() {
			err := in.Execute(ctx, "FLY")
			So(errors.Is(err, ErrUnknownCommand), ShouldBeTrue)
			So(out.String(), ShouldEqual, "\"FLY\" Unknown Command\n")
		})

		Convey("STEP runs a trial with telemetry on the output", func() {
			So(in.Execute(ctx, "STEP 20"), ShouldBeNil)
			So(out.String(), ShouldStartWith, "# Controller Only\n"+trial.ControllerHeader)
			So(robot.LastResult.Setpoint, ShouldEqual, float32(20))
		})

		Convey("MOVE rejects an unknown mode", func() {
			err := in.Execute(ctx, "MOVE 7")
			So(errors.Is(err, trial.ErrInvalidMode), ShouldBeTrue)
		})

		Convey("VOLTS reports the identified model", func() {
			So(in.Execute(ctx, "VOLTS 3 1000"), ShouldBeNil)
			So(out.String(), ShouldStartWith, "#Open Loop Identification - 3.0 Volts\n")
			So(out.String(), ShouldContainSubstring, "# KM = ")
		})

		Convey("ENC shows the encoder", func() {
			So(in.Execute(ctx, "ENC"), ShouldBeNil)
			So(out.String(), ShouldStartWith, "Encoders:\n  counts 0 distance 0.00")
		})

		Convey("TIMING dumps the ring", func() {
			So(in.Execute(ctx, "TIMING"), ShouldBeNil)
			So(out.String(), ShouldStartWith, "[TIMING] === Timing Ring Dump ===\n")
		})

		Convey("FLAGS selects the speed error form", func() {
			So(in.Execute(ctx, "FLAGS 1"), ShouldBeNil)
			So(out.String(), ShouldEqual, "FLAGS = 1\n")
			So(robot.Axis().Motor.Calibration().ControlFlags, ShouldEqual, core.FlagSpeedError)

			So(errors.Is(in.Execute(ctx, "FLAGS 300"), ErrBadArgument), ShouldBeTrue)
		})

		Convey("DEBUG switches the event trace", func() {
			defer core.SetDebugEnabled(false)
			var trace []string
			core.SetDebugWriter(func(s string) { trace = append(trace, s) })
			defer core.SetDebugWriter(func(string) {})

			So(in.Execute(ctx, "DEBUG ON"), ShouldBeNil)
			So(out.String(), ShouldEqual, "DEBUG = ON\n")
			So(core.IsDebugEnabled(), ShouldBeTrue)

			So(in.Execute(ctx, "STEP 10"), ShouldBeNil)
			So(trace, ShouldNotBeEmpty)
			So(trace[0], ShouldStartWith, "[EVENT] ")

			out.Reset()
			So(in.Execute(ctx, "DEBUG OFF"), ShouldBeNil)
			So(out.String(), ShouldEqual, "DEBUG = OFF\n")
			So(errors.Is(in.Execute(ctx, "DEBUG MAYBE"), ErrBadArgument), ShouldBeTrue)
		})

		Convey("? and HELP list the commands", func() {
			So(in.Execute(ctx, "?"), ShouldBeNil)
			first := out.String()
			out.Reset()
			So(in.Execute(ctx, "HELP"), ShouldBeNil)
			So(out.String(), ShouldEqual, first)
			So(first, ShouldContainSubstring, "MOVE      ")
		})
	})
}

func TestProcessByte(t *testing.T) {
	Convey("Given serial input", t, func() {
		var out bytes.Buffer
		in, _, _ := newBench(&out)
		ctx := context.Background()

		Convey("characters are upper cased, echoed and run on line feed", func() {
			So(in.Process(ctx, []byte("*idn?\r\n")), ShouldBeNil)
			So(out.String(), ShouldEqual, "*IDN?\nMOTORLAB V1.0\n> ")
		})

		Convey("backspace edits the line", func() {
			So(in.Process(ctx, []byte("kmx\bz\b\n")), ShouldBeNil)
			So(out.String(), ShouldEqual, "KMX\b \bZ\b \b\nKM = 2064.7\n> ")
		})

		Convey("echo can be turned off", func() {
			So(in.Process(ctx, []byte("echo off\n")), ShouldBeNil)
			So(in.Echo(), ShouldBeFalse)
			out.Reset()
			So(in.Process(ctx, []byte("km\n")), ShouldBeNil)
			So(out.String(), ShouldEqual, "KM = 2064.7\n> ")
		})

		Convey("long lines are truncated", func() {
			in.SetEcho(false)
			line := "KM" + strings.Repeat(" ", 40) + "1\n"
			So(in.Process(ctx, []byte(line)), ShouldBeNil)
			So(out.String(), ShouldEqual, "KM = 2064.7\n> ")
		})

		Convey("errors are returned but input continues", func() {
			err := in.Process(ctx, []byte("nope\n*idn?\n"))
			So(errors.Is(err, ErrUnknownCommand), ShouldBeTrue)
			So(out.String(), ShouldEndWith, "MOTORLAB V1.0\n> ")
		})
	})
}
