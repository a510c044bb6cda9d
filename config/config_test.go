package config

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"motorlab/core"
)

const testYaml = `
sim: true
baud: 57600
report_interval_ms: 20
drivetrain:
  gear_ratio: 20
  encoder_pulses: 6
  encoder_polarity: 1
  xor_clock: true
battery:
  r1: 20000
  r2: 10000
  fixed_volts: 7.4
plant:
  km: 1500
`

func TestLoadConfig(t *testing.T) {
	Convey("Given a partial config file", t, func() {
		cfg, err := LoadConfig([]byte(testYaml))
		So(err, ShouldBeNil)

		Convey("file values are kept", func() {
			So(cfg.Sim, ShouldBeTrue)
			So(cfg.Baud, ShouldEqual, 57600)
			So(cfg.Drivetrain.GearRatio, ShouldEqual, float32(20))
			So(cfg.Drivetrain.XORClock, ShouldBeTrue)
			So(cfg.Plant.Km, ShouldEqual, float32(1500))
			So(cfg.Battery.DividerRatio(), ShouldEqual, float32(3))
		})

		Convey("missing values get defaults", func() {
			So(cfg.Drivetrain.MotorPolarity, ShouldEqual, int8(-1))
			So(cfg.Battery.ReferenceMV, ShouldEqual, uint32(3300))
			So(cfg.Plant.Tm, ShouldEqual, float32(core.DefaultTm))
			So(cfg.Settings, ShouldEqual, "motorlab.db")
		})

		Convey("report interval converts to ticks", func() {
			So(cfg.ReportTicks(), ShouldEqual, uint32(10))
		})

		Convey("the calibration follows the drivetrain", func() {
			cal := cfg.Calibration()
			So(cal.DegPerCount, ShouldAlmostEqual, 360.0/(6*20), 1e-5)
		})
	})

	Convey("Given no config at all", t, func() {
		cfg, err := LoadConfig(nil)
		So(err, ShouldBeNil)

		Convey("the bench defaults apply", func() {
			So(cfg.Baud, ShouldEqual, 115200)
			So(cfg.ReportIntervalMS, ShouldEqual, uint32(10))
			So(cfg.Drivetrain.EncoderPulses, ShouldEqual, core.DefaultEncoderPulses)
			So(cfg.Battery.DividerRatio(), ShouldEqual, float32(3))
		})
	})

	Convey("Given an invalid polarity", t, func() {
		_, err := LoadConfig([]byte("drivetrain:\n  motor_polarity: 2\n"))
		So(err, ShouldNotBeNil)
	})

	Convey("Given malformed yaml", t, func() {
		_, err := LoadConfig([]byte("drivetrain: [1, 2"))
		So(err, ShouldNotBeNil)
	})
}

func TestEnvironmentOverrides(t *testing.T) {
	Convey("Given MOTORLAB_ variables", t, func() {
		t.Setenv("MOTORLAB_SERIAL", "/dev/ttyUSB3")
		t.Setenv("MOTORLAB_SIM", "false")
		t.Setenv("MOTORLAB_LOG_LEVEL", "debug")

		cfg, err := LoadConfig([]byte(testYaml))
		So(err, ShouldBeNil)

		Convey("they win over the file", func() {
			So(cfg.Serial, ShouldEqual, "/dev/ttyUSB3")
			So(cfg.Sim, ShouldBeFalse)
			So(cfg.LogLevel, ShouldEqual, "debug")
		})
	})
}

func TestLoadFile(t *testing.T) {
	Convey("Given a config file on disk", t, func() {
		path := filepath.Join(t.TempDir(), "motorlab.yaml")
		So(os.WriteFile(path, []byte(testYaml), 0o644), ShouldBeNil)

		cfg, err := LoadFile(path)
		So(err, ShouldBeNil)
		So(cfg.Baud, ShouldEqual, 57600)

		Convey("a missing file is an error", func() {
			_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
			So(err, ShouldNotBeNil)
		})
	})
}
