//go:build rp2040

package main

import (
	"context"
	"machine"
	"time"

	"motorlab/cli"
	"motorlab/core"
	"motorlab/settings"
	"motorlab/trial"
)

// Board wiring
const (
	pinEncoderA core.GPIOPin = 2 // A^B when xorClock is set
	pinEncoderB core.GPIOPin = 3
	pinDir      core.GPIOPin = 7
	pinPWM      core.PWMPin  = 9

	batteryChannel core.ADCChannelID = 0 // ADC0 on GPIO26
	batteryRefMV                     = 3300
	batteryDivider                   = 3.0 // 20k over 10k

	xorClock        = false
	encoderPolarity = -1
	motorPolarity   = -1
)

func main() {
	// Clear any watchdog left running from before the reset
	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})

	InitUSB()
	out := &usbWriter{}
	core.SetDebugWriter(func(s string) {
		out.Write([]byte("# " + s + "\n"))
	})

	gpio := NewRPGPIODriver()
	adc := NewRPAdcDriver()
	if err := adc.Init(core.ADCConfig{Reference: batteryRefMV}); err != nil {
		halt(out, err)
	}
	battery := core.NewBattery(adc, batteryChannel, batteryRefMV, batteryDivider, core.DefaultBatteryWindow)
	if err := battery.Configure(); err != nil {
		halt(out, err)
	}

	s := settings.New(core.DefaultCalibration(0, 0), settings.NewFlashStore(machine.Flash))
	if err := s.Read(); err != nil {
		s.Init()
	}

	axis, err := core.NewAxis(core.AxisConfig{
		GPIO:  gpio,
		PWM:   NewRP2040PWMDriver(),
		Edges: gpio,
		Encoder: core.EncoderPins{
			A:        pinEncoderA,
			B:        pinEncoderB,
			XORClock: xorClock,
			Polarity: encoderPolarity,
		},
		Motor: core.MotorPins{
			PWM:      pinPWM,
			Dir:      pinDir,
			Polarity: motorPolarity,
		},
		Battery:     battery,
		Calibration: s.Calibration(),
	})
	if err != nil {
		halt(out, err)
	}

	// The foreground loop owns the scheduler: trials poll it through the
	// same Lockstep while they wait, so control never stops.
	clock := hwClock{}
	wait := core.NewLockstep(axis.Scheduler, clock)
	wait.Start()
	battery.Schedule(axis.Scheduler, clock.Now())

	robot := trial.NewRobot(axis, wait, nil, trial.Options{})
	in := cli.NewInterpreter(robot, s, out)
	in.Prompt()

	ctx := context.Background()
	for {
		wait.WaitTick(ctx)
		for USBAvailable() > 0 {
			b, err := USBRead()
			if err != nil {
				break
			}
			in.ProcessByte(ctx, b)
		}
	}
}

// halt reports a fatal setup error once a second
func halt(out *usbWriter, err error) {
	for {
		out.Write([]byte("# halted: " + err.Error() + "\n"))
		time.Sleep(time.Second)
	}
}
