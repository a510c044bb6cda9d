package core

import "testing"

func TestNewAxisWiresEdges(t *testing.T) {
	tests := []struct {
		name     string
		xorClock bool
		watched  int
	}{
		{"both channels", false, 2},
		{"xor clock", true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gpio, pwm, edges := newFakeGPIO(), newFakePWM(), &fakeEdges{}
			a, err := NewAxis(AxisConfig{
				GPIO:        gpio,
				PWM:         pwm,
				Edges:       edges,
				Encoder:     EncoderPins{A: testPinA, B: testPinB, XORClock: tt.xorClock, Polarity: 1},
				Motor:       MotorPins{PWM: testPinPWM, Dir: testPinDir, Polarity: 1},
				Battery:     FixedBattery(8),
				Calibration: DefaultCalibration(0, 0),
			})
			if err != nil {
				t.Fatalf("NewAxis: %v", err)
			}
			if len(edges.handlers) != tt.watched {
				t.Errorf("watching %d pins, want %d", len(edges.handlers), tt.watched)
			}
			if !gpio.outputs[testPinDir] {
				t.Error("direction pin not configured as output")
			}
			if pwm.period[testPinPWM] != DefaultPWMPeriodUS {
				t.Errorf("pwm period %d", pwm.period[testPinPWM])
			}

			// One forward step (00 -> 01) through the registered handler.
			// With the XOR clock pin A carries A^B.
			gpio.levels[testPinB] = true
			gpio.levels[testPinA] = tt.xorClock
			edges.handlers[testPinA]()
			a.Scheduler.Tick()
			if a.Encoder.Counts() != 1 {
				t.Errorf("Counts() = %d, want 1", a.Encoder.Counts())
			}
		})
	}
}

func TestAxisApplyCalibration(t *testing.T) {
	gpio := newFakeGPIO()
	a, err := NewAxis(AxisConfig{
		GPIO:        gpio,
		PWM:         newFakePWM(),
		Encoder:     EncoderPins{A: testPinA, B: testPinB, Polarity: 1},
		Motor:       MotorPins{PWM: testPinPWM, Dir: testPinDir},
		Battery:     FixedBattery(8),
		Calibration: DefaultCalibration(0, 0),
	})
	if err != nil {
		t.Fatalf("NewAxis: %v", err)
	}
	cal := DefaultCalibration(0, 0)
	cal.DegPerCount = 1
	cal.Kp = 0.3
	a.ApplyCalibration(cal)

	if got := a.Motor.Calibration().Kp; got != 0.3 {
		t.Errorf("motor Kp %f", got)
	}
	a.Decoder.pulses.Store(AveragerLength)
	a.Scheduler.Tick()
	if got := a.Encoder.Distance(); got != 1 {
		t.Errorf("distance %f with 1 degree per count, want 1", got)
	}
}
