package core

import (
	"math"
	"testing"
)

// runProfile steps p until it finishes, returning the tick count and the
// extreme setpoint speed magnitudes seen.
func runProfile(t *testing.T, p *Profile, limit int) (ticks int, maxSpeed, minSpeed float32) {
	t.Helper()
	minSpeed = float32(math.Inf(1))
	for !p.IsFinished() {
		p.Update()
		ticks++
		s := abs32(p.Speed())
		if s > maxSpeed {
			maxSpeed = s
		}
		if s < minSpeed {
			minSpeed = s
		}
		if ticks > limit {
			t.Fatalf("profile did not finish in %d ticks (pos %f, phase %v)", limit, p.Position(), p.Phase())
		}
	}
	return ticks, maxSpeed, minSpeed
}

func TestProfileTrapezoid(t *testing.T) {
	tests := []struct {
		name                      string
		distance, top, end, accel float32
		tolerance                 float32
	}{
		{"bench default", 1440, 3600, 0, 14400, FinishTolerance},
		{"short triangle", 100, 3600, 0, 14400, FinishTolerance},
		{"slow", 30, 500, 0, 1000, FinishTolerance},
		{"reverse", -720, 1800, 0, 7200, FinishTolerance},
		{"end speed", 1440, 3600, 500, 14400, 500 * LoopInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProfile()
			p.Start(tt.distance, tt.top, tt.end, tt.accel)
			ticks, maxSpeed, _ := runProfile(t, p, 100000)

			if err := abs32(p.Position() - tt.distance); err > tt.tolerance {
				t.Errorf("final position %f, want %f (err %f)", p.Position(), tt.distance, err)
			}
			if maxSpeed > tt.top {
				t.Errorf("speed %f exceeded top %f", maxSpeed, tt.top)
			}
			if got := abs32(p.Speed()); got != tt.end {
				t.Errorf("final speed %f, want %f", got, tt.end)
			}
			t.Logf("%s: %d ticks, max speed %.1f", tt.name, ticks, maxSpeed)
		})
	}
}

func TestProfileBenchDefaultShape(t *testing.T) {
	p := NewProfile()
	p.Start(1440, 3600, 0, 14400)

	sawCruise := false
	var last float32
	for i := 0; !p.IsFinished(); i++ {
		p.Update()
		pos, speed, _ := p.Setpoint()
		if speed < 0 || speed > 3600 {
			t.Fatalf("tick %d: speed %f out of range", i, speed)
		}
		if pos < last {
			t.Fatalf("tick %d: position went backwards %f -> %f", i, last, pos)
		}
		last = pos
		if p.Phase() == PhaseCruising {
			sawCruise = true
		}
		if i > 1000 {
			t.Fatal("did not finish")
		}
	}
	if !sawCruise {
		t.Error("1440 degree move never reached cruise")
	}
	if p.Speed() != 0 {
		t.Errorf("final speed %f, want 0", p.Speed())
	}
}

func TestProfileZeroArgumentsUseDefaults(t *testing.T) {
	p := NewProfile()
	p.Start(0, 0, 0, 0)
	runProfile(t, p, 100000)

	if err := abs32(p.Position() - DefaultMoveDistance); err > FinishTolerance {
		t.Errorf("final position %f, want %d", p.Position(), DefaultMoveDistance)
	}
}

func TestProfileFirstTick(t *testing.T) {
	p := NewProfile()
	p.Start(1440, 3600, 0, 14400)
	p.Update()

	wantSpeed := float32(14400) * LoopInterval
	if got := p.Speed(); math.Abs(float64(got-wantSpeed)) > 1e-3 {
		t.Errorf("speed after one tick %f, want %f", got, wantSpeed)
	}
	if got := p.Acceleration(); math.Abs(float64(got-14400)) > 1 {
		t.Errorf("acceleration %f, want 14400", got)
	}
	if p.Phase() != PhaseAccelerating {
		t.Errorf("phase %v, want accelerating", p.Phase())
	}
}

func TestProfileDecelerationIsSticky(t *testing.T) {
	p := NewProfile()
	p.Start(100, 3600, 0, 14400)

	decelerating := false
	for !p.IsFinished() {
		p.Update()
		if p.Phase() == PhaseDecelerating {
			decelerating = true
		} else if decelerating && !p.IsFinished() {
			t.Fatalf("left deceleration for %v", p.Phase())
		}
	}
	if !decelerating {
		t.Error("never decelerated")
	}
}

func TestProfileSetPosition(t *testing.T) {
	p := NewProfile()
	p.Start(1440, 3600, 0, 14400)
	for i := 0; i < 10; i++ {
		p.Update()
	}

	p.SetPosition(30)
	pos, speed, accel := p.Setpoint()
	if pos != 30 || speed != 0 || accel != 0 {
		t.Errorf("after SetPosition: pos %f speed %f accel %f", pos, speed, accel)
	}
	if !p.IsFinished() {
		t.Error("SetPosition should leave the profile finished")
	}
	p.Update()
	if p.Position() != 30 {
		t.Errorf("finished profile moved to %f", p.Position())
	}
}

func TestProfileTinyMoveFinishesImmediately(t *testing.T) {
	p := NewProfile()
	p.Start(0.1, 100, 0, 1000)
	if !p.IsFinished() {
		t.Errorf("move below tolerance started in phase %v", p.Phase())
	}
}

func TestProfileContinue(t *testing.T) {
	p := NewProfile()
	p.Start(360, 1800, 600, 7200)
	runProfile(t, p, 100000)
	if got := p.Speed(); got != 600 {
		t.Fatalf("first leg end speed %f, want 600", got)
	}

	p.Continue(360, 1800, 0, 7200)
	runProfile(t, p, 100000)
	if err := abs32(p.Position() - 720); err > FinishTolerance+600*LoopInterval {
		t.Errorf("continued move ended at %f, want 720", p.Position())
	}
	if p.Speed() != 0 {
		t.Errorf("final speed %f, want 0", p.Speed())
	}
}

func TestProfileEndSpeedCappedAtTopSpeed(t *testing.T) {
	p := NewProfile()
	p.Start(360, 500, 1000, 7200)
	_, maxSpeed, _ := runProfile(t, p, 100000)
	if maxSpeed > 500 {
		t.Errorf("setpoint speed reached %f, top speed is 500", maxSpeed)
	}
	if got := p.Speed(); got != 500 {
		t.Errorf("end speed %f, want 500", got)
	}
	if err := abs32(p.Position() - 360); err > FinishTolerance+500*LoopInterval {
		t.Errorf("move ended at %f, want 360", p.Position())
	}
}
