package core

import (
	"strings"
	"testing"
)

func TestTimingRingKeepsNewest(t *testing.T) {
	ClearTimingRing()
	defer ClearTimingRing()

	for i := 0; i < TimingRingSize+5; i++ {
		RecordTiming(EvtTrialStart, 1, uint32(i), 0, 0)
	}
	events := TimingEvents()
	if len(events) != TimingRingSize {
		t.Fatalf("got %d events, want %d", len(events), TimingRingSize)
	}
	if events[0].Clock != 5 {
		t.Errorf("oldest event clock %d, want 5", events[0].Clock)
	}
	if last := events[len(events)-1].Clock; last != TimingRingSize+4 {
		t.Errorf("newest event clock %d, want %d", last, TimingRingSize+4)
	}
}

func TestWriteTimingRing(t *testing.T) {
	ClearTimingRing()
	defer ClearTimingRing()

	RecordTiming(EvtTickLate, 0, 1234, 7, 99)
	var lines []string
	WriteTimingRing(func(s string) { lines = append(lines, s) })

	if len(lines) != 3 {
		t.Fatalf("got %d lines: %v", len(lines), lines)
	}
	if !strings.Contains(lines[1], "TICK_LATE!") || !strings.Contains(lines[1], "clock=1234") {
		t.Errorf("event line %q", lines[1])
	}
}

func TestDebugPrintlnGated(t *testing.T) {
	var got []string
	SetDebugWriter(func(s string) { got = append(got, s) })
	defer SetDebugWriter(func(string) {})

	SetDebugEnabled(false)
	DebugPrintln("hidden")
	SetDebugEnabled(true)
	DebugPrintln("shown")
	SetDebugEnabled(false)

	if len(got) != 1 || got[0] != "shown" {
		t.Errorf("debug output %v", got)
	}
}

func TestRecordedEventsReachDebugWriter(t *testing.T) {
	ClearTimingRing()
	defer ClearTimingRing()
	var got []string
	SetDebugWriter(func(s string) { got = append(got, s) })
	defer SetDebugWriter(func(string) {})

	r := newTestRig(DefaultCalibration(0, 0), 8)
	r.motor.EnableControllers()
	if len(got) != 0 {
		t.Fatalf("output with debug disabled: %v", got)
	}

	SetDebugEnabled(true)
	defer SetDebugEnabled(false)
	r.motor.EnableFeedForward()
	r.gpio.fail = true
	r.motor.SetMotorVolts(1)

	want := []string{
		"[EVENT] MODE oid=0 clock=0 v1=3 v2=0",
		"[EVENT] DUTY_ERR! oid=0 clock=0",
	}
	if len(got) != len(want) {
		t.Fatalf("debug lines %q", got)
	}
	for i := range want {
		if !strings.HasPrefix(got[i], want[i]) {
			t.Errorf("line %d = %q, want prefix %q", i, got[i], want[i])
		}
	}
}
