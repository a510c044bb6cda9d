package core

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TimingEvent captures a control-loop event for post-mortem analysis
type TimingEvent struct {
	EventType uint8  // Event type code
	OID       uint8  // Source object, context dependent
	Clock     uint32 // Scheduler time (us) or tick count at event
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtSchedStart  = 1 // control timer armed
	EvtTickLate    = 2 // missed ticks dropped; v1=ticks behind, v2=tick count
	EvtTrialStart  = 3 // trial started; oid=trial kind
	EvtTrialEnd    = 4 // trial finished; v1=duration ms
	EvtTrialAbort  = 5 // trial aborted (timeout or cancel)
	EvtModeChange  = 6 // controller mode changed; v1=new mode
	EvtDutyError   = 7 // PWM or direction output failed
	EvtBatteryLow  = 8 // battery below the compensation floor; v1=millivolts
	EvtProfileDone = 9 // profile reached the target; v1=tick count
)

const (
	TimingRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled atomic.Bool

	// Timing capture ring buffer (non-blocking, for post-mortem).
	// Never written from edge handlers, so a plain mutex is enough.
	timingMu       sync.Mutex
	timingRing     [TimingRingSize]TimingEvent
	timingRingHead uint8        // Next write position
	timingEnabled  bool  = true // Always capture timing events
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, or a logger.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled.Load()
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled.Load() && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// RecordTiming captures a timing event in the ring buffer and, with debug
// output enabled, prints it as an [EVENT] line.
// Must not be called inside a critical section.
func RecordTiming(eventType, oid uint8, clock, value1, value2 uint32) {
	if !timingEnabled {
		return
	}
	timingMu.Lock()
	idx := timingRingHead
	timingRing[idx] = TimingEvent{
		EventType: eventType,
		OID:       oid,
		Clock:     clock,
		Value1:    value1,
		Value2:    value2,
	}
	evt := timingRing[idx]
	timingRingHead = (idx + 1) % TimingRingSize
	timingMu.Unlock()

	if debugEnabled.Load() {
		DebugPrintln("[EVENT] " + formatEvent(evt))
	}
}

// TimingEvents returns the recorded events, oldest first
func TimingEvents() []TimingEvent {
	timingMu.Lock()
	defer timingMu.Unlock()

	events := make([]TimingEvent, 0, TimingRingSize)
	start := timingRingHead
	for i := uint8(0); i < TimingRingSize; i++ {
		evt := timingRing[(start+i)%TimingRingSize]
		if evt.EventType == 0 {
			continue // Empty slot
		}
		events = append(events, evt)
	}
	return events
}

// EventName returns the short name printed for an event type
func EventName(eventType uint8) string {
	switch eventType {
	case EvtSchedStart:
		return "SCHED_START"
	case EvtTickLate:
		return "TICK_LATE!"
	case EvtTrialStart:
		return "TRIAL_START"
	case EvtTrialEnd:
		return "TRIAL_END"
	case EvtTrialAbort:
		return "TRIAL_ABORT!"
	case EvtModeChange:
		return "MODE"
	case EvtDutyError:
		return "DUTY_ERR!"
	case EvtBatteryLow:
		return "BATT_LOW!"
	case EvtProfileDone:
		return "PROFILE_DONE"
	default:
		return "UNKNOWN"
	}
}

// WriteTimingRing formats the ring buffer through w, oldest event first
func WriteTimingRing(w DebugWriter) {
	if w == nil {
		return
	}
	w("[TIMING] === Timing Ring Dump ===")
	for _, evt := range TimingEvents() {
		w("[TIMING] " + formatEvent(evt))
	}
	w("[TIMING] === End Dump ===")
}

func formatEvent(evt TimingEvent) string {
	return EventName(evt.EventType) +
		" oid=" + strconv.Itoa(int(evt.OID)) +
		" clock=" + strconv.FormatUint(uint64(evt.Clock), 10) +
		" v1=" + strconv.FormatUint(uint64(evt.Value1), 10) +
		" v2=" + strconv.FormatUint(uint64(evt.Value2), 10)
}

// DumpTimingRing outputs the timing ring buffer on the debug writer
func DumpTimingRing() {
	WriteTimingRing(debugPrintln)
}

// ClearTimingRing clears the timing buffer
func ClearTimingRing() {
	timingMu.Lock()
	for i := range timingRing {
		timingRing[i] = TimingEvent{}
	}
	timingRingHead = 0
	timingMu.Unlock()
}
