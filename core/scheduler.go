package core

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Timer represents a scheduled event
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// MaxCatchUpTicks bounds how many missed control ticks are replayed after a
// late dispatch before the schedule is moved forward.
const MaxCatchUpTicks = 4

// ErrSchedulerStopped is returned by WaitTick when the control timer is not running.
var ErrSchedulerStopped = errors.New("scheduler stopped")

// TimerQueue holds timers sorted by WakeTime.
type TimerQueue struct {
	head *Timer
	now  uint32 // time passed to the dispatch in progress
}

// Schedule adds a timer to the queue
func (q *TimerQueue) Schedule(t *Timer) {
	state := disableInterrupts()
	q.insert(t)
	restoreInterrupts(state)
}

// Cancel removes a timer from the queue. It reports whether t was queued.
func (q *TimerQueue) Cancel(t *Timer) bool {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	prev := &q.head
	for cur := q.head; cur != nil; cur = cur.Next {
		if cur == t {
			*prev = cur.Next
			cur.Next = nil
			return true
		}
		prev = &cur.Next
	}
	return false
}

// Next returns the wake time of the earliest queued timer
func (q *TimerQueue) Next() (uint32, bool) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if q.head == nil {
		return 0, false
	}
	return q.head.WakeTime, true
}

// insert places t in wake order; ties keep insertion order
func (q *TimerQueue) insert(t *Timer) {
	if q.head == nil || timeBefore(t.WakeTime, q.head.WakeTime) {
		t.Next = q.head
		q.head = t
		return
	}

	current := q.head
	for current.Next != nil && !timeBefore(t.WakeTime, current.Next.WakeTime) {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// Dispatch runs every timer due at now and returns how many fired.
// Handlers run outside the critical section so they may take it themselves.
func (q *TimerQueue) Dispatch(now uint32) int {
	q.now = now
	fired := 0
	for {
		state := disableInterrupts()
		t := q.head
		if t == nil || timeBefore(now, t.WakeTime) {
			restoreInterrupts(state)
			return fired
		}
		q.head = t.Next
		t.Next = nil // Clear Next pointer to avoid circular references
		restoreInterrupts(state)

		fired++
		if t.Handler(t) == SF_RESCHEDULE {
			state = disableInterrupts()
			q.insert(t)
			restoreInterrupts(state)
		}
	}
}

// TickWaiter blocks foreground code until the next control tick has run.
type TickWaiter interface {
	WaitTick(ctx context.Context) error
}

// Scheduler runs the control pipeline at LoopFrequency in a fixed order:
// encoder, then profile, then motor.
type Scheduler struct {
	timers  TimerQueue
	control Timer
	encoder *Encoder
	profile *Profile
	motor   *Motor

	ticks   atomic.Uint32
	late    atomic.Uint32
	running atomic.Bool
}

// NewScheduler creates a scheduler over the three pipeline stages
func NewScheduler(enc *Encoder, prof *Profile, mot *Motor) *Scheduler {
	s := &Scheduler{
		encoder: enc,
		profile: prof,
		motor:   mot,
	}
	s.control.Handler = s.controlEvent
	return s
}

// Tick runs one control cycle. It is normally called by the control timer
// but may be driven directly by tests.
func (s *Scheduler) Tick() {
	s.encoder.Update()
	s.profile.Update()
	s.motor.Update()
	s.ticks.Add(1)
}

// controlEvent is the control timer handler
func (s *Scheduler) controlEvent(t *Timer) uint8 {
	if !s.running.Load() {
		return SF_DONE
	}
	s.Tick()

	now := s.timers.now
	t.WakeTime += TickPeriodUS
	if behind := now - t.WakeTime; !timeBefore(now, t.WakeTime) && behind >= MaxCatchUpTicks*TickPeriodUS {
		// Too far behind to replay; drop the missed ticks.
		s.late.Add(1)
		RecordTiming(EvtTickLate, 0, now, behind/TickPeriodUS, s.ticks.Load())
		t.WakeTime = now + TickPeriodUS
	}
	return SF_RESCHEDULE
}

// Start arms the control timer so the first tick fires one period after now
func (s *Scheduler) Start(now uint32) {
	if s.running.Swap(true) {
		return
	}
	s.control.WakeTime = now + TickPeriodUS
	s.timers.Schedule(&s.control)
	RecordTiming(EvtSchedStart, 0, now, TickPeriodUS, 0)
}

// Stop disarms the control timer. Other timers stay queued.
func (s *Scheduler) Stop() {
	if !s.running.Swap(false) {
		return
	}
	s.timers.Cancel(&s.control)
}

// Running reports whether the control timer is armed
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Schedule queues an auxiliary timer (battery sampling and similar)
func (s *Scheduler) Schedule(t *Timer) {
	s.timers.Schedule(t)
}

// Cancel removes an auxiliary timer
func (s *Scheduler) Cancel(t *Timer) bool {
	return s.timers.Cancel(t)
}

// Poll dispatches every timer due at now
func (s *Scheduler) Poll(now uint32) int {
	return s.timers.Dispatch(now)
}

// Ticks returns the number of control cycles run so far
func (s *Scheduler) Ticks() uint32 {
	return s.ticks.Load()
}

// LateEvents returns how many times missed ticks were dropped
func (s *Scheduler) LateEvents() uint32 {
	return s.late.Load()
}

// NextWake returns the earliest pending wake time
func (s *Scheduler) NextWake() (uint32, bool) {
	return s.timers.Next()
}

// SleepFor returns how long a poll loop may sleep at now before the next timer is due
func (s *Scheduler) SleepFor(now uint32) uint32 {
	next, ok := s.timers.Next()
	if !ok {
		return TickPeriodUS
	}
	if !timeBefore(now, next) {
		return 0
	}
	return next - now
}

// Run polls the scheduler from the calling goroutine until ctx is done.
// Foreground code then waits on the scheduler itself via WaitTick.
func (s *Scheduler) Run(ctx context.Context, clock Clock) error {
	s.Start(clock.Now())
	defer s.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := clock.Now()
		s.Poll(now)
		clock.Sleep(s.SleepFor(now))
	}
}

// WaitTick blocks until at least one tick has run. Use with Run.
func (s *Scheduler) WaitTick(ctx context.Context) error {
	start := s.ticks.Load()
	for s.ticks.Load() == start {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.running.Load() {
			return ErrSchedulerStopped
		}
		time.Sleep(100 * time.Microsecond)
	}
	return nil
}

// Lockstep drives a scheduler from the waiting goroutine itself. It is used
// where foreground and control loop share one thread: the TinyGo main loop
// and the simulator.
type Lockstep struct {
	sched *Scheduler
	clock Clock
}

// NewLockstep returns a TickWaiter that polls sched on clock
func NewLockstep(sched *Scheduler, clock Clock) *Lockstep {
	return &Lockstep{sched: sched, clock: clock}
}

// Start arms the control timer at the current clock time
func (l *Lockstep) Start() {
	l.sched.Start(l.clock.Now())
}

// WaitTick polls and sleeps until the control timer has fired once
func (l *Lockstep) WaitTick(ctx context.Context) error {
	if !l.sched.Running() {
		l.Start()
	}
	start := l.sched.Ticks()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := l.clock.Now()
		l.sched.Poll(now)
		if l.sched.Ticks() != start {
			return nil
		}
		l.clock.Sleep(l.sched.SleepFor(now))
	}
}
