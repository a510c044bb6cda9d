package core

import "errors"

// fakeGPIO records pin levels in memory
type fakeGPIO struct {
	levels  map[GPIOPin]bool
	outputs map[GPIOPin]bool
	fail    bool
}

func newFakeGPIO() *fakeGPIO {
	return &fakeGPIO{levels: make(map[GPIOPin]bool), outputs: make(map[GPIOPin]bool)}
}

func (g *fakeGPIO) ConfigureOutput(pin GPIOPin) error {
	g.outputs[pin] = true
	return nil
}

func (g *fakeGPIO) ConfigureInputPullUp(pin GPIOPin) error   { return nil }
func (g *fakeGPIO) ConfigureInputPullDown(pin GPIOPin) error { return nil }

func (g *fakeGPIO) SetPin(pin GPIOPin, value bool) error {
	if g.fail {
		return errors.New("gpio write failed")
	}
	g.levels[pin] = value
	return nil
}

func (g *fakeGPIO) GetPin(pin GPIOPin) (bool, error) { return g.levels[pin], nil }
func (g *fakeGPIO) ReadPin(pin GPIOPin) bool         { return g.levels[pin] }

// fakePWM records the last duty per pin
type fakePWM struct {
	duty   map[PWMPin]PWMValue
	period map[PWMPin]uint32
	writes int
}

func newFakePWM() *fakePWM {
	return &fakePWM{duty: make(map[PWMPin]PWMValue), period: make(map[PWMPin]uint32)}
}

func (p *fakePWM) ConfigureHardwarePWM(pin PWMPin, periodUS uint32) (uint32, error) {
	p.period[pin] = periodUS
	return periodUS, nil
}

func (p *fakePWM) SetDutyCycle(pin PWMPin, value PWMValue) error {
	p.duty[pin] = value
	p.writes++
	return nil
}

func (p *fakePWM) GetMaxValue() uint32         { return PWM_MAX }
func (p *fakePWM) DisablePWM(pin PWMPin) error { return nil }

// fakeADC returns queued readings, repeating the last one
type fakeADC struct {
	values []ADCValue
	err    error
}

func (a *fakeADC) Init(cfg ADCConfig) error               { return nil }
func (a *fakeADC) ConfigureChannel(ch ADCChannelID) error { return nil }

func (a *fakeADC) ReadRaw(ch ADCChannelID) (ADCValue, error) {
	if a.err != nil {
		return 0, a.err
	}
	v := a.values[0]
	if len(a.values) > 1 {
		a.values = a.values[1:]
	}
	return v, nil
}

// fakeClock advances only when slept on
type fakeClock struct {
	now    uint32
	sleeps int
}

func (c *fakeClock) Now() uint32 { return c.now }

func (c *fakeClock) Sleep(us uint32) {
	c.sleeps++
	c.now += us
}

const (
	testPinA   GPIOPin = 2
	testPinB   GPIOPin = 3
	testPinDir GPIOPin = 7
	testPinPWM PWMPin  = 9
)

// quadrature levels for the forward sequence 00, 01, 11, 10
var forwardStates = [4][2]bool{{false, false}, {false, true}, {true, true}, {true, false}}

// testRig wires a full control pipeline over fake drivers
type testRig struct {
	gpio    *fakeGPIO
	pwm     *fakePWM
	decoder *Decoder
	encoder *Encoder
	profile *Profile
	motor   *Motor
	sched   *Scheduler
	phase   int
}

func newTestRig(cal Calibration, battery float32) *testRig {
	r := &testRig{gpio: newFakeGPIO(), pwm: newFakePWM()}
	r.decoder = NewDecoder(r.gpio, EncoderPins{A: testPinA, B: testPinB, Polarity: 1})
	r.decoder.Configure()
	r.encoder = NewEncoder(r.decoder, cal.DegPerCount)
	r.profile = NewProfile()
	r.motor = NewMotor(r.pwm, r.gpio, MotorPins{PWM: testPinPWM, Dir: testPinDir, Polarity: 1},
		FixedBattery(battery), r.encoder, r.profile, cal)
	r.motor.Configure()
	r.sched = NewScheduler(r.encoder, r.profile, r.motor)
	return r
}

// turn generates n quadrature edges, backwards when n is negative
func (r *testRig) turn(n int) {
	step := 1
	if n < 0 {
		step, n = -1, -n
	}
	for i := 0; i < n; i++ {
		r.phase = (r.phase + step + 4) % 4
		st := forwardStates[r.phase]
		r.gpio.levels[testPinA] = st[0]
		r.gpio.levels[testPinB] = st[1]
		r.decoder.OnEdge()
	}
}

// fakeEdges records watched pins
type fakeEdges struct {
	handlers map[GPIOPin]func()
}

func (e *fakeEdges) WatchEdges(pin GPIOPin, handler func()) error {
	if e.handlers == nil {
		e.handlers = make(map[GPIOPin]func())
	}
	e.handlers[pin] = handler
	return nil
}
