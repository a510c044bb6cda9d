package core

import (
	"sync/atomic"

	movingaverage "github.com/RobinUS2/golang-moving-average"
)

const (
	// MinBatteryVolts floors the voltage used for compensation so a missing
	// or flat battery cannot produce an unbounded duty scale.
	MinBatteryVolts = 2.0

	// BatterySampleUS is the battery sampling period
	BatterySampleUS = 10000

	// DefaultBatteryWindow is the number of samples averaged
	DefaultBatteryWindow = 8
)

// BatterySource supplies the current drive voltage
type BatterySource interface {
	BatteryVolts() float32
}

// FixedBattery is a BatterySource for a regulated supply
type FixedBattery float32

// BatteryVolts returns the fixed voltage
func (f FixedBattery) BatteryVolts() float32 {
	return float32(f)
}

// BatteryCompensation returns the duty units per volt at the given battery
// voltage, so that volts*compensation gives a duty command on the PWM_MAX scale.
func BatteryCompensation(volts float32) float32 {
	if volts < MinBatteryVolts {
		volts = MinBatteryVolts
	}
	return PWM_MAX / volts
}

// Battery samples the drive voltage through a resistor divider on an ADC
// channel and keeps a moving average of the readings.
type Battery struct {
	adc        ADCDriver
	channel    ADCChannelID
	multiplier float32 // volts per raw count

	avg   *movingaverage.MovingAverage // touched only by Sample
	volts Float32
	low   bool
	timer Timer

	readErrors atomic.Uint32
}

// NewBattery creates a battery monitor. dividerRatio is (R1+R2)/R2 and
// refMilliVolts is the ADC reference.
func NewBattery(adc ADCDriver, ch ADCChannelID, refMilliVolts uint32, dividerRatio float32, window int) *Battery {
	if window <= 0 {
		window = DefaultBatteryWindow
	}
	b := &Battery{
		adc:        adc,
		channel:    ch,
		multiplier: float32(refMilliVolts) / 1000 / ADCFullScale * dividerRatio,
		avg:        movingaverage.New(window),
	}
	b.timer.Handler = b.sampleEvent
	return b
}

// Configure prepares the ADC channel and takes a first reading
func (b *Battery) Configure() error {
	if err := b.adc.ConfigureChannel(b.channel); err != nil {
		return err
	}
	return b.Sample()
}

// Sample reads the ADC once and updates the average
func (b *Battery) Sample() error {
	raw, err := b.adc.ReadRaw(b.channel)
	if err != nil {
		b.readErrors.Add(1)
		return err
	}
	b.avg.Add(float64(raw) * float64(b.multiplier))
	v := float32(b.avg.Avg())
	b.volts.Store(v)

	low := v < MinBatteryVolts
	if low && !b.low {
		RecordTiming(EvtBatteryLow, 0, 0, uint32(v*1000), 0)
	}
	b.low = low
	return nil
}

// BatteryVolts returns the averaged battery voltage
func (b *Battery) BatteryVolts() float32 {
	return b.volts.Load()
}

// ReadErrors returns how many samples failed
func (b *Battery) ReadErrors() uint32 {
	return b.readErrors.Load()
}

// Schedule starts periodic sampling on s, first sample at now
func (b *Battery) Schedule(s *Scheduler, now uint32) {
	b.timer.WakeTime = now
	s.Schedule(&b.timer)
}

// sampleEvent is the sampling timer handler
func (b *Battery) sampleEvent(t *Timer) uint8 {
	b.Sample()
	t.WakeTime += BatterySampleUS
	return SF_RESCHEDULE
}
