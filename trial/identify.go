package trial

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ErrNoResponse is returned by Identify when the samples show no usable
// steady speed.
var ErrNoResponse = errors.New("no open loop response")

// steadyFraction is the tail of the drive window averaged for steady speed
const steadyFraction = 0.2

// minSteadySamples is the least number of rows averaged for steady speed
const minSteadySamples = 3

// Model is a first order motor model fitted to an open loop trial
type Model struct {
	Km          float32 // degrees/s per volt
	Tm          float32 // seconds
	SteadySpeed float32 // degrees/s
}

// Identify fits Km and Tm to the drive part of an open loop trial run at
// volts for driveMS. Km is the mean speed over the last fifth of the drive
// window divided by the voltage left after friction. Tm is the time taken
// to reach 63.2% of that speed.
func Identify(samples []Sample, volts, biasFF float32, driveMS uint32) (Model, error) {
	drive := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if s.TimeMS <= driveMS {
			drive = append(drive, s)
		}
	}

	tailFrom := uint32(float64(driveMS) * (1 - steadyFraction))
	var tail []float64
	for _, s := range drive {
		if s.TimeMS >= tailFrom {
			tail = append(tail, float64(s.Speed))
		}
	}
	if len(tail) < minSteadySamples {
		return Model{}, fmt.Errorf("%w: %d samples in the steady window", ErrNoResponse, len(tail))
	}
	steady := stat.Mean(tail, nil)

	effective := float64(volts) - math.Copysign(float64(biasFF), float64(volts))
	if volts == 0 || effective*float64(volts) <= 0 {
		return Model{}, fmt.Errorf("%w: %.2f V does not overcome friction", ErrNoResponse, volts)
	}
	km := steady / effective
	if km <= 0 {
		return Model{}, fmt.Errorf("%w: steady speed %.1f deg/s", ErrNoResponse, steady)
	}

	// first crossing of 63.2% of the steady speed, interpolated
	threshold := (1 - math.Exp(-1)) * steady
	tm := -1.0
	prevT, prevV := 0.0, 0.0
	for _, s := range drive {
		t, v := float64(s.TimeMS)/1000, float64(s.Speed)
		if math.Abs(v) >= math.Abs(threshold) {
			if v == prevV {
				tm = t
			} else {
				tm = prevT + (threshold-prevV)*(t-prevT)/(v-prevV)
			}
			break
		}
		prevT, prevV = t, v
	}
	if tm <= 0 {
		return Model{}, fmt.Errorf("%w: speed never reached %.1f deg/s", ErrNoResponse, threshold)
	}

	return Model{Km: float32(km), Tm: float32(tm), SteadySpeed: float32(steady)}, nil
}
