// Package scan implements the lock-in acquisition core: the frequency axis
// generator, the per-window scan engine and the batch controller that
// sequences windows to completion.
package scan

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidRange is returned when a frequency window cannot produce an axis.
var ErrInvalidRange = errors.New("invalid frequency range")

// MaxAxisPoints bounds the number of points in a single window.
const MaxAxisPoints = 200000

// axisScale sets the granularity frequencies are rounded to: 1/axisScale in
// the unit of the axis, so 1 mHz when working in MHz.
const axisScale = 1e9

// GenerateAxis returns the ascending frequencies start, start+step, ... up to
// and including stop when stop is reachable, otherwise up to the last value
// not exceeding stop.
func GenerateAxis(start, stop, step float64) ([]float64, error) {
	for _, v := range []float64{start, stop, step} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite value %v", ErrInvalidRange, v)
		}
	}
	if step <= 0 {
		return nil, fmt.Errorf("%w: step must be positive, got %g", ErrInvalidRange, step)
	}
	if start > stop {
		return nil, fmt.Errorf("%w: start %g is above stop %g", ErrInvalidRange, start, stop)
	}

	// Tolerate accumulated float error so an exactly reachable stop is kept.
	span := (stop - start) / step
	steps := int(math.Floor(span + 1e-9))
	if steps+1 > MaxAxisPoints {
		return nil, fmt.Errorf("%w: %d points exceeds limit of %d", ErrInvalidRange, steps+1, MaxAxisPoints)
	}

	axis := make([]float64, steps+1)
	for i := range axis {
		axis[i] = roundTo(start + float64(i)*step)
	}
	// Rounding may nudge the last point past stop by less than 1/axisScale.
	if last := axis[len(axis)-1]; last > stop {
		axis[len(axis)-1] = stop
	}
	return axis, nil
}

// roundTo returns the float64 nearest to v rounded to 1/axisScale, so
// 100.000+1*0.005 comes out as exactly 100.005.
func roundTo(v float64) float64 {
	return math.Round(v*axisScale) / axisScale
}
