// Package instrument drives the lock-in amplifier and the synthesizer over
// line-oriented serial links, and provides a simulated pair for dev mode.
package instrument

import (
	"fmt"
	"math"
	"time"
)

// SampleRate512Hz is the SRAT code for a 512 Hz buffer rate.
const SampleRate512Hz = 13

// SampleRateTrigger is the SRAT code for externally triggered sampling.
const SampleRateTrigger = 14

// bufferCapacity is the number of points one lock-in buffer channel holds.
const bufferCapacity = 16383

var sensitivityLabels = []string{
	"2 nV", "5 nV", "10 nV", "20 nV", "50 nV", "100 nV", "200 nV", "500 nV",
	"1 uV", "2 uV", "5 uV", "10 uV", "20 uV", "50 uV", "100 uV", "200 uV", "500 uV",
	"1 mV", "2 mV", "5 mV", "10 mV", "20 mV", "50 mV", "100 mV", "200 mV", "500 mV",
	"1 V",
}

var timeConstants = []time.Duration{
	10 * time.Microsecond, 30 * time.Microsecond, 100 * time.Microsecond, 300 * time.Microsecond,
	1 * time.Millisecond, 3 * time.Millisecond, 10 * time.Millisecond, 30 * time.Millisecond,
	100 * time.Millisecond, 300 * time.Millisecond,
	1 * time.Second, 3 * time.Second, 10 * time.Second, 30 * time.Second,
	100 * time.Second, 300 * time.Second,
	1000 * time.Second, 3000 * time.Second, 10000 * time.Second, 30000 * time.Second,
}

// NumSensitivities is the number of sensitivity selector positions.
var NumSensitivities = len(sensitivityLabels)

// NumTimeConstants is the number of time-constant selector positions.
var NumTimeConstants = len(timeConstants)

// SensitivityLabel returns the full-scale label of a sensitivity index.
func SensitivityLabel(index int) string {
	if index < 0 || index >= len(sensitivityLabels) {
		return fmt.Sprintf("sens#%d", index)
	}
	return sensitivityLabels[index]
}

// TimeConstant returns the duration of a time-constant index, or 0 when
// the index is out of range.
func TimeConstant(index int) time.Duration {
	if index < 0 || index >= len(timeConstants) {
		return 0
	}
	return timeConstants[index]
}

// TimeConstantLabel returns a short label such as "300 ms".
func TimeConstantLabel(index int) string {
	d := TimeConstant(index)
	switch {
	case d == 0:
		return fmt.Sprintf("tc#%d", index)
	case d < time.Millisecond:
		return fmt.Sprintf("%d us", d/time.Microsecond)
	case d < time.Second:
		return fmt.Sprintf("%d ms", d/time.Millisecond)
	case d < 1000*time.Second:
		return fmt.Sprintf("%d s", d/time.Second)
	default:
		return fmt.Sprintf("%d ks", d/(1000*time.Second))
	}
}

// SampleRateHz converts an SRAT code to samples per second. The trigger
// code and unknown codes return 0.
func SampleRateHz(code int) float64 {
	if code < 0 || code >= SampleRateTrigger {
		return 0
	}
	return 0.0625 * math.Pow(2, float64(code))
}

// Band is one synthesizer output chain.
type Band struct {
	Name       string
	Multiplier float64
}

// Bands lists the frequency-multiplier chains by band index.
var Bands = []Band{
	{Name: "synthesizer", Multiplier: 1},
	{Name: "AMC x3", Multiplier: 3},
	{Name: "AMC x6", Multiplier: 6},
	{Name: "AMC x9", Multiplier: 9},
	{Name: "AMC x12", Multiplier: 12},
	{Name: "AMC x18", Multiplier: 18},
	{Name: "AMC x27", Multiplier: 27},
}

// DefaultBand is the x6 chain.
const DefaultBand = 2

// Multiplier returns the sub-harmonic multiplier of a band.
func Multiplier(band int) (float64, error) {
	if band < 0 || band >= len(Bands) {
		return 0, fmt.Errorf("unknown band %d: expected 0..%d", band, len(Bands)-1)
	}
	return Bands[band].Multiplier, nil
}
