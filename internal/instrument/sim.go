package instrument

import (
	"fmt"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/lockin.scan/internal/timeutil"
)

// Line is a Lorentzian absorption feature seen by the simulator.
type Line struct {
	Center    float64 `json:"center_mhz"` // at the measurement frequency
	FWHM      float64 `json:"fwhm_mhz"`
	Amplitude float64 `json:"amplitude"`
}

func (l Line) at(freq float64) float64 {
	x := (freq - l.Center) / (l.FWHM / 2)
	return l.Amplitude / (1 + x*x)
}

// Simulator is an in-process lock-in and synthesizer pair. The number of
// buffered samples follows the elapsed buffering time at the selected rate.
type Simulator struct {
	clock      timeutil.Clock
	multiplier float64
	lines      []Line
	noise      distuv.Normal

	synthFreq    float64
	sensitivity  int
	timeConstant int
	rateCode     int
	singleShot   bool
	running      bool
	startedAt    time.Time
	buffered     int
}

// NewSimulator creates a simulator. multiplier converts the tuned
// synthesizer frequency back to the measurement frequency.
func NewSimulator(clock timeutil.Clock, multiplier float64, noise float64, seed uint64, lines ...Line) *Simulator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if multiplier <= 0 {
		multiplier = 1
	}
	return &Simulator{
		clock:      clock,
		multiplier: multiplier,
		lines:      lines,
		noise: distuv.Normal{
			Mu:    0,
			Sigma: noise,
			Src:   rand.NewPCG(seed, seed^0x9e3779b97f4a7c15),
		},
		rateCode: SampleRate512Hz,
	}
}

// Frequency returns the measurement frequency the synthesizer is tuned to.
func (s *Simulator) Frequency() float64 { return s.synthFreq * s.multiplier }

func (s *Simulator) TuneSynthesizer(freq float64) error {
	if freq <= 0 {
		return fmt.Errorf("synthesizer frequency must be positive, got %g MHz", freq)
	}
	s.synthFreq = freq
	return nil
}

func (s *Simulator) SetLockinSensitivity(index int) error {
	if index < 0 || index >= NumSensitivities {
		return fmt.Errorf("sensitivity index %d out of range", index)
	}
	s.sensitivity = index
	return nil
}

func (s *Simulator) SetLockinTimeConstant(index int) error {
	if index < 0 || index >= NumTimeConstants {
		return fmt.Errorf("time constant index %d out of range", index)
	}
	s.timeConstant = index
	return nil
}

func (s *Simulator) ReadLockinTimeConstant() (int, error) { return s.timeConstant, nil }

func (s *Simulator) ClearLockinBuffer() error {
	s.running = false
	s.buffered = 0
	return nil
}

func (s *Simulator) ConfigureLockinSampleRate(code int) error {
	if code < 0 || code > SampleRateTrigger {
		return fmt.Errorf("sample rate code %d out of range", code)
	}
	s.rateCode = code
	return nil
}

func (s *Simulator) SetLockinBufferMode(singleShot bool) error {
	s.singleShot = singleShot
	return nil
}

func (s *Simulator) StartLockinBuffer() error {
	s.running = true
	s.startedAt = s.clock.Now()
	return nil
}

func (s *Simulator) PauseLockinBuffer() error {
	if !s.running {
		return nil
	}
	s.running = false
	n := int(s.clock.Since(s.startedAt).Seconds() * SampleRateHz(s.rateCode))
	s.buffered += n
	if s.buffered > bufferCapacity {
		s.buffered = bufferCapacity
	}
	return nil
}

func (s *Simulator) QueryLockinSampleCount() (int, error) { return s.buffered, nil }

func (s *Simulator) ReadLockinSamples(count int) ([]float64, error) {
	if count <= 0 || count > s.buffered {
		return nil, fmt.Errorf("cannot read %d samples, %d buffered", count, s.buffered)
	}
	signal := 0.0
	freq := s.Frequency()
	for _, l := range s.lines {
		signal += l.at(freq)
	}
	samples := make([]float64, count)
	for i := range samples {
		samples[i] = signal + s.noise.Rand()
	}
	return samples, nil
}
