package scan

import "time"

// InstrumentPort is the capability set the engine needs from the
// synthesizer and lock-in pair. Implementations return plain errors; the
// engine wraps them in InstrumentError.
type InstrumentPort interface {
	// TuneSynthesizer sets the synthesizer output, already divided by the
	// band multiplier, in MHz.
	TuneSynthesizer(freq float64) error
	SetLockinSensitivity(index int) error
	SetLockinTimeConstant(index int) error
	ReadLockinTimeConstant() (int, error)
	ClearLockinBuffer() error
	ConfigureLockinSampleRate(code int) error
	SetLockinBufferMode(singleShot bool) error
	StartLockinBuffer() error
	PauseLockinBuffer() error
	QueryLockinSampleCount() (int, error)
	ReadLockinSamples(count int) ([]float64, error)
}

// Spectrum is the averaged trace of one finished window.
type Spectrum struct {
	Frequencies []float64
	Values      []float64
}

// Metadata travels with a saved spectrum.
type Metadata struct {
	Integration      time.Duration
	SensitivityLabel string
	// TimeConstant is the value read back from the lock-in at save time.
	TimeConstant time.Duration
	Calibration  [2]float64

	RunID       string
	WindowIndex int
	Passes      int
	Multiplier  float64
	Window      WindowSpec
	StartedAt   time.Time
	FinishedAt  time.Time
}

// SpectrumStore persists finished windows. Several windows of a batch are
// saved to the same destination in plan order.
type SpectrumStore interface {
	Save(destination string, spectrum Spectrum, meta Metadata) error
}
