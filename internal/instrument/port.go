package instrument

// Port joins a lock-in and a synthesizer into the capability set used by
// the scan engine.
type Port struct {
	Lockin *Lockin
	Synth  *Synthesizer
}

// NewPort creates a Port.
func NewPort(lockin *Lockin, synth *Synthesizer) *Port {
	return &Port{Lockin: lockin, Synth: synth}
}

func (p *Port) TuneSynthesizer(freq float64) error { return p.Synth.SetFrequency(freq) }

func (p *Port) SetLockinSensitivity(index int) error { return p.Lockin.SetSensitivity(index) }

func (p *Port) SetLockinTimeConstant(index int) error { return p.Lockin.SetTimeConstant(index) }

func (p *Port) ReadLockinTimeConstant() (int, error) { return p.Lockin.TimeConstant() }

func (p *Port) ClearLockinBuffer() error { return p.Lockin.ClearBuffer() }

func (p *Port) ConfigureLockinSampleRate(code int) error { return p.Lockin.SetSampleRate(code) }

func (p *Port) SetLockinBufferMode(singleShot bool) error { return p.Lockin.SetBufferMode(singleShot) }

func (p *Port) StartLockinBuffer() error { return p.Lockin.StartBuffer() }

func (p *Port) PauseLockinBuffer() error { return p.Lockin.PauseBuffer() }

func (p *Port) QueryLockinSampleCount() (int, error) { return p.Lockin.SampleCount() }

func (p *Port) ReadLockinSamples(count int) ([]float64, error) { return p.Lockin.ReadSamples(count) }
