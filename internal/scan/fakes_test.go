package scan

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errLink = errors.New("link down")

// scheduled is one delay armed on a manualScheduler.
type scheduled struct {
	d         time.Duration
	fn        func()
	cancelled bool
	fired     bool
}

// manualScheduler records delays and fires them only when the test says so.
type manualScheduler struct {
	entries []*scheduled
}

func (s *manualScheduler) ScheduleOnce(d time.Duration, fn func()) CancelFunc {
	e := &scheduled{d: d, fn: fn}
	s.entries = append(s.entries, e)
	return func() { e.cancelled = true }
}

func (s *manualScheduler) active() []*scheduled {
	var out []*scheduled
	for _, e := range s.entries {
		if !e.cancelled && !e.fired {
			out = append(out, e)
		}
	}
	return out
}

// fireNext fires the single armed delay.
func (s *manualScheduler) fireNext(t *testing.T) *scheduled {
	t.Helper()
	act := s.active()
	require.Len(t, act, 1, "expected exactly one armed delay")
	e := act[0]
	e.fired = true
	e.fn()
	return e
}

// drain fires delays until none are armed and returns how many fired.
func (s *manualScheduler) drain(t *testing.T) int {
	t.Helper()
	n := 0
	for len(s.active()) > 0 {
		s.fireNext(t)
		n++
		require.Less(t, n, 100000, "scan did not settle")
	}
	return n
}

// fakePort records every call by name. Readings are taken from the queue
// while it lasts, then from readFn applied to the tuned frequency.
type fakePort struct {
	calls    []string
	tuned    []float64
	rates    []int
	sens     int
	tcIndex  int
	samples  int
	readings []float64
	readFn   func(tuned float64) float64

	// failAt makes the nth call (1-based) of an op fail once.
	failAt map[string]int
	counts map[string]int
}

func newFakePort() *fakePort {
	return &fakePort{
		samples: 4,
		failAt:  map[string]int{},
		counts:  map[string]int{},
	}
}

func (p *fakePort) record(op string) error {
	p.calls = append(p.calls, op)
	p.counts[op]++
	if n, ok := p.failAt[op]; ok && n == p.counts[op] {
		delete(p.failAt, op)
		return errLink
	}
	return nil
}

func (p *fakePort) count(op string) int { return p.counts[op] }

func (p *fakePort) TuneSynthesizer(freq float64) error {
	if err := p.record("tune"); err != nil {
		return err
	}
	p.tuned = append(p.tuned, freq)
	return nil
}

func (p *fakePort) SetLockinSensitivity(index int) error {
	if err := p.record("sensitivity"); err != nil {
		return err
	}
	p.sens = index
	return nil
}

func (p *fakePort) SetLockinTimeConstant(index int) error {
	if err := p.record("time_constant"); err != nil {
		return err
	}
	p.tcIndex = index
	return nil
}

func (p *fakePort) ReadLockinTimeConstant() (int, error) {
	if err := p.record("read_time_constant"); err != nil {
		return 0, err
	}
	return p.tcIndex, nil
}

func (p *fakePort) ClearLockinBuffer() error { return p.record("clear") }

func (p *fakePort) ConfigureLockinSampleRate(code int) error {
	if err := p.record("rate"); err != nil {
		return err
	}
	p.rates = append(p.rates, code)
	return nil
}

func (p *fakePort) SetLockinBufferMode(singleShot bool) error {
	if !singleShot {
		return errors.New("expected single shot mode")
	}
	return p.record("mode")
}

func (p *fakePort) StartLockinBuffer() error { return p.record("start") }

func (p *fakePort) PauseLockinBuffer() error { return p.record("pause") }

func (p *fakePort) QueryLockinSampleCount() (int, error) {
	if err := p.record("count"); err != nil {
		return 0, err
	}
	return p.samples, nil
}

func (p *fakePort) ReadLockinSamples(count int) ([]float64, error) {
	if err := p.record("read"); err != nil {
		return nil, err
	}
	var v float64
	switch {
	case len(p.readings) > 0:
		v, p.readings = p.readings[0], p.readings[1:]
	case p.readFn != nil:
		v = p.readFn(p.tuned[len(p.tuned)-1])
	}
	out := make([]float64, count)
	for i := range out {
		out[i] = v
	}
	return out, nil
}

type savedSpectrum struct {
	destination string
	spectrum    Spectrum
	meta        Metadata
}

type fakeStore struct {
	saves []savedSpectrum
	err   error
}

func (s *fakeStore) Save(destination string, spectrum Spectrum, meta Metadata) error {
	if s.err != nil {
		return s.err
	}
	s.saves = append(s.saves, savedSpectrum{destination, spectrum, meta})
	return nil
}

// testWindow is a three point window at 100 MHz with one average.
func testWindow() WindowSpec {
	return WindowSpec{
		Start:        100.000,
		Stop:         100.010,
		Step:         0.005,
		Averages:     1,
		Sensitivity:  20,
		TimeConstant: 8,
		Integration:  250 * time.Millisecond,
		Settle:       50 * time.Millisecond,
	}
}

// lineWindow is an L point window at 10, 11, ... MHz with n averages.
func lineWindow(points, averages int) WindowSpec {
	w := testWindow()
	w.Start = 10
	w.Step = 1
	w.Stop = float64(10 + points - 1)
	w.Averages = averages
	return w
}

type engineRig struct {
	port   *fakePort
	store  *fakeStore
	sched  *manualScheduler
	engine *Engine
	events []Event
}

func newEngineRig(cfg EngineConfig) *engineRig {
	r := &engineRig{
		port:  newFakePort(),
		store: &fakeStore{},
		sched: &manualScheduler{},
	}
	if cfg.Destination == "" {
		cfg.Destination = "scan.lwa"
	}
	r.engine = NewEngine(r.port, r.store, r.sched, cfg)
	r.engine.SetListener(func(ev Event) { r.events = append(r.events, ev) })
	return r
}

func (r *engineRig) kinds(kind EventKind) []Event {
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
