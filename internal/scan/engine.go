package scan

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/lockin.scan/internal/instrument"
	"github.com/banshee-data/lockin.scan/internal/monitoring"
	"github.com/banshee-data/lockin.scan/internal/timeutil"
)

// EngineConfig holds settings that stay fixed across windows.
type EngineConfig struct {
	// Multiplier is the sub-harmonic multiplier of the selected synthesizer
	// band. The synthesizer is tuned to axis frequency / Multiplier.
	Multiplier float64
	// SampleRateCode is the lock-in buffer rate selector sent before every
	// point. Zero selects 512 Hz.
	SampleRateCode int
	// Calibration is copied verbatim into every saved header.
	Calibration [2]float64
	// Destination is used for windows installed directly with InstallWindow.
	Destination string
	Clock       timeutil.Clock
}

// RunState is the mutable acquisition state of the active window.
type RunState struct {
	Axis  []float64
	Index int
	// Passes counts completed traversals, including the single-point
	// priming pass at index 0.
	Passes int
	// Current holds the latest reading per point. It is never cleared, so
	// later passes overwrite earlier ones in place.
	Current []float64
	// Sum is zeroed per window and only changes at pass boundaries.
	Sum []float64
}

func newRunState(axis []float64) *RunState {
	return &RunState{
		Axis:    axis,
		Current: make([]float64, len(axis)),
		Sum:     make([]float64, len(axis)),
	}
}

// Snapshot is a copy of the engine state for display.
type Snapshot struct {
	State   State      `json:"state"`
	Paused  bool       `json:"paused"`
	Spec    WindowSpec `json:"spec"`
	Index   int        `json:"index"`
	Passes  int        `json:"passes"`
	Axis    []float64  `json:"axis"`
	Current []float64  `json:"current"`
	Sum     []float64  `json:"sum"`
	// HaltedIn is the state a halted window stopped in.
	HaltedIn State  `json:"halted_in,omitempty"`
	Error    string `json:"error,omitempty"`
}

type runTag struct {
	runID       string
	window      int
	destination string
}

// Engine runs the acquisition state machine for one window at a time:
//
//	Idle -> Settling -> Integrating -> Acquiring -> Advancing -> (Settling | Complete)
//
// The engine is not safe for concurrent use. All methods and all scheduler
// callbacks must run on the same goroutine, normally a Loop.
type Engine struct {
	port  InstrumentPort
	store SpectrumStore
	sched Scheduler
	cfg   EngineConfig

	spec       WindowSpec
	tag        runTag
	run        *RunState
	state      State
	paused     bool
	configured bool
	startedAt  time.Time

	pending CancelFunc
	gen     uint64

	haltedIn State
	err      error

	listener   Listener
	onComplete func(Spectrum, Metadata)
	onHalt     func(State, error)
}

// NewEngine creates an idle engine.
func NewEngine(port InstrumentPort, store SpectrumStore, sched Scheduler, cfg EngineConfig) *Engine {
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 1
	}
	if cfg.SampleRateCode == 0 {
		cfg.SampleRateCode = instrument.SampleRate512Hz
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Engine{
		port:  port,
		store: store,
		sched: sched,
		cfg:   cfg,
		state: StateIdle,
	}
}

// SetListener sets the receiver of trace and sum updates.
func (e *Engine) SetListener(l Listener) { e.listener = l }

// State returns the current state.
func (e *Engine) State() State { return e.state }

// Paused reports whether the engine is paused.
func (e *Engine) Paused() bool { return e.paused }

// Err returns the error that halted the engine, if any.
func (e *Engine) Err() error { return e.err }

// InstallWindow starts a new window, discarding any window in progress. An
// invalid range is rejected before any state changes.
func (e *Engine) InstallWindow(spec WindowSpec) error {
	return e.install(spec, runTag{destination: e.cfg.Destination})
}

func (e *Engine) install(spec WindowSpec, tag runTag) error {
	axis, err := GenerateAxis(spec.Start, spec.Stop, spec.Step)
	if err != nil {
		return err
	}

	e.cancelPending()
	e.spec = spec
	e.tag = tag
	e.run = newRunState(axis)
	e.state = StateIdle
	e.paused = false
	e.configured = false
	e.err = nil
	e.startedAt = e.cfg.Clock.Now()

	monitoring.Logf("scan: installing window %s (%d points)", spec, len(axis))
	e.emit(EventSum)
	e.configure()
	return nil
}

// configure applies the lock-in settings of the window and starts the first
// point.
func (e *Engine) configure() {
	if err := e.port.SetLockinSensitivity(e.spec.Sensitivity); err != nil {
		e.halt(&InstrumentError{Op: "set sensitivity", Err: err})
		return
	}
	if err := e.port.SetLockinTimeConstant(e.spec.TimeConstant); err != nil {
		e.halt(&InstrumentError{Op: "set time constant", Err: err})
		return
	}
	e.configured = true
	e.tune()
}

// tune retunes the synthesizer to the current point and arms the settle delay.
func (e *Engine) tune() {
	e.state = StateSettling
	freq := e.run.Axis[e.run.Index] / e.cfg.Multiplier
	if err := e.port.TuneSynthesizer(freq); err != nil {
		e.halt(&InstrumentError{Op: "tune synthesizer", Err: err})
		return
	}
	e.arm(e.spec.Settle, e.settled)
}

func (e *Engine) settled() {
	if e.paused {
		return
	}
	e.state = StateIntegrating
	steps := []struct {
		op string
		fn func() error
	}{
		{"clear buffer", e.port.ClearLockinBuffer},
		{"set sample rate", func() error { return e.port.ConfigureLockinSampleRate(e.cfg.SampleRateCode) }},
		{"set buffer mode", func() error { return e.port.SetLockinBufferMode(true) }},
		{"start buffer", e.port.StartLockinBuffer},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			e.halt(&InstrumentError{Op: s.op, Err: err})
			return
		}
	}
	e.arm(e.spec.Integration, e.integrated)
}

func (e *Engine) integrated() {
	if e.paused {
		return
	}
	e.state = StateAcquiring
	if err := e.port.PauseLockinBuffer(); err != nil {
		e.halt(&InstrumentError{Op: "pause buffer", Err: err})
		return
	}
	n, err := e.port.QueryLockinSampleCount()
	if err != nil {
		e.halt(&InstrumentError{Op: "query sample count", Err: err})
		return
	}
	if n <= 0 {
		e.halt(&InstrumentError{Op: "query sample count", Err: fmt.Errorf("lock-in buffered %d samples", n)})
		return
	}
	samples, err := e.port.ReadLockinSamples(n)
	if err != nil {
		e.halt(&InstrumentError{Op: "read samples", Err: err})
		return
	}
	if len(samples) == 0 {
		e.halt(&InstrumentError{Op: "read samples", Err: fmt.Errorf("lock-in returned no samples")})
		return
	}

	e.run.Current[e.run.Index] = stat.Mean(samples, nil)
	e.emit(EventTrace)

	e.advance()
	if e.run.Passes > e.spec.Averages {
		e.finish()
		return
	}
	e.tune()
}

// advance applies the ping-pong rule. Odd pass counts sweep forward, even
// ones sweep back. Reaching the end of the axis closes the pass and folds
// the current-pass array into the sum without moving the index.
func (e *Engine) advance() {
	e.state = StateAdvancing
	r := e.run
	if r.Passes%2 == 1 {
		if r.Index < len(r.Axis)-1 {
			r.Index++
			return
		}
	} else {
		if r.Index > 0 {
			r.Index--
			return
		}
	}
	r.Passes++
	floats.Add(r.Sum, r.Current)
	monitoring.Logf("scan: window %d completed pass %d of %d", e.tag.window, r.Passes, e.spec.Averages+1)
	e.emit(EventSum)
}

func (e *Engine) finish() {
	tcIndex, err := e.port.ReadLockinTimeConstant()
	if err != nil {
		e.halt(&InstrumentError{Op: "read time constant", Err: err})
		return
	}

	values := make([]float64, len(e.run.Sum))
	copy(values, e.run.Sum)
	floats.Scale(1/float64(e.run.Passes), values)
	spectrum := Spectrum{Frequencies: clone(e.run.Axis), Values: values}

	meta := Metadata{
		Integration:      e.spec.Integration,
		SensitivityLabel: instrument.SensitivityLabel(e.spec.Sensitivity),
		TimeConstant:     instrument.TimeConstant(tcIndex),
		Calibration:      e.cfg.Calibration,
		RunID:            e.tag.runID,
		WindowIndex:      e.tag.window,
		Passes:           e.run.Passes,
		Multiplier:       e.cfg.Multiplier,
		Window:           e.spec,
		StartedAt:        e.startedAt,
		FinishedAt:       e.cfg.Clock.Now(),
	}
	if err := e.store.Save(e.tag.destination, spectrum, meta); err != nil {
		e.halt(&StorageError{Destination: e.tag.destination, Err: err})
		return
	}

	e.state = StateComplete
	monitoring.Logf("scan: window %d complete after %d passes", e.tag.window, e.run.Passes)
	if e.onComplete != nil {
		e.onComplete(spectrum, meta)
	}
}

// Pause suppresses delay expiries until Resume. Delays already armed keep
// running, but nothing happens when they fire, so no retune occurs and the
// run arrays are left untouched. This covers the integration delay as well
// as the settle delay: a point paused mid integration is not read out, and
// its samples are discarded when Resume measures the point again.
func (e *Engine) Pause() {
	if e.paused || e.run == nil || e.state.Terminal() {
		return
	}
	e.paused = true
	monitoring.Logf("scan: window %d paused in state %s", e.tag.window, e.state)
}

// Resume arms one fresh settle delay at the current point. The lock-in
// buffer is restarted when it expires, so a point interrupted mid
// integration is measured again.
func (e *Engine) Resume() {
	if !e.paused {
		return
	}
	e.paused = false
	if e.run == nil || e.state.Terminal() {
		return
	}
	e.cancelPending()
	e.state = StateSettling
	monitoring.Logf("scan: window %d resumed at point %d", e.tag.window, e.run.Index)
	e.arm(e.spec.Settle, e.settled)
}

// Abort cancels any pending delay and discards the window without saving.
func (e *Engine) Abort() {
	if e.run == nil && e.state == StateIdle {
		return
	}
	e.cancelPending()
	e.run = nil
	e.paused = false
	e.state = StateAborted
	monitoring.Logf("scan: window %d aborted", e.tag.window)
}

// Retry continues a halted window from the state it stopped in, keeping the
// accumulated data.
func (e *Engine) Retry() error {
	if e.state != StateHalted {
		return fmt.Errorf("cannot retry in state %s", e.state)
	}
	monitoring.Logf("scan: retrying window %d from state %s", e.tag.window, e.haltedIn)
	e.err = nil
	e.paused = false
	switch {
	case !e.configured:
		e.state = StateIdle
		e.configure()
	case e.haltedIn == StateAdvancing && e.run.Passes > e.spec.Averages:
		e.state = StateAdvancing
		e.finish()
	default:
		e.tune()
	}
	return nil
}

// Snapshot returns a copy of the engine state.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		State:  e.state,
		Paused: e.paused,
		Spec:   e.spec,
	}
	if e.run != nil {
		s.Index = e.run.Index
		s.Passes = e.run.Passes
		s.Axis = clone(e.run.Axis)
		s.Current = clone(e.run.Current)
		s.Sum = clone(e.run.Sum)
	}
	if e.state == StateHalted {
		s.HaltedIn = e.haltedIn
	}
	if e.err != nil {
		s.Error = e.err.Error()
	}
	return s
}

func (e *Engine) halt(err error) {
	in := e.state
	e.cancelPending()
	e.haltedIn = in
	e.state = StateHalted
	e.err = err
	monitoring.Logf("scan: window %d halted in state %s: %v", e.tag.window, in, err)
	if e.onHalt != nil {
		e.onHalt(in, err)
	}
}

// arm schedules fn after d. A callback belonging to an earlier generation
// is ignored, which covers a delay that fired just as it was cancelled.
func (e *Engine) arm(d time.Duration, fn func()) {
	e.gen++
	gen := e.gen
	e.pending = e.sched.ScheduleOnce(d, func() {
		if gen != e.gen {
			return
		}
		e.pending = nil
		fn()
	})
}

func (e *Engine) cancelPending() {
	if e.pending != nil {
		e.pending()
		e.pending = nil
	}
	e.gen++
}

func (e *Engine) emit(kind EventKind) {
	if e.listener == nil || e.run == nil {
		return
	}
	ev := Event{
		Kind:   kind,
		Window: e.tag.window,
		State:  e.state,
		Index:  e.run.Index,
		Passes: e.run.Passes,
		Axis:   clone(e.run.Axis),
	}
	switch kind {
	case EventTrace:
		ev.Current = clone(e.run.Current)
	case EventSum:
		ev.Sum = clone(e.run.Sum)
	}
	e.listener(ev)
}

func clone(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
