package scan

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/lockin.scan/internal/monitoring"
)

// BatchStatus is the state of a batch as a whole.
type BatchStatus string

const (
	BatchIdle     BatchStatus = "idle"
	BatchRunning  BatchStatus = "running"
	BatchFinished BatchStatus = "finished"
	BatchAborted  BatchStatus = "aborted"
	BatchHalted   BatchStatus = "halted"
)

// BatchState is a display copy of the controller state.
type BatchState struct {
	RunID       string      `json:"run_id"`
	Status      BatchStatus `json:"status"`
	Destination string      `json:"destination"`
	ActiveIndex int         `json:"active_index"`
	Windows     []string    `json:"windows"`
	Completed   []int       `json:"completed"`
	Aborted     []int       `json:"aborted"`
	Halt        string      `json:"halt,omitempty"`
	Engine      Snapshot    `json:"engine"`
}

// Controller sequences the windows of a BatchPlan through one Engine,
// strictly in order, starting a window only after the previous one ended.
// Like the engine it must only be used from the loop goroutine.
type Controller struct {
	engine   *Engine
	listener Listener

	runID     string
	plan      BatchPlan
	index     int
	status    BatchStatus
	completed []int
	aborted   []int
	halt      *HaltError
}

// NewController attaches a controller to engine. listener may be nil.
func NewController(engine *Engine, listener Listener) *Controller {
	c := &Controller{
		engine:   engine,
		listener: listener,
		index:    -1,
		status:   BatchIdle,
	}
	engine.SetListener(c.forward)
	engine.onComplete = c.windowComplete
	engine.onHalt = c.windowHalted
	return c
}

// RunBatch validates the whole plan and installs its first window.
func (c *Controller) RunBatch(plan BatchPlan) error {
	if c.status == BatchRunning || c.status == BatchHalted {
		return fmt.Errorf("batch %s is still %s", c.runID, c.status)
	}
	if err := plan.Validate(); err != nil {
		return err
	}

	c.runID = uuid.NewString()
	c.plan = plan
	c.index = -1
	c.completed = nil
	c.aborted = nil
	c.halt = nil
	c.status = BatchRunning
	monitoring.Logf("scan: starting batch %s with %d windows to %s", c.runID, len(plan.Windows), plan.Destination)
	c.next()
	return nil
}

// ActiveIndex is the plan index of the window being scanned, or -1 before
// the batch starts.
func (c *Controller) ActiveIndex() int { return c.index }

// Status returns the batch status.
func (c *Controller) Status() BatchStatus { return c.status }

// State returns a display copy of the controller and engine state.
func (c *Controller) State() BatchState {
	s := BatchState{
		RunID:       c.runID,
		Status:      c.status,
		Destination: c.plan.Destination,
		ActiveIndex: c.index,
		Completed:   append([]int(nil), c.completed...),
		Aborted:     append([]int(nil), c.aborted...),
		Engine:      c.engine.Snapshot(),
	}
	for _, w := range c.plan.Windows {
		s.Windows = append(s.Windows, w.String())
	}
	if c.halt != nil {
		s.Halt = c.halt.Error()
	}
	return s
}

// Pause pauses the active window.
func (c *Controller) Pause() {
	if c.status == BatchRunning {
		c.engine.Pause()
	}
}

// Resume resumes the active window.
func (c *Controller) Resume() {
	if c.status == BatchRunning {
		c.engine.Resume()
	}
}

// AbortCurrent discards the active window without saving and moves on to
// the next one.
func (c *Controller) AbortCurrent() {
	if c.status != BatchRunning && c.status != BatchHalted {
		return
	}
	c.engine.Abort()
	c.aborted = append(c.aborted, c.index)
	c.halt = nil
	c.status = BatchRunning
	c.emit(Event{Kind: EventWindowAborted, Window: c.index, State: StateAborted})
	c.next()
}

// AbortAll discards the active window and stops the batch.
func (c *Controller) AbortAll() {
	if c.status != BatchRunning && c.status != BatchHalted {
		return
	}
	c.engine.Abort()
	c.aborted = append(c.aborted, c.index)
	c.status = BatchAborted
	monitoring.Logf("scan: batch %s aborted at window %d", c.runID, c.index)
	c.emit(Event{Kind: EventBatchAborted, Window: c.index, State: StateAborted})
}

// Retry continues a halted batch from the window and state it stopped in.
func (c *Controller) Retry() error {
	if c.status != BatchHalted {
		return fmt.Errorf("batch is %s, not halted", c.status)
	}
	return c.resume(c.engine.Retry)
}

// RedoCurrent restarts the active window from scratch.
func (c *Controller) RedoCurrent() error {
	if c.status != BatchRunning && c.status != BatchHalted {
		return fmt.Errorf("batch is %s", c.status)
	}
	return c.resume(c.install)
}

// resume marks the batch running and calls start, which may halt or finish
// it again before returning. If start refuses, the previous status and halt
// are restored.
func (c *Controller) resume(start func() error) error {
	status, halt := c.status, c.halt
	c.status = BatchRunning
	c.halt = nil
	if err := start(); err != nil {
		c.status, c.halt = status, halt
		return err
	}
	return nil
}

func (c *Controller) next() {
	c.index++
	if c.index >= len(c.plan.Windows) {
		c.index = len(c.plan.Windows) - 1
		c.status = BatchFinished
		monitoring.Logf("scan: batch %s finished", c.runID)
		c.emit(Event{Kind: EventBatchFinished, Window: c.index, State: c.engine.State()})
		return
	}
	if err := c.install(); err != nil {
		// Only reachable if a window was changed after validation.
		c.windowHalted(StateIdle, err)
	}
}

func (c *Controller) install() error {
	spec := c.plan.Windows[c.index]
	c.emit(Event{Kind: EventWindowStarted, Window: c.index, State: StateIdle})
	return c.engine.install(spec, runTag{
		runID:       c.runID,
		window:      c.index,
		destination: c.plan.Destination,
	})
}

func (c *Controller) windowComplete(spectrum Spectrum, _ Metadata) {
	c.completed = append(c.completed, c.index)
	c.emit(Event{Kind: EventWindowComplete, Window: c.index, State: StateComplete, Spectrum: &spectrum})
	c.next()
}

func (c *Controller) windowHalted(in State, err error) {
	c.status = BatchHalted
	c.halt = &HaltError{Window: c.index, State: in, Err: err}
	c.emit(Event{Kind: EventBatchHalted, Window: c.index, State: in, Err: c.halt})
}

func (c *Controller) forward(ev Event) {
	ev.Window = c.index
	c.emit(ev)
}

func (c *Controller) emit(ev Event) {
	if c.listener != nil {
		c.listener(ev)
	}
}
