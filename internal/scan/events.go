package scan

// EventKind identifies what changed.
type EventKind string

const (
	// EventTrace follows every acquired point; Current holds the current-pass array.
	EventTrace EventKind = "trace"
	// EventSum follows every pass boundary; Sum holds the accumulated sum.
	EventSum EventKind = "sum"

	EventWindowStarted  EventKind = "window_started"
	EventWindowComplete EventKind = "window_complete"
	EventWindowAborted  EventKind = "window_aborted"
	EventBatchFinished  EventKind = "batch_finished"
	EventBatchAborted   EventKind = "batch_aborted"
	EventBatchHalted    EventKind = "batch_halted"
)

// Event is delivered to a Listener on the scan loop goroutine. Slices are
// copies and may be retained.
type Event struct {
	Kind   EventKind
	Window int
	State  State
	Index  int
	Passes int

	Axis    []float64
	Current []float64
	Sum     []float64

	// Spectrum is set on EventWindowComplete.
	Spectrum *Spectrum
	// Err is set on EventBatchHalted and is a *HaltError.
	Err error
}

// Listener receives scan events. It must not block.
type Listener func(Event)

// Listeners fans one event out to several listeners in order.
func Listeners(ls ...Listener) Listener {
	return func(ev Event) {
		for _, l := range ls {
			if l != nil {
				l(ev)
			}
		}
	}
}
