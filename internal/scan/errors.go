package scan

import "fmt"

// InstrumentError reports a failed InstrumentPort call.
type InstrumentError struct {
	Op  string
	Err error
}

func (e *InstrumentError) Error() string {
	return fmt.Sprintf("instrument communication failed during %s: %v", e.Op, e.Err)
}

func (e *InstrumentError) Unwrap() error { return e.Err }

// StorageError reports a failed SpectrumStore save.
type StorageError struct {
	Destination string
	Err         error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to save spectrum to %q: %v", e.Destination, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// HaltError is reported when a batch stops on an error. Window is the index
// of the window in the plan and State the engine state it stopped in.
type HaltError struct {
	Window int
	State  State
	Err    error
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("batch halted at window %d in state %s: %v", e.Window, e.State, e.Err)
}

func (e *HaltError) Unwrap() error { return e.Err }
