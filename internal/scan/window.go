package scan

import (
	"fmt"
	"time"

	"github.com/banshee-data/lockin.scan/internal/instrument"
)

// WindowSpec describes one frequency window. Frequencies are in MHz.
// Sensitivity and TimeConstant are lock-in selector indices.
type WindowSpec struct {
	Start        float64       `json:"start_mhz"`
	Stop         float64       `json:"stop_mhz"`
	Step         float64       `json:"step_mhz"`
	Averages     int           `json:"averages"`
	Sensitivity  int           `json:"sensitivity"`
	TimeConstant int           `json:"time_constant"`
	Integration  time.Duration `json:"integration"`
	Settle       time.Duration `json:"settle"`
}

// Validate checks that the window can be scanned. Stop must be at least one
// step above start.
func (w WindowSpec) Validate() error {
	axis, err := GenerateAxis(w.Start, w.Stop, w.Step)
	if err != nil {
		return err
	}
	if len(axis) < 2 {
		return fmt.Errorf("%w: stop %g is not reachable from start %g in steps of %g",
			ErrInvalidRange, w.Stop, w.Start, w.Step)
	}
	if w.Averages <= 0 {
		return fmt.Errorf("averages must be positive, got %d", w.Averages)
	}
	if w.Integration <= 0 {
		return fmt.Errorf("integration time must be positive, got %s", w.Integration)
	}
	if w.Settle < 0 {
		return fmt.Errorf("settle time must not be negative, got %s", w.Settle)
	}
	return nil
}

// Points returns the number of axis points, or 0 for an invalid window.
func (w WindowSpec) Points() int {
	axis, err := GenerateAxis(w.Start, w.Stop, w.Step)
	if err != nil {
		return 0
	}
	return len(axis)
}

// String renders the window the way the batch list shows it.
func (w WindowSpec) String() string {
	return fmt.Sprintf("%.3f -- %.3f MHz; step=%.3f MHz; avg=%d; sens=%s; tc=%s; itgtime=%s; waittime=%s",
		w.Start, w.Stop, w.Step, w.Averages,
		instrument.SensitivityLabel(w.Sensitivity), instrument.TimeConstantLabel(w.TimeConstant),
		w.Integration, w.Settle)
}

// BatchPlan is an ordered list of windows sharing one destination.
type BatchPlan struct {
	Destination string       `json:"destination"`
	Windows     []WindowSpec `json:"windows"`
}

// Validate checks every window up front so a batch never starts with a bad
// entry waiting further down the list.
func (p BatchPlan) Validate() error {
	if len(p.Windows) == 0 {
		return fmt.Errorf("batch plan has no windows")
	}
	if p.Destination == "" {
		return fmt.Errorf("batch plan has no destination")
	}
	for i, w := range p.Windows {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("window %d: %w", i, err)
		}
	}
	return nil
}
