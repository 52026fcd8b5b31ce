package config

import (
	"fmt"
	"time"

	"github.com/banshee-data/lockin.scan/internal/instrument"
	"github.com/banshee-data/lockin.scan/internal/scan"
)

// planFile is the on-disk batch plan. Durations are strings like "500ms".
type planFile struct {
	Destination string       `json:"destination"`
	Windows     []windowFile `json:"windows"`
}

type windowFile struct {
	Start        float64 `json:"start_mhz"`
	Stop         float64 `json:"stop_mhz"`
	Step         float64 `json:"step_mhz"`
	Averages     int     `json:"averages"`
	Sensitivity  int     `json:"sensitivity"`
	TimeConstant int     `json:"time_constant"`
	Integration  string  `json:"integration"`
	Settle       string  `json:"settle"`
}

// LoadBatchPlan reads a batch plan and validates every window before
// anything is scanned. destination, when non-empty, overrides the file's.
func LoadBatchPlan(path, destination string) (scan.BatchPlan, error) {
	var f planFile
	if err := readJSONFile(path, &f); err != nil {
		return scan.BatchPlan{}, err
	}

	plan := scan.BatchPlan{Destination: f.Destination}
	if destination != "" {
		plan.Destination = destination
	}
	for i, w := range f.Windows {
		spec, err := w.spec()
		if err != nil {
			return scan.BatchPlan{}, fmt.Errorf("window %d: %w", i, err)
		}
		plan.Windows = append(plan.Windows, spec)
	}
	if err := plan.Validate(); err != nil {
		return scan.BatchPlan{}, err
	}
	return plan, nil
}

func (w windowFile) spec() (scan.WindowSpec, error) {
	if w.Sensitivity < 0 || w.Sensitivity >= instrument.NumSensitivities {
		return scan.WindowSpec{}, fmt.Errorf("sensitivity must be between 0 and %d, got %d", instrument.NumSensitivities-1, w.Sensitivity)
	}
	if w.TimeConstant < 0 || w.TimeConstant >= instrument.NumTimeConstants {
		return scan.WindowSpec{}, fmt.Errorf("time_constant must be between 0 and %d, got %d", instrument.NumTimeConstants-1, w.TimeConstant)
	}
	integration, err := time.ParseDuration(w.Integration)
	if err != nil {
		return scan.WindowSpec{}, fmt.Errorf("invalid integration '%s': %w", w.Integration, err)
	}
	var settle time.Duration
	if w.Settle != "" {
		if settle, err = time.ParseDuration(w.Settle); err != nil {
			return scan.WindowSpec{}, fmt.Errorf("invalid settle '%s': %w", w.Settle, err)
		}
	}
	return scan.WindowSpec{
		Start:        w.Start,
		Stop:         w.Stop,
		Step:         w.Step,
		Averages:     w.Averages,
		Sensitivity:  w.Sensitivity,
		TimeConstant: w.TimeConstant,
		Integration:  integration,
		Settle:       settle,
	}, nil
}
