package spectrum

import (
	"errors"
	"time"

	"github.com/banshee-data/lockin.scan/internal/scan"
)

var testStart = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

func testWindow() (scan.Spectrum, scan.Metadata) {
	spec := scan.WindowSpec{
		Start: 100, Stop: 100.01, Step: 0.005,
		Averages: 2, Sensitivity: 17, TimeConstant: 8,
		Integration: 500 * time.Millisecond, Settle: 100 * time.Millisecond,
	}
	spectrum := scan.Spectrum{
		Frequencies: []float64{100, 100.005, 100.01},
		Values:      []float64{1.5e-6, -2e-7, 3.25e-6},
	}
	meta := scan.Metadata{
		Integration:      spec.Integration,
		SensitivityLabel: "1 mV",
		TimeConstant:     100 * time.Millisecond,
		Calibration:      [2]float64{15, 75},
		RunID:            "0f8fad5b-d9cb-469f-a165-70867728950e",
		WindowIndex:      1,
		Passes:           3,
		Multiplier:       6,
		Window:           spec,
		StartedAt:        testStart,
		FinishedAt:       testStart.Add(90 * time.Second),
	}
	return spectrum, meta
}

type recordingStore struct {
	saved []string
	err   error
}

func (r *recordingStore) Save(destination string, _ scan.Spectrum, _ scan.Metadata) error {
	r.saved = append(r.saved, destination)
	return r.err
}

var errDisk = errors.New("disk full")
