package config

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lockin.scan/internal/scan"
)

const planJSON = `{
	"destination": "/data/run.lwa",
	"windows": [
		{"start_mhz": 600, "stop_mhz": 600.1, "step_mhz": 0.01, "averages": 4,
		 "sensitivity": 17, "time_constant": 8, "integration": "500ms", "settle": "100ms"},
		{"start_mhz": 612.5, "stop_mhz": 612.6, "step_mhz": 0.005, "averages": 1,
		 "sensitivity": 20, "time_constant": 9, "integration": "1s"}
	]
}`

func TestLoadBatchPlan(t *testing.T) {
	plan, err := LoadBatchPlan(writeFile(t, "plan.json", planJSON), "")
	require.NoError(t, err)

	want := scan.BatchPlan{
		Destination: "/data/run.lwa",
		Windows: []scan.WindowSpec{
			{Start: 600, Stop: 600.1, Step: 0.01, Averages: 4, Sensitivity: 17, TimeConstant: 8,
				Integration: 500 * time.Millisecond, Settle: 100 * time.Millisecond},
			{Start: 612.5, Stop: 612.6, Step: 0.005, Averages: 1, Sensitivity: 20, TimeConstant: 9,
				Integration: time.Second},
		},
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadBatchPlan_DestinationOverride(t *testing.T) {
	plan, err := LoadBatchPlan(writeFile(t, "plan.json", planJSON), "/tmp/other.lwa")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.lwa", plan.Destination)
}

func TestLoadBatchPlan_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		window  string
		wantErr string
	}{
		{"sensitivity", `{"start_mhz": 1, "stop_mhz": 2, "step_mhz": 0.5, "averages": 1, "sensitivity": 27, "integration": "1s"}`, "sensitivity"},
		{"time constant", `{"start_mhz": 1, "stop_mhz": 2, "step_mhz": 0.5, "averages": 1, "time_constant": -1, "integration": "1s"}`, "time_constant"},
		{"integration", `{"start_mhz": 1, "stop_mhz": 2, "step_mhz": 0.5, "averages": 1, "integration": "soon"}`, "invalid integration"},
		{"settle", `{"start_mhz": 1, "stop_mhz": 2, "step_mhz": 0.5, "averages": 1, "integration": "1s", "settle": "x"}`, "invalid settle"},
		{"averages", `{"start_mhz": 1, "stop_mhz": 2, "step_mhz": 0.5, "averages": 0, "integration": "1s"}`, "averages"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "plan.json", `{"destination": "x.lwa", "windows": [`+tt.window+`]}`)
			_, err := LoadBatchPlan(path, "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "window 0")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadBatchPlan_InvalidRange(t *testing.T) {
	path := writeFile(t, "plan.json", `{"destination": "x.lwa", "windows": [
		{"start_mhz": 1, "stop_mhz": 2, "step_mhz": 0.5, "averages": 1, "integration": "1s"},
		{"start_mhz": 5, "stop_mhz": 4, "step_mhz": 0.5, "averages": 1, "integration": "1s"}
	]}`)
	_, err := LoadBatchPlan(path, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, scan.ErrInvalidRange))
	assert.Contains(t, err.Error(), "window 1")
}

func TestLoadBatchPlan_Empty(t *testing.T) {
	_, err := LoadBatchPlan(writeFile(t, "plan.json", `{"destination": "x.lwa", "windows": []}`), "")
	assert.ErrorContains(t, err, "no windows")

	_, err = LoadBatchPlan(writeFile(t, "plan.json", `{"windows": [{"start_mhz": 1, "stop_mhz": 2, "step_mhz": 0.5, "averages": 1, "integration": "1s"}]}`), "")
	assert.ErrorContains(t, err, "no destination")
}
