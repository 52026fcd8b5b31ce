package scan

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAxis_Example(t *testing.T) {
	axis, err := GenerateAxis(100.000, 100.010, 0.005)
	require.NoError(t, err)
	assert.Equal(t, []float64{100.000, 100.005, 100.010}, axis)
}

func TestGenerateAxis_Properties(t *testing.T) {
	tests := []struct {
		name              string
		start, stop, step float64
		points            int
	}{
		{"single point", 250, 250, 0.1, 1},
		{"exact stop", 10, 20, 0.5, 21},
		{"unreachable stop", 10, 10.9, 0.25, 4},
		{"sub-kHz step", 345.796, 345.800, 0.0005, 9},
		{"decimal step", 0.1, 0.7, 0.1, 7},
		{"wide", 80, 120, 0.01, 4001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			axis, err := GenerateAxis(tt.start, tt.stop, tt.step)
			require.NoError(t, err)
			require.Len(t, axis, tt.points)

			assert.Equal(t, tt.start, axis[0])
			for i, f := range axis {
				assert.LessOrEqual(t, f, tt.stop, "point %d", i)
				if i > 0 {
					assert.Greater(t, f, axis[i-1], "point %d", i)
					assert.InDelta(t, tt.step, f-axis[i-1], 1e-9, "point %d", i)
				}
			}
			assert.Less(t, tt.stop-axis[len(axis)-1], tt.step)

			again, err := GenerateAxis(tt.start, tt.stop, tt.step)
			require.NoError(t, err)
			assert.Equal(t, axis, again)
		})
	}
}

func TestGenerateAxis_Invalid(t *testing.T) {
	tests := []struct {
		name              string
		start, stop, step float64
	}{
		{"start above stop", 101, 100, 0.1},
		{"zero step", 100, 101, 0},
		{"negative step", 100, 101, -0.1},
		{"nan start", math.NaN(), 101, 0.1},
		{"infinite stop", 100, math.Inf(1), 0.1},
		{"nan step", 100, 101, math.NaN()},
		{"too many points", 0, 1000, 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			axis, err := GenerateAxis(tt.start, tt.stop, tt.step)
			assert.ErrorIs(t, err, ErrInvalidRange)
			assert.Nil(t, axis)
		})
	}
}
