package monitor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func feed(th *Threshold, limit float32, readings ...float32) []bool {
	out := make([]bool, len(readings))
	for i, r := range readings {
		out[i] = th.Check(r, limit)
	}
	return out
}

func TestThreshold(t *testing.T) {
	tests := []struct {
		name     string
		dir      Direction
		confirm  uint32
		limit    float32
		readings []float32
		want     []bool
	}{
		{
			name:     "rises on third consecutive violation",
			dir:      Above,
			confirm:  3,
			limit:    100,
			readings: []float32{101, 101, 102},
			want:     []bool{false, false, true},
		},
		{
			name:     "in range reading resets",
			dir:      Above,
			confirm:  3,
			limit:    100,
			readings: []float32{101, 101, 99, 101, 101},
			want:     []bool{false, false, false, false, false},
		},
		{
			name:     "rises once then clamps",
			dir:      Above,
			confirm:  2,
			limit:    100,
			readings: []float32{101, 101, 101, 101},
			want:     []bool{false, true, false, false},
		},
		{
			name:     "rises again after recovery",
			dir:      Above,
			confirm:  2,
			limit:    100,
			readings: []float32{101, 101, 50, 101, 101},
			want:     []bool{false, true, false, false, true},
		},
		{
			name:     "equal to limit is in range",
			dir:      Above,
			confirm:  1,
			limit:    100,
			readings: []float32{100},
			want:     []bool{false},
		},
		{
			name:     "below direction",
			dir:      Below,
			confirm:  2,
			limit:    3.0,
			readings: []float32{3.1, 2.9, 2.8, 2.7},
			want:     []bool{false, false, true, false},
		},
		{
			name:     "below direction ignores high readings",
			dir:      Below,
			confirm:  1,
			limit:    3.0,
			readings: []float32{10, 20},
			want:     []bool{false, false},
		},
		{
			name:     "NaN limit never trips",
			dir:      Above,
			confirm:  1,
			limit:    float32(math.NaN()),
			readings: []float32{1e9, 1e9},
			want:     []bool{false, false},
		},
		{
			name:     "zero confirm behaves as one",
			dir:      Above,
			confirm:  0,
			limit:    0,
			readings: []float32{1},
			want:     []bool{true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := NewThreshold(tt.dir, tt.confirm)
			assert.Equal(t, tt.want, feed(th, tt.limit, tt.readings...))
		})
	}
}

func TestThresholdRetry(t *testing.T) {
	th := NewThreshold(Above, 3)
	assert.Equal(t, []bool{false, false, true}, feed(th, 100, 101, 101, 101))
	assert.Equal(t, uint32(3), th.Count())

	th.Retry()
	assert.Equal(t, uint32(2), th.Count())
	assert.True(t, th.Check(101, 100), "next violation confirms again")

	th.Reset()
	assert.Equal(t, uint32(0), th.Count())
}

func TestThresholdRetryBelowThresholdIsNoop(t *testing.T) {
	th := NewThreshold(Above, 3)
	th.Check(101, 100)
	th.Retry()
	assert.Equal(t, uint32(1), th.Count())
}
