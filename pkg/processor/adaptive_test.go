package processor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdaptiveTarget(t *testing.T) {
	tests := []struct {
		name string
		f    float64
		mt   uint32
		want uint32
	}{
		{name: "2 kHz over 50 ms", f: 2000, mt: 50, want: 100},
		{name: "very slow signal clamps to one", f: 0.01, mt: 10, want: 1},
		{name: "floors", f: 32765.4, mt: 500, want: 16382},
		{name: "NaN", f: math.NaN(), mt: 500, want: 1},
		{name: "negative", f: -5, mt: 500, want: 1},
		{name: "saturates", f: 1e12, mt: 60000, want: math.MaxUint32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AdaptiveTarget(tt.f, tt.mt))
		})
	}
}

func TestGuardTicks(t *testing.T) {
	assert.Equal(t, uint64(1_000_000), GuardTicks(500, 1_000_000))
	assert.Equal(t, uint64(20), GuardTicks(10, 1000))
}

func TestNeedsRetarget(t *testing.T) {
	tests := []struct {
		current, next, min uint32
		want               bool
	}{
		{100, 100, 2, false},
		{100, 102, 2, false},
		{100, 103, 2, true},
		{100, 98, 2, false},
		{100, 97, 2, true},
		{100, 101, 0, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NeedsRetarget(tt.current, tt.next, tt.min), "%d -> %d (min %d)", tt.current, tt.next, tt.min)
	}
}
