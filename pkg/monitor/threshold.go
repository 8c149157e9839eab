// Package monitor implements debounced alarm detection for measured quantities.
package monitor

import "math"

// Direction selects which side of the limit is a violation.
type Direction int

const (
	Above Direction = iota // current > limit violates
	Below                  // current < limit violates
)

func (d Direction) String() string {
	if d == Below {
		return "below"
	}
	return "above"
}

// Threshold confirms a violation after a number of consecutive readings
// beyond the limit. It rises exactly once per excursion.
type Threshold struct {
	dir     Direction
	confirm uint32
	count   uint32
}

// NewThreshold creates a monitor that confirms after confirm consecutive
// violations. A zero confirm count behaves as 1.
func NewThreshold(dir Direction, confirm uint32) *Threshold {
	if confirm == 0 {
		confirm = 1
	}
	return &Threshold{dir: dir, confirm: confirm}
}

// Check feeds one reading and reports whether it confirmed the alarm.
// A NaN limit never trips. Any in-range reading resets the counter.
func (t *Threshold) Check(current, limit float32) bool {
	if math.IsNaN(float64(limit)) {
		t.count = 0
		return false
	}

	var violated bool
	switch t.dir {
	case Above:
		violated = current > limit
	case Below:
		violated = current < limit
	}
	if !violated {
		t.count = 0
		return false
	}

	if t.count >= t.confirm {
		return false
	}
	t.count++
	return t.count == t.confirm
}

// Retry caps the counter just below the threshold so that the next
// violation confirms again. Used when acting on a confirmation failed.
func (t *Threshold) Retry() {
	if t.count >= t.confirm {
		t.count = t.confirm - 1
	}
}

// Reset clears the counter.
func (t *Threshold) Reset() { t.count = 0 }

// Count returns the number of consecutive violations seen, clamped at the threshold.
func (t *Threshold) Count() uint32 { return t.count }
