package processor

import "math"

// GuardMultiplier scales the measurement time into the signal-lost guard.
const GuardMultiplier = 2

// Retarget is a request to change the edge target of a capture channel.
type Retarget struct {
	Target     uint32
	GuardTicks uint64
}

// AdaptiveTarget returns the number of edges that take about mtMs
// milliseconds at frequency f: max(1, floor(f*mt/1000)).
func AdaptiveTarget(f float64, mtMs uint32) uint32 {
	if math.IsNaN(f) || f <= 0 {
		return 1
	}
	t := math.Floor(f * float64(mtMs) / 1000)
	if t < 1 {
		return 1
	}
	if t > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(t)
}

// GuardTicks converts the measurement time into time base ticks, scaled by
// GuardMultiplier.
func GuardTicks(mtMs uint32, referenceHz uint32) uint64 {
	return uint64(mtMs) * GuardMultiplier * uint64(referenceHz) / 1000
}

// NeedsRetarget reports whether next differs from current by more than minInterval.
func NeedsRetarget(current, next, minInterval uint32) bool {
	var d uint32
	if next > current {
		d = next - current
	} else {
		d = current - next
	}
	return d > minInterval
}
