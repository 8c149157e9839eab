// Package freq converts capture snapshots into frequencies.
package freq

import "math"

// Delta returns the number of ticks between two wide snapshots. Unsigned
// subtraction keeps it correct across a wraparound of the wide counter.
func Delta(prev, cur uint64) uint64 {
	return cur - prev
}

// Frequency returns reference*multiplier*target/delta, or NaN for a zero delta.
func Frequency(delta uint64, target uint32, reference float64, multiplier float64) float64 {
	if delta == 0 {
		return math.NaN()
	}
	return reference * multiplier * float64(target) / float64(delta)
}

// Tracker holds the previous completion snapshot of one channel. The first
// completion after Reset only primes the tracker.
type Tracker struct {
	prev    uint64
	startup bool
}

// NewTracker returns a tracker waiting for its first snapshot.
func NewTracker() *Tracker {
	return &Tracker{startup: true}
}

// Reset discards the previous snapshot, e.g. after the channel was re-enabled
// or the signal was lost.
func (t *Tracker) Reset() {
	t.startup = true
}

// Startup reports whether the next snapshot will be discarded.
func (t *Tracker) Startup() bool { return t.startup }

// Accept records snapshot and returns the delta to the previous one. ok is
// false for the first snapshot after Reset.
func (t *Tracker) Accept(snapshot uint64) (delta uint64, ok bool) {
	prev := t.prev
	t.prev = snapshot
	if t.startup {
		t.startup = false
		return 0, false
	}
	return Delta(prev, snapshot), true
}
