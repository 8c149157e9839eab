package capture

import "sync/atomic"

// Ring is a single-producer, single-consumer ring of wide-tick snapshots.
// The producer is the capture transfer path, the consumer is the completion
// handler. Indices are published with atomic stores, so the consumer never
// observes a slot before it is written.
type Ring struct {
	buf  []uint64
	mask uint32
	rd   atomic.Uint32 // consumer index (monotonic)
	wr   atomic.Uint32 // producer index (monotonic)
}

// NewRing creates a ring; size must be a power of two >= 2.
func NewRing(size int) *Ring {
	if size < 2 || (size&(size-1)) != 0 {
		panic("capture: ring size must be power of two >= 2")
	}
	return &Ring{
		buf:  make([]uint64, size),
		mask: uint32(size - 1),
	}
}

// Push stores v. It reports false when the ring is full and v was dropped.
func (r *Ring) Push(v uint64) bool {
	wr := r.wr.Load()
	if wr-r.rd.Load() == uint32(len(r.buf)) {
		return false
	}
	r.buf[wr&r.mask] = v
	r.wr.Store(wr + 1) // publishes the slot
	return true
}

// Pop removes the oldest snapshot.
func (r *Ring) Pop() (uint64, bool) {
	rd := r.rd.Load()
	if rd == r.wr.Load() {
		return 0, false
	}
	v := r.buf[rd&r.mask]
	r.rd.Store(rd + 1)
	return v, true
}

// Len returns the number of buffered snapshots.
func (r *Ring) Len() int {
	return int(r.wr.Load() - r.rd.Load())
}
