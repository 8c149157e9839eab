// Package timebase virtualizes a narrow wrapping hardware counter into a wide
// monotonic tick count shared by every measurement consumer.
package timebase

import (
	"sync"
	"sync/atomic"

	"github.com/itohio/gofreqmeter/pkg/errcode"
	"github.com/itohio/gofreqmeter/pkg/hw"
)

// overflowPriority is the NVIC-style priority of the overflow interrupt; it
// must preempt capture interrupts so Extend never sees a stale extension.
const overflowPriority = 1

// TimeBase combines the hardware register (low bits) with a software
// overflow extension (high bits). The wide value is 64 bits and wraps modulo 2^64.
type TimeBase struct {
	counter hw.Counter
	irq     hw.InterruptController
	bits    uint
	mask    uint64

	// seq is odd while the overflow handler updates ext.
	seq atomic.Uint32
	ext atomic.Uint64

	mu          sync.Mutex // serializes start/stop transitions
	refs        int32
	initialized atomic.Bool

	hooks []func(now uint64)
}

// New creates a time base over counter. Init must be called before Acquire.
func New(counter hw.Counter, irq hw.InterruptController) *TimeBase {
	bits := counter.Bits()
	return &TimeBase{
		counter: counter,
		irq:     irq,
		bits:    bits,
		mask:    1<<bits - 1,
	}
}

// Init configures the counter and installs the overflow handler.
func (tb *TimeBase) Init() error {
	if err := tb.counter.Init(); err != nil {
		return errcode.Wrap(errcode.NotInitialized, "timebase.init", err)
	}
	tb.counter.OnOverflow(tb.handleOverflow)
	tb.irq.SetPriority(hw.IRQTimeBaseOverflow, overflowPriority)
	tb.irq.Mask(hw.IRQTimeBaseOverflow)
	tb.initialized.Store(true)
	return nil
}

// OnOverflow registers fn to run in overflow interrupt context with the
// current wide value. fn must not block. Register hooks before the first Acquire.
func (tb *TimeBase) OnOverflow(fn func(now uint64)) {
	tb.mu.Lock()
	tb.hooks = append(tb.hooks, fn)
	tb.mu.Unlock()
}

// Acquire returns a new handle. It fails if Init was never called.
func (tb *TimeBase) Acquire() (*Handle, error) {
	if !tb.initialized.Load() {
		return nil, errcode.New(errcode.NotInitialized, "timebase.acquire", "counter not initialized")
	}
	return &Handle{tb: tb}, nil
}

// Period returns the number of ticks in one register wraparound.
func (tb *TimeBase) Period() uint64 { return tb.mask + 1 }

// Running reports whether at least one handle wants the counter running.
func (tb *TimeBase) Running() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.refs > 0
}

// Value returns the wide tick count.
func (tb *TimeBase) Value() uint64 {
	for {
		s := tb.seq.Load()
		if s&1 != 0 {
			continue
		}
		hi := tb.ext.Load()
		lo := uint64(tb.counter.Value())
		if tb.counter.OverflowPending() {
			// Wrapped, handler not run yet: the register may have been read
			// before the wrap, read it again.
			lo = uint64(tb.counter.Value())
			hi++
		}
		if tb.seq.Load() == s {
			return hi<<tb.bits | lo&tb.mask
		}
	}
}

// Extend widens a register value latched by capture hardware within the last
// register period.
func (tb *TimeBase) Extend(latched uint32) uint64 {
	now := tb.Value()
	hi := now >> tb.bits
	if uint64(latched)&tb.mask > now&tb.mask {
		// Latched before the most recent wraparound.
		hi--
	}
	return hi<<tb.bits | uint64(latched)&tb.mask
}

func (tb *TimeBase) handleOverflow() {
	tb.seq.Add(1)
	tb.counter.ClearOverflow()
	tb.ext.Add(1)
	tb.seq.Add(1)

	if len(tb.hooks) == 0 {
		return
	}
	now := tb.Value()
	for _, fn := range tb.hooks {
		fn(now)
	}
}

func (tb *TimeBase) retain() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refs++
	if tb.refs == 1 {
		tb.counter.Start()
		tb.irq.Unmask(hw.IRQTimeBaseOverflow)
	}
}

func (tb *TimeBase) release() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if tb.refs == 0 {
		return
	}
	tb.refs--
	if tb.refs == 0 {
		tb.irq.Mask(hw.IRQTimeBaseOverflow)
		tb.counter.Stop()
	}
}

// Handle is one consumer's claim on the time base. A handle is owned by a
// single goroutine; share the TimeBase, not the handle.
type Handle struct {
	tb      *TimeBase
	started bool
}

// WantStart makes this handle hold the counter running. Idempotent.
func (h *Handle) WantStart() {
	if h.started {
		return
	}
	h.started = true
	h.tb.retain()
}

// WantStop drops this handle's hold on the counter. Idempotent.
func (h *Handle) WantStop() {
	if !h.started {
		return
	}
	h.started = false
	h.tb.release()
}

// Release is the handle's destructor; it implies WantStop.
func (h *Handle) Release() { h.WantStop() }

// Value returns the wide tick count.
func (h *Handle) Value() uint64 { return h.tb.Value() }

// Extend widens a latched register value, see TimeBase.Extend.
func (h *Handle) Extend(latched uint32) uint64 { return h.tb.Extend(latched) }

// TimeBase returns the owning time base.
func (h *Handle) TimeBase() *TimeBase { return h.tb }
