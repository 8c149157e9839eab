// Package capture implements the edge-capture channel: every input edge of a
// resonant sensor is timestamped against the time base and a completion
// notification is posted once the configured number of edges (the target)
// has been captured, or a signal-lost notification when the guard elapses.
package capture

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/itohio/gofreqmeter/pkg/channel"
	"github.com/itohio/gofreqmeter/pkg/hw"
	"github.com/itohio/gofreqmeter/pkg/timebase"
)

// DefaultRingSize is the number of edge snapshots buffered between completions.
const DefaultRingSize = 16

// capturePriority is below the time base overflow priority.
const capturePriority = 2

// Kind distinguishes notifications.
type Kind int

const (
	// Completed: target edges were captured.
	Completed Kind = iota
	// SignalLost: the guard interval elapsed without edges.
	SignalLost
)

func (k Kind) String() string {
	if k == Completed {
		return "completed"
	}
	return "signal_lost"
}

// Notification is posted by a channel from interrupt context.
type Notification struct {
	Channel  channel.Freq
	Kind     Kind
	Snapshot uint64 // wide tick of the last edge of the cycle (Completed only)
	Target   uint32 // edges in the finished cycle
	Arm      uint32 // arm generation the notification belongs to
}

// Channel is one edge-capture unit together with its interrupt handlers.
type Channel struct {
	id   channel.Freq
	unit hw.CaptureUnit
	irq  hw.InterruptController
	tb   *timebase.Handle
	ring *Ring
	out  chan<- Notification

	mu         sync.Mutex // serializes Configure/Reset/Stop
	configured bool
	running    atomic.Bool
	arm        atomic.Uint32 // bumped every time a stopped channel is armed

	target    atomic.Uint32
	nextTgt   atomic.Uint32 // 0: no retarget pending
	guard     atomic.Uint64
	count     atomic.Uint32
	resetReq  atomic.Bool
	lastEdge  atomic.Uint64
	lost      atomic.Bool
	last      uint64 // last drained snapshot, completion handler only
	overruns  atomic.Uint32
	completes atomic.Uint32
}

// New creates a capture channel posting notifications to out. out should be
// buffered; notifications that do not fit are dropped and counted as overruns.
func New(id channel.Freq, unit hw.CaptureUnit, irq hw.InterruptController, tb *timebase.TimeBase, out chan<- Notification) (*Channel, error) {
	h, err := tb.Acquire()
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", id, err)
	}
	irq.SetPriority(hw.CaptureIRQ(id), capturePriority)
	irq.Mask(hw.CaptureIRQ(id))
	c := &Channel{
		id:   id,
		unit: unit,
		irq:  irq,
		tb:   h,
		ring: NewRing(DefaultRingSize),
		out:  out,
	}
	tb.OnOverflow(c.checkGuard)
	return c, nil
}

// ID returns the frequency channel this unit captures.
func (c *Channel) ID() channel.Freq { return c.id }

// Configure arms the channel. When the channel is already running the new
// target and guard are swapped in at the start of the next cycle, so the
// edges of the cycle in flight are not lost.
func (c *Channel) Configure(target uint32, guardTicks uint64) error {
	if target == 0 {
		target = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running.Load() {
		c.retargetLocked(target, guardTicks)
		return nil
	}

	if !c.configured {
		if err := c.unit.Configure(c.latch); err != nil {
			return fmt.Errorf("capture %s: configure: %w", c.id, err)
		}
		c.configured = true
	}

	c.target.Store(target)
	c.nextTgt.Store(0)
	c.guard.Store(guardTicks)
	c.count.Store(0)
	c.lost.Store(false)
	c.drain()

	c.tb.WantStart()
	c.lastEdge.Store(c.tb.Value())
	c.arm.Add(1)
	c.running.Store(true)
	c.irq.Unmask(hw.CaptureIRQ(c.id))
	if err := c.unit.ColdStart(); err != nil {
		c.stopLocked()
		return fmt.Errorf("capture %s: start: %w", c.id, err)
	}
	return nil
}

// Retarget swaps target and guard in at the start of the next cycle. It
// never arms a stopped channel and reports whether the change was taken.
func (c *Channel) Retarget(target uint32, guardTicks uint64) bool {
	if target == 0 {
		target = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running.Load() {
		return false
	}
	c.retargetLocked(target, guardTicks)
	return true
}

func (c *Channel) retargetLocked(target uint32, guardTicks uint64) {
	c.guard.Store(guardTicks)
	c.nextTgt.Store(target)
}

// Reset re-arms the running channel: the edge count restarts from zero at
// the next edge, with the pending target if one was configured.
func (c *Channel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running.Load() {
		return
	}
	c.lastEdge.Store(c.tb.Value())
	c.lost.Store(false)
	c.resetReq.Store(true)
}

// Stop disables capture and its interrupt source.
func (c *Channel) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *Channel) stopLocked() error {
	if !c.running.Swap(false) {
		return nil
	}
	c.irq.Mask(hw.CaptureIRQ(c.id))
	err := c.unit.Stop()
	c.tb.WantStop()
	if err != nil {
		return fmt.Errorf("capture %s: stop: %w", c.id, err)
	}
	return nil
}

// Running reports whether the channel is armed.
func (c *Channel) Running() bool { return c.running.Load() }

// Arm returns the current arm generation. Notifications carrying an older
// generation were raised before the last Stop.
func (c *Channel) Arm() uint32 { return c.arm.Load() }

// Target returns the target of the cycle in progress.
func (c *Channel) Target() uint32 { return c.target.Load() }

// GuardTicks returns the configured guard interval.
func (c *Channel) GuardTicks() uint64 { return c.guard.Load() }

// Overruns returns the number of notifications dropped because out was full.
func (c *Channel) Overruns() uint32 { return c.overruns.Load() }

// Completions returns the number of completed cycles.
func (c *Channel) Completions() uint32 { return c.completes.Load() }

// latch runs in transfer context for every edge: it widens the latched
// register value, records it and raises completion after target edges.
func (c *Channel) latch(latched uint32) {
	if !c.running.Load() {
		return
	}
	ts := c.tb.Extend(latched)

	if c.resetReq.Swap(false) {
		// Nothing is in flight after a reset; a pending target applies now.
		c.count.Store(0)
		c.drain()
		if next := c.nextTgt.Swap(0); next != 0 {
			c.target.Store(next)
		}
	}

	if !c.ring.Push(ts) {
		// Half-transfer: make room, the history is only needed for its tail.
		c.drain()
		c.ring.Push(ts)
	}
	c.lastEdge.Store(ts)
	c.lost.Store(false)

	if c.count.Add(1) >= c.target.Load() {
		c.complete()
	}
}

// complete is the capture-complete interrupt handler.
func (c *Channel) complete() {
	c.drain()
	target := c.target.Load()
	c.count.Store(0)
	if next := c.nextTgt.Swap(0); next != 0 {
		c.target.Store(next)
	}
	c.completes.Add(1)
	c.post(Notification{Channel: c.id, Kind: Completed, Snapshot: c.last, Target: target, Arm: c.arm.Load()})
}

// checkGuard runs from the time base overflow interrupt.
func (c *Channel) checkGuard(now uint64) {
	if !c.running.Load() || c.lost.Load() {
		return
	}
	guard := c.guard.Load()
	if guard == 0 || now-c.lastEdge.Load() < guard {
		return
	}
	if c.lost.Swap(true) {
		return
	}
	c.post(Notification{Channel: c.id, Kind: SignalLost, Target: c.target.Load(), Arm: c.arm.Load()})
}

func (c *Channel) drain() {
	for {
		v, ok := c.ring.Pop()
		if !ok {
			return
		}
		c.last = v
	}
}

func (c *Channel) post(n Notification) {
	select {
	case c.out <- n:
	default:
		c.overruns.Add(1)
	}
}
