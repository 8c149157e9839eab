package sim

import (
	"sync"
	"time"

	"github.com/itohio/gofreqmeter/pkg/hw"
)

// Counter is a free-running counter of the given width clocked at hz from the host clock.
type Counter struct {
	hz   uint64
	bits uint
	mask uint64
	irq  *IRQ

	mu      sync.Mutex
	running bool
	base    uint64 // ticks accumulated before the last Start
	since   time.Time
	acked   uint64 // wraparounds acknowledged by ClearOverflow
	isr     func()
	done    chan struct{}
	once    sync.Once
}

var _ hw.Counter = (*Counter)(nil)

// NewCounter creates a counter. Overflow interrupts are delivered only while
// hw.IRQTimeBaseOverflow is unmasked in irq.
func NewCounter(hz uint32, bits uint, irq *IRQ) *Counter {
	return &Counter{
		hz:   uint64(hz),
		bits: bits,
		mask: 1<<bits - 1,
		irq:  irq,
		done: make(chan struct{}),
	}
}

func (c *Counter) Init() error {
	c.once.Do(func() { go c.dispatch() })
	return nil
}

func (c *Counter) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.since = time.Now()
}

func (c *Counter) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.base = c.ticksLocked()
	c.running = false
}

// Close stops the interrupt dispatcher.
func (c *Counter) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *Counter) Value() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint32(c.ticksLocked() & c.mask)
}

func (c *Counter) Bits() uint { return c.bits }

func (c *Counter) OverflowPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticksLocked()>>c.bits > c.acked
}

func (c *Counter) ClearOverflow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticksLocked()>>c.bits > c.acked {
		c.acked++
	}
}

func (c *Counter) OnOverflow(isr func()) {
	c.mu.Lock()
	c.isr = isr
	c.mu.Unlock()
}

// Ticks returns the absolute number of ticks counted so far.
func (c *Counter) Ticks() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticksLocked()
}

// Hz returns the counter clock.
func (c *Counter) Hz() uint64 { return c.hz }

func (c *Counter) ticksLocked() uint64 {
	if !c.running {
		return c.base
	}
	d := time.Since(c.since)
	sec := uint64(d / time.Second)
	rem := uint64(d % time.Second)
	return c.base + sec*c.hz + rem*c.hz/uint64(time.Second)
}

// dispatch plays the role of the interrupt controller: it runs the overflow
// handler for every wraparound while the interrupt is unmasked.
func (c *Counter) dispatch() {
	period := time.Duration((c.mask + 1) * uint64(time.Second) / c.hz)
	poll := period / 8
	if poll < 100*time.Microsecond {
		poll = 100 * time.Microsecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			for c.OverflowPending() {
				c.irq.SetPending(hw.IRQTimeBaseOverflow, true)
				c.mu.Lock()
				isr := c.isr
				c.mu.Unlock()
				if isr == nil || !c.irq.Enabled(hw.IRQTimeBaseOverflow) {
					break
				}
				isr()
			}
			c.irq.SetPending(hw.IRQTimeBaseOverflow, c.OverflowPending())
		}
	}
}
