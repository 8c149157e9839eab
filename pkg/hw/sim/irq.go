// Package sim simulates the instrument hardware on a host: a free-running
// counter clocked from the host clock, resonant sensors that produce edges
// only while powered, an ADC and a power switch.
package sim

import (
	"sync"

	"github.com/itohio/gofreqmeter/pkg/hw"
)

// IRQ is a simulated interrupt controller.
type IRQ struct {
	mu       sync.Mutex
	priority map[hw.IRQ]uint8
	masked   map[hw.IRQ]bool
	pending  map[hw.IRQ]bool
}

var _ hw.InterruptController = (*IRQ)(nil)

// NewIRQ creates an interrupt controller with every source masked.
func NewIRQ() *IRQ {
	return &IRQ{
		priority: map[hw.IRQ]uint8{},
		masked:   map[hw.IRQ]bool{},
		pending:  map[hw.IRQ]bool{},
	}
}

func (c *IRQ) SetPriority(irq hw.IRQ, prio uint8) {
	c.mu.Lock()
	c.priority[irq] = prio
	c.mu.Unlock()
}

func (c *IRQ) Mask(irq hw.IRQ) {
	c.mu.Lock()
	c.masked[irq] = true
	c.mu.Unlock()
}

func (c *IRQ) Unmask(irq hw.IRQ) {
	c.mu.Lock()
	c.masked[irq] = false
	c.mu.Unlock()
}

func (c *IRQ) IsPending(irq hw.IRQ) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[irq]
}

// Priority returns the configured priority of irq.
func (c *IRQ) Priority(irq hw.IRQ) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.priority[irq]
}

// Enabled reports whether irq is unmasked. Sources start masked.
func (c *IRQ) Enabled(irq hw.IRQ) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	masked, ok := c.masked[irq]
	return ok && !masked
}

// SetPending raises or clears the pending flag of irq.
func (c *IRQ) SetPending(irq hw.IRQ, pending bool) {
	c.mu.Lock()
	c.pending[irq] = pending
	c.mu.Unlock()
}
