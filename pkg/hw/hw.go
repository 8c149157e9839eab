// Package hw defines the hardware capabilities the measurement core depends on.
// Concrete bindings live in subpackages or platform files; the core only sees
// these interfaces so it can run against the simulator or test fakes.
package hw

import "github.com/itohio/gofreqmeter/pkg/channel"

// IRQ identifies an interrupt source.
type IRQ int

const (
	IRQTimeBaseOverflow IRQ = iota
	IRQCapturePressure
	IRQCaptureTemperature
)

// CaptureIRQ returns the capture-complete interrupt of a frequency channel.
func CaptureIRQ(ch channel.Freq) IRQ {
	if ch == channel.Pressure {
		return IRQCapturePressure
	}
	return IRQCaptureTemperature
}

// InterruptController masks, unmasks and prioritizes interrupt sources.
type InterruptController interface {
	SetPriority(irq IRQ, prio uint8)
	Mask(irq IRQ)
	Unmask(irq IRQ)
	IsPending(irq IRQ) bool
}

// Counter is the narrow free-running hardware counter behind the time base.
type Counter interface {
	// Init configures the counter; it must succeed before Start.
	Init() error
	// Start enables counting.
	Start()
	// Stop disables counting; the register keeps its value.
	Stop()
	// Value returns the live register value.
	Value() uint32
	// Bits returns the register width.
	Bits() uint
	// OverflowPending reports an unserviced wraparound.
	OverflowPending() bool
	// ClearOverflow acknowledges one wraparound.
	ClearOverflow()
	// OnOverflow installs the overflow interrupt handler.
	OnOverflow(isr func())
}

// CaptureUnit latches the counter register on every input edge and hands the
// latched value to the installed sink without CPU intervention.
type CaptureUnit interface {
	Configure(sink func(latched uint32)) error
	ColdStart() error
	Stop() error
}

// ADC samples analog channels.
type ADC interface {
	Read(ch channel.Analog) (uint16, error)
}

// PowerSwitch drives the excitation supply of a frequency channel.
type PowerSwitch interface {
	SetPower(ch channel.Freq, on bool) error
	Close() error
}
