package sim

import (
	"sync"

	"github.com/itohio/gofreqmeter/pkg/channel"
	"github.com/itohio/gofreqmeter/pkg/hw"
)

// Power is a simulated excitation power switch. It powers the attached
// sensors and records every transition.
type Power struct {
	mu      sync.Mutex
	sensors [channel.FreqCount]*Sensor
	state   [channel.FreqCount]bool
	history []Transition
}

// Transition is one recorded power change.
type Transition struct {
	Channel channel.Freq
	On      bool
}

var _ hw.PowerSwitch = (*Power)(nil)

// NewPower creates a power switch driving the given sensors (either may be nil).
func NewPower(pressure, temperature *Sensor) *Power {
	return &Power{sensors: [channel.FreqCount]*Sensor{pressure, temperature}}
}

func (p *Power) SetPower(ch channel.Freq, on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state[ch] == on {
		return nil
	}
	p.state[ch] = on
	p.history = append(p.history, Transition{Channel: ch, On: on})
	if s := p.sensors[ch]; s != nil {
		s.SetPowered(on)
	}
	return nil
}

func (p *Power) Close() error {
	for _, ch := range channel.Freqs {
		_ = p.SetPower(ch, false)
	}
	return nil
}

// On reports the power state of ch.
func (p *Power) On(ch channel.Freq) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state[ch]
}

// History returns a copy of recorded transitions.
func (p *Power) History() []Transition {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Transition(nil), p.history...)
}
