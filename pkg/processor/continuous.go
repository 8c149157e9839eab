package processor

import (
	"log"
	"time"

	"github.com/itohio/gofreqmeter/pkg/channel"
	"github.com/itohio/gofreqmeter/pkg/config"
	"github.com/itohio/gofreqmeter/pkg/monitor"
	"github.com/itohio/gofreqmeter/pkg/output"
)

// Continuous keeps every channel capturing and adapts targets on every result.
type Continuous struct {
	base
}

// NewContinuous creates the continuous processor. alarms may be nil.
func NewContinuous(store *config.Store, out *output.Output, alarms *monitor.Alarms) *Continuous {
	return &Continuous{base{store: store, out: out, alarms: alarms, now: time.Now}}
}

func (c *Continuous) ProcessFrequencyResult(ch channel.Freq, target uint32, rawDelta uint64) (bool, *Retarget) {
	p, err := c.params(ch)
	if err != nil {
		log.Printf("processor: %s: %v", ch, err)
		return true, nil
	}
	next, ok := c.frequencyResult(ch, target, rawDelta, p)
	if !ok {
		return true, nil
	}
	rt := retarget(target, next, p)
	if rt != nil {
		c.setTarget(ch, rt.Target)
	}
	return true, rt
}

func (c *Continuous) ProcessSignalLost(ch channel.Freq, target uint32) (bool, *Retarget) {
	p, err := c.params(ch)
	if err != nil {
		log.Printf("processor: %s: %v", ch, err)
		return true, nil
	}
	c.signalLost(ch)
	rt := resetTarget(target, p)
	if rt != nil {
		c.setTarget(ch, rt.Target)
	}
	return true, rt
}

func (c *Continuous) ProcessAnalogResult(ch channel.Analog, raw uint16) (bool, time.Duration) {
	p, err := c.params(channel.Pressure)
	if err != nil {
		log.Printf("processor: %s: %v", ch, err)
		return true, time.Second
	}
	c.analogResult(ch, raw, p)
	return true, time.Duration(p.analogMs) * time.Millisecond
}
