package processor

import (
	"log"
	"time"

	"github.com/itohio/gofreqmeter/pkg/channel"
	"github.com/itohio/gofreqmeter/pkg/config"
	"github.com/itohio/gofreqmeter/pkg/monitor"
	"github.com/itohio/gofreqmeter/pkg/output"
)

// DutyCycled keeps a channel capturing only while it is enabled and adapts
// targets only while the adaptation window is open. Analog conversions are
// one-shot: the scheduler requests each of them.
type DutyCycled struct {
	base
	window *Window
}

// NewDutyCycled creates the duty-cycled processor. alarms may be nil, a nil
// window is always open.
func NewDutyCycled(store *config.Store, out *output.Output, alarms *monitor.Alarms, window *Window) *DutyCycled {
	if window == nil {
		window = NewWindow()
	}
	return &DutyCycled{
		base:   base{store: store, out: out, alarms: alarms, now: time.Now},
		window: window,
	}
}

// Window returns the adaptation window.
func (d *DutyCycled) Window() *Window { return d.window }

func (d *DutyCycled) ProcessFrequencyResult(ch channel.Freq, target uint32, rawDelta uint64) (bool, *Retarget) {
	p, err := d.params(ch)
	if err != nil {
		log.Printf("processor: %s: %v", ch, err)
		return true, nil
	}
	next, ok := d.frequencyResult(ch, target, rawDelta, p)
	if !ok || !d.window.IsOpen() {
		return p.enabled, nil
	}
	rt := retarget(target, next, p)
	if rt != nil {
		d.setTarget(ch, rt.Target)
	}
	return p.enabled, rt
}

func (d *DutyCycled) ProcessSignalLost(ch channel.Freq, target uint32) (bool, *Retarget) {
	p, err := d.params(ch)
	if err != nil {
		log.Printf("processor: %s: %v", ch, err)
		return true, nil
	}
	d.signalLost(ch)
	if !d.window.IsOpen() {
		return p.enabled, nil
	}
	rt := resetTarget(target, p)
	if rt != nil {
		d.setTarget(ch, rt.Target)
	}
	return p.enabled, rt
}

func (d *DutyCycled) ProcessAnalogResult(ch channel.Analog, raw uint16) (bool, time.Duration) {
	p, err := d.params(channel.Pressure)
	if err != nil {
		log.Printf("processor: %s: %v", ch, err)
		return false, 0
	}
	d.analogResult(ch, raw, p)
	return false, 0
}
