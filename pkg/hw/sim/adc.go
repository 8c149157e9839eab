package sim

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/itohio/gofreqmeter/pkg/channel"
	"github.com/itohio/gofreqmeter/pkg/hw"
)

// ADC returns configured raw values with optional uniform noise.
type ADC struct {
	mu    sync.Mutex
	raw   [channel.AnalogCount]uint16
	noise uint16
	err   error
}

var _ hw.ADC = (*ADC)(nil)

// NewADC creates an ADC reporting cpuTemp and battery raw values.
func NewADC(cpuTemp, battery uint16, noise uint16) *ADC {
	return &ADC{
		raw:   [channel.AnalogCount]uint16{cpuTemp, battery},
		noise: noise,
	}
}

// Set changes the raw value of ch.
func (a *ADC) Set(ch channel.Analog, raw uint16) {
	a.mu.Lock()
	a.raw[ch] = raw
	a.mu.Unlock()
}

// SetError makes every subsequent Read fail with err (nil clears it).
func (a *ADC) SetError(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
}

func (a *ADC) Read(ch channel.Analog) (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return 0, a.err
	}
	if ch < 0 || int(ch) >= channel.AnalogCount {
		return 0, fmt.Errorf("sim: unknown analog channel %d", ch)
	}
	v := int(a.raw[ch])
	if a.noise > 0 {
		v += rand.Intn(2*int(a.noise)+1) - int(a.noise)
	}
	return uint16(min(max(v, 0), 4095)), nil
}
