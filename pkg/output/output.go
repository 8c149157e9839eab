// Package output holds the shared measurement snapshot. Producers are the
// value processors, consumers are the scheduler, the page writer and the
// read-out surfaces.
package output

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/itohio/gofreqmeter/pkg/channel"
)

// Channel is the latest state of one frequency channel.
type Channel struct {
	Target    uint32
	Result    uint32 // raw edge delta of the last cycle
	Frequency float64
	Value     float64 // calibrated value
	Valid     bool    // Result, Frequency and Value hold a sample
	Updated   time.Time
}

// Snapshot is a point-in-time copy of the measurement state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Channels            [channel.FreqCount]Channel
	CPUTemperature      float64
	CPUTemperatureValid bool
	BatteryVoltage      float64
	BatteryVoltageValid bool
}

// Result returns the raw edge delta of ch if the channel holds a sample.
func (s Snapshot) Result(ch channel.Freq) (uint32, bool) {
	c := s.Channels[ch]
	return c.Result, c.Valid
}

// Targets returns the current target of every channel.
func (s Snapshot) Targets() [channel.FreqCount]uint32 {
	var t [channel.FreqCount]uint32
	for i, c := range s.Channels {
		t[i] = c.Target
	}
	return t
}

type jsonChannel struct {
	Target    uint32   `json:"target"`
	Result    *uint32  `json:"result"`
	Frequency *float64 `json:"frequency"`
	Value     *float64 `json:"value"`
}

type jsonSnapshot struct {
	Pressure       jsonChannel `json:"pressure"`
	Temperature    jsonChannel `json:"temperature"`
	CPUTemperature *float64    `json:"cpu_temperature"`
	BatteryVoltage *float64    `json:"battery_voltage"`
}

// MarshalJSON encodes missing samples as null.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	conv := func(c Channel) jsonChannel {
		j := jsonChannel{Target: c.Target}
		if c.Valid {
			r, f, v := c.Result, c.Frequency, c.Value
			j.Result, j.Frequency, j.Value = &r, &f, &v
		}
		return j
	}
	out := jsonSnapshot{
		Pressure:    conv(s.Channels[channel.Pressure]),
		Temperature: conv(s.Channels[channel.Temperature]),
	}
	if s.CPUTemperatureValid {
		v := s.CPUTemperature
		out.CPUTemperature = &v
	}
	if s.BatteryVoltageValid {
		v := s.BatteryVoltage
		out.BatteryVoltage = &v
	}
	return json.Marshal(out)
}

// Output guards the single shared Snapshot.
type Output struct {
	mu   sync.Mutex
	snap Snapshot

	cbMu      sync.RWMutex
	callbacks []func(Snapshot)
}

// New creates an empty output.
func New() *Output {
	return &Output{}
}

// Update applies fn under the lock and then notifies subscribers with the
// resulting snapshot. fn must only assign fields: compute before calling Update.
func (o *Output) Update(fn func(s *Snapshot)) {
	o.mu.Lock()
	fn(&o.snap)
	snap := o.snap
	o.mu.Unlock()

	o.cbMu.RLock()
	callbacks := make([]func(Snapshot), len(o.callbacks))
	copy(callbacks, o.callbacks)
	o.cbMu.RUnlock()

	for _, cb := range callbacks {
		cb(snap)
	}
}

// Snapshot returns a copy of the current state.
func (o *Output) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}

// OnUpdate registers a callback invoked after every update. The callback
// runs on the producer goroutine and should return quickly.
func (o *Output) OnUpdate(cb func(Snapshot)) {
	o.cbMu.Lock()
	defer o.cbMu.Unlock()
	o.callbacks = append(o.callbacks, cb)
}
