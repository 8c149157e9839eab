// Package meter runs the frequency measurement task: it consumes capture
// notifications in order, turns consecutive completion snapshots into edge
// deltas and applies the processor's decisions back to the capture channels.
package meter

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/itohio/gofreqmeter/pkg/capture"
	"github.com/itohio/gofreqmeter/pkg/channel"
	"github.com/itohio/gofreqmeter/pkg/freq"
	"github.com/itohio/gofreqmeter/pkg/processor"
)

var _ Capturer = (*capture.Channel)(nil)

// Capturer is the control surface of an edge-capture channel.
type Capturer interface {
	ID() channel.Freq
	Configure(target uint32, guardTicks uint64) error
	Retarget(target uint32, guardTicks uint64) bool
	Reset()
	Stop() error
	Running() bool
	Arm() uint32
	Target() uint32
}

// Reading is one processed capture result.
type Reading struct {
	Timestamp time.Time
	Channel   channel.Freq
	Target    uint32 // edges in the finished cycle
	Delta     uint64 // ticks spanned by Target edges, 0 when the signal was lost
	Lost      bool
}

// Meter processes capture notifications and keeps a time window of readings.
type Meter struct {
	proc     processor.Processor
	chans    [channel.FreqCount]Capturer
	trackers [channel.FreqCount]*freq.Tracker

	// Readings FIFO ordered first to last, removed by timestamp
	readings []Reading
	window   time.Duration

	// Thread safety
	mu sync.RWMutex

	callbacks []func(Reading)
	cbMu      sync.RWMutex

	now      func() time.Time
	shutdown bool // Set when the input channel closes, prevents further callbacks
}

// New creates a meter for the given capture channels. window bounds the
// reading history; zero keeps only the latest reading.
func New(proc processor.Processor, window time.Duration, chans ...Capturer) *Meter {
	m := &Meter{
		proc:   proc,
		window: window,
		now:    time.Now,
	}
	for _, c := range chans {
		m.chans[c.ID()] = c
	}
	for i := range m.trackers {
		m.trackers[i] = freq.NewTracker()
	}
	return m
}

// Start arms ch with target and guard. The first completion after Start
// only primes the channel.
func (m *Meter) Start(ch channel.Freq, target uint32, guardTicks uint64) error {
	c := m.chans[ch]
	if c == nil {
		return nil
	}
	m.mu.Lock()
	m.trackers[ch].Reset()
	m.mu.Unlock()
	return c.Configure(target, guardTicks)
}

// Stop disables ch.
func (m *Meter) Stop(ch channel.Freq) error {
	c := m.chans[ch]
	if c == nil {
		return nil
	}
	return c.Stop()
}

// Running reports whether ch is capturing.
func (m *Meter) Running(ch channel.Freq) bool {
	c := m.chans[ch]
	return c != nil && c.Running()
}

// Run processes notifications until in is closed or ctx is done.
func (m *Meter) Run(ctx context.Context, in <-chan capture.Notification) {
	defer func() {
		m.mu.Lock()
		m.shutdown = true
		m.mu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-in:
			if !ok {
				return
			}
			m.handle(n)
		}
	}
}

// ResetShutdown allows callbacks again after Run returned.
func (m *Meter) ResetShutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = false
}

func (m *Meter) handle(n capture.Notification) {
	c := m.chans[n.Channel]
	if c == nil {
		return
	}
	if !c.Running() || n.Arm != c.Arm() {
		// raised before the channel was stopped, the scheduler owns it now
		return
	}

	switch n.Kind {
	case capture.Completed:
		m.mu.Lock()
		delta, ok := m.trackers[n.Channel].Accept(n.Snapshot)
		m.mu.Unlock()
		if !ok {
			return
		}
		cont, rt := m.proc.ProcessFrequencyResult(n.Channel, n.Target, delta)
		m.apply(c, cont, rt, false)
		m.record(Reading{Timestamp: m.now(), Channel: n.Channel, Target: n.Target, Delta: delta})

	case capture.SignalLost:
		m.mu.Lock()
		m.trackers[n.Channel].Reset()
		m.mu.Unlock()
		log.Printf("meter: %s signal lost (target %d)", n.Channel, n.Target)
		cont, rt := m.proc.ProcessSignalLost(n.Channel, n.Target)
		m.apply(c, cont, rt, true)
		m.record(Reading{Timestamp: m.now(), Channel: n.Channel, Target: n.Target, Lost: true})
	}
}

func (m *Meter) apply(c Capturer, cont bool, rt *processor.Retarget, lost bool) {
	if !cont {
		if err := c.Stop(); err != nil {
			log.Printf("meter: %s: %v", c.ID(), err)
		}
		return
	}
	if rt != nil && !c.Retarget(rt.Target, rt.GuardTicks) {
		return
	}
	if lost {
		// no cycle is in flight, re-arm so the new target applies at the next edge
		c.Reset()
	}
}

func (m *Meter) record(r Reading) {
	m.mu.Lock()
	m.readings = append(m.readings, r)

	// Remove readings outside time window (based on timestamp, not count)
	cutoff := r.Timestamp.Add(-m.window)
	idx := len(m.readings) - 1
	for i, x := range m.readings {
		if x.Timestamp.After(cutoff) {
			idx = i
			break
		}
	}
	if idx > 0 {
		m.readings = append(m.readings[:0], m.readings[idx:]...)
	}
	shouldNotify := !m.shutdown
	m.mu.Unlock()

	if shouldNotify {
		m.notifyCallbacks(r)
	}
}

// Readings returns a copy of the readings within the window.
func (m *Meter) Readings() []Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Reading, len(m.readings))
	copy(result, m.readings)
	return result
}

// OnUpdate registers a callback invoked for every processed reading.
// The callback should return as fast as possible.
func (m *Meter) OnUpdate(callback func(Reading)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

func (m *Meter) notifyCallbacks(r Reading) {
	m.cbMu.RLock()
	callbacks := make([]func(Reading), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(r)
		}
	}
}
