package sim

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/itohio/gofreqmeter/pkg/hw"
)

// edgePoll is how often the sensor goroutine flushes edges to the capture sink.
const edgePoll = time.Millisecond

// Sensor is a resonant sensor wired to a capture unit. It produces edges at
// its frequency only while powered and only after its preheat time elapsed.
type Sensor struct {
	counter *Counter
	preheat time.Duration

	mu        sync.Mutex
	freq      float64
	powered   bool
	poweredAt time.Time
	sink      func(latched uint32)
	next      float64 // absolute tick of the next edge, NaN when not oscillating
	done      chan struct{}
}

var _ hw.CaptureUnit = (*Sensor)(nil)

// NewSensor creates a sensor oscillating at freq Hz once powered for preheat.
func NewSensor(counter *Counter, freq float64, preheat time.Duration) *Sensor {
	return &Sensor{
		counter: counter,
		freq:    freq,
		preheat: preheat,
		next:    math.NaN(),
	}
}

// SetFrequency changes the oscillation frequency.
func (s *Sensor) SetFrequency(freq float64) {
	s.mu.Lock()
	s.freq = freq
	s.mu.Unlock()
}

// SetPowered switches the sensor excitation.
func (s *Sensor) SetPowered(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on && !s.powered {
		s.poweredAt = time.Now()
	}
	s.powered = on
	s.next = math.NaN()
}

// Powered reports the excitation state.
func (s *Sensor) Powered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.powered
}

func (s *Sensor) Configure(sink func(latched uint32)) error {
	if sink == nil {
		return errors.New("sim: nil capture sink")
	}
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
	return nil
}

func (s *Sensor) ColdStart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sink == nil {
		return errors.New("sim: capture unit not configured")
	}
	if s.done != nil {
		return nil
	}
	s.done = make(chan struct{})
	go s.run(s.done)
	return nil
}

func (s *Sensor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.next = math.NaN()
	return nil
}

func (s *Sensor) run(done <-chan struct{}) {
	ticker := time.NewTicker(edgePoll)
	defer ticker.Stop()

	latched := make([]uint32, 0, 64)
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			latched = s.collect(latched[:0])
			s.mu.Lock()
			sink := s.sink
			s.mu.Unlock()
			for _, v := range latched {
				sink(v)
			}
		}
	}
}

// collect returns the latched register values of every edge since the last call.
func (s *Sensor) collect(dst []uint32) []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := float64(s.counter.Ticks())
	if !s.powered || time.Since(s.poweredAt) < s.preheat || s.freq <= 0 {
		s.next = math.NaN()
		return dst
	}

	step := float64(s.counter.Hz()) / s.freq
	if math.IsNaN(s.next) {
		s.next = now + step
	}
	for s.next <= now {
		dst = append(dst, uint32(uint64(s.next)&s.counter.mask))
		s.next += step
	}
	return dst
}
