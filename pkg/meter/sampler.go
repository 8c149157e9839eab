package meter

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/itohio/gofreqmeter/pkg/channel"
	"github.com/itohio/gofreqmeter/pkg/config"
	"github.com/itohio/gofreqmeter/pkg/hw"
	"github.com/itohio/gofreqmeter/pkg/processor"
	"github.com/itohio/gofreqmeter/pkg/sample"
)

// Sampler converts the analog channels through the processor.
type Sampler struct {
	adc   hw.ADC
	proc  processor.Processor
	store *config.Store

	mu   sync.Mutex // serializes ADC use
	last [channel.AnalogCount]sample.Sample
	now  func() time.Time
}

// NewSampler creates an analog sampler.
func NewSampler(adc hw.ADC, proc processor.Processor, store *config.Store) *Sampler {
	return &Sampler{adc: adc, proc: proc, store: store, now: time.Now}
}

// Sample converts ch once. ok is false when the channel is disabled. cont
// and period carry the processor's decision on further conversions.
func (s *Sampler) Sample(ch channel.Analog) (ok, cont bool, period time.Duration, err error) {
	var enabled bool
	var n int
	if err := s.store.Read(func(c *config.Config) {
		enabled = c.Channels.AnalogEnabled(ch)
		n = c.ADC.Oversample
	}); err != nil {
		return false, true, 0, err
	}
	if !enabled {
		return false, false, 0, nil
	}

	s.mu.Lock()
	raw, err := sample.Oversample(s.adc, ch, n)
	if err == nil {
		s.last[ch] = sample.Sample{Timestamp: s.now(), Channel: ch, Raw: raw}
	}
	s.mu.Unlock()
	if err != nil {
		return false, true, 0, err
	}

	cont, period = s.proc.ProcessAnalogResult(ch, raw)
	return true, cont, period, nil
}

// SampleAll converts every enabled analog channel once.
func (s *Sampler) SampleAll() error {
	var errs []error
	for _, ch := range channel.Analogs {
		if _, _, _, err := s.Sample(ch); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("analog sampling errors: %v", errs)
	}
	return nil
}

// Last returns the latest raw sample of ch.
func (s *Sampler) Last(ch channel.Analog) sample.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[ch]
}

// Run converts analog channels periodically, as long as the processor asks
// for further conversions, until ctx is done.
func (s *Sampler) Run(ctx context.Context) {
	var next [channel.AnalogCount]time.Time
	var active [channel.AnalogCount]bool
	start := s.now()
	for i := range active {
		active[i] = true
		next[i] = start
	}

	for {
		var wake time.Time
		found := false
		for _, ch := range channel.Analogs {
			if !active[ch] {
				continue
			}
			if !found || next[ch].Before(wake) {
				wake = next[ch]
			}
			found = true
		}
		if !found {
			return
		}

		t := time.NewTimer(time.Until(wake))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		now := s.now()
		for _, ch := range channel.Analogs {
			if !active[ch] || now.Before(next[ch]) {
				continue
			}
			ok, cont, period, err := s.Sample(ch)
			if err != nil {
				log.Printf("meter: %s: %v", ch, err)
				next[ch] = now.Add(time.Second)
				continue
			}
			if !ok || !cont || period <= 0 {
				active[ch] = false
				continue
			}
			next[ch] = now.Add(period)
		}
	}
}
