// Package processor turns capture results into calibrated values, feeds the
// alarm monitors and decides how each capture channel continues.
package processor

import (
	"fmt"
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/gofreqmeter/pkg/channel"
	"github.com/itohio/gofreqmeter/pkg/config"
	"github.com/itohio/gofreqmeter/pkg/freq"
	"github.com/itohio/gofreqmeter/pkg/monitor"
	"github.com/itohio/gofreqmeter/pkg/output"
	"github.com/itohio/gofreqmeter/pkg/sample"
)

// Processor handles results of the capture channels and the ADC.
type Processor interface {
	// ProcessFrequencyResult handles a completed cycle of target edges that
	// took rawDelta ticks. It reports whether the channel keeps capturing
	// and an optional new target.
	ProcessFrequencyResult(ch channel.Freq, target uint32, rawDelta uint64) (bool, *Retarget)
	// ProcessSignalLost handles a guard timeout of ch.
	ProcessSignalLost(ch channel.Freq, target uint32) (bool, *Retarget)
	// ProcessAnalogResult handles an oversampled ADC code. A non-zero period
	// asks for the next conversion after that delay.
	ProcessAnalogResult(ch channel.Analog, raw uint16) (bool, time.Duration)
}

var (
	_ Processor = (*Continuous)(nil)
	_ Processor = (*DutyCycled)(nil)
)

// New returns the processor variant selected by mode.
func New(mode config.Mode, store *config.Store, out *output.Output, alarms *monitor.Alarms, window *Window) (Processor, error) {
	switch mode {
	case config.ModeContinuous:
		return NewContinuous(store, out, alarms), nil
	case config.ModeDutyCycled:
		return NewDutyCycled(store, out, alarms, window), nil
	}
	return nil, fmt.Errorf("unknown mode %q", mode)
}

// Window gates target adaptation of the duty-cycled processor. The
// scheduler closes it while a page is being written.
type Window struct {
	open atomic.Bool
}

// NewWindow returns an open window.
func NewWindow() *Window {
	w := &Window{}
	w.open.Store(true)
	return w
}

func (w *Window) Open()        { w.open.Store(true) }
func (w *Window) Close()       { w.open.Store(false) }
func (w *Window) IsOpen() bool { return w.open.Load() }

// params is the part of the settings a single result needs.
type params struct {
	reference   uint32
	multiplier  float64
	timeMs      uint32
	minAdapt    uint32
	initial     uint32
	analogMs    uint32
	enabled     bool
	calibration config.CalibrationConfig
	adc         config.ADCConfig
}

type base struct {
	store  *config.Store
	out    *output.Output
	alarms *monitor.Alarms
	now    func() time.Time
}

func (b *base) params(ch channel.Freq) (params, error) {
	var p params
	err := b.store.Read(func(c *config.Config) {
		p = params{
			reference:  c.Measurement.ReferenceFrequency,
			multiplier: c.Measurement.Multiplier,
			timeMs:     c.Measurement.TimeMs(ch),
			minAdapt:   c.Measurement.MinAdaptationInterval,
			initial:    c.Measurement.InitialTarget,
			analogMs:   c.Measurement.AnalogPeriodMs,
			enabled:    c.Channels.Enabled(ch),
			adc:        c.ADC,
		}
		cal := c.Calibration
		cal.Pressure.A = append([]float32(nil), cal.Pressure.A...)
		cal.Temperature.C = append([]float32(nil), cal.Temperature.C...)
		p.calibration = cal
	})
	return p, err
}

// frequencyResult computes and publishes the value of ch and returns the
// adaptive target suggestion for it.
func (b *base) frequencyResult(ch channel.Freq, target uint32, rawDelta uint64, p params) (uint32, bool) {
	f := freq.Frequency(rawDelta, target, float64(p.reference), p.multiplier)
	if math.IsNaN(f) {
		return target, false
	}

	var v float32
	switch ch {
	case channel.Pressure:
		// compensated by the latest temperature sensor frequency, if any
		ft := p.calibration.Pressure.Ft0
		if t := b.out.Snapshot().Channels[channel.Temperature]; t.Valid {
			ft = float32(t.Frequency)
		}
		v = Pressure(p.calibration.Pressure, float32(f), ft)
	case channel.Temperature:
		v = Temperature(p.calibration.Temperature, float32(f))
	}

	next := AdaptiveTarget(f, p.timeMs)
	now := b.now()
	b.out.Update(func(s *output.Snapshot) {
		s.Channels[ch] = output.Channel{
			Target:    target,
			Result:    uint32(min(rawDelta, math.MaxUint32)),
			Frequency: f,
			Value:     float64(v),
			Valid:     true,
			Updated:   now,
		}
	})

	if !math32.IsNaN(v) {
		b.check(freqAlarm(ch), v)
	}
	return next, true
}

func (b *base) signalLost(ch channel.Freq) {
	now := b.now()
	b.out.Update(func(s *output.Snapshot) {
		s.Channels[ch] = output.Channel{Target: s.Channels[ch].Target, Updated: now}
	})
}

func (b *base) analogResult(ch channel.Analog, raw uint16, p params) {
	v, err := sample.Convert(ch, raw, p.adc)
	if err != nil {
		log.Printf("processor: %s: %v", ch, err)
		return
	}
	b.out.Update(func(s *output.Snapshot) {
		switch ch {
		case channel.CPUTemperature:
			s.CPUTemperature, s.CPUTemperatureValid = v, true
		case channel.BatteryVoltage:
			s.BatteryVoltage, s.BatteryVoltageValid = v, true
		}
	})
	b.check(analogAlarm(ch), float32(v))
}

func (b *base) setTarget(ch channel.Freq, target uint32) {
	b.out.Update(func(s *output.Snapshot) { s.Channels[ch].Target = target })
}

func (b *base) check(alarm monitor.Alarm, v float32) {
	if b.alarms == nil {
		return
	}
	if _, err := b.alarms.Check(alarm, v); err != nil {
		log.Printf("processor: %s: %v", alarm, err)
	}
}

func freqAlarm(ch channel.Freq) monitor.Alarm {
	if ch == channel.Pressure {
		return monitor.OverPressure
	}
	return monitor.OverTemperature
}

func analogAlarm(ch channel.Analog) monitor.Alarm {
	if ch == channel.CPUTemperature {
		return monitor.CPUOverheat
	}
	return monitor.LowVoltage
}

func retarget(current, next uint32, p params) *Retarget {
	if !NeedsRetarget(current, next, p.minAdapt) {
		return nil
	}
	return &Retarget{Target: next, GuardTicks: GuardTicks(p.timeMs, p.reference)}
}

func resetTarget(current uint32, p params) *Retarget {
	if current == p.initial {
		return nil
	}
	return &Retarget{Target: p.initial, GuardTicks: GuardTicks(p.timeMs, p.reference)}
}
