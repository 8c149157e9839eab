package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/itohio/gofreqmeter/pkg/channel"
	"github.com/itohio/gofreqmeter/pkg/config"
	"github.com/itohio/gofreqmeter/pkg/errcode"
	"github.com/itohio/gofreqmeter/pkg/hw"
	"github.com/itohio/gofreqmeter/pkg/output"
	"github.com/itohio/gofreqmeter/pkg/pagestore"
	"github.com/itohio/gofreqmeter/pkg/processor"
)

// SettleRatio divides the longest preheat time into the delay after a page write.
const SettleRatio = 10

// Meter starts and stops frequency capture.
type Meter interface {
	Start(ch channel.Freq, target uint32, guardTicks uint64) error
	Stop(ch channel.Freq) error
}

// Sampler converts every enabled analog channel once.
type Sampler interface {
	SampleAll() error
}

// Controller is the scheduling task: it powers the sensors, fills data
// pages with the measurement results and writes them.
type Controller struct {
	store   *config.Store
	pages   *pagestore.Store
	out     *output.Output
	meter   Meter
	sampler Sampler
	power   hw.PowerSwitch
	window  *processor.Window
	clock   Clock

	cycles  [channel.FreqCount]*DutyCycle
	plan    plan
	powered [channel.FreqCount]bool
	last    time.Time // cycles are advanced up to here

	cbMu      sync.RWMutex
	callbacks []func(id uint32, index int)
}

// plan is the part of the settings the schedule is built from.
type plan struct {
	mode       config.Mode
	baseMs     uint32
	periods    [channel.FreqCount]uint32
	dividers   [channel.FreqCount]uint32
	preheats   [channel.FreqCount]uint32
	enabled    [channel.FreqCount]bool
	timeMs     [channel.FreqCount]uint32
	reference  uint32
	initial    uint32
	minBattery float32
}

// NewController wires the scheduling task. sampler and window may be nil.
func NewController(store *config.Store, pages *pagestore.Store, out *output.Output, meter Meter, sampler Sampler, power hw.PowerSwitch, window *processor.Window, clock Clock) *Controller {
	if clock == nil {
		clock = RealClock{}
	}
	return &Controller{
		store:   store,
		pages:   pages,
		out:     out,
		meter:   meter,
		sampler: sampler,
		power:   power,
		window:  window,
		clock:   clock,
	}
}

// OnPageWritten registers a callback invoked after every successful page write.
func (c *Controller) OnPageWritten(cb func(id uint32, index int)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.callbacks = append(c.callbacks, cb)
}

// Cycle returns the duty cycle of ch, nil for a disabled channel.
func (c *Controller) Cycle(ch channel.Freq) *DutyCycle { return c.cycles[ch] }

func (c *Controller) readPlan() (plan, error) {
	var p plan
	err := c.store.Read(func(cfg *config.Config) {
		p.mode = cfg.Mode
		p.baseMs = cfg.Write.BaseIntervalMs
		p.reference = cfg.Measurement.ReferenceFrequency
		p.initial = cfg.Measurement.InitialTarget
		p.minBattery = cfg.Power.MinBatteryVoltage
		for _, ch := range channel.Freqs {
			p.periods[ch] = cfg.Write.PeriodMs(ch)
			p.dividers[ch] = cfg.Write.Divider(ch)
			p.preheats[ch] = cfg.Power.PreheatMs(ch)
			p.enabled[ch] = cfg.Channels.Enabled(ch)
			p.timeMs[ch] = cfg.Measurement.TimeMs(ch)
		}
	})
	return p, err
}

// Run executes the schedule until ctx is done or a fatal condition halts
// the device. Fatal errors (storage exhausted, under-voltage) are returned
// after every sensor was powered off.
func (c *Controller) Run(ctx context.Context) error {
	p, err := c.readPlan()
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	c.plan = p
	c.buildCycles()

	err = c.run(ctx)
	c.shutdown()
	c.openWindow()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (c *Controller) run(ctx context.Context) error {
	c.staggeredEnable()
	for {
		if _, ok := c.toNextEvent(); !ok {
			// every channel is disabled, wait for a settings change
			if err := c.clock.Sleep(ctx, time.Duration(c.plan.baseMs)*time.Millisecond); err != nil {
				return err
			}
			c.reload()
			continue
		}
		if err := c.fillPage(ctx); err != nil {
			return err
		}
		if err := c.clock.Sleep(ctx, c.settleDelay()); err != nil {
			return err
		}
		c.advance()
		c.openWindow()
		c.reload()
	}
}

func (c *Controller) buildCycles() {
	for _, ch := range channel.Freqs {
		c.cycles[ch] = nil
		if !c.plan.enabled[ch] {
			continue
		}
		if c.plan.mode == config.ModeContinuous {
			c.cycles[ch] = NewAlwaysOn(c.plan.periods[ch])
		} else {
			c.cycles[ch] = NewDutyCycle(c.plan.periods[ch], c.plan.preheats[ch])
		}
	}
}

// reload picks up schedule changes between pages.
func (c *Controller) reload() {
	p, err := c.readPlan()
	if err != nil {
		log.Printf("scheduler: keeping schedule: %v", err)
		return
	}
	if p == c.plan {
		return
	}
	log.Printf("scheduler: schedule changed, restarting channels")
	c.plan = p
	c.buildCycles()
	for _, ch := range channel.Freqs {
		c.sleepChannel(ch)
	}
	c.staggeredEnable()
}

// staggeredEnable starts the enabled channels so that their first
// measurements coincide. The channel with the longest preheat is powered
// at once, the others follow by the difference in preheat time.
func (c *Controller) staggeredEnable() {
	var lead uint32
	for _, d := range c.cycles {
		if d != nil && d.Mode() == HeatMeasureStop {
			lead = max(lead, d.PreheatMs())
		}
	}
	c.last = c.clock.Now()
	for _, ch := range channel.Freqs {
		d := c.cycles[ch]
		if d == nil {
			continue
		}
		d.StartAligned(lead)
		if d.Powered() {
			c.wakeChannel(ch)
		}
	}
}

func (c *Controller) settleDelay() time.Duration {
	var longest uint32
	for _, ch := range channel.Freqs {
		if c.cycles[ch] != nil {
			longest = max(longest, c.plan.preheats[ch])
		}
	}
	return time.Duration(longest/SettleRatio) * time.Millisecond
}

func (c *Controller) header() pagestore.Header {
	snap := c.out.Snapshot()
	return pagestore.Header{
		TimestampMs:        uint64(c.clock.Now().UnixMilli()),
		Targets:            snap.Targets(),
		BaseIntervalMs:     c.plan.baseMs,
		InterleaveRatio:    c.plan.dividers,
		ReferenceFrequency: c.plan.reference,
	}
}

// fillPage opens a page, records the analog state, fills the page with
// results as the schedule dictates and writes it.
func (c *Controller) fillPage(ctx context.Context) error {
	page, err := c.pages.TryCreateNewPage(c.header())
	if err != nil {
		return err
	}

	if c.sampler != nil {
		if err := c.sampler.SampleAll(); err != nil {
			log.Printf("scheduler: analog snapshot: %v", err)
		}
	}
	snap := c.out.Snapshot()
	h := page.Header()
	h.TCPU, h.VBat = nan32(), nan32()
	if snap.CPUTemperatureValid {
		h.TCPU = float32(snap.CPUTemperature)
	}
	if snap.BatteryVoltageValid {
		h.VBat = float32(snap.BatteryVoltage)
		if h.VBat < c.plan.minBattery {
			return errcode.New(errcode.UnderVoltage, "scheduler",
				fmt.Sprintf("battery %.2f V below %.2f V", h.VBat, c.plan.minBattery))
		}
	}

	for {
		c.advance()
		wait, _ := c.toNextEvent()
		if err := c.clock.Sleep(ctx, time.Duration(wait)*time.Millisecond); err != nil {
			if page.Len() > 0 {
				c.write(page)
			}
			return err
		}
		c.advance()

		if full := c.processEvents(page); full {
			c.write(page)
			return nil
		}
	}
}

func (c *Controller) toNextEvent() (uint32, bool) {
	var wait uint32
	found := false
	for _, d := range c.cycles {
		if d == nil {
			continue
		}
		if w := d.ToNextEvent(); !found || w < wait {
			wait = w
		}
		found = true
	}
	return wait, found
}

// advance moves the cycles by the time passed since they were last
// advanced, including the time spent handling events and writing pages.
func (c *Controller) advance() {
	now := c.clock.Now()
	ms := now.Sub(c.last) / time.Millisecond
	if ms <= 0 {
		return
	}
	c.last = c.last.Add(ms * time.Millisecond)
	c.tick(uint32(ms))
}

func (c *Controller) tick(ms uint32) {
	for _, d := range c.cycles {
		if d != nil {
			d.Tick(ms)
		}
	}
}

// processEvents handles every due event and reports whether the page is full.
func (c *Controller) processEvents(page *pagestore.Page) bool {
	for _, ch := range channel.Freqs {
		d := c.cycles[ch]
		if d == nil {
			continue
		}
		for ev := d.CheckEvent(); ev != None; ev = d.CheckEvent() {
			switch ev {
			case Preheat:
				c.wakeChannel(ch)
			case MeasureAndSleep:
				full := c.push(page, ch)
				c.sleepChannel(ch)
				c.keepPowered(ch.Other())
				if full {
					return true
				}
			case Measure:
				if c.push(page, ch) {
					return true
				}
			}
		}
	}
	return false
}

func (c *Controller) push(page *pagestore.Page, ch channel.Freq) bool {
	raw, ok := c.out.Snapshot().Result(ch)
	return page.Push(ch, raw, ok)
}

// wakeChannel powers ch and restarts its capture. The previous result is
// stale from here on.
func (c *Controller) wakeChannel(ch channel.Freq) {
	c.out.Update(func(s *output.Snapshot) { s.Channels[ch].Valid = false })
	c.setPower(ch, true)

	target := c.out.Snapshot().Channels[ch].Target
	if target == 0 {
		target = c.plan.initial
	}
	guard := processor.GuardTicks(c.plan.timeMs[ch], c.plan.reference)
	if err := c.meter.Start(ch, target, guard); err != nil {
		log.Printf("scheduler: start %s: %v", ch, err)
	}
}

func (c *Controller) sleepChannel(ch channel.Freq) {
	if err := c.meter.Stop(ch); err != nil {
		log.Printf("scheduler: stop %s: %v", ch, err)
	}
	c.setPower(ch, false)
}

// keepPowered re-asserts power of ch if its cycle needs it; the sensors
// share the excitation supply.
func (c *Controller) keepPowered(ch channel.Freq) {
	if d := c.cycles[ch]; d != nil && d.Powered() {
		c.setPower(ch, true)
	}
}

func (c *Controller) setPower(ch channel.Freq, on bool) {
	if err := c.power.SetPower(ch, on); err != nil {
		log.Printf("scheduler: power %s: %v", ch, err)
		return
	}
	c.powered[ch] = on
}

// write stores the page. Target adaptation stays suspended until the
// settle delay after the write has passed.
func (c *Controller) write(page *pagestore.Page) {
	if c.window != nil {
		c.window.Close()
	}
	id, err := c.pages.Write(page)
	if err != nil {
		log.Printf("scheduler: %v", err)
		return
	}

	c.cbMu.RLock()
	callbacks := make([]func(uint32, int), len(c.callbacks))
	copy(callbacks, c.callbacks)
	c.cbMu.RUnlock()
	for _, cb := range callbacks {
		cb(id, page.Index())
	}
}

func (c *Controller) openWindow() {
	if c.window != nil {
		c.window.Open()
	}
}

func (c *Controller) shutdown() {
	for _, ch := range channel.Freqs {
		if err := c.meter.Stop(ch); err != nil {
			log.Printf("scheduler: stop %s: %v", ch, err)
		}
		if err := c.power.SetPower(ch, false); err != nil {
			log.Printf("scheduler: power %s: %v", ch, err)
		}
		c.powered[ch] = false
	}
}

func nan32() float32 { return float32(math.NaN()) }
