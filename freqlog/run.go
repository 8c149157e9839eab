package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/itohio/gofreqmeter/pkg/capture"
	"github.com/itohio/gofreqmeter/pkg/channel"
	"github.com/itohio/gofreqmeter/pkg/config"
	"github.com/itohio/gofreqmeter/pkg/errcode"
	"github.com/itohio/gofreqmeter/pkg/hw"
	"github.com/itohio/gofreqmeter/pkg/hw/sim"
	"github.com/itohio/gofreqmeter/pkg/meter"
	"github.com/itohio/gofreqmeter/pkg/monitor"
	"github.com/itohio/gofreqmeter/pkg/output"
	"github.com/itohio/gofreqmeter/pkg/pagestore"
	"github.com/itohio/gofreqmeter/pkg/processor"
	"github.com/itohio/gofreqmeter/pkg/readout"
	"github.com/itohio/gofreqmeter/pkg/scheduler"
	"github.com/itohio/gofreqmeter/pkg/telemetry"
	"github.com/itohio/gofreqmeter/pkg/timebase"
)

const (
	// simCounterBits is the width of the simulated capture counter.
	simCounterBits = 16
	// readingsWindow is how long the meter keeps its reading history.
	readingsWindow = time.Minute
	// adcNoise is the raw noise amplitude of the simulated ADC.
	adcNoise = 3
)

func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	duration := fs.Duration("duration", 0, "Stop after this long (0 = until interrupted)")
	cfg, cfgPath, err := loadConfig(fs, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	inst, err := newInstrument(cfg)
	if err != nil {
		return err
	}
	defer inst.Close()
	inst.persistTo = cfgPath

	if err := inst.connect(); err != nil {
		return err
	}
	return inst.Run(ctx)
}

// powerSwitches drives several switches together, e.g. GPIO rails and the
// simulated sensors behind them.
type powerSwitches []hw.PowerSwitch

func (p powerSwitches) SetPower(ch channel.Freq, on bool) error {
	var errs []error
	for _, s := range p {
		errs = append(errs, s.SetPower(ch, on))
	}
	return errors.Join(errs...)
}

func (p powerSwitches) Close() error {
	var errs []error
	for _, s := range p {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// instrument is the complete logger wired to simulated hardware.
type instrument struct {
	cfg       *config.Config
	store     *config.Store
	out       *output.Output
	alarms    *monitor.Alarms
	window    *processor.Window
	proc      processor.Processor
	persistTo string

	flash *pagestore.FileFlash
	pages *pagestore.Store

	irq     *sim.IRQ
	counter *sim.Counter
	adc     *sim.ADC
	sensors [channel.FreqCount]*sim.Sensor
	power   hw.PowerSwitch
	chans   [channel.FreqCount]*capture.Channel
	notes   chan capture.Notification

	meter   *meter.Meter
	sampler *meter.Sampler
	ctrl    *scheduler.Controller

	pub     telemetry.Publisher
	fwd     *telemetry.Forwarder
	console *readout.Console
	port    interface{ Close() error }
}

// newInstrument assembles the measurement pipeline. The broker and the
// console port are attached by connect.
func newInstrument(cfg *config.Config) (*instrument, error) {
	inst := &instrument{
		cfg:    cfg,
		store:  config.NewStore(cfg, 0),
		out:    output.New(),
		window: processor.NewWindow(),
		notes:  make(chan capture.Notification, capture.DefaultRingSize),
	}
	var err error
	defer func() {
		if err != nil {
			inst.Close()
		}
	}()

	if inst.alarms, err = monitor.NewAlarms(inst.store); err != nil {
		return nil, err
	}
	inst.alarms.OnRise(func(e monitor.Event) {
		log.Printf("alarm: %s (%.3f, limit %.3f)", e.Alarm, e.Value, e.Limit)
	})
	if inst.proc, err = processor.New(cfg.Mode, inst.store, inst.out, inst.alarms, inst.window); err != nil {
		return nil, err
	}

	if inst.flash, err = pagestore.OpenFileFlash(cfg.Storage.Image, cfg.Storage.PageSize, cfg.Storage.Pages); err != nil {
		return nil, err
	}
	inst.pages = pagestore.New(inst.flash, nil)

	if err = inst.buildHardware(); err != nil {
		return nil, err
	}

	chans := make([]meter.Capturer, 0, channel.FreqCount)
	for _, c := range inst.chans {
		chans = append(chans, c)
	}
	inst.meter = meter.New(inst.proc, readingsWindow, chans...)
	inst.sampler = meter.NewSampler(inst.adc, inst.proc, inst.store)
	inst.ctrl = scheduler.NewController(inst.store, inst.pages, inst.out, inst.meter, inst.sampler, inst.power, inst.window, nil)
	inst.ctrl.OnPageWritten(inst.pageWritten)
	return inst, nil
}

func (inst *instrument) buildHardware() error {
	cfg := inst.cfg
	inst.irq = sim.NewIRQ()
	inst.counter = sim.NewCounter(cfg.Measurement.ReferenceFrequency, simCounterBits, inst.irq)
	tb := timebase.New(inst.counter, inst.irq)
	if err := tb.Init(); err != nil {
		return fmt.Errorf("time base: %w", err)
	}

	freqs := [channel.FreqCount]float64{cfg.Sim.PressureHz, cfg.Sim.TemperatureHz}
	for _, ch := range channel.Freqs {
		// the simulated sensor settles within half of the configured preheat
		preheat := time.Duration(cfg.Power.PreheatMs(ch)/2) * time.Millisecond
		inst.sensors[ch] = sim.NewSensor(inst.counter, freqs[ch], preheat)
		c, err := capture.New(ch, inst.sensors[ch], inst.irq, tb, inst.notes)
		if err != nil {
			return err
		}
		inst.chans[ch] = c
	}
	inst.adc = sim.NewADC(cfg.Sim.CPUTempRaw, cfg.Sim.BatteryRaw, adcNoise)

	simPower := sim.NewPower(inst.sensors[channel.Pressure], inst.sensors[channel.Temperature])
	if cfg.Sim.PowerChip == "" {
		inst.power = simPower
		return nil
	}
	rails, err := hw.NewGPIOPower(cfg.Sim.PowerChip, cfg.Sim.PressureLine, cfg.Sim.TemperatureLine)
	if err != nil {
		return err
	}
	inst.power = powerSwitches{rails, simPower}
	return nil
}

// connect attaches the optional telemetry broker and console port.
func (inst *instrument) connect() error {
	if broker := inst.cfg.Readout.Broker; broker != "" {
		pub, err := telemetry.NewRealPublisher(broker, "")
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		inst.attachTelemetry(pub)
	}
	if name := inst.cfg.Readout.SerialPort; name != "" {
		port, err := readout.OpenPort(name, inst.cfg.Readout.BaudRate)
		if err != nil {
			return err
		}
		inst.port = port
		inst.attachConsole(readout.NewConsole(port, inst.out, readout.DefaultPeriod))
	}
	return nil
}

func (inst *instrument) attachTelemetry(pub telemetry.Publisher) {
	inst.pub = pub
	inst.fwd = telemetry.NewForwarder(pub, 0)
	inst.alarms.OnRise(inst.fwd.Alarm)
}

func (inst *instrument) attachConsole(c *readout.Console) {
	inst.console = c
	c.OnAcknowledge(inst.alarms.Acknowledge)
	c.OnStatus(func() (*readout.Status, error) {
		return readout.BuildStatus(inst.store, inst.pages, inst.out)
	})
}

func (inst *instrument) pageWritten(id uint32, index int) {
	if inst.fwd == nil {
		return
	}
	used, total, err := inst.pages.Usage()
	if err != nil {
		log.Printf("telemetry: usage: %v", err)
	}
	inst.fwd.Page(telemetry.PageEvent{ID: id, Index: index, Used: used, Total: total})
}

// Run executes every task until ctx is done or the controller halts on a
// fatal condition.
func (inst *instrument) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	spawn(func() { inst.meter.Run(ctx, inst.notes) })
	if inst.cfg.Mode == config.ModeContinuous {
		spawn(func() { inst.sampler.Run(ctx) })
	}
	if inst.persistTo != "" {
		spawn(func() { inst.store.RunPersister(ctx, inst.persistTo) })
	}
	if inst.fwd != nil {
		spawn(func() { inst.fwd.Run(ctx) })
	}
	if inst.console != nil {
		spawn(func() {
			if err := inst.console.Run(ctx); err != nil {
				log.Printf("console: %v", err)
			}
		})
	}

	log.Printf("freqlog: running in %s mode, image %s", inst.cfg.Mode, inst.cfg.Storage.Image)
	err := inst.ctrl.Run(ctx)
	cancel()
	if inst.port != nil {
		// unblocks the console command reader
		inst.port.Close()
		inst.port = nil
	}
	wg.Wait()

	if err != nil && errcode.Fatal(err) {
		log.Printf("freqlog: halted: %v", err)
	}
	return err
}

// Close releases the hardware and the flash image.
func (inst *instrument) Close() {
	for _, c := range inst.chans {
		if c != nil {
			c.Stop()
		}
	}
	for _, s := range inst.sensors {
		if s != nil {
			s.Stop()
		}
	}
	if inst.power != nil {
		inst.power.Close()
	}
	if inst.counter != nil {
		inst.counter.Close()
	}
	if inst.pub != nil {
		inst.pub.Close()
	}
	if inst.port != nil {
		inst.port.Close()
	}
	if inst.flash != nil {
		inst.flash.Close()
	}
}
