package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gofreqmeter/pkg/channel"
	"github.com/itohio/gofreqmeter/pkg/config"
	"github.com/itohio/gofreqmeter/pkg/errcode"
	"github.com/itohio/gofreqmeter/pkg/hw/sim"
	"github.com/itohio/gofreqmeter/pkg/output"
	"github.com/itohio/gofreqmeter/pkg/pagestore"
	"github.com/itohio/gofreqmeter/pkg/processor"
)

// fakeClock advances instantly and cancels once limit is exceeded.
type fakeClock struct {
	now     time.Time
	total   time.Duration
	limit   time.Duration
	onSleep func(d time.Duration)
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	c.total += d
	if c.limit > 0 && c.total > c.limit {
		return context.Canceled
	}
	if c.onSleep != nil {
		c.onSleep(d)
	}
	return nil
}

type startCall struct {
	ch     channel.Freq
	target uint32
	guard  uint64
}

// meterCall is a Start or Stop at a point of the fake clock.
type meterCall struct {
	at    time.Duration
	ch    channel.Freq
	start bool
}

type fakeMeter struct {
	clock   *fakeClock
	running [channel.FreqCount]bool
	starts  []startCall
	stops   int
	calls   []meterCall
}

func (m *fakeMeter) Start(ch channel.Freq, target uint32, guard uint64) error {
	m.running[ch] = true
	m.starts = append(m.starts, startCall{ch, target, guard})
	m.calls = append(m.calls, meterCall{m.clock.total, ch, true})
	return nil
}

func (m *fakeMeter) Stop(ch channel.Freq) error {
	m.running[ch] = false
	m.stops++
	m.calls = append(m.calls, meterCall{m.clock.total, ch, false})
	return nil
}

type fakeSampler struct {
	out     *output.Output
	battery float64
	cpu     float64
	calls   int
}

func (s *fakeSampler) SampleAll() error {
	s.calls++
	s.out.Update(func(snap *output.Snapshot) {
		snap.BatteryVoltage, snap.BatteryVoltageValid = s.battery, true
		snap.CPUTemperature, snap.CPUTemperatureValid = s.cpu, true
	})
	return nil
}

var rawResults = [channel.FreqCount]uint32{31250, 30000}

type rig struct {
	ctrl    *Controller
	clock   *fakeClock
	meter   *fakeMeter
	sampler *fakeSampler
	power   *sim.Power
	pages   *pagestore.Store
	window  *processor.Window
	out     *output.Output
	written []uint32
	sleeps  []sleepCall
}

// sleepCall is a clock sleep and whether target adaptation was allowed
// during it.
type sleepCall struct {
	d    time.Duration
	open bool
}

// newRig builds a controller whose meter "measures" rawResults on every
// clock sleep while its channel runs.
func newRig(t *testing.T, pages int, limit time.Duration, modify func(c *config.Config)) *rig {
	t.Helper()
	cfg := config.Default()
	if modify != nil {
		modify(cfg)
	}
	r := &rig{
		clock:  &fakeClock{now: time.UnixMilli(1_700_000_000_000), limit: limit},
		meter:  &fakeMeter{},
		power:  sim.NewPower(nil, nil),
		pages:  pagestore.New(pagestore.NewMemFlash(256, pages), nil),
		window: processor.NewWindow(),
		out:    output.New(),
	}
	r.meter.clock = r.clock
	r.sampler = &fakeSampler{out: r.out, battery: 3.7, cpu: 30}
	r.clock.onSleep = func(d time.Duration) {
		r.sleeps = append(r.sleeps, sleepCall{d, r.window.IsOpen()})
		r.out.Update(func(s *output.Snapshot) {
			for _, ch := range channel.Freqs {
				if r.meter.running[ch] {
					s.Channels[ch].Result = rawResults[ch]
					s.Channels[ch].Valid = true
				}
			}
		})
	}
	r.ctrl = NewController(config.NewStore(cfg, 0), r.pages, r.out, r.meter, r.sampler, r.power, r.window, r.clock)
	r.ctrl.OnPageWritten(func(id uint32, index int) {
		assert.Equal(t, int(id)-1, index)
		r.written = append(r.written, id)
	})
	return r
}

func TestControllerFillsPages(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	r := newRig(t, 8, 190*time.Second, nil)

	require.NoError(t, r.ctrl.Run(context.Background()))
	require.GreaterOrEqual(t, len(r.written), 2)
	assert.Equal(t, uint32(1), r.written[0])
	assert.Equal(t, uint32(2), r.written[1])
	assert.True(t, r.window.IsOpen())

	rec, err := r.pages.ReadPage(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), rec.Header.ThisID)
	assert.Equal(t, uint32(0), rec.Header.PrevID)
	assert.Equal(t, uint64(start.UnixMilli()), rec.Header.TimestampMs)
	assert.Equal(t, uint32(1000), rec.Header.BaseIntervalMs)
	assert.Equal(t, [channel.FreqCount]uint32{1, 1}, rec.Header.InterleaveRatio)
	assert.Equal(t, uint32(1_000_000), rec.Header.ReferenceFrequency)
	assert.InDelta(t, 3.7, rec.Header.VBat, 1e-6)
	assert.InDelta(t, 30, rec.Header.TCPU, 1e-6)

	// 3-byte first entries, 1-byte repeats: the 188th byte fills a 192-byte payload.
	for _, ch := range channel.Freqs {
		require.Len(t, rec.Samples[ch], 92, ch.String())
		for _, v := range rec.Samples[ch] {
			assert.Equal(t, pagestore.Value{Raw: rawResults[ch], Valid: true}, v)
		}
	}

	rec2, err := r.pages.ReadPage(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), rec2.Header.PrevID)
	assert.Greater(t, rec2.Header.TimestampMs, rec.Header.TimestampMs)

	// adaptation resumes only once the settle delay after a write is over
	settle := 20 * time.Millisecond
	settled := 0
	for _, s := range r.sleeps {
		if s.d == settle {
			settled++
			assert.False(t, s.open, "adaptation during the settle delay")
		} else {
			assert.True(t, s.open, "adaptation suspended during a %v sleep", s.d)
		}
	}
	assert.GreaterOrEqual(t, settled, 1)
}

func TestControllerPowerCycle(t *testing.T) {
	r := newRig(t, 8, 2100*time.Millisecond, nil)
	require.NoError(t, r.ctrl.Run(context.Background()))

	on := func(ch channel.Freq) sim.Transition { return sim.Transition{Channel: ch, On: true} }
	off := func(ch channel.Freq) sim.Transition { return sim.Transition{Channel: ch, On: false} }
	assert.Equal(t, []sim.Transition{
		// equal preheats start together, measure at 200 and sleep
		on(channel.Pressure), on(channel.Temperature),
		off(channel.Pressure), off(channel.Temperature),
		// preheat at 1000, measure at 1200
		on(channel.Pressure), on(channel.Temperature),
		off(channel.Pressure), off(channel.Temperature),
		// preheat at 2000, cancelled while heating
		on(channel.Pressure), on(channel.Temperature),
		off(channel.Pressure), off(channel.Temperature),
	}, r.power.History())

	require.NotEmpty(t, r.meter.starts)
	first := r.meter.starts[0]
	assert.Equal(t, channel.Pressure, first.ch)
	assert.Equal(t, uint32(100), first.target, "initial target without a previous result")
	assert.Equal(t, processor.GuardTicks(500, 1_000_000), first.guard)

	// The partial page holds the two completed measurements per channel.
	require.Equal(t, []uint32{1}, r.written)
	rec, err := r.pages.ReadPage(0)
	require.NoError(t, err)
	assert.Len(t, rec.Samples[channel.Pressure], 2)
	assert.Len(t, rec.Samples[channel.Temperature], 2)
}

func TestControllerAlignsUnequalPreheats(t *testing.T) {
	r := newRig(t, 8, 2100*time.Millisecond, func(c *config.Config) {
		c.Power.PressurePreheatMs = 500
		c.Power.TemperaturePreheatMs = 200
	})
	require.NoError(t, r.ctrl.Run(context.Background()))

	ms := time.Millisecond
	start := func(ch channel.Freq, at int) meterCall { return meterCall{time.Duration(at) * ms, ch, true} }
	stop := func(ch channel.Freq, at int) meterCall { return meterCall{time.Duration(at) * ms, ch, false} }
	assert.Equal(t, []meterCall{
		// temperature follows by the 300ms preheat difference
		start(channel.Pressure, 0), start(channel.Temperature, 300),
		stop(channel.Pressure, 500), stop(channel.Temperature, 500),
		start(channel.Pressure, 1000), start(channel.Temperature, 1300),
		stop(channel.Pressure, 1500), stop(channel.Temperature, 1500),
		start(channel.Pressure, 2000),
		// cancelled at 2300, shutdown
		stop(channel.Pressure, 2300), stop(channel.Temperature, 2300),
	}, r.meter.calls)

	rec, err := r.pages.ReadPage(0)
	require.NoError(t, err)
	assert.Len(t, rec.Samples[channel.Pressure], 2)
	assert.Len(t, rec.Samples[channel.Temperature], 2)
}

func TestControllerAdvancesByElapsedTime(t *testing.T) {
	r := newRig(t, 8, 1100*time.Millisecond, nil)

	// 50ms spent sampling the analog channels before the first sleep
	slow := &slowSampler{fakeSampler: r.sampler, clock: r.clock, cost: 50 * time.Millisecond}
	r.ctrl.sampler = slow
	require.NoError(t, r.ctrl.Run(context.Background()))

	// heating ends at 200ms of wall time: 50ms sampling plus a 150ms sleep
	require.NotEmpty(t, r.sleeps)
	assert.Equal(t, 150*time.Millisecond, r.sleeps[0].d)
	require.GreaterOrEqual(t, len(r.meter.calls), 3)
	assert.Equal(t, meterCall{150 * time.Millisecond, channel.Pressure, false}, r.meter.calls[2])
}

// slowSampler takes time on the clock without sleeping.
type slowSampler struct {
	*fakeSampler
	clock *fakeClock
	cost  time.Duration
}

func (s *slowSampler) SampleAll() error {
	s.clock.now = s.clock.now.Add(s.cost)
	return s.fakeSampler.SampleAll()
}

func TestControllerContinuous(t *testing.T) {
	r := newRig(t, 8, 3500*time.Millisecond, func(c *config.Config) {
		c.Mode = config.ModeContinuous
		c.Channels.Temperature = false
	})
	require.NoError(t, r.ctrl.Run(context.Background()))

	assert.Equal(t, []sim.Transition{
		{Channel: channel.Pressure, On: true},
		{Channel: channel.Pressure, On: false},
	}, r.power.History(), "continuous mode keeps the sensor on until shutdown")
	assert.Nil(t, r.ctrl.Cycle(channel.Temperature))
	assert.Equal(t, MeasureOnly, r.ctrl.Cycle(channel.Pressure).Mode())
	for _, s := range r.meter.starts {
		assert.Equal(t, channel.Pressure, s.ch)
	}

	require.Equal(t, []uint32{1}, r.written)
	rec, err := r.pages.ReadPage(0)
	require.NoError(t, err)
	assert.Len(t, rec.Samples[channel.Pressure], 3)
	assert.Empty(t, rec.Samples[channel.Temperature])
}

func TestControllerFatal(t *testing.T) {
	tests := []struct {
		name    string
		pages   int
		battery float64
		code    errcode.Code
		written int
	}{
		{name: "under-voltage", pages: 8, battery: 2.5, code: errcode.UnderVoltage},
		{name: "storage exhausted", pages: 1, battery: 3.7, code: errcode.StorageExhausted, written: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, tt.pages, 0, nil)
			r.sampler.battery = tt.battery

			err := r.ctrl.Run(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.code))
			assert.True(t, errcode.Fatal(err))
			assert.Len(t, r.written, tt.written)
			for _, ch := range channel.Freqs {
				assert.False(t, r.power.On(ch))
				assert.False(t, r.meter.running[ch])
			}
		})
	}
}

func TestControllerCancelledContext(t *testing.T) {
	r := newRig(t, 8, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, r.ctrl.Run(ctx))
	assert.Empty(t, r.written)
	for _, ch := range channel.Freqs {
		assert.False(t, r.power.On(ch))
	}
}
