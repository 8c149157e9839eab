package meter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gofreqmeter/pkg/channel"
	"github.com/itohio/gofreqmeter/pkg/config"
	"github.com/itohio/gofreqmeter/pkg/hw/sim"
	"github.com/itohio/gofreqmeter/pkg/output"
	"github.com/itohio/gofreqmeter/pkg/processor"
)

func newSamplerFixture(t *testing.T, mode config.Mode, modify func(c *config.Config)) (*Sampler, *sim.ADC, *output.Output) {
	t.Helper()
	cfg := config.Default()
	cfg.Measurement.AnalogPeriodMs = 10
	if modify != nil {
		modify(cfg)
	}
	store := config.NewStore(cfg, 50*time.Millisecond)
	out := output.New()
	proc, err := processor.New(mode, store, out, nil, nil)
	require.NoError(t, err)
	adc := sim.NewADC(1775, 2300, 0)
	return NewSampler(adc, proc, store), adc, out
}

func TestSampler_Sample(t *testing.T) {
	s, _, out := newSamplerFixture(t, config.ModeDutyCycled, nil)

	ok, cont, period, err := s.Sample(channel.BatteryVoltage)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, cont, "duty-cycled conversions are one-shot")
	assert.Zero(t, period)

	assert.Equal(t, uint16(2300), s.Last(channel.BatteryVoltage).Raw)
	snap := out.Snapshot()
	assert.True(t, snap.BatteryVoltageValid)
	assert.False(t, snap.CPUTemperatureValid)
}

func TestSampler_Disabled(t *testing.T) {
	s, _, out := newSamplerFixture(t, config.ModeDutyCycled, func(c *config.Config) {
		c.Channels.CPUTemperature = false
	})

	ok, _, _, err := s.Sample(channel.CPUTemperature)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, out.Snapshot().CPUTemperatureValid)
}

func TestSampler_SampleAll(t *testing.T) {
	s, adc, out := newSamplerFixture(t, config.ModeDutyCycled, nil)
	require.NoError(t, s.SampleAll())

	snap := out.Snapshot()
	assert.True(t, snap.BatteryVoltageValid)
	assert.True(t, snap.CPUTemperatureValid)

	adc.SetError(errors.New("adc fault"))
	assert.Error(t, s.SampleAll())
}

func TestSampler_RunContinuous(t *testing.T) {
	s, adc, out := newSamplerFixture(t, config.ModeContinuous, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return out.Snapshot().BatteryVoltageValid }, time.Second, 5*time.Millisecond)

	// the 10 ms period keeps picking up new readings
	adc.Set(channel.BatteryVoltage, 1551)
	require.Eventually(t, func() bool { return out.Snapshot().BatteryVoltage < 3 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSampler_RunOneShotReturns(t *testing.T) {
	s, _, out := newSamplerFixture(t, config.ModeDutyCycled, nil)
	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return once every channel was one-shot")
	}
	snap := out.Snapshot()
	assert.True(t, snap.BatteryVoltageValid)
	assert.True(t, snap.CPUTemperatureValid)
}
