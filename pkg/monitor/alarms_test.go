package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gofreqmeter/pkg/config"
	"github.com/itohio/gofreqmeter/pkg/errcode"
)

func newStore(t *testing.T) *config.Store {
	t.Helper()
	cfg := config.Default()
	cfg.Monitoring.ConfirmCount = 2
	return config.NewStore(cfg, 20*time.Millisecond)
}

func TestAlarmsSetStickyFlag(t *testing.T) {
	store := newStore(t)
	a, err := NewAlarms(store)
	require.NoError(t, err)

	var events []Event
	a.OnRise(func(e Event) { events = append(events, e) })

	rose, err := a.Check(OverPressure, 130)
	require.NoError(t, err)
	assert.False(t, rose)

	rose, err = a.Check(OverPressure, 130)
	require.NoError(t, err)
	assert.True(t, rose)

	cfg, err := store.Get()
	require.NoError(t, err)
	assert.True(t, cfg.Monitoring.Flags.OverPressure)
	assert.False(t, cfg.Monitoring.Flags.OverTemperature)

	require.Len(t, events, 1)
	assert.Equal(t, Event{Alarm: OverPressure, Value: 130, Limit: 120}, events[0])
}

func TestAlarmsLowVoltage(t *testing.T) {
	store := newStore(t)
	a, err := NewAlarms(store)
	require.NoError(t, err)

	for _, v := range []float32{3.5, 2.9} {
		rose, err := a.Check(LowVoltage, v)
		require.NoError(t, err)
		assert.False(t, rose)
	}
	rose, err := a.Check(LowVoltage, 2.8)
	require.NoError(t, err)
	assert.True(t, rose)

	cfg, err := store.Get()
	require.NoError(t, err)
	assert.True(t, cfg.Monitoring.Flags.LowVoltage)
}

func TestAlarmsReadTimeout(t *testing.T) {
	store := newStore(t)
	a, err := NewAlarms(store)
	require.NoError(t, err)

	_, err = a.Check(CPUOverheat, 90)
	require.NoError(t, err)

	hold := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = store.Read(func(*config.Config) {
			close(held)
			<-hold
		})
	}()
	<-held
	_, err = a.Check(CPUOverheat, 90)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errcode.ResourceTimeout))
	close(hold)

	rose, err := a.Check(CPUOverheat, 90)
	require.NoError(t, err)
	assert.True(t, rose)
}

func TestAlarmsRetryWhenRecordFails(t *testing.T) {
	cfg := config.Default()
	cfg.Monitoring.ConfirmCount = 2
	cfg.Storage.Pages = 0 // every Modify fails validation
	store := config.NewStore(cfg, 20*time.Millisecond)
	a, err := NewAlarms(store)
	require.NoError(t, err)

	rose, err := a.Check(CPUOverheat, 90)
	require.NoError(t, err)
	assert.False(t, rose)

	rose, err = a.Check(CPUOverheat, 90)
	require.Error(t, err)
	assert.False(t, rose)

	// Without the retry cap the monitor would stay clamped and report nothing.
	_, err = a.Check(CPUOverheat, 90)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errcode.Validation))
}

func TestAlarmsAcknowledge(t *testing.T) {
	store := newStore(t)
	a, err := NewAlarms(store)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = a.Check(OverTemperature, 150)
		require.NoError(t, err)
	}
	require.NoError(t, a.Acknowledge(OverTemperature))

	cfg, err := store.Get()
	require.NoError(t, err)
	assert.False(t, cfg.Monitoring.Flags.OverTemperature)

	_, err = a.Check(OverTemperature, 150)
	require.NoError(t, err)
	rose, err := a.Check(OverTemperature, 150)
	require.NoError(t, err)
	assert.True(t, rose)
}

func TestAlarmsUnknown(t *testing.T) {
	a, err := NewAlarms(newStore(t))
	require.NoError(t, err)
	_, err = a.Check(Alarm("bogus"), 1)
	assert.Error(t, err)
}
