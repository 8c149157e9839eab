package output

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gofreqmeter/pkg/channel"
)

func TestUpdateAndSnapshot(t *testing.T) {
	o := New()

	_, ok := o.Snapshot().Result(channel.Pressure)
	assert.False(t, ok)

	o.Update(func(s *Snapshot) {
		s.Channels[channel.Pressure] = Channel{Target: 100, Result: 50000, Frequency: 2000, Value: 12.5, Valid: true}
		s.Channels[channel.Temperature].Target = 7
	})

	snap := o.Snapshot()
	r, ok := snap.Result(channel.Pressure)
	assert.True(t, ok)
	assert.Equal(t, uint32(50000), r)
	assert.Equal(t, [channel.FreqCount]uint32{100, 7}, snap.Targets())
}

func TestSnapshotIsACopy(t *testing.T) {
	o := New()
	snap := o.Snapshot()
	snap.Channels[0].Target = 99
	assert.Equal(t, uint32(0), o.Snapshot().Channels[0].Target)
}

func TestOnUpdate(t *testing.T) {
	o := New()
	var got []Snapshot
	o.OnUpdate(func(s Snapshot) { got = append(got, s) })

	o.Update(func(s *Snapshot) { s.BatteryVoltage, s.BatteryVoltageValid = 3.6, true })
	require.Len(t, got, 1)
	assert.Equal(t, 3.6, got[0].BatteryVoltage)
}

func TestConcurrentReadersSeeWholeUpdates(t *testing.T) {
	o := New()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint32(1); i <= 1000; i++ {
			o.Update(func(s *Snapshot) {
				s.Channels[0].Target = i
				s.Channels[1].Target = i
			})
		}
	}()
	for i := 0; i < 1000; i++ {
		s := o.Snapshot()
		require.Equal(t, s.Channels[0].Target, s.Channels[1].Target)
	}
	wg.Wait()
}

func TestMarshalJSON(t *testing.T) {
	var s Snapshot
	s.Channels[channel.Pressure] = Channel{Target: 10, Result: 5, Frequency: 2, Value: 1.5, Valid: true}
	s.Channels[channel.Temperature] = Channel{Target: 3}
	s.CPUTemperature, s.CPUTemperatureValid = 31.5, true

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"pressure": {"target": 10, "result": 5, "frequency": 2, "value": 1.5},
		"temperature": {"target": 3, "result": null, "frequency": null, "value": null},
		"cpu_temperature": 31.5,
		"battery_voltage": null
	}`, string(data))
}
