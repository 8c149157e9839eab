package sample

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gofreqmeter/pkg/channel"
	"github.com/itohio/gofreqmeter/pkg/hw/sim"
)

func TestAverage(t *testing.T) {
	tests := []struct {
		name string
		in   []uint16
		want uint16
	}{
		{name: "empty", in: nil, want: 0},
		{name: "single", in: []uint16{1234}, want: 1234},
		{name: "rounds half up", in: []uint16{1, 2}, want: 2},
		{name: "rounds down", in: []uint16{1, 1, 2}, want: 1},
		{name: "no overflow", in: []uint16{4095, 4095, 4095, 4095}, want: 4095},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Average(tt.in))
		})
	}
}

func TestOversample(t *testing.T) {
	adc := sim.NewADC(1775, 2300, 0)

	got, err := Oversample(adc, channel.BatteryVoltage, 8)
	require.NoError(t, err)
	assert.Equal(t, uint16(2300), got)

	got, err = Oversample(adc, channel.CPUTemperature, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(1775), got)

	adc.SetError(errors.New("adc busy"))
	_, err = Oversample(adc, channel.CPUTemperature, 4)
	assert.Error(t, err)
}
