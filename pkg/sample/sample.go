// Package sample converts raw analog readings into physical values and
// provides the averaging and decimation helpers used on sample series.
package sample

import (
	"fmt"
	"time"

	"github.com/itohio/gofreqmeter/pkg/channel"
	"github.com/itohio/gofreqmeter/pkg/config"
)

// ADCMax is the full scale of the 12-bit converter.
const ADCMax = 4095

// Sample represents a processed analog sample with its physical value.
type Sample struct {
	Timestamp time.Time
	Channel   channel.Analog
	Raw       uint16  // Averaged ADC code
	Value     float64 // Degrees Celsius or Volts depending on Channel
}

// Convert turns a raw ADC code of ch into its physical value.
func Convert(ch channel.Analog, raw uint16, cfg config.ADCConfig) (float64, error) {
	v := adcToVoltage(raw, cfg.VRef)
	switch ch {
	case channel.CPUTemperature:
		return cpuTemperature(v, cfg.TempV25, cfg.TempAvgSlope)
	case channel.BatteryVoltage:
		return voltageDivider(v, cfg.R1, cfg.R2), nil
	}
	return 0, fmt.Errorf("unknown analog channel %d", ch)
}

// adcToVoltage converts a 12-bit ADC reading to voltage.
func adcToVoltage(adc uint16, vref float64) float64 {
	return (float64(adc) / ADCMax) * vref
}

// voltageDivider calculates the input voltage from the measured output voltage.
// Formula: V_in = V_out * ((R1 + R2) / R2)
func voltageDivider(vout float64, r1, r2 float64) float64 {
	return vout * ((r1 + r2) / r2)
}

// cpuTemperature converts the internal sensor voltage to degrees Celsius.
// Formula: T = (V25 - V) / AvgSlope + 25
func cpuTemperature(v, v25, slope float64) (float64, error) {
	if slope == 0 {
		return 0, fmt.Errorf("temperature sensor slope is zero")
	}
	return (v25-v)/slope + 25, nil
}
