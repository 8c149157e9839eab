// Package channel enumerates the instrument's measurement channels.
package channel

// Freq identifies a frequency (resonant sensor) channel.
type Freq int

const (
	Pressure Freq = iota
	Temperature

	// FreqCount is the number of frequency channels.
	FreqCount = 2
)

// Freqs lists every frequency channel in index order.
var Freqs = [FreqCount]Freq{Pressure, Temperature}

func (c Freq) String() string {
	switch c {
	case Pressure:
		return "pressure"
	case Temperature:
		return "temperature"
	}
	return "unknown"
}

// Other returns the opposite frequency channel.
func (c Freq) Other() Freq {
	if c == Pressure {
		return Temperature
	}
	return Pressure
}

// Analog identifies an ADC channel.
type Analog int

const (
	CPUTemperature Analog = iota
	BatteryVoltage

	AnalogCount = 2
)

// Analogs lists every analog channel in index order.
var Analogs = [AnalogCount]Analog{CPUTemperature, BatteryVoltage}

func (c Analog) String() string {
	switch c {
	case CPUTemperature:
		return "cpu_temperature"
	case BatteryVoltage:
		return "battery_voltage"
	}
	return "unknown"
}
