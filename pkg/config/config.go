package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/itohio/gofreqmeter/pkg/channel"
)

// Mode selects the value processor variant at startup.
type Mode string

const (
	// ModeContinuous keeps every enabled channel powered and measuring.
	ModeContinuous Mode = "continuous"
	// ModeDutyCycled powers channels only around scheduled measurements.
	ModeDutyCycled Mode = "duty_cycled"
)

// Config represents the instrument settings.
type Config struct {
	Mode        Mode              `yaml:"mode"`
	Measurement MeasurementConfig `yaml:"measurement"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Ranges      RangesConfig      `yaml:"ranges"`
	Write       WriteConfig       `yaml:"write"`
	Power       PowerConfig       `yaml:"power"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
	ADC         ADCConfig         `yaml:"adc"`
	Channels    ChannelsConfig    `yaml:"channels"`
	Storage     StorageConfig     `yaml:"storage"`
	Readout     ReadoutConfig     `yaml:"readout"`
	Security    SecurityConfig    `yaml:"security"`
	Sim         SimConfig         `yaml:"sim"`
}

// MeasurementConfig contains frequency measurement parameters.
type MeasurementConfig struct {
	PressureTimeMs        uint32  `yaml:"pressure_time_ms"`    // Measurement window for the pressure channel
	TemperatureTimeMs     uint32  `yaml:"temperature_time_ms"` // Measurement window for the temperature channel
	ReferenceFrequency    uint32  `yaml:"reference_frequency"` // Time base clock (Hz)
	Multiplier            float64 `yaml:"multiplier"`          // Correction applied to the reference clock
	MinAdaptationInterval uint32  `yaml:"min_adaptation_interval"`
	InitialTarget         uint32  `yaml:"initial_target"`
	AnalogPeriodMs        uint32  `yaml:"analog_period_ms"`
}

// TimeMs returns the configured measurement window of a frequency channel.
func (m MeasurementConfig) TimeMs(ch channel.Freq) uint32 {
	if ch == channel.Pressure {
		return m.PressureTimeMs
	}
	return m.TemperatureTimeMs
}

// CalibrationConfig contains polynomial coefficients of both sensors.
type CalibrationConfig struct {
	Pressure    PressureCoefficients    `yaml:"pressure"`
	Temperature TemperatureCoefficients `yaml:"temperature"`
	Date        CalibrationDate         `yaml:"date"`
}

// PressureCoefficients describe P = sum(A[i*4+j] * dFp^i * dFt^j), i,j in 0..3.
type PressureCoefficients struct {
	Fp0 float32   `yaml:"fp0"` // Pressure sensor frequency offset (Hz)
	Ft0 float32   `yaml:"ft0"` // Temperature sensor frequency offset (Hz)
	A   []float32 `yaml:"a"`   // 16 coefficients, row-major in dFp
}

// TemperatureCoefficients describe T = T0 + C[0]*dF + C[1]*dF^2 + C[2]*dF^3.
type TemperatureCoefficients struct {
	T0 float32   `yaml:"t0"`
	F0 float32   `yaml:"f0"`
	C  []float32 `yaml:"c"`
}

// CalibrationDate is the date the coefficients were obtained.
type CalibrationDate struct {
	Day   uint32 `yaml:"day"`
	Month uint32 `yaml:"month"`
	Year  uint32 `yaml:"year"`
}

// Range is a work range of a measured quantity.
type Range struct {
	Min    float32 `yaml:"min"`
	Max    float32 `yaml:"max"`
	AbsMax float32 `yaml:"abs_max"` // Alarm limit
}

// RangesConfig contains work ranges per channel.
type RangesConfig struct {
	Pressure    Range `yaml:"pressure"`
	Temperature Range `yaml:"temperature"`
}

// WriteConfig controls how often data pages are filled.
type WriteConfig struct {
	BaseIntervalMs     uint32 `yaml:"base_interval_ms"`
	PressureDivider    uint32 `yaml:"pressure_divider"`
	TemperatureDivider uint32 `yaml:"temperature_divider"`
}

// Divider returns the write divider of a frequency channel.
func (w WriteConfig) Divider(ch channel.Freq) uint32 {
	if ch == channel.Pressure {
		return w.PressureDivider
	}
	return w.TemperatureDivider
}

// PeriodMs returns the write period of a frequency channel.
func (w WriteConfig) PeriodMs(ch channel.Freq) uint32 {
	return w.BaseIntervalMs * w.Divider(ch)
}

// PowerConfig contains energy budget parameters.
type PowerConfig struct {
	PressurePreheatMs    uint32  `yaml:"pressure_preheat_ms"`
	TemperaturePreheatMs uint32  `yaml:"temperature_preheat_ms"`
	MinBatteryVoltage    float32 `yaml:"min_battery_voltage"`
}

// PreheatMs returns the preheat time of a frequency channel.
func (p PowerConfig) PreheatMs(ch channel.Freq) uint32 {
	if ch == channel.Pressure {
		return p.PressurePreheatMs
	}
	return p.TemperaturePreheatMs
}

// MonitoringConfig contains alarm parameters and sticky alarm flags.
type MonitoringConfig struct {
	ConfirmCount   uint32          `yaml:"confirm_count"`
	CPUTemperature float32         `yaml:"cpu_temperature_max"`
	Flags          MonitoringFlags `yaml:"flags"`
}

// MonitoringFlags are set when an alarm is confirmed and stay set until acknowledged.
type MonitoringFlags struct {
	OverPressure    bool `yaml:"over_pressure"`
	OverTemperature bool `yaml:"over_temperature"`
	CPUOverheat     bool `yaml:"cpu_overheat"`
	LowVoltage      bool `yaml:"low_voltage"`
}

// ADCConfig contains analog conversion parameters.
type ADCConfig struct {
	VRef         float64 `yaml:"vref"`
	R1           float64 `yaml:"r1"`             // Battery divider, top resistor
	R2           float64 `yaml:"r2"`             // Battery divider, bottom resistor
	TempV25      float64 `yaml:"temp_v25"`       // CPU sensor voltage at 25 C (V)
	TempAvgSlope float64 `yaml:"temp_avg_slope"` // CPU sensor slope (V/C)
	Oversample   int     `yaml:"oversample"`
}

// ChannelsConfig contains channel enable flags.
type ChannelsConfig struct {
	Pressure       bool `yaml:"pressure"`
	Temperature    bool `yaml:"temperature"`
	CPUTemperature bool `yaml:"cpu_temperature"`
	BatteryVoltage bool `yaml:"battery_voltage"`
}

// Enabled reports whether a frequency channel is enabled.
func (c ChannelsConfig) Enabled(ch channel.Freq) bool {
	if ch == channel.Pressure {
		return c.Pressure
	}
	return c.Temperature
}

// AnalogEnabled reports whether an analog channel is enabled.
func (c ChannelsConfig) AnalogEnabled(ch channel.Analog) bool {
	if ch == channel.CPUTemperature {
		return c.CPUTemperature
	}
	return c.BatteryVoltage
}

// StorageConfig describes the flash used for data pages.
type StorageConfig struct {
	Image    string `yaml:"image"` // Flash image file
	PageSize int    `yaml:"page_size"`
	Pages    int    `yaml:"pages"`
}

// ReadoutConfig contains read-out surfaces configuration.
type ReadoutConfig struct {
	SerialPort string `yaml:"serial_port"` // Empty disables the live console
	BaudRate   int    `yaml:"baud_rate"`
	Broker     string `yaml:"broker"` // Empty disables MQTT telemetry
}

// SecurityConfig guards calibration changes.
type SecurityConfig struct {
	Password string `yaml:"password"`
}

// SimConfig describes the simulated hardware.
type SimConfig struct {
	PressureHz      float64 `yaml:"pressure_hz"`
	TemperatureHz   float64 `yaml:"temperature_hz"`
	CPUTempRaw      uint16  `yaml:"cpu_temp_raw"`
	BatteryRaw      uint16  `yaml:"battery_raw"`
	PowerChip       string  `yaml:"power_chip"` // GPIO chip for excitation rails; empty uses a simulated switch
	PressureLine    int     `yaml:"pressure_line"`
	TemperatureLine int     `yaml:"temperature_line"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Mode: ModeDutyCycled,
		Measurement: MeasurementConfig{
			PressureTimeMs:        500,
			TemperatureTimeMs:     500,
			ReferenceFrequency:    1_000_000,
			Multiplier:            1.0,
			MinAdaptationInterval: 2,
			InitialTarget:         100,
			AnalogPeriodMs:        1000,
		},
		Calibration: CalibrationConfig{
			Pressure: PressureCoefficients{
				Fp0: 32000,
				Ft0: 32768,
				A: []float32{
					0, 0, 0, 0,
					0.5, 0, 0, 0,
					0, 0, 0, 0,
					0, 0, 0, 0,
				},
			},
			Temperature: TemperatureCoefficients{
				T0: 25,
				F0: 32768,
				C:  []float32{0.1, 0, 0},
			},
			Date: CalibrationDate{Day: 1, Month: 1, Year: 2024},
		},
		Ranges: RangesConfig{
			Pressure:    Range{Min: 0, Max: 100, AbsMax: 120},
			Temperature: Range{Min: -40, Max: 85, AbsMax: 100},
		},
		Write: WriteConfig{
			BaseIntervalMs:     1000,
			PressureDivider:    1,
			TemperatureDivider: 1,
		},
		Power: PowerConfig{
			PressurePreheatMs:    200,
			TemperaturePreheatMs: 200,
			MinBatteryVoltage:    3.0,
		},
		Monitoring: MonitoringConfig{
			ConfirmCount:   3,
			CPUTemperature: 70,
		},
		ADC: ADCConfig{
			VRef:         3.3,
			R1:           20000,
			R2:           20000,
			TempV25:      1.43,
			TempAvgSlope: 0.0043,
			Oversample:   8,
		},
		Channels: ChannelsConfig{
			Pressure:       true,
			Temperature:    true,
			CPUTemperature: true,
			BatteryVoltage: true,
		},
		Storage: StorageConfig{
			Image:    "flash.img",
			PageSize: 2048,
			Pages:    512,
		},
		Readout: ReadoutConfig{
			BaudRate: 115200,
		},
		Sim: SimConfig{
			PressureHz:    32100,
			TemperatureHz: 32768,
			CPUTempRaw:    1775,
			BatteryRaw:    2300,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	out := *c
	out.Calibration.Pressure.A = append([]float32(nil), c.Calibration.Pressure.A...)
	out.Calibration.Temperature.C = append([]float32(nil), c.Calibration.Temperature.C...)
	return &out
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Mode == "" {
		c.Mode = def.Mode
	}

	if c.Measurement.PressureTimeMs == 0 {
		c.Measurement.PressureTimeMs = def.Measurement.PressureTimeMs
	}
	if c.Measurement.TemperatureTimeMs == 0 {
		c.Measurement.TemperatureTimeMs = def.Measurement.TemperatureTimeMs
	}
	if c.Measurement.ReferenceFrequency == 0 {
		c.Measurement.ReferenceFrequency = def.Measurement.ReferenceFrequency
	}
	if c.Measurement.Multiplier == 0 {
		c.Measurement.Multiplier = def.Measurement.Multiplier
	}
	if c.Measurement.InitialTarget == 0 {
		c.Measurement.InitialTarget = def.Measurement.InitialTarget
	}
	if c.Measurement.AnalogPeriodMs == 0 {
		c.Measurement.AnalogPeriodMs = def.Measurement.AnalogPeriodMs
	}

	if len(c.Calibration.Pressure.A) == 0 {
		c.Calibration.Pressure = def.Calibration.Pressure
	}
	if len(c.Calibration.Temperature.C) == 0 {
		c.Calibration.Temperature = def.Calibration.Temperature
	}
	if c.Calibration.Date == (CalibrationDate{}) {
		c.Calibration.Date = def.Calibration.Date
	}

	if c.Ranges == (RangesConfig{}) {
		c.Ranges = def.Ranges
	}

	if c.Write == (WriteConfig{}) {
		c.Write = def.Write
	}
	if c.Power == (PowerConfig{}) {
		c.Power = def.Power
	}

	if c.Monitoring.ConfirmCount == 0 {
		c.Monitoring.ConfirmCount = def.Monitoring.ConfirmCount
	}

	if c.ADC.VRef == 0 {
		c.ADC.VRef = def.ADC.VRef
	}
	if c.ADC.R1 == 0 {
		c.ADC.R1 = def.ADC.R1
	}
	if c.ADC.R2 == 0 {
		c.ADC.R2 = def.ADC.R2
	}
	if c.ADC.TempV25 == 0 {
		c.ADC.TempV25 = def.ADC.TempV25
	}
	if c.ADC.TempAvgSlope == 0 {
		c.ADC.TempAvgSlope = def.ADC.TempAvgSlope
	}
	if c.ADC.Oversample == 0 {
		c.ADC.Oversample = def.ADC.Oversample
	}

	if c.Storage.Image == "" {
		c.Storage.Image = def.Storage.Image
	}
	if c.Storage.PageSize == 0 {
		c.Storage.PageSize = def.Storage.PageSize
	}
	if c.Storage.Pages == 0 {
		c.Storage.Pages = def.Storage.Pages
	}

	if c.Readout.BaudRate == 0 {
		c.Readout.BaudRate = def.Readout.BaudRate
	}

	if c.Sim.PressureHz == 0 {
		c.Sim.PressureHz = def.Sim.PressureHz
	}
	if c.Sim.TemperatureHz == 0 {
		c.Sim.TemperatureHz = def.Sim.TemperatureHz
	}
	if c.Sim.CPUTempRaw == 0 {
		c.Sim.CPUTempRaw = def.Sim.CPUTempRaw
	}
	if c.Sim.BatteryRaw == 0 {
		c.Sim.BatteryRaw = def.Sim.BatteryRaw
	}
}
