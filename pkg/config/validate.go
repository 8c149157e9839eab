package config

import (
	"fmt"
	"math"

	"github.com/itohio/gofreqmeter/pkg/errcode"
)

const (
	pressureCoefficients    = 16
	temperatureCoefficients = 3
	maxMeasureTimeMs        = 60_000
)

// Validate checks the whole configuration. It returns an *errcode.E with
// errcode.ConfigInconsistency for broken multi-field relations (write
// dividers, calibration date) and errcode.Validation for values out of range.
func (c *Config) Validate() error {
	if err := c.validateConsistency(); err != nil {
		return err
	}
	return c.validateRanges()
}

func (c *Config) validateConsistency() error {
	const op = "config.validate"
	inconsistent := func(format string, args ...any) error {
		return errcode.New(errcode.ConfigInconsistency, op, fmt.Sprintf(format, args...))
	}

	if c.Write.BaseIntervalMs == 0 {
		return inconsistent("write base interval is zero")
	}
	if c.Write.PressureDivider == 0 || c.Write.TemperatureDivider == 0 {
		return inconsistent("write divider is zero")
	}

	d := c.Calibration.Date
	if d.Month < 1 || d.Month > 12 {
		return inconsistent("calibration month %d out of range", d.Month)
	}
	if d.Day < 1 || d.Day > daysIn(d.Month, d.Year) {
		return inconsistent("calibration day %d out of range", d.Day)
	}
	if d.Year < 2000 || d.Year > 2099 {
		return inconsistent("calibration year %d out of range", d.Year)
	}

	return nil
}

func (c *Config) validateRanges() error {
	const op = "config.validate"
	invalid := func(format string, args ...any) error {
		return errcode.New(errcode.Validation, op, fmt.Sprintf(format, args...))
	}

	switch c.Mode {
	case ModeContinuous, ModeDutyCycled:
	default:
		return invalid("unknown mode %q", c.Mode)
	}

	m := c.Measurement
	if m.PressureTimeMs == 0 || m.PressureTimeMs > maxMeasureTimeMs {
		return invalid("pressure measure time %d ms out of range", m.PressureTimeMs)
	}
	if m.TemperatureTimeMs == 0 || m.TemperatureTimeMs > maxMeasureTimeMs {
		return invalid("temperature measure time %d ms out of range", m.TemperatureTimeMs)
	}
	if m.ReferenceFrequency == 0 {
		return invalid("reference frequency is zero")
	}
	if !(m.Multiplier > 0) || math.IsInf(m.Multiplier, 0) {
		return invalid("multiplier %v must be positive", m.Multiplier)
	}
	if m.InitialTarget == 0 {
		return invalid("initial target is zero")
	}

	if n := len(c.Calibration.Pressure.A); n != pressureCoefficients {
		return invalid("pressure calibration needs %d coefficients, got %d", pressureCoefficients, n)
	}
	if n := len(c.Calibration.Temperature.C); n != temperatureCoefficients {
		return invalid("temperature calibration needs %d coefficients, got %d", temperatureCoefficients, n)
	}

	ranges := []struct {
		name string
		r    Range
	}{
		{"pressure", c.Ranges.Pressure},
		{"temperature", c.Ranges.Temperature},
	}
	for _, it := range ranges {
		if it.r.Min > it.r.Max {
			return invalid("%s range min %v above max %v", it.name, it.r.Min, it.r.Max)
		}
		if it.r.Max > it.r.AbsMax {
			return invalid("%s range max %v above absolute max %v", it.name, it.r.Max, it.r.AbsMax)
		}
	}

	if c.Power.MinBatteryVoltage < 0 {
		return invalid("minimum battery voltage %v is negative", c.Power.MinBatteryVoltage)
	}

	if c.Storage.PageSize < 256 || c.Storage.PageSize&(c.Storage.PageSize-1) != 0 {
		return invalid("page size %d must be a power of two >= 256", c.Storage.PageSize)
	}
	if c.Storage.Pages <= 0 {
		return invalid("page count %d must be positive", c.Storage.Pages)
	}

	return nil
}

func daysIn(month, year uint32) uint32 {
	switch month {
	case 2:
		if year%4 == 0 && (year%100 != 0 || year%400 == 0) {
			return 29
		}
		return 28
	case 4, 6, 9, 11:
		return 30
	}
	return 31
}
