// Package readout implements the live read-out link: the instrument streams
// one CSV line per snapshot over a serial port and answers console
// commands; the host side parses the lines back.
package readout

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/itohio/gofreqmeter/pkg/channel"
	"github.com/itohio/gofreqmeter/pkg/output"
)

// Fields of a line after the timestamp.
const (
	FieldPressure = iota
	FieldTemperature
	FieldPressureHz
	FieldTemperatureHz
	FieldCPUTemperature
	FieldBatteryVoltage
	FieldCount
)

// Header names the columns of a line.
const Header = "timestamp_ms,pressure,temperature,pressure_hz,temperature_hz,cpu_temperature,battery_voltage"

// Field is one value of a line; a missing value is written as an empty column.
type Field struct {
	Value float64
	Valid bool
}

// Line is one live snapshot.
// Format: unix_millis,pressure,temperature,pressure_hz,temperature_hz,cpu_temp,vbat
// Example: 1700000000000,50,26.2,32100,32768,,3.71
type Line struct {
	Timestamp time.Time
	Fields    [FieldCount]Field
}

// FromSnapshot builds a line from a measurement snapshot.
func FromSnapshot(ts time.Time, s output.Snapshot) Line {
	l := Line{Timestamp: ts}
	p, t := s.Channels[channel.Pressure], s.Channels[channel.Temperature]
	l.Fields[FieldPressure] = Field{p.Value, p.Valid}
	l.Fields[FieldTemperature] = Field{t.Value, t.Valid}
	l.Fields[FieldPressureHz] = Field{p.Frequency, p.Valid}
	l.Fields[FieldTemperatureHz] = Field{t.Frequency, t.Valid}
	l.Fields[FieldCPUTemperature] = Field{s.CPUTemperature, s.CPUTemperatureValid}
	l.Fields[FieldBatteryVoltage] = Field{s.BatteryVoltage, s.BatteryVoltageValid}
	return l
}

// Format returns the line without the trailing newline.
func (l Line) Format() string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(l.Timestamp.UnixMilli(), 10))
	for _, f := range l.Fields {
		b.WriteByte(',')
		if f.Valid {
			b.WriteString(strconv.FormatFloat(f.Value, 'f', -1, 64))
		}
	}
	return b.String()
}

// ParseLine parses a line produced by Format.
func ParseLine(line string) (Line, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != FieldCount+1 {
		return Line{}, fmt.Errorf("invalid line format: expected %d comma-separated values, got %d", FieldCount+1, len(parts))
	}

	ms, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Line{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	l := Line{Timestamp: time.UnixMilli(ms)}

	for i, s := range parts[1:] {
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Line{}, fmt.Errorf("invalid field %d: %w", i+1, err)
		}
		l.Fields[i] = Field{Value: v, Valid: true}
	}
	return l, nil
}
