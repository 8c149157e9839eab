//go:build linux

package hw

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/itohio/gofreqmeter/pkg/channel"
)

// GPIOPower drives sensor excitation rails through Linux GPIO character device lines.
type GPIOPower struct {
	chip  *gpiocdev.Chip
	lines [channel.FreqCount]*gpiocdev.Line
}

var _ PowerSwitch = (*GPIOPower)(nil)

// NewGPIOPower requests the pressure and temperature rail lines as outputs, initially off.
func NewGPIOPower(chipName string, pressureLine, temperatureLine int) (*GPIOPower, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	p := &GPIOPower{chip: chip}
	offsets := [channel.FreqCount]int{pressureLine, temperatureLine}
	for _, ch := range channel.Freqs {
		line, err := chip.RequestLine(offsets[ch], gpiocdev.AsOutput(0))
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("request %s rail line %d: %w", ch, offsets[ch], err)
		}
		p.lines[ch] = line
	}
	return p, nil
}

// SetPower switches the excitation rail of ch.
func (p *GPIOPower) SetPower(ch channel.Freq, on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := p.lines[ch].SetValue(v); err != nil {
		return fmt.Errorf("set %s rail: %w", ch, err)
	}
	return nil
}

// Close switches rails off and releases GPIO resources.
func (p *GPIOPower) Close() error {
	var errs []error
	for _, ch := range channel.Freqs {
		line := p.lines[ch]
		if line == nil {
			continue
		}
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("switch off %s rail: %w", ch, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s rail: %w", ch, err))
		}
		p.lines[ch] = nil
	}
	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		p.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
