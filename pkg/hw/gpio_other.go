//go:build !linux

package hw

import (
	"errors"

	"github.com/itohio/gofreqmeter/pkg/channel"
)

// GPIOPower is not available on non-Linux platforms.
type GPIOPower struct{}

// NewGPIOPower returns an error on non-Linux platforms.
func NewGPIOPower(chipName string, pressureLine, temperatureLine int) (*GPIOPower, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// SetPower is not implemented on non-Linux platforms.
func (p *GPIOPower) SetPower(ch channel.Freq, on bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (p *GPIOPower) Close() error {
	return nil
}
