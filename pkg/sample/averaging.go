package sample

import (
	"fmt"

	"github.com/itohio/gofreqmeter/pkg/channel"
	"github.com/itohio/gofreqmeter/pkg/hw"
)

// Average returns the rounded mean of raw ADC codes.
func Average(raws []uint16) uint16 {
	if len(raws) == 0 {
		return 0
	}
	var sum uint32
	for _, r := range raws {
		sum += uint32(r)
	}
	n := float64(len(raws))
	return uint16((float64(sum) / n) + 0.5) // Round to nearest
}

// Oversample reads ch n times and returns the averaged code. n <= 0 reads once.
func Oversample(adc hw.ADC, ch channel.Analog, n int) (uint16, error) {
	if n <= 0 {
		n = 1
	}
	raws := make([]uint16, 0, n)
	for range n {
		r, err := adc.Read(ch)
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", ch, err)
		}
		raws = append(raws, r)
	}
	return Average(raws), nil
}
