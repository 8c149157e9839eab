package processor

import (
	"github.com/chewxy/math32"

	"github.com/itohio/gofreqmeter/pkg/config"
)

// PressureOrder is the number of terms per variable of the pressure polynomial.
const PressureOrder = 4

// Pressure evaluates P = sum(A[i*4+j] * dFp^i * dFt^j) with dFp = fp - Fp0
// and dFt = ft - Ft0. It returns NaN if any input is NaN.
func Pressure(c config.PressureCoefficients, fp, ft float32) float32 {
	if math32.IsNaN(fp) || math32.IsNaN(ft) || len(c.A) < PressureOrder*PressureOrder {
		return math32.NaN()
	}
	dfp := fp - c.Fp0
	dft := ft - c.Ft0

	var sum float32
	pi := float32(1)
	for i := range PressureOrder {
		pj := float32(1)
		for j := range PressureOrder {
			sum += c.A[i*PressureOrder+j] * pi * pj
			pj *= dft
		}
		pi *= dfp
	}
	return sum
}

// Temperature evaluates T = T0 + C[0]*dF + C[1]*dF^2 + C[2]*dF^3 with dF = f - F0.
func Temperature(c config.TemperatureCoefficients, f float32) float32 {
	if math32.IsNaN(f) || len(c.C) < 3 {
		return math32.NaN()
	}
	df := f - c.F0
	t := c.T0
	p := df
	for _, k := range c.C[:3] {
		t += k * p
		p *= df
	}
	return t
}
