package tcs34725

import "math"

// RGB to CIE XYZ, from the TAOS DN25 design note.
const (
	xR, xG, xB = -0.14282, 1.54924, -0.95641
	yR, yG, yB = -0.32466, 1.57837, -0.73191
	zR, zG, zB = -0.68202, 0.77073, 0.56332
)

// CalculateLux approximates illuminance from the red, green and blue counts.
// The clear channel does not contribute; no IR compensation is applied.
func CalculateLux(s Sample) float64 {
	r, g, b := float64(s.Red), float64(s.Green), float64(s.Blue)
	return yR*r + yG*g + yB*b
}

// CalculateColorTemperature returns the correlated color temperature in
// Kelvin using McCamy's approximation. ok is false when the chromaticity is
// undefined, e.g. for an all-dark sample.
func CalculateColorTemperature(s Sample) (kelvin float64, ok bool) {
	r, g, b := float64(s.Red), float64(s.Green), float64(s.Blue)
	x := xR*r + xG*g + xB*b
	y := yR*r + yG*g + yB*b
	z := zR*r + zG*g + zB*b

	sum := x + y + z
	if sum == 0 {
		return 0, false
	}
	xc := x / sum
	yc := y / sum

	denom := 0.1858 - yc
	if denom == 0 {
		return 0, false
	}
	n := (xc - 0.3320) / denom
	cct := 449.0*math.Pow(n, 3) + 3525.0*math.Pow(n, 2) + 6823.3*n + 5520.33
	if math.IsNaN(cct) || math.IsInf(cct, 0) {
		return 0, false
	}
	return cct, true
}

// RGB scales the color channels against the clear channel to 0-255.
func (s Sample) RGB() (r, g, b uint8) {
	if s.Clear == 0 {
		return 0, 0, 0
	}
	scale := func(v uint16) uint8 {
		f := float64(v) / float64(s.Clear) * 255
		if f > 255 {
			f = 255
		}
		return uint8(f)
	}
	return scale(s.Red), scale(s.Green), scale(s.Blue)
}

// Saturated reports whether the clear channel hit full scale for timing.
func (s Sample) Saturated(timing IntegrationTime) bool {
	return s.Clear >= timing.MaxCount()
}
