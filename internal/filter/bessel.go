package filter

import "math"

// Chebyshev coefficients for I₀(x), Abramowitz & Stegun 9.8.1 and 9.8.2.
var (
	besselI0Small = [...]float64{1.0, 3.5156229, 3.0899424, 1.2067492, 0.2659732, 0.360768e-1, 0.45813e-2}
	besselI0Large = [...]float64{
		0.39894228, 0.1328592e-1, 0.225319e-2, -0.157565e-2, 0.916281e-2,
		-0.2057706e-1, 0.2635537e-1, -0.1647633e-1, 0.392377e-2,
	}
)

const (
	besselSmallArgThreshold = 3.75

	// Kaiser & Schafer β formula breakpoints and coefficients.
	kaiserAttHigh          = 50.0
	kaiserAttMedium        = 21.0
	kaiserBetaHighCoeff    = 0.1102
	kaiserBetaHighOffset   = 8.7
	kaiserBetaMediumCoeff1 = 0.5842
	kaiserBetaMediumPower  = 0.4
	kaiserBetaMediumCoeff2 = 0.07886
)

// horner evaluates c[0] + t*(c[1] + t*(c[2] + ...)).
func horner(c []float64, t float64) float64 {
	var acc float64
	for i := len(c) - 1; i >= 0; i-- {
		acc = acc*t + c[i]
	}
	return acc
}

// BesselI0 computes the modified Bessel function of the first kind, order zero.
//
// Polynomial approximation for |x| < 3.75, asymptotic expansion above it
// (Abramowitz & Stegun; soxr's dbesi0.c uses the same split).
func BesselI0(x float64) float64 {
	ax := math.Abs(x)
	if ax < besselSmallArgThreshold {
		t := x / besselSmallArgThreshold
		return horner(besselI0Small[:], t*t)
	}
	t := besselSmallArgThreshold / ax
	return math.Exp(ax) * horner(besselI0Large[:], t) / math.Sqrt(ax)
}

// KaiserBeta returns the Kaiser window β for a stopband attenuation in dB.
func KaiserBeta(attenuation float64) float64 {
	switch {
	case attenuation > kaiserAttHigh:
		return kaiserBetaHighCoeff * (attenuation - kaiserBetaHighOffset)
	case attenuation >= kaiserAttMedium:
		delta := attenuation - kaiserAttMedium
		return kaiserBetaMediumCoeff1*math.Pow(delta, kaiserBetaMediumPower) + kaiserBetaMediumCoeff2*delta
	default:
		return 0
	}
}
