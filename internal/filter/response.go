package filter

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// soxr's sinePhi polynomial and guards for InvFResp.
const (
	sinePhiCoeffA3  = 2.0517e-07
	sinePhiCoeffA2  = -1.1303e-04
	sinePhiCoeffA1  = 0.023154
	sinePhiConstant = 0.55924

	dbToLinearFactor = 0.05
	halfAmplitude    = 0.5

	minAttenuation = 1.0
	maxAttenuation = 300.0
	sineEpsilon    = 1e-10

	// LinearToDB2 is 20·log10(2): attenuation gained per bit of precision.
	LinearToDB2 = 6.020599913279624

	minMagnitude = 1e-10
	dbMultiplier = 20.0
)

// InvFResp returns the normalized frequency at which a filter with stopband
// attenuation a (dB) has a response of drop dB. Port of soxr's lsx_inv_f_resp.
func InvFResp(drop, a float64) float64 {
	a = math.Min(math.Max(a, minAttenuation), maxAttenuation)

	x := ((sinePhiCoeffA3*a+sinePhiCoeffA2)*a+sinePhiCoeffA1)*a + sinePhiConstant
	dropLinear := math.Exp(drop * math.Ln10 * dbToLinearFactor)

	s := dropLinear
	if dropLinear > halfAmplitude {
		s = 1 - dropLinear
	}

	sinVal := math.Max(math.Sin(x*halfAmplitude), sineEpsilon)
	sinePow := math.Log(halfAmplitude) / math.Log(sinVal)

	x = math.Asin(math.Pow(s, 1.0/sinePow)) / x
	if dropLinear > halfAmplitude {
		return x
	}
	return 1 - x
}

// To3dB returns the -3 dB point of a filter with attenuation a (soxr's lsx_to_3dB).
func To3dB(a float64) float64 {
	return 1 - InvFResp(-3, a)
}

// MagnitudeDB converts a linear magnitude to decibels.
func MagnitudeDB(magnitude float64) float64 {
	return dbMultiplier * math.Log10(math.Max(magnitude, minMagnitude))
}

// Response is the magnitude response of a real FIR kernel on n/2+1 bins
// spanning 0 to Nyquist.
type Response struct {
	Frequencies []float64 // normalized, 0 to 0.5 cycles/sample
	Magnitude   []float64
}

// FrequencyResponse evaluates coeffs with a zero-padded real FFT of length n.
func FrequencyResponse(coeffs []float64, n int) Response {
	if n < len(coeffs) {
		n = len(coeffs)
	}
	padded := make([]float64, n)
	copy(padded, coeffs)

	spectrum := fourier.NewFFT(n).Coefficients(nil, padded)
	resp := Response{
		Frequencies: make([]float64, len(spectrum)),
		Magnitude:   make([]float64, len(spectrum)),
	}
	for k, c := range spectrum {
		resp.Frequencies[k] = float64(k) / float64(n)
		resp.Magnitude[k] = cmplx.Abs(c)
	}
	return resp
}
