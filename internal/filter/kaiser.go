// Package filter designs the interpolation filters used by the converter.
package filter

import (
	"errors"
	"fmt"
	"math"

	"github.com/tphakala/simd/f64"
)

const (
	windowNormalizationFactor = 2.0
	sincZeroThreshold         = 1e-10

	// MaxHalfLength bounds the one-sided tap count of an interpolation table.
	MaxHalfLength = 64
	// MaxPhases bounds the table resolution per input sample.
	MaxPhases = 256
)

// ErrInvalidTable is returned when table parameters or contents are inconsistent.
var ErrInvalidTable = errors.New("invalid interpolation table")

// KaiserWindow generates a symmetric Kaiser window of the given length and β.
//
//	w[n] = I₀(β·sqrt(1 - ((n-α)/α)²)) / I₀(β), α = (N-1)/2
func KaiserWindow(length int, beta float64) []float64 {
	if length < 1 {
		return []float64{}
	}

	window := make([]float64, length)
	if length == 1 {
		window[0] = 1
		return window
	}

	alpha := float64(length-1) / windowNormalizationFactor
	i0Beta := BesselI0(beta)
	for n := range length {
		x := (float64(n) - alpha) / alpha
		window[n] = BesselI0(beta*math.Sqrt(1.0-x*x)) / i0Beta
	}
	return window
}

// TableParams describes a windowed-sinc interpolation table.
type TableParams struct {
	// Half is the number of input taps on each side of the interpolation point.
	Half int
	// Phases is the number of table points per input sample.
	Phases int
	// Cutoff is the lowpass edge as a fraction of the input Nyquist (0, 1].
	Cutoff float64
	// Attenuation is the stopband attenuation in dB.
	Attenuation float64
}

// Validate checks the table parameters.
func (p TableParams) Validate() error {
	if p.Half < 1 || p.Half > MaxHalfLength {
		return fmt.Errorf("%w: half length %d outside [1, %d]", ErrInvalidTable, p.Half, MaxHalfLength)
	}
	if p.Phases < 1 || p.Phases > MaxPhases {
		return fmt.Errorf("%w: %d phases outside [1, %d]", ErrInvalidTable, p.Phases, MaxPhases)
	}
	if !(p.Cutoff > 0 && p.Cutoff <= 1) {
		return fmt.Errorf("%w: cutoff %v outside (0, 1]", ErrInvalidTable, p.Cutoff)
	}
	if p.Attenuation < 0 {
		return fmt.Errorf("%w: negative attenuation %v", ErrInvalidTable, p.Attenuation)
	}
	return nil
}

// Table is a finely sampled windowed-sinc kernel spanning [-Half, Half] input
// samples with Phases points per sample.
type Table struct {
	Half   int
	Phases int
	Coeffs []float64
}

// DesignTable builds the interpolation kernel: a Kaiser-windowed sinc whose
// phases each sum to unity gain.
func DesignTable(p TableParams) (*Table, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	n := 2*p.Half*p.Phases + 1
	center := p.Half * p.Phases
	window := KaiserWindow(n, KaiserBeta(p.Attenuation))

	coeffs := make([]float64, n)
	for i := range n {
		x := float64(i-center) / float64(p.Phases)
		var s float64
		if math.Abs(x) < sincZeroThreshold {
			s = p.Cutoff
		} else {
			arg := math.Pi * p.Cutoff * x
			s = math.Sin(arg) / (math.Pi * x)
		}
		coeffs[i] = s * window[i]
	}

	// The end points coincide with the next phase's start, count them once.
	sum := f64.Sum(coeffs[:n-1])
	if math.Abs(sum) > sincZeroThreshold {
		f64.Scale(coeffs, coeffs, float64(p.Phases)/sum)
	}

	return &Table{Half: p.Half, Phases: p.Phases, Coeffs: coeffs}, nil
}

// Validate checks that the coefficient slice matches the declared shape.
func (t *Table) Validate() error {
	if t.Half < 1 || t.Half > MaxHalfLength || t.Phases < 1 || t.Phases > MaxPhases {
		return fmt.Errorf("%w: shape %dx%d", ErrInvalidTable, t.Half, t.Phases)
	}
	if want := 2*t.Half*t.Phases + 1; len(t.Coeffs) != want {
		return fmt.Errorf("%w: %d coefficients, want %d", ErrInvalidTable, len(t.Coeffs), want)
	}
	return nil
}

// Taps returns the number of input samples one output depends on.
func (t *Table) Taps() int {
	return 2 * t.Half
}

// At evaluates the kernel at x input samples from the center, linearly
// interpolating between table points. Zero outside the support.
func (t *Table) At(x float64) float64 {
	pos := (x + float64(t.Half)) * float64(t.Phases)
	if pos < 0 || pos > float64(len(t.Coeffs)-1) {
		return 0
	}
	i := int(pos)
	if i >= len(t.Coeffs)-1 {
		return t.Coeffs[len(t.Coeffs)-1]
	}
	frac := pos - float64(i)
	return t.Coeffs[i] + frac*(t.Coeffs[i+1]-t.Coeffs[i])
}

// Fill writes the Taps() weights for an output located frac (0 ≤ frac < 1)
// past tap Half-1. dst[k] weighs input tap k.
func (t *Table) Fill(dst []float64, frac float64) {
	offset := float64(t.Half-1) + frac
	for k := range dst[:t.Taps()] {
		dst[k] = t.At(float64(k) - offset)
	}
}
