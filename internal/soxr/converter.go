package soxr

import (
	"math"

	"github.com/tphakala/simd/f64"

	"github.com/tphakala/go-resample-sandbox/internal/filter"
)

// Status strings returned by the converter calls. A nil status means success.
var (
	statusNullPointer     = "null pointer"
	statusInvalidChannels = "invalid number of channels"
	statusInvalidRatio    = "invalid io ratio"
	statusRatioUnset      = "io ratio not set"
	statusFixedRate       = "io ratio change requires variable-rate mode"
	statusSlew            = "io ratio slew not supported"
	statusQuality         = "invalid quality spec"
	statusDatatype        = "unsupported data type"
	statusCorrupt         = "corrupt resampler state"
	statusFilterDesign    = "filter design failed"
)

const (
	maxLibraryChannels = 100

	// Sinc table shape: one-sided taps per bit of precision, points per sample.
	halfLengthPerBit = 0.75
	minHalfLength    = 8
	tablePhases      = 64

	// Attenuation floor for the sinc design, dB.
	minSincAttenuation = 40.0

	// Cubic Hermite needs y[-1], y[0], y[1], y[2].
	cubicHalfLength = 2

	hermiteCoeff0_5 = 0.5
	hermiteCoeff1_5 = 1.5
	hermiteCoeff2_5 = 2.5

	defaultLog2MinDFTSize   = 10
	defaultLog2LargeDFTSize = 17
	defaultCoefSizeKBytes   = 400
	defaultNumThreads       = 1

	clipLevel = 1.0
)

// DefaultIOSpec is soxr_io_spec(SOXR_FLOAT32_I, SOXR_FLOAT32_I).
func DefaultIOSpec() IOSpec {
	return IOSpec{IType: Float32I, OType: Float32I, Scale: 1, E: &diagOK}
}

// DefaultRuntimeSpec is soxr_runtime_spec(1).
func DefaultRuntimeSpec() RuntimeSpec {
	return RuntimeSpec{
		Log2MinDFTSize:   defaultLog2MinDFTSize,
		Log2LargeDFTSize: defaultLog2LargeDFTSize,
		CoefSizeKBytes:   defaultCoefSizeKBytes,
		NumThreads:       defaultNumThreads,
		E:                &diagOK,
	}
}

// Create is soxr_create for a channels-wide stream converting by ratio
// (output rate over input rate). A zero ratio leaves the ratio unset for a
// later SetIORatio. On failure the converter is nil and status says why.
func Create(channels uint32, ratio float64, q *QualitySpec) (*Converter, *string) {
	if channels == 0 || channels > maxLibraryChannels {
		return nil, &statusInvalidChannels
	}
	if ratio < 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return nil, &statusInvalidRatio
	}
	if ratio == 0 {
		ratio = UnsetRatio
	}

	spec := QualitySpecFor(HQ, 0)
	if q != nil {
		spec = *q
	}
	if spec.E == nil || *spec.E != diagOK || !(spec.StopbandBegin > spec.PassbandEnd) {
		return nil, &statusQuality
	}

	c := &Converter{
		NumChannels:  channels,
		IORatio:      ratio,
		QSpec:        spec,
		IOSpec:       DefaultIOSpec(),
		RuntimeSpec:  DefaultRuntimeSpec(),
		InputFnState: &InputState{},
		MaxILen:      UnlimitedILen,
		ControlBlock: &ControlBlock{Interp: InterpSinc},
		E:            &diagOK,
	}

	if spec.Precision == 0 {
		c.ControlBlock.Interp = InterpCubic
		c.Shared = &Shared{Half: cubicHalfLength}
	} else {
		shared, err := designShared(spec, ratio)
		if err != nil {
			return nil, &statusFilterDesign
		}
		c.Shared = shared
	}

	taps := 2 * int(c.Shared.Half)
	c.Resamplers = make([]*ResamplerState, channels)
	c.ChannelPtrs = make([]*ChannelPtr, channels)
	for i := range c.Resamplers {
		c.Resamplers[i] = &ResamplerState{
			History: make([]float64, taps),
			Time:    float64(taps),
		}
		c.ChannelPtrs[i] = &ChannelPtr{Index: uint32(i), Stride: channels}
	}

	return c, nil
}

// designShared sizes the sinc table from the quality spec. Downsampling moves
// the cutoff below the output Nyquist.
func designShared(spec QualitySpec, ratio float64) (*Shared, error) {
	half := max(int(spec.Precision*halfLengthPerBit), minHalfLength)
	half = min(half, filter.MaxHalfLength)
	attenuation := max(spec.Precision*filter.LinearToDB2, minSincAttenuation)

	cutoff := (spec.PassbandEnd + min(spec.StopbandBegin, 1)) / 2
	if ratio > 0 && ratio < 1 {
		cutoff *= ratio
	}

	table, err := filter.DesignTable(filter.TableParams{
		Half:        half,
		Phases:      tablePhases,
		Cutoff:      cutoff,
		Attenuation: attenuation,
	})
	if err != nil {
		return nil, err
	}

	return &Shared{
		Half:        int32(table.Half),
		Phases:      int32(table.Phases),
		Cutoff:      cutoff,
		Attenuation: attenuation,
		Coeffs:      table.Coeffs,
	}, nil
}

// SetIORatio is soxr_set_io_ratio. Only variable-rate converters may change
// an already set ratio; slewing is not implemented.
func SetIORatio(c *Converter, ratio float64, slewLen uint64) *string {
	if c == nil {
		return &statusNullPointer
	}
	if !(ratio > 0) || math.IsInf(ratio, 0) {
		return &statusInvalidRatio
	}
	if slewLen != 0 {
		return &statusSlew
	}
	if c.QSpec.Flags&VR == 0 && c.IORatio != UnsetRatio && ratio != c.IORatio {
		return &statusFixedRate
	}
	c.IORatio = ratio
	return nil
}

// Process is soxr_process on interleaved float32 samples.
//
// An ilen whose top bit is set is the bitwise complement of the real length
// and asks for a drain: once all of that input is consumed the converter
// enters the flushing state and zero-pads until the filter tail is out.
// Input is taken only as far as olen output frames need it; idone reports
// how much was used.
func Process(c *Converter, in []float32, ilen, olen uint64) (idone, odone uint64, out []float32, status *string) {
	if c == nil {
		return 0, 0, nil, &statusNullPointer
	}
	if c.IORatio <= 0 {
		return 0, 0, nil, &statusRatioUnset
	}
	if c.IOSpec.IType != Float32I || c.IOSpec.OType != Float32I {
		return 0, 0, nil, &statusDatatype
	}

	drain := int64(ilen) < 0
	if drain {
		ilen = ^ilen
	}

	k, err := newKernel(c)
	if err != nil {
		return 0, 0, nil, &statusCorrupt
	}

	channels := uint64(c.NumChannels)
	ilen = min(ilen, uint64(len(in))/channels, c.MaxILen)
	if c.Flushing == 1 {
		ilen = 0
	}

	step := 1 / c.IORatio
	planes := make([][]float64, channels)
	var consumed, produced int
	for ch := range planes {
		r := c.Resamplers[ch]
		if err := k.check(r); err != nil {
			return 0, 0, nil, &statusCorrupt
		}

		ptr := c.ChannelPtrs[ch]
		src := func(i int) float64 {
			return float64(in[i*int(ptr.Stride)+int(ptr.Index)])
		}
		plane, n, flushed := k.run(r, src, int(ilen), drain || c.Flushing == 1, step, olen)
		if ch == 0 {
			consumed, produced = n, len(plane)
		} else if n != consumed || len(plane) != produced {
			return 0, 0, nil, &statusCorrupt
		}
		if flushed {
			c.Flushing = 1
		}
		planes[ch] = plane
	}

	out = make([]float32, produced*int(channels))
	for ch, plane := range planes {
		if c.IOSpec.Scale != 1 {
			f64.Scale(plane, plane, c.IOSpec.Scale)
		}
		for i, v := range plane {
			if math.Abs(v) > clipLevel {
				c.Clips++
			}
			out[i*int(channels)+ch] = float32(v)
		}
	}

	c.InputFnState.Consumed += uint64(consumed)
	c.InputFnState.Produced += uint64(produced)
	c.ControlBlock.Calls++

	return uint64(consumed), uint64(produced), out, nil
}

// kernel evaluates one output sample from a channel's history.
type kernel struct {
	interp  Interp
	half    int
	table   *filter.Table
	weights []float64
}

func newKernel(c *Converter) (*kernel, error) {
	if c.Shared == nil || c.ControlBlock == nil || c.InputFnState == nil ||
		len(c.Resamplers) != int(c.NumChannels) || len(c.ChannelPtrs) != int(c.NumChannels) {
		return nil, filter.ErrInvalidTable
	}

	k := &kernel{interp: c.ControlBlock.Interp, half: int(c.Shared.Half)}
	switch k.interp {
	case InterpCubic:
		if k.half != cubicHalfLength {
			return nil, filter.ErrInvalidTable
		}
	case InterpSinc:
		k.table = &filter.Table{Half: k.half, Phases: int(c.Shared.Phases), Coeffs: c.Shared.Coeffs}
		if err := k.table.Validate(); err != nil {
			return nil, err
		}
		k.weights = make([]float64, k.table.Taps())
	default:
		return nil, filter.ErrInvalidTable
	}
	for _, p := range c.ChannelPtrs {
		if p == nil || p.Stride != c.NumChannels || p.Index >= c.NumChannels {
			return nil, filter.ErrInvalidTable
		}
	}
	return k, nil
}

// check rejects a channel state the kernel cannot index safely.
func (k *kernel) check(r *ResamplerState) error {
	taps := 2 * k.half
	if r == nil || len(r.History) != taps || int(r.Tail) > taps ||
		!(r.Time >= float64(k.half-1)) || math.IsInf(r.Time, 0) {
		return filter.ErrInvalidTable
	}
	return nil
}

// run produces up to olen outputs for one channel, pulling from src(0..n-1).
// Outputs are emitted while the clock sits in the ready window
// [half-1, half); otherwise the next input (or a drain zero) is pushed.
func (k *kernel) run(r *ResamplerState, src func(int) float64, n int, drain bool, step float64, olen uint64) (plane []float64, consumed int, flushed bool) {
	taps := 2 * k.half
	ready := float64(k.half)

	for uint64(len(plane)) < olen {
		flushing := drain && consumed == n
		if flushing && r.Time >= float64(taps)-float64(r.Tail) {
			break
		}
		if r.Time < ready {
			plane = append(plane, k.eval(r))
			r.Time += step
			continue
		}

		var x float64
		switch {
		case consumed < n:
			x = src(consumed)
			consumed++
		case flushing:
			r.Tail++
		default:
			return plane, consumed, false
		}
		copy(r.History, r.History[1:])
		r.History[taps-1] = x
		r.Time--
	}

	return plane, consumed, drain && consumed == n
}

func (k *kernel) eval(r *ResamplerState) float64 {
	c := int(r.Time)
	frac := r.Time - float64(c)

	if k.interp == InterpCubic {
		return hermite(r.History[c-1], r.History[c], r.History[c+1], r.History[c+2], frac)
	}

	k.table.Fill(k.weights, frac)
	return f64.DotProductUnsafe(k.weights, r.History[c-k.half+1:c+k.half+1])
}

// hermite is 4-point cubic Hermite interpolation between y1 and y2:
// y = ((a*x + b)*x + c)*x + d.
func hermite(y0, y1, y2, y3, x float64) float64 {
	coefA := -hermiteCoeff0_5*y0 + hermiteCoeff1_5*y1 - hermiteCoeff1_5*y2 + hermiteCoeff0_5*y3
	coefB := y0 - hermiteCoeff2_5*y1 + 2*y2 - hermiteCoeff0_5*y3
	coefC := -hermiteCoeff0_5*y0 + hermiteCoeff0_5*y2
	return ((coefA*x+coefB)*x+coefC)*x + y1
}
