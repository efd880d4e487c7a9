// Package soxr models the SoX resampler's four-call API surface: the quality
// spec factory, converter construction, io-ratio updates and processing.
//
// The package is only ever reached through sandbox exports (see NewLibrary). Its
// structs mirror libsoxr's public and private layouts so the host can validate
// every field that comes back across the boundary; CBOR tags carry the C field
// names.
package soxr

import "math"

// Datatype tags sample representation (soxr_datatype_t).
type Datatype uint32

// Interleaved (I) and split (S) sample formats.
const (
	Float32I Datatype = iota
	Float64I
	Int32I
	Int16I
	Float32S
	Float64S
	Int32S
	Int16S
)

// Quality recipes (low nibble of the recipe argument).
const (
	QQ      uint64 = 0 // quick cubic interpolation
	LQ      uint64 = 1
	MQ      uint64 = 2
	Bits16Q uint64 = 3
	Bits20Q uint64 = 4
	Bits24Q uint64 = 5
	Bits28Q uint64 = 6
	Bits32Q uint64 = 7

	HQ  = Bits20Q
	VHQ = Bits28Q
)

// Recipe modifiers.
const (
	LinearPhase       uint64 = 0x00
	IntermediatePhase uint64 = 0x10
	MinimumPhase      uint64 = 0x30
	SteepFilter       uint64 = 0x40

	qualityMask = 0x0f
	phaseMask   = 0x30
	phaseShift  = 4
)

// Quality spec flags.
const (
	RolloffSmall    uint64 = 0
	RolloffMedium   uint64 = 1
	RolloffNone     uint64 = 2
	HiPrecClock     uint64 = 8
	DoublePrecision uint64 = 16
	VR              uint64 = 32
)

// IO spec flags.
const (
	NoDither uint64 = 8
)

// Runtime spec flags (coefficient interpolation). 1 is not a valid setting.
const (
	CoefInterpAuto uint64 = 0
	CoefInterpLow  uint64 = 2
	CoefInterpHigh uint64 = 3
)

// UnlimitedILen is the max_ilen value meaning "no limit".
const UnlimitedILen = math.MaxUint64

// QualitySpec is soxr_quality_spec_t.
type QualitySpec struct {
	Precision     float64 `cbor:"precision"`      // conversion precision in bits
	PhaseResponse float64 `cbor:"phase_response"` // 0 minimum, 50 linear, 100 maximum
	PassbandEnd   float64 `cbor:"passband_end"`   // 0 to 1, fraction of Nyquist
	StopbandBegin float64 `cbor:"stopband_begin"` // above PassbandEnd
	E             *string `cbor:"e"`
	Flags         uint64  `cbor:"flags"`
}

// IOSpec is soxr_io_spec_t.
type IOSpec struct {
	IType Datatype `cbor:"itype"`
	OType Datatype `cbor:"otype"`
	Scale float64  `cbor:"scale"`
	E     *string  `cbor:"e"`
	Flags uint64   `cbor:"flags"`
}

// RuntimeSpec is soxr_runtime_spec_t.
type RuntimeSpec struct {
	Log2MinDFTSize   uint32  `cbor:"log2_min_dft_size"`
	Log2LargeDFTSize uint32  `cbor:"log2_large_dft_size"`
	CoefSizeKBytes   uint32  `cbor:"coef_size_kbytes"`
	NumThreads       uint32  `cbor:"num_threads"`
	E                *string `cbor:"e"`
	Flags            uint64  `cbor:"flags"`
}

// Interp selects the interpolation kernel.
type Interp uint8

const (
	InterpCubic Interp = iota + 1
	InterpSinc
)

// InputState is the input-callback state: running totals of the stream.
type InputState struct {
	Consumed uint64 `cbor:"consumed"`
	Produced uint64 `cbor:"produced"`
}

// Shared holds the filter shared by all channels.
type Shared struct {
	Half        int32     `cbor:"half"`
	Phases      int32     `cbor:"phases"`
	Cutoff      float64   `cbor:"cutoff"`
	Attenuation float64   `cbor:"attenuation"`
	Coeffs      []float64 `cbor:"coeffs"`
}

// ResamplerState is one channel's filter history and output clock.
//
// History[len-1] is the newest input sample. Time is the position of the next
// output in history index units; Tail counts zero samples pushed while draining.
type ResamplerState struct {
	History []float64 `cbor:"history"`
	Time    float64   `cbor:"time"`
	Tail    uint32    `cbor:"tail"`
}

// ControlBlock selects the resampler implementation.
type ControlBlock struct {
	Interp Interp `cbor:"interp"`
	Calls  uint64 `cbor:"calls"`
}

// ChannelPtr locates one channel inside an interleaved buffer.
type ChannelPtr struct {
	Index  uint32 `cbor:"index"`
	Stride uint32 `cbor:"stride"`
}

// Converter is struct soxr, the opaque converter instance.
type Converter struct {
	NumChannels  uint32            `cbor:"num_channels"`
	IORatio      float64           `cbor:"io_ratio"` // output/input factor, -1 while unset
	Error        *string           `cbor:"error"`
	QSpec        QualitySpec       `cbor:"q_spec"`
	IOSpec       IOSpec            `cbor:"io_spec"`
	RuntimeSpec  RuntimeSpec       `cbor:"runtime_spec"`
	InputFnState *InputState       `cbor:"input_fn_state"`
	InputFn      uint64            `cbor:"input_fn"`
	MaxILen      uint64            `cbor:"max_ilen"`
	Shared       *Shared           `cbor:"shared"`
	Resamplers   []*ResamplerState `cbor:"resamplers"`
	ControlBlock *ControlBlock     `cbor:"control_block"`
	ChannelPtrs  []*ChannelPtr     `cbor:"channel_ptrs"`
	Clips        uint64            `cbor:"clips"`
	E            *string           `cbor:"e"`
	Seed         uint64            `cbor:"seed"`
	Flushing     int32             `cbor:"flushing"`
}

// UnsetRatio marks a converter whose io ratio has not been set yet.
const UnsetRatio = -1.0
