// Package invariant holds the field checks applied to every value returned
// from the sandboxed converter.
//
// Each Check function is pure and total: it inspects a read-only value,
// never dereferences a reference before testing it for nil, and returns a
// *Violation naming the first field outside its domain, or nil. The Valid
// functions are the boolean forms. Reported fields must be declared by the
// value's soxr.Layout; naming an undeclared one panics.
package invariant

import (
	"errors"
	"fmt"
	"math"

	"github.com/tphakala/go-resample-sandbox/internal/soxr"
)

// Field domains.
const (
	maxPrecision     = 64.0
	maxPhaseResponse = 100.0
	maxPassbandEnd   = 1.0
	maxStopband      = 1e3
	maxQualityFlags  = 128

	maxDatatype = 8
	maxScale    = 1e3

	minLog2MinDFT   = 8
	maxLog2MinDFT   = 15
	minLog2LargeDFT = 8
	maxLog2LargeDFT = 20
	maxCoefSizeKB   = 1_000_000
	maxThreads      = 100

	maxChannels = 100
	maxInputFn  = 1_000_000
	maxILen     = 1_000_000

	maxStatusLen = 256 // bytes
)

// ErrViolation matches every *Violation.
var ErrViolation = errors.New("invariant violated")

// Violation names the field that failed its check.
type Violation struct {
	Type   string // struct layout name, e.g. "soxr_quality_spec"
	Field  string // dotted path inside Type; empty for the value itself
	CType  string // declared type of the innermost field
	Value  any
	Domain string
}

func (v *Violation) Error() string {
	if v.Field == "" {
		return fmt.Sprintf("%s: %v, want %s", v.Type, v.Value, v.Domain)
	}
	return fmt.Sprintf("%s.%s = %v, want %s", v.Type, v.Field, v.Value, v.Domain)
}

// Is makes errors.Is(err, ErrViolation) hold.
func (v *Violation) Is(target error) bool {
	return target == ErrViolation
}

// NewViolation reports field of layout outside domain. An empty field
// refers to the value itself. It panics if layout does not declare field.
func NewViolation(layout soxr.Layout, field string, value any, domain string) *Violation {
	v := &Violation{Type: layout.Name, Field: field, Value: value, Domain: domain}
	if field != "" {
		v.CType = declared(layout, field).CType
	}
	return v
}

func declared(layout soxr.Layout, field string) soxr.Field {
	f, ok := layout.Lookup(field)
	if !ok {
		panic(fmt.Sprintf("invariant: layout %s declares no field %q", layout.Name, field))
	}
	return f
}

func violation(layout soxr.Layout, field string, value any, domain string) error {
	return NewViolation(layout, field, value, domain)
}

// nested re-roots a violation of an embedded struct under its parent field.
func nested(layout soxr.Layout, field string, err error) error {
	var v *Violation
	if !errors.As(err, &v) {
		return err
	}
	parent := declared(layout, field)
	path, ctype := field, parent.CType
	if v.Field != "" {
		path += "." + v.Field
		ctype = v.CType
	}
	return &Violation{Type: layout.Name, Field: path, CType: ctype, Value: v.Value, Domain: v.Domain}
}

func inRange(x, lo, hi float64) bool {
	return x >= lo && x <= hi
}

// CheckQualitySpec validates a soxr_quality_spec. The stopband edge must lie
// strictly above the passband edge.
func CheckQualitySpec(q *soxr.QualitySpec) error {
	l := soxr.QualitySpecLayout
	switch {
	case q == nil:
		return violation(l, "", nil, "non-nil")
	case !inRange(q.Precision, 0, maxPrecision):
		return violation(l, "precision", q.Precision, "[0, 64]")
	case !inRange(q.PhaseResponse, 0, maxPhaseResponse):
		return violation(l, "phase_response", q.PhaseResponse, "[0, 100]")
	case !inRange(q.PassbandEnd, 0, maxPassbandEnd):
		return violation(l, "passband_end", q.PassbandEnd, "[0, 1]")
	case !(q.StopbandBegin > q.PassbandEnd && q.StopbandBegin < maxStopband):
		return violation(l, "stopband_begin", q.StopbandBegin, fmt.Sprintf("(%v, 1000)", q.PassbandEnd))
	case q.E == nil:
		return violation(l, "e", nil, "non-nil")
	case q.Flags > maxQualityFlags:
		return violation(l, "flags", q.Flags, "<= 128")
	}
	return nil
}

// CheckIOSpec validates a soxr_io_spec.
func CheckIOSpec(s *soxr.IOSpec) error {
	l := soxr.IOSpecLayout
	switch {
	case s == nil:
		return violation(l, "", nil, "non-nil")
	case s.IType >= maxDatatype:
		return violation(l, "itype", s.IType, "< 8")
	case s.OType >= maxDatatype:
		return violation(l, "otype", s.OType, "< 8")
	case !(s.Scale < maxScale):
		return violation(l, "scale", s.Scale, "< 1000")
	case s.E == nil:
		return violation(l, "e", nil, "non-nil")
	case s.Flags != 0 && s.Flags != soxr.NoDither:
		return violation(l, "flags", s.Flags, "one of {0, 8}")
	}
	return nil
}

// CheckRuntimeSpec validates a soxr_runtime_spec.
func CheckRuntimeSpec(s *soxr.RuntimeSpec) error {
	l := soxr.RuntimeSpecLayout
	switch {
	case s == nil:
		return violation(l, "", nil, "non-nil")
	case s.Log2MinDFTSize < minLog2MinDFT || s.Log2MinDFTSize > maxLog2MinDFT:
		return violation(l, "log2_min_dft_size", s.Log2MinDFTSize, "[8, 15]")
	case s.Log2LargeDFTSize < minLog2LargeDFT || s.Log2LargeDFTSize > maxLog2LargeDFT:
		return violation(l, "log2_large_dft_size", s.Log2LargeDFTSize, "[8, 20]")
	case s.CoefSizeKBytes > maxCoefSizeKB:
		return violation(l, "coef_size_kbytes", s.CoefSizeKBytes, "<= 1000000")
	case s.NumThreads > maxThreads:
		return violation(l, "num_threads", s.NumThreads, "<= 100")
	case s.E == nil:
		return violation(l, "e", nil, "non-nil")
	case s.Flags != soxr.CoefInterpAuto && s.Flags != soxr.CoefInterpLow && s.Flags != soxr.CoefInterpHigh:
		return violation(l, "flags", s.Flags, "one of {0, 2, 3}")
	}
	return nil
}

// CheckConverter validates the converter instance: scalar domains, the three
// embedded specs, and that every internal reference is present with one
// resampler and one channel pointer per channel.
func CheckConverter(c *soxr.Converter) error {
	l := soxr.ConverterLayout
	if c == nil {
		return violation(l, "", nil, "non-nil")
	}

	switch {
	case c.NumChannels > maxChannels:
		return violation(l, "num_channels", c.NumChannels, "<= 100")
	case !inRange(c.IORatio, 0, 1) && c.IORatio != soxr.UnsetRatio:
		return violation(l, "io_ratio", c.IORatio, "[0, 1] or -1")
	case c.Error != nil:
		return violation(l, "error", *c.Error, "no error")
	}

	if err := CheckQualitySpec(&c.QSpec); err != nil {
		return nested(l, "q_spec", err)
	}
	if err := CheckIOSpec(&c.IOSpec); err != nil {
		return nested(l, "io_spec", err)
	}
	if err := CheckRuntimeSpec(&c.RuntimeSpec); err != nil {
		return nested(l, "runtime_spec", err)
	}

	switch {
	case c.InputFnState == nil:
		return violation(l, "input_fn_state", nil, "non-nil")
	case c.InputFn >= maxInputFn:
		return violation(l, "input_fn", c.InputFn, "< 1000000")
	case c.MaxILen >= maxILen && c.MaxILen != soxr.UnlimitedILen:
		return violation(l, "max_ilen", c.MaxILen, "< 1000000 or unlimited")
	case c.Shared == nil:
		return violation(l, "shared", nil, "non-nil")
	case len(c.Resamplers) == 0 || c.Resamplers[0] == nil:
		return violation(l, "resamplers", nil, "non-nil")
	case c.ControlBlock == nil:
		return violation(l, "control_block", nil, "non-nil")
	case len(c.ChannelPtrs) == 0 || c.ChannelPtrs[0] == nil:
		return violation(l, "channel_ptrs", nil, "non-nil")
	case c.Flushing != 0 && c.Flushing != 1:
		return violation(l, "flushing", c.Flushing, "0 or 1")
	}

	if n := len(c.Resamplers); n != int(c.NumChannels) {
		return violation(l, "resamplers", n, fmt.Sprintf("%d entries", c.NumChannels))
	}
	if n := len(c.ChannelPtrs); n != int(c.NumChannels) {
		return violation(l, "channel_ptrs", n, fmt.Sprintf("%d entries", c.NumChannels))
	}
	for i := range c.NumChannels {
		if c.Resamplers[i] == nil {
			return violation(l, fmt.Sprintf("resamplers[%d]", i), nil, "non-nil")
		}
		if c.ChannelPtrs[i] == nil {
			return violation(l, fmt.Sprintf("channel_ptrs[%d]", i), nil, "non-nil")
		}
	}
	return nil
}

// Progress is the (idone, odone) pair of one soxr_process call with the
// lengths that were requested.
type Progress struct {
	IDone uint64
	ILen  uint64
	ODone uint64
	OLen  uint64
}

// CheckProgress requires idone <= ilen and odone <= olen.
func CheckProgress(p *Progress) error {
	l := soxr.ProgressLayout
	switch {
	case p == nil:
		return violation(l, "", nil, "non-nil")
	case p.IDone > p.ILen:
		return violation(l, "idone", p.IDone, fmt.Sprintf("<= %d", p.ILen))
	case p.ODone > p.OLen:
		return violation(l, "odone", p.ODone, fmt.Sprintf("<= %d", p.OLen))
	}
	return nil
}

// Output is the sample payload returned by soxr_process.
type Output struct {
	Samples  []float32
	ODone    uint64
	Channels uint32
}

// CheckOutput requires exactly odone frames of finite samples.
func CheckOutput(o *Output) error {
	l := soxr.ProgressLayout
	switch {
	case o == nil:
		return violation(l, "out", nil, "non-nil")
	case uint64(len(o.Samples)) != o.ODone*uint64(o.Channels):
		return violation(l, "out", len(o.Samples), fmt.Sprintf("%d samples", o.ODone*uint64(o.Channels)))
	}
	for i, v := range o.Samples {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return violation(l, fmt.Sprintf("out[%d]", i), v, "finite")
		}
	}
	return nil
}

// Status is the status string returned by every library call; nil means
// success.
type Status struct {
	Message *string
}

// CheckStatus bounds the length of a reported status. Its contents are only
// printed.
func CheckStatus(s *Status) error {
	l := soxr.StatusLayout
	switch {
	case s == nil:
		return violation(l, "", nil, "non-nil")
	case s.Message != nil && len(*s.Message) > maxStatusLen:
		return violation(l, "error", len(*s.Message), fmt.Sprintf("<= %d bytes", maxStatusLen))
	}
	return nil
}

// ValidQualitySpec reports whether CheckQualitySpec passes.
func ValidQualitySpec(q *soxr.QualitySpec) bool { return CheckQualitySpec(q) == nil }

// ValidIOSpec reports whether CheckIOSpec passes.
func ValidIOSpec(s *soxr.IOSpec) bool { return CheckIOSpec(s) == nil }

// ValidRuntimeSpec reports whether CheckRuntimeSpec passes.
func ValidRuntimeSpec(s *soxr.RuntimeSpec) bool { return CheckRuntimeSpec(s) == nil }

// ValidConverter reports whether CheckConverter passes.
func ValidConverter(c *soxr.Converter) bool { return CheckConverter(c) == nil }

// ValidProgress reports whether CheckProgress passes.
func ValidProgress(p *Progress) bool { return CheckProgress(p) == nil }

// ValidStatus reports whether CheckStatus passes.
func ValidStatus(s *Status) bool { return CheckStatus(s) == nil }
