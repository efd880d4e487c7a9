// Package session mediates every call into the sandboxed converter library.
//
// Each operation creates one sandbox instance, performs its call, verifies
// everything that came back and destroys the instance before returning. The
// converter itself lives only as serialized state carried in a Handle; a call
// replaces that state only after the new state has been verified.
package session

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/tphakala/go-resample-sandbox/internal/codec"
	"github.com/tphakala/go-resample-sandbox/internal/invariant"
	"github.com/tphakala/go-resample-sandbox/internal/sandbox"
	"github.com/tphakala/go-resample-sandbox/internal/soxr"
	"github.com/tphakala/go-resample-sandbox/internal/taint"
)

var (
	// ErrNative matches errors reported by the library itself.
	ErrNative = errors.New("converter library error")

	// ErrCreateFailed is returned when the library produced no converter.
	ErrCreateFailed = errors.New("converter creation failed")

	// ErrChannelMismatch is returned for buffers that are not whole frames.
	ErrChannelMismatch = errors.New("buffer length is not a multiple of the channel count")
)

// cborNull is the encoding of a nil converter.
const cborNull = 0xf6

// NativeError is a status string returned by a library call.
type NativeError struct {
	Call    string
	Message string
}

func (e *NativeError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Call, e.Message)
}

// Is makes errors.Is(err, ErrNative) hold.
func (e *NativeError) Is(target error) bool {
	return target == ErrNative
}

// Handle is a converter owned by the caller: its verified serialized state and
// the trusted view decoded from exactly those bytes.
type Handle struct {
	state []byte
	conv  soxr.Converter
}

// Converter returns the trusted view of the converter.
func (h *Handle) Converter() soxr.Converter {
	return h.conv
}

// State returns a copy of the serialized converter state.
func (h *Handle) State() []byte {
	return bytes.Clone(h.state)
}

// Session issues calls through a sandbox runtime.
type Session struct {
	rt     sandbox.Runtime
	logger *slog.Logger
}

// New returns a session on rt. A nil logger discards output.
func New(rt sandbox.Runtime, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{rt: rt, logger: logger}
}

// BuildQualitySpec calls soxr_quality_spec and returns the verified spec.
func (s *Session) BuildQualitySpec(recipe, flags uint64) (soxr.QualitySpec, error) {
	var spec soxr.QualitySpec
	err := s.withInstance(soxr.CallQualitySpec, func(inst sandbox.Instance) error {
		data, err := s.invoke(inst, soxr.CallQualitySpec, soxr.QualitySpecArgs{Recipe: recipe, Flags: flags})
		if err != nil {
			return err
		}
		tainted, err := taint.Decode[soxr.QualitySpec](soxr.CallQualitySpec, soxr.QualitySpecLayout, data)
		if err != nil {
			return err
		}
		spec, err = taint.Verify(tainted, soxr.CallQualitySpec, soxr.QualitySpecLayout, invariant.CheckQualitySpec)
		return err
	})
	return spec, err
}

// CreateHandle calls soxr_create and returns the verified converter.
func (s *Session) CreateHandle(channels uint32, ratio float64, q soxr.QualitySpec) (*Handle, error) {
	var h *Handle
	err := s.withInstance(soxr.CallCreate, func(inst sandbox.Instance) error {
		data, err := s.invoke(inst, soxr.CallCreate, soxr.CreateArgs{Channels: channels, Ratio: ratio, QSpec: &q})
		if err != nil {
			return err
		}
		res, err := taint.Decode[soxr.CreateResult](soxr.CallCreate, soxr.ConverterLayout, data)
		if err != nil {
			return err
		}
		result := res.UnverifiedSafeBecause("envelope only; handle and status are checked below")

		status, err := verifyStatus(soxr.CallCreate, result.Error)
		if err != nil {
			return err
		}
		if status != nil {
			return fmt.Errorf("%w: %w", ErrCreateFailed, &NativeError{Call: soxr.CallCreate, Message: *status})
		}
		if isNull(result.Handle) {
			return fmt.Errorf("%w: %s returned a null converter", ErrCreateFailed, soxr.CallCreate)
		}

		h, err = verifyHandle(soxr.CallCreate, result.Handle)
		return err
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// SetRatio calls soxr_set_io_ratio. The handle is updated only if the call
// succeeds and the new state verifies.
func (s *Session) SetRatio(h *Handle, ratio float64) error {
	return s.withInstance(soxr.CallSetIORatio, func(inst sandbox.Instance) error {
		data, err := s.invoke(inst, soxr.CallSetIORatio, soxr.SetIORatioArgs{Handle: h.state, Ratio: ratio})
		if err != nil {
			return err
		}
		res, err := taint.Decode[soxr.StatusResult](soxr.CallSetIORatio, soxr.ConverterLayout, data)
		if err != nil {
			return err
		}
		result := res.UnverifiedSafeBecause("envelope only; handle and status are checked below")

		status, err := verifyStatus(soxr.CallSetIORatio, result.Error)
		if err != nil {
			return err
		}
		if status != nil {
			return &NativeError{Call: soxr.CallSetIORatio, Message: *status}
		}

		next, err := verifyHandle(soxr.CallSetIORatio, result.Handle)
		if err != nil {
			return err
		}
		if err := sameShape(soxr.CallSetIORatio, h, next); err != nil {
			return err
		}
		*h = *next
		return nil
	})
}

// DrainLength is the ilen passed to soxr_process for a final chunk of n
// frames: the bitwise complement of n.
func DrainLength(n uint64) uint64 {
	return ^n
}

// Process calls soxr_process on interleaved buffers. in and out must hold
// whole frames. When final is set the input length is sent as a drain request.
// Produced samples are copied into out only after the counts, the sample
// payload and the new converter state all verify.
func (s *Session) Process(h *Handle, in, out []float32, final bool) (idone, odone int, err error) {
	channels := max(uint64(h.conv.NumChannels), 1)
	if uint64(len(in))%channels != 0 || uint64(len(out))%channels != 0 {
		return 0, 0, ErrChannelMismatch
	}

	ilen := uint64(len(in)) / channels
	olen := uint64(len(out)) / channels
	rawILen := ilen
	if final {
		rawILen = DrainLength(ilen)
	}

	err = s.withInstance(soxr.CallProcess, func(inst sandbox.Instance) error {
		data, err := s.invoke(inst, soxr.CallProcess, soxr.ProcessArgs{
			Handle: h.state,
			In:     in,
			ILen:   rawILen,
			OLen:   olen,
		})
		if err != nil {
			return err
		}
		res, err := taint.Decode[soxr.ProcessResult](soxr.CallProcess, soxr.ProgressLayout, data)
		if err != nil {
			return err
		}
		result := res.UnverifiedSafeBecause("envelope only; every field is checked below")

		status, err := verifyStatus(soxr.CallProcess, result.Error)
		if err != nil {
			return err
		}
		if status != nil {
			return &NativeError{Call: soxr.CallProcess, Message: *status}
		}

		next, err := verifyHandle(soxr.CallProcess, result.Handle)
		if err != nil {
			return err
		}
		if err := sameShape(soxr.CallProcess, h, next); err != nil {
			return err
		}

		progress, err := taint.Verify(
			taint.Wrap(invariant.Progress{IDone: result.IDone, ILen: ilen, ODone: result.ODone, OLen: olen}),
			soxr.CallProcess, soxr.ProgressLayout, invariant.CheckProgress)
		if err != nil {
			return err
		}

		output, err := taint.Verify(
			taint.Wrap(invariant.Output{Samples: result.Out, ODone: progress.ODone, Channels: next.conv.NumChannels}),
			soxr.CallProcess, soxr.ProgressLayout, invariant.CheckOutput)
		if err != nil {
			return err
		}
		copy(out, output.Samples)
		*h = *next
		idone, odone = int(progress.IDone), int(progress.ODone)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return idone, odone, nil
}

// withInstance brackets body with the creation and destruction of one
// sandbox instance. Destruction runs on every path; its failure is joined
// into the returned error.
func (s *Session) withInstance(call string, body func(sandbox.Instance) error) (err error) {
	inst, err := s.rt.Create()
	if err != nil {
		return fmt.Errorf("%s: create sandbox: %w", call, err)
	}
	s.logger.Debug("sandbox instance created", "call", call)

	defer func() {
		if derr := inst.Destroy(); derr != nil {
			err = errors.Join(err, fmt.Errorf("%s: destroy sandbox: %w", call, derr))
		}
		s.logger.Debug("sandbox instance destroyed", "call", call)
	}()

	err = body(inst)
	if err != nil {
		s.report(call, err)
	}
	return err
}

func (s *Session) invoke(inst sandbox.Instance, call string, args any) ([]byte, error) {
	data, err := codec.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("%s: encode arguments: %w", call, err)
	}
	res, err := inst.Invoke(call, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", call, err)
	}
	return res, nil
}

func (s *Session) report(call string, err error) {
	var verr *taint.VerifyError
	if errors.As(err, &verr) {
		attrs := []any{"call", call, "type", verr.Type}
		var v *invariant.Violation
		if errors.As(verr, &v) {
			attrs = append(attrs, "field", v.Field, "ctype", v.CType)
		}
		s.logger.Warn("sandbox value rejected", append(attrs, "error", verr.Err)...)
		return
	}
	s.logger.Warn("sandbox call failed", "call", call, "error", err)
}

// verifyStatus bounds a returned status before it is copied into a
// NativeError.
func verifyStatus(call string, raw *string) (*string, error) {
	st, err := taint.Verify(taint.Wrap(invariant.Status{Message: raw}), call, soxr.StatusLayout, invariant.CheckStatus)
	if err != nil {
		return nil, err
	}
	return st.Message, nil
}

// verifyHandle strictly decodes converter state returned by call and checks
// it. The returned handle owns a copy of the verified bytes.
func verifyHandle(call string, raw codec.RawMessage) (*Handle, error) {
	if isNull(raw) {
		return nil, &taint.VerifyError{
			Site: call,
			Type: soxr.ConverterLayout.Name,
			Err:  invariant.NewViolation(soxr.ConverterLayout, "", nil, "non-nil"),
		}
	}
	tainted, err := taint.Decode[soxr.Converter](call, soxr.ConverterLayout, raw)
	if err != nil {
		return nil, err
	}
	conv, err := taint.Verify(tainted, call, soxr.ConverterLayout, invariant.CheckConverter)
	if err != nil {
		return nil, err
	}
	return &Handle{state: bytes.Clone(raw), conv: conv}, nil
}

// sameShape rejects a returned converter whose channel count differs from the
// one the caller holds; buffer sizing depends on it.
func sameShape(call string, h, next *Handle) error {
	if next.conv.NumChannels == h.conv.NumChannels {
		return nil
	}
	return &taint.VerifyError{
		Site: call,
		Type: soxr.ConverterLayout.Name,
		Err: invariant.NewViolation(soxr.ConverterLayout, "num_channels",
			next.conv.NumChannels, fmt.Sprintf("unchanged (%d)", h.conv.NumChannels)),
	}
}

func isNull(raw codec.RawMessage) bool {
	return len(raw) == 0 || (len(raw) == 1 && raw[0] == cborNull)
}
