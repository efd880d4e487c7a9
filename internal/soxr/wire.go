package soxr

import (
	"fmt"

	"github.com/tphakala/go-resample-sandbox/internal/codec"
	"github.com/tphakala/go-resample-sandbox/internal/sandbox"
)

// LibraryName is the sandbox library name.
const LibraryName = "soxr"

// Export names.
const (
	CallQualitySpec = "soxr_quality_spec"
	CallCreate      = "soxr_create"
	CallSetIORatio  = "soxr_set_io_ratio"
	CallProcess     = "soxr_process"
)

// QualitySpecArgs are the arguments of soxr_quality_spec. The result is an
// encoded QualitySpec.
type QualitySpecArgs struct {
	Recipe uint64 `cbor:"recipe"`
	Flags  uint64 `cbor:"flags"`
}

// CreateArgs are the arguments of soxr_create.
type CreateArgs struct {
	Channels uint32       `cbor:"channels"`
	Ratio    float64      `cbor:"ratio"`
	QSpec    *QualitySpec `cbor:"q_spec"`
}

// CreateResult carries the new converter state (null on failure) and the
// error status.
type CreateResult struct {
	Handle codec.RawMessage `cbor:"handle"`
	Error  *string          `cbor:"error"`
}

// SetIORatioArgs are the arguments of soxr_set_io_ratio.
type SetIORatioArgs struct {
	Handle  codec.RawMessage `cbor:"handle"`
	Ratio   float64          `cbor:"io_ratio"`
	SlewLen uint64           `cbor:"slew_len"`
}

// StatusResult carries the updated converter state and the error status.
type StatusResult struct {
	Handle codec.RawMessage `cbor:"handle"`
	Error  *string          `cbor:"error"`
}

// ProcessArgs are the arguments of soxr_process. ILen may be a drain sentinel.
type ProcessArgs struct {
	Handle codec.RawMessage `cbor:"handle"`
	In     []float32        `cbor:"in"`
	ILen   uint64           `cbor:"ilen"`
	OLen   uint64           `cbor:"olen"`
}

// ProcessResult carries the updated state, the progress counts and the
// produced interleaved samples.
type ProcessResult struct {
	Handle codec.RawMessage `cbor:"handle"`
	Error  *string          `cbor:"error"`
	IDone  uint64           `cbor:"idone"`
	ODone  uint64           `cbor:"odone"`
	Out    []float32        `cbor:"out"`
}

// NewLibrary returns the sandbox library exporting the converter calls.
func NewLibrary() *sandbox.Library {
	return sandbox.NewLibrary(LibraryName, map[string]sandbox.Export{
		CallQualitySpec: exportQualitySpec,
		CallCreate:      exportCreate,
		CallSetIORatio:  exportSetIORatio,
		CallProcess:     exportProcess,
	})
}

func exportQualitySpec(data []byte) ([]byte, error) {
	var args QualitySpecArgs
	if err := codec.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("%s: decode arguments: %w", CallQualitySpec, err)
	}
	return codec.Marshal(QualitySpecFor(args.Recipe, args.Flags))
}

func exportCreate(data []byte) ([]byte, error) {
	var args CreateArgs
	if err := codec.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("%s: decode arguments: %w", CallCreate, err)
	}

	var res CreateResult
	c, status := Create(args.Channels, args.Ratio, args.QSpec)
	res.Error = status
	if c != nil {
		handle, err := codec.Marshal(c)
		if err != nil {
			return nil, err
		}
		res.Handle = handle
	}
	return codec.Marshal(res)
}

func exportSetIORatio(data []byte) ([]byte, error) {
	var args SetIORatioArgs
	if err := codec.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("%s: decode arguments: %w", CallSetIORatio, err)
	}

	c := decodeHandle(args.Handle)
	res := StatusResult{Error: SetIORatio(c, args.Ratio, args.SlewLen)}
	return encodeWithHandle(c, &res.Handle, &res)
}

func exportProcess(data []byte) ([]byte, error) {
	var args ProcessArgs
	if err := codec.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("%s: decode arguments: %w", CallProcess, err)
	}

	c := decodeHandle(args.Handle)
	var res ProcessResult
	res.IDone, res.ODone, res.Out, res.Error = Process(c, args.In, args.ILen, args.OLen)
	return encodeWithHandle(c, &res.Handle, &res)
}

// decodeHandle returns nil for a missing or unreadable state, which the calls
// report as a null pointer.
func decodeHandle(raw codec.RawMessage) *Converter {
	var c *Converter
	if len(raw) == 0 || codec.Unmarshal(raw, &c) != nil {
		return nil
	}
	return c
}

func encodeWithHandle(c *Converter, dst *codec.RawMessage, res any) ([]byte, error) {
	if c != nil {
		handle, err := codec.Marshal(c)
		if err != nil {
			return nil, err
		}
		*dst = handle
	}
	return codec.Marshal(res)
}
