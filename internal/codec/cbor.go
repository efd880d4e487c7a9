// Package codec is the wire format for everything that crosses the sandbox
// boundary: call arguments, results and the serialized converter state.
//
// Encoding is CBOR Core Deterministic (RFC 8949 §4.2), so the same state always
// yields the same bytes. Decoding is strict: bytes coming back from a sandbox
// instance are untrusted, and anything the target type does not declare
// (unknown fields, duplicate keys, trailing data, oversized containers) is
// rejected instead of being silently dropped.
package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// Limits on decoded containers. Sample buffers are the largest items.
const (
	maxArrayElements = 1 << 24
	maxMapPairs      = 1 << 10
	maxNestedLevels  = 16
)

var (
	encMode    cbor.EncMode
	decMode    cbor.DecMode
	strictMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		MaxArrayElements: maxArrayElements,
		MaxMapPairs:      maxMapPairs,
		MaxNestedLevels:  maxNestedLevels,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}

	strictMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		MaxArrayElements:  maxArrayElements,
		MaxMapPairs:       maxMapPairs,
		MaxNestedLevels:   maxNestedLevels,
	}.DecMode()
	if err != nil {
		panic("codec: strict CBOR decoder initialization failed: " + err.Error())
	}
}

// RawMessage is an encoded CBOR item whose decoding is deferred. The converter
// state travels as a RawMessage so the host can carry the exact bytes.
type RawMessage = cbor.RawMessage

// Marshal encodes v with Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v, ignoring unknown fields. Used on the library
// side for arguments the host produced.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// UnmarshalStrict decodes untrusted data into v. Unknown fields, duplicate map
// keys and trailing bytes are errors.
func UnmarshalStrict(data []byte, v any) error {
	return strictMode.Unmarshal(data, v)
}
