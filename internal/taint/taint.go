// Package taint marks values that came back from a sandbox instance and
// converts them into trusted values only after they pass a check.
//
// A Tainted value can be read in exactly two ways: Verify, which runs a
// checker against a private copy and returns it only on success, and
// UnverifiedSafeBecause, which documents why a particular value needs no check.
package taint

import (
	"errors"
	"fmt"

	"github.com/tphakala/go-resample-sandbox/internal/codec"
	"github.com/tphakala/go-resample-sandbox/internal/soxr"
)

// ErrSandboxViolation matches every *VerifyError.
var ErrSandboxViolation = errors.New("sandbox violation")

// Checker validates a value. It must not modify it.
type Checker[T any] func(*T) error

// Tainted holds an untrusted value.
type Tainted[T any] struct {
	value T
}

// Wrap marks v as untrusted.
func Wrap[T any](v T) Tainted[T] {
	return Tainted[T]{value: v}
}

// VerifyError reports a value rejected at a call site.
type VerifyError struct {
	Site string // sandbox export whose result was rejected
	Type string // layout name of the rejected value
	Err  error  // *invariant.Violation or a decode error
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("%s: %s: invalid %s: %v", ErrSandboxViolation, e.Site, e.Type, e.Err)
}

func (e *VerifyError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrSandboxViolation) hold.
func (e *VerifyError) Is(target error) bool {
	return target == ErrSandboxViolation
}

// Verify runs check on a copy of the tainted value and returns that copy if
// it passes. The tainted value itself is never modified.
func Verify[T any](t Tainted[T], site string, layout soxr.Layout, check Checker[T]) (T, error) {
	v := t.value
	if err := check(&v); err != nil {
		var zero T
		return zero, &VerifyError{Site: site, Type: layout.Name, Err: err}
	}
	return v, nil
}

// UnverifiedSafeBecause releases the value without a check. The reason is
// mandatory and documents why the value cannot harm the host.
func (t Tainted[T]) UnverifiedSafeBecause(reason string) T {
	if reason == "" {
		panic("taint: UnverifiedSafeBecause requires a reason")
	}
	return t.value
}

// Decode strictly decodes bytes returned from site into a tainted T. Bytes
// that do not decode are rejected as a violation of layout.
func Decode[T any](site string, layout soxr.Layout, data []byte) (Tainted[T], error) {
	var v T
	if err := codec.UnmarshalStrict(data, &v); err != nil {
		return Tainted[T]{}, &VerifyError{Site: site, Type: layout.Name, Err: fmt.Errorf("decode: %w", err)}
	}
	return Wrap(v), nil
}
