package testutil

import (
	"sync"

	"github.com/tphakala/go-resample-sandbox/internal/codec"
	"github.com/tphakala/go-resample-sandbox/internal/sandbox"
	"github.com/tphakala/go-resample-sandbox/internal/soxr"
)

// Call is one recorded export invocation.
type Call struct {
	Fn   string
	Args []byte
}

// Tamper rewrites the result of fn before the host sees it.
type Tamper func(fn string, result []byte) []byte

// Recorder wraps a runtime, recording every invocation and instance
// lifecycle event. A non-nil Tamper stands in for a compromised library.
type Recorder struct {
	inner  sandbox.Runtime
	Tamper Tamper

	mu        sync.Mutex
	calls     []Call
	created   int
	destroyed int
}

// NewRecorder wraps the in-process converter library.
func NewRecorder() *Recorder {
	return &Recorder{inner: sandbox.NewInProcess(soxr.NewLibrary())}
}

// Create implements sandbox.Runtime.
func (r *Recorder) Create() (sandbox.Instance, error) {
	inst, err := r.inner.Create()
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.created++
	r.mu.Unlock()
	return &recordedInstance{Instance: inst, rec: r}, nil
}

// Calls returns the recorded invocations in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Names returns the export names invoked, in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.calls))
	for i, c := range r.calls {
		names[i] = c.Fn
	}
	return names
}

// Created returns the number of instances created.
func (r *Recorder) Created() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.created
}

// Destroyed returns the number of instances destroyed.
func (r *Recorder) Destroyed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}

// ProcessArgs decodes the arguments of every recorded soxr_process call.
func (r *Recorder) ProcessArgs() ([]soxr.ProcessArgs, error) {
	var out []soxr.ProcessArgs
	for _, c := range r.Calls() {
		if c.Fn != soxr.CallProcess {
			continue
		}
		var args soxr.ProcessArgs
		if err := codec.Unmarshal(c.Args, &args); err != nil {
			return nil, err
		}
		out = append(out, args)
	}
	return out, nil
}

type recordedInstance struct {
	sandbox.Instance
	rec *Recorder
}

func (i *recordedInstance) Invoke(fn string, args []byte) ([]byte, error) {
	i.rec.mu.Lock()
	i.rec.calls = append(i.rec.calls, Call{Fn: fn, Args: append([]byte(nil), args...)})
	tamper := i.rec.Tamper
	i.rec.mu.Unlock()

	res, err := i.Instance.Invoke(fn, args)
	if err != nil || tamper == nil {
		return res, err
	}
	return tamper(fn, res), nil
}

func (i *recordedInstance) Destroy() error {
	err := i.Instance.Destroy()
	i.rec.mu.Lock()
	i.rec.destroyed++
	i.rec.mu.Unlock()
	return err
}

// TamperField replaces key in the result map of fn with value.
func TamperField(fn, key string, value any) Tamper {
	return func(call string, result []byte) []byte {
		if call != fn {
			return result
		}
		var m map[string]codec.RawMessage
		if codec.Unmarshal(result, &m) != nil {
			return result
		}
		enc, err := codec.Marshal(value)
		if err != nil {
			return result
		}
		m[key] = enc
		out, err := codec.Marshal(m)
		if err != nil {
			return result
		}
		return out
	}
}

// TamperHandle decodes the converter state returned by fn, applies mutate
// and re-encodes it.
func TamperHandle(fn string, mutate func(*soxr.Converter)) Tamper {
	return func(call string, result []byte) []byte {
		if call != fn {
			return result
		}
		var m map[string]codec.RawMessage
		if codec.Unmarshal(result, &m) != nil {
			return result
		}
		var c soxr.Converter
		if codec.Unmarshal(m["handle"], &c) != nil {
			return result
		}
		mutate(&c)
		handle, err := codec.Marshal(&c)
		if err != nil {
			return result
		}
		m["handle"] = handle
		out, err := codec.Marshal(m)
		if err != nil {
			return result
		}
		return out
	}
}
