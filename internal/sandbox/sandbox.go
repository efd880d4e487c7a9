// Package sandbox runs library exports inside isolated, short-lived instances.
//
// Everything crossing an instance edge is a byte slice that is copied on the
// way in and on the way out, so neither side can alias the other's memory.
// Results are untrusted: callers decode them strictly and validate them
// before use.
package sandbox

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	// ErrTrap reports a fault raised by code running inside an instance.
	ErrTrap = errors.New("sandbox: trapped fault")

	// ErrDestroyed is returned when an instance is used after Destroy.
	ErrDestroyed = errors.New("sandbox: instance destroyed")

	// ErrUnknownExport is returned when the library has no such function.
	ErrUnknownExport = errors.New("sandbox: unknown export")
)

// Export is a library entry point. It receives encoded arguments and returns
// encoded results.
type Export func(args []byte) ([]byte, error)

// Library is a named table of exports.
type Library struct {
	name    string
	exports map[string]Export
}

// NewLibrary creates a library from an export table. The table is copied.
func NewLibrary(name string, exports map[string]Export) *Library {
	return &Library{name: name, exports: maps.Clone(exports)}
}

// Name returns the library name.
func (l *Library) Name() string {
	return l.name
}

// Instance is one sandbox. Invoke may be called any number of times until
// Destroy.
type Instance interface {
	Invoke(fn string, args []byte) ([]byte, error)
	Destroy() error
}

// Runtime creates instances.
type Runtime interface {
	Create() (Instance, error)
}

// InProcess is a Runtime whose instances each own a goroutine locked to its
// own OS thread. A panic inside an export is trapped and poisons the instance.
type InProcess struct {
	lib     *Library
	live    atomic.Int64
	created atomic.Int64
}

// NewInProcess returns a runtime for lib.
func NewInProcess(lib *Library) *InProcess {
	return &InProcess{lib: lib}
}

// Live returns the number of instances created and not yet destroyed.
func (r *InProcess) Live() int64 {
	return r.live.Load()
}

// Created returns the number of instances ever created.
func (r *InProcess) Created() int64 {
	return r.created.Load()
}

type call struct {
	fn    string
	args  []byte
	reply chan result
}

type result struct {
	data []byte
	err  error
}

type instance struct {
	rt    *InProcess
	calls chan call
	done  chan struct{}

	mu        sync.Mutex
	destroyed bool
	faulted   error
}

// Create starts a new instance.
func (r *InProcess) Create() (Instance, error) {
	inst := &instance{
		rt:    r,
		calls: make(chan call),
		done:  make(chan struct{}),
	}
	go inst.serve()

	r.live.Add(1)
	r.created.Add(1)
	return inst, nil
}

func (i *instance) serve() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(i.done)

	for c := range i.calls {
		data, err := i.dispatch(c.fn, c.args)
		c.reply <- result{data: data, err: err}
	}
}

func (i *instance) dispatch(fn string, args []byte) (data []byte, err error) {
	export, ok := i.rt.lib.exports[fn]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownExport, i.rt.lib.name, fn)
	}

	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = fmt.Errorf("%w in %s.%s: %v", ErrTrap, i.rt.lib.name, fn, r)
		}
	}()
	return export(args)
}

// Invoke calls fn with a private copy of args and returns a private copy of
// the result.
func (i *instance) Invoke(fn string, args []byte) ([]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.destroyed {
		return nil, ErrDestroyed
	}
	if i.faulted != nil {
		return nil, i.faulted
	}

	reply := make(chan result, 1)
	i.calls <- call{fn: fn, args: bytes.Clone(args), reply: reply}
	res := <-reply

	if errors.Is(res.err, ErrTrap) {
		i.faulted = res.err
	}
	return bytes.Clone(res.data), res.err
}

// Destroy stops the instance. Destroying twice is an error.
func (i *instance) Destroy() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.destroyed {
		return ErrDestroyed
	}
	i.destroyed = true
	close(i.calls)
	<-i.done
	i.rt.live.Add(-1)
	return nil
}
