package resampler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/tphakala/go-resample-sandbox/internal/sandbox"
	"github.com/tphakala/go-resample-sandbox/internal/session"
	"github.com/tphakala/go-resample-sandbox/internal/soxr"
	"github.com/tphakala/go-resample-sandbox/internal/taint"
)

var (
	// ErrSandboxViolation matches every value rejected at the sandbox
	// boundary. The concrete error is a *SandboxViolation.
	ErrSandboxViolation = taint.ErrSandboxViolation

	// ErrNative matches a failure status reported by the converter library.
	ErrNative = session.ErrNative

	// ErrCreateFailed indicates the library returned no converter.
	ErrCreateFailed = session.ErrCreateFailed

	// ErrClosed is returned by Process after Close.
	ErrClosed = errors.New("resampler closed")

	// ErrInvalidConfig indicates invalid construction parameters.
	ErrInvalidConfig = errors.New("invalid resampler configuration")
)

// SandboxViolation reports the call site, the layout and the field of a
// rejected value.
type SandboxViolation = taint.VerifyError

// NativeError is a status string reported by a library call.
type NativeError = session.NativeError

// Option configures a Resampler.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	runtime sandbox.Runtime
}

// WithLogger sets the logger for sandbox lifecycle and rejection events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// withRuntime replaces the sandbox runtime.
func withRuntime(rt sandbox.Runtime) Option {
	return func(o *options) {
		o.runtime = rt
	}
}

// Resampler converts one channel of float32 samples by a factor of output
// rate over input rate. Every library call runs in a fresh sandbox instance;
// the converter state crosses back only after verification.
//
// A Resampler is safe for concurrent use; calls are serialized.
type Resampler struct {
	mu       sync.Mutex
	session  *session.Session
	handle   *session.Handle
	method   Method
	variable bool
	logger   *slog.Logger
}

// New builds a converter using the method chosen by settings. When minFactor
// equals maxFactor the converter runs at that constant factor; otherwise it
// is created for variable-rate use and each Process call sets its factor.
// Factors must lie in (0, 1]; anything else is ErrInvalidConfig and no
// sandbox call is made.
func New(settings Settings, useBestMethod bool, minFactor, maxFactor float64, opts ...Option) (*Resampler, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if !(minFactor > 0) || !(maxFactor >= minFactor) || maxFactor > maxSupportedFactor {
		return nil, fmt.Errorf("%w: factor range [%v, %v] outside (0, %v]",
			ErrInvalidConfig, minFactor, maxFactor, maxSupportedFactor)
	}

	o := options{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		runtime: sandbox.NewInProcess(soxr.NewLibrary()),
	}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Resampler{
		session:  session.New(o.runtime, o.logger),
		method:   settings.Method(useBestMethod),
		variable: minFactor != maxFactor,
		logger:   o.logger,
	}

	recipe, flags := r.method.Recipe(), uint64(0)
	if r.variable {
		recipe, flags = soxr.HQ, soxr.VR
	}

	q, err := r.session.BuildQualitySpec(recipe, flags)
	if err != nil {
		return nil, fmt.Errorf("build quality spec: %w", err)
	}
	r.handle, err = r.session.CreateHandle(facadeChannels, minFactor, q)
	if err != nil {
		return nil, fmt.Errorf("create converter: %w", err)
	}

	r.logger.Debug("resampler created",
		"method", r.method,
		"variable", r.variable,
		"min_factor", minFactor,
		"max_factor", maxFactor)
	return r, nil
}

// Process converts in into out and reports how many input samples were
// consumed and how many output samples were written. factor is applied
// before processing in variable-rate mode and ignored otherwise. Set isLast
// on the final chunk; further calls with isLast drain the filter tail until
// produced is zero.
func (r *Resampler) Process(factor float64, in []float32, isLast bool, out []float32) (consumed, produced int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle == nil {
		return 0, 0, ErrClosed
	}
	if r.variable {
		if !(factor > 0) || factor > maxSupportedFactor {
			return 0, 0, fmt.Errorf("%w: factor %v outside (0, %v]", ErrInvalidConfig, factor, maxSupportedFactor)
		}
		if err := r.session.SetRatio(r.handle, factor); err != nil {
			return 0, 0, fmt.Errorf("set ratio: %w", err)
		}
	}

	consumed, produced, err = r.session.Process(r.handle, in, out, isLast)
	if err != nil {
		return 0, 0, fmt.Errorf("process: %w", err)
	}
	return consumed, produced, nil
}

// Method returns the method the converter was built with. Variable-rate
// converters always use the high-quality recipe.
func (r *Resampler) Method() Method {
	return r.method
}

// VariableRate reports whether Process applies its factor argument.
func (r *Resampler) VariableRate() bool {
	return r.variable
}

// Close releases the converter. It is safe to call more than once.
func (r *Resampler) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handle = nil
	return nil
}
