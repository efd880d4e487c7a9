// Package resampler converts audio sample rates through a sandboxed SoX
// resampler.
//
// The converter library never runs in the caller's address space. Every call
// (quality spec, create, set ratio, process) creates a fresh sandbox instance,
// exchanges serialized values with it and destroys it before returning.
// Nothing that comes back is used until it has been decoded strictly and
// checked field by field: the quality, io and runtime specs, the converter
// state with all of its internal references, the progress counts and the
// sample payload. A rejected value surfaces as a [SandboxViolation] and the
// caller's converter state is left untouched.
//
// # Quick Start
//
// For one-shot resampling of a mono signal:
//
//	out, err := resampler.ResampleMono(resampler.DefaultSettings(), in, 22050.0/44100.0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// For streaming:
//
//	r, err := resampler.New(settings, false, factor, factor)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	for chunk := range chunks {
//	    consumed, produced, err := r.Process(factor, chunk, false, out)
//	    ...
//	}
//	// Drain: call with isLast until produced is zero.
//
// # Methods
//
// [Settings] hold two preferences, the method for normal use and the one used
// when the best method is requested. They map to library recipes:
//
//   - [MethodLow]: quick cubic interpolation
//   - [MethodMedium]: low quality, 16-bit precision
//   - [MethodHigh]: 20-bit
//   - [MethodBest]: 28-bit
//
// Preferences load from YAML with [LoadSettings]:
//
//	quality:
//	  sample_rate_converter_choice: MediumQuality
//	  hq_sample_rate_converter_choice: BestQuality
//
// # Rate Modes
//
// When minFactor equals maxFactor the converter is built for that constant
// factor and the factor passed to Process is ignored. Otherwise it is built
// with the variable-rate flag and each Process call first sets the factor.
// Factors are output rate over input rate and must lie in (0, 1]; larger
// factors are refused with [ErrInvalidConfig] before the sandbox is entered.
//
// # Errors
//
// Values rejected at the boundary match [ErrSandboxViolation]. Failures
// reported by the library itself match [ErrNative]; a missing converter on
// construction matches [ErrCreateFailed].
//
// # Thread Safety
//
// A [Resampler] serializes its own calls. Separate instances share nothing.
//
// # Attribution
//
// The converter model follows libsoxr (https://sourceforge.net/projects/soxr/)
// by Rob Sykes, licensed under LGPL-2.1: the quality recipes, the quality spec
// derivation and the drain convention of soxr_process.
package resampler
