package resampler

import (
	"errors"
	"fmt"
	"math"
)

// ErrStalled indicates a non-final Process call that made no progress.
var ErrStalled = errors.New("resampler made no progress")

// NewConstantRate creates a converter fixed at factor using the fast method.
//
// Example:
//
//	r, err := resampler.NewConstantRate(resampler.DefaultSettings(), 22050.0/44100.0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
func NewConstantRate(settings Settings, factor float64, opts ...Option) (*Resampler, error) {
	return New(settings, false, factor, factor, opts...)
}

// ResampleMono converts a whole mono signal by factor, including the
// drained filter tail.
func ResampleMono(settings Settings, in []float32, factor float64, opts ...Option) ([]float32, error) {
	r, err := NewConstantRate(settings, factor, opts...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	return r.Convert(factor, in, DefaultChunkSize)
}

// ResampleStereo converts two channels by factor, one converter each.
func ResampleStereo(settings Settings, left, right []float32, factor float64, opts ...Option) (leftOut, rightOut []float32, err error) {
	leftOut, err = ResampleMono(settings, left, factor, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("left channel: %w", err)
	}
	rightOut, err = ResampleMono(settings, right, factor, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("right channel: %w", err)
	}
	return leftOut, rightOut, nil
}

// Convert streams in through r in chunks of at most chunk samples, marks the
// last chunk final and drains the converter. The converter cannot be used
// for further input afterwards.
func (r *Resampler) Convert(factor float64, in []float32, chunk int) ([]float32, error) {
	if chunk <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d", ErrInvalidConfig, chunk)
	}

	out := make([]float32, 0, outputFrames(len(in), factor))
	buf := make([]float32, outputFrames(chunk, factor))
	for {
		n := min(chunk, len(in))
		last := n == len(in)

		consumed, produced, err := r.Process(factor, in[:n], last, buf)
		if err != nil {
			return nil, err
		}
		out = append(out, buf[:produced]...)
		in = in[consumed:]

		switch {
		case last && consumed == n && produced == 0:
			return out, nil
		case !last && consumed == 0 && produced == 0:
			return nil, ErrStalled
		}
	}
}

func outputFrames(n int, factor float64) int {
	return int(math.Ceil(float64(n)*factor)) + outputHeadroom
}

// Interleave merges equal-length channels into one interleaved buffer:
// [c0[0], c1[0], ..., c0[1], c1[1], ...]. Extra samples in longer channels
// are dropped.
func Interleave(channels [][]float32) []float32 {
	if len(channels) == 0 {
		return nil
	}
	frames := len(channels[0])
	for _, ch := range channels[1:] {
		frames = min(frames, len(ch))
	}

	n := len(channels)
	result := make([]float32, frames*n)
	for c, ch := range channels {
		for i := range frames {
			result[i*n+c] = ch[i]
		}
	}
	return result
}

// Deinterleave splits an interleaved buffer into n channels. A trailing
// partial frame is dropped.
func Deinterleave(interleaved []float32, n int) [][]float32 {
	if n <= 0 {
		return nil
	}
	frames := len(interleaved) / n
	channels := make([][]float32, n)
	for c := range channels {
		channels[c] = make([]float32, frames)
		for i := range frames {
			channels[c][i] = interleaved[i*n+c]
		}
	}
	return channels
}
