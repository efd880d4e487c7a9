package resampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-resample-sandbox/internal/testutil"
)

func TestResampleMono_Length(t *testing.T) {
	for _, factor := range []float64{0.5, 0.25, 1.0} {
		out, err := ResampleMono(DefaultSettings(), testutil.Sine(10000, 440, 48000), factor)
		require.NoError(t, err)
		assert.InDelta(t, 10000*factor, len(out), 2, "factor %v", factor)
		testutil.AssertNoNaNOrInf(t, out)
	}
}

func TestResampleMono_Empty(t *testing.T) {
	out, err := ResampleMono(DefaultSettings(), nil, 0.5)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestResampleMono_Upsampling(t *testing.T) {
	_, err := ResampleMono(DefaultSettings(), testutil.Sine(100, 440, 48000), 48000.0/44100.0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.NotErrorIs(t, err, ErrSandboxViolation)
}

func TestResampleStereo(t *testing.T) {
	left := testutil.Sine(4000, 440, 48000)
	right := testutil.Sine(4000, 880, 48000)

	l, r, err := ResampleStereo(DefaultSettings(), left, right, 0.5)
	require.NoError(t, err)
	assert.Len(t, l, len(r))
	assert.NotEqual(t, l, r)
}

func TestConvert_ChunkSizes(t *testing.T) {
	in := testutil.Sine(3000, 440, 48000)

	var outputs [][]float32
	for _, chunk := range []int{64, 1000, 5000} {
		r, err := NewConstantRate(DefaultSettings(), 0.5)
		require.NoError(t, err)
		out, err := r.Convert(0.5, in, chunk)
		require.NoError(t, err)
		outputs = append(outputs, out)
	}
	for _, out := range outputs[1:] {
		require.Len(t, out, len(outputs[0]))
		assert.InDeltaSlice(t, outputs[0], out, 1e-5)
	}
}

func TestConvert_InvalidChunk(t *testing.T) {
	r, err := NewConstantRate(DefaultSettings(), 0.5)
	require.NoError(t, err)
	_, err = r.Convert(0.5, nil, 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestInterleave(t *testing.T) {
	assert.Nil(t, Interleave(nil))
	assert.Equal(t, []float32{1, 4, 2, 5}, Interleave([][]float32{{1, 2, 3}, {4, 5}}))

	channels := Deinterleave([]float32{1, 4, 2, 5, 9}, 2)
	assert.Equal(t, [][]float32{{1, 2}, {4, 5}}, channels)
	assert.Nil(t, Deinterleave([]float32{1}, 0))
}
