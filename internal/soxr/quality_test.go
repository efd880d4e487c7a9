package soxr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQualitySpecFor(t *testing.T) {
	tests := []struct {
		name      string
		recipe    uint64
		flags     uint64
		precision float64
		passband  float64
		phase     float64
		wantFlags uint64
	}{
		{"quick", QQ, 0, 0, 0, 50, RolloffMedium},
		{"low", LQ, 0, 16, 1385.0 / 2048.0, 50, RolloffMedium},
		{"medium", MQ, RolloffNone, 16, 1 - 0.05/0.5943960753735231, 50, RolloffMedium},
		{"16_bit", Bits16Q, 0, 16, 1 - 0.05/0.5943960753735231, 50, 0},
		{"high", HQ, 0, 20, 1 - 0.05/0.5796732784535525, 50, 0},
		{"very_high", VHQ, 0, 28, 1 - 0.05/0.5638725727083976, 50, 0},
		{"high_variable_rate", HQ, VR, 20, 1 - 0.05/0.5796732784535525, 50, VR},
		{"high_intermediate_phase", HQ | IntermediatePhase, 0, 20, 1 - 0.05/0.5796732784535525, 25, 0},
		{"high_minimum_phase", HQ | MinimumPhase, 0, 20, 1 - 0.05/0.5796732784535525, 0, 0},
		{"high_steep", HQ | SteepFilter, 0, 20, 1 - 0.01/0.5796732784535525, 50, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := QualitySpecFor(tt.recipe, tt.flags)

			assert.InDelta(t, tt.precision, q.Precision, 1e-12)
			assert.InDelta(t, tt.phase, q.PhaseResponse, 1e-12)
			assert.Equal(t, 1.0, q.StopbandBegin)
			assert.Equal(t, tt.wantFlags, q.Flags)
			require.NotNil(t, q.E)
			assert.Equal(t, "ok", *q.E)
			if tt.recipe != QQ {
				assert.InDelta(t, tt.passband, q.PassbandEnd, 1e-9)
			}
		})
	}
}

func TestQualitySpecFor_Invalid(t *testing.T) {
	q := QualitySpecFor(Bits32Q+1, 0)

	require.NotNil(t, q.E)
	assert.Equal(t, "invalid quality type", *q.E)
	assert.Zero(t, q.Precision)
	assert.Zero(t, q.StopbandBegin)
}

// Every returned spec points at the same static diagnostic.
func TestQualitySpecFor_StaticDiagnostic(t *testing.T) {
	a := QualitySpecFor(LQ, 0)
	b := QualitySpecFor(VHQ, VR)
	assert.Same(t, a.E, b.E)
}
