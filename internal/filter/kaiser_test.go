package filter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-resample-sandbox/internal/testutil"
)

const (
	windowTolerance = 1e-10
	gainTolerance   = 1e-5

	testWindowLength11 = 11
	testWindowLength21 = 21
	testWindowLength51 = 51
	testBeta5          = 5.0
	testBeta8          = 8.653728
	testBeta10         = 10.0

	testPhases = 64
)

// TestKaiserWindow_Symmetry verifies that Kaiser window is symmetric.
func TestKaiserWindow_Symmetry(t *testing.T) {
	tests := []struct {
		name   string
		length int
		beta   float64
	}{
		{"length_11_beta_5", testWindowLength11, testBeta5},
		{"length_21_beta_8", testWindowLength21, testBeta8},
		{"length_51_beta_10", testWindowLength51, testBeta10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window := KaiserWindow(tt.length, tt.beta)

			assert.Len(t, window, tt.length, "window length mismatch")
			testutil.AssertSymmetric(t, window, windowTolerance)
		})
	}
}

func TestKaiserWindow_CenterTap(t *testing.T) {
	window := KaiserWindow(testWindowLength21, testBeta8)

	testutil.AssertCenterIsMax(t, window)
	assert.InDelta(t, 1.0, window[testWindowLength21/2], windowTolerance)
}

func TestKaiserWindow_EdgeCases(t *testing.T) {
	tests := []struct {
		name   string
		length int
		want   int
	}{
		{"zero_length", 0, 0},
		{"negative_length", -1, 0},
		{"length_one", 1, 1},
		{"length_two", 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window := KaiserWindow(tt.length, testBeta5)
			assert.Len(t, window, tt.want)
			if tt.length == 1 {
				assert.InDelta(t, 1.0, window[0], windowTolerance)
			}
		})
	}
}

func TestTableParams_Validate(t *testing.T) {
	valid := TableParams{Half: 16, Phases: testPhases, Cutoff: 0.5, Attenuation: 100}

	tests := []struct {
		name   string
		mutate func(*TableParams)
		ok     bool
	}{
		{"valid", func(*TableParams) {}, true},
		{"cutoff_one", func(p *TableParams) { p.Cutoff = 1 }, true},
		{"half_zero", func(p *TableParams) { p.Half = 0 }, false},
		{"half_too_long", func(p *TableParams) { p.Half = MaxHalfLength + 1 }, false},
		{"phases_zero", func(p *TableParams) { p.Phases = 0 }, false},
		{"phases_too_many", func(p *TableParams) { p.Phases = MaxPhases + 1 }, false},
		{"cutoff_zero", func(p *TableParams) { p.Cutoff = 0 }, false},
		{"cutoff_above_one", func(p *TableParams) { p.Cutoff = 1.01 }, false},
		{"cutoff_nan", func(p *TableParams) { p.Cutoff = math.NaN() }, false},
		{"negative_attenuation", func(p *TableParams) { p.Attenuation = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTable)
			}
		})
	}
}

func TestDesignTable_Shape(t *testing.T) {
	table, err := DesignTable(TableParams{Half: 16, Phases: testPhases, Cutoff: 0.5, Attenuation: 100})
	require.NoError(t, err)

	assert.Len(t, table.Coeffs, 2*16*testPhases+1)
	assert.Equal(t, 32, table.Taps())
	require.NoError(t, table.Validate())
	testutil.AssertOddLength(t, table.Coeffs)
	testutil.AssertSymmetric(t, table.Coeffs, windowTolerance)
	testutil.AssertCenterIsMax(t, table.Coeffs)
	testutil.AssertNoNaNOrInf(t, table.Coeffs)
	testutil.AssertDCGain(t, table.Coeffs[:len(table.Coeffs)-1], testPhases, gainTolerance)
}

// Every fractional position must see unity DC gain.
func TestDesignTable_FillUnityGain(t *testing.T) {
	table, err := DesignTable(TableParams{Half: 12, Phases: testPhases, Cutoff: 0.9, Attenuation: 96})
	require.NoError(t, err)

	weights := make([]float64, table.Taps())
	for _, frac := range []float64{0, 0.25, 0.5, 0.9} {
		table.Fill(weights, frac)
		testutil.AssertDCGain(t, weights, 1, 1e-4)
	}
}

func TestTable_At(t *testing.T) {
	table, err := DesignTable(TableParams{Half: 8, Phases: testPhases, Cutoff: 1, Attenuation: 60})
	require.NoError(t, err)

	assert.Equal(t, table.Coeffs[8*testPhases], table.At(0))
	assert.Zero(t, table.At(-8.5))
	assert.Zero(t, table.At(8.5))
	assert.InDelta(t, table.Coeffs[len(table.Coeffs)-1], table.At(8), windowTolerance)

	// Full-band sinc is zero at nonzero integers before windowing.
	assert.InDelta(t, 0, table.At(1), 1e-12)
	assert.InDelta(t, 0, table.At(-3), 1e-12)
}

func TestTable_ValidateRejectsWrongLength(t *testing.T) {
	table, err := DesignTable(TableParams{Half: 4, Phases: 16, Cutoff: 0.8, Attenuation: 60})
	require.NoError(t, err)

	table.Coeffs = table.Coeffs[:len(table.Coeffs)-1]
	assert.ErrorIs(t, table.Validate(), ErrInvalidTable)

	table.Half = MaxHalfLength + 1
	assert.ErrorIs(t, table.Validate(), ErrInvalidTable)
}

func TestDesignTable_StopbandAttenuation(t *testing.T) {
	const fftSize = 1 << 17

	table, err := DesignTable(TableParams{Half: 16, Phases: testPhases, Cutoff: 0.5, Attenuation: 100})
	require.NoError(t, err)

	resp := FrequencyResponse(table.Coeffs, fftSize)
	dc := resp.Magnitude[0]
	require.InDelta(t, testPhases, dc, 1e-3)

	// Frequencies are per table point; scale to cycles per input sample.
	for k, f := range resp.Frequencies {
		input := f * testPhases
		rel := MagnitudeDB(resp.Magnitude[k] / dc)
		switch {
		case input <= 0.1:
			assert.InDelta(t, 0, rel, 0.01, "passband at %.3f", input)
		case input >= 0.4 && input <= 1.0:
			assert.Less(t, rel, -90.0, "stopband at %.3f", input)
		}
	}
}

func BenchmarkKaiserWindow(b *testing.B) {
	for b.Loop() {
		_ = KaiserWindow(2*32*testPhases+1, testBeta8)
	}
}

func BenchmarkDesignTable(b *testing.B) {
	p := TableParams{Half: 28, Phases: testPhases, Cutoff: 0.9, Attenuation: 150}
	for b.Loop() {
		_, _ = DesignTable(p)
	}
}
