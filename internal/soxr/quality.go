package soxr

import "github.com/tphakala/go-resample-sandbox/internal/filter"

// Diagnostic strings. Every spec's E points at one of these static values.
var (
	diagOK             = "ok"
	diagInvalidQuality = "invalid quality type"
)

const (
	// lowQualityPassband is soxr's LOW_Q_BW0 (1385/2048), exact in floating point.
	lowQualityPassband = 1385.0 / 2048.0

	passbandRolloff      = 0.05
	steepPassbandRolloff = 0.01

	precision16Bit  = 16
	precisionOffset = 4
	precisionStep   = 4
)

// phaseResponses is indexed by the recipe's phase bits: linear, intermediate,
// (unused), minimum.
var phaseResponses = [...]float64{50, 25, 100, 0}

// QualitySpecFor is soxr_quality_spec: it derives the filter parameters for a
// recipe. Recipes beyond 32-bit quality yield a zeroed spec whose E names the
// problem.
func QualitySpecFor(recipe, flags uint64) QualitySpec {
	quality := recipe & qualityMask
	if quality > Bits32Q {
		return QualitySpec{E: &diagInvalidQuality}
	}

	spec := QualitySpec{
		PhaseResponse: phaseResponses[(recipe&phaseMask)>>phaseShift],
		StopbandBegin: 1,
		E:             &diagOK,
		Flags:         flags,
	}

	switch {
	case quality == QQ:
		spec.Precision = 0
	case quality <= Bits16Q:
		spec.Precision = precision16Bit
	default:
		spec.Precision = float64(precisionOffset + quality*precisionStep)
	}

	rej := spec.Precision * filter.LinearToDB2
	if quality == LQ {
		spec.PassbandEnd = lowQualityPassband
	} else {
		spec.PassbandEnd = 1 - passbandRolloff/filter.To3dB(rej)
	}
	if quality <= MQ {
		spec.Flags &^= RolloffNone
		spec.Flags |= RolloffMedium
	}
	if recipe&SteepFilter != 0 {
		spec.PassbandEnd = 1 - steepPassbandRolloff/filter.To3dB(rej)
	}

	return spec
}
