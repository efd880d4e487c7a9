package resampler

import "github.com/tphakala/go-resample-sandbox/internal/soxr"

// Method selects the converter quality. The values and their order match the
// host's preference choices.
type Method int

const (
	MethodLow Method = iota
	MethodMedium
	MethodHigh
	MethodBest

	methodCount
)

// Preference symbols, indexed by Method.
var methodSymbols = [methodCount]string{
	"LowQuality",
	"MediumQuality",
	"HighQuality",
	"BestQuality",
}

// Library recipe per Method: quick cubic, low, 20-bit and 28-bit.
var methodRecipes = [methodCount]uint64{
	soxr.QQ,
	soxr.LQ,
	soxr.HQ,
	soxr.VHQ,
}

// Default preference values.
const (
	DefaultFastMethod = MethodMedium
	DefaultBestMethod = MethodBest
)

// Converter layout used by the facade.
const (
	facadeChannels = 1 // mono; hosts run one converter per channel
)

// Factors are output rate over input rate. The converter only downsamples.
const maxSupportedFactor = 1.0

// Streaming constants for the convenience functions.
const (
	DefaultChunkSize = 4096 // input frames per Process call
	outputHeadroom   = 64   // extra output frames beyond len(in)*factor
)
