// Command resample-wav resamples WAV audio files to a target sample rate
// through the sandboxed converter.
//
// Usage:
//
//	resample-wav --rate 22.05 input.wav output.wav
//	resample-wav --rate 16 --best input.wav output.wav
//	resample-wav --rate 16 --settings prefs.yaml -v input.wav output.wav
//
// Each channel runs through its own constant-rate converter. Upsampling is
// refused as an invalid configuration.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	resampler "github.com/tphakala/go-resample-sandbox"
)

const (
	// Output buffer margin to handle ratio variations
	outputBufferMargin = 1024

	// Sample format constants
	bitsPerSample16 = 16
	bitsPerSample24 = 24
	bitsPerSample32 = 32

	// Conversion constants
	kHzToHz          = 1000
	maxInt16         = 32767.0
	maxInt24         = 8388607.0
	maxInt32         = 2147483647.0
	progressInterval = 10 // log progress every N%
	percentScale     = 100

	// CLI defaults
	defaultRateKHz  = 22.05
	defaultChunk    = 65536
	minRequiredArgs = 2

	wavFormatPCM = 1
)

type config struct {
	inputPath  string
	outputPath string
	targetRate int
	best       bool
	chunk      int
	parallel   bool
	settings   resampler.Settings
}

func main() {
	logger, cfg, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		slog.Error("invalid arguments", "error", err)
		os.Exit(2)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("resample failed", "error", err)
		os.Exit(1)
	}
}

func parseArgs(args []string, stderr io.Writer) (*slog.Logger, *config, error) {
	fs := pflag.NewFlagSet("resample-wav", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	rateKHz := fs.Float64("rate", defaultRateKHz, "Target sample rate in kHz (at most the input rate)")
	best := fs.Bool("best", false, "Use the best-quality method from the settings")
	settingsPath := fs.String("settings", "", "YAML file with converter preferences")
	chunk := fs.Int("chunk", defaultChunk, "Frames read per processing step")
	parallel := fs.Bool("parallel", true, "Process channels concurrently")
	verbose := fs.BoolP("verbose", "v", false, "Verbose output")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: resample-wav [options] input.wav output.wav\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if fs.NArg() < minRequiredArgs {
		fs.Usage()
		return nil, nil, errors.New("insufficient arguments")
	}
	if *chunk <= 0 {
		return nil, nil, fmt.Errorf("chunk must be positive, got %d", *chunk)
	}

	settings := resampler.DefaultSettings()
	if *settingsPath != "" {
		var err error
		if settings, err = resampler.LoadSettings(*settingsPath); err != nil {
			return nil, nil, err
		}
	}

	return logger, &config{
		inputPath:  fs.Arg(0),
		outputPath: fs.Arg(1),
		targetRate: int(*rateKHz * kHzToHz),
		best:       *best,
		chunk:      *chunk,
		parallel:   *parallel,
		settings:   settings,
	}, nil
}

func run(cfg *config, logger *slog.Logger) error {
	logger.Debug("configuration",
		"input", cfg.inputPath,
		"output", cfg.outputPath,
		"rate", cfg.targetRate,
		"method", cfg.settings.Method(cfg.best),
		"chunk", cfg.chunk)

	start := time.Now()
	stats, err := resampleWAV(cfg, logger)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("Resampled %s -> %s\n", filepath.Base(cfg.inputPath), filepath.Base(cfg.outputPath))
	fmt.Printf("  %d Hz -> %d Hz (%d channels, %d-bit)\n",
		stats.inputRate, stats.outputRate, stats.channels, stats.bitDepth)
	fmt.Printf("  %d samples -> %d samples\n", stats.inputSamples, stats.outputSamples)
	fmt.Printf("  Duration: %.2fs, Speed: %.1fx realtime\n",
		elapsed.Seconds(),
		float64(stats.inputSamples)/float64(stats.inputRate)/elapsed.Seconds())
	return nil
}

type resampleStats struct {
	inputRate     int
	outputRate    int
	channels      int
	bitDepth      int
	inputSamples  int64
	outputSamples int64
}

func resampleWAV(cfg *config, logger *slog.Logger) (stats *resampleStats, err error) {
	input, err := openWAVInput(cfg.inputPath, logger)
	if err != nil {
		return nil, err
	}
	defer func() { _ = input.Close() }()

	if input.rate == cfg.targetRate {
		return nil, fmt.Errorf("input already at target rate %d Hz", cfg.targetRate)
	}
	factor := float64(cfg.targetRate) / float64(input.rate)

	resamplers, err := createChannelResamplers(input.channels, cfg.settings, cfg.best, factor, logger)
	if err != nil {
		return nil, err
	}
	defer closeResamplers(resamplers)

	output, err := createWAVOutput(cfg.outputPath, cfg.targetRate, input.bitDepth, input.channels)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := output.Close(); err == nil {
			err = closeErr
		}
	}()

	buffers := newResampleBuffers(input.channels, input.bitDepth, cfg.chunk, factor, input.format)
	stats = &resampleStats{
		inputRate:  input.rate,
		outputRate: cfg.targetRate,
		channels:   input.channels,
		bitDepth:   input.bitDepth,
	}
	progress := newProgressTracker(input.totalSamples, logger)

	for {
		n, err := input.decoder.PCMBuffer(buffers.intBuffer)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read audio data: %w", err)
		}
		frames := n / input.channels
		last := frames == 0

		deinterleaveInto(buffers.intBuffer.Data[:n], buffers.channelBufs, input.channels, frames, buffers.invMaxVal)
		resampled, err := resampleChannelData(resamplers, factor, buffers.channelBufs, buffers.outputBufs, frames, last, cfg.parallel)
		if err != nil {
			return nil, err
		}

		outFrames := padChannels(resampled)
		written := interleaveInto(resampled, growInts(&buffers.outputIntBuf, outFrames*input.channels), buffers.maxVal)
		if err := output.WriteSamples(buffers.outputIntBuf[:written]); err != nil {
			return nil, fmt.Errorf("failed to write audio data: %w", err)
		}

		stats.inputSamples += int64(frames)
		stats.outputSamples += int64(outFrames)
		progress.reportIfNeeded(stats.inputSamples)

		if last {
			return stats, nil
		}
	}
}

func growInts(buf *[]int, n int) []int {
	if cap(*buf) < n {
		*buf = make([]int, n)
	}
	*buf = (*buf)[:n]
	return *buf
}

// getMaxValue returns the maximum sample value for the given bit depth.
func getMaxValue(bitDepth int) float64 {
	switch bitDepth {
	case bitsPerSample24:
		return maxInt24
	case bitsPerSample32:
		return maxInt32
	default:
		return maxInt16
	}
}

// deinterleaveInto converts interleaved int samples into per-channel buffers.
func deinterleaveInto(data []int, channelBufs [][]float32, numChannels, samplesPerChannel int, invMaxVal float64) {
	for i := range samplesPerChannel {
		base := i * numChannels
		for ch := range numChannels {
			channelBufs[ch][i] = float32(float64(data[base+ch]) * invMaxVal)
		}
	}
}

// interleaveInto converts per-channel float slices into dst, clamping to
// [-1, 1]. Returns the number of elements written.
func interleaveInto(channels [][]float32, dst []int, maxVal float64) int {
	if len(channels) == 0 || len(channels[0]) == 0 {
		return 0
	}

	numChannels := len(channels)
	samplesPerChannel := len(channels[0])
	for i := range samplesPerChannel {
		base := i * numChannels
		for ch := range numChannels {
			sample := max(-1.0, min(1.0, float64(channels[ch][i])))
			dst[base+ch] = int(sample * maxVal)
		}
	}
	return samplesPerChannel * numChannels
}
