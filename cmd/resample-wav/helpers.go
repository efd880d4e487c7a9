package main

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	resampler "github.com/tphakala/go-resample-sandbox"
)

// wavInputInfo holds validated input file information.
type wavInputInfo struct {
	file         *os.File
	decoder      *wav.Decoder
	rate         int
	channels     int
	bitDepth     int
	totalSamples int64
	format       *audio.Format
}

// openWAVInput opens and validates a WAV file, returning format information.
func openWAVInput(path string, logger *slog.Logger) (*wavInputInfo, error) {
	inputFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}

	decoder := wav.NewDecoder(inputFile)
	if !decoder.IsValidFile() {
		_ = inputFile.Close()
		return nil, fmt.Errorf("invalid WAV file: %s", path)
	}

	format := decoder.Format()
	bitDepth := int(decoder.BitDepth)
	logger.Debug("input format", "rate", format.SampleRate, "channels", format.NumChannels, "bits", bitDepth)

	duration, err := decoder.Duration()
	if err != nil {
		duration = 0
	}

	return &wavInputInfo{
		file:         inputFile,
		decoder:      decoder,
		rate:         format.SampleRate,
		channels:     format.NumChannels,
		bitDepth:     bitDepth,
		totalSamples: int64(duration.Seconds() * float64(format.SampleRate)),
		format:       format,
	}, nil
}

// Close closes the input file.
func (w *wavInputInfo) Close() error {
	return w.file.Close()
}

// createChannelResamplers creates one constant-rate converter per channel.
func createChannelResamplers(
	numChannels int,
	settings resampler.Settings,
	best bool,
	factor float64,
	logger *slog.Logger,
) ([]*resampler.Resampler, error) {
	resamplers := make([]*resampler.Resampler, numChannels)
	for ch := range numChannels {
		r, err := resampler.New(settings, best, factor, factor, resampler.WithLogger(logger))
		if err != nil {
			closeResamplers(resamplers[:ch])
			return nil, fmt.Errorf("failed to create resampler for channel %d: %w", ch, err)
		}
		resamplers[ch] = r
	}
	return resamplers, nil
}

func closeResamplers(resamplers []*resampler.Resampler) {
	for _, r := range resamplers {
		_ = r.Close()
	}
}

// wavOutputWriter wraps the output file and its encoder.
type wavOutputWriter struct {
	file    *os.File
	encoder *wav.Encoder
	format  *audio.Format
}

// createWAVOutput creates the output file and a PCM encoder.
func createWAVOutput(path string, sampleRate, bitDepth, channels int) (*wavOutputWriter, error) {
	outputFile, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	return &wavOutputWriter{
		file:    outputFile,
		encoder: wav.NewEncoder(outputFile, sampleRate, bitDepth, channels, wavFormatPCM),
		format:  &audio.Format{NumChannels: channels, SampleRate: sampleRate},
	}, nil
}

// WriteSamples writes interleaved integer samples.
func (w *wavOutputWriter) WriteSamples(samples []int) error {
	if len(samples) == 0 {
		return nil
	}
	return w.encoder.Write(&audio.IntBuffer{
		Data:           samples,
		Format:         w.format,
		SourceBitDepth: w.encoder.BitDepth,
	})
}

// Close finalizes the WAV header and closes the file.
func (w *wavOutputWriter) Close() error {
	if err := w.encoder.Close(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}

// resampleBuffers holds preallocated buffers for one read chunk.
type resampleBuffers struct {
	intBuffer    *audio.IntBuffer
	channelBufs  [][]float32
	outputBufs   [][]float32
	outputIntBuf []int
	invMaxVal    float64
	maxVal       float64
}

// newResampleBuffers preallocates all processing buffers for chunk frames.
func newResampleBuffers(channels, bitDepth, chunk int, factor float64, format *audio.Format) *resampleBuffers {
	estimatedOutput := int(float64(chunk)*factor) + outputBufferMargin

	channelBufs := make([][]float32, channels)
	outputBufs := make([][]float32, channels)
	for ch := range channels {
		channelBufs[ch] = make([]float32, chunk)
		outputBufs[ch] = make([]float32, estimatedOutput)
	}

	maxVal := getMaxValue(bitDepth)
	return &resampleBuffers{
		intBuffer: &audio.IntBuffer{
			Data:   make([]int, chunk*channels),
			Format: format,
		},
		channelBufs:  channelBufs,
		outputBufs:   outputBufs,
		outputIntBuf: make([]int, estimatedOutput*channels),
		invMaxVal:    1.0 / maxVal,
		maxVal:       maxVal,
	}
}

// progressTracker handles progress reporting.
type progressTracker struct {
	totalSamples int64
	lastProgress int
	logger       *slog.Logger
}

func newProgressTracker(totalSamples int64, logger *slog.Logger) *progressTracker {
	return &progressTracker{totalSamples: totalSamples, logger: logger}
}

// reportIfNeeded logs progress each time another interval is crossed.
func (p *progressTracker) reportIfNeeded(currentSamples int64) {
	if p.totalSamples == 0 {
		return
	}

	progress := int(float64(currentSamples) / float64(p.totalSamples) * percentScale)
	if progress >= p.lastProgress+progressInterval {
		p.logger.Debug("progress", "percent", progress)
		p.lastProgress = progress
	}
}

// processChannel feeds all of in through r. When last is set it keeps
// draining until the converter produces nothing more.
func processChannel(r *resampler.Resampler, factor float64, in []float32, last bool, buf []float32) ([]float32, error) {
	var out []float32
	for {
		consumed, produced, err := r.Process(factor, in, last, buf)
		if err != nil {
			return nil, err
		}
		out = append(out, buf[:produced]...)
		in = in[consumed:]

		switch {
		case last && len(in) == 0 && produced == 0:
			return out, nil
		case !last && len(in) == 0:
			return out, nil
		case consumed == 0 && produced == 0:
			return nil, resampler.ErrStalled
		}
	}
}

// resampleChannelData runs each channel through its converter. Converters
// share nothing, so channels may run concurrently.
func resampleChannelData(
	resamplers []*resampler.Resampler,
	factor float64,
	channelBufs, outputBufs [][]float32,
	numSamples int,
	last, parallel bool,
) ([][]float32, error) {
	if parallel && len(resamplers) > 1 {
		return resampleParallel(resamplers, factor, channelBufs, outputBufs, numSamples, last)
	}
	return resampleSequential(resamplers, factor, channelBufs, outputBufs, numSamples, last)
}

func resampleParallel(
	resamplers []*resampler.Resampler,
	factor float64,
	channelBufs, outputBufs [][]float32,
	numSamples int,
	last bool,
) ([][]float32, error) {
	resampled := make([][]float32, len(resamplers))
	var wg sync.WaitGroup
	var processErr error
	var errMu sync.Mutex

	for ch := range resamplers {
		wg.Add(1)
		go func(channel int) {
			defer wg.Done()
			out, err := processChannel(resamplers[channel], factor, channelBufs[channel][:numSamples], last, outputBufs[channel])
			if err != nil {
				errMu.Lock()
				if processErr == nil {
					processErr = fmt.Errorf("resampling failed on channel %d: %w", channel, err)
				}
				errMu.Unlock()
				return
			}
			resampled[channel] = out
		}(ch)
	}
	wg.Wait()

	if processErr != nil {
		return nil, processErr
	}
	return resampled, nil
}

func resampleSequential(
	resamplers []*resampler.Resampler,
	factor float64,
	channelBufs, outputBufs [][]float32,
	numSamples int,
	last bool,
) ([][]float32, error) {
	resampled := make([][]float32, len(resamplers))
	for ch, r := range resamplers {
		out, err := processChannel(r, factor, channelBufs[ch][:numSamples], last, outputBufs[ch])
		if err != nil {
			return nil, fmt.Errorf("resampling failed on channel %d: %w", ch, err)
		}
		resampled[ch] = out
	}
	return resampled, nil
}

// padChannels extends shorter channels with silence to the longest length.
func padChannels(channels [][]float32) int {
	longest := 0
	for _, ch := range channels {
		longest = max(longest, len(ch))
	}
	for i, ch := range channels {
		if len(ch) < longest {
			padded := make([]float32, longest)
			copy(padded, ch)
			channels[i] = padded
		}
	}
	return longest
}
