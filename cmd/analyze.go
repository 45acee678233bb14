package cmd

import (
	"fmt"
	"os"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"
	"github.com/spf13/cobra"

	"github.com/UT07/keysense-app-sub002/internal/logger"
	"github.com/UT07/keysense-app-sub002/internal/pitch"
	"github.com/UT07/keysense-app-sub002/internal/track"
	"github.com/UT07/keysense-app-sub002/internal/transcribe"
	"github.com/UT07/keysense-app-sub002/sdk/contracts"
)

var analyzePoly bool

func init() {
	analyzeCmd.Flags().BoolVar(&analyzePoly, "poly", false, "use the polyphonic pipeline")
	rootCmd.AddCommand(analyzeCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file.wav>",
	Short: "Run note detection offline over a WAV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.NewDevelopment(verbose)
		defer log.Sync()
		return analyze(args[0], analyzePoly)
	},
}

func analyze(path string, poly bool) error {
	cfg := contracts.DefaultConfig()

	samples, rate, err := readWAVMono(path)
	if err != nil {
		return err
	}
	if rate != cfg.SampleRate {
		r, err := dspresample.NewForRates(
			float64(rate),
			float64(cfg.SampleRate),
			dspresample.WithQuality(dspresample.QualityBest),
		)
		if err != nil {
			return fmt.Errorf("resampler: %w", err)
		}
		samples = r.Process(samples)
	}

	printEvent := func(ev track.Event) {
		fmt.Printf("%8dms  %-8s pitch=%-3d conf=%.2f\n",
			ev.TimestampMs, ev.Kind, ev.PitchNumber, ev.Confidence)
	}

	var feed func(buf []float64, tsMs int64)
	var flush func(tsMs int64)
	if poly {
		model, err := transcribe.NewSpectralModel()
		if err != nil {
			return err
		}
		multi := track.NewMultiTracker(track.MultiConfig{
			ReleaseHoldMs: cfg.PolyReleaseHoldMs,
		}, printEvent)
		trans, err := transcribe.New(transcribe.Config{
			SourceSampleRate: cfg.SampleRate,
			NoteThreshold:    cfg.NoteThreshold,
			OnsetThreshold:   cfg.OnsetThreshold,
			MaxPolyphony:     cfg.MaxPolyphony,
		}, model, nil, multi.Process)
		if err != nil {
			return err
		}
		feed = func(buf []float64, tsMs int64) {
			trans.Process(buf, tsMs)
			// Offline analysis is not latency-bound; drain each window
			// before feeding the next so nothing falls to the drop policy.
			trans.Wait()
		}
		flush = func(tsMs int64) {
			trans.Wait()
			multi.Reset(tsMs)
		}
	} else {
		est := pitch.NewEstimator(pitch.EstimatorConfig{
			SampleRate:     cfg.SampleRate,
			WindowSize:     cfg.BufferSize,
			Threshold:      cfg.YinThreshold,
			MinConfidence:  cfg.MinConfidence,
			MinFrequencyHz: cfg.MinFrequencyHz,
			MaxFrequencyHz: cfg.MaxFrequencyHz,
		})
		trk := track.NewTracker(track.Config{
			OnsetHoldMs:   cfg.OnsetHoldMs,
			ReleaseHoldMs: cfg.ReleaseHoldMs,
		}, printEvent)
		feed = func(buf []float64, tsMs int64) {
			trk.Process(est.Detect(buf, tsMs))
		}
		flush = trk.Reset
	}

	var tsMs int64
	for start := 0; start+cfg.BufferSize <= len(samples); start += cfg.BufferSize {
		tsMs = int64(start) * 1000 / int64(cfg.SampleRate)
		feed(samples[start:start+cfg.BufferSize], tsMs)
	}
	flush(tsMs)
	return nil
}

// readWAVMono decodes a WAV file, averaging channels down to mono and
// normalizing samples to -1..1.
func readWAVMono(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid wav file: %s", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, 0, fmt.Errorf("invalid wav buffer: %s", path)
	}
	return monoFloats(buf, dec.BitDepth), buf.Format.SampleRate, nil
}

// monoFloats averages an interleaved PCM buffer down to one channel,
// normalized to -1..1.
func monoFloats(buf *audio.Float32Buffer, bitDepth uint16) []float64 {
	ch := buf.Format.NumChannels
	frames := len(buf.Data) / ch
	scale := 1.0
	if bitDepth > 0 {
		scale = 1.0 / float64(int(1)<<(bitDepth-1))
	}
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < ch; c++ {
			sum += float64(buf.Data[i*ch+c])
		}
		out[i] = sum / float64(ch) * scale
	}
	return out
}
