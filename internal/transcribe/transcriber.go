// Package transcribe adapts a pre-trained multi-pitch model into the
// streaming detection pipeline: it accumulates audio into model-rate
// windows, runs inference off the audio callback, and converts activations
// into polyphonic detection frames.
package transcribe

import (
	"errors"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/UT07/keysense-app-sub002/internal/pitch"
	"github.com/UT07/keysense-app-sub002/internal/track"
	"github.com/UT07/keysense-app-sub002/sdk/contracts"
)

// Errors surfaced at construction. Anything failing here is the
// source-unavailable condition that makes the microphone source fall back
// to the monophonic pipeline.
var (
	ErrModelUnavailable = errors.New("transcription model unavailable")
	ErrBadModelGeometry = errors.New("transcription model reports invalid geometry")
)

// Config tunes how model activations become notes.
type Config struct {
	SourceSampleRate int     // Rate of incoming buffers.
	NoteThreshold    float64 // Activation needed for a bin to become a note.
	OnsetThreshold   float64 // Onset probability needed for the onset flag.
	MaxPolyphony     int     // Cap on simultaneous notes per frame.
}

func (c Config) withDefaults() Config {
	if c.SourceSampleRate <= 0 {
		c.SourceSampleRate = 44100
	}
	if c.NoteThreshold <= 0 {
		c.NoteThreshold = 0.5
	}
	if c.OnsetThreshold <= 0 {
		c.OnsetThreshold = 0.5
	}
	if c.MaxPolyphony <= 0 {
		c.MaxPolyphony = 6
	}
	return c
}

// Transcriber feeds fixed windows of resampled audio through the model.
//
// Inference cost can exceed one audio buffer period, so each full window is
// dispatched asynchronously and a try-acquire guard keeps at most one
// inference in flight. While one is outstanding, incoming buffers are
// dropped rather than queued: the backlog, and therefore the latency drift,
// stays bounded.
type Transcriber struct {
	cfg   Config
	model contracts.TranscriptionModel
	log   *zap.Logger
	emit  func(track.Frame)

	step float64 // Input samples advanced per output sample.

	mu      sync.Mutex // Guards accumulation state.
	window  []float64  // Model-rate accumulation buffer.
	scratch []float64  // Copy handed to the inference goroutine.
	fill    int
	pos     float64 // Fractional read position into the current buffer.
	prev    float64 // Last sample of the previous buffer.
	hasPrev bool

	busy atomic.Bool // Single-in-flight inference guard.
	wg   sync.WaitGroup
}

// New builds a transcriber around model. Frames are delivered through emit
// on the inference goroutine; single-in-flight dispatch guarantees those
// deliveries never interleave.
func New(cfg Config, model contracts.TranscriptionModel, log *zap.Logger, emit func(track.Frame)) (*Transcriber, error) {
	if model == nil {
		return nil, ErrModelUnavailable
	}
	if model.SampleRate() <= 0 || model.WindowSize() <= 0 {
		return nil, ErrBadModelGeometry
	}
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Transcriber{
		cfg:     cfg,
		model:   model,
		log:     log,
		emit:    emit,
		step:    float64(cfg.SourceSampleRate) / float64(model.SampleRate()),
		window:  make([]float64, model.WindowSize()),
		scratch: make([]float64, model.WindowSize()),
	}, nil
}

// Process consumes one source-rate buffer. Partial windows produce no
// output; a full window dispatches exactly one inference. Buffers arriving
// while an inference is outstanding are dropped.
func (t *Transcriber) Process(buf []float64, tsMs int64) {
	if len(buf) == 0 || t.busy.Load() {
		return
	}

	t.mu.Lock()
	filled := t.accumulate(buf)
	if !filled {
		t.mu.Unlock()
		return
	}
	copy(t.scratch, t.window)
	t.resetAccumulation()
	t.mu.Unlock()

	if !t.busy.CompareAndSwap(false, true) {
		return
	}
	t.wg.Add(1)
	go t.infer(t.scratch, tsMs)
}

// accumulate linear-interpolation resamples buf into the window. Returns
// true once the window is full; any remainder of buf is discarded, matching
// the drop-based backpressure policy.
func (t *Transcriber) accumulate(buf []float64) bool {
	pos := t.pos
	for t.fill < len(t.window) {
		fi := math.Floor(pos)
		i := int(fi)
		frac := pos - fi
		if i >= len(buf) || (i == len(buf)-1 && frac > 0) {
			break
		}
		var s0 float64
		switch {
		case i >= 0:
			s0 = buf[i]
		case t.hasPrev:
			s0 = t.prev
		default:
			pos = 0
			continue
		}
		v := s0
		if frac > 0 {
			v = s0 + frac*(buf[i+1]-s0)
		}
		t.window[t.fill] = v
		t.fill++
		pos += t.step
	}
	t.pos = pos - float64(len(buf))
	t.prev = buf[len(buf)-1]
	t.hasPrev = true
	return t.fill == len(t.window)
}

func (t *Transcriber) resetAccumulation() {
	t.fill = 0
	t.pos = 0
	t.hasPrev = false
}

// Reset discards any partially accumulated window.
func (t *Transcriber) Reset() {
	t.mu.Lock()
	t.resetAccumulation()
	t.mu.Unlock()
}

// Wait blocks until any in-flight inference has finished. Used on shutdown.
func (t *Transcriber) Wait() {
	t.wg.Wait()
}

// infer runs one model call and emits the resulting frame. A failed window
// is swallowed so the next one is unaffected; the guard is always released.
func (t *Transcriber) infer(window []float64, tsMs int64) {
	defer t.wg.Done()
	defer t.busy.Store(false)

	out, err := t.model.Infer(window)
	if err != nil {
		t.log.Debug("inference failed, skipping window", zap.Error(err))
		return
	}
	frame := t.frameFromOutput(out, tsMs)
	t.emit(frame)
}

// frameFromOutput thresholds the activation vectors into a detection frame
// and enforces the polyphony cap by keeping the highest-confidence bins.
func (t *Transcriber) frameFromOutput(out contracts.ModelOutput, tsMs int64) track.Frame {
	n := len(out.Active)
	if len(out.Onset) < n {
		n = len(out.Onset)
	}
	notes := make([]track.FrameNote, 0, t.cfg.MaxPolyphony)
	for i := 0; i < n; i++ {
		if out.Active[i] < t.cfg.NoteThreshold {
			continue
		}
		p := pitch.MinPitch + i
		if !pitch.InPianoRange(p) {
			break
		}
		notes = append(notes, track.FrameNote{
			PitchNumber: p,
			Confidence:  out.Active[i],
			Onset:       out.Onset[i] >= t.cfg.OnsetThreshold,
		})
	}

	if len(notes) > t.cfg.MaxPolyphony {
		// Inference noise near the threshold produces ghost bins; keeping
		// only the strongest bounds downstream complexity.
		sort.SliceStable(notes, func(a, b int) bool {
			return notes[a].Confidence > notes[b].Confidence
		})
		notes = notes[:t.cfg.MaxPolyphony]
	}
	sort.Slice(notes, func(a, b int) bool {
		return notes[a].PitchNumber < notes[b].PitchNumber
	})

	return track.Frame{Notes: notes, TimestampMs: tsMs}
}
