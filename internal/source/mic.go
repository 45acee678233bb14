// Package source implements the three input legs, microphone, hardware MIDI
// and touch, behind the shared InputSource contract.
package source

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/UT07/keysense-app-sub002/internal/bus"
	"github.com/UT07/keysense-app-sub002/internal/pitch"
	"github.com/UT07/keysense-app-sub002/internal/track"
	"github.com/UT07/keysense-app-sub002/internal/transcribe"
	"github.com/UT07/keysense-app-sub002/sdk/contracts"
)

// ErrNoSampleSource is returned when the microphone source is started
// without a capture feed.
var ErrNoSampleSource = errors.New("no sample source configured")

// micPipeline is the detection strategy behind the microphone source. The
// concrete variant is chosen once at construction and then treated as
// opaque.
type micPipeline interface {
	process(b contracts.SampleBuffer)
	flush(tsMs int64)
}

// Microphone converts a raw sample-buffer feed into unified note events. It
// composes either the monophonic pipeline (YIN estimator into the note
// tracker) or the polyphonic one (transcriber into the multi-note tracker);
// when the polyphonic pipeline cannot be built, it degrades to monophonic
// instead of failing.
type Microphone struct {
	log      *zap.Logger
	feed     contracts.SampleSource
	reg      *bus.Registry
	pipe     micPipeline
	velocity int
	nowMs    func() int64

	mu      sync.Mutex
	started bool
	cancel  func()
}

// NewMicrophone builds the microphone source. The ambient preset (relaxed
// voicing threshold, longer holds) is applied on top of cfg because the
// acoustic path from speaker to microphone is noisier than direct input.
func NewMicrophone(cfg contracts.Config, feed contracts.SampleSource, model contracts.TranscriptionModel, log *zap.Logger) *Microphone {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Microphone{
		log:      log,
		feed:     feed,
		reg:      bus.New(),
		velocity: cfg.MicVelocity,
		nowMs:    func() int64 { return time.Now().UnixMilli() },
	}

	sampleRate := cfg.SampleRate
	if feed != nil && feed.SampleRate() > 0 {
		sampleRate = feed.SampleRate()
	}

	if cfg.PreferPolyphonic {
		pipe, err := newPolyPipeline(cfg, sampleRate, model, log, m.publish)
		if err != nil {
			log.Warn("polyphonic pipeline unavailable, falling back to monophonic", zap.Error(err))
		} else {
			m.pipe = pipe
			return m
		}
	}
	m.pipe = newMonoPipeline(cfg, sampleRate, m.publish)
	return m
}

// Tag reports the source tag carried by emitted events.
func (m *Microphone) Tag() contracts.SourceTag { return contracts.SourceMic }

// Polyphonic reports which pipeline variant was constructed.
func (m *Microphone) Polyphonic() bool {
	_, ok := m.pipe.(*polyPipeline)
	return ok
}

// Subscribe registers fn for event delivery.
func (m *Microphone) Subscribe(fn func(contracts.UnifiedInputEvent)) (cancel func()) {
	return m.reg.Subscribe(fn)
}

// Start begins consuming the sample feed.
func (m *Microphone) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}
	if m.feed == nil {
		return ErrNoSampleSource
	}
	if err := m.feed.Start(); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	m.cancel = m.feed.Subscribe(m.pipe.process)
	m.started = true
	m.log.Info("microphone source started", zap.Bool("polyphonic", m.Polyphonic()))
	return nil
}

// Stop tears down the feed subscription and flushes any sounding note as
// NoteOff. Idempotent.
func (m *Microphone) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}
	m.started = false
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	err := m.feed.Stop()
	m.pipe.flush(m.nowMs())
	m.log.Info("microphone source stopped")
	return err
}

// publish converts a tracker event into the unified shape. Acoustic
// detection carries no velocity, so the configured default is used.
func (m *Microphone) publish(ev track.Event) {
	m.reg.Publish(contracts.UnifiedInputEvent{
		Kind:        ev.Kind,
		PitchNumber: ev.PitchNumber,
		Velocity:    m.velocity,
		TimestampMs: ev.TimestampMs,
		Source:      contracts.SourceMic,
	})
}

// monoPipeline: YIN estimator feeding the monophonic tracker.
type monoPipeline struct {
	mu  sync.Mutex
	est *pitch.Estimator
	trk *track.Tracker
}

func newMonoPipeline(cfg contracts.Config, sampleRate int, emit func(track.Event)) *monoPipeline {
	return &monoPipeline{
		est: pitch.NewEstimator(pitch.EstimatorConfig{
			SampleRate:     sampleRate,
			WindowSize:     cfg.BufferSize,
			Threshold:      cfg.AmbientYinThreshold,
			MinConfidence:  cfg.AmbientMinConfidence,
			MinFrequencyHz: cfg.MinFrequencyHz,
			MaxFrequencyHz: cfg.MaxFrequencyHz,
		}),
		trk: track.NewTracker(track.Config{
			OnsetHoldMs:   cfg.AmbientOnsetHoldMs,
			ReleaseHoldMs: cfg.AmbientReleaseHoldMs,
		}, emit),
	}
}

func (p *monoPipeline) process(b contracts.SampleBuffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trk.Process(p.est.Detect(b.Samples, b.TimestampMs))
}

func (p *monoPipeline) flush(tsMs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trk.Reset(tsMs)
}

// polyPipeline: transcriber feeding the multi-note tracker. Frames arrive on
// the inference goroutine; the mutex keeps tracker access serialized against
// flush.
type polyPipeline struct {
	mu    sync.Mutex
	trans *transcribe.Transcriber
	multi *track.MultiTracker
}

func newPolyPipeline(cfg contracts.Config, sampleRate int, model contracts.TranscriptionModel, log *zap.Logger, emit func(track.Event)) (*polyPipeline, error) {
	p := &polyPipeline{}
	p.multi = track.NewMultiTracker(track.MultiConfig{
		ReleaseHoldMs: cfg.PolyReleaseHoldMs,
	}, emit)

	trans, err := transcribe.New(transcribe.Config{
		SourceSampleRate: sampleRate,
		NoteThreshold:    cfg.NoteThreshold,
		OnsetThreshold:   cfg.OnsetThreshold,
		MaxPolyphony:     cfg.MaxPolyphony,
	}, model, log, p.onFrame)
	if err != nil {
		return nil, err
	}
	p.trans = trans
	return p, nil
}

func (p *polyPipeline) onFrame(f track.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.multi.Process(f)
}

func (p *polyPipeline) process(b contracts.SampleBuffer) {
	p.trans.Process(b.Samples, b.TimestampMs)
}

func (p *polyPipeline) flush(tsMs int64) {
	p.trans.Reset()
	p.trans.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.multi.Reset(tsMs)
}
