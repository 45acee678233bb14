package source

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/UT07/keysense-app-sub002/sdk/contracts"
)

// fakeFeed is an in-memory SampleSource the tests push buffers through.
type fakeFeed struct {
	rate     int
	startErr error

	mu     sync.Mutex
	starts int
	stops  int
	fn     func(contracts.SampleBuffer)
}

func (f *fakeFeed) SampleRate() int { return f.rate }

func (f *fakeFeed) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	return nil
}

func (f *fakeFeed) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeFeed) Subscribe(fn func(contracts.SampleBuffer)) (cancel func()) {
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.fn = nil
		f.mu.Unlock()
	}
}

func (f *fakeFeed) push(b contracts.SampleBuffer) {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		fn(b)
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []contracts.UnifiedInputEvent
}

func (l *eventLog) add(ev contracts.UnifiedInputEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) all() []contracts.UnifiedInputEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]contracts.UnifiedInputEvent(nil), l.events...)
}

func sineAt(freq float64, rate, n int) []float64 {
	buf := make([]float64, n)
	for i := range buf {
		buf[i] = 0.6 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return buf
}

func TestMicrophoneMonoDetectsSustainedTone(t *testing.T) {
	cfg := contracts.DefaultConfig()
	feed := &fakeFeed{rate: cfg.SampleRate}
	mic := NewMicrophone(cfg, feed, nil, nil)

	log := &eventLog{}
	mic.Subscribe(log.add)
	if err := mic.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Buffers arrive every 46ms (2048 samples at 44.1kHz). The ambient
	// onset hold is 50ms, so the third buffer confirms the note.
	buf := sineAt(440, cfg.SampleRate, cfg.BufferSize)
	for _, ts := range []int64{1, 47, 93} {
		feed.push(contracts.SampleBuffer{Samples: buf, TimestampMs: ts})
	}

	events := log.all()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 NoteOn: %+v", len(events), events)
	}
	ev := events[0]
	if ev.Kind != contracts.NoteOn || ev.PitchNumber != 69 {
		t.Fatalf("got %+v, want NoteOn pitch 69", ev)
	}
	if ev.Velocity != cfg.MicVelocity {
		t.Fatalf("velocity %d, want configured default %d", ev.Velocity, cfg.MicVelocity)
	}
	if ev.Source != contracts.SourceMic {
		t.Fatalf("source %v, want SourceMic", ev.Source)
	}
	if ev.TimestampMs != 93 {
		t.Fatalf("NoteOn at %dms, want the confirming buffer at 93", ev.TimestampMs)
	}
}

func TestMicrophoneStopFlushesActiveNote(t *testing.T) {
	cfg := contracts.DefaultConfig()
	feed := &fakeFeed{rate: cfg.SampleRate}
	mic := NewMicrophone(cfg, feed, nil, nil)
	mic.nowMs = func() int64 { return 200 }

	log := &eventLog{}
	mic.Subscribe(log.add)
	if err := mic.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	buf := sineAt(440, cfg.SampleRate, cfg.BufferSize)
	for _, ts := range []int64{1, 47, 93} {
		feed.push(contracts.SampleBuffer{Samples: buf, TimestampMs: ts})
	}
	if err := mic.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	events := log.all()
	if len(events) != 2 {
		t.Fatalf("got %d events, want NoteOn then flush NoteOff: %+v", len(events), events)
	}
	off := events[1]
	if off.Kind != contracts.NoteOff || off.PitchNumber != 69 || off.TimestampMs != 200 {
		t.Fatalf("flush event %+v, want NoteOff pitch 69 at 200ms", off)
	}
	if feed.stops != 1 {
		t.Fatalf("feed stopped %d times, want 1", feed.stops)
	}

	// Stop again is a no-op.
	if err := mic.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if feed.stops != 1 || len(log.all()) != 2 {
		t.Fatal("Stop is not idempotent")
	}
}

func TestMicrophoneWithoutFeed(t *testing.T) {
	mic := NewMicrophone(contracts.DefaultConfig(), nil, nil, nil)
	if err := mic.Start(); !errors.Is(err, ErrNoSampleSource) {
		t.Fatalf("err = %v, want ErrNoSampleSource", err)
	}
}

func TestMicrophoneStartPropagatesFeedError(t *testing.T) {
	feed := &fakeFeed{rate: 44100, startErr: errors.New("device busy")}
	mic := NewMicrophone(contracts.DefaultConfig(), feed, nil, nil)
	if err := mic.Start(); err == nil {
		t.Fatal("Start succeeded with a failing feed")
	}
}

func TestMicrophonePolyphonicFallback(t *testing.T) {
	cfg := contracts.DefaultConfig()
	cfg.PreferPolyphonic = true
	feed := &fakeFeed{rate: cfg.SampleRate}

	// No model available: degrade to the monophonic pipeline.
	mic := NewMicrophone(cfg, feed, nil, nil)
	if mic.Polyphonic() {
		t.Fatal("polyphonic pipeline built without a model")
	}
}

// chordModel reports a fixed set of sounding pitches on every window.
type chordModel struct {
	rate    int
	window  int
	pitches []int
}

func (m *chordModel) SampleRate() int { return m.rate }
func (m *chordModel) WindowSize() int { return m.window }

func (m *chordModel) Infer(window []float64) (contracts.ModelOutput, error) {
	out := contracts.ModelOutput{
		Active: make([]float64, 88),
		Onset:  make([]float64, 88),
	}
	for _, p := range m.pitches {
		out.Active[p-21] = 0.9
		out.Onset[p-21] = 0.9
	}
	return out, nil
}

func TestMicrophonePolyphonicEndToEnd(t *testing.T) {
	cfg := contracts.DefaultConfig()
	cfg.PreferPolyphonic = true
	feed := &fakeFeed{rate: cfg.SampleRate}
	model := &chordModel{rate: cfg.SampleRate, window: 512, pitches: []int{60, 64}}

	mic := NewMicrophone(cfg, feed, model, nil)
	mic.nowMs = func() int64 { return 500 }
	if !mic.Polyphonic() {
		t.Fatal("polyphonic pipeline not selected")
	}

	log := &eventLog{}
	mic.Subscribe(log.add)
	if err := mic.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	feed.push(contracts.SampleBuffer{Samples: make([]float64, 512), TimestampMs: 10})
	// Stop waits for the in-flight inference before flushing, so the
	// NoteOns are guaranteed to precede the flush NoteOffs.
	if err := mic.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	events := log.all()
	if len(events) != 4 {
		t.Fatalf("got %d events, want 2 NoteOn + 2 flush NoteOff: %+v", len(events), events)
	}
	for i, want := range []struct {
		kind  contracts.EventKind
		pitch int
	}{
		{contracts.NoteOn, 60},
		{contracts.NoteOn, 64},
		{contracts.NoteOff, 60},
		{contracts.NoteOff, 64},
	} {
		if events[i].Kind != want.kind || events[i].PitchNumber != want.pitch {
			t.Fatalf("event %d = %+v, want %v pitch %d", i, events[i], want.kind, want.pitch)
		}
	}
}
