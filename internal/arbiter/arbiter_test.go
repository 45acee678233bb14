package arbiter

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/UT07/keysense-app-sub002/internal/bus"
	"github.com/UT07/keysense-app-sub002/sdk/contracts"
)

// fakeSource is a scriptable InputSource. Stop flushes a NoteOff for any
// pitch marked held, mirroring what the real sources do.
type fakeSource struct {
	tag      contracts.SourceTag
	reg      *bus.Registry
	startErr error

	mu      sync.Mutex
	started bool
	held    []int
}

func newFakeSource(tag contracts.SourceTag) *fakeSource {
	return &fakeSource{tag: tag, reg: bus.New()}
}

func (s *fakeSource) Tag() contracts.SourceTag { return s.tag }

func (s *fakeSource) Start() error {
	if s.startErr != nil {
		return s.startErr
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) Stop() error {
	s.mu.Lock()
	held := s.held
	s.held = nil
	s.started = false
	s.mu.Unlock()
	for _, p := range held {
		s.reg.Publish(contracts.UnifiedInputEvent{
			Kind:        contracts.NoteOff,
			PitchNumber: p,
			TimestampMs: 999,
			Source:      s.tag,
		})
	}
	return nil
}

func (s *fakeSource) Subscribe(fn func(contracts.UnifiedInputEvent)) (cancel func()) {
	return s.reg.Subscribe(fn)
}

func (s *fakeSource) isStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *fakeSource) emit(kind contracts.EventKind, pitch int, tsMs int64) {
	s.reg.Publish(contracts.UnifiedInputEvent{
		Kind:        kind,
		PitchNumber: pitch,
		Velocity:    100,
		TimestampMs: tsMs,
		Source:      s.tag,
	})
}

func (s *fakeSource) hold(pitch int) {
	s.mu.Lock()
	s.held = append(s.held, pitch)
	s.mu.Unlock()
}

// fakeMidi adds the device-population side of the hardware source.
type fakeMidi struct {
	fakeSource
	mu        sync.Mutex
	connected bool
	onChange  func()
}

func newFakeMidi(connected bool) *fakeMidi {
	return &fakeMidi{
		fakeSource: fakeSource{tag: contracts.SourceMidi, reg: bus.New()},
		connected:  connected,
	}
}

func (m *fakeMidi) HasConnectedDevice() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *fakeMidi) OnDeviceChange(fn func()) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

func (m *fakeMidi) plug() {
	m.mu.Lock()
	m.connected = true
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type fakePermission struct{ granted bool }

func (p fakePermission) Granted() bool { return p.granted }

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

type harness struct {
	midi  *fakeMidi
	mic   *fakeSource
	touch *fakeSource
	arb   *Arbiter
	log   *eventLog
}

func newHarness(t *testing.T, cfg contracts.Config, midiConnected, micGranted bool) *harness {
	t.Helper()
	h := &harness{
		midi:  newFakeMidi(midiConnected),
		mic:   newFakeSource(contracts.SourceMic),
		touch: newFakeSource(contracts.SourceTouch),
		log:   &eventLog{},
	}
	h.arb = New(cfg, h.midi, h.mic, h.touch, fakePermission{granted: micGranted}, nil)
	h.arb.Subscribe(h.log.add)
	return h
}

func TestAutoPriority(t *testing.T) {
	cases := []struct {
		name          string
		midiConnected bool
		micGranted    bool
		want          contracts.SourceTag
	}{
		{"midi wins when connected", true, true, contracts.SourceMidi},
		{"mic when no midi and permitted", false, true, contracts.SourceMic},
		{"touch as last resort", false, false, contracts.SourceTouch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, contracts.DefaultConfig(), tc.midiConnected, tc.micGranted)
			if err := h.arb.Start(); err != nil {
				t.Fatalf("Start: %v", err)
			}
			if got := h.arb.ActiveSource(); got != tc.want {
				t.Fatalf("active source %v, want %v", got, tc.want)
			}
		})
	}
}

func TestForcedModeFallsBackToTouch(t *testing.T) {
	cfg := contracts.DefaultConfig()
	cfg.PreferredMethod = contracts.MethodMidi

	h := newHarness(t, cfg, false, false)
	h.midi.startErr = errors.New("no devices")
	if err := h.arb.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := h.arb.ActiveSource(); got != contracts.SourceTouch {
		t.Fatalf("active source %v, want touch fallback", got)
	}
	if !h.touch.isStarted() {
		t.Fatal("touch source never started")
	}
}

func TestForcedMicWithoutPermission(t *testing.T) {
	cfg := contracts.DefaultConfig()
	cfg.PreferredMethod = contracts.MethodMic

	h := newHarness(t, cfg, false, false)
	if err := h.arb.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Arbitration never prompts; denied permission skips the mic entirely.
	if h.mic.isStarted() {
		t.Fatal("mic started without permission")
	}
	if got := h.arb.ActiveSource(); got != contracts.SourceTouch {
		t.Fatalf("active source %v, want touch", got)
	}
}

func TestLatencyCompensation(t *testing.T) {
	cfg := contracts.DefaultConfig() // mic 100ms, touch 20ms

	for _, tc := range []struct {
		method contracts.InputMethod
		emit   func(h *harness)
		wantTs int64
	}{
		{contracts.MethodMidi, func(h *harness) { h.midi.emit(contracts.NoteOn, 60, 1000) }, 1000},
		{contracts.MethodMic, func(h *harness) { h.mic.emit(contracts.NoteOn, 60, 1000) }, 900},
		{contracts.MethodTouch, func(h *harness) { h.touch.emit(contracts.NoteOn, 60, 1000) }, 980},
	} {
		t.Run(string(tc.method), func(t *testing.T) {
			c := cfg
			c.PreferredMethod = tc.method
			h := newHarness(t, c, true, true)
			if err := h.arb.Start(); err != nil {
				t.Fatalf("Start: %v", err)
			}
			tc.emit(h)
			events := h.log.all()
			if len(events) != 1 {
				t.Fatalf("got %d events, want 1", len(events))
			}
			if events[0].TimestampMs != tc.wantTs {
				t.Fatalf("compensated timestamp %d, want %d", events[0].TimestampMs, tc.wantTs)
			}
		})
	}
}

func TestTimingProfile(t *testing.T) {
	h := newHarness(t, contracts.DefaultConfig(), false, false)

	if mult, comp := h.arb.TimingProfile(contracts.SourceMidi); mult != 1.0 || comp != 0 {
		t.Fatalf("midi profile (%v, %v), want (1.0, 0)", mult, comp)
	}
	if mult, comp := h.arb.TimingProfile(contracts.SourceMic); mult != 1.5 || comp != 100 {
		t.Fatalf("mic profile (%v, %v), want (1.5, 100)", mult, comp)
	}
	if mult, comp := h.arb.TimingProfile(contracts.SourceTouch); mult != 1.0 || comp != 20 {
		t.Fatalf("touch profile (%v, %v), want (1.0, 20)", mult, comp)
	}
}

func TestSwitchMethodStaysStarted(t *testing.T) {
	h := newHarness(t, contracts.DefaultConfig(), true, true)
	if err := h.arb.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h.arb.ActiveSource() != contracts.SourceMidi {
		t.Fatalf("active %v, want midi before switch", h.arb.ActiveSource())
	}

	if err := h.arb.SwitchMethod(contracts.MethodTouch); err != nil {
		t.Fatalf("SwitchMethod: %v", err)
	}
	if !h.arb.Started() {
		t.Fatal("arbiter stopped across a switch")
	}
	if h.arb.ActiveSource() != contracts.SourceTouch {
		t.Fatalf("active %v, want touch after switch", h.arb.ActiveSource())
	}
	if h.midi.isStarted() {
		t.Fatal("old source still running after switch")
	}
}

func TestSwitchForwardsFlushThenDropsStaleEvents(t *testing.T) {
	h := newHarness(t, contracts.DefaultConfig(), true, true)
	if err := h.arb.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.midi.emit(contracts.NoteOn, 60, 100)
	h.midi.hold(60)
	if err := h.arb.SwitchMethod(contracts.MethodTouch); err != nil {
		t.Fatalf("SwitchMethod: %v", err)
	}
	// Anything the superseded source emits now must be discarded.
	h.midi.emit(contracts.NoteOn, 72, 200)

	events := h.log.all()
	if len(events) != 2 {
		t.Fatalf("got %d events, want NoteOn + flush NoteOff: %+v", len(events), events)
	}
	if events[1].Kind != contracts.NoteOff || events[1].PitchNumber != 60 {
		t.Fatalf("teardown flush not forwarded: %+v", events[1])
	}
}

func TestStopDropsSubsequentEvents(t *testing.T) {
	h := newHarness(t, contracts.DefaultConfig(), true, true)
	if err := h.arb.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.arb.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if h.arb.Started() {
		t.Fatal("Started() true after Stop")
	}

	h.midi.emit(contracts.NoteOn, 60, 100)
	if events := h.log.all(); len(events) != 0 {
		t.Fatalf("events forwarded after Stop: %+v", events)
	}

	if err := h.arb.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestDeviceChangeReArbitrates(t *testing.T) {
	h := newHarness(t, contracts.DefaultConfig(), false, false)
	if err := h.arb.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h.arb.ActiveSource() != contracts.SourceTouch {
		t.Fatalf("active %v, want touch before the keyboard appears", h.arb.ActiveSource())
	}

	h.midi.plug()

	// The change notification is debounced before auto mode reselects.
	deadline := time.Now().Add(2 * time.Second)
	for h.arb.ActiveSource() != contracts.SourceMidi {
		if time.Now().After(deadline) {
			t.Fatalf("arbiter never promoted the plugged keyboard, active %v", h.arb.ActiveSource())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !h.midi.isStarted() {
		t.Fatal("midi source not started after promotion")
	}
}

func TestForcedModeIgnoresDeviceChange(t *testing.T) {
	cfg := contracts.DefaultConfig()
	cfg.PreferredMethod = contracts.MethodTouch

	h := newHarness(t, cfg, false, false)
	if err := h.arb.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h.midi.plug()
	time.Sleep(300 * time.Millisecond)
	if h.arb.ActiveSource() != contracts.SourceTouch {
		t.Fatalf("forced touch mode abandoned on device change, active %v", h.arb.ActiveSource())
	}
}
