// Package arbiter owns source selection: exactly one input source is live
// at a time, its events are forwarded with per-source latency compensation,
// and switching between sources is atomic with respect to event delivery.
package arbiter

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"
	"go.uber.org/zap"

	"github.com/UT07/keysense-app-sub002/internal/bus"
	"github.com/UT07/keysense-app-sub002/sdk/contracts"
)

// MidiInput is the hardware source as seen by arbitration: an input source
// that also knows its device population.
type MidiInput interface {
	contracts.InputSource
	HasConnectedDevice() bool
	OnDeviceChange(fn func())
}

// Timing multipliers handed to the scoring engine. The microphone pipeline
// adds detection latency and jitter, so its tolerance window is widened.
const (
	directTimingMultiplier = 1.0
	micTimingMultiplier    = 1.5
)

const deviceChangeDebounce = 150 * time.Millisecond

// Arbiter selects and wires one active input source. Priority in auto mode
// is hardware MIDI, then microphone (only when capture permission was
// already granted; arbitration never triggers a prompt), then touch. Forced
// modes bypass priority but still degrade to touch when the forced source
// cannot activate.
type Arbiter struct {
	log   *zap.Logger
	cfg   contracts.Config
	midi  MidiInput
	mic   contracts.InputSource
	touch contracts.InputSource
	perm  contracts.MicrophonePermission
	reg   *bus.Registry

	mu        sync.Mutex
	mode      contracts.InputMethod
	active    contracts.InputSource
	activeTag contracts.SourceTag
	unsub     func()
	started   bool

	// gen advances on every teardown; forwarding closures compare against
	// it lock-free, because flush events arrive while the switch holds mu.
	gen atomic.Uint64
}

// New builds an arbiter over the three sources. perm may be nil, which
// counts as permission denied.
func New(cfg contracts.Config, midi MidiInput, mic, touch contracts.InputSource, perm contracts.MicrophonePermission, log *zap.Logger) *Arbiter {
	if log == nil {
		log = zap.NewNop()
	}
	a := &Arbiter{
		log:   log,
		cfg:   cfg,
		midi:  midi,
		mic:   mic,
		touch: touch,
		perm:  perm,
		reg:   bus.New(),
		mode:  cfg.PreferredMethod,
	}
	if a.mode == "" {
		a.mode = contracts.MethodAuto
	}
	if midi != nil {
		// Plugging or unplugging a keyboard re-runs auto arbitration;
		// debounced because transports can report one physical change as
		// several notifications.
		deb := debounce.New(deviceChangeDebounce)
		midi.OnDeviceChange(func() { deb(a.reArbitrate) })
	}
	return a
}

// Subscribe registers fn for compensated event delivery and returns its
// disposer.
func (a *Arbiter) Subscribe(fn func(contracts.UnifiedInputEvent)) (cancel func()) {
	return a.reg.Subscribe(fn)
}

// Mode returns the current arbitration mode.
func (a *Arbiter) Mode() contracts.InputMethod {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// ActiveSource reports which source is currently wired.
func (a *Arbiter) ActiveSource() contracts.SourceTag {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activeTag
}

// Started reports whether the arbiter is capturing.
func (a *Arbiter) Started() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started
}

// TimingProfile exposes the scoring-tolerance multiplier and the fixed
// latency compensation for a source.
func (a *Arbiter) TimingProfile(tag contracts.SourceTag) (multiplier float64, compensationMs int64) {
	if tag == contracts.SourceMic {
		return micTimingMultiplier, a.compensation(tag)
	}
	return directTimingMultiplier, a.compensation(tag)
}

func (a *Arbiter) compensation(tag contracts.SourceTag) int64 {
	switch tag {
	case contracts.SourceMic:
		return a.cfg.MicLatencyMs
	case contracts.SourceTouch:
		return a.cfg.TouchLatencyMs
	}
	return 0
}

// Start activates the selected source and begins forwarding events.
func (a *Arbiter) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}
	a.started = true
	a.activateLocked()
	return nil
}

// Stop tears down the active source. The source flushes its sounding notes
// as NoteOff before the subscription is cut, so consumers end on a clean
// slate. Idempotent.
func (a *Arbiter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}
	a.teardownLocked()
	a.started = false
	a.active = nil
	return nil
}

// SwitchMethod changes the arbitration mode at runtime. The sequence
// stop, unsubscribe, reselect, resubscribe, restart runs under one lock:
// concurrent switches serialize, and no event from the old source is
// forwarded once its teardown finished.
func (a *Arbiter) SwitchMethod(m contracts.InputMethod) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mode = m
	if !a.started {
		return nil
	}
	a.teardownLocked()
	a.activateLocked()
	return nil
}

// teardownLocked stops and unwires the active source. Stop runs before the
// generation advances so the flush NoteOffs still reach subscribers.
func (a *Arbiter) teardownLocked() {
	if a.active != nil {
		if err := a.active.Stop(); err != nil {
			a.log.Warn("stopping active source", zap.Error(err))
		}
	}
	if a.unsub != nil {
		a.unsub()
		a.unsub = nil
	}
	a.gen.Add(1)
}

// activateLocked wires the best available source for the current mode,
// walking the fallback chain until one starts.
func (a *Arbiter) activateLocked() {
	for _, src := range a.candidatesLocked() {
		if src == nil {
			continue
		}
		if err := a.wireLocked(src); err != nil {
			a.log.Warn("source activation failed, degrading",
				zap.Stringer("source", src.Tag()), zap.Error(err))
			continue
		}
		a.log.Info("input source active", zap.Stringer("source", src.Tag()))
		return
	}
	a.active = nil
}

// candidatesLocked orders sources for the current mode. Auto priority is
// MIDI over mic over touch; forced modes fall back to touch only.
func (a *Arbiter) candidatesLocked() []contracts.InputSource {
	switch a.mode {
	case contracts.MethodMidi:
		return []contracts.InputSource{a.midi, a.touch}
	case contracts.MethodMic:
		return []contracts.InputSource{a.micIfPermitted(), a.touch}
	case contracts.MethodTouch:
		return []contracts.InputSource{a.touch}
	}
	var out []contracts.InputSource
	if a.midi != nil && a.midi.HasConnectedDevice() {
		out = append(out, a.midi)
	}
	if m := a.micIfPermitted(); m != nil {
		out = append(out, m)
	}
	return append(out, a.touch)
}

func (a *Arbiter) micIfPermitted() contracts.InputSource {
	if a.mic == nil || a.perm == nil || !a.perm.Granted() {
		return nil
	}
	return a.mic
}

// wireLocked subscribes then starts a source under the current generation.
// Subscribing first means no event between start and subscribe is lost;
// the generation check drops anything a stale source emits after a switch.
func (a *Arbiter) wireLocked(src contracts.InputSource) error {
	gen := a.gen.Load()
	tag := src.Tag()
	comp := a.compensation(tag)
	unsub := src.Subscribe(func(ev contracts.UnifiedInputEvent) {
		a.forward(gen, comp, ev)
	})
	if err := src.Start(); err != nil {
		unsub()
		a.gen.Add(1)
		return err
	}
	a.active = src
	a.activeTag = tag
	a.unsub = unsub
	return nil
}

// forward republishes one source event with its timestamp compensated.
// Events from a superseded generation are discarded.
func (a *Arbiter) forward(gen uint64, compMs int64, ev contracts.UnifiedInputEvent) {
	if a.gen.Load() != gen {
		return
	}
	ev.TimestampMs -= compMs
	a.reg.Publish(ev)
}

// reArbitrate re-runs auto selection after a device change.
func (a *Arbiter) reArbitrate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started || a.mode != contracts.MethodAuto {
		return
	}
	desired := a.candidatesLocked()
	if len(desired) > 0 && a.active != nil && desired[0] != nil && desired[0].Tag() == a.activeTag {
		return
	}
	a.teardownLocked()
	a.activateLocked()
}
