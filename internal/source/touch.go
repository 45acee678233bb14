package source

import (
	"sync"
	"time"

	"github.com/UT07/keysense-app-sub002/internal/bus"
	"github.com/UT07/keysense-app-sub002/sdk/contracts"
)

// Touch is the on-screen keyboard leg. The rendering layer calls Inject for
// every press and release; activation can never fail, which makes touch the
// fallback of last resort.
type Touch struct {
	reg   *bus.Registry
	nowMs func() int64

	mu      sync.Mutex
	started bool
	open    map[int]struct{}
}

// NewTouch builds the touch source.
func NewTouch() *Touch {
	return &Touch{
		reg:   bus.New(),
		nowMs: func() int64 { return time.Now().UnixMilli() },
		open:  make(map[int]struct{}),
	}
}

// Tag reports the source tag carried by emitted events.
func (t *Touch) Tag() contracts.SourceTag { return contracts.SourceTouch }

// Subscribe registers fn for event delivery.
func (t *Touch) Subscribe(fn func(contracts.UnifiedInputEvent)) (cancel func()) {
	return t.reg.Subscribe(fn)
}

// Start marks the source active.
func (t *Touch) Start() error {
	t.mu.Lock()
	t.started = true
	t.mu.Unlock()
	return nil
}

// Stop flushes outstanding presses as NoteOff. Idempotent.
func (t *Touch) Stop() error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = false
	pending := make([]int, 0, len(t.open))
	for p := range t.open {
		pending = append(pending, p)
	}
	t.open = make(map[int]struct{})
	now := t.nowMs()
	t.mu.Unlock()

	for _, p := range pending {
		t.reg.Publish(contracts.UnifiedInputEvent{
			Kind:        contracts.NoteOff,
			PitchNumber: p,
			TimestampMs: now,
			Source:      contracts.SourceTouch,
		})
	}
	return nil
}

// Inject reports one touch transition. Events arriving while the source is
// stopped are dropped. A non-positive tsMs is stamped with the current
// time.
func (t *Touch) Inject(pitchNumber, velocity int, on bool, tsMs int64) {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return
	}
	kind := contracts.NoteOff
	if on {
		kind = contracts.NoteOn
		t.open[pitchNumber] = struct{}{}
	} else {
		delete(t.open, pitchNumber)
	}
	t.mu.Unlock()

	if tsMs <= 0 {
		tsMs = t.nowMs()
	}
	t.reg.Publish(contracts.UnifiedInputEvent{
		Kind:        kind,
		PitchNumber: pitchNumber,
		Velocity:    velocity,
		TimestampMs: tsMs,
		Source:      contracts.SourceTouch,
	})
}
