// Package track turns streams of pitch estimates into discrete note-on and
// note-off events using onset/release hysteresis.
package track

import (
	"github.com/UT07/keysense-app-sub002/internal/pitch"
	"github.com/UT07/keysense-app-sub002/sdk/contracts"
)

// Event is one discrete note transition emitted by a tracker. For a given
// tracker instance a pitch alternates strictly between NoteOn and NoteOff.
type Event struct {
	Kind        contracts.EventKind
	PitchNumber int
	Confidence  float64
	TimestampMs int64
}

// Config tunes the monophonic tracker's hysteresis.
type Config struct {
	OnsetHoldMs   int64 // A new pitch must persist this long before NoteOn.
	ReleaseHoldMs int64 // Silence must persist this long before NoteOff.
}

func (c Config) withDefaults() Config {
	if c.OnsetHoldMs <= 0 {
		c.OnsetHoldMs = 40
	}
	if c.ReleaseHoldMs <= 0 {
		c.ReleaseHoldMs = 80
	}
	return c
}

// Tracker follows a monophonic pitch stream. Single-frame misdetections are
// rejected because a candidate pitch only becomes active once it has
// persisted for the onset hold; onset latency is therefore bounded by that
// hold.
type Tracker struct {
	cfg  Config
	emit func(Event)

	active           int // Currently sounding pitch, -1 when idle.
	activeConfidence float64
	candidate        int // Pending pitch awaiting confirmation, -1 when none.
	candidateSinceMs int64
	lastVoicedMs     int64
}

// NewTracker builds a tracker that delivers events synchronously through
// emit.
func NewTracker(cfg Config, emit func(Event)) *Tracker {
	return &Tracker{
		cfg:       cfg.withDefaults(),
		emit:      emit,
		active:    -1,
		candidate: -1,
	}
}

// Active returns the currently sounding pitch, or -1.
func (t *Tracker) Active() int {
	return t.active
}

// Process consumes one pitch estimate.
func (t *Tracker) Process(r pitch.Result) {
	if !r.Voiced {
		t.candidate = -1
		if t.active >= 0 && r.TimestampMs-t.lastVoicedMs >= t.cfg.ReleaseHoldMs {
			t.emit(Event{
				Kind:        contracts.NoteOff,
				PitchNumber: t.active,
				Confidence:  t.activeConfidence,
				TimestampMs: r.TimestampMs,
			})
			t.active = -1
		}
		return
	}

	t.lastVoicedMs = r.TimestampMs

	if r.PitchNumber == t.active {
		// Steady state; a stray candidate from a momentary wobble is
		// discarded.
		t.candidate = -1
		t.activeConfidence = r.Confidence
		return
	}

	if r.PitchNumber == t.candidate {
		if r.TimestampMs-t.candidateSinceMs >= t.cfg.OnsetHoldMs {
			t.promote(r)
		}
		return
	}

	t.candidate = r.PitchNumber
	t.candidateSinceMs = r.TimestampMs
}

// promote makes the confirmed candidate the active pitch, releasing the
// previous one first.
func (t *Tracker) promote(r pitch.Result) {
	if t.active >= 0 {
		t.emit(Event{
			Kind:        contracts.NoteOff,
			PitchNumber: t.active,
			Confidence:  t.activeConfidence,
			TimestampMs: r.TimestampMs,
		})
	}
	t.active = r.PitchNumber
	t.activeConfidence = r.Confidence
	t.candidate = -1
	t.emit(Event{
		Kind:        contracts.NoteOn,
		PitchNumber: r.PitchNumber,
		Confidence:  r.Confidence,
		TimestampMs: r.TimestampMs,
	})
}

// Reset forces an immediate NoteOff for any active pitch and clears all
// hysteresis state.
func (t *Tracker) Reset(tsMs int64) {
	if t.active >= 0 {
		t.emit(Event{
			Kind:        contracts.NoteOff,
			PitchNumber: t.active,
			Confidence:  t.activeConfidence,
			TimestampMs: tsMs,
		})
	}
	t.active = -1
	t.candidate = -1
	t.candidateSinceMs = 0
	t.lastVoicedMs = 0
}
