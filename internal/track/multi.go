package track

import (
	"sort"

	"github.com/UT07/keysense-app-sub002/sdk/contracts"
)

// FrameNote is one detected pitch within a polyphonic frame.
type FrameNote struct {
	PitchNumber int
	Confidence  float64
	Onset       bool // Whether the model flagged this pitch as starting now.
}

// Frame is one polyphonic detection result: every pitch the model considers
// sounding at one instant, each with its own onset flag.
type Frame struct {
	Notes       []FrameNote
	TimestampMs int64
}

// MultiConfig tunes the polyphonic tracker.
type MultiConfig struct {
	ReleaseHoldMs int64 // Absence from frames required before NoteOff.
}

func (c MultiConfig) withDefaults() MultiConfig {
	if c.ReleaseHoldMs <= 0 {
		c.ReleaseHoldMs = 60
	}
	return c
}

type multiNote struct {
	startMs    int64
	lastSeenMs int64
	confidence float64
}

// MultiTracker maintains the set of simultaneously sounding pitches fed by
// polyphonic detection frames. Onset confirmation already happened inside
// the model, so flagged pitches emit NoteOn immediately; releases are
// debounced by the release hold.
type MultiTracker struct {
	cfg   MultiConfig
	emit  func(Event)
	notes map[int]*multiNote
}

// NewMultiTracker builds a polyphonic tracker delivering events through
// emit.
func NewMultiTracker(cfg MultiConfig, emit func(Event)) *MultiTracker {
	return &MultiTracker{
		cfg:   cfg.withDefaults(),
		emit:  emit,
		notes: make(map[int]*multiNote),
	}
}

// ActiveCount returns how many pitches are currently tracked.
func (t *MultiTracker) ActiveCount() int {
	return len(t.notes)
}

// Process consumes one detection frame: releases pitches that stayed absent
// past the hold, refreshes pitches still present, and opens pitches the
// model flagged as onsets.
func (t *MultiTracker) Process(f Frame) {
	present := make(map[int]FrameNote, len(f.Notes))
	for _, n := range f.Notes {
		present[n.PitchNumber] = n
	}

	for _, p := range t.sortedPitches() {
		if _, ok := present[p]; ok {
			continue
		}
		n := t.notes[p]
		if f.TimestampMs-n.lastSeenMs >= t.cfg.ReleaseHoldMs {
			t.emit(Event{
				Kind:        contracts.NoteOff,
				PitchNumber: p,
				Confidence:  n.confidence,
				TimestampMs: f.TimestampMs,
			})
			delete(t.notes, p)
		}
	}

	for _, n := range f.Notes {
		if existing, ok := t.notes[n.PitchNumber]; ok {
			existing.lastSeenMs = f.TimestampMs
			existing.confidence = n.Confidence
			continue
		}
		if !n.Onset {
			// Sustained energy without an onset is likely bleed from an
			// already-released note; wait for a real attack.
			continue
		}
		t.notes[n.PitchNumber] = &multiNote{
			startMs:    f.TimestampMs,
			lastSeenMs: f.TimestampMs,
			confidence: n.Confidence,
		}
		t.emit(Event{
			Kind:        contracts.NoteOn,
			PitchNumber: n.PitchNumber,
			Confidence:  n.Confidence,
			TimestampMs: f.TimestampMs,
		})
	}
}

// Reset emits NoteOff for every tracked pitch and clears state.
func (t *MultiTracker) Reset(tsMs int64) {
	for _, p := range t.sortedPitches() {
		t.emit(Event{
			Kind:        contracts.NoteOff,
			PitchNumber: p,
			Confidence:  t.notes[p].confidence,
			TimestampMs: tsMs,
		})
	}
	t.notes = make(map[int]*multiNote)
}

// sortedPitches returns tracked pitches in ascending order so event order is
// deterministic.
func (t *MultiTracker) sortedPitches() []int {
	out := make([]int, 0, len(t.notes))
	for p := range t.notes {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}
