package pitch

import (
	"math"
	"testing"
)

func TestMidiToFrequencyAnchors(t *testing.T) {
	cases := []struct {
		pitch int
		want  float64
	}{
		{69, 440.0},   // A4
		{60, 261.626}, // C4
		{21, 27.5},    // A0
		{108, 4186.009},
	}
	for _, c := range cases {
		got := MidiToFrequency(c.pitch)
		if math.Abs(got-c.want) > 0.01 {
			t.Errorf("MidiToFrequency(%d) = %f, want %f", c.pitch, got, c.want)
		}
	}
}

func TestFrequencyRoundTrip(t *testing.T) {
	for p := MinPitch; p <= MaxPitch; p++ {
		f := MidiToFrequency(p)
		if got := FrequencyToNearestMidi(f); got != p {
			t.Fatalf("FrequencyToNearestMidi(MidiToFrequency(%d)) = %d", p, got)
		}
		back := MidiToFrequency(FrequencyToNearestMidi(f))
		if math.Abs(back-f) >= 1.0 {
			t.Fatalf("round trip for pitch %d drifted %f Hz", p, math.Abs(back-f))
		}
	}
}

func TestFrequencyToNearestMidiOffPitch(t *testing.T) {
	// 445 Hz is a sharp A4.
	if got := FrequencyToNearestMidi(445); got != 69 {
		t.Fatalf("FrequencyToNearestMidi(445) = %d, want 69", got)
	}
	cents := CentsOffset(445, 69)
	if cents < 19 || cents > 20 {
		t.Fatalf("CentsOffset(445, 69) = %f, want ~19.6", cents)
	}
}

func TestCentsOffsetBounds(t *testing.T) {
	for p := MinPitch; p <= MaxPitch; p++ {
		f := MidiToFrequency(p)
		// Exactly on pitch: zero offset.
		if c := CentsOffset(f, p); math.Abs(c) > 1e-9 {
			t.Fatalf("CentsOffset at pitch %d = %f, want 0", p, c)
		}
	}
	// Halfway between two pitches is 50 cents from either.
	mid := math.Sqrt(MidiToFrequency(69) * MidiToFrequency(70))
	if c := CentsOffset(mid, 69); math.Abs(c-50) > 0.01 {
		t.Fatalf("CentsOffset at quarter-tone = %f, want 50", c)
	}
}

func TestInPianoRange(t *testing.T) {
	if InPianoRange(20) || InPianoRange(109) || InPianoRange(-1) {
		t.Fatal("out-of-range pitch accepted")
	}
	if !InPianoRange(21) || !InPianoRange(108) || !InPianoRange(60) {
		t.Fatal("in-range pitch rejected")
	}
}
