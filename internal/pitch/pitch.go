// Package pitch implements single-pitch estimation from time-domain audio
// and the note arithmetic shared by the detection pipeline.
package pitch

import "math"

const (
	// A4 anchors the tuning: pitch number 69 at 440 Hz.
	a4Pitch  = 69
	a4FreqHz = 440.0

	// MinPitch and MaxPitch bound the playable piano range, A0 to C8.
	MinPitch = 21
	MaxPitch = 108
)

// Result is one estimator output for one audio buffer.
type Result struct {
	FrequencyHz float64 // Estimated fundamental; 0 when unvoiced.
	Confidence  float64 // Periodicity confidence in 0..1.
	Voiced      bool    // Whether a stable pitch was found.
	PitchNumber int     // Nearest MIDI pitch; meaningful only when voiced.
	CentsOffset float64 // Deviation from PitchNumber, -50..50 cents.
	TimestampMs int64   // Timestamp of the analyzed buffer.
}

// MidiToFrequency returns the equal-tempered frequency of a pitch number.
func MidiToFrequency(pitch int) float64 {
	return a4FreqHz * math.Exp2(float64(pitch-a4Pitch)/12.0)
}

// FrequencyToNearestMidi returns the pitch number closest to f. The result
// is unclamped; callers reject values outside MinPitch..MaxPitch.
func FrequencyToNearestMidi(f float64) int {
	if f <= 0 {
		return -1
	}
	return a4Pitch + int(math.Round(12.0*math.Log2(f/a4FreqHz)))
}

// CentsOffset returns how far f deviates from the given pitch number, in
// cents. For the nearest pitch the result lies within -50..50.
func CentsOffset(f float64, pitch int) float64 {
	if f <= 0 {
		return 0
	}
	return 1200.0 * math.Log2(f/MidiToFrequency(pitch))
}

// InPianoRange reports whether pitch falls inside the playable range.
func InPianoRange(pitch int) bool {
	return pitch >= MinPitch && pitch <= MaxPitch
}
