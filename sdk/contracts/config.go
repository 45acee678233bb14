package contracts

// InputMethod selects which input source the arbiter should run.
type InputMethod string

const (
	// MethodAuto picks by priority: MIDI, then microphone, then touch.
	MethodAuto InputMethod = "auto"
	// MethodMidi forces the hardware MIDI source.
	MethodMidi InputMethod = "midi"
	// MethodMic forces the microphone source.
	MethodMic InputMethod = "mic"
	// MethodTouch forces the on-screen touch source.
	MethodTouch InputMethod = "touch"
)

// Config carries every tuning knob of the detection pipeline. Zero values
// are replaced by the corresponding DefaultConfig values when the client is
// built.
type Config struct {
	// Audio feed.
	SampleRate int // Source sample rate in Hz.
	BufferSize int // Samples per delivered buffer and YIN window size.

	// YIN estimator.
	YinThreshold   float64 // Normalized-difference dip threshold.
	MinConfidence  float64 // Below this the result is unvoiced.
	MinFrequencyHz float64 // Lower bound of the lag search range.
	MaxFrequencyHz float64 // Upper bound of the lag search range.

	// Monophonic hysteresis.
	OnsetHoldMs   int64 // Candidate must persist this long before NoteOn.
	ReleaseHoldMs int64 // Silence required before NoteOff.

	// Polyphonic hysteresis.
	PolyReleaseHoldMs int64 // Absence required before a tracked pitch releases.

	// Transcription model thresholds.
	NoteThreshold  float64 // Activation probability for a bin to become a note.
	OnsetThreshold float64 // Onset probability for the onset flag.
	MaxPolyphony   int     // Simultaneous note cap; highest-confidence bins win.

	// Microphone ambient preset. Tuned empirically for speaker-to-mic
	// acoustic paths; relaxed voicing plus slightly longer holds.
	AmbientYinThreshold  float64
	AmbientMinConfidence float64
	AmbientOnsetHoldMs   int64
	AmbientReleaseHoldMs int64

	// Microphone event synthesis.
	MicVelocity int // Velocity assigned to mic events (acoustics carry none).

	// Latency compensation, subtracted from timestamps per source.
	MicLatencyMs   int64
	TouchLatencyMs int64

	// PreferPolyphonic selects the polyphonic microphone pipeline when a
	// transcription model is available; it falls back to monophonic
	// otherwise.
	PreferPolyphonic bool

	// PreferredMethod is the arbiter's initial mode.
	PreferredMethod InputMethod
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		SampleRate:           44100,
		BufferSize:           2048,
		YinThreshold:         0.15,
		MinConfidence:        0.7,
		MinFrequencyHz:       50,
		MaxFrequencyHz:       2000,
		OnsetHoldMs:          40,
		ReleaseHoldMs:        80,
		PolyReleaseHoldMs:    60,
		NoteThreshold:        0.5,
		OnsetThreshold:       0.5,
		MaxPolyphony:         6,
		AmbientYinThreshold:  0.25,
		AmbientMinConfidence: 0.5,
		AmbientOnsetHoldMs:   50,
		AmbientReleaseHoldMs: 100,
		MicVelocity:          100,
		MicLatencyMs:         100,
		TouchLatencyMs:       20,
		PreferredMethod:      MethodAuto,
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	if c.YinThreshold <= 0 {
		c.YinThreshold = d.YinThreshold
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = d.MinConfidence
	}
	if c.MinFrequencyHz <= 0 {
		c.MinFrequencyHz = d.MinFrequencyHz
	}
	if c.MaxFrequencyHz <= 0 {
		c.MaxFrequencyHz = d.MaxFrequencyHz
	}
	if c.OnsetHoldMs <= 0 {
		c.OnsetHoldMs = d.OnsetHoldMs
	}
	if c.ReleaseHoldMs <= 0 {
		c.ReleaseHoldMs = d.ReleaseHoldMs
	}
	if c.PolyReleaseHoldMs <= 0 {
		c.PolyReleaseHoldMs = d.PolyReleaseHoldMs
	}
	if c.NoteThreshold <= 0 {
		c.NoteThreshold = d.NoteThreshold
	}
	if c.OnsetThreshold <= 0 {
		c.OnsetThreshold = d.OnsetThreshold
	}
	if c.MaxPolyphony <= 0 {
		c.MaxPolyphony = d.MaxPolyphony
	}
	if c.AmbientYinThreshold <= 0 {
		c.AmbientYinThreshold = d.AmbientYinThreshold
	}
	if c.AmbientMinConfidence <= 0 {
		c.AmbientMinConfidence = d.AmbientMinConfidence
	}
	if c.AmbientOnsetHoldMs <= 0 {
		c.AmbientOnsetHoldMs = d.AmbientOnsetHoldMs
	}
	if c.AmbientReleaseHoldMs <= 0 {
		c.AmbientReleaseHoldMs = d.AmbientReleaseHoldMs
	}
	if c.MicVelocity <= 0 {
		c.MicVelocity = d.MicVelocity
	}
	if c.MicLatencyMs <= 0 {
		c.MicLatencyMs = d.MicLatencyMs
	}
	if c.TouchLatencyMs <= 0 {
		c.TouchLatencyMs = d.TouchLatencyMs
	}
	if c.PreferredMethod == "" {
		c.PreferredMethod = d.PreferredMethod
	}
	return c
}
