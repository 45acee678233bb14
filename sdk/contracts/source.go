package contracts

// InputSource is implemented by every note-producing input leg (hardware
// MIDI, microphone, touch). The arbiter owns at most one started source at a
// time.
//
// Stop must be idempotent and must flush any still-sounding note as NoteOff
// before returning, so a consumer's view of "what is sounding" never
// survives a stop.
type InputSource interface {
	Tag() SourceTag
	Start() error
	Stop() error
	// Subscribe registers fn for synchronous event delivery and returns a
	// cancel function. Cancel is idempotent.
	Subscribe(fn func(UnifiedInputEvent)) (cancel func())
}

// SampleBuffer is one fixed-size block of real-valued audio samples.
type SampleBuffer struct {
	Samples     []float64
	TimestampMs int64
}

// SampleSource is the already-existing capture session feeding the
// microphone pipeline. Device-level capture and permission plumbing live
// behind this interface; the core only consumes buffers.
type SampleSource interface {
	// SampleRate reports the rate of delivered buffers in Hz.
	SampleRate() int
	Start() error
	Stop() error
	Subscribe(fn func(SampleBuffer)) (cancel func())
}

// MIDITransport abstracts the platform MIDI layer: device enumeration,
// connect/disconnect notification and raw packet delivery for one open
// device at a time.
type MIDITransport interface {
	// Devices enumerates the currently reachable MIDI endpoints.
	Devices() ([]DeviceInfo, error)
	// Open connects deviceID and delivers its raw packets to recv. Opening
	// a second device implicitly closes the first.
	Open(deviceID string, recv func(RawMessage)) error
	// Close disconnects the open device, if any. Idempotent.
	Close() error
	// SetDeviceListener registers fn to run whenever the set of reachable
	// devices changes.
	SetDeviceListener(fn func())
}

// MicrophonePermission reports whether microphone capture was already
// authorized. Arbitration consults it but never triggers a prompt.
type MicrophonePermission interface {
	Granted() bool
}

// ModelOutput carries one inference result: two parallel 88-bin vectors of
// per-pitch probabilities, bin i corresponding to pitch 21+i (A0-C8).
type ModelOutput struct {
	Active []float64 // Probability the pitch is sounding in this window.
	Onset  []float64 // Probability the pitch started in this window.
}

// TranscriptionModel is a pre-trained multi-pitch model behind the
// polyphonic transcriber. Infer is called with exactly WindowSize samples at
// SampleRate and may take longer than one audio buffer period; the
// transcriber guarantees calls never overlap.
type TranscriptionModel interface {
	SampleRate() int
	WindowSize() int
	Infer(window []float64) (ModelOutput, error)
}
