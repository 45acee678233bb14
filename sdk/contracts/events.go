package contracts

// EventKind distinguishes note onsets from releases.
type EventKind int

const (
	// NoteOn marks the beginning of a sounding note.
	NoteOn EventKind = iota
	// NoteOff marks the end of a sounding note.
	NoteOff
)

func (k EventKind) String() string {
	switch k {
	case NoteOn:
		return "note-on"
	case NoteOff:
		return "note-off"
	}
	return "unknown"
}

// SourceTag identifies which input source produced an event.
type SourceTag int

const (
	// SourceMidi marks events from a hardware MIDI device.
	SourceMidi SourceTag = iota
	// SourceMic marks events detected from microphone audio.
	SourceMic
	// SourceTouch marks events injected by the on-screen keyboard.
	SourceTouch
)

func (t SourceTag) String() string {
	switch t {
	case SourceMidi:
		return "midi"
	case SourceMic:
		return "mic"
	case SourceTouch:
		return "touch"
	}
	return "unknown"
}

// UnifiedInputEvent is the one event shape every input source converges to.
// It is immutable once emitted; downstream consumers (the scoring engine)
// only ever see this type.
type UnifiedInputEvent struct {
	Kind        EventKind // Note on or note off.
	PitchNumber int       // MIDI pitch number, 0-127.
	Velocity    int       // Strike velocity, 0-127. Synthetic for mic and touch.
	TimestampMs int64     // Milliseconds, already latency-compensated per source.
	Source      SourceTag // Which source produced the event.
}

// RawMessage is one raw MIDI packet as delivered by a transport backend:
// 2-3 status/data bytes plus the arrival timestamp.
type RawMessage struct {
	Data        []byte
	TimestampMs int64
}
