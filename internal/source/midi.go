package source

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"go.uber.org/zap"

	"github.com/UT07/keysense-app-sub002/internal/bus"
	"github.com/UT07/keysense-app-sub002/sdk/contracts"
)

// Errors for hardware MIDI activation.
var (
	ErrNoMIDIDevices = errors.New("no MIDI devices connected")
	ErrNoTransport   = errors.New("no MIDI transport configured")
)

// HardwareMidi parses raw channel-voice messages from a platform transport
// into unified note events. Hardware input adds near-zero latency, which
// makes it the ground truth for calibrating the other sources.
type HardwareMidi struct {
	log       *zap.Logger
	transport contracts.MIDITransport
	reg       *bus.Registry
	nowMs     func() int64

	mu       sync.Mutex
	devices  []contracts.DeviceInfo
	activeID string
	started  bool
	open     map[int]struct{} // Pitches with an outstanding NoteOn.
	onChange func()
}

// NewHardwareMidi builds the hardware source over transport. The transport
// may be nil (platforms without MIDI support); the source then never
// activates.
func NewHardwareMidi(transport contracts.MIDITransport, log *zap.Logger) *HardwareMidi {
	if log == nil {
		log = zap.NewNop()
	}
	h := &HardwareMidi{
		log:       log,
		transport: transport,
		reg:       bus.New(),
		nowMs:     func() int64 { return time.Now().UnixMilli() },
		open:      make(map[int]struct{}),
	}
	if transport != nil {
		transport.SetDeviceListener(h.refreshAndNotify)
		h.refresh()
	}
	return h
}

// Tag reports the source tag carried by emitted events.
func (h *HardwareMidi) Tag() contracts.SourceTag { return contracts.SourceMidi }

// Subscribe registers fn for event delivery.
func (h *HardwareMidi) Subscribe(fn func(contracts.UnifiedInputEvent)) (cancel func()) {
	return h.reg.Subscribe(fn)
}

// OnDeviceChange registers fn to run after the device list changes.
func (h *HardwareMidi) OnDeviceChange(fn func()) {
	h.mu.Lock()
	h.onChange = fn
	h.mu.Unlock()
}

// Devices returns a copy of the last enumerated device list.
func (h *HardwareMidi) Devices() []contracts.DeviceInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]contracts.DeviceInfo, len(h.devices))
	copy(out, h.devices)
	return out
}

// HasConnectedDevice reports whether at least one endpoint is reachable.
func (h *HardwareMidi) HasConnectedDevice() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, d := range h.devices {
		if d.Connected {
			return true
		}
	}
	return false
}

// refresh re-enumerates devices from the transport.
func (h *HardwareMidi) refresh() {
	if h.transport == nil {
		return
	}
	devices, err := h.transport.Devices()
	if err != nil {
		h.log.Debug("device enumeration failed", zap.Error(err))
		devices = nil
	}
	h.mu.Lock()
	h.devices = devices
	h.mu.Unlock()
}

func (h *HardwareMidi) refreshAndNotify() {
	h.refresh()
	h.mu.Lock()
	fn := h.onChange
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Start opens the first connected device for capture. At most one device
// receives the message-dispatch callback at a time.
func (h *HardwareMidi) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return nil
	}
	if h.transport == nil {
		return ErrNoTransport
	}

	devices, err := h.transport.Devices()
	if err != nil {
		return fmt.Errorf("enumerate devices: %w", err)
	}
	h.devices = devices

	var target *contracts.DeviceInfo
	for i := range devices {
		if devices[i].Connected {
			target = &devices[i]
			break
		}
	}
	if target == nil {
		return ErrNoMIDIDevices
	}

	if err := h.transport.Open(target.ID, h.onRaw); err != nil {
		return fmt.Errorf("open device %q: %w", target.Name, err)
	}
	h.activeID = target.ID
	h.started = true
	h.log.Info("hardware MIDI source started",
		zap.String("device", target.Name),
		zap.String("manufacturer", target.Manufacturer))
	return nil
}

// Stop closes the transport and flushes outstanding notes as NoteOff.
// Idempotent.
func (h *HardwareMidi) Stop() error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return nil
	}
	h.started = false
	h.activeID = ""
	err := h.transport.Close()
	pending := make([]int, 0, len(h.open))
	for p := range h.open {
		pending = append(pending, p)
	}
	h.open = make(map[int]struct{})
	now := h.nowMs()
	h.mu.Unlock()

	for _, p := range pending {
		h.reg.Publish(contracts.UnifiedInputEvent{
			Kind:        contracts.NoteOff,
			PitchNumber: p,
			TimestampMs: now,
			Source:      contracts.SourceMidi,
		})
	}
	h.log.Info("hardware MIDI source stopped")
	return err
}

// onRaw parses one raw packet. A note-on with zero velocity counts as a
// note-off per the channel-voice convention; control changes are observed
// but not forwarded.
func (h *HardwareMidi) onRaw(raw contracts.RawMessage) {
	ts := raw.TimestampMs
	if ts == 0 {
		ts = h.nowMs()
	}

	msg := midi.Message(raw.Data)
	var ch, key, vel uint8
	var ctrl, val uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		h.mu.Lock()
		h.open[int(key)] = struct{}{}
		h.mu.Unlock()
		h.reg.Publish(contracts.UnifiedInputEvent{
			Kind:        contracts.NoteOn,
			PitchNumber: int(key),
			Velocity:    int(vel),
			TimestampMs: ts,
			Source:      contracts.SourceMidi,
		})
	case msg.GetNoteEnd(&ch, &key):
		h.mu.Lock()
		delete(h.open, int(key))
		h.mu.Unlock()
		h.reg.Publish(contracts.UnifiedInputEvent{
			Kind:        contracts.NoteOff,
			PitchNumber: int(key),
			TimestampMs: ts,
			Source:      contracts.SourceMidi,
		})
	case msg.GetControlChange(&ch, &ctrl, &val):
		h.log.Debug("control change",
			zap.Uint8("controller", ctrl),
			zap.Uint8("value", val))
	default:
		h.log.Debug("unhandled MIDI message", zap.String("msg", msg.String()))
	}
}
