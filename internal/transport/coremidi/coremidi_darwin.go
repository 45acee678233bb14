//go:build darwin

// Package coremidi is the macOS MIDI transport, backed by CoreMIDI.
package coremidi

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/youpy/go-coremidi"
	"go.uber.org/zap"

	"github.com/UT07/keysense-app-sub002/sdk/contracts"
)

const (
	clientName = "keysense"

	// CoreMIDI setup notifications are not exposed by the binding, so the
	// transport polls the source list and diffs it.
	rescanInterval = 2 * time.Second
)

var (
	errInvalidDevice = errors.New("invalid MIDI device id")
	errClientFailed  = errors.New("creating CoreMIDI client")
)

type portConnection interface {
	Disconnect()
}

// Transport implements contracts.MIDITransport over CoreMIDI.
type Transport struct {
	log *zap.Logger

	mu       sync.Mutex
	client   *coremidi.Client
	conn     portConnection
	recv     func(contracts.RawMessage)
	listener func()
	names    []string // Last enumerated source names, for diffing.
	stopScan chan struct{}
}

// New builds the CoreMIDI transport. The client itself is created lazily on
// first use so construction never fails.
func New(log *zap.Logger) contracts.MIDITransport {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transport{log: log}
}

func (t *Transport) ensureClientLocked() error {
	if t.client != nil {
		return nil
	}
	client, err := coremidi.NewClient(clientName)
	if err != nil {
		return fmt.Errorf("%w: %v", errClientFailed, err)
	}
	t.client = &client
	return nil
}

// Devices enumerates CoreMIDI sources. The ID is the source index for the
// current enumeration.
func (t *Transport) Devices() ([]contracts.DeviceInfo, error) {
	sources, err := coremidi.AllSources()
	if err != nil {
		return nil, fmt.Errorf("listing MIDI sources: %w", err)
	}
	devices := make([]contracts.DeviceInfo, len(sources))
	names := make([]string, len(sources))
	for i, source := range sources {
		entity := source.Entity()
		devices[i] = contracts.DeviceInfo{
			ID:           strconv.Itoa(i),
			Name:         source.Name(),
			Manufacturer: entity.Manufacturer(),
			Connected:    true,
		}
		names[i] = source.Name()
	}
	t.mu.Lock()
	t.names = names
	t.mu.Unlock()
	return devices, nil
}

// Open connects the given source and delivers its packets to recv.
func (t *Transport) Open(deviceID string, recv func(contracts.RawMessage)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureClientLocked(); err != nil {
		return err
	}

	sources, err := coremidi.AllSources()
	if err != nil {
		return fmt.Errorf("listing MIDI sources: %w", err)
	}
	idx, err := strconv.Atoi(deviceID)
	if err != nil || idx < 0 || idx >= len(sources) {
		return fmt.Errorf("%w: %q", errInvalidDevice, deviceID)
	}

	if t.conn != nil {
		t.conn.Disconnect()
		t.conn = nil
	}
	t.recv = recv

	port, err := coremidi.NewInputPort(*t.client, "keysense input", t.handlePacket)
	if err != nil {
		return fmt.Errorf("creating input port: %w", err)
	}
	conn, err := port.Connect(sources[idx])
	if err != nil {
		return fmt.Errorf("connecting source %q: %w", sources[idx].Name(), err)
	}
	t.conn = conn
	t.log.Info("CoreMIDI source connected", zap.String("name", sources[idx].Name()))
	return nil
}

func (t *Transport) handlePacket(source coremidi.Source, packet coremidi.Packet) {
	t.mu.Lock()
	recv := t.recv
	t.mu.Unlock()
	if recv == nil || len(packet.Data) < 2 {
		return
	}
	data := make([]byte, len(packet.Data))
	copy(data, packet.Data)
	recv(contracts.RawMessage{
		Data:        data,
		TimestampMs: time.Now().UnixMilli(),
	})
}

// Close disconnects the open source. Idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		t.conn.Disconnect()
		t.conn = nil
	}
	t.recv = nil
	return nil
}

// SetDeviceListener starts the rescan loop the first time a listener is
// registered.
func (t *Transport) SetDeviceListener(fn func()) {
	t.mu.Lock()
	t.listener = fn
	if t.stopScan == nil && fn != nil {
		t.stopScan = make(chan struct{})
		go t.scanLoop(t.stopScan)
	}
	t.mu.Unlock()
}

func (t *Transport) scanLoop(stop chan struct{}) {
	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.rescan()
		}
	}
}

func (t *Transport) rescan() {
	sources, err := coremidi.AllSources()
	if err != nil {
		return
	}
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name()
	}

	t.mu.Lock()
	changed := len(names) != len(t.names)
	if !changed {
		for i := range names {
			if names[i] != t.names[i] {
				changed = true
				break
			}
		}
	}
	t.names = names
	fn := t.listener
	t.mu.Unlock()

	if changed && fn != nil {
		t.log.Debug("MIDI device set changed", zap.Int("sources", len(names)))
		fn()
	}
}
