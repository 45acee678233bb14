// Package transport selects the platform MIDI backend.
package transport

import (
	"errors"
	"runtime"

	"go.uber.org/zap"

	"github.com/UT07/keysense-app-sub002/internal/transport/coremidi"
	"github.com/UT07/keysense-app-sub002/internal/transport/winmm"
	"github.com/UT07/keysense-app-sub002/sdk/contracts"
)

// initializers maps OS names to backend constructors.
var initializers = map[string]func(*zap.Logger) contracts.MIDITransport{
	"darwin":  coremidi.New,
	"windows": winmm.New,
}

// ForPlatform returns the MIDI transport for the current OS. Platforms
// without a backend get a Null transport: the hardware source then simply
// never activates and arbitration degrades to the next source.
func ForPlatform(log *zap.Logger) contracts.MIDITransport {
	if init, ok := initializers[runtime.GOOS]; ok {
		return init(log)
	}
	if log != nil {
		log.Warn("no MIDI backend for this platform", zap.String("os", runtime.GOOS))
	}
	return Null{}
}

// Null is a transport with no devices. It stands in on platforms without a
// MIDI backend and in tests.
type Null struct{}

// Devices always reports an empty list.
func (Null) Devices() ([]contracts.DeviceInfo, error) { return nil, nil }

// Open always fails; there is nothing to open.
func (Null) Open(string, func(contracts.RawMessage)) error {
	return errors.New("MIDI unavailable on this platform")
}

// Close is a no-op.
func (Null) Close() error { return nil }

// SetDeviceListener is a no-op; the device set never changes.
func (Null) SetDeviceListener(func()) {}
