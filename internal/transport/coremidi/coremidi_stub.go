//go:build !darwin

// Package coremidi is the macOS MIDI transport; on other platforms it
// degrades to a transport with no devices.
package coremidi

import (
	"errors"

	"go.uber.org/zap"

	"github.com/UT07/keysense-app-sub002/sdk/contracts"
)

var errUnavailable = errors.New("CoreMIDI is only available on macOS")

type stub struct {
	log *zap.Logger
}

// New returns the non-darwin stub.
func New(log *zap.Logger) contracts.MIDITransport {
	if log == nil {
		log = zap.NewNop()
	}
	return &stub{log: log}
}

func (s *stub) Devices() ([]contracts.DeviceInfo, error) {
	return nil, nil
}

func (s *stub) Open(string, func(contracts.RawMessage)) error {
	s.log.Warn("Open called on CoreMIDI stub")
	return errUnavailable
}

func (s *stub) Close() error { return nil }

func (s *stub) SetDeviceListener(func()) {}
