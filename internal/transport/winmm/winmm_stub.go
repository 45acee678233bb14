//go:build !windows

// Package winmm is the Windows MIDI transport; on other platforms it
// degrades to a transport with no devices.
package winmm

import (
	"errors"

	"go.uber.org/zap"

	"github.com/UT07/keysense-app-sub002/sdk/contracts"
)

var errUnavailable = errors.New("winmm is only available on Windows")

type stub struct {
	log *zap.Logger
}

// New returns the non-windows stub.
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
	s.log.Warn("Open called on winmm stub")
	return errUnavailable
}

func (s *stub) Close() error { return nil }

func (s *stub) SetDeviceListener(func()) {}
