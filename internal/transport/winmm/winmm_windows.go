//go:build windows

// Package winmm is the Windows MIDI transport, backed by winmm.dll.
package winmm

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"github.com/UT07/keysense-app-sub002/sdk/contracts"
)

type hMidiIn windows.Handle

const (
	callbackFunction = 0x00030000
	midiIOStatus     = 0x00000020

	mimOpen  = 0x3C1
	mimClose = 0x3C2
	mimData  = 0x3C3
	mimError = 0x3C5
)

const rescanInterval = 2 * time.Second

type midiInCaps struct {
	wMid           uint16
	wPid           uint16
	vDriverVersion uint32
	szPname        [32]uint16
	dwSupport      uint32
}

var (
	winmmDLL             = windows.NewLazySystemDLL("winmm.dll")
	procMidiInGetNumDevs = winmmDLL.NewProc("midiInGetNumDevs")
	procMidiInGetDevCaps = winmmDLL.NewProc("midiInGetDevCapsW")
	procMidiInOpen       = winmmDLL.NewProc("midiInOpen")
	procMidiInStart      = winmmDLL.NewProc("midiInStart")
	procMidiInStop       = winmmDLL.NewProc("midiInStop")
	procMidiInClose      = winmmDLL.NewProc("midiInClose")
)

var errInvalidDevice = errors.New("invalid MIDI device id")

// Transport implements contracts.MIDITransport over the winmm API.
type Transport struct {
	log *zap.Logger

	mu       sync.Mutex
	handle   hMidiIn
	open     bool
	recv     func(contracts.RawMessage)
	listener func()
	count    int
	stopScan chan struct{}
}

// New builds the winmm transport.
func New(log *zap.Logger) contracts.MIDITransport {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transport{log: log}
}

// Devices enumerates winmm input devices; IDs are device indexes.
func (t *Transport) Devices() ([]contracts.DeviceInfo, error) {
	r0, _, _ := procMidiInGetNumDevs.Call()
	num := int(r0)

	devices := make([]contracts.DeviceInfo, 0, num)
	for i := 0; i < num; i++ {
		var caps midiInCaps
		r1, _, _ := procMidiInGetDevCaps.Call(
			uintptr(i),
			uintptr(unsafe.Pointer(&caps)),
			unsafe.Sizeof(caps),
		)
		if r1 != 0 {
			t.log.Warn("querying MIDI device capabilities failed", zap.Int("device", i))
			continue
		}
		name := windows.UTF16ToString(caps.szPname[:])
		devices = append(devices, contracts.DeviceInfo{
			ID:           strconv.Itoa(i),
			Name:         name,
			Manufacturer: fmt.Sprintf("MID %d PID %d", caps.wMid, caps.wPid),
			Connected:    true,
		})
	}

	t.mu.Lock()
	t.count = len(devices)
	t.mu.Unlock()
	return devices, nil
}

// Open connects a device and starts message delivery to recv.
func (t *Transport) Open(deviceID string, recv func(contracts.RawMessage)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx, err := strconv.Atoi(deviceID)
	if err != nil || idx < 0 {
		return fmt.Errorf("%w: %q", errInvalidDevice, deviceID)
	}
	if t.open {
		t.closeLocked()
	}
	t.recv = recv

	callback := windows.NewCallback(midiInCallback)
	r1, _, callErr := procMidiInOpen.Call(
		uintptr(unsafe.Pointer(&t.handle)),
		uintptr(idx),
		callback,
		uintptr(unsafe.Pointer(t)),
		uintptr(callbackFunction|midiIOStatus),
	)
	if r1 != 0 {
		return fmt.Errorf("opening MIDI device %d: %v", idx, callErr)
	}
	if r1, _, callErr = procMidiInStart.Call(uintptr(t.handle)); r1 != 0 {
		procMidiInClose.Call(uintptr(t.handle))
		return fmt.Errorf("starting MIDI capture: %v", callErr)
	}
	t.open = true
	t.log.Info("winmm MIDI device connected", zap.Int("device", idx))
	return nil
}

// midiInCallback runs on the winmm callback thread. dwParam1 packs the
// status and two data bytes of a short message.
func midiInCallback(hmi uintptr, wMsg uint32, dwInstance, dwParam1, dwParam2 uintptr) uintptr {
	t := (*Transport)(unsafe.Pointer(dwInstance))
	switch wMsg {
	case mimOpen, mimClose:
	case mimData:
		t.mu.Lock()
		recv := t.recv
		t.mu.Unlock()
		if recv == nil {
			return 0
		}
		data := []byte{
			byte(dwParam1 & 0xFF),
			byte((dwParam1 >> 8) & 0xFF),
			byte((dwParam1 >> 16) & 0xFF),
		}
		recv(contracts.RawMessage{
			Data:        data,
			TimestampMs: time.Now().UnixMilli(),
		})
	case mimError:
		t.log.Warn("winmm reported a MIDI error")
	}
	return 0
}

// Close stops capture and releases the device. Idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLocked()
	return nil
}

func (t *Transport) closeLocked() {
	if !t.open {
		return
	}
	procMidiInStop.Call(uintptr(t.handle))
	procMidiInClose.Call(uintptr(t.handle))
	t.handle = 0
	t.open = false
	t.recv = nil
}

// SetDeviceListener starts the rescan loop the first time a listener is
// registered; winmm has no usable hotplug notification for MIDI.
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
			r0, _, _ := procMidiInGetNumDevs.Call()
			n := int(r0)
			t.mu.Lock()
			changed := n != t.count
			t.count = n
			fn := t.listener
			t.mu.Unlock()
			if changed && fn != nil {
				fn()
			}
		}
	}
}
