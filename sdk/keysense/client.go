// Package keysense assembles the note-detection pipeline: it builds the
// three input sources from options and returns the arbiter that owns them.
package keysense

import (
	"github.com/UT07/keysense-app-sub002/internal/arbiter"
	"github.com/UT07/keysense-app-sub002/internal/source"
	"github.com/UT07/keysense-app-sub002/sdk/contracts"
)

// Client is the assembled input pipeline. It embeds the arbiter, which
// carries the full runtime API (Start, Stop, SwitchMethod, Subscribe,
// TimingProfile), and keeps the touch source reachable for the UI layer.
type Client struct {
	*arbiter.Arbiter

	midi  *source.HardwareMidi
	mic   *source.Microphone
	touch *source.Touch
}

// Touch returns the touch source so the rendering layer can inject on-screen
// key presses.
func (c *Client) Touch() *source.Touch { return c.touch }

// Devices lists the currently known hardware MIDI endpoints.
func (c *Client) Devices() []contracts.DeviceInfo { return c.midi.Devices() }

// MicrophonePolyphonic reports whether the microphone source runs the
// polyphonic pipeline (false after a fallback to monophonic).
func (c *Client) MicrophonePolyphonic() bool { return c.mic.Polyphonic() }

// New creates a client with the specified options applied over defaults.
func New(opts ...contracts.Option) (*Client, error) {
	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return nil, err
	}

	midi := source.NewHardwareMidi(options.Transport, options.Logger)
	mic := source.NewMicrophone(options.Config, options.Samples, options.Model, options.Logger)
	touch := source.NewTouch()

	arb := arbiter.New(options.Config, midi, mic, touch, options.Permission, options.Logger)
	return &Client{
		Arbiter: arb,
		midi:    midi,
		mic:     mic,
		touch:   touch,
	}, nil
}
