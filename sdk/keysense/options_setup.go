package keysense

import (
	"go.uber.org/zap"

	"github.com/UT07/keysense-app-sub002/internal/transcribe"
	"github.com/UT07/keysense-app-sub002/internal/transport"
	"github.com/UT07/keysense-app-sub002/sdk/contracts"
)

// deniedPermission is the default microphone prober: without an explicit
// grant from the host application, arbitration must not assume capture is
// allowed (and must never prompt on its own).
type deniedPermission struct{}

func (deniedPermission) Granted() bool { return false }

// applyDefaultOptions fills ClientOptions fields not explicitly provided.
func applyDefaultOptions(opts ...contracts.Option) (contracts.ClientOptions, error) {
	options := &contracts.ClientOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	options.Config = options.Config.WithDefaults()

	if options.Transport == nil {
		options.Transport = transport.ForPlatform(options.Logger)
	}
	if options.Permission == nil {
		options.Permission = deniedPermission{}
	}
	if options.Model == nil && options.Config.PreferPolyphonic {
		model, err := transcribe.NewSpectralModel()
		if err != nil {
			// Missing model is a source-level failure, not a client-level
			// one: the microphone source falls back to monophonic.
			options.Logger.Warn("built-in transcription model unavailable", zap.Error(err))
		} else {
			options.Model = model
		}
	}

	return *options, nil
}
