package contracts

import "go.uber.org/zap"

// ClientOptions defines the assembled configuration for the keysense client.
type ClientOptions struct {
	Logger     *zap.Logger          // Logger for all components.
	Config     Config               // Pipeline tuning knobs.
	Transport  MIDITransport        // Platform MIDI layer; nil selects by GOOS.
	Samples    SampleSource         // Microphone buffer feed; nil disables mic.
	Model      TranscriptionModel   // Polyphonic model; nil uses the built-in one.
	Permission MicrophonePermission // Mic authorization prober; nil denies.
}

// Option is a function that modifies ClientOptions.
type Option func(*ClientOptions)

// WithLogger sets the logger shared by all components.
func WithLogger(l *zap.Logger) Option {
	return func(opts *ClientOptions) {
		opts.Logger = l
	}
}

// WithConfig sets the pipeline configuration. Zero-valued fields keep their
// defaults.
func WithConfig(cfg Config) Option {
	return func(opts *ClientOptions) {
		opts.Config = cfg
	}
}

// WithTransport overrides the platform MIDI transport.
func WithTransport(t MIDITransport) Option {
	return func(opts *ClientOptions) {
		opts.Transport = t
	}
}

// WithSampleSource sets the microphone capture feed.
func WithSampleSource(s SampleSource) Option {
	return func(opts *ClientOptions) {
		opts.Samples = s
	}
}

// WithModel overrides the polyphonic transcription model.
func WithModel(m TranscriptionModel) Option {
	return func(opts *ClientOptions) {
		opts.Model = m
	}
}

// WithMicrophonePermission sets the microphone authorization prober.
func WithMicrophonePermission(p MicrophonePermission) Option {
	return func(opts *ClientOptions) {
		opts.Permission = p
	}
}
