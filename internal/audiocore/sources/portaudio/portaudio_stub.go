//go:build !portaudio

package portaudio

import (
	"context"

	"github.com/tphakala/voicerec/internal/audiocore"
	"github.com/tphakala/voicerec/internal/errors"
)

// Available reports whether this build includes the PortAudio backend.
const Available = false

// ErrNotBuilt is returned by Start when voicerec was built without the portaudio tag.
var ErrNotBuilt = errors.NewStd("portaudio backend not included in this build, rebuild with -tags portaudio")

// Source is a placeholder that fails on Start
type Source struct {
	config Config
}

// NewSource creates a placeholder source
func NewSource(config Config) *Source {
	return &Source{config: config.withDefaults()}
}

// Start always fails in builds without PortAudio
func (s *Source) Start(context.Context, audiocore.FrameSink) error {
	return errors.New(ErrNotBuilt).
		Category(errors.CategoryConfiguration).
		Context("backend", "portaudio").
		Build()
}

// Stop is a no-op
func (s *Source) Stop() error { return nil }

// Name returns a human-readable name for this source
func (s *Source) Name() string { return "portaudio:unavailable" }

// IsActive always returns false
func (s *Source) IsActive() bool { return false }

// GetFormat returns the configured audio format
func (s *Source) GetFormat() audiocore.AudioFormat {
	return audiocore.NewPCM16Format(s.config.SampleRate, s.config.Channels)
}
