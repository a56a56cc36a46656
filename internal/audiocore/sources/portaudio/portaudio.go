//go:build portaudio

// Package portaudio provides a PortAudio capture source, built with the portaudio tag
package portaudio

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"github.com/tphakala/voicerec/internal/audiocore"
	"github.com/tphakala/voicerec/internal/errors"
	"github.com/tphakala/voicerec/internal/logger"
)

// Available reports whether this build includes the PortAudio backend.
const Available = true

// Source captures from the default PortAudio input device with a blocking read loop
type Source struct {
	config Config

	mu      sync.Mutex
	stream  *portaudio.Stream
	samples []int16
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
}

// NewSource creates a PortAudio source; nothing is opened until Start
func NewSource(config Config) *Source {
	config = config.withDefaults()
	return &Source{config: config}
}

// Start initializes PortAudio, opens the default input stream and starts the read loop
func (s *Source) Start(ctx context.Context, sink audiocore.FrameSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return errors.New(audiocore.ErrSourceAlreadyActive).
			Category(errors.CategoryState).
			Context("backend", "portaudio").
			Build()
	}

	if err := portaudio.Initialize(); err != nil {
		return errors.New(err).
			Category(errors.CategoryAudioSource).
			Context("operation", "initialize").
			Build()
	}

	s.samples = make([]int16, s.config.FramesPerBuffer*s.config.Channels)
	stream, err := portaudio.OpenDefaultStream(s.config.Channels, 0,
		float64(s.config.SampleRate), s.config.FramesPerBuffer, s.samples)
	if err != nil {
		_ = portaudio.Terminate()
		return errors.New(err).
			Category(errors.CategoryAudioSource).
			Context("operation", "open_stream").
			Build()
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return errors.New(err).
			Category(errors.CategoryAudioSource).
			Context("operation", "start_stream").
			Build()
	}

	readCtx, cancel := context.WithCancel(ctx)
	s.stream = stream
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go s.readLoop(readCtx, sink)

	GetLogger().Info("audio capture started",
		logger.String("device", "portaudio default input"),
		logger.Int("sample_rate", s.config.SampleRate),
		logger.Int("channels", s.config.Channels))
	return nil
}

func (s *Source) readLoop(ctx context.Context, sink audiocore.FrameSink) {
	defer close(s.done)

	pcm := make([]byte, len(s.samples)*2)
	for ctx.Err() == nil {
		if err := s.stream.Read(); err != nil {
			// Input overflow still leaves a full buffer, anything else ends capture
			if err != portaudio.InputOverflowed {
				GetLogger().Error("portaudio read failed", logger.Error(err))
				return
			}
		}
		for i, v := range s.samples {
			binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
		}
		sink(pcm)
	}
}

// Stop ends the read loop and releases PortAudio. It is safe to call more than once.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Swap(false) {
		return nil
	}

	s.cancel()
	<-s.done

	err := s.stream.Stop()
	if closeErr := s.stream.Close(); err == nil {
		err = closeErr
	}
	if termErr := portaudio.Terminate(); err == nil {
		err = termErr
	}
	s.stream = nil

	GetLogger().Info("audio capture stopped", logger.String("device", "portaudio default input"))
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryAudioSource).
			Context("operation", "stop_stream").
			Build()
	}
	return nil
}

// Name returns a human-readable name for this source
func (s *Source) Name() string { return "portaudio:default" }

// IsActive returns true if the source is currently capturing
func (s *Source) IsActive() bool { return s.running.Load() }

// GetFormat returns the audio format of this source
func (s *Source) GetFormat() audiocore.AudioFormat {
	return audiocore.NewPCM16Format(s.config.SampleRate, s.config.Channels)
}
