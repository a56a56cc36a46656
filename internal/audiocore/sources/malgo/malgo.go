// Package malgo provides a malgo-based soundcard audio source implementation
package malgo

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/voicerec/internal/audiocore"
	"github.com/tphakala/voicerec/internal/errors"
	"github.com/tphakala/voicerec/internal/logger"
)

// restartDelay is how long the source waits before restarting a device that stopped on its own
const restartDelay = time.Second

// Config contains configuration for the malgo audio source
type Config struct {
	DeviceName   string // device name, decoded ID or "sysdefault"
	SampleRate   uint32
	Channels     uint32
	PeriodFrames uint32 // driver period in sample frames, 0 lets miniaudio decide
	Debug        bool   // forward miniaudio log messages to the debug log
}

// Source implements audiocore.AudioSource using malgo for cross-platform audio capture
type Source struct {
	config Config

	mu       sync.Mutex
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	sink     audiocore.FrameSink
	stopCh   chan struct{}
	monitors sync.WaitGroup

	running    atomic.Bool
	deviceName string
}

// NewSource creates a new malgo-based audio source
func NewSource(config Config) *Source {
	if config.SampleRate == 0 {
		config.SampleRate = 48000
	}
	if config.Channels == 0 {
		config.Channels = 1
	}
	return &Source{config: config, deviceName: config.DeviceName}
}

// Name returns the selected device name, or the configured one before Start
func (s *Source) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return "malgo:" + s.deviceName
}

// IsActive returns true if the source is currently capturing
func (s *Source) IsActive() bool {
	return s.running.Load()
}

// GetFormat returns the audio format of this source
func (s *Source) GetFormat() audiocore.AudioFormat {
	return audiocore.NewPCM16Format(int(s.config.SampleRate), int(s.config.Channels))
}

// Start opens the capture device and begins delivering S16LE PCM to sink from the
// driver callback.
func (s *Source) Start(ctx context.Context, sink audiocore.FrameSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return errors.New(audiocore.ErrSourceAlreadyActive).
			Category(errors.CategoryState).
			Context("backend", "malgo").
			Build()
	}

	log := GetLogger()
	var logProc malgo.LogProc
	if s.config.Debug {
		logProc = func(message string) {
			log.Debug("miniaudio", logger.String("message", strings.TrimSpace(message)))
		}
	}

	malgoCtx, err := malgo.InitContext(backendsForPlatform(), malgo.ContextConfig{}, logProc)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryAudioSource).
			Context("backend", runtime.GOOS).
			Context("operation", "init_context").
			Build()
	}

	infos, err := malgoCtx.Devices(malgo.Capture)
	if err != nil {
		freeContext(malgoCtx)
		return errors.New(err).
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}

	deviceInfo, err := SelectDevice(infos, s.config.DeviceName)
	if err != nil {
		freeContext(malgoCtx)
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = s.config.Channels
	deviceConfig.Capture.DeviceID = deviceInfo.ID.Pointer()
	deviceConfig.SampleRate = s.config.SampleRate
	deviceConfig.PeriodSizeInFrames = s.config.PeriodFrames
	deviceConfig.Alsa.NoMMap = 1

	s.sink = sink
	s.stopCh = make(chan struct{})

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onAudioData,
		Stop: s.onDeviceStop,
	})
	if err != nil {
		freeContext(malgoCtx)
		return errors.New(err).
			Category(errors.CategoryAudioSource).
			Context("device_name", deviceInfo.Name()).
			Context("operation", "init_device").
			Build()
	}

	// Mark running before the first callback can fire
	s.running.Store(true)
	if err := device.Start(); err != nil {
		s.running.Store(false)
		device.Uninit()
		freeContext(malgoCtx)
		return errors.New(err).
			Category(errors.CategoryAudioSource).
			Context("device_name", deviceInfo.Name()).
			Context("operation", "start_device").
			Build()
	}

	s.ctx = malgoCtx
	s.device = device
	s.deviceName = deviceInfo.Name()

	log.Info("audio capture started",
		logger.String("device", s.deviceName),
		logger.Int("sample_rate", int(s.config.SampleRate)),
		logger.Int("channels", int(s.config.Channels)))

	// Stop capture when the caller's context ends
	stopCh := s.stopCh
	s.monitors.Add(1)
	go func() {
		defer s.monitors.Done()
		select {
		case <-ctx.Done():
			s.stop()
		case <-stopCh:
		}
	}()

	return nil
}

// Stop halts audio capture and releases the device. It is safe to call more than once.
func (s *Source) Stop() error {
	s.stop()
	s.monitors.Wait()
	return nil
}

// stop releases the device without waiting for helper goroutines, so the context
// monitor can call it
func (s *Source) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Swap(false) {
		return
	}
	close(s.stopCh)

	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	if s.ctx != nil {
		freeContext(s.ctx)
		s.ctx = nil
	}

	GetLogger().Info("audio capture stopped", logger.String("device", s.deviceName))
}

// onAudioData is called by malgo on the driver thread when audio data is available
func (s *Source) onAudioData(_, samples []byte, _ uint32) {
	if !s.running.Load() {
		return
	}
	s.sink(samples)
}

// onDeviceStop is called when the device stops, either by Stop or unexpectedly
func (s *Source) onDeviceStop() {
	if !s.running.Load() {
		return
	}

	GetLogger().Warn("audio device stopped unexpectedly, restarting",
		logger.String("device", s.deviceName),
		logger.Duration("delay", restartDelay))

	stopCh := s.stopCh
	s.monitors.Add(1)
	go func() {
		defer s.monitors.Done()
		select {
		case <-stopCh:
			return
		case <-time.After(restartDelay):
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.running.Load() || s.device == nil {
			return
		}
		if err := s.device.Start(); err != nil {
			GetLogger().Error("failed to restart audio device",
				logger.String("device", s.deviceName),
				logger.Error(err))
		}
	}()
}

// backendsForPlatform returns the malgo backend for the current platform, nil lets
// miniaudio pick
func backendsForPlatform() []malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return []malgo.Backend{malgo.BackendAlsa}
	case "windows":
		return []malgo.Backend{malgo.BackendWasapi}
	case "darwin":
		return []malgo.Backend{malgo.BackendCoreaudio}
	default:
		return nil
	}
}

func freeContext(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}
