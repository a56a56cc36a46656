package portaudio

import "github.com/tphakala/voicerec/internal/logger"

// Config contains configuration for the PortAudio source
type Config struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int
}

func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = 48000
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
	if c.FramesPerBuffer == 0 {
		c.FramesPerBuffer = 1024
	}
	return c
}

// GetLogger returns the capture module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("audio.capture")
}
