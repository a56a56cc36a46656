package clipwriter

import (
	"time"

	"github.com/tphakala/voicerec/internal/logger"
)

// Clip describes a finished segment.
type Clip struct {
	// Path is the WAV file, or the reserved WAV path when the audio was not written to disk
	Path     string
	Start    time.Time
	Duration time.Duration
	Bytes    int64
	// PCM holds the raw audio when the segment is handed over in memory
	PCM []byte
}

// InMemory reports whether the clip has no file on disk.
func (c Clip) InMemory() bool { return c.PCM != nil }

// Handler is called once per finished clip.
type Handler func(Clip)

// GetLogger returns the clip writer module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("clipwriter")
}
