package malgo

import "github.com/tphakala/voicerec/internal/logger"

// GetLogger returns the capture module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("audio.capture")
}
