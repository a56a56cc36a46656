package encoder

import "github.com/tphakala/voicerec/internal/logger"

// GetLogger returns the encoder module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("encoder")
}
