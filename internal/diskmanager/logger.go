// Package diskmanager checks free space in the recording output directory.
package diskmanager

import "github.com/tphakala/voicerec/internal/logger"

// GetLogger returns the diskmanager module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("diskmanager")
}
