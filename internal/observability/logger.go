package observability

import "github.com/tphakala/voicerec/internal/logger"

func log() logger.Logger {
	return logger.Global().Module("observability")
}
