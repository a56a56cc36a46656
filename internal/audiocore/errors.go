package audiocore

import (
	"github.com/tphakala/voicerec/internal/errors"
)

// Sentinel errors, wrapped with context by the functions returning them
var (
	// ErrInvalidAudioFormat is returned when audio format is invalid
	ErrInvalidAudioFormat = errors.NewStd("invalid audio format")

	// ErrInvalidQueueSize is returned when a frame queue is created with a bad geometry
	ErrInvalidQueueSize = errors.NewStd("invalid frame queue size")

	// ErrInvalidFrameSize is returned when a framer is created with an unusable frame size
	ErrInvalidFrameSize = errors.NewStd("invalid frame size")

	// ErrSourceAlreadyActive is returned when Start is called on a running source
	ErrSourceAlreadyActive = errors.NewStd("audio source already active")

	// ErrSourceNotActive is returned when operations require an active source
	ErrSourceNotActive = errors.NewStd("audio source not active")
)

func newFormatError(reason string, f AudioFormat) error {
	return errors.New(ErrInvalidAudioFormat).
		Component(ComponentAudioCore).
		Category(errors.CategoryValidation).
		Context("reason", reason).
		Context("sample_rate", f.SampleRate).
		Context("channels", f.Channels).
		Context("bit_depth", f.BitDepth).
		Build()
}
