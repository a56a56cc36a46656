package audiocore

import "time"

// Component identifier for audiocore errors
const ComponentAudioCore = "audiocore"

// EncodingPCMS16LE is the only sample encoding voicerec handles.
const EncodingPCMS16LE = "pcm_s16le"

const (
	// MinQueueCapacity is the smallest frame queue the recorder will create.
	MinQueueCapacity = 1

	// DefaultPopTimeout bounds how long Pop waits when the caller passes zero.
	DefaultPopTimeout = 500 * time.Millisecond
)
