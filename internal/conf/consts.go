// conf/consts.go hard coded constants
package conf

import "time"

const (
	BitDepth       = 16 // PCM sample width, the only one supported
	BytesPerSample = BitDepth / 8

	DefaultSampleRate = 48000
	DefaultBlockSize  = 2048

	// DefaultPopTimeout bounds how long the consumer waits for a frame before re-checking
	// for shutdown.
	DefaultPopTimeout = 500 * time.Millisecond

	// DefaultQueueSeconds sizes the frame queue when audio.queueframes is 0.
	DefaultQueueSeconds = 2

	// ConsecutiveWriteFailureLimit is how many storage failures in a row, with no segment
	// ever written, make a run fatal.
	ConsecutiveWriteFailureLimit = 3
)

// Segmentation modes
const (
	ModeFixed = "fixed"
	ModeVoice = "voice"
)

// Capture backends
const (
	BackendMalgo     = "malgo"
	BackendPortAudio = "portaudio"
	BackendReader    = "reader"
)

// VoiceSampleRates are the sample rates the voice detector accepts.
var VoiceSampleRates = []int{8000, 16000, 32000, 48000}

// VoiceFrameDurations are the frame lengths in milliseconds the voice detector accepts.
var VoiceFrameDurations = []int{10, 20, 30}
