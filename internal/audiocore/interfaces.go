package audiocore

import (
	"context"
	"time"
)

// AudioFormat represents the format of interleaved PCM audio
type AudioFormat struct {
	SampleRate int    // Sample rate in Hz (e.g., 48000)
	Channels   int    // Number of channels (1 for mono, 2 for stereo)
	BitDepth   int    // Bits per sample, always 16
	Encoding   string // Encoding format, always "pcm_s16le"
}

// Frame is a fixed-size block of little-endian 16-bit PCM bytes. It is never modified
// after the Framer produces it.
type Frame []byte

// FrameSink receives raw PCM bytes from a capture callback. Implementations must return
// quickly and must not retain the slice after returning.
type FrameSink func(pcm []byte)

// AudioSource represents an audio input source
type AudioSource interface {
	// Name returns a human-readable name for this source
	Name() string

	// Start begins audio capture, delivering PCM bytes to sink from the driver's goroutine.
	// Start returns once capture is running.
	Start(ctx context.Context, sink FrameSink) error

	// Stop halts audio capture. No sink call happens after Stop returns.
	Stop() error

	// IsActive returns true if the source is currently capturing
	IsActive() bool

	// GetFormat returns the audio format of this source
	GetFormat() AudioFormat
}

// NewPCM16Format returns the 16-bit PCM format used throughout voicerec.
func NewPCM16Format(sampleRate, channels int) AudioFormat {
	return AudioFormat{
		SampleRate: sampleRate,
		Channels:   channels,
		BitDepth:   16,
		Encoding:   EncodingPCMS16LE,
	}
}

// Validate checks that the format can be framed.
func (f AudioFormat) Validate() error {
	switch {
	case f.SampleRate <= 0:
		return newFormatError("sample rate must be positive", f)
	case f.Channels < 1 || f.Channels > 2:
		return newFormatError("channels must be 1 or 2", f)
	case f.BitDepth != 16:
		return newFormatError("only 16-bit PCM is supported", f)
	}
	return nil
}

// BlockAlign returns the number of bytes in one sample frame across all channels.
func (f AudioFormat) BlockAlign() int {
	return f.Channels * f.BitDepth / 8
}

// BytesPerSecond returns the byte rate of the format.
func (f AudioFormat) BytesPerSecond() int {
	return f.SampleRate * f.BlockAlign()
}

// Samples returns how many samples per channel n bytes hold.
func (f AudioFormat) Samples(n int) int {
	if align := f.BlockAlign(); align > 0 {
		return n / align
	}
	return 0
}

// Duration returns the playback length of n bytes.
func (f AudioFormat) Duration(n int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Samples(n)) * time.Second / time.Duration(f.SampleRate)
}

// FrameBytes returns the byte size of a frame holding samples per channel.
func (f AudioFormat) FrameBytes(samples int) int {
	return samples * f.BlockAlign()
}
