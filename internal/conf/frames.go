package conf

import (
	"math"
	"time"
)

// FrameSamples returns the number of samples per channel in one capture frame.
// Voice mode uses the detector frame duration, fixed mode uses the block size.
func (s *Settings) FrameSamples() int {
	if s.Segment.Mode == ModeVoice {
		return s.Audio.SampleRate * s.Segment.Voice.FrameMs / 1000
	}
	return s.Audio.BlockSize
}

// FrameBytes returns the size of one capture frame in bytes.
func (s *Settings) FrameBytes() int {
	return s.FrameSamples() * s.Audio.Channels * BytesPerSample
}

// FrameDuration returns the wall-clock length of one capture frame.
func (s *Settings) FrameDuration() time.Duration {
	return time.Duration(s.FrameSamples()) * time.Second / time.Duration(s.Audio.SampleRate)
}

// QueueCapacity returns the frame queue capacity in frames.
func (s *Settings) QueueCapacity() int {
	if s.Audio.QueueFrames > 0 {
		return s.Audio.QueueFrames
	}
	samples := s.FrameSamples()
	if samples <= 0 {
		return 1
	}
	frames := (DefaultQueueSeconds*s.Audio.SampleRate + samples - 1) / samples
	return max(frames, 8)
}

// SegmentCapacity returns the fixed mode segment length in samples per channel, 0 for unbounded.
func (s *Settings) SegmentCapacity() int64 {
	return int64(s.Segment.Fixed.Seconds * float64(s.Audio.SampleRate))
}

// Frames converts a duration in seconds to a whole number of voice frames, rounding to nearest.
func (v *VoiceSettings) Frames(seconds float64) int {
	if v.FrameMs <= 0 || seconds <= 0 {
		return 0
	}
	return int(math.Round(seconds * 1000 / float64(v.FrameMs)))
}
