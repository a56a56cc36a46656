// Package segment decides where recorded audio is cut into files.
//
// Two policies consume the frame stream one frame at a time. FixedPolicy cuts after a fixed
// number of samples and streams frames straight into the open file. VoicePolicy runs a voice
// detector over every frame and buffers a whole segment in memory until silence or the
// maximum length closes it.
//
// Policies are driven by a single consumer goroutine and are not safe for concurrent use.
package segment

import (
	"time"

	"github.com/tphakala/voicerec/internal/audiocore"
	"github.com/tphakala/voicerec/internal/errors"
	"github.com/tphakala/voicerec/internal/logger"
)

const componentSegment = "segment"

// Sentinel errors
var (
	// ErrInvalidPolicyConfig is returned when a policy is created with unusable parameters
	ErrInvalidPolicyConfig = errors.NewStd("invalid segmentation config")

	// ErrInvalidFrame is returned when a frame does not match the policy's frame size
	ErrInvalidFrame = errors.NewStd("invalid frame for segmentation")
)

// Segment is a closed voice segment held in memory.
type Segment struct {
	Start  time.Time
	Frames []audiocore.Frame
}

// Bytes returns the total PCM size of the segment.
func (s *Segment) Bytes() int {
	n := 0
	for _, f := range s.Frames {
		n += len(f)
	}
	return n
}

// Len returns the number of frames in the segment.
func (s *Segment) Len() int {
	return len(s.Frames)
}

// Clock supplies segment start times.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current local time.
func (SystemClock) Now() time.Time { return time.Now() }

// StreamWriter receives audio for one open segment at a time.
// Close on a writer with no open segment is a no-op. A failed Write aborts the open segment.
type StreamWriter interface {
	Open(start time.Time) error
	Write(pcm []byte) error
	Close() error
}

// SegmentWriter persists a complete in-memory segment.
type SegmentWriter interface {
	WriteSegment(seg *Segment) error
}

// Policy consumes frames and cuts them into segments.
type Policy interface {
	// Process handles one frame. Errors are storage failures from the writer.
	Process(frame audiocore.Frame) error
	// Close finalizes any open segment. It is safe to call more than once.
	Close() error
}

// GetLogger returns the segmentation module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("segment")
}

func newConfigError(reason string, ctx map[string]any) error {
	b := errors.New(ErrInvalidPolicyConfig).
		Component(componentSegment).
		Category(errors.CategoryValidation).
		Context("reason", reason)
	for k, v := range ctx {
		b = b.Context(k, v)
	}
	return b.Build()
}
