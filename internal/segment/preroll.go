package segment

import (
	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/voicerec/internal/audiocore"
	"github.com/tphakala/voicerec/internal/errors"
	"github.com/tphakala/voicerec/internal/logger"
)

// PreRollBuffer keeps the most recent frames seen while idle so a segment can start with
// the audio that preceded the trigger. When full, pushing evicts the oldest frame.
type PreRollBuffer struct {
	rb         *ringbuffer.RingBuffer
	frameBytes int
	capacity   int
}

// NewPreRollBuffer creates a buffer holding up to frames frames of frameBytes each.
func NewPreRollBuffer(frames, frameBytes int) (*PreRollBuffer, error) {
	if frames < 1 || frameBytes < 1 {
		return nil, newConfigError("pre-roll buffer needs at least one frame", map[string]any{
			"frames":      frames,
			"frame_bytes": frameBytes,
		})
	}
	return &PreRollBuffer{
		rb:         ringbuffer.New(frames * frameBytes),
		frameBytes: frameBytes,
		capacity:   frames,
	}, nil
}

// Push appends a frame, dropping the oldest one when the buffer is full.
func (p *PreRollBuffer) Push(frame audiocore.Frame) error {
	if len(frame) != p.frameBytes {
		return errors.New(ErrInvalidFrame).
			Component(componentSegment).
			Category(errors.CategoryValidation).
			Context("expected_bytes", p.frameBytes).
			Context("actual_bytes", len(frame)).
			Build()
	}

	if p.rb.Free() < p.frameBytes {
		discard := make([]byte, p.frameBytes)
		if _, err := p.rb.Read(discard); err != nil {
			return errors.New(err).
				Component(componentSegment).
				Category(errors.CategoryBuffer).
				Context("operation", "preroll_evict").
				Build()
		}
	}

	if _, err := p.rb.Write(frame); err != nil {
		if errors.Is(err, ringbuffer.ErrIsFull) {
			GetLogger().Warn("pre-roll buffer full after eviction",
				logger.Int("frames", p.Len()),
				logger.Int("capacity", p.capacity))
		}
		return errors.New(err).
			Component(componentSegment).
			Category(errors.CategoryBuffer).
			Context("operation", "preroll_write").
			Build()
	}
	return nil
}

// Snapshot returns copies of the buffered frames, oldest first, leaving the buffer unchanged.
func (p *PreRollBuffer) Snapshot() []audiocore.Frame {
	n := p.Len()
	if n == 0 {
		return nil
	}

	data := make([]byte, n*p.frameBytes)
	read, err := p.rb.Read(data)
	if err != nil || read != len(data) {
		GetLogger().Error("failed to read pre-roll buffer",
			logger.Int("frames", n),
			logger.Int("bytes_read", read),
			logger.Error(err))
		p.rb.Reset()
		return nil
	}
	// reading drains the ring, put the bytes back so tracking continues
	if _, err := p.rb.Write(data); err != nil {
		GetLogger().Error("failed to restore pre-roll buffer",
			logger.Int("frames", n),
			logger.Error(err))
	}

	frames := make([]audiocore.Frame, n)
	for i := range frames {
		frames[i] = audiocore.Frame(data[i*p.frameBytes : (i+1)*p.frameBytes : (i+1)*p.frameBytes])
	}
	return frames
}

// Len returns the number of buffered frames.
func (p *PreRollBuffer) Len() int {
	return p.rb.Length() / p.frameBytes
}

// Capacity returns the maximum number of frames held.
func (p *PreRollBuffer) Capacity() int {
	return p.capacity
}

// Reset empties the buffer.
func (p *PreRollBuffer) Reset() {
	p.rb.Reset()
}
