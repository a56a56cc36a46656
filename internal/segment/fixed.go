package segment

import (
	"time"

	"github.com/tphakala/voicerec/internal/audiocore"
	"github.com/tphakala/voicerec/internal/errors"
	"github.com/tphakala/voicerec/internal/logger"
)

// FixedPolicy cuts the stream into segments of a fixed number of samples per channel.
// A frame straddling the boundary is split so every closed segment holds exactly the
// capacity. A capacity of 0 writes one segment until Close.
type FixedPolicy struct {
	writer   StreamWriter
	clock    Clock
	format   audiocore.AudioFormat
	capacity int64

	open     bool
	written  int64
	segments uint64
	log      logger.Logger
}

// NewFixedPolicy creates a fixed-duration policy. capacity is in samples per channel.
func NewFixedPolicy(capacity int64, format audiocore.AudioFormat, writer StreamWriter, clock Clock) (*FixedPolicy, error) {
	if capacity < 0 {
		return nil, newConfigError("segment capacity must be non-negative", map[string]any{"capacity": capacity})
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if writer == nil {
		return nil, newConfigError("segment writer is required", nil)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &FixedPolicy{
		writer:   writer,
		clock:    clock,
		format:   format,
		capacity: capacity,
		log:      GetLogger().With(logger.String("policy", "fixed")),
	}, nil
}

// Process writes the frame to the open segment, opening one first if needed.
func (p *FixedPolicy) Process(frame audiocore.Frame) error {
	align := p.format.BlockAlign()
	if len(frame)%align != 0 {
		return errors.New(ErrInvalidFrame).
			Component(componentSegment).
			Category(errors.CategoryValidation).
			Context("frame_bytes", len(frame)).
			Context("block_align", align).
			Build()
	}

	data := []byte(frame)
	for len(data) > 0 {
		if !p.open {
			if err := p.writer.Open(p.clock.Now()); err != nil {
				return err
			}
			p.open = true
			p.written = 0
		}

		chunk := data
		if p.capacity > 0 {
			remaining := int((p.capacity - p.written) * int64(align))
			if len(chunk) > remaining {
				chunk = chunk[:remaining]
			}
		}

		if err := p.writer.Write(chunk); err != nil {
			p.open = false
			return err
		}
		p.written += int64(p.format.Samples(len(chunk)))
		data = data[len(chunk):]

		if p.capacity > 0 && p.written >= p.capacity {
			if err := p.closeSegment(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close finalizes the open segment, if any.
func (p *FixedPolicy) Close() error {
	if !p.open {
		return nil
	}
	return p.closeSegment()
}

func (p *FixedPolicy) closeSegment() error {
	written := p.written
	p.open = false
	p.written = 0
	if err := p.writer.Close(); err != nil {
		return err
	}
	p.segments++
	p.log.Debug("segment closed",
		logger.Int64("samples", written),
		logger.Duration("duration", samplesDuration(written, p.format.SampleRate)),
		logger.Uint64("segments", p.segments))
	return nil
}

// Segments returns how many segments have been closed successfully.
func (p *FixedPolicy) Segments() uint64 {
	return p.segments
}

// Capacity returns the segment length in samples per channel, 0 for unbounded.
func (p *FixedPolicy) Capacity() int64 {
	return p.capacity
}

// SegmentDuration returns the segment length as a duration, 0 for unbounded.
func (p *FixedPolicy) SegmentDuration() time.Duration {
	return samplesDuration(p.capacity, p.format.SampleRate)
}

func samplesDuration(samples int64, rate int) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(rate)
}
