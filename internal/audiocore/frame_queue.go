package audiocore

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tphakala/voicerec/internal/errors"
)

// QueueStats is a snapshot of FrameQueue counters.
type QueueStats struct {
	Pushed    uint64 // frames accepted
	Dropped   uint64 // frames rejected because the queue was full
	Malformed uint64 // frames rejected because of a wrong byte length
	Depth     int    // frames currently queued
	Capacity  int
}

// FrameQueue is the bounded hand-off between the capture callback and the consumer loop.
// Push never blocks: a full queue drops the incoming frame and counts it. Nothing is ever
// reported back to the audio driver.
type FrameQueue struct {
	frames     chan Frame
	frameBytes int

	pushed    atomic.Uint64
	dropped   atomic.Uint64
	malformed atomic.Uint64
}

// NewFrameQueue creates a queue holding up to capacity frames of exactly frameBytes bytes.
func NewFrameQueue(capacity, frameBytes int) (*FrameQueue, error) {
	if capacity < MinQueueCapacity || frameBytes <= 0 {
		return nil, errors.New(ErrInvalidQueueSize).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Context("capacity", capacity).
			Context("frame_bytes", frameBytes).
			Build()
	}
	return &FrameQueue{
		frames:     make(chan Frame, capacity),
		frameBytes: frameBytes,
	}, nil
}

// Push offers a frame to the queue and reports whether it was accepted. It is safe to
// call from a real-time callback.
func (q *FrameQueue) Push(frame Frame) bool {
	if len(frame) != q.frameBytes {
		q.malformed.Add(1)
		return false
	}

	select {
	case q.frames <- frame:
		q.pushed.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Pop waits up to timeout for a frame. It returns false when the timeout expires or ctx
// is done, so the caller can re-check for shutdown at a bounded interval.
func (q *FrameQueue) Pop(ctx context.Context, timeout time.Duration) (Frame, bool) {
	// Avoid arming a timer when a frame is already waiting
	select {
	case frame := <-q.frames:
		return frame, true
	default:
	}

	if timeout <= 0 {
		timeout = DefaultPopTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case frame := <-q.frames:
		return frame, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// TryPop returns a queued frame without waiting.
func (q *FrameQueue) TryPop() (Frame, bool) {
	select {
	case frame := <-q.frames:
		return frame, true
	default:
		return nil, false
	}
}

// Len returns the number of frames currently queued.
func (q *FrameQueue) Len() int {
	return len(q.frames)
}

// FrameBytes returns the frame size the queue accepts.
func (q *FrameQueue) FrameBytes() int {
	return q.frameBytes
}

// Stats returns a snapshot of the queue counters.
func (q *FrameQueue) Stats() QueueStats {
	return QueueStats{
		Pushed:    q.pushed.Load(),
		Dropped:   q.dropped.Load(),
		Malformed: q.malformed.Load(),
		Depth:     len(q.frames),
		Capacity:  cap(q.frames),
	}
}
