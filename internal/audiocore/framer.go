package audiocore

import (
	"github.com/tphakala/voicerec/internal/errors"
)

// Framer re-chunks the variable-size buffers a capture driver delivers into frames of
// exactly frameBytes bytes. A partial frame is carried over to the next Write.
// Framer is owned by the capture goroutine and is not safe for concurrent use.
type Framer struct {
	frameBytes int
	pending    []byte
	emit       func(Frame)
}

// NewFramer returns a Framer that hands every complete frame to emit. Each emitted
// frame is a fresh copy owned by the receiver.
func NewFramer(frameBytes int, emit func(Frame)) (*Framer, error) {
	if frameBytes <= 0 || frameBytes%2 != 0 {
		return nil, errors.New(ErrInvalidFrameSize).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Context("frame_bytes", frameBytes).
			Build()
	}
	return &Framer{
		frameBytes: frameBytes,
		pending:    make([]byte, 0, frameBytes),
		emit:       emit,
	}, nil
}

// Write consumes pcm, emitting as many complete frames as it can. It has the FrameSink
// signature so it can be handed directly to AudioSource.Start.
func (f *Framer) Write(pcm []byte) {
	for len(pcm) > 0 {
		// Fast path, whole frame available and nothing carried over
		if len(f.pending) == 0 && len(pcm) >= f.frameBytes {
			frame := make(Frame, f.frameBytes)
			copy(frame, pcm[:f.frameBytes])
			f.emit(frame)
			pcm = pcm[f.frameBytes:]
			continue
		}

		n := min(f.frameBytes-len(f.pending), len(pcm))
		f.pending = append(f.pending, pcm[:n]...)
		pcm = pcm[n:]

		if len(f.pending) == f.frameBytes {
			frame := make(Frame, f.frameBytes)
			copy(frame, f.pending)
			f.pending = f.pending[:0]
			f.emit(frame)
		}
	}
}

// Pending returns the number of carried-over bytes not yet emitted.
func (f *Framer) Pending() int {
	return len(f.pending)
}

// Flush returns a copy of the carried-over partial frame and clears it. It returns nil
// when nothing is pending. Call it only after the capture goroutine has stopped.
func (f *Framer) Flush() Frame {
	if len(f.pending) == 0 {
		return nil
	}
	frame := make(Frame, len(f.pending))
	copy(frame, f.pending)
	f.pending = f.pending[:0]
	return frame
}

// Reset discards any partial frame.
func (f *Framer) Reset() {
	f.pending = f.pending[:0]
}

// FrameBytes returns the size of the frames this Framer emits.
func (f *Framer) FrameBytes() int {
	return f.frameBytes
}
