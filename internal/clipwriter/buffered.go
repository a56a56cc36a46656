package clipwriter

import (
	"github.com/tphakala/voicerec/internal/audiocore"
	"github.com/tphakala/voicerec/internal/errors"
	"github.com/tphakala/voicerec/internal/logger"
	"github.com/tphakala/voicerec/internal/segment"
)

// Buffered writes complete in-memory segments. With inMemory set the WAV file is skipped
// and the PCM is passed to the handler under a reserved name.
type Buffered struct {
	namer    *Namer
	format   audiocore.AudioFormat
	onClip   Handler
	inMemory bool
	log      logger.Logger
}

// NewBuffered creates a segment writer. onClip may be nil unless inMemory is set.
func NewBuffered(namer *Namer, format audiocore.AudioFormat, onClip Handler, inMemory bool) *Buffered {
	return &Buffered{
		namer:    namer,
		format:   format,
		onClip:   onClip,
		inMemory: inMemory && onClip != nil,
		log:      GetLogger().With(logger.String("writer", "buffered")),
	}
}

// WriteSegment persists seg and reports the resulting clip.
func (b *Buffered) WriteSegment(seg *segment.Segment) error {
	size := seg.Bytes()
	clip := Clip{
		Start:    seg.Start,
		Duration: b.format.Duration(size),
		Bytes:    int64(size),
	}

	if b.inMemory {
		path, err := b.namer.Reserve(seg.Start)
		if err != nil {
			return err
		}
		pcm := make([]byte, 0, size)
		for _, f := range seg.Frames {
			pcm = append(pcm, f...)
		}
		clip.Path = path
		clip.PCM = pcm
		b.log.Debug("segment handed over in memory",
			logger.String("path", path),
			logger.Duration("duration", clip.Duration))
		b.onClip(clip)
		return nil
	}

	w, err := b.namer.Create(seg.Start, b.format)
	if err != nil {
		return err
	}
	var writeErr error
	for _, f := range seg.Frames {
		if writeErr = w.Write(f); writeErr != nil {
			break
		}
	}
	if writeErr != nil {
		b.log.Error("segment write failed, finalizing partial file",
			logger.String("path", w.Path()),
			logger.Int64("bytes", w.Bytes()),
			logger.Error(writeErr))
		if w.Bytes() == 0 {
			w.Abort()
			return writeErr
		}
	}
	if err := w.Close(); err != nil {
		return errors.Join(writeErr, err)
	}

	clip.Path = w.Path()
	clip.Bytes = w.Bytes()
	clip.Duration = b.format.Duration(int(w.Bytes()))
	b.log.Info("segment written",
		logger.String("path", clip.Path),
		logger.Duration("duration", clip.Duration),
		logger.Int("frames", seg.Len()))
	if b.onClip != nil {
		b.onClip(clip)
	}
	return writeErr
}

var (
	_ segment.StreamWriter  = (*Rotating)(nil)
	_ segment.SegmentWriter = (*Buffered)(nil)
)
