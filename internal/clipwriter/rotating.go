package clipwriter

import (
	"time"

	"github.com/tphakala/voicerec/internal/audiocore"
	"github.com/tphakala/voicerec/internal/audiocore/export"
	"github.com/tphakala/voicerec/internal/errors"
	"github.com/tphakala/voicerec/internal/logger"
)

// ErrNoOpenSegment is returned by Write when no segment is open
var ErrNoOpenSegment = errors.NewStd("no open segment")

// Rotating streams frames into one WAV file per segment. It is driven by a single goroutine.
type Rotating struct {
	namer  *Namer
	format audiocore.AudioFormat
	onClip Handler

	current *export.WAVWriter
	start   time.Time
	log     logger.Logger
}

// NewRotating creates a streaming writer. onClip may be nil.
func NewRotating(namer *Namer, format audiocore.AudioFormat, onClip Handler) *Rotating {
	return &Rotating{
		namer:  namer,
		format: format,
		onClip: onClip,
		log:    GetLogger().With(logger.String("writer", "rotating")),
	}
}

// Open starts a new file named after start. An already open file is finalized first.
func (r *Rotating) Open(start time.Time) error {
	if r.current != nil {
		if err := r.Close(); err != nil {
			r.log.Warn("failed to finalize previous segment", logger.Error(err))
		}
	}

	w, err := r.namer.Create(start, r.format)
	if err != nil {
		return err
	}
	r.current = w
	r.start = start
	r.log.Debug("segment file opened", logger.String("path", w.Path()))
	return nil
}

// Write appends PCM to the open file. On failure the file is finalized with the audio
// written so far and reported, and the next Write needs a new Open.
func (r *Rotating) Write(pcm []byte) error {
	if r.current == nil {
		return errors.New(ErrNoOpenSegment).
			Component("clipwriter").
			Category(errors.CategoryState).
			Build()
	}
	if err := r.current.Write(pcm); err != nil {
		r.log.Error("segment write failed, finalizing partial file",
			logger.String("path", r.current.Path()),
			logger.Int64("bytes", r.current.Bytes()),
			logger.Error(err))
		if cerr := r.Close(); cerr != nil {
			r.log.Error("failed to finalize partial segment", logger.Error(cerr))
		}
		return err
	}
	return nil
}

// Close finalizes the open file and reports it. Without an open file it does nothing.
// A file that never took any audio is removed instead.
func (r *Rotating) Close() error {
	if r.current == nil {
		return nil
	}
	w := r.current
	r.current = nil

	if w.Bytes() == 0 {
		w.Abort()
		r.log.Debug("empty segment removed", logger.String("path", w.Path()))
		return nil
	}
	// on a finalize error the file keeps its audio, only the header may be stale
	if err := w.Close(); err != nil {
		return err
	}

	clip := Clip{
		Path:     w.Path(),
		Start:    r.start,
		Duration: r.format.Duration(int(w.Bytes())),
		Bytes:    w.Bytes(),
	}
	r.log.Info("segment written",
		logger.String("path", clip.Path),
		logger.Duration("duration", clip.Duration))
	if r.onClip != nil {
		r.onClip(clip)
	}
	return nil
}

// Active reports whether a file is open.
func (r *Rotating) Active() bool {
	return r.current != nil
}
