package recorder

import (
	"context"

	"github.com/tphakala/voicerec/internal/audiocore"
	"github.com/tphakala/voicerec/internal/audiocore/export"
	"github.com/tphakala/voicerec/internal/clipwriter"
	"github.com/tphakala/voicerec/internal/encoder"
	"github.com/tphakala/voicerec/internal/logger"
	"github.com/tphakala/voicerec/internal/mqtt"
	"github.com/tphakala/voicerec/internal/observability/metrics"
)

// onClip runs on the consumer goroutine for every finished segment.
func (r *Recorder) onClip(clip clipwriter.Clip) {
	r.segments.Add(1)
	r.writeFailures.Store(0)
	r.everWritten.Store(true)
	if r.metrics != nil {
		r.metrics.Recorder.RecordSegment(r.mode, metrics.LabelKept, clip.Duration.Seconds())
	}
	r.guard.Check()

	ev := mqtt.SegmentEvent{
		Session:         r.session,
		Mode:            r.mode,
		Path:            clip.Path,
		Start:           clip.Start,
		DurationSeconds: clip.Duration.Seconds(),
		Bytes:           clip.Bytes,
	}

	if r.encoder == nil {
		r.emit(ev)
		return
	}

	if r.events != nil {
		r.pending.Store(clip.Path, ev)
	}
	var err error
	if clip.InMemory() {
		_, err = r.encoder.SubmitPCM(clip.Path, clip.PCM, r.format)
	} else {
		_, err = r.encoder.SubmitFile(clip.Path)
	}
	if err == nil {
		return
	}

	r.pending.Delete(clip.Path)
	r.log.Warn("failed to queue segment for encoding, keeping WAV",
		logger.String("path", clip.Path),
		logger.Error(err))
	if clip.InMemory() {
		if werr := export.WriteWAV(clip.Path, r.format, []audiocore.Frame{clip.PCM}); werr != nil {
			r.log.Error("failed to save unencoded segment",
				logger.String("path", clip.Path),
				logger.Error(werr))
			return
		}
	}
	r.emit(ev)
}

// onEncodeResult runs on an encoder worker goroutine.
func (r *Recorder) onEncodeResult(res encoder.Result) {
	if r.metrics != nil {
		r.metrics.Recorder.RecordEncode(encodeLabel(res.Status), res.Duration.Seconds())
	}

	v, ok := r.pending.LoadAndDelete(res.Job.Source)
	if !ok {
		return
	}
	ev := v.(mqtt.SegmentEvent)
	if res.Status == encoder.JobStatusCompleted {
		ev.EncodedPath = res.Job.Destination
	}
	r.emit(ev)
}

func encodeLabel(status encoder.JobStatus) string {
	switch status {
	case encoder.JobStatusCompleted:
		return metrics.LabelSuccess
	case encoder.JobStatusAbandoned:
		return metrics.LabelAbandoned
	default:
		return metrics.LabelError
	}
}

// emit hands ev to the delivery goroutine without blocking. Events are dropped when the
// broker cannot keep up.
func (r *Recorder) emit(ev mqtt.SegmentEvent) {
	if r.events == nil {
		return
	}
	select {
	case r.events <- ev:
	default:
		n := r.eventsDropped.Add(1)
		r.log.Warn("segment event dropped, publisher backlog full",
			logger.String("path", ev.Path),
			logger.Uint64("dropped_events", n))
	}
}

func (r *Recorder) deliverEvents(ctx context.Context) {
	for ev := range r.events {
		if err := r.publisher.PublishSegment(ctx, ev); err != nil {
			r.log.Debug("segment event not published",
				logger.String("path", ev.Path),
				logger.Error(err))
		}
	}
}
