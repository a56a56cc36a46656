package recorder

import (
	"time"

	"github.com/tphakala/voicerec/internal/conf"
	"github.com/tphakala/voicerec/internal/logger"
	"github.com/tphakala/voicerec/internal/observability"
)

// syncMetrics publishes counter deltas and warns about dropped frames. It runs on the
// consumer goroutine.
func (r *Recorder) syncMetrics() {
	q := r.queue.Stats()
	dropped := q.Dropped - r.lastQueue.Dropped
	malformed := q.Malformed - r.lastQueue.Malformed

	if dropped > 0 && r.dropLimiter.Allow() {
		r.log.Warn("frame queue overflow, audio dropped",
			logger.Uint64("dropped", dropped),
			logger.Uint64("dropped_total", q.Dropped),
			logger.Int("queue_capacity", q.Capacity))
	}
	if malformed > 0 {
		r.log.Debug("malformed frames skipped", logger.Uint64("malformed_total", q.Malformed))
	}

	vs := r.lastVoice
	if r.voice != nil {
		vs = r.voice.Stats()
	}

	if r.metrics != nil {
		m := r.metrics.Recorder
		m.AddFrames(q.Pushed-r.lastQueue.Pushed, dropped, malformed)
		m.SetQueueDepth(q.Depth)
		m.SetCollecting(r.open.Load())
		if n := vs.Discarded - r.lastVoice.Discarded; n > 0 {
			m.AddDiscardedSegments(r.mode, n)
		}
		if r.encoder != nil {
			st := r.encoder.Stats()
			m.SetEncodePending(st.Pending + st.Running)
		}
	}

	r.lastQueue = q
	r.lastVoice = vs
}

// Status implements observability.StatusProvider. Safe to call from any goroutine.
func (r *Recorder) Status() observability.Status {
	q := r.queue.Stats()
	st := observability.Status{
		Session:       r.session,
		Mode:          r.mode,
		Source:        r.source.Name(),
		State:         r.state(),
		Segments:      r.segments.Load(),
		FramesDropped: q.Dropped,
		QueueDepth:    q.Depth,
		DiskSpaceLow:  r.guard.Low(),
		WriteFailures: int(r.writeFailures.Load()),
	}
	if started := r.startedAt.Load(); started > 0 {
		st.UptimeSeconds = int64(time.Since(time.Unix(0, started)).Seconds())
	}
	if r.encoder != nil {
		es := r.encoder.Stats()
		st.EncodePending = es.Pending + es.Running
	}
	st.Healthy = r.running.Load() && st.WriteFailures < conf.ConsecutiveWriteFailureLimit
	return st
}

func (r *Recorder) state() string {
	switch {
	case !r.running.Load():
		return "stopped"
	case r.open.Load():
		return "recording"
	default:
		return "idle"
	}
}
