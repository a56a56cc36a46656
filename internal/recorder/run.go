package recorder

import (
	"context"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/voicerec/internal/audiocore"
	"github.com/tphakala/voicerec/internal/conf"
	"github.com/tphakala/voicerec/internal/errors"
	"github.com/tphakala/voicerec/internal/logger"
)

// finiteSource is implemented by sources that end on their own, such as file input.
type finiteSource interface {
	Done() <-chan struct{}
}

// Run captures until ctx is cancelled, the input ends or storage fails for good. On the
// way out it stops capture, processes frames still queued, finalizes the open segment
// and waits for background encodes before returning.
func (r *Recorder) Run(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return errors.New(ErrAlreadyRunning).
			Component(componentRecorder).
			Category(errors.CategoryState).
			Build()
	}

	if err := r.preflight(); err != nil {
		return err
	}

	// Encoding and event delivery outlive ctx so that shutdown can finish them.
	bgCtx, bgCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer bgCancel()

	var g errgroup.Group
	if r.events != nil {
		g.Go(func() error {
			r.deliverEvents(bgCtx)
			return nil
		})
	}
	if r.encoder != nil {
		r.encoder.Start(bgCtx)
	}

	if err := r.source.Start(ctx, r.framer.Write); err != nil {
		r.finishBackground(bgCtx)
		_ = g.Wait()
		return errors.New(err).
			Component(componentRecorder).
			Category(errors.CategoryAudioSource).
			Context("source", r.source.Name()).
			Build()
	}
	r.startedAt.Store(time.Now().UnixNano())
	r.running.Store(true)

	r.log.Info("recording started",
		logger.String("mode", r.mode),
		logger.String("source", r.source.Name()),
		logger.Int("sample_rate", r.format.SampleRate),
		logger.Int("channels", r.format.Channels),
		logger.Int("frame_bytes", r.queue.FrameBytes()),
		logger.Int("queue_capacity", r.queue.Stats().Capacity),
		logger.String("output", r.namer.Dir()),
		logger.Bool("encode", r.encoder != nil))

	runErr := r.consume(ctx)
	r.shutdown()
	r.finishBackground(bgCtx)
	_ = g.Wait()
	r.running.Store(false)

	r.syncMetrics()
	q := r.queue.Stats()
	r.log.Info("recording stopped",
		logger.Uint64("segments", r.segments.Load()),
		logger.Uint64("frames", q.Pushed),
		logger.Uint64("frames_dropped", q.Dropped),
		logger.Uint64("frames_malformed", q.Malformed))
	return runErr
}

// preflight refuses to start when the output directory is unusable.
func (r *Recorder) preflight() error {
	if err := r.guard.CheckStartup(); err != nil {
		return err
	}
	f, err := os.CreateTemp(r.namer.Dir(), ".voicerec-probe-*")
	if err != nil {
		return errors.New(err).
			Component(componentRecorder).
			Category(errors.CategoryFileIO).
			Context("operation", "probe_output_dir").
			Context("dir", r.namer.Dir()).
			Build()
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// consume is the only goroutine that touches the policy and the open segment.
func (r *Recorder) consume(ctx context.Context) error {
	var done <-chan struct{}
	if fs, ok := r.source.(finiteSource); ok {
		done = fs.Done()
	}
	lastSync := time.Now()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("shutdown requested")
			return nil
		case <-done:
			r.log.Info("audio input ended")
			return nil
		default:
		}

		if frame, ok := r.queue.Pop(ctx, conf.DefaultPopTimeout); ok {
			if err := r.process(frame); err != nil {
				return err
			}
		}

		if time.Since(lastSync) >= metricsSyncInterval {
			r.syncMetrics()
			lastSync = time.Now()
		}
	}
}

// process feeds one frame to the policy. Only a persistent storage failure is returned.
func (r *Recorder) process(frame audiocore.Frame) error {
	err := r.policy.Process(frame)
	r.open.Store(r.segmentOpen())
	if err == nil {
		// the fixed policy writes every frame into the open file, voice segments are
		// only written on close and counted in onClip
		if r.stream != nil && r.stream.Active() {
			r.writeFailures.Store(0)
			r.everWritten.Store(true)
		}
		return nil
	}

	failures := r.writeFailures.Add(1)
	if r.metrics != nil {
		r.metrics.Recorder.RecordWriteError()
	}
	r.log.Error("segment write failed",
		logger.Error(err),
		logger.Int("consecutive_failures", int(failures)))

	if failures >= conf.ConsecutiveWriteFailureLimit && !r.everWritten.Load() {
		return errors.New(ErrStorageFailure).
			Component(componentRecorder).
			Category(errors.CategoryFileIO).
			Context("consecutive_failures", int(failures)).
			Context("dir", r.namer.Dir()).
			Context("last_error", err.Error()).
			Build()
	}
	return nil
}

func (r *Recorder) segmentOpen() bool {
	if r.voice != nil {
		return r.voice.Collecting()
	}
	return r.stream.Active()
}

// shutdown stops capture and flushes everything captured so far into segments.
func (r *Recorder) shutdown() {
	if err := r.source.Stop(); err != nil {
		r.log.Warn("failed to stop audio source", logger.Error(err))
	}

	drained := 0
	for {
		frame, ok := r.queue.TryPop()
		if !ok {
			break
		}
		drained++
		if err := r.process(frame); err != nil {
			r.log.Error("storage failure while draining queued frames", logger.Error(err))
		}
	}

	// a trailing partial frame only fits the fixed policy, the detector needs whole frames
	if tail := r.framer.Flush(); tail != nil && r.voice == nil {
		tail = tail[:len(tail)-len(tail)%r.format.BlockAlign()]
		if len(tail) > 0 {
			if err := r.policy.Process(tail); err != nil {
				r.log.Warn("failed to write trailing audio", logger.Error(err))
			}
		}
	}

	if err := r.policy.Close(); err != nil {
		r.log.Error("failed to finalize open segment", logger.Error(err))
	}
	r.open.Store(false)
	r.log.Debug("capture pipeline drained", logger.Int("queued_frames", drained))
}

// finishBackground drains the encode queue and stops event delivery.
func (r *Recorder) finishBackground(ctx context.Context) {
	if r.encoder != nil {
		drainCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout := r.settings.Encode.DrainTimeout; timeout > 0 {
			drainCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		if err := r.encoder.Drain(drainCtx); err != nil {
			r.log.Warn("encode queue drain incomplete", logger.Error(err))
		}
		cancel()
	}
	if r.events != nil {
		close(r.events)
	}
}
