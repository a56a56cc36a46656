package encoder

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/semaphore"

	"github.com/tphakala/voicerec/internal/audiocore"
	"github.com/tphakala/voicerec/internal/audiocore/export"
	"github.com/tphakala/voicerec/internal/errors"
	"github.com/tphakala/voicerec/internal/logger"
)

// warningDedupWindow suppresses repeats of the same failure message
const warningDedupWindow = 5 * time.Minute

// Config holds queue settings.
type Config struct {
	Workers    int
	Format     export.Format
	KeepSource bool
	// OnResult is called from the worker goroutine after every finished job
	OnResult func(Result)
}

// Queue runs encode jobs in submission order on at most Config.Workers ffmpeg processes.
type Queue struct {
	exporter Exporter
	config   Config
	sem      *semaphore.Weighted

	mu       sync.Mutex
	jobs     []*Job
	started  bool
	stopping bool
	running  int
	stats    Stats

	wake     chan struct{}
	done     chan struct{}
	workers  sync.WaitGroup
	cancel   context.CancelFunc
	warnings *cache.Cache
	log      logger.Logger
}

// NewQueue creates a stopped queue.
func NewQueue(exporter Exporter, config Config) *Queue {
	if config.Workers < 1 {
		config.Workers = 1
	}
	return &Queue{
		exporter: exporter,
		config:   config,
		sem:      semaphore.NewWeighted(int64(config.Workers)),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		warnings: cache.New(warningDedupWindow, cache.NoExpiration),
		log:      GetLogger(),
	}
}

// Start launches the dispatcher. Cancelling ctx kills running ffmpeg processes and
// abandons queued jobs, so pass a context that outlives the recording session.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.mu.Unlock()

	go q.dispatch(runCtx)
}

// SubmitFile queues the WAV file at path for encoding.
func (q *Queue) SubmitFile(path string) (*Job, error) {
	return q.submit(&Job{
		Source:      path,
		Destination: export.ReplaceExtension(path, q.config.Format),
	})
}

// SubmitPCM queues raw audio for encoding. wavPath names the output and is where the audio
// is saved if encoding fails.
func (q *Queue) SubmitPCM(wavPath string, pcm []byte, format audiocore.AudioFormat) (*Job, error) {
	if len(pcm) == 0 {
		return nil, errors.New(ErrInvalidJob).
			Component("encoder").
			Category(errors.CategoryValidation).
			Context("reason", "empty pcm").
			Build()
	}
	return q.submit(&Job{
		Source:      wavPath,
		PCM:         pcm,
		Format:      format,
		Destination: export.ReplaceExtension(wavPath, q.config.Format),
	})
}

func (q *Queue) submit(job *Job) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopping {
		return nil, errors.New(ErrQueueStopped).
			Component("encoder").
			Category(errors.CategoryState).
			Context("source", job.Source).
			Build()
	}
	if !q.started {
		return nil, errors.New(ErrQueueNotStarted).
			Component("encoder").
			Category(errors.CategoryState).
			Build()
	}

	job.ID = uuid.NewString()
	job.KeepSource = q.config.KeepSource
	job.CreatedAt = time.Now()
	q.jobs = append(q.jobs, job)
	q.stats.Submitted++

	q.log.Debug("encode job queued",
		logger.String("job_id", job.ID),
		logger.String("source", job.Source),
		logger.Bool("in_memory", job.InMemory()),
		logger.Int("pending", len(q.jobs)))

	q.signal()
	return job, nil
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// next pops the oldest pending job. It reports false when the queue is empty.
func (q *Queue) next() (job *Job, stopping bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, q.stopping
	}
	job = q.jobs[0]
	q.jobs[0] = nil
	q.jobs = q.jobs[1:]
	q.running++
	return job, q.stopping
}

func (q *Queue) dispatch(ctx context.Context) {
	defer close(q.done)
	defer q.workers.Wait()

	for {
		job, stopping := q.next()
		if job == nil {
			if stopping {
				return
			}
			select {
			case <-q.wake:
				continue
			case <-ctx.Done():
				return
			}
		}

		if err := q.sem.Acquire(ctx, 1); err != nil {
			q.mu.Lock()
			q.running--
			q.jobs = append([]*Job{job}, q.jobs...)
			q.mu.Unlock()
			return
		}

		q.workers.Add(1)
		go func(j *Job) {
			defer q.workers.Done()
			defer q.sem.Release(1)
			q.execute(ctx, j)
		}(job)
	}
}

func (q *Queue) execute(ctx context.Context, job *Job) {
	start := time.Now()
	err := q.encode(ctx, job)

	result := Result{Job: job, Duration: time.Since(start)}
	switch {
	case err == nil:
		result.Status = JobStatusCompleted
		q.removeSource(job)
		q.log.Info("segment encoded",
			logger.String("job_id", job.ID),
			logger.String("output", job.Destination),
			logger.Duration("elapsed", result.Duration))
	case ctx.Err() != nil:
		result.Status = JobStatusAbandoned
		result.Err = err
		result.Fallback = q.saveFallback(job)
	default:
		result.Status = JobStatusFailed
		result.Err = err
		q.warnOnce(job, err)
		result.Fallback = q.saveFallback(job)
	}

	q.mu.Lock()
	q.running--
	switch result.Status {
	case JobStatusCompleted:
		q.stats.Completed++
	case JobStatusFailed:
		q.stats.Failed++
	case JobStatusAbandoned:
		q.stats.Abandoned++
	}
	if result.Fallback != "" {
		q.stats.Fallbacks++
	}
	q.mu.Unlock()

	if q.config.OnResult != nil {
		q.config.OnResult(result)
	}
}

// encode runs the exporter, converting a panic into an error.
func (q *Queue) encode(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("encode job panicked: %v", r)
		}
	}()

	if job.InMemory() {
		return q.exporter.ExportPCM(ctx, job.PCM, job.Format, job.Destination)
	}
	return q.exporter.ExportFile(ctx, job.Source, job.Destination)
}

func (q *Queue) removeSource(job *Job) {
	if job.InMemory() || job.KeepSource {
		return
	}
	if err := os.Remove(job.Source); err != nil && !os.IsNotExist(err) {
		q.log.Warn("failed to remove encoded source",
			logger.String("source", job.Source),
			logger.Error(err))
	}
}

// saveFallback writes the audio of a failed in-memory job as WAV so it is not lost.
func (q *Queue) saveFallback(job *Job) string {
	if !job.InMemory() {
		return ""
	}
	frames := []audiocore.Frame{audiocore.Frame(job.PCM)}
	if err := export.WriteWAV(job.Source, job.Format, frames); err != nil {
		q.log.Error("failed to save unencoded segment",
			logger.String("job_id", job.ID),
			logger.String("path", job.Source),
			logger.Error(err))
		return ""
	}
	q.log.Info("unencoded segment saved as WAV", logger.String("path", job.Source))
	return job.Source
}

// warnOnce logs an encode failure, demoting repeats of the same message to debug.
func (q *Queue) warnOnce(job *Job, err error) {
	fields := []logger.Field{
		logger.String("job_id", job.ID),
		logger.String("source", job.Source),
		logger.Error(err),
	}
	q.warnings.DeleteExpired()
	if q.warnings.Add(err.Error(), struct{}{}, cache.DefaultExpiration) != nil {
		q.log.Debug("segment encode failed, source kept", fields...)
		return
	}
	q.log.Warn("segment encode failed, source kept", fields...)
}

// Drain stops accepting jobs and waits until every queued and running job has finished.
// If ctx ends first, running processes are killed, queued in-memory jobs are saved as WAV
// and the remaining jobs are reported as abandoned.
func (q *Queue) Drain(ctx context.Context) error {
	q.mu.Lock()
	if q.stopping {
		q.mu.Unlock()
		<-q.doneOrClosed()
		return nil
	}
	q.stopping = true
	started := q.started
	pending := len(q.jobs)
	q.mu.Unlock()

	if !started {
		return nil
	}

	q.log.Info("draining encode queue",
		logger.Int("pending", pending),
		logger.Int("running", q.Stats().Running))
	q.signal()

	select {
	case <-q.done:
		q.cancel()
		return nil
	case <-ctx.Done():
	}

	q.cancel()
	<-q.done
	abandoned := q.abandonPending()
	q.log.Warn("encode drain deadline reached",
		logger.Int("abandoned", abandoned))
	return errors.New(ctx.Err()).
		Component("encoder").
		Category(errors.CategoryTimeout).
		Context("abandoned_jobs", abandoned).
		Build()
}

func (q *Queue) doneOrClosed() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return q.done
}

// abandonPending empties the queue after the dispatcher has exited.
func (q *Queue) abandonPending() int {
	q.mu.Lock()
	jobs := q.jobs
	q.jobs = nil
	q.mu.Unlock()

	for _, job := range jobs {
		result := Result{Job: job, Status: JobStatusAbandoned, Err: ErrQueueStopped}
		result.Fallback = q.saveFallback(job)

		q.mu.Lock()
		q.stats.Abandoned++
		if result.Fallback != "" {
			q.stats.Fallbacks++
		}
		q.mu.Unlock()

		if q.config.OnResult != nil {
			q.config.OnResult(result)
		}
	}
	return len(jobs)
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.Pending = len(q.jobs)
	s.Running = q.running
	return s
}
