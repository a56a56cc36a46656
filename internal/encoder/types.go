// Package encoder transcodes finished segments in the background with a bounded number of
// ffmpeg processes. Submission never blocks the recording path. Drain stops intake and
// waits for queued and running jobs before shutdown.
package encoder

import (
	"context"
	"time"

	"github.com/tphakala/voicerec/internal/audiocore"
	"github.com/tphakala/voicerec/internal/errors"
)

// Common errors returned by queue operations
var (
	ErrQueueStopped    = errors.NewStd("encode queue has been stopped")
	ErrQueueNotStarted = errors.NewStd("encode queue has not been started")
	ErrInvalidJob      = errors.NewStd("invalid encode job")
)

// Exporter transcodes audio into the output format.
type Exporter interface {
	ExportFile(ctx context.Context, srcPath, destPath string) error
	ExportPCM(ctx context.Context, pcm []byte, format audiocore.AudioFormat, destPath string) error
}

// JobStatus represents the current status of a job
type JobStatus int

const (
	// JobStatusPending indicates the job is waiting for a worker
	JobStatusPending JobStatus = iota
	// JobStatusRunning indicates ffmpeg is running for the job
	JobStatusRunning
	// JobStatusCompleted indicates the output was written
	JobStatusCompleted
	// JobStatusFailed indicates ffmpeg failed and the source was kept
	JobStatusFailed
	// JobStatusAbandoned indicates the job never finished because the drain deadline passed
	JobStatusAbandoned
)

// String returns a string representation of the job status
func (s JobStatus) String() string {
	switch s {
	case JobStatusPending:
		return "Pending"
	case JobStatusRunning:
		return "Running"
	case JobStatusCompleted:
		return "Completed"
	case JobStatusFailed:
		return "Failed"
	case JobStatusAbandoned:
		return "Abandoned"
	default:
		return "Unknown"
	}
}

// Job is one segment waiting to be encoded.
type Job struct {
	ID string
	// Source is the WAV file to encode. For in-memory jobs it is where the audio is saved
	// as WAV if encoding fails.
	Source      string
	PCM         []byte
	Format      audiocore.AudioFormat
	Destination string
	KeepSource  bool
	CreatedAt   time.Time
}

// InMemory reports whether the job carries raw PCM instead of a file.
func (j *Job) InMemory() bool { return j.PCM != nil }

// Result describes a finished job.
type Result struct {
	Job      *Job
	Status   JobStatus
	Err      error
	Duration time.Duration
	// Fallback is the WAV written for an in-memory job that could not be encoded
	Fallback string
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Submitted uint64
	Completed uint64
	Failed    uint64
	Abandoned uint64
	Fallbacks uint64
	Pending   int
	Running   int
}
