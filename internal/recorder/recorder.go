// Package recorder wires audio capture, segmentation, segment files and background
// encoding into a single recording run.
package recorder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tphakala/voicerec/internal/audiocore"
	"github.com/tphakala/voicerec/internal/audiocore/export"
	"github.com/tphakala/voicerec/internal/audiocore/sources"
	"github.com/tphakala/voicerec/internal/clipwriter"
	"github.com/tphakala/voicerec/internal/conf"
	"github.com/tphakala/voicerec/internal/diskmanager"
	"github.com/tphakala/voicerec/internal/encoder"
	"github.com/tphakala/voicerec/internal/errors"
	"github.com/tphakala/voicerec/internal/logger"
	"github.com/tphakala/voicerec/internal/mqtt"
	"github.com/tphakala/voicerec/internal/observability"
	"github.com/tphakala/voicerec/internal/segment"
	"github.com/tphakala/voicerec/internal/vad"
)

const componentRecorder = "recorder"

const (
	metricsSyncInterval = time.Second
	dropWarnInterval    = 10 * time.Second
	eventBufferSize     = 64
)

var (
	// ErrStorageFailure is returned by Run when segments could never be written.
	ErrStorageFailure = errors.NewStd("segment storage failing repeatedly")
	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.NewStd("recorder already started")
)

// EventPublisher receives an event for every finished segment.
type EventPublisher interface {
	PublishSegment(ctx context.Context, ev mqtt.SegmentEvent) error
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithSource replaces the capture backend selected by the settings.
func WithSource(src audiocore.AudioSource) Option {
	return func(r *Recorder) {
		r.source = src
	}
}

// WithDetector replaces the energy voice detector.
func WithDetector(d vad.Detector) Option {
	return func(r *Recorder) {
		r.detector = d
	}
}

// WithExporter replaces the ffmpeg exporter.
func WithExporter(e encoder.Exporter) Option {
	return func(r *Recorder) {
		r.exporter = e
	}
}

// WithClock sets the clock used for segment start times.
func WithClock(c segment.Clock) Option {
	return func(r *Recorder) {
		r.clock = c
	}
}

// WithMetrics sets the metrics the recorder reports to.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithPublisher sets the segment event publisher.
func WithPublisher(p EventPublisher) Option {
	return func(r *Recorder) {
		r.publisher = p
	}
}

// Recorder runs one capture session. It is single use.
type Recorder struct {
	settings *conf.Settings
	session  string
	mode     string
	format   audiocore.AudioFormat
	log      logger.Logger

	source    audiocore.AudioSource
	detector  vad.Detector
	exporter  encoder.Exporter
	clock     segment.Clock
	metrics   *observability.Metrics
	publisher EventPublisher

	queue   *audiocore.FrameQueue
	framer  *audiocore.Framer
	namer   *clipwriter.Namer
	policy  segment.Policy
	voice   *segment.VoicePolicy
	stream  *clipwriter.Rotating
	encoder *encoder.Queue
	guard   *diskmanager.SpaceGuard
	events  chan mqtt.SegmentEvent
	// segment events waiting for their encode result, keyed by WAV path
	pending sync.Map

	dropLimiter *rate.Limiter
	lastQueue   audiocore.QueueStats
	lastVoice   segment.VoiceStats

	started       atomic.Bool
	running       atomic.Bool
	startedAt     atomic.Int64
	open          atomic.Bool
	segments      atomic.Uint64
	writeFailures atomic.Int32
	everWritten   atomic.Bool
	eventsDropped atomic.Uint64
}

// New builds a recorder from validated settings. Nothing is started until Run.
func New(settings *conf.Settings, opts ...Option) (*Recorder, error) {
	r := &Recorder{
		settings:    settings,
		session:     uuid.NewString(),
		mode:        settings.Segment.Mode,
		format:      audiocore.NewPCM16Format(settings.Audio.SampleRate, settings.Audio.Channels),
		clock:       segment.SystemClock{},
		dropLimiter: rate.NewLimiter(rate.Every(dropWarnInterval), 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = GetLogger().With(logger.String("session", r.session))

	if err := r.format.Validate(); err != nil {
		return nil, err
	}

	if r.source == nil {
		src, err := sources.CreateSource(settings)
		if err != nil {
			return nil, err
		}
		r.source = src
	}

	frameBytes := settings.FrameBytes()
	queue, err := audiocore.NewFrameQueue(settings.QueueCapacity(), frameBytes)
	if err != nil {
		return nil, err
	}
	r.queue = queue
	r.framer, err = audiocore.NewFramer(frameBytes, func(f audiocore.Frame) { r.queue.Push(f) })
	if err != nil {
		return nil, err
	}

	if err := r.setupEncoder(); err != nil {
		return nil, err
	}

	var extraExts []string
	if r.encoder != nil {
		extraExts = append(extraExts, export.Extension(export.Format(settings.Encode.Type)))
	}
	r.namer, err = clipwriter.NewNamer(settings.Output.Path, extraExts...)
	if err != nil {
		return nil, err
	}

	if err := r.setupPolicy(); err != nil {
		return nil, err
	}

	r.guard = diskmanager.NewSpaceGuard(settings.Output.Path, settings.Output.MinFreeMB)
	if r.metrics != nil {
		dm := r.metrics.DiskManager
		r.guard.SetObserver(func(info diskmanager.DiskSpaceInfo, becameLow bool) {
			dm.UpdateDiskUsage(info.UsedBytes, info.FreeBytes, info.TotalBytes)
			if becameLow {
				dm.RecordLowSpace()
			}
		})
	}

	if r.publisher != nil {
		r.events = make(chan mqtt.SegmentEvent, eventBufferSize)
	}
	return r, nil
}

func (r *Recorder) setupEncoder() error {
	enc := r.settings.Encode
	if !enc.Enabled {
		return nil
	}
	format := export.Format(enc.Type)

	if r.exporter == nil {
		path, err := conf.ValidateToolPath(enc.FfmpegPath, conf.GetFfmpegBinaryName())
		if err != nil {
			r.log.Warn("ffmpeg not available, segments stay uncompressed", logger.Error(err))
			return nil
		}
		exp, err := export.NewFFmpegExporter(export.Config{
			Format:     format,
			Quality:    enc.Quality,
			Bitrate:    enc.Bitrate,
			FFmpegPath: path,
		})
		if err != nil {
			return err
		}
		r.exporter = exp
	}

	r.encoder = encoder.NewQueue(r.exporter, encoder.Config{
		Workers:    enc.Workers,
		Format:     format,
		KeepSource: enc.KeepSource,
		OnResult:   r.onEncodeResult,
	})
	return nil
}

func (r *Recorder) setupPolicy() error {
	switch r.mode {
	case conf.ModeVoice:
		if r.detector == nil {
			v := r.settings.Segment.Voice
			d, err := vad.NewEnergyDetector(r.settings.Audio.SampleRate, v.FrameMs, v.Aggressiveness)
			if err != nil {
				return err
			}
			r.detector = d
		}
		inMemory := r.encoder != nil && r.settings.Encode.PipePCM
		writer := clipwriter.NewBuffered(r.namer, r.format, r.onClip, inMemory)
		p, err := segment.NewVoicePolicy(segment.VoiceConfigFromSettings(r.settings), r.detector, writer, r.clock)
		if err != nil {
			return err
		}
		r.voice = p
		r.policy = p

	case conf.ModeFixed:
		r.stream = clipwriter.NewRotating(r.namer, r.format, r.onClip)
		p, err := segment.NewFixedPolicy(r.settings.SegmentCapacity(), r.format, r.stream, r.clock)
		if err != nil {
			return err
		}
		r.policy = p

	default:
		return errors.Newf("unknown segment mode: %s", r.mode).
			Component(componentRecorder).
			Category(errors.CategoryConfiguration).
			Context("mode", r.mode).
			Build()
	}
	return nil
}

// Session returns the run identifier attached to every log line.
func (r *Recorder) Session() string {
	return r.session
}

// GetLogger returns the recorder module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module(componentRecorder)
}
