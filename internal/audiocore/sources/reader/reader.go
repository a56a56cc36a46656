// Package reader provides an audio source that reads raw little-endian 16-bit PCM from a
// file or standard input, for headless runs and offline segmentation
package reader

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/voicerec/internal/audiocore"
	"github.com/tphakala/voicerec/internal/errors"
	"github.com/tphakala/voicerec/internal/logger"
)

// StdinPath selects standard input as the PCM source
const StdinPath = "-"

// Config contains configuration for the reader source
type Config struct {
	Path       string // file path or "-" for stdin
	SampleRate int
	Channels   int
	ChunkBytes int     // bytes handed to the sink per read, 0 picks about 20 ms
	Speed      float64 // 1 paces delivery in real time, 0 delivers as fast as it can read
}

// Source streams PCM from an io.Reader
type Source struct {
	config Config
	format audiocore.AudioFormat
	open   func() (io.ReadCloser, error)

	mu      sync.Mutex
	input   io.Closer
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	running atomic.Bool
	bytes   atomic.Int64
}

// NewSource creates a reader source for config.Path
func NewSource(config Config) *Source {
	path := config.Path
	return newSource(config, func() (io.ReadCloser, error) {
		if path == "" || path == StdinPath {
			return os.Stdin, nil
		}
		return os.Open(path) //nolint:gosec // path comes from the operator's configuration
	})
}

// NewSourceFromReader creates a source that streams r; r is closed on Stop if it is an
// io.Closer
func NewSourceFromReader(config Config, r io.Reader) *Source {
	return newSource(config, func() (io.ReadCloser, error) {
		if rc, ok := r.(io.ReadCloser); ok {
			return rc, nil
		}
		return io.NopCloser(r), nil
	})
}

func newSource(config Config, open func() (io.ReadCloser, error)) *Source {
	format := audiocore.NewPCM16Format(config.SampleRate, config.Channels)
	if config.ChunkBytes <= 0 {
		config.ChunkBytes = max(format.FrameBytes(format.SampleRate/50), format.BlockAlign())
	}
	return &Source{config: config, format: format, open: open, done: make(chan struct{})}
}

// Start opens the input and delivers it to sink from a reader goroutine
func (s *Source) Start(ctx context.Context, sink audiocore.FrameSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The input is consumed once, a reader source cannot be restarted
	if s.started {
		return errors.New(audiocore.ErrSourceAlreadyActive).
			Category(errors.CategoryState).
			Context("backend", "reader").
			Build()
	}
	if err := s.format.Validate(); err != nil {
		return err
	}

	rc, err := s.open()
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "open_input").
			FileContext(s.config.Path, 0).
			Build()
	}

	readCtx, cancel := context.WithCancel(ctx)
	s.input = rc
	s.cancel = cancel
	s.started = true
	s.running.Store(true)

	go s.readLoop(readCtx, rc, sink)

	GetLogger().Info("audio capture started",
		logger.String("device", s.Name()),
		logger.Int("sample_rate", s.format.SampleRate),
		logger.Int("channels", s.format.Channels))
	return nil
}

func (s *Source) readLoop(ctx context.Context, rc io.ReadCloser, sink audiocore.FrameSink) {
	defer close(s.done)
	defer rc.Close()

	buf := make([]byte, s.config.ChunkBytes)
	start := time.Now()
	for ctx.Err() == nil {
		n, err := io.ReadFull(rc, buf)
		if n > 0 {
			sink(buf[:n])
			total := s.bytes.Add(int64(n))
			s.pace(ctx, start, total)
		}
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return
		case err == io.EOF || err == io.ErrUnexpectedEOF:
			GetLogger().Info("PCM input ended", logger.Int64("bytes", s.bytes.Load()))
			return
		default:
			GetLogger().Error("PCM input read failed", logger.Error(err))
			return
		}
	}
}

// pace sleeps until wall-clock time catches up with the audio delivered so far
func (s *Source) pace(ctx context.Context, start time.Time, delivered int64) {
	if s.config.Speed <= 0 {
		return
	}
	audioTime := time.Duration(float64(s.format.Duration(int(delivered))) / s.config.Speed)
	wait := audioTime - time.Since(start)
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Done is closed when the input is exhausted or the source is stopped
func (s *Source) Done() <-chan struct{} {
	return s.done
}

// Stop ends the reader goroutine. It is safe to call more than once.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()
	// Closing the input unblocks a pending read on a pipe
	_ = s.input.Close()
	<-s.done

	GetLogger().Info("audio capture stopped",
		logger.String("device", s.Name()),
		logger.Int64("bytes", s.bytes.Load()))
	return nil
}

// Name returns a human-readable name for this source
func (s *Source) Name() string {
	if s.config.Path == "" || s.config.Path == StdinPath {
		return "reader:stdin"
	}
	return "reader:" + s.config.Path
}

// IsActive returns true until Stop is called
func (s *Source) IsActive() bool { return s.running.Load() }

// GetFormat returns the audio format of this source
func (s *Source) GetFormat() audiocore.AudioFormat { return s.format }

// GetLogger returns the capture module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("audio.capture")
}
