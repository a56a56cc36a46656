package recorder

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tphakala/voicerec/internal/audiocore"
	"github.com/tphakala/voicerec/internal/audiocore/sources/reader"
	"github.com/tphakala/voicerec/internal/conf"
	"github.com/tphakala/voicerec/internal/mqtt"
)

const testTimeout = 10 * time.Second

// steppingClock advances one second on every call so file names never collide.
type steppingClock struct {
	mu   sync.Mutex
	next time.Time
}

func newSteppingClock() *steppingClock {
	return &steppingClock{next: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(time.Second)
	return now
}

// markerDetector treats a frame as voiced when its first byte is 1.
type markerDetector struct{}

func (markerDetector) IsSpeech(frame []byte) (bool, error) {
	return len(frame) > 0 && frame[0] == 1, nil
}

// fakeExporter writes a small file at the destination or fails.
type fakeExporter struct {
	fail  bool
	calls atomic.Int32
}

func (f *fakeExporter) ExportFile(_ context.Context, _, dest string) error {
	return f.write(dest)
}

func (f *fakeExporter) ExportPCM(_ context.Context, _ []byte, _ audiocore.AudioFormat, dest string) error {
	return f.write(dest)
}

func (f *fakeExporter) write(dest string) error {
	f.calls.Add(1)
	if f.fail {
		return errors.New("ffmpeg exited with status 1")
	}
	return os.WriteFile(dest, []byte("encoded"), 0o600)
}

// eventLog records published segment events.
type eventLog struct {
	mu     sync.Mutex
	events []mqtt.SegmentEvent
}

func (l *eventLog) PublishSegment(_ context.Context, ev mqtt.SegmentEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) all() []mqtt.SegmentEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]mqtt.SegmentEvent(nil), l.events...)
}

// heldSource delivers pcm in chunks and then stays active until stopped. It has no
// Done channel, so only cancellation ends the run. midway runs on the delivery
// goroutine once split bytes have been handed over.
type heldSource struct {
	format    audiocore.AudioFormat
	pcm       []byte
	chunk     int
	onStart   func()
	split     int
	midway    func()
	delivered chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	active atomic.Bool
}

func newHeldSource(format audiocore.AudioFormat, pcm []byte, chunk int) *heldSource {
	return &heldSource{format: format, pcm: pcm, chunk: chunk, delivered: make(chan struct{})}
}

func (s *heldSource) Name() string                     { return "held" }
func (s *heldSource) IsActive() bool                   { return s.active.Load() }
func (s *heldSource) GetFormat() audiocore.AudioFormat { return s.format }

func (s *heldSource) Start(ctx context.Context, sink audiocore.FrameSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onStart != nil {
		s.onStart()
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.active.Store(true)
	midway := s.midway
	s.wg.Go(func() {
		sent := 0
		for pcm := s.pcm; len(pcm) > 0; {
			n := min(s.chunk, len(pcm))
			sink(pcm[:n])
			pcm = pcm[n:]
			sent += n
			if midway != nil && sent >= s.split {
				midway()
				midway = nil
			}
		}
		close(s.delivered)
		<-ctx.Done()
	})
	return nil
}

func (s *heldSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active.Swap(false) {
		return nil
	}
	s.cancel()
	s.wg.Wait()
	return nil
}

// scriptedPolicy returns the queued results in order and nil once they run out.
type scriptedPolicy struct {
	results []error
}

func (p *scriptedPolicy) Process(audiocore.Frame) error {
	if len(p.results) == 0 {
		return nil
	}
	err := p.results[0]
	p.results = p.results[1:]
	return err
}

func (p *scriptedPolicy) Close() error { return nil }

func baseSettings(t *testing.T, mode string) *conf.Settings {
	t.Helper()
	s, err := conf.DefaultSettings()
	require.NoError(t, err)
	s.Segment.Mode = mode
	s.Output.Path = filepath.Join(t.TempDir(), "out")
	s.Output.MinFreeMB = 0
	s.Audio.Backend = conf.BackendReader
	s.Audio.Speed = 0
	s.Audio.QueueFrames = 1024
	if mode == conf.ModeVoice {
		s.Audio.SampleRate = 16000
	}
	return s
}

func pcmReader(s *conf.Settings, pcm []byte) *reader.Source {
	return reader.NewSourceFromReader(reader.Config{
		SampleRate: s.Audio.SampleRate,
		Channels:   s.Audio.Channels,
		ChunkBytes: 4096,
	}, bytes.NewReader(pcm))
}

// ramp returns n 16-bit samples whose values count up, so joined segments can be
// compared with the input.
func ramp(samples int) []byte {
	pcm := make([]byte, samples*2)
	for i := range samples {
		v := uint16(i)
		pcm[2*i] = byte(v)
		pcm[2*i+1] = byte(v >> 8)
	}
	return pcm
}

// voicePCM builds 30 ms frames at 16 kHz; voiced frames start with a marker byte.
func voicePCM(pattern ...int) []byte {
	const frameBytes = 960
	var out []byte
	voiced := false
	for _, n := range pattern {
		for range n {
			frame := make([]byte, frameBytes)
			if voiced {
				frame[0] = 1
			}
			out = append(out, frame...)
		}
		voiced = !voiced
	}
	return out
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func runToCompletion(t *testing.T, r *Recorder) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), testTimeout)
	defer cancel()
	return r.Run(ctx)
}
