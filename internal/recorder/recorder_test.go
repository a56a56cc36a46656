package recorder

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/voicerec/internal/audiocore"
	"github.com/tphakala/voicerec/internal/audiocore/export"
	"github.com/tphakala/voicerec/internal/conf"
	"github.com/tphakala/voicerec/internal/errors"
	"github.com/tphakala/voicerec/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFixedModeRotatesFromFileInput(t *testing.T) {
	t.Parallel()

	s := baseSettings(t, conf.ModeFixed)
	s.Segment.Fixed.Seconds = 2

	// 5 s at 48 kHz mono ends in a partial block, which must still be written
	input := ramp(5 * 48000)
	m, err := observability.NewMetrics()
	require.NoError(t, err)

	r, err := New(s, WithSource(pcmReader(s, input)), WithClock(newSteppingClock()), WithMetrics(m))
	require.NoError(t, err)
	require.NoError(t, runToCompletion(t, r))

	names := listDir(t, s.Output.Path)
	require.Equal(t, []string{"20240601080000.wav", "20240601080001.wav", "20240601080002.wav"}, names)

	var joined []byte
	for i, want := range []int{96000, 96000, 48000} {
		pcm, format, err := export.ReadWAV(filepath.Join(s.Output.Path, names[i]))
		require.NoError(t, err)
		assert.Equal(t, 48000, format.SampleRate)
		assert.Equal(t, want, format.Samples(len(pcm)), "segment %d", i)
		joined = append(joined, pcm...)
	}
	assert.True(t, bytes.Equal(input, joined), "segments must cover the input without gaps")

	st := r.Status()
	assert.Equal(t, uint64(3), st.Segments)
	assert.Equal(t, "stopped", st.State)
	assert.False(t, st.Healthy)

	expected := `
# HELP voicerec_segments_total Total number of closed segments
# TYPE voicerec_segments_total counter
voicerec_segments_total{mode="fixed",outcome="kept"} 3
# HELP voicerec_frames_captured_total Total number of frames accepted into the frame queue
# TYPE voicerec_frames_captured_total counter
voicerec_frames_captured_total 117
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"voicerec_segments_total", "voicerec_frames_captured_total"))
}

func TestVoiceModeWritesOneUtterance(t *testing.T) {
	t.Parallel()

	s := baseSettings(t, conf.ModeVoice)
	events := &eventLog{}

	// 100 silent, 40 voiced, 70 silent frames of 30 ms
	input := voicePCM(100, 40, 70)
	r, err := New(s,
		WithSource(pcmReader(s, input)),
		WithDetector(markerDetector{}),
		WithClock(newSteppingClock()),
		WithPublisher(events))
	require.NoError(t, err)
	require.NoError(t, runToCompletion(t, r))

	names := listDir(t, s.Output.Path)
	require.Len(t, names, 1)

	pcm, format, err := export.ReadWAV(filepath.Join(s.Output.Path, names[0]))
	require.NoError(t, err)
	assert.Equal(t, 16000, format.SampleRate)
	// 67 frames of pre-roll, 20 more voiced frames, 67 frames of hangover
	require.Len(t, pcm, 154*960)
	assert.Equal(t, byte(0), pcm[0], "segment starts with pre-roll silence")
	assert.Equal(t, byte(1), pcm[(67-20)*960], "first voiced frame sits inside the pre-roll")

	got := events.all()
	require.Len(t, got, 1)
	assert.Equal(t, r.Session(), got[0].Session)
	assert.Equal(t, conf.ModeVoice, got[0].Mode)
	assert.Equal(t, filepath.Join(s.Output.Path, names[0]), got[0].Path)
	assert.InDelta(t, 154*0.03, got[0].DurationSeconds, 0.001)
	assert.Empty(t, got[0].EncodedPath)
}

func TestVoiceModeDiscardsShortBursts(t *testing.T) {
	t.Parallel()

	s := baseSettings(t, conf.ModeVoice)
	s.Segment.Voice.PreRoll = 0.3
	s.Segment.Voice.Hangover = 0.3
	s.Segment.Voice.StartK = 3
	s.Segment.Voice.StartN = 5
	s.Segment.Voice.MinSeconds = 2

	m, err := observability.NewMetrics()
	require.NoError(t, err)

	r, err := New(s,
		WithSource(pcmReader(s, voicePCM(10, 5, 20))),
		WithDetector(markerDetector{}),
		WithMetrics(m))
	require.NoError(t, err)
	require.NoError(t, runToCompletion(t, r))

	assert.Empty(t, listDir(t, s.Output.Path))
	assert.Zero(t, r.Status().Segments)

	expected := `
# HELP voicerec_segments_total Total number of closed segments
# TYPE voicerec_segments_total counter
voicerec_segments_total{mode="voice",outcome="discarded"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "voicerec_segments_total"))
}

func TestEncodedSegmentsReplaceWAV(t *testing.T) {
	t.Parallel()

	s := baseSettings(t, conf.ModeFixed)
	s.Segment.Fixed.Seconds = 1
	s.Encode.Enabled = true
	exp := &fakeExporter{}
	events := &eventLog{}

	r, err := New(s,
		WithSource(pcmReader(s, ramp(2*48000))),
		WithClock(newSteppingClock()),
		WithExporter(exp),
		WithPublisher(events))
	require.NoError(t, err)
	require.NoError(t, runToCompletion(t, r))

	assert.Equal(t, []string{"20240601080000.mp3", "20240601080001.mp3"}, listDir(t, s.Output.Path))
	assert.Equal(t, int32(2), exp.calls.Load())

	got := events.all()
	require.Len(t, got, 2)
	for _, ev := range got {
		assert.True(t, strings.HasSuffix(ev.EncodedPath, ".mp3"), ev.EncodedPath)
		assert.Equal(t, export.ReplaceExtension(ev.Path, export.FormatMP3), ev.EncodedPath)
	}
}

func TestPipedEncodeFailureFallsBackToWAV(t *testing.T) {
	t.Parallel()

	s := baseSettings(t, conf.ModeVoice)
	s.Encode.Enabled = true
	s.Encode.PipePCM = true

	r, err := New(s,
		WithSource(pcmReader(s, voicePCM(10, 40, 70))),
		WithDetector(markerDetector{}),
		WithExporter(&fakeExporter{fail: true}))
	require.NoError(t, err)
	require.NoError(t, runToCompletion(t, r))

	names := listDir(t, s.Output.Path)
	require.Len(t, names, 1)
	assert.True(t, strings.HasSuffix(names[0], ".wav"))

	pcm, _, err := export.ReadWAV(filepath.Join(s.Output.Path, names[0]))
	require.NoError(t, err)
	assert.NotEmpty(t, pcm)
}

func TestCancellationFinalizesOpenSegment(t *testing.T) {
	t.Parallel()

	s := baseSettings(t, conf.ModeFixed)
	format := audiocore.NewPCM16Format(s.Audio.SampleRate, s.Audio.Channels)
	input := ramp(48000)
	src := newHeldSource(format, input, 1000)

	r, err := New(s, WithSource(src))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case <-src.delivered:
	case <-time.After(testTimeout):
		t.Fatal("source did not deliver its input")
	}
	require.Eventually(t, func() bool { return r.Status().State != "stopped" }, testTimeout, 5*time.Millisecond)
	assert.True(t, r.Status().Healthy)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatal("Run did not return after cancellation")
	}

	names := listDir(t, s.Output.Path)
	require.Len(t, names, 1)
	pcm, _, err := export.ReadWAV(filepath.Join(s.Output.Path, names[0]))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(input, pcm), "frames queued at cancellation must reach the file")
}

func TestPersistentStorageFailureIsFatal(t *testing.T) {
	t.Parallel()

	s := baseSettings(t, conf.ModeFixed)
	format := audiocore.NewPCM16Format(s.Audio.SampleRate, s.Audio.Channels)
	src := newHeldSource(format, ramp(48000), 4096)
	// the output directory turns into a plain file once capture has started
	src.onStart = func() {
		require.NoError(t, os.RemoveAll(s.Output.Path))
		require.NoError(t, os.WriteFile(s.Output.Path, nil, 0o600))
	}

	r, err := New(s, WithSource(src))
	require.NoError(t, err)

	err = runToCompletion(t, r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorageFailure))
	assert.GreaterOrEqual(t, r.Status().WriteFailures, conf.ConsecutiveWriteFailureLimit)
}

func TestStorageFailureAfterWrittenSegmentsIsNotFatal(t *testing.T) {
	t.Parallel()

	s := baseSettings(t, conf.ModeFixed)
	s.Segment.Fixed.Seconds = 1
	format := audiocore.NewPCM16Format(s.Audio.SampleRate, s.Audio.Channels)
	input := ramp(4 * 48000)
	src := newHeldSource(format, input, 4096)
	kept := s.Output.Path + ".kept"

	r, err := New(s, WithSource(src), WithClock(newSteppingClock()))
	require.NoError(t, err)

	// once the first segment is finalized and the second one opened, the output
	// directory moves away and a plain file takes its place
	src.split = 3 * 48000
	src.midway = func() {
		assert.Eventually(t, func() bool {
			entries, err := os.ReadDir(s.Output.Path)
			return err == nil && len(entries) == 2
		}, testTimeout, time.Millisecond)
		assert.NoError(t, os.Rename(s.Output.Path, kept))
		assert.NoError(t, os.WriteFile(s.Output.Path, nil, 0o600))
	}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case <-src.delivered:
	case <-time.After(testTimeout):
		t.Fatal("source did not deliver its input")
	}
	require.Eventually(t, func() bool {
		return r.Status().WriteFailures >= conf.ConsecutiveWriteFailureLimit
	}, testTimeout, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err, "storage that worked before must not stop the recorder")
	case <-time.After(testTimeout):
		t.Fatal("Run did not return after cancellation")
	}

	names := listDir(t, kept)
	require.Equal(t, []string{"20240601080000.wav", "20240601080001.wav"}, names)
	for i, name := range names {
		pcm, _, err := export.ReadWAV(filepath.Join(kept, name))
		require.NoError(t, err)
		assert.True(t, bytes.Equal(input[i*96000:(i+1)*96000], pcm), "segment %d", i)
	}
	assert.Equal(t, uint64(2), r.Status().Segments)
}

func TestWriteFailureStreakResetsAfterSuccessfulWrite(t *testing.T) {
	t.Parallel()

	s := baseSettings(t, conf.ModeFixed)
	r, err := New(s, WithSource(pcmReader(s, nil)))
	require.NoError(t, err)
	diskFull := errors.NewStd("no space left on device")
	frame := make(audiocore.Frame, s.FrameBytes())

	r.policy = &scriptedPolicy{results: []error{diskFull, diskFull}}
	require.NoError(t, r.process(frame))
	require.NoError(t, r.process(frame))
	assert.Equal(t, 2, r.Status().WriteFailures)

	// one frame lands in the open file: the streak is cleared and the directory is
	// known to work, so later failures are never fatal
	require.NoError(t, r.stream.Open(time.Now()))
	t.Cleanup(func() { _ = r.stream.Close() })
	r.policy = &scriptedPolicy{results: []error{nil, diskFull, diskFull, diskFull, diskFull}}
	require.NoError(t, r.process(frame))
	assert.Equal(t, 0, r.Status().WriteFailures)
	for range 4 {
		require.NoError(t, r.process(frame))
	}
	assert.Equal(t, 4, r.Status().WriteFailures)
}

func TestRunRejectsUnwritableOutput(t *testing.T) {
	t.Parallel()

	s := baseSettings(t, conf.ModeFixed)
	r, err := New(s, WithSource(pcmReader(s, ramp(100))))
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(s.Output.Path))
	require.NoError(t, os.WriteFile(s.Output.Path, nil, 0o600))

	err = runToCompletion(t, r)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
}

func TestRunIsSingleUse(t *testing.T) {
	t.Parallel()

	s := baseSettings(t, conf.ModeFixed)
	r, err := New(s, WithSource(pcmReader(s, ramp(4800))))
	require.NoError(t, err)

	st := r.Status()
	assert.Equal(t, "stopped", st.State)
	assert.NotEmpty(t, st.Session)

	require.NoError(t, runToCompletion(t, r))
	err = runToCompletion(t, r)
	assert.True(t, errors.Is(err, ErrAlreadyRunning))
}

func TestNewRejectsUnknownMode(t *testing.T) {
	t.Parallel()

	s := baseSettings(t, conf.ModeFixed)
	s.Segment.Mode = "sliding"
	_, err := New(s, WithSource(pcmReader(s, nil)))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
