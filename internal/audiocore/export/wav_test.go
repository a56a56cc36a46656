package export

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/voicerec/internal/audiocore"
)

func testFrame(n int, seed byte) audiocore.Frame {
	f := make(audiocore.Frame, n)
	for i := range f {
		f[i] = seed + byte(i)
	}
	return f
}

func TestWAVWriterStreamsFrames(t *testing.T) {
	t.Parallel()

	format := audiocore.NewPCM16Format(16000, 1)
	path := filepath.Join(t.TempDir(), "stream.wav")

	w, err := CreateWAV(path, format)
	require.NoError(t, err)

	var want []byte
	for i := range 5 {
		frame := testFrame(960, byte(i*3))
		want = append(want, frame...)
		require.NoError(t, w.Write(frame))
	}
	assert.Equal(t, int64(len(want)), w.Bytes())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "second Close is a no-op")

	got, gotFormat, err := ReadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 16000, gotFormat.SampleRate)
	assert.Equal(t, 1, gotFormat.Channels)
	assert.Equal(t, 16, gotFormat.BitDepth)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(44+len(want)), info.Size())
}

// fullDisk accepts budget bytes and then fails a single write part way with ENOSPC.
type fullDisk struct {
	*os.File
	budget int
}

func (f *fullDisk) Write(p []byte) (int, error) {
	if f.budget < 0 || len(p) <= f.budget {
		if f.budget >= 0 {
			f.budget -= len(p)
		}
		return f.File.Write(p)
	}
	n, _ := f.File.Write(p[:f.budget])
	f.budget = -1
	return n, syscall.ENOSPC
}

func TestWAVWriterSalvagesAfterFailedWrite(t *testing.T) {
	t.Parallel()

	format := audiocore.NewPCM16Format(16000, 1)
	path := filepath.Join(t.TempDir(), "full.wav")
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	require.NoError(t, err)

	// room for the header, two frames and part of the third
	w, err := NewWAVWriter(path, &fullDisk{File: file, budget: 44 + 2*960 + 100}, format)
	require.NoError(t, err)

	want := append([]byte(testFrame(960, 0)), testFrame(960, 7)...)
	require.NoError(t, w.Write(testFrame(960, 0)))
	require.NoError(t, w.Write(testFrame(960, 7)))
	require.ErrorIs(t, w.Write(testFrame(960, 9)), syscall.ENOSPC)
	assert.Equal(t, int64(len(want)), w.Bytes())
	assert.Error(t, w.Write(testFrame(960, 11)), "a torn writer takes no more audio")

	require.NoError(t, w.Close())

	got, gotFormat, err := ReadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 16000, gotFormat.SampleRate)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(44+len(want)), info.Size())
}

func TestWAVWriterRefusesOverwrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "exists.wav")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, err := CreateWAV(path, audiocore.NewPCM16Format(48000, 1))
	assert.Error(t, err)
}

func TestWAVWriterWriteAfterClose(t *testing.T) {
	t.Parallel()

	w, err := CreateWAV(filepath.Join(t.TempDir(), "closed.wav"), audiocore.NewPCM16Format(48000, 2))
	require.NoError(t, err)
	require.NoError(t, w.Write(testFrame(8, 0)))
	require.NoError(t, w.Close())
	assert.Error(t, w.Write(testFrame(8, 0)))
}

func TestWAVWriterAbortRemovesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "aborted.wav")
	w, err := CreateWAV(path, audiocore.NewPCM16Format(48000, 1))
	require.NoError(t, err)
	require.NoError(t, w.Write(testFrame(64, 1)))
	w.Abort()

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestWriteWAVOnePass(t *testing.T) {
	t.Parallel()

	format := audiocore.NewPCM16Format(48000, 2)
	path := filepath.Join(t.TempDir(), "clip.wav")
	frames := []audiocore.Frame{testFrame(400, 0), testFrame(400, 50), testFrame(400, 100)}

	require.NoError(t, WriteWAV(path, format, frames))

	got, gotFormat, err := ReadWAV(path)
	require.NoError(t, err)
	assert.Len(t, got, 1200)
	assert.Equal(t, []byte(frames[2]), got[800:])
	assert.Equal(t, 2, gotFormat.Channels)
}

func TestReadWAVRejectsGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "garbage.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a riff file"), 0o600))

	_, _, err := ReadWAV(path)
	assert.Error(t, err)
}
