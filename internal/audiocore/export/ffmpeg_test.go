package export

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/voicerec/internal/audiocore"
)

// fakeFFmpeg writes a shell script that records its arguments and stdin, then writes
// "encoded" to its last argument and exits with code.
func fakeFFmpeg(t *testing.T, code int) (script, argsFile, stdinFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg needs a POSIX shell")
	}

	dir := t.TempDir()
	script = filepath.Join(dir, "ffmpeg")
	argsFile = filepath.Join(dir, "args")
	stdinFile = filepath.Join(dir, "stdin")

	body := "#!/bin/sh\n" +
		"printf '%s\\n' \"$@\" > '" + argsFile + "'\n" +
		"for last; do :; done\n" +
		"case \"$*\" in *pipe:0*) cat > '" + stdinFile + "' ;; esac\n" +
		"printf encoded > \"$last\"\n" +
		"exit " + string(rune('0'+code)) + "\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o700))
	return script, argsFile, stdinFile
}

func readArgs(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestExportFileBuildsContractArgs(t *testing.T) {
	t.Parallel()

	script, argsFile, _ := fakeFFmpeg(t, 0)
	exp, err := NewFFmpegExporter(Config{Format: FormatMP3, Quality: 2, FFmpegPath: script})
	require.NoError(t, err)

	dir := t.TempDir()
	src := filepath.Join(dir, "20240101120000.wav")
	dest := filepath.Join(dir, "20240101120000.mp3")
	require.NoError(t, os.WriteFile(src, []byte("wav"), 0o600))

	require.NoError(t, exp.ExportFile(context.Background(), src, dest))

	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", src,
		"-c:a", "libmp3lame", "-q:a", "2",
		"-f", "mp3", dest + TempSuffix,
	}, readArgs(t, argsFile))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "encoded", string(data))
	_, err = os.Stat(dest + TempSuffix)
	assert.True(t, os.IsNotExist(err), "temp file must be renamed")
}

func TestExportPCMPipesStdin(t *testing.T) {
	t.Parallel()

	script, argsFile, stdinFile := fakeFFmpeg(t, 0)
	exp, err := NewFFmpegExporter(Config{Format: FormatOpus, Bitrate: "64k", FFmpegPath: script})
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "clip.opus")
	pcm := []byte{1, 2, 3, 4, 5, 6}
	require.NoError(t, exp.ExportPCM(context.Background(), pcm, audiocore.NewPCM16Format(16000, 1), dest))

	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "s16le", "-ar", "16000", "-ac", "1", "-i", "pipe:0",
		"-c:a", "libopus", "-b:a", "64k",
		"-f", "opus", dest + TempSuffix,
	}, readArgs(t, argsFile))

	got, err := os.ReadFile(stdinFile)
	require.NoError(t, err)
	assert.Equal(t, pcm, got)
}

func TestExportFailureLeavesNoOutput(t *testing.T) {
	t.Parallel()

	script, _, _ := fakeFFmpeg(t, 1)
	exp, err := NewFFmpegExporter(Config{Format: FormatFLAC, FFmpegPath: script})
	require.NoError(t, err)

	dir := t.TempDir()
	src := filepath.Join(dir, "in.wav")
	dest := filepath.Join(dir, "out.flac")
	require.NoError(t, os.WriteFile(src, []byte("wav"), 0o600))

	err = exp.ExportFile(context.Background(), src, dest)
	require.Error(t, err)

	for _, p := range []string{dest, dest + TempSuffix} {
		_, statErr := os.Stat(p)
		assert.True(t, os.IsNotExist(statErr), p)
	}
	_, statErr := os.Stat(src)
	assert.NoError(t, statErr, "source must be untouched")
}

func TestExportMissingBinary(t *testing.T) {
	t.Parallel()

	exp, err := NewFFmpegExporter(Config{
		Format:     FormatMP3,
		FFmpegPath: filepath.Join(t.TempDir(), "no-such-ffmpeg"),
		Timeout:    time.Second,
	})
	require.NoError(t, err)

	err = exp.ExportPCM(context.Background(), []byte{0, 0}, audiocore.NewPCM16Format(16000, 1),
		filepath.Join(t.TempDir(), "x.mp3"))
	assert.Error(t, err)
}

func TestExportPCMRejectsNon16BitInput(t *testing.T) {
	t.Parallel()

	exp, err := NewFFmpegExporter(Config{
		Format:     FormatMP3,
		FFmpegPath: filepath.Join(t.TempDir(), "no-such-ffmpeg"),
	})
	require.NoError(t, err)

	format := audiocore.NewPCM16Format(16000, 1)
	format.BitDepth = 24
	dest := filepath.Join(t.TempDir(), "x.mp3")
	err = exp.ExportPCM(context.Background(), make([]byte, 6), format, dest)
	require.Error(t, err)
	assert.ErrorIs(t, err, audiocore.ErrInvalidAudioFormat)
	assert.NoFileExists(t, dest)
}

func TestNewFFmpegExporterRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := NewFFmpegExporter(Config{Format: FormatMP3})
	assert.Error(t, err)
}

func TestDefaultBitrateForAAC(t *testing.T) {
	t.Parallel()

	exp := &FFmpegExporter{config: Config{Format: FormatAAC}}
	args := exp.buildFFmpegArgs([]string{"-i", "in.wav"}, "out.m4a.temp")
	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", "in.wav",
		"-c:a", "aac", "-b:a", "128k",
		"-movflags", "+faststart",
		"-f", "mp4", "out.m4a.temp",
	}, args)
}
