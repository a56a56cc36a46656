package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	s, err := DefaultSettings()
	require.NoError(t, err)
	s.Segment.Mode = ModeVoice
	s.Audio.SampleRate = 16000
	s.Segment.Voice.Rearm = true
	s.Encode.DrainTimeout = 30 * time.Second
	s.Output.Path = filepath.Join(t.TempDir(), "clips")

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveYAMLConfig(path, s))

	viper.SetConfigFile(path)
	loaded, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ModeVoice, loaded.Segment.Mode)
	assert.Equal(t, 16000, loaded.Audio.SampleRate)
	assert.True(t, loaded.Segment.Voice.Rearm)
	assert.Equal(t, 30*time.Second, loaded.Encode.DrainTimeout)
	assert.Equal(t, s.Output.Path, loaded.Output.Path)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("segment:\n  mode: voice\naudio:\n  samplerate: 44100\n"), 0o600))

	viper.SetConfigFile(path)
	_, err := Load()
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, err.Error(), "sample rate")
}

func TestEnvironmentOverride(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("audio:\n  channels: 1\n"), 0o600))
	t.Setenv("VOICEREC_AUDIO_CHANNELS", "2")
	t.Setenv("VOICEREC_SEGMENT_FIXED_SECONDS", "60")

	viper.SetConfigFile(path)
	loaded, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2, loaded.Audio.Channels)
	assert.InDelta(t, 60.0, loaded.Segment.Fixed.Seconds, 0)
}

func TestValidateEnvValues(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validateEnvBool(" true "))
	assert.Error(t, validateEnvBool("yes"))
	assert.NoError(t, validateEnvChannels("2"))
	assert.Error(t, validateEnvChannels("6"))
	assert.NoError(t, validateEnvMode("voice"))
	assert.Error(t, validateEnvMode("loop"))
	assert.NoError(t, validateEnvBackend("reader"))
	assert.Error(t, validateEnvPositiveInt("-1"))
}

func TestValidateToolPath(t *testing.T) {
	t.Parallel()

	tool := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\n"), 0o700))

	got, err := ValidateToolPath(tool, "definitely-not-a-real-tool")
	require.NoError(t, err)
	assert.Equal(t, tool, got)

	_, err = ValidateToolPath("", "definitely-not-a-real-tool")
	assert.Error(t, err)
}
