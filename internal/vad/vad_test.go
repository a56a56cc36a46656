package vad

import (
	"encoding/binary"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tone returns a mono sine frame at freq Hz with the given peak amplitude (0..1)
func tone(sampleRate, samples int, freq, amplitude float64) []byte {
	pcm := make([]byte, samples*2)
	for i := range samples {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v*32767)))
	}
	return pcm
}

func whiteNoise(samples int, amplitude float64) []byte {
	r := rand.New(rand.NewPCG(1, 2))
	pcm := make([]byte, samples*2)
	for i := range samples {
		v := (r.Float64()*2 - 1) * amplitude
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v*32767)))
	}
	return pcm
}

func TestEnergyDetectorClassifies(t *testing.T) {
	t.Parallel()

	d, err := NewEnergyDetector(16000, 30, 2)
	require.NoError(t, err)
	assert.Equal(t, 960, d.FrameBytes())

	voiced, err := d.IsSpeech(tone(16000, 480, 220, 0.3))
	require.NoError(t, err)
	assert.True(t, voiced, "loud low tone is speech-like")

	silent, err := d.IsSpeech(make([]byte, 960))
	require.NoError(t, err)
	assert.False(t, silent, "digital silence")

	quiet, err := d.IsSpeech(tone(16000, 480, 220, 0.001))
	require.NoError(t, err)
	assert.False(t, quiet, "tone below the level threshold")
}

func TestEnergyDetectorAggressivenessRejectsHiss(t *testing.T) {
	t.Parallel()

	noise := whiteNoise(480, 0.2)

	lenient, err := NewEnergyDetector(16000, 30, 0)
	require.NoError(t, err)
	strict, err := NewEnergyDetector(16000, 30, 3)
	require.NoError(t, err)

	got, err := lenient.IsSpeech(noise)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = strict.IsSpeech(noise)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEnergyDetectorRejectsWrongFrameLength(t *testing.T) {
	t.Parallel()

	d, err := NewEnergyDetector(8000, 10, 1)
	require.NoError(t, err)

	_, err = d.IsSpeech(make([]byte, 100))
	assert.ErrorIs(t, err, ErrInvalidFrame)
}

func TestNewEnergyDetectorValidates(t *testing.T) {
	t.Parallel()

	_, err := NewEnergyDetector(44100, 30, 1)
	assert.Error(t, err)
	_, err = NewEnergyDetector(16000, 25, 1)
	assert.Error(t, err)
	_, err = NewEnergyDetector(16000, 30, 4)
	assert.Error(t, err)
	_, err = NewEnergyDetector(16000, 30, -1)
	assert.Error(t, err)
}

func TestLevelDBFS(t *testing.T) {
	t.Parallel()

	assert.True(t, math.IsInf(LevelDBFS(make([]byte, 64)), -1))
	assert.True(t, math.IsInf(LevelDBFS(nil), -1))

	// Full-scale sine has an RMS of 1/sqrt(2), about -3 dBFS
	assert.InDelta(t, -3.01, LevelDBFS(tone(48000, 4800, 1000, 1.0)), 0.1)
}
