// Package vad classifies fixed-length PCM frames as voiced or silent.
package vad

import (
	"encoding/binary"
	"math"
	"slices"

	"github.com/tphakala/voicerec/internal/errors"
)

// SupportedSampleRates are the sample rates a detector accepts
var SupportedSampleRates = []int{8000, 16000, 32000, 48000}

// SupportedFrameDurations are the frame lengths in milliseconds a detector accepts
var SupportedFrameDurations = []int{10, 20, 30}

// ErrInvalidFrame is returned when a frame does not match the detector's frame length
var ErrInvalidFrame = errors.NewStd("invalid frame length")

// Detector classifies one mono 16-bit PCM frame at a time
type Detector interface {
	IsSpeech(frame []byte) (bool, error)
}

// thresholds per aggressiveness mode, higher modes need louder and less noise-like audio
var (
	levelThresholdsDBFS = [4]float64{-55, -48, -42, -36}
	maxZeroCrossingRate = [4]float64{1, 0.5, 0.4, 0.3}
)

// EnergyDetector is a pure-Go detector based on frame energy and zero-crossing rate.
// It keeps no state between frames.
type EnergyDetector struct {
	sampleRate   int
	frameSamples int
	minLevelDBFS float64
	maxZCR       float64
}

// NewEnergyDetector creates a detector for frames of frameMs at sampleRate.
// Aggressiveness ranges from 0 (least aggressive about filtering non-speech) to 3.
func NewEnergyDetector(sampleRate, frameMs, aggressiveness int) (*EnergyDetector, error) {
	if !slices.Contains(SupportedSampleRates, sampleRate) {
		return nil, errors.Newf("unsupported sample rate for voice detection: %d", sampleRate).
			Component("vad").
			Category(errors.CategoryValidation).
			Context("sample_rate", sampleRate).
			Build()
	}
	if !slices.Contains(SupportedFrameDurations, frameMs) {
		return nil, errors.Newf("unsupported frame duration for voice detection: %d ms", frameMs).
			Component("vad").
			Category(errors.CategoryValidation).
			Context("frame_ms", frameMs).
			Build()
	}
	if aggressiveness < 0 || aggressiveness > 3 {
		return nil, errors.Newf("aggressiveness must be between 0 and 3, got %d", aggressiveness).
			Component("vad").
			Category(errors.CategoryValidation).
			Context("aggressiveness", aggressiveness).
			Build()
	}

	return &EnergyDetector{
		sampleRate:   sampleRate,
		frameSamples: sampleRate * frameMs / 1000,
		minLevelDBFS: levelThresholdsDBFS[aggressiveness],
		maxZCR:       maxZeroCrossingRate[aggressiveness],
	}, nil
}

// FrameBytes returns the frame length in bytes the detector expects
func (d *EnergyDetector) FrameBytes() int {
	return d.frameSamples * 2
}

// IsSpeech reports whether frame is voiced
func (d *EnergyDetector) IsSpeech(frame []byte) (bool, error) {
	if len(frame) != d.FrameBytes() {
		return false, errors.New(ErrInvalidFrame).
			Component("vad").
			Category(errors.CategoryValidation).
			Context("frame_bytes", len(frame)).
			Context("expected_bytes", d.FrameBytes()).
			Build()
	}

	level, zcr := analyze(frame)
	return level >= d.minLevelDBFS && zcr <= d.maxZCR, nil
}

// LevelDBFS returns the RMS level of little-endian 16-bit PCM in dB relative to full scale.
// Digital silence returns -inf.
func LevelDBFS(pcm []byte) float64 {
	level, _ := analyze(pcm)
	return level
}

// analyze returns the RMS level in dBFS and the fraction of adjacent samples that change sign
func analyze(pcm []byte) (levelDBFS, zcr float64) {
	n := len(pcm) / 2
	if n == 0 {
		return math.Inf(-1), 0
	}

	var sumSquares float64
	crossings := 0
	prev := int16(binary.LittleEndian.Uint16(pcm))
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		v := float64(s) / 32768.0
		sumSquares += v * v
		if i > 0 && (s >= 0) != (prev >= 0) {
			crossings++
		}
		prev = s
	}

	rms := math.Sqrt(sumSquares / float64(n))
	if rms == 0 {
		return math.Inf(-1), 0
	}
	if n > 1 {
		zcr = float64(crossings) / float64(n-1)
	}
	return 20 * math.Log10(rms), zcr
}
