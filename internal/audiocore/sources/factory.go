// Package sources creates the configured audio capture backend
package sources

import (
	"github.com/tphakala/voicerec/internal/audiocore"
	"github.com/tphakala/voicerec/internal/audiocore/sources/malgo"
	"github.com/tphakala/voicerec/internal/audiocore/sources/portaudio"
	"github.com/tphakala/voicerec/internal/audiocore/sources/reader"
	"github.com/tphakala/voicerec/internal/conf"
	"github.com/tphakala/voicerec/internal/errors"
)

// CreateSource creates an audio source for the configured backend
func CreateSource(settings *conf.Settings) (audiocore.AudioSource, error) {
	audio := settings.Audio

	switch audio.Backend {
	case conf.BackendMalgo, "":
		return malgo.NewSource(malgo.Config{
			DeviceName:   audio.Source,
			SampleRate:   uint32(audio.SampleRate),
			Channels:     uint32(audio.Channels),
			PeriodFrames: uint32(settings.FrameSamples()),
			Debug:        settings.Debug,
		}), nil

	case conf.BackendPortAudio:
		return portaudio.NewSource(portaudio.Config{
			SampleRate:      audio.SampleRate,
			Channels:        audio.Channels,
			FramesPerBuffer: settings.FrameSamples(),
		}), nil

	case conf.BackendReader:
		return reader.NewSource(reader.Config{
			Path:       audio.Input,
			SampleRate: audio.SampleRate,
			Channels:   audio.Channels,
			ChunkBytes: settings.FrameBytes(),
			Speed:      audio.Speed,
		}), nil

	default:
		return nil, errors.Newf("unknown audio backend: %s", audio.Backend).
			Component("audio-source").
			Category(errors.CategoryConfiguration).
			Context("backend", audio.Backend).
			Build()
	}
}

// ListAvailableDevices returns the capture devices visible to the malgo backend
func ListAvailableDevices() ([]malgo.AudioDeviceInfo, error) {
	return malgo.EnumerateDevices()
}
