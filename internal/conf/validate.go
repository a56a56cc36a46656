// conf/validate.go

package conf

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct. It does not modify settings.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateOutputSettings,
		validateAudioSettings,
		validateSegmentSettings,
		validateEncodeSettings,
		validateLogSettings,
		validateTelemetrySettings,
		validateMQTTSettings,
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateOutputSettings(s *Settings) error {
	if strings.TrimSpace(s.Output.Path) == "" {
		return errors.New("output path must not be empty")
	}
	if s.Output.MinFreeMB < 0 {
		return errors.New("output minimum free space must be non-negative")
	}
	return nil
}

func validateAudioSettings(s *Settings) error {
	var errs []string

	switch s.Audio.Backend {
	case BackendMalgo, BackendPortAudio, BackendReader:
	default:
		errs = append(errs, fmt.Sprintf("unsupported audio backend: %q", s.Audio.Backend))
	}

	if s.Audio.SampleRate <= 0 {
		errs = append(errs, "sample rate must be positive")
	}
	if s.Audio.Channels != 1 && s.Audio.Channels != 2 {
		errs = append(errs, fmt.Sprintf("channels must be 1 or 2, got %d", s.Audio.Channels))
	}
	if s.Segment.Mode != ModeVoice && s.Audio.BlockSize <= 0 {
		errs = append(errs, "block size must be positive")
	}
	if s.Audio.Speed < 0 {
		errs = append(errs, fmt.Sprintf("reader speed must be non-negative, got %g", s.Audio.Speed))
	}
	if s.Audio.QueueFrames < 0 {
		errs = append(errs, "queue frames must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("audio settings errors: %v", errs)
	}
	return nil
}

func validateSegmentSettings(s *Settings) error {
	switch s.Segment.Mode {
	case ModeFixed:
		if s.Segment.Fixed.Seconds < 0 {
			return errors.New("fixed segment seconds must be non-negative")
		}
		return nil
	case ModeVoice:
		return validateVoiceSettings(s)
	default:
		return fmt.Errorf("unsupported segment mode: %q", s.Segment.Mode)
	}
}

func validateVoiceSettings(s *Settings) error {
	var errs []string
	v := &s.Segment.Voice

	if !slices.Contains(VoiceSampleRates, s.Audio.SampleRate) {
		errs = append(errs, fmt.Sprintf("voice mode requires sample rate in %v, got %d", VoiceSampleRates, s.Audio.SampleRate))
	}
	if s.Audio.Channels != 1 {
		errs = append(errs, "voice mode requires mono input")
	}
	if !slices.Contains(VoiceFrameDurations, v.FrameMs) {
		errs = append(errs, fmt.Sprintf("voice frame duration must be one of %v ms, got %d", VoiceFrameDurations, v.FrameMs))
	}
	if v.Aggressiveness < 0 || v.Aggressiveness > 3 {
		errs = append(errs, fmt.Sprintf("voice aggressiveness must be 0..3, got %d", v.Aggressiveness))
	}
	if v.PreRoll < 0 {
		errs = append(errs, "pre-roll must be non-negative")
	}
	if v.Frames(v.Hangover) < 1 {
		errs = append(errs, fmt.Sprintf("hangover must cover at least one %d ms frame, got %gs", v.FrameMs, v.Hangover))
	}
	if v.StartN < 1 || v.StartK < 1 || v.StartK > v.StartN {
		errs = append(errs, fmt.Sprintf("start threshold requires 1 <= K <= N, got K=%d N=%d", v.StartK, v.StartN))
	}
	if v.MinSeconds < 0 || v.MaxSeconds <= 0 || v.MinSeconds >= v.MaxSeconds {
		errs = append(errs, fmt.Sprintf("segment duration requires 0 <= min < max, got min=%g max=%g", v.MinSeconds, v.MaxSeconds))
	}
	if v.PreRoll >= v.MaxSeconds && v.MaxSeconds > 0 {
		errs = append(errs, fmt.Sprintf("pre-roll must be shorter than max segment length, got pre-roll=%g max=%g", v.PreRoll, v.MaxSeconds))
	}

	if len(errs) > 0 {
		return fmt.Errorf("voice settings errors: %v", errs)
	}
	return nil
}

func validateEncodeSettings(s *Settings) error {
	e := &s.Encode
	if !e.Enabled {
		return nil
	}

	switch e.Type {
	case "mp3", "opus", "aac":
		if e.Bitrate != "" {
			if err := validateBitrate(e.Type, e.Bitrate); err != nil {
				return err
			}
		}
	case "flac", "alac":
		// Lossless formats ignore bitrate and quality
	default:
		return fmt.Errorf("unsupported encode type: %s", e.Type)
	}

	if e.Quality < 0 || e.Quality > 9 {
		return fmt.Errorf("encode quality must be 0..9, got %d", e.Quality)
	}
	if e.Workers < 1 {
		return fmt.Errorf("encode workers must be at least 1, got %d", e.Workers)
	}
	if e.DrainTimeout < 0 {
		return errors.New("encode drain timeout must be non-negative")
	}
	// piped segments never exist as WAV, so there is no source to keep
	if e.PipePCM && e.KeepSource {
		return errors.New("encode pipepcm and keepsource cannot both be enabled")
	}
	return nil
}

func validateBitrate(format, bitrate string) error {
	if !strings.HasSuffix(bitrate, "k") {
		return fmt.Errorf("invalid bitrate format for %s: %s. Must end with 'k' (e.g., '128k')", format, bitrate)
	}
	value, err := strconv.Atoi(strings.TrimSuffix(bitrate, "k"))
	if err != nil {
		return fmt.Errorf("invalid bitrate value for %s: %s", format, bitrate)
	}
	if value < 32 || value > 320 {
		return fmt.Errorf("bitrate for %s must be between 32k and 320k", format)
	}
	return nil
}

func validateLogSettings(s *Settings) error {
	switch s.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("unsupported log level: %q", s.Logging.Level)
	}
}

func validateTelemetrySettings(s *Settings) error {
	if !s.Telemetry.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(s.Telemetry.Listen); err != nil {
		return fmt.Errorf("invalid telemetry listen address %q: %w", s.Telemetry.Listen, err)
	}
	return nil
}

func validateMQTTSettings(s *Settings) error {
	if !s.MQTT.Enabled {
		return nil
	}
	u, err := url.Parse(s.MQTT.Broker)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid MQTT broker URL: %q", s.MQTT.Broker)
	}
	if strings.TrimSpace(s.MQTT.Topic) == "" {
		return errors.New("MQTT topic must not be empty")
	}
	return nil
}
