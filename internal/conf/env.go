// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, VOICEREC_AUDIO_SAMPLERATE and so on.
const EnvPrefix = "VOICEREC"

type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"output.path", "VOICEREC_OUTPUT_PATH", nil},
		{"audio.backend", "VOICEREC_AUDIO_BACKEND", validateEnvBackend},
		{"audio.source", "VOICEREC_AUDIO_SOURCE", nil},
		{"audio.samplerate", "VOICEREC_AUDIO_SAMPLERATE", validateEnvPositiveInt},
		{"audio.channels", "VOICEREC_AUDIO_CHANNELS", validateEnvChannels},
		{"segment.mode", "VOICEREC_SEGMENT_MODE", validateEnvMode},
		{"encode.enabled", "VOICEREC_ENCODE_ENABLED", validateEnvBool},
		{"encode.ffmpegpath", "VOICEREC_ENCODE_FFMPEGPATH", nil},
		{"mqtt.password", "VOICEREC_MQTT_PASSWORD", nil},
		{"sentry.dsn", "VOICEREC_SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up explicit environment variable bindings with validation
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateEnvChannels(value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || (n != 1 && n != 2) {
		return fmt.Errorf("must be 1 or 2")
	}
	return nil
}

func validateEnvMode(value string) error {
	if !slices.Contains([]string{ModeFixed, ModeVoice}, strings.TrimSpace(value)) {
		return fmt.Errorf("must be %q or %q", ModeFixed, ModeVoice)
	}
	return nil
}

func validateEnvBackend(value string) error {
	if !slices.Contains([]string{BackendMalgo, BackendPortAudio, BackendReader}, strings.TrimSpace(value)) {
		return fmt.Errorf("must be one of %s, %s, %s", BackendMalgo, BackendPortAudio, BackendReader)
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables() error {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	return bindEnvVars()
}
