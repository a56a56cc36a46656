// config.go: settings struct for voicerec and functions to load and save it.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/voicerec/internal/logger"
)

// OutputSettings controls where recordings are written.
type OutputSettings struct {
	Path      string // directory for segment files, created if absent
	MinFreeMB int    // refuse to start below this much free space, 0 disables the check
}

// AudioSettings describes the capture stream.
type AudioSettings struct {
	Backend     string  // malgo, portaudio or reader
	Source      string  // capture device name or ID for malgo, empty or "sysdefault" for default
	Input       string  // reader backend input path, "-" for stdin
	SampleRate  int     // samples per second per channel
	Channels    int     // 1 or 2
	BlockSize   int     // fixed mode frame size in samples per channel
	QueueFrames int     // frame queue capacity, 0 sizes it for about two seconds of audio
	Speed       float64 // reader backend pacing, 1 is real time and 0 reads as fast as possible
}

// FixedSettings configures fixed-duration rotation.
type FixedSettings struct {
	Seconds float64 // segment length, 0 writes one continuous file
}

// VoiceSettings configures voice-activity-triggered clipping.
type VoiceSettings struct {
	FrameMs        int     // analysis frame duration: 10, 20 or 30
	Aggressiveness int     // detector aggressiveness 0..3
	PreRoll        float64 // seconds of audio kept before the trigger
	Hangover       float64 // seconds of silence that close a segment
	StartK         int     // voiced frames required within the window to start
	StartN         int     // activity window length in frames
	MinSeconds     float64 // shorter segments are discarded
	MaxSeconds     float64 // segments are force-closed at this length
	Rearm          bool    // keep window and pre-roll tracking across segments instead of resetting
}

// SegmentSettings selects and configures the segmentation policy.
type SegmentSettings struct {
	Mode  string // fixed or voice
	Fixed FixedSettings
	Voice VoiceSettings
}

// EncodeSettings configures background transcoding with ffmpeg.
type EncodeSettings struct {
	Enabled      bool
	KeepSource   bool          // keep the WAV after a successful encode
	Type         string        // mp3, opus, aac, flac or alac
	Quality      int           // VBR quality, used when Bitrate is empty
	Bitrate      string        // e.g. 128k, overrides Quality
	Workers      int           // concurrent ffmpeg processes
	PipePCM      bool          // voice mode: pipe PCM to ffmpeg instead of encoding from the WAV
	FfmpegPath   string        // explicit ffmpeg path, resolved from PATH when empty
	DrainTimeout time.Duration // shutdown wait for pending encodes, 0 waits for all
}

// LogSettings configures the central logger.
type LogSettings struct {
	Level    string // trace, debug, info, warn, error
	File     string // optional JSON log file
	Timezone string // "Local", "UTC" or IANA name
}

// TelemetrySettings configures the metrics and health endpoint.
type TelemetrySettings struct {
	Enabled bool
	Listen  string // host:port
}

// SentrySettings configures error reporting.
type SentrySettings struct {
	Enabled bool
	DSN     string
}

// MQTTSettings configures segment event publishing.
type MQTTSettings struct {
	Enabled  bool
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	Retain   bool
}

// Settings is the complete, validated configuration of a run. It is never modified after Load.
type Settings struct {
	Debug     bool
	Output    OutputSettings
	Audio     AudioSettings
	Segment   SegmentSettings
	Encode    EncodeSettings
	Logging   LogSettings
	Telemetry TelemetrySettings
	Sentry    SentrySettings
	MQTT      MQTTSettings
}

// Load reads the configuration file, environment variables and bound flags into a new
// Settings and validates it.
func Load() (*Settings, error) {
	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	resolveRuntimePaths(settings)

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// initViper registers defaults, config search paths and environment bindings, then reads the
// config file if one exists. A missing config file is not an error, defaults apply.
func initViper() error {
	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		GetLogger().Warn("environment variable issues", logger.Error(err))
	}

	if viper.ConfigFileUsed() == "" {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		configPaths, err := GetDefaultConfigPaths()
		if err != nil {
			return fmt.Errorf("error getting default config paths: %w", err)
		}
		for _, path := range configPaths {
			viper.AddConfigPath(path)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			GetLogger().Debug("no config file found, using defaults")
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	GetLogger().Debug("config file loaded", logger.String("path", viper.ConfigFileUsed()))
	return nil
}

// resolveRuntimePaths fills values that depend on the host, such as the ffmpeg binary.
func resolveRuntimePaths(settings *Settings) {
	if !settings.Encode.Enabled {
		return
	}

	path, err := ValidateToolPath(settings.Encode.FfmpegPath, GetFfmpegBinaryName())
	if err != nil {
		GetLogger().Warn("ffmpeg not found, segments will be kept as WAV",
			logger.Error(err))
		settings.Encode.FfmpegPath = ""
		return
	}
	settings.Encode.FfmpegPath = path
}

// DefaultSettings returns the built-in defaults without reading any file.
func DefaultSettings() (*Settings, error) {
	v := viper.New()
	setDefaultConfigOn(v)

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling default config: %w", err)
	}
	return settings, nil
}

// SaveYAMLConfig writes settings to configPath atomically.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := moveFile(tempFileName, configPath); err != nil {
		return fmt.Errorf("error moving config file into place: %w", err)
	}

	return nil
}
