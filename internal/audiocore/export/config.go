package export

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tphakala/voicerec/internal/errors"
)

// TimestampLayout is the fixed-width start time used in segment file names
const TimestampLayout = "20060102150405"

// defaultBitrates apply to lossy formats without a VBR quality mode when no bitrate is set
var defaultBitrates = map[Format]string{
	FormatAAC:  "128k",
	FormatOpus: "96k",
}

// ValidateConfig validates a transcoding configuration
func ValidateConfig(config *Config) error {
	if config == nil {
		return errors.Newf("export config is nil").
			Component("export").
			Category(errors.CategoryValidation).
			Build()
	}

	if !IsValidFormat(config.Format) || config.Format == FormatWAV {
		return errors.Newf("invalid transcode format: %s", config.Format).
			Component("export").
			Category(errors.CategoryValidation).
			Context("format", string(config.Format)).
			Build()
	}

	if IsLossyFormat(config.Format) && config.Bitrate != "" && !IsValidBitrate(config.Bitrate) {
		return errors.Newf("invalid bitrate: %s", config.Bitrate).
			Component("export").
			Category(errors.CategoryValidation).
			Context("bitrate", config.Bitrate).
			Build()
	}

	if config.Quality < 0 || config.Quality > 9 {
		return errors.Newf("invalid quality: %d", config.Quality).
			Component("export").
			Category(errors.CategoryValidation).
			Context("quality", config.Quality).
			Build()
	}

	if config.Timeout < 0 {
		return errors.Newf("invalid export timeout: %v", config.Timeout).
			Component("export").
			Category(errors.CategoryValidation).
			Context("timeout", config.Timeout.String()).
			Build()
	}

	return nil
}

// IsValidFormat checks if a format is valid
func IsValidFormat(format Format) bool {
	switch format {
	case FormatWAV, FormatMP3, FormatFLAC, FormatAAC, FormatOpus, FormatALAC:
		return true
	default:
		return false
	}
}

// IsLossyFormat checks if a format is lossy
func IsLossyFormat(format Format) bool {
	switch format {
	case FormatMP3, FormatAAC, FormatOpus:
		return true
	default:
		return false
	}
}

// IsValidBitrate checks that a bitrate is "<n>k" with n between 32 and 320
func IsValidBitrate(bitrate string) bool {
	numStr, ok := strings.CutSuffix(bitrate, "k")
	if !ok || numStr == "" {
		return false
	}
	rate, err := strconv.Atoi(numStr)
	if err != nil {
		return false
	}
	return rate >= 32 && rate <= 320
}

// Extension returns the file extension, without dot, written for a format
func Extension(format Format) string {
	switch format {
	case FormatAAC, FormatALAC:
		return "m4a"
	default:
		return string(format)
	}
}

// GetFFmpegFormat returns the FFmpeg muxer name for a Format
func GetFFmpegFormat(format Format) string {
	switch format {
	case FormatAAC:
		return "mp4"
	case FormatALAC:
		return "ipod"
	default:
		return string(format)
	}
}

// GetFFmpegCodec returns the FFmpeg codec name for a Format
func GetFFmpegCodec(format Format) string {
	switch format {
	case FormatMP3:
		return "libmp3lame"
	case FormatFLAC:
		return "flac"
	case FormatAAC:
		return "aac"
	case FormatOpus:
		return "libopus"
	case FormatALAC:
		return "alac"
	default:
		return string(format)
	}
}

// clampBitrate caps a bitrate at the format's encoder limit
func clampBitrate(format Format, bitrate string) string {
	numStr := strings.TrimSuffix(bitrate, "k")
	rate, err := strconv.Atoi(numStr)
	if err != nil {
		return bitrate
	}
	if format == FormatOpus && rate > 256 {
		return "256k"
	}
	return bitrate
}

// FileName returns the segment file name for a start time: YYYYMMDDHHMMSS.<ext>
func FileName(start time.Time, format Format) string {
	return start.Format(TimestampLayout) + "." + Extension(format)
}

// ReplaceExtension returns path with its extension swapped for the format's
func ReplaceExtension(path string, format Format) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "." + Extension(format)
}
