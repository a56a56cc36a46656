// Package export writes PCM audio to WAV containers with go-audio/wav and transcodes
// WAV files or raw PCM to compressed formats with an ffmpeg subprocess.
package export

import "time"

// Format represents the audio export format
type Format string

const (
	// FormatWAV represents WAV audio format (native Go implementation)
	FormatWAV Format = "wav"
	// FormatMP3 represents MP3 audio format (requires FFmpeg)
	FormatMP3 Format = "mp3"
	// FormatFLAC represents FLAC audio format (requires FFmpeg)
	FormatFLAC Format = "flac"
	// FormatAAC represents AAC audio format in an MP4 container (requires FFmpeg)
	FormatAAC Format = "aac"
	// FormatOpus represents Opus audio format (requires FFmpeg)
	FormatOpus Format = "opus"
	// FormatALAC represents Apple Lossless in an MP4 container (requires FFmpeg)
	FormatALAC Format = "alac"
)

// TempSuffix is appended to an output path while ffmpeg is still writing it
const TempSuffix = ".temp"

// Config contains configuration for ffmpeg transcoding
type Config struct {
	// Format specifies the output audio format
	Format Format

	// Quality is the VBR quality for MP3 (0 best, 9 smallest), used when Bitrate is empty
	Quality int

	// Bitrate for lossy formats (e.g., "128k", "192k"), overrides Quality
	Bitrate string

	// FFmpegPath is the path to the FFmpeg executable
	FFmpegPath string

	// Timeout bounds a single ffmpeg run, 0 means no limit
	Timeout time.Duration
}
