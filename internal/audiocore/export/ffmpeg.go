package export

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/tphakala/voicerec/internal/audiocore"
	"github.com/tphakala/voicerec/internal/errors"
	"github.com/tphakala/voicerec/internal/logger"
)

// maxStderrContext limits how much ffmpeg stderr is attached to an error
const maxStderrContext = 512

// pcmInputFormat is the ffmpeg raw input format for piped segments
const pcmInputFormat = "s16le"

// FFmpegExporter transcodes WAV files or raw PCM with an ffmpeg subprocess. Output is
// written to <dest>.temp and renamed into place only after ffmpeg exits 0.
type FFmpegExporter struct {
	config Config
}

// NewFFmpegExporter creates a new FFmpeg-based exporter
func NewFFmpegExporter(config Config) (*FFmpegExporter, error) {
	if err := ValidateConfig(&config); err != nil {
		return nil, err
	}
	if config.FFmpegPath == "" {
		return nil, errors.Newf("FFmpeg path required for format: %s", config.Format).
			Component("export").
			Category(errors.CategoryConfiguration).
			Context("format", string(config.Format)).
			Build()
	}
	return &FFmpegExporter{config: config}, nil
}

// Format returns the output format of this exporter
func (f *FFmpegExporter) Format() Format {
	return f.config.Format
}

// ExportFile transcodes the WAV file at srcPath into destPath
func (f *FFmpegExporter) ExportFile(ctx context.Context, srcPath, destPath string) error {
	input := []string{"-i", srcPath}
	return f.run(ctx, input, nil, destPath)
}

// ExportPCM transcodes raw 16-bit PCM piped on stdin into destPath
func (f *FFmpegExporter) ExportPCM(ctx context.Context, pcm []byte, format audiocore.AudioFormat, destPath string) error {
	if err := format.Validate(); err != nil {
		return err
	}
	input := []string{
		"-f", pcmInputFormat,
		"-ar", strconv.Itoa(format.SampleRate),
		"-ac", strconv.Itoa(format.Channels),
		"-i", "pipe:0",
	}
	return f.run(ctx, input, pcm, destPath)
}

func (f *FFmpegExporter) run(ctx context.Context, input []string, stdin []byte, destPath string) error {
	tempPath := destPath + TempSuffix
	args := f.buildFFmpegArgs(input, tempPath)

	runCtx := ctx
	if f.config.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, f.config.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, f.config.FFmpegPath, args...) //nolint:gosec // ffmpeg path is validated configuration
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	GetLogger().Debug("running ffmpeg",
		logger.String("ffmpeg", f.config.FFmpegPath),
		logger.String("args", strings.Join(args, " ")))

	start := time.Now()
	if err := cmd.Run(); err != nil {
		_ = os.Remove(tempPath)
		operation := "ffmpeg_export_failed"
		if runCtx.Err() != nil {
			operation = "ffmpeg_export_timeout"
		}
		return errors.New(err).
			Component("export").
			Category(errors.CategoryCommandExecution).
			Context("operation", operation).
			Context("format", string(f.config.Format)).
			Context("stderr", truncate(strings.TrimSpace(stderr.String()), maxStderrContext)).
			Timing("ffmpeg_run", time.Since(start)).
			Build()
	}

	if err := os.Rename(tempPath, destPath); err != nil {
		_ = os.Remove(tempPath)
		return errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("operation", "rename_export_file").
			FileContext(destPath, 0).
			Build()
	}

	return nil
}

// buildFFmpegArgs builds the ffmpeg argument list for the given input arguments
func (f *FFmpegExporter) buildFFmpegArgs(input []string, outputPath string) []string {
	args := make([]string, 0, 20)
	args = append(args, "-hide_banner", "-loglevel", "error", "-y")
	args = append(args, input...)
	args = append(args, "-c:a", GetFFmpegCodec(f.config.Format))
	args = append(args, f.rateArgs()...)
	args = append(args, getFormatSpecificArgs(f.config.Format)...)
	args = append(args, "-f", GetFFmpegFormat(f.config.Format), outputPath)
	return args
}

// rateArgs selects -b:a when a bitrate is set, MP3 VBR quality otherwise
func (f *FFmpegExporter) rateArgs() []string {
	if !IsLossyFormat(f.config.Format) {
		return nil
	}
	if f.config.Bitrate != "" {
		return []string{"-b:a", clampBitrate(f.config.Format, f.config.Bitrate)}
	}
	if f.config.Format == FormatMP3 {
		return []string{"-q:a", strconv.Itoa(f.config.Quality)}
	}
	return []string{"-b:a", defaultBitrates[f.config.Format]}
}

// getFormatSpecificArgs returns format-specific FFmpeg arguments
func getFormatSpecificArgs(format Format) []string {
	switch format {
	case FormatAAC, FormatALAC:
		return []string{"-movflags", "+faststart"}
	default:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
