// Package record implements the record command, which runs the capture pipeline until interrupted.
package record

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/voicerec/internal/buildinfo"
	"github.com/tphakala/voicerec/internal/conf"
	"github.com/tphakala/voicerec/internal/logger"
	"github.com/tphakala/voicerec/internal/mqtt"
	"github.com/tphakala/voicerec/internal/observability"
	"github.com/tphakala/voicerec/internal/recorder"
	"github.com/tphakala/voicerec/internal/telemetry"
)

// flagBinding maps a command line flag onto its configuration key.
type flagBinding struct {
	flag string
	key  string
}

var bindings = []flagBinding{
	{"mode", "segment.mode"},
	{"output", "output.path"},
	{"backend", "audio.backend"},
	{"source", "audio.source"},
	{"input", "audio.input"},
	{"samplerate", "audio.samplerate"},
	{"channels", "audio.channels"},
	{"speed", "audio.speed"},
	{"seconds", "segment.fixed.seconds"},
	{"aggressiveness", "segment.voice.aggressiveness"},
	{"preroll", "segment.voice.preroll"},
	{"hangover", "segment.voice.hangover"},
	{"min", "segment.voice.minseconds"},
	{"max", "segment.voice.maxseconds"},
	{"rearm", "segment.voice.rearm"},
	{"encode", "encode.enabled"},
	{"format", "encode.type"},
	{"bitrate", "encode.bitrate"},
	{"keep-source", "encode.keepsource"},
	{"telemetry", "telemetry.enabled"},
	{"listen", "telemetry.listen"},
	{"mqtt", "mqtt.enabled"},
	{"broker", "mqtt.broker"},
}

// Command creates the record command.
func Command(info *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Capture audio and write segments",
		Long: "Capture audio continuously and write it to WAV segments, either rotated at a fixed " +
			"duration or clipped around detected speech. Stops on SIGINT or SIGTERM after " +
			"finalizing the open segment and draining pending encodes.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), info)
		},
	}

	if err := setupFlags(cmd); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags defines the record flags and binds them to their configuration keys.
func setupFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	f.StringP("mode", "m", conf.ModeFixed, "Segmentation mode (fixed, voice)")
	f.StringP("output", "o", "recordings", "Directory for segment files")
	f.String("backend", conf.BackendMalgo, "Capture backend (malgo, portaudio, reader)")
	f.String("source", "sysdefault", "Capture device name or ID")
	f.StringP("input", "i", "-", "Raw PCM input for the reader backend, - for stdin")
	f.Int("samplerate", conf.DefaultSampleRate, "Sample rate in Hz")
	f.Int("channels", 1, "Channel count (1, 2)")
	f.Float64("speed", 1, "Reader backend pacing, 0 reads as fast as possible")
	f.Float64P("seconds", "s", 0, "Fixed mode segment length in seconds, 0 for one file")
	f.Int("aggressiveness", 2, "Voice detector aggressiveness 0-3")
	f.Float64("preroll", 2, "Seconds of audio kept before speech starts")
	f.Float64("hangover", 2, "Seconds of silence that end a clip")
	f.Float64("min", 1, "Discard clips shorter than this many seconds")
	f.Float64("max", 300, "Force-close clips at this many seconds")
	f.Bool("rearm", false, "Keep detector state across clips")
	f.BoolP("encode", "e", false, "Encode finished segments with ffmpeg")
	f.String("format", "mp3", "Encode format (mp3, opus, aac, flac, alac)")
	f.String("bitrate", "", "Encode bitrate, e.g. 128k")
	f.Bool("keep-source", false, "Keep the WAV after encoding")
	f.Bool("telemetry", false, "Serve Prometheus metrics and health status")
	f.String("listen", "127.0.0.1:8090", "Listen address of the telemetry endpoint")
	f.Bool("mqtt", false, "Publish segment events to MQTT")
	f.String("broker", "tcp://localhost:1883", "MQTT broker URL")

	for _, b := range bindings {
		if err := viper.BindPFlag(b.key, f.Lookup(b.flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", b.flag, err)
		}
	}
	return nil
}

// run loads the configuration, wires the optional integrations and records until ctx is done.
func run(ctx context.Context, info *buildinfo.Context) error {
	settings, err := conf.Load()
	if err != nil {
		return err
	}

	central, err := logger.NewCentralLogger(settings.LoggingConfig())
	if err != nil {
		return fmt.Errorf("error initializing logger: %w", err)
	}
	logger.SetGlobal(central)
	defer func() { _ = central.Close() }()

	log := logger.Global().Module("main")
	log.Info("starting voicerec",
		logger.String("version", info.GetVersion()),
		logger.String("mode", settings.Segment.Mode),
		logger.String("backend", settings.Audio.Backend),
		logger.String("output", settings.Output.Path))

	if err := telemetry.InitSentry(settings, info.GetVersion()); err != nil {
		log.Warn("error reporting disabled", logger.Error(err))
	}
	defer telemetry.Flush()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}
	opts := []recorder.Option{recorder.WithMetrics(metrics)}

	if settings.MQTT.Enabled {
		publisher := mqtt.NewPublisher(mqtt.ConfigFromSettings(settings), metrics.MQTT)
		if err := publisher.Connect(ctx); err != nil {
			log.Warn("MQTT broker not reachable, segment events will be published once connected",
				logger.String("broker", settings.MQTT.Broker),
				logger.Error(err))
		}
		defer publisher.Disconnect()
		opts = append(opts, recorder.WithPublisher(publisher))
	}

	rec, err := recorder.New(settings, opts...)
	if err != nil {
		return err
	}

	if settings.Telemetry.Enabled {
		endpoint := observability.NewEndpoint(settings.Telemetry.Listen, metrics, rec)
		if err := endpoint.Start(); err != nil {
			return fmt.Errorf("error starting telemetry endpoint: %w", err)
		}
		defer func() {
			if err := endpoint.Shutdown(context.WithoutCancel(ctx)); err != nil {
				log.Warn("telemetry endpoint shutdown failed", logger.Error(err))
			}
		}()
	}

	return rec.Run(ctx)
}
