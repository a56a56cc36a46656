// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// setDefaultConfig registers defaults on the global viper instance.
func setDefaultConfig() {
	setDefaultConfigOn(viper.GetViper())
}

func setDefaultConfigOn(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("output.path", "recordings")
	v.SetDefault("output.minfreemb", 100)

	v.SetDefault("audio.backend", BackendMalgo)
	v.SetDefault("audio.source", "sysdefault")
	v.SetDefault("audio.input", "-")
	v.SetDefault("audio.samplerate", DefaultSampleRate)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.blocksize", DefaultBlockSize)
	v.SetDefault("audio.queueframes", 0)
	v.SetDefault("audio.speed", 1.0)

	v.SetDefault("segment.mode", ModeFixed)
	v.SetDefault("segment.fixed.seconds", 0)
	v.SetDefault("segment.voice.framems", 30)
	v.SetDefault("segment.voice.aggressiveness", 2)
	v.SetDefault("segment.voice.preroll", 2.0)
	v.SetDefault("segment.voice.hangover", 2.0)
	v.SetDefault("segment.voice.startk", 20)
	v.SetDefault("segment.voice.startn", 30)
	v.SetDefault("segment.voice.minseconds", 1.0)
	v.SetDefault("segment.voice.maxseconds", 300.0)
	v.SetDefault("segment.voice.rearm", false)

	v.SetDefault("encode.enabled", false)
	v.SetDefault("encode.keepsource", false)
	v.SetDefault("encode.type", "mp3")
	v.SetDefault("encode.quality", 2)
	v.SetDefault("encode.bitrate", "")
	v.SetDefault("encode.workers", 1)
	v.SetDefault("encode.pipepcm", false)
	v.SetDefault("encode.ffmpegpath", "")
	v.SetDefault("encode.draintimeout", "0s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.timezone", "Local")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.listen", "127.0.0.1:8090")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "voicerec")
	v.SetDefault("mqtt.clientid", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.retain", false)
}
