// Package mqtt publishes segment events to an MQTT broker.
package mqtt

import (
	"time"

	"github.com/tphakala/voicerec/internal/conf"
	"github.com/tphakala/voicerec/internal/errors"
	"github.com/tphakala/voicerec/internal/logger"
)

const componentMQTT = "mqtt"

// Default timeouts used when Config leaves them zero.
const (
	DefaultConnectTimeout    = 10 * time.Second
	DefaultPublishTimeout    = 5 * time.Second
	DefaultDisconnectTimeout = 250 * time.Millisecond
	maxReconnectInterval     = 2 * time.Minute
)

// SegmentTopicSuffix is appended to the configured topic for segment events.
const SegmentTopicSuffix = "/segment"

var (
	// ErrNotConnected is returned when publishing without a broker connection.
	ErrNotConnected = errors.NewStd("not connected to MQTT broker")
	// ErrTimeout is returned when the broker does not acknowledge in time.
	ErrTimeout = errors.NewStd("MQTT operation timed out")
)

// Config holds the configuration for the MQTT publisher.
type Config struct {
	Broker            string
	ClientID          string
	Username          string
	Password          string
	Topic             string // base topic, events go to Topic + SegmentTopicSuffix
	Retain            bool
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// ConfigFromSettings builds a Config from application settings.
func ConfigFromSettings(s *conf.Settings) Config {
	return Config{
		Broker:   s.MQTT.Broker,
		ClientID: s.MQTT.ClientID,
		Username: s.MQTT.Username,
		Password: s.MQTT.Password,
		Topic:    s.MQTT.Topic,
		Retain:   s.MQTT.Retain,
	}
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = DefaultPublishTimeout
	}
	if c.DisconnectTimeout <= 0 {
		c.DisconnectTimeout = DefaultDisconnectTimeout
	}
	return c
}

// SegmentEvent describes one finalized segment.
type SegmentEvent struct {
	Session         string    `json:"session"`
	Mode            string    `json:"mode"`
	Path            string    `json:"path"`
	EncodedPath     string    `json:"encoded_path,omitempty"`
	Start           time.Time `json:"start"`
	DurationSeconds float64   `json:"duration_seconds"`
	Bytes           int64     `json:"bytes"`
}

// GetLogger returns the mqtt package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module(componentMQTT)
}
