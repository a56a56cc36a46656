package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/tphakala/voicerec/internal/errors"
	"github.com/tphakala/voicerec/internal/logger"
	"github.com/tphakala/voicerec/internal/observability/metrics"
)

// Publisher sends segment events to the broker. Reconnection is left to the
// paho client, so a publisher created while the broker is down starts
// delivering once it comes up.
type Publisher struct {
	config    Config
	metrics   *metrics.MQTTMetrics
	newClient func(*paho.ClientOptions) paho.Client

	mu     sync.Mutex
	client paho.Client
}

// NewPublisher creates a publisher. m may be nil.
func NewPublisher(config Config, m *metrics.MQTTMetrics) *Publisher {
	config = config.withDefaults()
	if config.ClientID == "" {
		config.ClientID = "voicerec-" + uuid.NewString()[:8]
	}
	return &Publisher{
		config:    config,
		metrics:   m,
		newClient: paho.NewClient,
	}
}

// Connect starts the broker connection and waits for it up to the connect
// timeout. On timeout the client keeps retrying in the background.
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil && p.client.IsConnected() {
		return nil
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(p.config.Broker)
	opts.SetClientID(p.config.ClientID)
	opts.SetUsername(p.config.Username)
	opts.SetPassword(p.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetMaxReconnectInterval(maxReconnectInterval)
	opts.SetConnectTimeout(p.config.ConnectTimeout)
	opts.SetOnConnectHandler(p.onConnect)
	opts.SetConnectionLostHandler(p.onConnectionLost)
	opts.SetReconnectingHandler(p.onReconnecting)

	p.client = p.newClient(opts)
	if err := waitToken(ctx, p.client.Connect(), p.config.ConnectTimeout); err != nil {
		return errors.New(err).
			Component(componentMQTT).
			Category(errors.CategoryMQTTConnection).
			Context("operation", "connect").
			Context("broker", p.config.Broker).
			Build()
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *Publisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client != nil && p.client.IsConnected()
}

// Topic returns the topic segment events are published to.
func (p *Publisher) Topic() string {
	return p.config.Topic + SegmentTopicSuffix
}

// PublishSegment publishes ev as JSON with QoS 1.
func (p *Publisher) PublishSegment(ctx context.Context, ev SegmentEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.New(err).
			Component(componentMQTT).
			Category(errors.CategoryValidation).
			Context("operation", "marshal_segment_event").
			Build()
	}

	p.mu.Lock()
	client := p.client
	p.mu.Unlock()

	if client == nil || !client.IsConnected() {
		p.recordPublish(len(payload), 0, ErrNotConnected)
		return errors.New(ErrNotConnected).
			Component(componentMQTT).
			Category(errors.CategoryMQTTConnection).
			Context("topic", p.Topic()).
			Build()
	}

	start := time.Now()
	err = waitToken(ctx, client.Publish(p.Topic(), 1, p.config.Retain, payload), p.config.PublishTimeout)
	p.recordPublish(len(payload), time.Since(start), err)
	if err != nil {
		return errors.New(err).
			Component(componentMQTT).
			Category(errors.CategoryMQTTPublish).
			Context("operation", "publish").
			Context("topic", p.Topic()).
			Build()
	}

	GetLogger().Debug("segment event published",
		logger.String("topic", p.Topic()),
		logger.String("path", ev.Path),
		logger.Int("size", len(payload)))
	return nil
}

// Disconnect closes the broker connection and stops reconnect attempts.
func (p *Publisher) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		return
	}
	p.client.Disconnect(uint(p.config.DisconnectTimeout.Milliseconds()))
	p.client = nil
	if p.metrics != nil {
		p.metrics.UpdateConnectionStatus(false)
	}
}

func (p *Publisher) onConnect(paho.Client) {
	GetLogger().Info("connected to MQTT broker", logger.String("broker", p.config.Broker))
	if p.metrics != nil {
		p.metrics.UpdateConnectionStatus(true)
	}
}

func (p *Publisher) onConnectionLost(_ paho.Client, err error) {
	GetLogger().Warn("connection to MQTT broker lost",
		logger.String("broker", p.config.Broker),
		logger.Error(err))
	if p.metrics != nil {
		p.metrics.UpdateConnectionStatus(false)
	}
}

func (p *Publisher) onReconnecting(paho.Client, *paho.ClientOptions) {
	GetLogger().Debug("reconnecting to MQTT broker", logger.String("broker", p.config.Broker))
	if p.metrics != nil {
		p.metrics.ReconnectAttempts.Inc()
	}
}

func (p *Publisher) recordPublish(size int, latency time.Duration, err error) {
	if p.metrics != nil {
		p.metrics.RecordPublish(size, latency, err)
	}
}

// waitToken waits for a paho token, the timeout or ctx, whichever comes first.
func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
