package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/voicerec/internal/observability/metrics"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

// fakeClient implements the parts of paho.Client the publisher uses.
type fakeClient struct {
	paho.Client

	mu           sync.Mutex
	opts         *paho.ClientOptions
	connected    bool
	connectToken paho.Token
	publishToken paho.Token
	messages     []published
	disconnected bool
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Connect() paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectToken == nil {
		c.connected = true
		return completedToken(nil)
	}
	return c.connectToken
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload any) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic, qos, retained, payload.([]byte)})
	if c.publishToken != nil {
		return c.publishToken
	}
	return completedToken(nil)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnected = true
}

func newTestPublisher(t *testing.T, fc *fakeClient, cfg Config) (*Publisher, *metrics.MQTTMetrics) {
	t.Helper()
	m, err := metrics.NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	p := NewPublisher(cfg, m)
	p.newClient = func(opts *paho.ClientOptions) paho.Client {
		fc.opts = opts
		return fc
	}
	return p, m
}

func TestPublishSegmentSendsJSONEvent(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	p, m := newTestPublisher(t, fc, Config{Broker: "tcp://localhost:1883", Topic: "voicerec", Retain: true})
	require.NoError(t, p.Connect(t.Context()))
	require.True(t, p.IsConnected())

	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ev := SegmentEvent{
		Session:         "s1",
		Mode:            "voice",
		Path:            "/clips/20240301100000.wav",
		EncodedPath:     "/clips/20240301100000.mp3",
		Start:           start,
		DurationSeconds: 4.5,
		Bytes:           144000,
	}
	require.NoError(t, p.PublishSegment(t.Context(), ev))

	require.Len(t, fc.messages, 1)
	msg := fc.messages[0]
	assert.Equal(t, "voicerec/segment", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.True(t, msg.retain)

	var got SegmentEvent
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, ev.Path, got.Path)
	assert.True(t, start.Equal(got.Start))
	assert.InDelta(t, 4.5, got.DurationSeconds, 0)

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.MessagesDelivered), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.Errors), 0)
}

func TestConnectConfiguresClient(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	p, _ := newTestPublisher(t, fc, Config{Broker: "tcp://broker:1883", Username: "u", Password: "pw"})
	require.NoError(t, p.Connect(t.Context()))

	reader := paho.NewOptionsReader(fc.opts)
	assert.Contains(t, reader.ClientID(), "voicerec-")
	assert.Equal(t, "u", reader.Username())
	assert.True(t, reader.AutoReconnect())
	assert.True(t, reader.ConnectRetry())
	require.Len(t, reader.Servers(), 1)
	assert.Equal(t, "broker:1883", reader.Servers()[0].Host)
}

func TestPublishWhileDisconnected(t *testing.T) {
	t.Parallel()

	p, m := newTestPublisher(t, &fakeClient{}, Config{Topic: "voicerec"})

	err := p.PublishSegment(t.Context(), SegmentEvent{Path: "a.wav"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotConnected))
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Errors), 0)
}

func TestConnectTimeout(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{connectToken: pendingToken()}
	p, _ := newTestPublisher(t, fc, Config{Broker: "tcp://localhost:1883", ConnectTimeout: 20 * time.Millisecond})

	err := p.Connect(t.Context())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestPublishHonoursContext(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{publishToken: pendingToken()}
	p, m := newTestPublisher(t, fc, Config{Broker: "tcp://localhost:1883", Topic: "t", PublishTimeout: time.Minute})
	require.NoError(t, p.Connect(t.Context()))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err := p.PublishSegment(ctx, SegmentEvent{Path: "a.wav"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Errors), 0)
}

func TestPublishBrokerError(t *testing.T) {
	t.Parallel()

	brokerErr := errors.New("not authorized")
	fc := &fakeClient{publishToken: completedToken(brokerErr)}
	p, _ := newTestPublisher(t, fc, Config{Broker: "tcp://localhost:1883", Topic: "t"})
	require.NoError(t, p.Connect(t.Context()))

	err := p.PublishSegment(t.Context(), SegmentEvent{Path: "a.wav"})
	assert.True(t, errors.Is(err, brokerErr))
}

func TestConnectionHandlersUpdateMetrics(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	p, m := newTestPublisher(t, fc, Config{Broker: "tcp://localhost:1883"})
	require.NoError(t, p.Connect(t.Context()))

	p.onConnect(fc)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.ConnectionStatus), 0)

	p.onConnectionLost(fc, errors.New("eof"))
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.ConnectionStatus), 0)

	p.onReconnecting(fc, fc.opts)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.ReconnectAttempts), 0)

	p.Disconnect()
	assert.True(t, fc.disconnected)
	assert.False(t, p.IsConnected())
	p.Disconnect()
}
