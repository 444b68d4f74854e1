package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker"

	"cloudpico-station/internal/metrics"
)

const (
	publishTimeout = 5 * time.Second
	connectPoll    = 200 * time.Millisecond
)

var (
	ErrNotConnected = errors.New("mqtt client not connected")
	ErrStopped      = errors.New("client stopped")
)

// broker is the part of paho's client the station uses.
type broker interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

type Options struct {
	Broker    string
	Port      int
	ClientID  string
	StationID string
}

// Client publishes station messages. Every publish goes through a circuit
// breaker: after repeated failures publishes fail fast with
// gobreaker.ErrOpenState until the breaker half-opens again.
type Client struct {
	client  broker
	opts    Options
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
	metrics *metrics.Collector

	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewClient(opts Options, logger *slog.Logger, m *metrics.Collector) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := newClient(opts, logger, m)

	po := mqtt.NewClientOptions()
	po.AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Broker, opts.Port))
	po.SetClientID(opts.ClientID)
	po.SetCleanSession(true)

	po.SetAutoReconnect(true)
	po.SetConnectRetry(true)
	po.SetConnectRetryInterval(5 * time.Second)
	po.SetMaxReconnectInterval(60 * time.Second)

	po.SetKeepAlive(30 * time.Second)
	po.SetPingTimeout(10 * time.Second)

	if will, err := json.Marshal(StationHealth{StationID: opts.StationID, Healthy: false}); err == nil {
		po.SetWill(HealthTopic(opts.StationID), string(will), 1, true)
	}

	po.SetOnConnectHandler(func(_ mqtt.Client) {
		c.setConnected(true)
		c.logger.Info("mqtt connected", "broker", opts.Broker, "port", opts.Port)
	})
	po.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		c.logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = mqtt.NewClient(po)
	return c
}

func newClient(opts Options, logger *slog.Logger, m *metrics.Collector) *Client {
	c := &Client{
		opts:    opts,
		logger:  logger.With("component", "mqtt"),
		metrics: m,
		stopCh:  make(chan struct{}),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mqtt-publish",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Connect waits for the first connection, honouring ctx and Disconnect.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return ErrStopped
	default:
	}
	if c.IsConnected() {
		return nil
	}

	token := c.client.Connect()
	for {
		if token.WaitTimeout(connectPoll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return ErrStopped
		default:
		}
	}
}

func (c *Client) PublishTelemetry(t Telemetry) error {
	t.StationID = c.opts.StationID
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	return c.publish("telemetry", TelemetryTopic(c.opts.StationID), false, t)
}

func (c *Client) PublishBucket(b BucketNotice) error {
	b.StationID = c.opts.StationID
	return c.publish("bucket", BucketsTopic(c.opts.StationID), false, b)
}

// PublishHealth publishes a retained health message.
func (c *Client) PublishHealth(h StationHealth) error {
	h.StationID = c.opts.StationID
	if h.LastSeen.IsZero() {
		h.LastSeen = time.Now()
	}
	return c.publish("health", HealthTopic(c.opts.StationID), true, h)
}

func (c *Client) publish(kind, topic string, retained bool, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		if !c.IsConnected() {
			return nil, ErrNotConnected
		}
		token := c.client.Publish(topic, 1, retained, data)
		if !token.WaitTimeout(publishTimeout) {
			return nil, fmt.Errorf("publish timeout for topic %s", topic)
		}
		return nil, token.Error()
	})
	if err != nil {
		c.metrics.TelemetryPublish.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	c.metrics.TelemetryPublish.WithLabelValues(kind, "ok").Inc()
	c.logger.Debug("published", "kind", kind, "topic", topic)
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// BreakerState reports the publish breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// Disconnect stops the client. It is idempotent; Connect returns ErrStopped
// afterwards.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	if c.client != nil {
		c.client.Disconnect(250)
	}
	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
