// Package mqtt connects the host to the instrument broker: it subscribes to
// the instrument topics for ingress and publishes playback commands and
// display updates.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/okian/kitchenbeat/internal/domain/dispatch"
	"github.com/okian/kitchenbeat/internal/domain/model"
	"github.com/okian/kitchenbeat/pkg/logger"
	"github.com/okian/kitchenbeat/pkg/metrics"
)

const (
	defaultConnectTimeout = 10 * time.Second
	disconnectQuiesceMS   = 250
)

// client is the subset of paho.Client in use.
type client interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	SubscribeMultiple(filters map[string]byte, callback paho.MessageHandler) paho.Token
	IsConnected() bool
}

// Enqueuer accepts raw messages for normalization.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg model.Message) bool
}

// Config holds broker settings.
type Config struct {
	Broker        string
	ClientID      string
	Username      string
	Password      string
	QoS           byte
	Topics        []string
	PlaybackTopic string
	DisplayTopic  string
}

// Client is both the MQTT ingress and a dispatch.Sink.
type Client struct {
	cfg     Config
	inbox   Enqueuer
	conn    client
	factory func(*paho.ClientOptions) client
	timeout time.Duration
	log     logger.Logger
	now     func() time.Time
	ctx     context.Context
}

// New builds a client. Connect must be called before use.
func New(cfg Config, inbox Enqueuer, opts ...Option) *Client {
	if cfg.ClientID == "" {
		cfg.ClientID = "kitchenbeat-" + uuid.NewString()[:8]
	}
	c := &Client{
		cfg:     cfg,
		inbox:   inbox,
		factory: func(o *paho.ClientOptions) client { return paho.NewClient(o) },
		timeout: defaultConnectTimeout,
		log:     logger.Discard(),
		now:     time.Now,
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the broker. Subscriptions are (re)issued on every connect so
// they survive automatic reconnects.
func (c *Client) Connect(ctx context.Context) error {
	if c.cfg.Broker == "" {
		return ErrNoBroker
	}
	c.ctx = ctx
	opts := paho.NewClientOptions().
		AddBroker(c.cfg.Broker).
		SetClientID(c.cfg.ClientID).
		SetUsername(c.cfg.Username).
		SetPassword(c.cfg.Password).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetOnConnectHandler(func(pc paho.Client) {
			metrics.UpdateMQTTConnected(true)
			if err := c.subscribe(pc); err != nil {
				c.log.Error(ctx, "mqtt subscribe failed", logger.Error(err))
			}
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			metrics.UpdateMQTTConnected(false)
			c.log.Warn(ctx, "mqtt connection lost", logger.Error(err))
		})
	c.conn = c.factory(opts)

	tok := c.conn.Connect()
	if !tok.WaitTimeout(c.timeout) {
		return fmt.Errorf("%w: %s: timed out after %s", ErrConnect, c.cfg.Broker, c.timeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConnect, c.cfg.Broker, err)
	}
	c.log.Info(ctx, "mqtt connected",
		logger.String("broker", c.cfg.Broker),
		logger.String("client_id", c.cfg.ClientID),
		logger.Int("topics", len(c.cfg.Topics)))
	return nil
}

func (c *Client) subscribe(conn client) error {
	if len(c.cfg.Topics) == 0 {
		return nil
	}
	filters := make(map[string]byte, len(c.cfg.Topics))
	for _, t := range c.cfg.Topics {
		filters[t] = c.cfg.QoS
	}
	tok := conn.SubscribeMultiple(filters, c.handle)
	if !tok.WaitTimeout(c.timeout) {
		return fmt.Errorf("%w: timed out", ErrSubscribe)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribe, err)
	}
	return nil
}

// handle decodes one instrument message into the raw queue.
func (c *Client) handle(_ paho.Client, msg paho.Message) {
	metrics.RecordMQTTMessage()
	m, err := model.DecodeMessage(msg.Payload(), msg.Topic(), c.now())
	if err != nil {
		metrics.RecordEventDropped("malformed")
		c.log.Debug(c.ctx, "mqtt payload rejected", logger.String("topic", msg.Topic()), logger.Error(err))
		return
	}
	if !c.inbox.Enqueue(c.ctx, m) {
		c.log.Debug(c.ctx, "raw queue rejected mqtt message", logger.String("topic", msg.Topic()))
	}
}

// Topics returns the subscribed topics, sorted.
func (c *Client) Topics() []string {
	out := append([]string(nil), c.cfg.Topics...)
	sort.Strings(out)
	return out
}

// Name implements dispatch.Sink.
func (c *Client) Name() string { return "mqtt" }

// Playback implements dispatch.Sink.
func (c *Client) Playback(_ context.Context, cmd dispatch.PlaybackCommand) error {
	return c.publish(c.cfg.PlaybackTopic, c.cfg.QoS, cmd)
}

// Display implements dispatch.Sink. Display frames are superseded quickly so
// they go out at QoS 0.
func (c *Client) Display(_ context.Context, u dispatch.DisplayUpdate) error {
	return c.publish(c.cfg.DisplayTopic, 0, u)
}

// publish does not wait for the broker; the session loop must not stall on
// the network.
func (c *Client) publish(topic string, qos byte, v any) error {
	if c.conn == nil || topic == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal for %s: %w", topic, err)
	}
	tok := c.conn.Publish(topic, qos, false, data)
	select {
	case <-tok.Done():
		return tok.Error()
	default:
		return nil
	}
}

// Close disconnects from the broker.
func (c *Client) Close() error {
	if c.conn != nil && c.conn.IsConnected() {
		c.conn.Disconnect(disconnectQuiesceMS)
	}
	metrics.UpdateMQTTConnected(false)
	return nil
}
