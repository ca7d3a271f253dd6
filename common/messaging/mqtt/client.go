// Package mqtt provides an MQTT implementation of messaging.Publisher.
package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/haulwatch/haulwatch-stack/common/messaging"
)

// Config holds MQTT client configuration.
type Config struct {
	// Broker is the broker address (e.g., "tcp://localhost:1883").
	Broker   string
	ClientID string
	Username string
	Password string

	// QoS for published messages. Location events use 1 (at least once).
	QoS byte

	// TopicPrefix is prepended to every topic. Optional.
	TopicPrefix string

	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Broker:         "tcp://localhost:1883",
		ClientID:       "haulwatch-webhook",
		QoS:            1,
		ConnectTimeout: 5 * time.Second,
	}
}

// Client publishes messages to an MQTT broker.
type Client struct {
	client paho.Client
	cfg    Config
}

// NewClient connects to the broker.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", slog.String("error", err.Error()))
		}).
		SetOnConnectHandler(func(_ paho.Client) {
			logger.Info("mqtt connected", slog.String("broker", cfg.Broker))
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, err)
	}

	return newWithClient(client, cfg), nil
}

func newWithClient(client paho.Client, cfg Config) *Client {
	return &Client{client: client, cfg: cfg}
}

// Publish maps subject to a topic and publishes data with the configured QoS.
// The wait for the broker is bounded by ctx.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	token := c.client.Publish(c.Topic(subject), c.cfg.QoS, false, data)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("mqtt publish %s: %w", subject, ctx.Err())
	}
}

// PublishMsg publishes msg.Data. MQTT 3.1.1 carries no headers, so metadata is dropped.
func (c *Client) PublishMsg(ctx context.Context, msg *messaging.Message) error {
	return c.Publish(ctx, msg.Subject, msg.Data)
}

// Topic converts a dotted subject into a slash separated MQTT topic.
// Example: fleet.locations.user.entered_geofence -> fleet/locations/user/entered_geofence
func (c *Client) Topic(subject string) string {
	topic := strings.ReplaceAll(subject, ".", "/")
	if c.cfg.TopicPrefix != "" {
		topic = strings.TrimSuffix(c.cfg.TopicPrefix, "/") + "/" + topic
	}
	return topic
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects, allowing 250ms for in-flight work.
func (c *Client) Close() error {
	c.client.Disconnect(250)
	return nil
}
