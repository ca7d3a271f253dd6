package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/haulwatch/haulwatch-stack/common/messaging"
)

// JetStreamClient publishes with server acknowledgement and manages the
// streams and durable consumers the webhook relies on.
type JetStreamClient struct {
	*Client
	js     jetstream.JetStream
	logger *slog.Logger
}

// StreamConfig defines a JetStream stream configuration.
type StreamConfig struct {
	Name      string
	Subjects  []string
	MaxAge    time.Duration
	MaxBytes  int64
	MaxMsgs   int64
	Retention jetstream.RetentionPolicy
	Storage   jetstream.StorageType

	// Duplicates is the window in which a repeated Nats-Msg-Id is dropped.
	Duplicates time.Duration
}

// ConsumerConfig defines a JetStream consumer configuration.
type ConsumerConfig struct {
	Name          string
	FilterSubject string
	AckWait       time.Duration
	MaxDeliver    int
	MaxAckPending int
}

// DefaultConsumerConfig returns sensible defaults for a consumer.
func DefaultConsumerConfig(name, filterSubject string) ConsumerConfig {
	return ConsumerConfig{
		Name:          name,
		FilterSubject: filterSubject,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		MaxAckPending: 100,
	}
}

// NewJetStreamClient creates a JetStream-enabled client.
func NewJetStreamClient(cfg Config) (*JetStreamClient, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(client.conn)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JetStreamClient{Client: client, js: js, logger: logger}, nil
}

// CreateOrUpdateStream creates or updates a stream.
func (c *JetStreamClient) CreateOrUpdateStream(ctx context.Context, cfg StreamConfig) (jetstream.Stream, error) {
	stream, err := c.js.CreateOrUpdateStream(ctx, toJetStreamConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream %s: %w", cfg.Name, err)
	}
	return stream, nil
}

// CreateOrUpdateConsumer creates or updates a durable consumer.
func (c *JetStreamClient) CreateOrUpdateConsumer(ctx context.Context, streamName string, cfg ConsumerConfig) (jetstream.Consumer, error) {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream %s: %w", streamName, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, toConsumerConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create/update consumer %s: %w", cfg.Name, err)
	}
	return consumer, nil
}

// Publish publishes to JetStream and waits for the stream acknowledgement.
func (c *JetStreamClient) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := c.PublishSync(ctx, subject, data)
	return err
}

// PublishMsg publishes msg and waits for the acknowledgement. A
// messaging.HeaderMsgID header becomes the JetStream deduplication id.
func (c *JetStreamClient) PublishMsg(ctx context.Context, msg *messaging.Message) error {
	var opts []jetstream.PublishOpt
	if id := msg.Metadata[messaging.HeaderMsgID]; id != "" {
		opts = append(opts, jetstream.WithMsgID(id))
	}
	_, err := c.js.PublishMsg(ctx, toNatsMsg(msg), opts...)
	return err
}

// PublishSync publishes a message and waits for acknowledgment.
func (c *JetStreamClient) PublishSync(ctx context.Context, subject string, data []byte) (*jetstream.PubAck, error) {
	return c.js.Publish(ctx, subject, data)
}

// ConsumeMessages starts consuming from a durable consumer. Handler errors
// are NAKed with delay until the consumer's MaxDeliver is reached.
// The returned function stops consumption.
func (c *JetStreamClient) ConsumeMessages(ctx context.Context, streamName, consumerName string, handler messaging.MessageHandler) (func(), error) {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream %s: %w", streamName, err)
	}

	consumer, err := stream.Consumer(ctx, consumerName)
	if err != nil {
		return nil, fmt.Errorf("failed to get consumer %s: %w", consumerName, err)
	}

	consumeCtx, cancel := context.WithCancel(ctx)

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		m := &messaging.Message{
			Subject:   msg.Subject(),
			Data:      msg.Data(),
			Metadata:  headersToMetadata(msg.Headers()),
			Timestamp: time.Now(),
		}
		if meta, err := msg.Metadata(); err == nil {
			m.Timestamp = meta.Timestamp
		}

		if err := handler(consumeCtx, m); err != nil {
			c.logger.Warn("message handler failed, will redeliver",
				slog.String("subject", m.Subject),
				slog.String("consumer", consumerName),
				slog.String("error", err.Error()))
			_ = msg.NakWithDelay(5 * time.Second)
			return
		}

		_ = msg.Ack()
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	return func() {
		cancel()
		cons.Stop()
	}, nil
}

func toJetStreamConfig(cfg StreamConfig) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:       cfg.Name,
		Subjects:   cfg.Subjects,
		MaxAge:     cfg.MaxAge,
		MaxBytes:   cfg.MaxBytes,
		MaxMsgs:    cfg.MaxMsgs,
		Retention:  cfg.Retention,
		Storage:    cfg.Storage,
		Duplicates: cfg.Duplicates,
	}
}

func toConsumerConfig(cfg ConsumerConfig) jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Name:          cfg.Name,
		Durable:       cfg.Name,
		FilterSubject: cfg.FilterSubject,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		MaxAckPending: cfg.MaxAckPending,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
}

// Stream configurations for the webhook.
var (
	// FleetLocationsStream captures forwarded notable location events.
	// Consumers read with their own durable cursors, so retention is by limits.
	FleetLocationsStream = StreamConfig{
		Name:       "FLEET_LOCATIONS",
		Subjects:   []string{messaging.SubjectFleetLocations + ".>"},
		MaxAge:     7 * 24 * time.Hour,
		MaxBytes:   1024 * 1024 * 1024, // 1GB
		MaxMsgs:    10_000_000,
		Retention:  jetstream.LimitsPolicy,
		Storage:    jetstream.FileStorage,
		Duplicates: 10 * time.Minute,
	}

	// WebhookDLQStream holds dispatch messages whose publish failed.
	WebhookDLQStream = StreamConfig{
		Name:      "WEBHOOK_DLQ",
		Subjects:  []string{"webhook.dlq.>"},
		MaxAge:    72 * time.Hour,
		MaxBytes:  256 * 1024 * 1024, // 256MB
		MaxMsgs:   1_000_000,
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	}
)

// FleetLocationsStreamFor returns FleetLocationsStream capturing the subjects
// LocationSubject builds for prefix.
func FleetLocationsStreamFor(prefix string) StreamConfig {
	cfg := FleetLocationsStream
	cfg.Subjects = []string{messaging.LocationSubject(prefix, ">")}
	return cfg
}
