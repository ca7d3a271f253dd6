package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/haulwatch/haulwatch-stack/common/messaging"
	"github.com/haulwatch/haulwatch-stack/common/messaging/nats"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/metrics"
)

// Redispatcher drains the DLQ stream and republishes each entry to the
// subject it originally failed on. A failed republish is NAKed and retried
// by JetStream up to the consumer's MaxDeliver.
type Redispatcher struct {
	target messaging.Publisher
	logger *slog.Logger
}

func NewRedispatcher(target messaging.Publisher, logger *slog.Logger) *Redispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redispatcher{target: target, logger: logger}
}

// Start binds the durable redispatch consumer and begins consuming. The
// returned function stops consumption.
func (r *Redispatcher) Start(ctx context.Context, js *nats.JetStreamClient) (func(), error) {
	cfg := nats.DefaultConsumerConfig(messaging.ConsumerDLQRedispatch, messaging.SubjectWebhookDLQ)
	if _, err := js.CreateOrUpdateConsumer(ctx, nats.WebhookDLQStream.Name, cfg); err != nil {
		return nil, fmt.Errorf("create redispatch consumer: %w", err)
	}

	stop, err := js.ConsumeMessages(ctx, nats.WebhookDLQStream.Name, cfg.Name, r.Handle)
	if err != nil {
		return nil, err
	}
	r.logger.Info("DLQ redispatcher started", slog.String("consumer", cfg.Name))
	return stop, nil
}

// Handle republishes one DLQ entry. Entries that cannot be decoded are
// dropped since no retry would fix them.
func (r *Redispatcher) Handle(ctx context.Context, msg *messaging.Message) error {
	var failed FailedDispatch
	if err := json.Unmarshal(msg.Data, &failed); err != nil || failed.Subject == "" {
		r.logger.Error("dropping undecodable DLQ entry", slog.String("subject", msg.Subject))
		metrics.DLQRedispatched.WithLabelValues("dropped").Inc()
		return nil
	}

	data, err := json.Marshal(failed.Message)
	if err != nil {
		metrics.DLQRedispatched.WithLabelValues("dropped").Inc()
		return nil
	}

	out := messaging.NewMessage(failed.Subject, data, messaging.WithMsgID(failed.Message.EventID))
	if err := r.target.PublishMsg(ctx, out); err != nil {
		metrics.DLQRedispatched.WithLabelValues("failed").Inc()
		return fmt.Errorf("republish %s: %w", failed.Message.EventID, err)
	}

	metrics.DLQRedispatched.WithLabelValues("ok").Inc()
	r.logger.Info("redispatched DLQ entry",
		slog.String("record_id", failed.Message.EventID),
		slog.String("subject", failed.Subject))
	return nil
}
