// Package dlq keeps dispatch messages whose publish failed and replays them.
package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/haulwatch/haulwatch-stack/common/messaging"
	"github.com/haulwatch/haulwatch-stack/common/messaging/nats"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/metrics"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/models"
)

// ErrDisabled is returned by queue operations when no DLQ is configured.
var ErrDisabled = errors.New("dlq not enabled")

// FailedDispatch is one dead-lettered dispatch message.
type FailedDispatch struct {
	Timestamp   time.Time              `json:"timestamp"`
	Subject     string                 `json:"subject"`
	Message     models.DispatchMessage `json:"message"`
	Error       string                 `json:"error"`
	Attempts    int                    `json:"attempts"`
	LastAttempt time.Time              `json:"last_attempt"`
}

// syncPublisher is the part of the JetStream client the queue writes through.
type syncPublisher interface {
	PublishSync(ctx context.Context, subject string, data []byte) (*jetstream.PubAck, error)
}

// JetStreamQueue writes failed dispatches to a JetStream work queue so any
// webhook instance can replay them.
type JetStreamQueue struct {
	pub     syncPublisher
	stream  jetstream.Stream
	written atomic.Uint64
	logger  *slog.Logger
}

// NewJetStreamQueue creates the DLQ stream if needed and returns a queue on it.
func NewJetStreamQueue(ctx context.Context, js *nats.JetStreamClient, logger *slog.Logger) (*JetStreamQueue, error) {
	if js == nil {
		return nil, fmt.Errorf("jetstream client is nil")
	}

	stream, err := js.CreateOrUpdateStream(ctx, nats.WebhookDLQStream)
	if err != nil {
		return nil, fmt.Errorf("create dlq stream: %w", err)
	}

	q := newQueue(js, stream, logger)
	q.logger.Info("DLQ stream ready", slog.String("stream", nats.WebhookDLQStream.Name))
	return q, nil
}

func newQueue(pub syncPublisher, stream jetstream.Stream, logger *slog.Logger) *JetStreamQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &JetStreamQueue{pub: pub, stream: stream, logger: logger}
}

// Write records a dispatch message that could not be published to subject.
func (q *JetStreamQueue) Write(ctx context.Context, subject string, msg models.DispatchMessage, cause error) error {
	if q == nil {
		return nil
	}

	now := time.Now().UTC()
	failed := FailedDispatch{
		Timestamp:   now,
		Subject:     subject,
		Message:     msg,
		Attempts:    1,
		LastAttempt: now,
	}
	if cause != nil {
		failed.Error = cause.Error()
	}

	data, err := json.Marshal(failed)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	if _, err := q.pub.PublishSync(ctx, messaging.SubjectWebhookDLQ, data); err != nil {
		return fmt.Errorf("publish dlq entry: %w", err)
	}

	q.written.Add(1)
	metrics.DLQWritten.Inc()
	q.logger.Warn("dispatch dead-lettered",
		slog.String("record_id", msg.EventID),
		slog.String("subject", subject))
	return nil
}

// Stats returns DLQ stream counters.
func (q *JetStreamQueue) Stats(ctx context.Context) map[string]any {
	if q == nil {
		return map[string]any{"enabled": false, "backend": "jetstream"}
	}

	stats := map[string]any{
		"enabled":       true,
		"backend":       "jetstream",
		"written_local": q.written.Load(),
	}
	if q.stream == nil {
		return stats
	}

	info, err := q.stream.Info(ctx)
	if err != nil {
		q.logger.Error("failed to get DLQ stream info", slog.String("error", err.Error()))
		stats["error"] = err.Error()
		return stats
	}

	stats["total_messages"] = info.State.Msgs
	stats["total_bytes"] = info.State.Bytes
	stats["first_seq"] = info.State.FirstSeq
	stats["last_seq"] = info.State.LastSeq
	stats["consumer_count"] = info.State.Consumers
	return stats
}

// List returns up to limit entries, oldest first. It reads by stream
// sequence, so nothing is acknowledged or removed and the redispatch
// consumer is unaffected.
func (q *JetStreamQueue) List(ctx context.Context, limit int) ([]FailedDispatch, error) {
	if q == nil || q.stream == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 100
	}

	info, err := q.stream.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("get dlq stream info: %w", err)
	}
	if info.State.Msgs == 0 {
		return nil, nil
	}

	var entries []FailedDispatch
	for seq := info.State.FirstSeq; seq <= info.State.LastSeq && len(entries) < limit; seq++ {
		raw, err := q.stream.GetMsg(ctx, seq)
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			// Acknowledged by the redispatcher.
			continue
		}
		if err != nil {
			return entries, fmt.Errorf("get dlq message %d: %w", seq, err)
		}
		if raw.Subject != messaging.SubjectWebhookDLQ {
			continue
		}

		var failed FailedDispatch
		if err := json.Unmarshal(raw.Data, &failed); err != nil {
			q.logger.Error("failed to parse DLQ message",
				slog.Uint64("seq", seq),
				slog.String("error", err.Error()))
			continue
		}
		entries = append(entries, failed)
	}
	return entries, nil
}

// Purge removes every entry from the DLQ stream.
func (q *JetStreamQueue) Purge(ctx context.Context) error {
	if q == nil || q.stream == nil {
		return ErrDisabled
	}
	if err := q.stream.Purge(ctx); err != nil {
		return fmt.Errorf("purge dlq stream: %w", err)
	}
	q.logger.Info("DLQ purged")
	return nil
}
