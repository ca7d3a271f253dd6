// Package dispatcher forwards notable location records to the event bus.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/haulwatch/haulwatch-stack/common/messaging"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/metrics"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/models"
)

// Outcome describes what Dispatch did with a record.
type Outcome string

const (
	OutcomeNotNotable    Outcome = "not_notable"
	OutcomeNoCoordinates Outcome = "no_coordinates"
	OutcomeDisabled      Outcome = "disabled"
	OutcomePublished     Outcome = "published"
	OutcomeFailed        Outcome = "failed"
)

// DeadLetterWriter stores a message whose publish failed so it can be
// retried out of band.
type DeadLetterWriter interface {
	Write(ctx context.Context, subject string, msg models.DispatchMessage, cause error) error
}

type Dispatcher struct {
	publisher messaging.Publisher
	policy    Policy
	notable   map[string]struct{}
	dlq       DeadLetterWriter
	logger    *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDeadLetter routes failed publishes to w.
func WithDeadLetter(w DeadLetterWriter) Option {
	return func(d *Dispatcher) { d.dlq = w }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New returns a Dispatcher publishing through pub. A nil pub disables
// forwarding entirely.
func New(pub messaging.Publisher, policy Policy, opts ...Option) (*Dispatcher, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	d := &Dispatcher{
		publisher: pub,
		policy:    policy,
		notable:   make(map[string]struct{}, len(policy.NotableTypes)),
		logger:    slog.Default(),
	}
	for _, t := range policy.NotableTypes {
		d.notable[t] = struct{}{}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// IsNotable reports exact membership of eventType in the notable set.
func (d *Dispatcher) IsNotable(eventType string) bool {
	_, ok := d.notable[eventType]
	return ok
}

// Dispatch publishes rec when eventType is notable. It never returns an
// error: failures are logged, counted and dead-lettered. The publish runs on
// a context detached from ctx's cancellation and bounded by the policy
// timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *models.LocationRecord, eventType string) Outcome {
	if !d.IsNotable(eventType) {
		return d.done(eventType, OutcomeNotNotable)
	}
	if d.publisher == nil {
		return d.done(eventType, OutcomeDisabled)
	}

	msg := models.NewDispatchMessage(rec)
	msg.EventType = eventType
	if !d.hasUsableCoordinates(rec) {
		if d.policy.MissingCoordinates == MissingCoordinatesSkip {
			d.logger.InfoContext(ctx, "skipping dispatch without coordinates",
				slog.String("record_id", rec.ID),
				slog.String("event_type", eventType))
			return d.done(eventType, OutcomeNoCoordinates)
		}
		msg.Latitude, msg.Longitude = nil, nil
	}

	subject := messaging.LocationSubject(d.policy.SubjectPrefix, eventType)
	if err := d.publish(ctx, subject, msg); err != nil {
		d.logger.ErrorContext(ctx, "dispatch failed",
			slog.String("record_id", rec.ID),
			slog.String("event_type", eventType),
			slog.String("subject", subject),
			slog.String("error", err.Error()))
		d.deadLetter(ctx, subject, msg, err)
		return d.done(eventType, OutcomeFailed)
	}

	d.logger.DebugContext(ctx, "dispatched event",
		slog.String("record_id", rec.ID),
		slog.String("subject", subject))
	return d.done(eventType, OutcomePublished)
}

func (d *Dispatcher) publish(ctx context.Context, subject string, msg models.DispatchMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return models.NewError(models.KindDispatchFailure, "", fmt.Errorf("marshal dispatch message: %w", err))
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.policy.Timeout)
	defer cancel()

	start := time.Now()
	err = d.publisher.PublishMsg(pubCtx, messaging.NewMessage(subject, data, messaging.WithMsgID(msg.EventID)))
	metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return models.NewError(models.KindDispatchFailure, "", err)
	}
	return nil
}

func (d *Dispatcher) deadLetter(ctx context.Context, subject string, msg models.DispatchMessage, cause error) {
	if d.dlq == nil {
		return
	}

	dlqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.policy.Timeout)
	defer cancel()

	if err := d.dlq.Write(dlqCtx, subject, msg, cause); err != nil {
		d.logger.ErrorContext(ctx, "failed to dead-letter dispatch",
			slog.String("record_id", msg.EventID),
			slog.String("error", err.Error()))
	}
}

func (d *Dispatcher) hasUsableCoordinates(rec *models.LocationRecord) bool {
	if !rec.HasCoordinates() {
		return false
	}
	if d.policy.NullIslandAsMissing && rec.IsNullIsland() {
		return false
	}
	return true
}

func (d *Dispatcher) done(eventType string, o Outcome) Outcome {
	if o != OutcomeNotNotable {
		metrics.DispatchTotal.WithLabelValues(eventType, string(o)).Inc()
	}
	return o
}
