// Package service sequences one webhook delivery through parse, normalize,
// enrich, persist and dispatch.
package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/haulwatch/haulwatch-stack/common/logging"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/dispatcher"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/enricher"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/metrics"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/models"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/normalizer"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/parser"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/sink"
)

const payloadPreviewBytes = 512

// Result describes an accepted delivery.
type Result struct {
	ID        string
	EventType string
	Duplicate bool
	Dispatch  dispatcher.Outcome
}

type Pipeline struct {
	sink        sink.Sink
	normalizer  *normalizer.Normalizer
	enricher    *enricher.Enricher
	dispatcher  *dispatcher.Dispatcher
	logger      *logging.Logger
	logPayloads bool
}

type Option func(*Pipeline)

func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithPayloadLogging logs a preview of every request body at debug level.
func WithPayloadLogging(enabled bool) Option {
	return func(p *Pipeline) { p.logPayloads = enabled }
}

func New(s sink.Sink, n *normalizer.Normalizer, e *enricher.Enricher, d *dispatcher.Dispatcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		sink:       s,
		normalizer: n,
		enricher:   e,
		dispatcher: d,
		logger:     logging.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one delivery. Dispatch happens only after a successful,
// non-duplicate append, and its outcome never turns into an error. The
// returned error is always a *models.PipelineError.
func (p *Pipeline) Process(ctx context.Context, body []byte) (*Result, error) {
	start := time.Now()
	metrics.EventBytesTotal.Add(float64(len(body)))

	if p.logPayloads {
		p.logger.DebugContext(ctx, "received webhook payload",
			"bytes", len(body),
			"payload", preview(body, payloadPreviewBytes))
	}

	env, err := parser.Parse(body)
	if err != nil {
		return nil, p.reject(ctx, "", err)
	}
	eventType := env.Event.Type

	rec, err := p.normalizer.Normalize(env)
	if err != nil {
		return nil, p.reject(ctx, eventType, err)
	}
	p.enricher.Enrich(rec, env)

	inserted, err := p.sink.Append(ctx, rec)
	metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if models.KindOf(err) == "" {
			err = models.NewError(models.KindPersistenceFailure, "", err)
		}
		metrics.EventsTotal.WithLabelValues("error").Inc()
		p.logger.ErrorContext(ctx, "failed to persist event",
			logging.RecordID(rec.ID),
			logging.EventType(eventType),
			logging.Error(err))
		return nil, err
	}

	res := &Result{ID: rec.ID, EventType: eventType, Duplicate: !inserted}
	if res.Duplicate {
		metrics.EventsTotal.WithLabelValues("duplicate").Inc()
		p.logger.InfoContext(ctx, "duplicate delivery ignored",
			logging.RecordID(rec.ID),
			logging.EventType(eventType))
		return res, nil
	}

	res.Dispatch = p.dispatcher.Dispatch(ctx, rec, eventType)
	metrics.EventsTotal.WithLabelValues("accepted").Inc()
	p.logger.InfoContext(ctx, "event accepted",
		logging.RecordID(rec.ID),
		logging.EventType(eventType),
		logging.TripID(rec.TripID),
		"dispatch", string(res.Dispatch),
		logging.Duration(time.Since(start).Milliseconds()))
	return res, nil
}

func (p *Pipeline) reject(ctx context.Context, eventType string, err error) error {
	kind := models.KindOf(err)
	if kind == "" {
		kind = models.KindMalformedPayload
		err = models.NewError(kind, "", err)
	}
	if eventType == "" {
		eventType = "unknown"
	}

	metrics.RejectionsTotal.WithLabelValues(string(kind)).Inc()
	metrics.EventsTotal.WithLabelValues("rejected").Inc()
	p.logger.WarnContext(ctx, "rejected webhook payload",
		logging.EventType(eventType),
		logging.ErrorKind(string(kind)),
		logging.Error(err))
	return err
}

// Ready reports whether the sink is reachable.
func (p *Pipeline) Ready(ctx context.Context) error {
	return p.sink.Ping(ctx)
}

// preview returns at most n bytes of body, cut on a rune boundary.
func preview(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	cut := body[:n]
	// Drop a rune split by the cut.
	for i := 1; i < utf8.UTFMax && i <= len(cut); i++ {
		if utf8.RuneStart(cut[len(cut)-i]) {
			if !utf8.FullRune(cut[len(cut)-i:]) {
				cut = cut[:len(cut)-i]
			}
			break
		}
	}
	return strings.ToValidUTF8(string(cut), "\uFFFD") + "..."
}
