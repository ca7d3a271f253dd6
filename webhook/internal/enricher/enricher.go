// Package enricher stamps records with ingestion-time fields.
package enricher

import (
	"time"

	"github.com/haulwatch/haulwatch-stack/webhook/internal/metrics"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/models"
)

type Enricher struct {
	clock Clock
}

// New returns an Enricher reading clock. A nil clock uses the system clock.
func New(clock Clock) *Enricher {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Enricher{clock: clock}
}

// Enrich sets ProcessTimestamp to now, ProcessHour to now truncated to the
// hour, and Live from the envelope's live flag. All times are UTC. now is
// truncated to microseconds, the finest precision every sink stores.
func (e *Enricher) Enrich(rec *models.LocationRecord, env *models.WebhookEnvelope) {
	now := e.clock.Now().UTC().Truncate(time.Microsecond)
	rec.ProcessTimestamp = now
	rec.ProcessHour = ProcessHour(now)
	if env != nil {
		rec.Live = env.Event.Live.Bool()
	}

	if !rec.CreatedAt.IsZero() {
		metrics.IngestLag.Observe(now.Sub(rec.CreatedAt).Seconds())
	}
}

// ProcessHour truncates t to the start of its UTC hour.
func ProcessHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}
