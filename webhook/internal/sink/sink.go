// Package sink persists LocationRecords idempotently by record id.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haulwatch/haulwatch-stack/webhook/internal/metrics"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/models"
)

// ErrNotFound is returned by Get when no record has the given id.
var ErrNotFound = errors.New("location record not found")

// Sink is the durable store for location records. Append is safe for
// concurrent use and relies on the backend's single-statement atomicity.
type Sink interface {
	// Append stores rec unless a record with the same id exists. inserted
	// is false for a duplicate delivery, which is not an error.
	Append(ctx context.Context, rec *models.LocationRecord) (inserted bool, err error)
	Get(ctx context.Context, id string) (*models.LocationRecord, error)
	Exists(ctx context.Context, id string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// Backend names.
const (
	BackendPostgres   = "postgres"
	BackendSQLite     = "sqlite"
	BackendOpenSearch = "opensearch"
	BackendMemory     = "memory"
)

// persistenceError wraps a storage failure as KindPersistenceFailure.
func persistenceError(backend, op string, err error) error {
	return models.NewError(models.KindPersistenceFailure, "", fmt.Errorf("%s %s: %w", backend, op, err))
}

// Instrumented records latency, errors and duplicates for a Sink.
type Instrumented struct {
	Sink
	backend string
}

func Instrument(s Sink, backend string) *Instrumented {
	return &Instrumented{Sink: s, backend: backend}
}

func (i *Instrumented) Append(ctx context.Context, rec *models.LocationRecord) (bool, error) {
	start := time.Now()
	inserted, err := i.Sink.Append(ctx, rec)
	metrics.StorageDuration.WithLabelValues(i.backend).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.StorageErrors.WithLabelValues(i.backend).Inc()
		return false, err
	}
	if !inserted {
		metrics.DuplicatesTotal.Inc()
	}
	return inserted, nil
}

func (i *Instrumented) Backend() string {
	return i.backend
}
