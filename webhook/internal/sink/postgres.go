package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haulwatch/haulwatch-stack/common/database"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/models"
)

var (
	columnList = strings.Join(database.LocationEventColumns, ", ")

	insertSQL = fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO NOTHING
		RETURNING 1`, database.LocationEventsTable, columnList)

	selectSQL = fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, columnList, database.LocationEventsTable)

	existsSQL = fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, database.LocationEventsTable)
)

// PostgresSink stores records in the location_events table.
type PostgresSink struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// PostgresConfig configures the Postgres sink.
type PostgresConfig struct {
	DSN          string
	Pool         database.PoolConfig
	WriteTimeout time.Duration
}

func NewPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresSink, error) {
	pool, err := database.NewPool(ctx, cfg.DSN, cfg.Pool)
	if err != nil {
		return nil, err
	}
	return NewPostgresWithPool(pool, cfg.WriteTimeout), nil
}

// NewPostgresWithPool wraps an existing pool. The sink closes it on Close.
func NewPostgresWithPool(pool *pgxpool.Pool, writeTimeout time.Duration) *PostgresSink {
	return &PostgresSink{pool: pool, timeout: writeTimeout}
}

func (s *PostgresSink) Append(ctx context.Context, rec *models.LocationRecord) (bool, error) {
	ctx, cancel := database.WriteContext(ctx, s.timeout)
	defer cancel()

	var one int
	err := s.pool.QueryRow(ctx, insertSQL, recordArgs(rec)...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, persistenceError(BackendPostgres, "insert", err)
	}
	return true, nil
}

func (s *PostgresSink) Get(ctx context.Context, id string) (*models.LocationRecord, error) {
	ctx, cancel := database.QueryContext(ctx, s.timeout)
	defer cancel()

	rec, err := scanRecord(s.pool.QueryRow(ctx, selectSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistenceError(BackendPostgres, "get", err)
	}
	return rec, nil
}

func (s *PostgresSink) Exists(ctx context.Context, id string) (bool, error) {
	ctx, cancel := database.QueryContext(ctx, s.timeout)
	defer cancel()

	var exists bool
	if err := s.pool.QueryRow(ctx, existsSQL, id).Scan(&exists); err != nil {
		return false, persistenceError(BackendPostgres, "exists", err)
	}
	return exists, nil
}

func (s *PostgresSink) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}

// recordArgs returns rec's values in database.LocationEventColumns order.
func recordArgs(rec *models.LocationRecord) []any {
	return []any{
		rec.ID,
		rec.CreatedAt.UTC(),
		rec.Live,
		rec.EventType,
		rec.UserID,
		rec.MMUserID,
		rec.Latitude,
		rec.Longitude,
		rec.TripID,
		rec.TripExternalID,
		rec.TripCreatedAt,
		rec.TripUpdatedAt,
		rec.TripStartedAt,
		rec.TripMMUserID,
		rec.RouteSessionType,
		rec.ProcessTimestamp.UTC(),
		rec.ProcessHour.UTC(),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.LocationRecord, error) {
	var rec models.LocationRecord
	err := row.Scan(
		&rec.ID,
		&rec.CreatedAt,
		&rec.Live,
		&rec.EventType,
		&rec.UserID,
		&rec.MMUserID,
		&rec.Latitude,
		&rec.Longitude,
		&rec.TripID,
		&rec.TripExternalID,
		&rec.TripCreatedAt,
		&rec.TripUpdatedAt,
		&rec.TripStartedAt,
		&rec.TripMMUserID,
		&rec.RouteSessionType,
		&rec.ProcessTimestamp,
		&rec.ProcessHour,
	)
	if err != nil {
		return nil, err
	}
	normalizeTimes(&rec)
	return &rec, nil
}

// normalizeTimes converts every timestamp to UTC; drivers return local time.
func normalizeTimes(rec *models.LocationRecord) {
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.ProcessTimestamp = rec.ProcessTimestamp.UTC()
	rec.ProcessHour = rec.ProcessHour.UTC()
	for _, t := range []*time.Time{rec.TripCreatedAt, rec.TripUpdatedAt, rec.TripStartedAt} {
		if t != nil {
			*t = t.UTC()
		}
	}
}
