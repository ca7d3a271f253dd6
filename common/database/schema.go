package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LocationEventsTable is the table every accepted delivery lands in.
const LocationEventsTable = "location_events"

// LocationEventColumns lists the persisted columns in insert order.
var LocationEventColumns = []string{
	"id",
	"created_at",
	"live",
	"event_type",
	"user_id",
	"mm_user_id",
	"latitude",
	"longitude",
	"trip_id",
	"trip_external_id",
	"trip_created_at",
	"trip_updated_at",
	"trip_started_at",
	"trip_mm_user_id",
	"route_session_type",
	"process_timestamp",
	"process_hour",
}

// Column describes one column of a table as reported by information_schema.
type Column struct {
	Name     string
	DataType string
	Nullable bool
}

// DescribeTable lists the columns of table in ordinal order.
func DescribeTable(ctx context.Context, pool *pgxpool.Pool, table string) ([]Column, error) {
	ctx, cancel := QueryContext(ctx, 0)
	defer cancel()

	rows, err := pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("describe %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}
	return cols, nil
}

// NewPool opens a pgx pool with the given size limits and verifies it with a ping.
func NewPool(ctx context.Context, dsn string, cfg PoolConfig) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if cfg.MaxConns > 0 {
		config.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		config.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		config.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
