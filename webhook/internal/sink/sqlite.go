package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/haulwatch/haulwatch-stack/common/database"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/models"
)

const sqliteTimeLayout = time.RFC3339Nano

var (
	sqliteInsertSQL = fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`, database.LocationEventsTable, columnList)

	sqliteSelectSQL = fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, columnList, database.LocationEventsTable)

	sqliteExistsSQL = fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = ?)`, database.LocationEventsTable)
)

// SQLiteSink stores records in a single-file SQLite database. Suited to a
// single instance and local development.
type SQLiteSink struct {
	db      *sql.DB
	timeout time.Duration
}

// OpenSQLite opens (creating if needed) the database at path and ensures
// the schema exists. ":memory:" opens a private in-memory database.
func OpenSQLite(ctx context.Context, path string, timeout time.Duration) (*SQLiteSink, error) {
	dsn := "file::memory:?_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One writer; SQLite serializes writes anyway and ":memory:" is per connection.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	s := &SQLiteSink{db: db, timeout: timeout}
	if err := s.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// InitSchema ensures the location_events table and its indexes exist.
func (s *SQLiteSink) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS location_events (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			live INTEGER NOT NULL DEFAULT 0,
			event_type TEXT NOT NULL,
			user_id TEXT,
			mm_user_id TEXT,
			latitude REAL,
			longitude REAL,
			trip_id TEXT,
			trip_external_id TEXT,
			trip_created_at TEXT,
			trip_updated_at TEXT,
			trip_started_at TEXT,
			trip_mm_user_id TEXT,
			route_session_type TEXT,
			process_timestamp TEXT NOT NULL,
			process_hour TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_location_events_process_hour ON location_events(process_hour);`,
		`CREATE INDEX IF NOT EXISTS idx_location_events_trip_created ON location_events(trip_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteSink) Append(ctx context.Context, rec *models.LocationRecord) (bool, error) {
	ctx, cancel := database.WriteContext(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, sqliteInsertSQL,
		rec.ID,
		formatTime(rec.CreatedAt),
		rec.Live,
		rec.EventType,
		nullable(rec.UserID),
		nullable(rec.MMUserID),
		nullable(rec.Latitude),
		nullable(rec.Longitude),
		nullable(rec.TripID),
		nullable(rec.TripExternalID),
		formatNullableTime(rec.TripCreatedAt),
		formatNullableTime(rec.TripUpdatedAt),
		formatNullableTime(rec.TripStartedAt),
		nullable(rec.TripMMUserID),
		nullable(rec.RouteSessionType),
		formatTime(rec.ProcessTimestamp),
		formatTime(rec.ProcessHour),
	)
	if err != nil {
		return false, persistenceError(BackendSQLite, "insert", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, persistenceError(BackendSQLite, "insert", err)
	}
	return n == 1, nil
}

func (s *SQLiteSink) Get(ctx context.Context, id string) (*models.LocationRecord, error) {
	ctx, cancel := database.QueryContext(ctx, s.timeout)
	defer cancel()

	var (
		rec                                   models.LocationRecord
		createdAt, processTS, processHour     string
		tripCreated, tripUpdated, tripStarted sql.NullString
	)
	err := s.db.QueryRowContext(ctx, sqliteSelectSQL, id).Scan(
		&rec.ID,
		&createdAt,
		&rec.Live,
		&rec.EventType,
		&rec.UserID,
		&rec.MMUserID,
		&rec.Latitude,
		&rec.Longitude,
		&rec.TripID,
		&rec.TripExternalID,
		&tripCreated,
		&tripUpdated,
		&tripStarted,
		&rec.TripMMUserID,
		&rec.RouteSessionType,
		&processTS,
		&processHour,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistenceError(BackendSQLite, "get", err)
	}

	if err := parseTimes(&rec, createdAt, processTS, processHour, tripCreated, tripUpdated, tripStarted); err != nil {
		return nil, persistenceError(BackendSQLite, "get", err)
	}
	return &rec, nil
}

func (s *SQLiteSink) Exists(ctx context.Context, id string) (bool, error) {
	ctx, cancel := database.QueryContext(ctx, s.timeout)
	defer cancel()

	var exists bool
	if err := s.db.QueryRowContext(ctx, sqliteExistsSQL, id).Scan(&exists); err != nil {
		return false, persistenceError(BackendSQLite, "exists", err)
	}
	return exists, nil
}

// Count returns the number of stored rows.
func (s *SQLiteSink) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, database.LocationEventsTable)).Scan(&n)
	return n, err
}

func (s *SQLiteSink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteSink) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// nullable dereferences p for the driver, mapping nil to SQL NULL.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTimes(rec *models.LocationRecord, createdAt, processTS, processHour string, trip ...sql.NullString) error {
	var err error
	if rec.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
		return fmt.Errorf("parse created_at: %w", err)
	}
	if rec.ProcessTimestamp, err = time.Parse(sqliteTimeLayout, processTS); err != nil {
		return fmt.Errorf("parse process_timestamp: %w", err)
	}
	if rec.ProcessHour, err = time.Parse(sqliteTimeLayout, processHour); err != nil {
		return fmt.Errorf("parse process_hour: %w", err)
	}

	targets := []**time.Time{&rec.TripCreatedAt, &rec.TripUpdatedAt, &rec.TripStartedAt}
	for i, ns := range trip {
		if !ns.Valid {
			continue
		}
		t, err := time.Parse(sqliteTimeLayout, ns.String)
		if err != nil {
			return fmt.Errorf("parse trip timestamp: %w", err)
		}
		*targets[i] = &t
	}
	normalizeTimes(rec)
	return nil
}
