package database

import (
	"context"
	"time"
)

// Standard timeout durations for database operations
const (
	// DefaultQueryTimeout is the timeout for read queries
	DefaultQueryTimeout = 5 * time.Second

	// DefaultWriteTimeout is the timeout for a single-row append
	DefaultWriteTimeout = 5 * time.Second

	// DefaultMigrationTimeout bounds schema migrations at startup
	DefaultMigrationTimeout = 60 * time.Second
)

// QueryContext creates a context bounded by d, or DefaultQueryTimeout when d is not positive.
func QueryContext(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultQueryTimeout
	}
	return context.WithTimeout(parent, d)
}

// WriteContext creates a context bounded by d, or DefaultWriteTimeout when d is not positive.
func WriteContext(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultWriteTimeout
	}
	return context.WithTimeout(parent, d)
}
