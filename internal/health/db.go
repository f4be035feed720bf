// Package health provides health check implementations for the studio server's
// external dependencies.
package health

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotConfigured is returned by checkers built without a backing client.
var ErrNotConfigured = errors.New("dependency not configured")

// contextPinger is satisfied by *sql.DB.
type contextPinger interface {
	PingContext(ctx context.Context) error
}

// DBChecker implements health checking for the broadcast status database.
type DBChecker struct {
	db contextPinger
}

// NewDBChecker creates a new database health checker.
func NewDBChecker(db *sql.DB) *DBChecker {
	if db == nil {
		return &DBChecker{}
	}
	return &DBChecker{db: db}
}

// HealthCheck pings the database.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	if d.db == nil {
		return ErrNotConfigured
	}
	return d.db.PingContext(ctx)
}
