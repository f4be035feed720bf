package broadcast

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/onnwee/studiocast/internal/tracing"
)

// PostgresRepository implements Repository using PostgreSQL.
// Schema: migrations/000001_create_broadcasts.up.sql.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const recordColumns = `id, title, stream_url, status, started_at, ended_at, updated_at`

// Register inserts a broadcast or refreshes its title and stream URL.
func (r *PostgresRepository) Register(ctx context.Context, record *Record) (result *Record, err error) {
	if record.ID == "" {
		return nil, ErrMissingID
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "broadcasts", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	query := `
		INSERT INTO broadcasts (id, title, stream_url, status, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title,
		    stream_url = EXCLUDED.stream_url,
		    updated_at = NOW()
		RETURNING ` + recordColumns

	row := r.db.QueryRowContext(ctx, query, record.ID, record.Title, nullString(record.StreamURL), string(StatusScheduled))
	result, err = scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("failed to register broadcast: %w", err)
	}
	return result, nil
}

// SetStatus writes status for a broadcast id.
// started_at is stamped only on a transition into LIVE, so repeated LIVE writes are idempotent.
func (r *PostgresRepository) SetStatus(ctx context.Context, id string, status Status, at time.Time) (result *Record, err error) {
	if id == "" {
		return nil, ErrMissingID
	}
	if !status.Writable() {
		return nil, ErrInvalidStatus
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "broadcasts", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	query := `
		INSERT INTO broadcasts (id, title, status, started_at, ended_at, updated_at)
		VALUES (
			$1, '', $2,
			CASE WHEN $2 = 'LIVE' THEN $3::timestamptz END,
			CASE WHEN $2 = 'ENDED' THEN $3::timestamptz END,
			$3
		)
		ON CONFLICT (id) DO UPDATE
		SET started_at = CASE
		        WHEN EXCLUDED.status = 'LIVE' AND broadcasts.status <> 'LIVE' THEN EXCLUDED.updated_at
		        ELSE broadcasts.started_at
		    END,
		    ended_at = CASE
		        WHEN EXCLUDED.status = 'LIVE' AND broadcasts.status <> 'LIVE' THEN NULL
		        WHEN EXCLUDED.status = 'ENDED' AND broadcasts.status <> 'ENDED' THEN EXCLUDED.updated_at
		        ELSE broadcasts.ended_at
		    END,
		    status = EXCLUDED.status,
		    updated_at = EXCLUDED.updated_at
		RETURNING ` + recordColumns

	row := r.db.QueryRowContext(ctx, query, id, string(status), at.UTC())
	result, err = scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("failed to set broadcast status: %w", err)
	}
	return result, nil
}

// Get retrieves a broadcast by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (result *Record, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "broadcasts", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `SELECT ` + recordColumns + ` FROM broadcasts WHERE id = $1`

	result, err = scanRecord(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBroadcastNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get broadcast: %w", err)
	}
	return result, nil
}

// ListByStatus returns all broadcasts in any of the given statuses.
func (r *PostgresRepository) ListByStatus(ctx context.Context, statuses ...Status) (records []*Record, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "broadcasts", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	query := `SELECT ` + recordColumns + ` FROM broadcasts WHERE status = ANY($1) ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("failed to list broadcasts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		record, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan broadcast: %w", scanErr)
		}
		records = append(records, record)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate broadcasts: %w", err)
	}
	return records, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		record    Record
		streamURL sql.NullString
		status    string
		startedAt sql.NullTime
		endedAt   sql.NullTime
	)
	if err := row.Scan(&record.ID, &record.Title, &streamURL, &status, &startedAt, &endedAt, &record.UpdatedAt); err != nil {
		return nil, err
	}

	record.StreamURL = streamURL.String
	record.Status = Status(status)
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		record.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time.UTC()
		record.EndedAt = &t
	}
	record.UpdatedAt = record.UpdatedAt.UTC()
	return &record, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
