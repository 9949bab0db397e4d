package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence operations for telemetry readings.
type Repository interface {
	Insert(ctx context.Context, r *Reading) error
	ListByDevice(ctx context.Context, q Query) ([]*Reading, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteRepository implements Repository on the shared SQLite handle.
//
// Readings are append-only: there is no update path, only insert,
// time-window listing and retention purges.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a telemetry repository backed by db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Insert persists a single reading. The repository fills in ID and
// CreatedAt; the Timestamp is the caller's (device-reported when the
// payload carried one, receive time otherwise).
func (r *SQLiteRepository) Insert(ctx context.Context, reading *Reading) error {
	if reading.DeviceID == "" {
		return ErrEmptyDeviceID
	}
	if len(reading.Data) == 0 {
		return ErrEmptyData
	}

	reading.ID = uuid.NewString()
	reading.CreatedAt = time.Now().UTC()
	if reading.Timestamp.IsZero() {
		reading.Timestamp = reading.CreatedAt
	}

	data, err := json.Marshal(reading.Data)
	if err != nil {
		return fmt.Errorf("encode reading data: %w", err)
	}
	meta := ""
	if len(reading.Metadata) > 0 {
		b, err := json.Marshal(reading.Metadata)
		if err != nil {
			return fmt.Errorf("encode reading metadata: %w", err)
		}
		meta = string(b)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO readings (id, device_id, timestamp, data, unit, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		reading.ID, reading.DeviceID, reading.Timestamp.UTC(), string(data),
		reading.Unit, meta, reading.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}

	return nil
}

// ListByDevice returns readings for one device, newest first, narrowed
// by the query's time window and capped by its limit.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, q Query) ([]*Reading, error) {
	if q.DeviceID == "" {
		return nil, ErrEmptyDeviceID
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.From.After(q.To) {
		return nil, fmt.Errorf("%w: from %s after to %s", ErrInvalidRange, q.From, q.To)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	query := `SELECT id, device_id, timestamp, data, unit, metadata, created_at
		FROM readings WHERE device_id = ?`
	args := []any{q.DeviceID}
	if !q.From.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, q.From.UTC())
	}
	if !q.To.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, q.To.UTC())
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	defer rows.Close()

	var readings []*Reading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}

	return readings, nil
}

// CountSince returns how many readings arrived at or after since,
// across all devices. Feeds the dashboard's activity counter.
func (r *SQLiteRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM readings WHERE timestamp >= ?`, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count readings: %w", err)
	}
	return n, nil
}

// PurgeOlderThan deletes readings whose timestamp is before cutoff and
// returns how many were removed.
func (r *SQLiteRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM readings WHERE timestamp < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge readings: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge readings: %w", err)
	}

	return n, nil
}

func scanReading(rows *sql.Rows) (*Reading, error) {
	var (
		reading Reading
		data    string
		meta    sql.NullString
	)

	err := rows.Scan(&reading.ID, &reading.DeviceID, &reading.Timestamp,
		&data, &reading.Unit, &meta, &reading.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan reading: %w", err)
	}

	if err := json.Unmarshal([]byte(data), &reading.Data); err != nil {
		return nil, fmt.Errorf("decode reading data: %w", err)
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &reading.Metadata); err != nil {
			return nil, fmt.Errorf("decode reading metadata: %w", err)
		}
	}

	return &reading, nil
}
