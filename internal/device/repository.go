package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// Repository defines persistence operations for devices.
//
// The interface exists so the ingestion pipeline and the HTTP layer can
// be tested against fakes without a database.
type Repository interface {
	Create(ctx context.Context, d *Device) error
	GetByDeviceID(ctx context.Context, deviceID string) (*Device, error)
	List(ctx context.Context) ([]*Device, error)
	Update(ctx context.Context, deviceID string, d *Device) (*Device, error)
	Delete(ctx context.Context, deviceID string) error
	TouchTelemetry(ctx context.Context, deviceID string, touch TelemetryTouch) (*Device, bool, error)
	ApplyStatus(ctx context.Context, deviceID string, upd StatusUpdate) (*Device, bool, error)
	Summary(ctx context.Context) (*Summary, error)
}

// SQLiteRepository implements Repository on the shared SQLite handle.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a device repository backed by db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, device_id, name, type, location, status,
	is_connected, last_seen, metadata, created_at, updated_at`

// Create inserts a new device record.
//
// The caller provides DeviceID, Name, Type and optionally Location,
// Status and Metadata; the repository fills in ID and timestamps.
// Status defaults to active when unset.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	if d.DeviceID == "" {
		return ErrEmptyDeviceID
	}
	if !d.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, d.Type)
	}
	if d.Status == "" {
		d.Status = StatusActive
	}
	if !d.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, d.Status)
	}

	d.ID = uuid.NewString()
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	meta, err := marshalMetadata(d.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO devices (id, device_id, name, type, location, status,
			is_connected, last_seen, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.DeviceID, d.Name, string(d.Type), d.Location, string(d.Status),
		d.IsConnected, d.LastSeen, meta, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, d.DeviceID)
		}
		return fmt.Errorf("insert device: %w", err)
	}

	return nil
}

// GetByDeviceID fetches a device by its stable external identifier.
func (r *SQLiteRepository) GetByDeviceID(ctx context.Context, deviceID string) (*Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE device_id = ?`, deviceID)
	return scanDevice(row)
}

// List returns all devices ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]*Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices ORDER BY name, device_id`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	return devices, nil
}

// Update modifies the mutable fields of an existing device.
//
// DeviceID is immutable: if d carries a different DeviceID than the one
// addressed, the update is rejected.
func (r *SQLiteRepository) Update(ctx context.Context, deviceID string, d *Device) (*Device, error) {
	if d.DeviceID != "" && d.DeviceID != deviceID {
		return nil, ErrImmutableDeviceID
	}
	if d.Type != "" && !d.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, d.Type)
	}
	if d.Status != "" && !d.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, d.Status)
	}

	current, err := r.GetByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	if d.Name != "" {
		current.Name = d.Name
	}
	if d.Type != "" {
		current.Type = d.Type
	}
	if d.Location != "" {
		current.Location = d.Location
	}
	if d.Status != "" {
		current.Status = d.Status
	}
	if d.Metadata != nil {
		current.Metadata = d.Metadata
	}
	current.UpdatedAt = time.Now().UTC()

	meta, err := marshalMetadata(current.Metadata)
	if err != nil {
		return nil, err
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE devices
		SET name = ?, type = ?, location = ?, status = ?, metadata = ?, updated_at = ?
		WHERE device_id = ?`,
		current.Name, string(current.Type), current.Location, string(current.Status),
		meta, current.UpdatedAt, deviceID)
	if err != nil {
		return nil, fmt.Errorf("update device: %w", err)
	}

	return current, nil
}

// Delete removes a device by its stable identifier.
func (r *SQLiteRepository) Delete(ctx context.Context, deviceID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM devices WHERE device_id = ?`, deviceID)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}

	return nil
}

// TouchTelemetry records that a telemetry message arrived from deviceID.
//
// Unknown devices are auto-provisioned inside the same transaction, so
// a burst of first messages from one device yields exactly one created
// record and exactly one created=true result. Provisioning uses the
// touch's type and location hints, falling back to custom/"unknown".
// Known devices get their last_seen and connection flag refreshed.
//
// Returns the device after the touch and whether it was created.
func (r *SQLiteRepository) TouchTelemetry(ctx context.Context, deviceID string, touch TelemetryTouch) (*Device, bool, error) {
	if deviceID == "" {
		return nil, false, ErrEmptyDeviceID
	}

	typ := touch.Type
	if !typ.Valid() {
		typ = TypeCustom
	}
	location := touch.Location
	if location == "" {
		location = "unknown"
	}

	seenAt := touch.SeenAt.UTC()
	d := &Device{
		ID:          uuid.NewString(),
		DeviceID:    deviceID,
		Name:        deviceID,
		Type:        typ,
		Location:    location,
		Status:      StatusActive,
		IsConnected: true,
		LastSeen:    &seenAt,
		CreatedAt:   seenAt,
		UpdatedAt:   seenAt,
	}

	created, err := r.upsert(ctx, d, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE devices
			SET last_seen = ?, is_connected = 1, status = ?, updated_at = ?
			WHERE device_id = ?`,
			seenAt, string(StatusActive), seenAt, deviceID)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	dev, err := r.GetByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, false, err
	}

	return dev, created, nil
}

// ApplyStatus records a status report from deviceID, auto-provisioning
// unknown devices like TouchTelemetry does.
//
// Reported metadata is merged key-by-key into the stored metadata
// rather than replacing it, so devices can report partial attributes.
// Reported type and location overwrite the stored values when present.
func (r *SQLiteRepository) ApplyStatus(ctx context.Context, deviceID string, upd StatusUpdate) (*Device, bool, error) {
	if deviceID == "" {
		return nil, false, ErrEmptyDeviceID
	}
	if upd.Status != "" && !upd.Status.Valid() {
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidStatus, upd.Status)
	}
	// Unknown reported types are ignored rather than rejecting the
	// whole status message.
	if upd.Type != "" && !upd.Type.Valid() {
		upd.Type = ""
	}

	seenAt := upd.SeenAt.UTC()
	if upd.SeenAt.IsZero() {
		seenAt = time.Now().UTC()
	}

	status := upd.Status
	if status == "" {
		status = StatusActive
	}
	connected := true
	if upd.IsConnected != nil {
		connected = *upd.IsConnected
	}

	typ := upd.Type
	if typ == "" {
		typ = TypeCustom
	}
	location := upd.Location
	if location == "" {
		location = "unknown"
	}

	d := &Device{
		ID:          uuid.NewString(),
		DeviceID:    deviceID,
		Name:        deviceID,
		Type:        typ,
		Location:    location,
		Status:      status,
		IsConnected: connected,
		LastSeen:    &seenAt,
		Metadata:    upd.Metadata,
		CreatedAt:   seenAt,
		UpdatedAt:   seenAt,
	}

	created, err := r.upsert(ctx, d, func(tx *sql.Tx) error {
		merged, err := r.mergeMetadata(ctx, tx, deviceID, upd.Metadata)
		if err != nil {
			return err
		}

		query := `UPDATE devices SET is_connected = ?, last_seen = ?, metadata = ?, updated_at = ?`
		args := []any{connected, seenAt, merged, seenAt}
		if upd.Status != "" {
			query += `, status = ?`
			args = append(args, string(upd.Status))
		}
		if upd.Type != "" {
			query += `, type = ?`
			args = append(args, string(upd.Type))
		}
		if upd.Location != "" {
			query += `, location = ?`
			args = append(args, upd.Location)
		}
		query += ` WHERE device_id = ?`
		args = append(args, deviceID)

		_, err = tx.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	dev, err := r.GetByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, false, err
	}

	return dev, created, nil
}

// upsert runs insert-or-update inside one transaction and reports
// whether the insert won. The single-writer connection pool serialises
// competing upserts, so exactly one caller observes created=true.
func (r *SQLiteRepository) upsert(ctx context.Context, d *Device, update func(tx *sql.Tx) error) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	meta, err := marshalMetadata(d.Metadata)
	if err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO devices (id, device_id, name, type, location, status,
			is_connected, last_seen, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO NOTHING`,
		d.ID, d.DeviceID, d.Name, string(d.Type), d.Location, string(d.Status),
		d.IsConnected, d.LastSeen, meta, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("upsert device: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upsert device: %w", err)
	}

	created := inserted > 0
	if !created {
		if err := update(tx); err != nil {
			return false, fmt.Errorf("upsert device: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit upsert: %w", err)
	}

	return created, nil
}

// mergeMetadata reads the stored metadata inside tx and overlays upd.
func (r *SQLiteRepository) mergeMetadata(ctx context.Context, tx *sql.Tx, deviceID string, upd map[string]string) (string, error) {
	var raw sql.NullString
	err := tx.QueryRowContext(ctx,
		`SELECT metadata FROM devices WHERE device_id = ?`, deviceID).Scan(&raw)
	if err != nil {
		return "", fmt.Errorf("read metadata: %w", err)
	}

	merged := map[string]string{}
	if raw.Valid && raw.String != "" {
		if err := json.Unmarshal([]byte(raw.String), &merged); err != nil {
			return "", fmt.Errorf("decode metadata: %w", err)
		}
	}
	for k, v := range upd {
		merged[k] = v
	}

	return marshalMetadata(merged)
}

// Summary aggregates device counts by status, type and connectivity.
func (r *SQLiteRepository) Summary(ctx context.Context) (*Summary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, type, is_connected, COUNT(*) FROM devices GROUP BY status, type, is_connected`)
	if err != nil {
		return nil, fmt.Errorf("device summary: %w", err)
	}
	defer rows.Close()

	s := &Summary{
		ByStatus: map[Status]int{},
		ByType:   map[Type]int{},
	}
	for rows.Next() {
		var (
			status, typ string
			connected   bool
			count       int
		)
		if err := rows.Scan(&status, &typ, &connected, &count); err != nil {
			return nil, fmt.Errorf("device summary: %w", err)
		}
		s.Total += count
		s.ByStatus[Status(status)] += count
		s.ByType[Type(typ)] += count
		if connected {
			s.Connected += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("device summary: %w", err)
	}

	return s, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(row scanner) (*Device, error) {
	var (
		d        Device
		typ      string
		status   string
		lastSeen sql.NullTime
		meta     sql.NullString
	)

	err := row.Scan(&d.ID, &d.DeviceID, &d.Name, &typ, &d.Location, &status,
		&d.IsConnected, &lastSeen, &meta, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan device: %w", err)
	}

	d.Type = Type(typ)
	d.Status = Status(status)
	if lastSeen.Valid {
		t := lastSeen.Time.UTC()
		d.LastSeen = &t
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &d.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}

	return &d, nil
}

// marshalMetadata encodes metadata as JSON text, empty string for nil.
func marshalMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint error.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
