// Package central implements the registry side of FleetPulse: report
// ingestion, the alert/event lifecycle, registry-authoritative configuration
// with field-level conflict resolution, and retention.
package central

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/roomoperable/fleetpulse/internal/store"
	"github.com/roomoperable/fleetpulse/pkg/models"
)

// Sentinel errors returned by the store.
var (
	ErrSiteNotFound   = errors.New("site not found")
	ErrDeviceNotFound = errors.New("device not found")
)

// Site is one monitored location with its registration token and site-wide
// policy knobs. The token is the site secret agents authenticate with.
type Site struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Token             string    `json:"token"`
	Timezone          string    `json:"timezone"`
	DoubtAfterDays    int       `json:"doubt_after_days"`
	OKIntervalSeconds int       `json:"ok_interval_s"`
	KOIntervalSeconds int       `json:"ko_interval_s"`
	RetentionDays     int       `json:"retention_days"`
	CreatedAt         time.Time `json:"created_at"`
}

// Device is a registry device row: the synced descriptor plus the latest
// reported runtime state.
type Device struct {
	ID         int64                   `json:"id"`
	SiteID     int64                   `json:"site_id"`
	Address    string                  `json:"ip"`
	Name       string                  `json:"name"`
	Building   string                  `json:"building"`
	Floor      string                  `json:"floor"`
	Room       string                  `json:"room"`
	DeviceType string                  `json:"type"`
	Driver     string                  `json:"driver"`
	Config     models.DeviceDescriptor `json:"config"`
	Status     models.Status           `json:"status"`
	Verdict    models.Verdict          `json:"verdict"`
	Detail     string                  `json:"detail"`
	LastOkAt   time.Time               `json:"last_ok_at,omitempty"`
	LastSeenAt time.Time               `json:"last_seen_at,omitempty"`
}

// Event is one immutable ingestion sample for a device.
type Event struct {
	ID        int64          `json:"id"`
	DeviceID  int64          `json:"device_id"`
	Status    models.Status  `json:"status"`
	Verdict   models.Verdict `json:"verdict"`
	Detail    string         `json:"detail,omitempty"`
	Metrics   map[string]any `json:"metrics,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Alert is one fault episode for a device. ClosedAt is zero while open.
type Alert struct {
	ID         int64          `json:"id"`
	DeviceID   int64          `json:"device_id"`
	SiteID     int64          `json:"site_id"`
	Severity   string         `json:"severity"`
	Status     models.Status  `json:"status"`
	Verdict    models.Verdict `json:"verdict"`
	Detail     string         `json:"detail,omitempty"`
	OpenedAt   time.Time      `json:"opened_at"`
	LastSeenAt time.Time      `json:"last_seen_at"`
	ClosedAt   time.Time      `json:"closed_at,omitempty"`
}

// SiteSettings carries the mutable site-level knobs that feed the config
// fingerprint.
type SiteSettings struct {
	Timezone          string `json:"timezone"`
	DoubtAfterDays    int    `json:"doubt_after_days"`
	OKIntervalSeconds int    `json:"ok_interval_s"`
	KOIntervalSeconds int    `json:"ko_interval_s"`
	RetentionDays     int    `json:"retention_days"`
}

// Store provides registry persistence on top of the shared SQLite store.
type Store struct {
	sq *store.SQLiteStore
}

// NewStore wraps s. Call Migrate before first use.
func NewStore(s *store.SQLiteStore) *Store {
	return &Store{sq: s}
}

// Migrate applies the registry schema.
func (s *Store) Migrate(ctx context.Context) error {
	return s.sq.Migrate(ctx, componentName, Migrations())
}

// Tx exposes the underlying transaction helper for the lifecycle component.
func (s *Store) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.sq.Tx(ctx, fn)
}

// timeLayout is a fixed-width RFC 3339 form with nine fractional digits.
// RFC3339Nano drops trailing zeros, and "09:00:00Z" sorts lexically after
// "09:00:00.5Z", so variable-width text would break range queries at
// whole-second boundaries.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Timestamps are stored as fixed-width UTC text so that SQL string
// comparison orders them chronologically regardless of writer.
func fmtTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// CreateSite registers a new site with a fresh UUID token and default policy.
func (s *Store) CreateSite(ctx context.Context, name string) (*Site, error) {
	token := uuid.NewString()
	res, err := s.sq.DB().ExecContext(ctx,
		`INSERT INTO sites (name, token) VALUES (?, ?)`, name, token)
	if err != nil {
		return nil, fmt.Errorf("create site %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create site %q: %w", name, err)
	}
	return s.SiteByID(ctx, id)
}

const siteColumns = `id, name, token, timezone, doubt_after_days,
	ok_interval_seconds, ko_interval_seconds, retention_days, created_at`

func scanSite(row interface{ Scan(...any) error }) (*Site, error) {
	var st Site
	var created sql.NullString
	err := row.Scan(&st.ID, &st.Name, &st.Token, &st.Timezone, &st.DoubtAfterDays,
		&st.OKIntervalSeconds, &st.KOIntervalSeconds, &st.RetentionDays, &created)
	if err != nil {
		return nil, err
	}
	if created.Valid {
		// created_at comes from the SQLite default in CURRENT_TIMESTAMP form.
		if t, err := time.Parse("2006-01-02 15:04:05", created.String); err == nil {
			st.CreatedAt = t.UTC()
		} else {
			st.CreatedAt = parseTime(created)
		}
	}
	return &st, nil
}

// SiteByID returns a site by primary key.
func (s *Store) SiteByID(ctx context.Context, id int64) (*Site, error) {
	row := s.sq.DB().QueryRowContext(ctx,
		`SELECT `+siteColumns+` FROM sites WHERE id = ?`, id)
	st, err := scanSite(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSiteNotFound
		}
		return nil, fmt.Errorf("get site %d: %w", id, err)
	}
	return st, nil
}

// SiteByToken resolves a site from its registration token.
func (s *Store) SiteByToken(ctx context.Context, token string) (*Site, error) {
	row := s.sq.DB().QueryRowContext(ctx,
		`SELECT `+siteColumns+` FROM sites WHERE token = ?`, token)
	st, err := scanSite(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSiteNotFound
		}
		return nil, fmt.Errorf("get site by token: %w", err)
	}
	return st, nil
}

// ListSites returns all sites ordered by name.
func (s *Store) ListSites(ctx context.Context) ([]Site, error) {
	rows, err := s.sq.DB().QueryContext(ctx,
		`SELECT `+siteColumns+` FROM sites ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	sites := []Site{}
	for rows.Next() {
		st, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}
	return sites, nil
}

// RenewSiteToken replaces the site's token with a fresh UUID and returns it.
// The old token stops authenticating immediately.
func (s *Store) RenewSiteToken(ctx context.Context, id int64) (string, error) {
	token := uuid.NewString()
	res, err := s.sq.DB().ExecContext(ctx,
		`UPDATE sites SET token = ? WHERE id = ?`, token, id)
	if err != nil {
		return "", fmt.Errorf("renew token for site %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("renew token for site %d: %w", id, err)
	}
	if n == 0 {
		return "", ErrSiteNotFound
	}
	return token, nil
}

// UpdateSiteSettings persists the mutable site knobs. Zero values keep the
// stored value.
func (s *Store) UpdateSiteSettings(ctx context.Context, id int64, set SiteSettings) (*Site, error) {
	site, err := s.SiteByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if set.Timezone != "" {
		site.Timezone = set.Timezone
	}
	if set.DoubtAfterDays > 0 {
		site.DoubtAfterDays = set.DoubtAfterDays
	}
	if set.OKIntervalSeconds > 0 {
		site.OKIntervalSeconds = set.OKIntervalSeconds
	}
	if set.KOIntervalSeconds > 0 {
		site.KOIntervalSeconds = set.KOIntervalSeconds
	}
	if set.RetentionDays > 0 {
		site.RetentionDays = set.RetentionDays
	}
	_, err = s.sq.DB().ExecContext(ctx, `
		UPDATE sites SET timezone = ?, doubt_after_days = ?,
			ok_interval_seconds = ?, ko_interval_seconds = ?, retention_days = ?
		WHERE id = ?`,
		site.Timezone, site.DoubtAfterDays, site.OKIntervalSeconds,
		site.KOIntervalSeconds, site.RetentionDays, id)
	if err != nil {
		return nil, fmt.Errorf("update site %d settings: %w", id, err)
	}
	return site, nil
}

const deviceColumns = `id, site_id, address, name, building, floor, room,
	device_type, driver, config, status, verdict, detail, last_ok_at, last_seen_at`

func scanDevice(row interface{ Scan(...any) error }) (*Device, error) {
	var d Device
	var config string
	var lastOk, lastSeen sql.NullString
	err := row.Scan(&d.ID, &d.SiteID, &d.Address, &d.Name, &d.Building, &d.Floor,
		&d.Room, &d.DeviceType, &d.Driver, &config, &d.Status, &d.Verdict,
		&d.Detail, &lastOk, &lastSeen)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(config), &d.Config); err != nil {
		return nil, fmt.Errorf("decode config for device %d: %w", d.ID, err)
	}
	d.LastOkAt = parseTime(lastOk)
	d.LastSeenAt = parseTime(lastSeen)
	return &d, nil
}

// DeviceByAddress returns the device with the given natural key within a site.
func (s *Store) DeviceByAddress(ctx context.Context, siteID int64, address string) (*Device, error) {
	row := s.sq.DB().QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE site_id = ? AND address = ?`,
		siteID, address)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("get device %d/%q: %w", siteID, address, err)
	}
	return d, nil
}

// DeviceByID returns a device by primary key.
func (s *Store) DeviceByID(ctx context.Context, id int64) (*Device, error) {
	row := s.sq.DB().QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("get device %d: %w", id, err)
	}
	return d, nil
}

// Devices returns all devices for a site ordered by address.
func (s *Store) Devices(ctx context.Context, siteID int64) ([]Device, error) {
	rows, err := s.sq.DB().QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE site_id = ? ORDER BY address`,
		siteID)
	if err != nil {
		return nil, fmt.Errorf("list devices for site %d: %w", siteID, err)
	}
	defer rows.Close()

	devices := []Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return devices, nil
}

// Descriptors returns the synced configuration documents for a site's devices,
// ordered by address for a stable fingerprint input.
func (s *Store) Descriptors(ctx context.Context, siteID int64) ([]models.DeviceDescriptor, error) {
	devices, err := s.Devices(ctx, siteID)
	if err != nil {
		return nil, err
	}
	descs := make([]models.DeviceDescriptor, 0, len(devices))
	for _, d := range devices {
		desc := d.Config
		desc.Address = d.Address
		if desc.Name == "" {
			desc.Name = d.Name
		}
		descs = append(descs, desc)
	}
	return descs, nil
}

// SaveDescriptor creates or replaces a device's configuration document,
// keyed by (site, address). Runtime state columns are left untouched on
// update. Returns the device row id.
func (s *Store) SaveDescriptor(ctx context.Context, siteID int64, desc models.DeviceDescriptor) (int64, error) {
	raw, err := json.Marshal(desc)
	if err != nil {
		return 0, fmt.Errorf("encode descriptor %q: %w", desc.Address, err)
	}
	_, err = s.sq.DB().ExecContext(ctx, `
		INSERT INTO devices (site_id, address, name, building, floor, room, device_type, driver, config)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (site_id, address) DO UPDATE SET
			name = excluded.name,
			building = excluded.building,
			floor = excluded.floor,
			room = excluded.room,
			device_type = excluded.device_type,
			driver = excluded.driver,
			config = excluded.config,
			updated_at = CURRENT_TIMESTAMP`,
		siteID, desc.Address, desc.Name, desc.Building, desc.Floor, desc.Room,
		desc.DeviceType, desc.DriverName(), string(raw))
	if err != nil {
		return 0, fmt.Errorf("save descriptor %q: %w", desc.Address, err)
	}
	var id int64
	err = s.sq.DB().QueryRowContext(ctx,
		`SELECT id FROM devices WHERE site_id = ? AND address = ?`,
		siteID, desc.Address).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save descriptor %q: %w", desc.Address, err)
	}
	return id, nil
}

// DeleteDevice removes a device and, via cascade, its events and alerts.
func (s *Store) DeleteDevice(ctx context.Context, siteID int64, address string) error {
	res, err := s.sq.DB().ExecContext(ctx,
		`DELETE FROM devices WHERE site_id = ? AND address = ?`, siteID, address)
	if err != nil {
		return fmt.Errorf("delete device %q: %w", address, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete device %q: %w", address, err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// upsertReportedTx inserts or updates a device row from one report row,
// within the ingestion transaction. Returns the device id and whether the
// row was created.
func upsertReportedTx(ctx context.Context, tx *sql.Tx, siteID int64, rd models.ReportDevice, now time.Time) (int64, bool, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM devices WHERE site_id = ? AND address = ?`,
		siteID, rd.Address).Scan(&id)
	created := errors.Is(err, sql.ErrNoRows)
	if err != nil && !created {
		return 0, false, fmt.Errorf("lookup device %q: %w", rd.Address, err)
	}

	var lastOk any
	if rd.Status == models.StatusOnline {
		lastOk = fmtTime(now)
	}

	if created {
		desc := models.DeviceDescriptor{
			Address: rd.Address, Name: rd.Name, Building: rd.Building,
			Floor: rd.Floor, Room: rd.Room, DeviceType: rd.DeviceType,
			Driver: rd.Driver,
		}
		raw, err := json.Marshal(desc)
		if err != nil {
			return 0, false, fmt.Errorf("encode descriptor %q: %w", rd.Address, err)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO devices (site_id, address, name, building, floor, room,
				device_type, driver, config, status, verdict, detail, last_ok_at, last_seen_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			siteID, rd.Address, rd.Name, rd.Building, rd.Floor, rd.Room,
			rd.DeviceType, rd.Driver, string(raw), rd.Status, rd.Verdict,
			rd.Detail, lastOk, fmtTime(now))
		if err != nil {
			return 0, false, fmt.Errorf("insert device %q: %w", rd.Address, err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("insert device %q: %w", rd.Address, err)
		}
		return id, true, nil
	}

	query := `
		UPDATE devices SET name = ?, building = ?, floor = ?, room = ?,
			device_type = ?, driver = ?, status = ?, verdict = ?, detail = ?,
			last_seen_at = ?, updated_at = CURRENT_TIMESTAMP`
	args := []any{rd.Name, rd.Building, rd.Floor, rd.Room, rd.DeviceType,
		rd.Driver, rd.Status, rd.Verdict, rd.Detail, fmtTime(now)}
	if lastOk != nil {
		query += `, last_ok_at = ?`
		args = append(args, lastOk)
	}
	query += ` WHERE id = ?`
	args = append(args, id)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, false, fmt.Errorf("update device %q: %w", rd.Address, err)
	}
	return id, false, nil
}

// appendEventTx writes one ingestion sample within the ingestion transaction.
func appendEventTx(ctx context.Context, tx *sql.Tx, siteID, deviceID int64, rd models.ReportDevice, now time.Time) error {
	metrics := "{}"
	if len(rd.Metrics) > 0 {
		raw, err := json.Marshal(rd.Metrics)
		if err != nil {
			return fmt.Errorf("encode metrics for device %d: %w", deviceID, err)
		}
		metrics = string(raw)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO device_events (device_id, site_id, status, verdict, detail, metrics, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		deviceID, siteID, rd.Status, rd.Verdict, rd.Detail, metrics, fmtTime(now))
	if err != nil {
		return fmt.Errorf("append event for device %d: %w", deviceID, err)
	}
	return nil
}

// EventsSince returns the most recent limit events for a device at or after
// since, newest first. A zero since returns the most recent events overall.
func (s *Store) EventsSince(ctx context.Context, deviceID int64, since time.Time, limit int) ([]Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	query := `SELECT id, device_id, status, verdict, detail, metrics, created_at
		FROM device_events WHERE device_id = ?`
	args := []any{deviceID}
	if !since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, fmtTime(since))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.sq.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events for device %d: %w", deviceID, err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var metrics string
		var created sql.NullString
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.Status, &e.Verdict, &e.Detail,
			&metrics, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if metrics != "" && metrics != "{}" {
			if err := json.Unmarshal([]byte(metrics), &e.Metrics); err != nil {
				return nil, fmt.Errorf("decode metrics for event %d: %w", e.ID, err)
			}
		}
		e.CreatedAt = parseTime(created)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Uptime returns the fraction of event samples since the given time whose
// status was online, plus the sample count. With the write-every-cycle event
// policy the samples are uniform, so the fraction approximates uptime.
func (s *Store) Uptime(ctx context.Context, deviceID int64, since time.Time) (float64, int, error) {
	var total, online int
	err := s.sq.DB().QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'online' THEN 1 ELSE 0 END), 0)
		FROM device_events WHERE device_id = ? AND created_at >= ?`,
		deviceID, fmtTime(since)).Scan(&total, &online)
	if err != nil {
		return 0, 0, fmt.Errorf("uptime for device %d: %w", deviceID, err)
	}
	if total == 0 {
		return 0, 0, nil
	}
	return float64(online) / float64(total), total, nil
}

func scanAlert(row interface{ Scan(...any) error }) (*Alert, error) {
	var a Alert
	var opened, lastSeen, closed sql.NullString
	err := row.Scan(&a.ID, &a.DeviceID, &a.SiteID, &a.Severity, &a.Status,
		&a.Verdict, &a.Detail, &opened, &lastSeen, &closed)
	if err != nil {
		return nil, err
	}
	a.OpenedAt = parseTime(opened)
	a.LastSeenAt = parseTime(lastSeen)
	a.ClosedAt = parseTime(closed)
	return &a, nil
}

const alertColumns = `id, device_id, site_id, severity, status, verdict,
	detail, opened_at, last_seen_at, closed_at`

// activeAlertTx returns the open alert for a device within a transaction,
// or nil when none is open.
func activeAlertTx(ctx context.Context, tx *sql.Tx, deviceID int64) (*Alert, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM device_alerts
		WHERE device_id = ? AND closed_at IS NULL`, deviceID)
	a, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("active alert for device %d: %w", deviceID, err)
	}
	return a, nil
}

// Alerts returns a site's alerts, newest first. Closed alerts are included
// only when includeClosed is set.
func (s *Store) Alerts(ctx context.Context, siteID int64, includeClosed bool) ([]Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM device_alerts WHERE site_id = ?`
	if !includeClosed {
		query += ` AND closed_at IS NULL`
	}
	query += ` ORDER BY opened_at DESC LIMIT 1000`

	rows, err := s.sq.DB().QueryContext(ctx, query, siteID)
	if err != nil {
		return nil, fmt.Errorf("list alerts for site %d: %w", siteID, err)
	}
	defer rows.Close()

	alerts := []Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}

// PurgeBefore deletes a site's events older than cutoff and its alerts
// closed before cutoff. Open alerts are never purged.
func (s *Store) PurgeBefore(ctx context.Context, siteID int64, cutoff time.Time) (events, alerts int64, err error) {
	res, err := s.sq.DB().ExecContext(ctx,
		`DELETE FROM device_events WHERE site_id = ? AND created_at < ?`,
		siteID, fmtTime(cutoff))
	if err != nil {
		return 0, 0, fmt.Errorf("purge events: %w", err)
	}
	events, _ = res.RowsAffected()

	res, err = s.sq.DB().ExecContext(ctx,
		`DELETE FROM device_alerts WHERE site_id = ? AND closed_at IS NOT NULL AND closed_at < ?`,
		siteID, fmtTime(cutoff))
	if err != nil {
		return events, 0, fmt.Errorf("purge alerts: %w", err)
	}
	alerts, _ = res.RowsAffected()
	return events, alerts, nil
}
