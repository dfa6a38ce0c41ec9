package central

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roomoperable/fleetpulse/internal/event"
	"github.com/roomoperable/fleetpulse/pkg/models"
	"go.uber.org/zap"
)

// Alert severities.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Lifecycle maintains the per-device alert state machine and the append-only
// event log. One event row is written on every ingestion cycle; the uniform
// samples are what makes the uptime query meaningful.
type Lifecycle struct {
	store  *Store
	bus    event.Publisher
	logger *zap.Logger
	now    func() time.Time
}

// NewLifecycle creates a Lifecycle publishing alert transitions on bus.
func NewLifecycle(st *Store, bus event.Publisher, logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		store:  st,
		bus:    bus,
		logger: logger.Named("lifecycle"),
		now:    time.Now,
	}
}

// alertPayload is the bus payload for alert.opened and alert.closed.
type alertPayload struct {
	AlertID  int64          `json:"alert_id"`
	DeviceID int64          `json:"device_id"`
	SiteID   int64          `json:"site_id"`
	Address  string         `json:"ip"`
	Severity string         `json:"severity"`
	Verdict  models.Verdict `json:"verdict"`
}

// RecordCycle processes one reported device cycle: upsert the device row,
// append an event, and advance the alert state machine. All writes for the
// cycle happen in a single transaction so a persistence failure leaves no
// partial state. Returns whether the device row was created.
func (l *Lifecycle) RecordCycle(ctx context.Context, site *Site, rd models.ReportDevice) (created bool, err error) {
	now := l.now()
	var opened, closed *alertPayload

	err = l.store.Tx(ctx, func(tx *sql.Tx) error {
		deviceID, isNew, err := upsertReportedTx(ctx, tx, site.ID, rd, now)
		if err != nil {
			return err
		}
		created = isNew

		if err := appendEventTx(ctx, tx, site.ID, deviceID, rd, now); err != nil {
			return err
		}

		opened, closed, err = l.advanceAlertTx(ctx, tx, site.ID, deviceID, rd, now)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("record cycle for %q: %w", rd.Address, err)
	}

	if opened != nil {
		l.logger.Info("alert opened",
			zap.Int64("device_id", opened.DeviceID),
			zap.String("ip", opened.Address),
			zap.String("severity", opened.Severity))
		l.bus.PublishAsync(ctx, event.Event{
			Topic:     event.TopicAlertOpened,
			Source:    "central",
			Timestamp: now,
			Payload:   *opened,
		})
	}
	if closed != nil {
		l.logger.Info("alert closed",
			zap.Int64("device_id", closed.DeviceID),
			zap.String("ip", closed.Address))
		l.bus.PublishAsync(ctx, event.Event{
			Topic:     event.TopicAlertClosed,
			Source:    "central",
			Timestamp: now,
			Payload:   *closed,
		})
	}
	return created, nil
}

// faulting reports whether this cycle drives the alert machine. A fault
// verdict always does; a report without a verdict falls back to raw offline.
func faulting(rd models.ReportDevice) bool {
	if rd.Verdict != "" {
		return rd.Verdict == models.VerdictFault
	}
	return rd.Status == models.StatusOffline
}

// advanceAlertTx runs one step of the per-device alert state machine inside
// the ingestion transaction. At most one open alert exists per device; the
// partial unique index enforces it at the schema level too.
func (l *Lifecycle) advanceAlertTx(ctx context.Context, tx *sql.Tx, siteID, deviceID int64, rd models.ReportDevice, now time.Time) (opened, closed *alertPayload, err error) {
	active, err := activeAlertTx(ctx, tx, deviceID)
	if err != nil {
		return nil, nil, err
	}

	if !faulting(rd) {
		if active == nil {
			return nil, nil, nil
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE device_alerts SET closed_at = ?, status = ?, verdict = ?, detail = ?
			WHERE id = ?`,
			fmtTime(now), rd.Status, rd.Verdict, rd.Detail, active.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("close alert %d: %w", active.ID, err)
		}
		return nil, &alertPayload{
			AlertID: active.ID, DeviceID: deviceID, SiteID: siteID,
			Address: rd.Address, Severity: active.Severity, Verdict: rd.Verdict,
		}, nil
	}

	if active != nil {
		_, err := tx.ExecContext(ctx,
			`UPDATE device_alerts SET last_seen_at = ?, status = ?, verdict = ?, detail = ?
			WHERE id = ?`,
			fmtTime(now), rd.Status, rd.Verdict, rd.Detail, active.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("update alert %d: %w", active.ID, err)
		}
		return nil, nil, nil
	}

	severity := SeverityWarning
	if rd.Verdict == models.VerdictFault {
		severity = SeverityCritical
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO device_alerts (device_id, site_id, severity, status, verdict, detail, opened_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		deviceID, siteID, severity, rd.Status, rd.Verdict, rd.Detail,
		fmtTime(now), fmtTime(now))
	if err != nil {
		return nil, nil, fmt.Errorf("open alert for device %d: %w", deviceID, err)
	}
	alertID, err := res.LastInsertId()
	if err != nil {
		return nil, nil, fmt.Errorf("open alert for device %d: %w", deviceID, err)
	}
	return &alertPayload{
		AlertID: alertID, DeviceID: deviceID, SiteID: siteID,
		Address: rd.Address, Severity: severity, Verdict: rd.Verdict,
	}, nil, nil
}
