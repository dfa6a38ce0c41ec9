package central

import (
	"database/sql"

	"github.com/roomoperable/fleetpulse/internal/store"
)

// componentName identifies this component's rows in the shared _migrations table.
const componentName = "central"

// Migrations returns the central registry schema in ascending version order.
func Migrations() []store.Migration {
	return []store.Migration{
		{
			Version:     1,
			Description: "create sites table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS sites (
						id                  INTEGER PRIMARY KEY AUTOINCREMENT,
						name                TEXT NOT NULL UNIQUE,
						token               TEXT NOT NULL UNIQUE,
						timezone            TEXT NOT NULL DEFAULT 'UTC',
						doubt_after_days    INTEGER NOT NULL DEFAULT 7,
						ok_interval_seconds INTEGER NOT NULL DEFAULT 300,
						ko_interval_seconds INTEGER NOT NULL DEFAULT 60,
						retention_days      INTEGER NOT NULL DEFAULT 90,
						created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)
				`)
				return err
			},
		},
		{
			Version:     2,
			Description: "create devices table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS devices (
						id           INTEGER PRIMARY KEY AUTOINCREMENT,
						site_id      INTEGER NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
						address      TEXT NOT NULL,
						name         TEXT NOT NULL DEFAULT '',
						building     TEXT NOT NULL DEFAULT '',
						floor        TEXT NOT NULL DEFAULT '',
						room         TEXT NOT NULL DEFAULT '',
						device_type  TEXT NOT NULL DEFAULT '',
						driver       TEXT NOT NULL DEFAULT 'ping',
						config       TEXT NOT NULL DEFAULT '{}',
						status       TEXT NOT NULL DEFAULT 'unknown',
						verdict      TEXT NOT NULL DEFAULT '',
						detail       TEXT NOT NULL DEFAULT '',
						last_ok_at   DATETIME,
						last_seen_at DATETIME,
						updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						UNIQUE (site_id, address)
					)
				`)
				return err
			},
		},
		{
			Version:     3,
			Description: "create device_events table",
			Up: func(tx *sql.Tx) error {
				if _, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS device_events (
						id         INTEGER PRIMARY KEY AUTOINCREMENT,
						device_id  INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
						site_id    INTEGER NOT NULL,
						status     TEXT NOT NULL,
						verdict    TEXT NOT NULL DEFAULT '',
						detail     TEXT NOT NULL DEFAULT '',
						metrics    TEXT NOT NULL DEFAULT '{}',
						created_at DATETIME NOT NULL
					)
				`); err != nil {
					return err
				}
				_, err := tx.Exec(`
					CREATE INDEX IF NOT EXISTS idx_device_events_device_time
					ON device_events (device_id, created_at)
				`)
				return err
			},
		},
		{
			Version:     4,
			Description: "create device_alerts table",
			Up: func(tx *sql.Tx) error {
				if _, err := tx.Exec(`
					CREATE TABLE IF NOT EXISTS device_alerts (
						id           INTEGER PRIMARY KEY AUTOINCREMENT,
						device_id    INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
						site_id      INTEGER NOT NULL,
						severity     TEXT NOT NULL,
						status       TEXT NOT NULL,
						verdict      TEXT NOT NULL DEFAULT '',
						detail       TEXT NOT NULL DEFAULT '',
						opened_at    DATETIME NOT NULL,
						last_seen_at DATETIME NOT NULL,
						closed_at    DATETIME
					)
				`); err != nil {
					return err
				}
				// Partial index backs the at-most-one-open-alert lookup.
				_, err := tx.Exec(`
					CREATE UNIQUE INDEX IF NOT EXISTS idx_device_alerts_open
					ON device_alerts (device_id) WHERE closed_at IS NULL
				`)
				return err
			},
		},
	}
}
