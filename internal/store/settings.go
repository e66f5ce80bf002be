package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/campusgate/gatelog/internal/record"
)

// Well-known setting keys.
const (
	SettingLastSync = "lastSync" // epoch millis, decimal string
	SettingDeviceID = "deviceId"
)

// SetSetting persists a scalar key-value pair, replacing any existing
// value.
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	query := `INSERT INTO settings (key, value) VALUES (?, ?)
	          ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := db.conn.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// Setting returns the value for a key, or "" when the key is absent.
// Absence is not an error.
func (db *DB) Setting(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// Statistics aggregates store contents. "Today" matches entries whose
// date string equals today's date in the store format.
func (db *DB) Statistics(ctx context.Context) (*record.Statistics, error) {
	stats := &record.Statistics{}
	today := time.Now().Format(record.DateLayout)

	queries := []struct {
		dest  *int
		query string
		args  []any
	}{
		{&stats.TotalEntries, `SELECT COUNT(*) FROM entries`, nil},
		{&stats.TotalPeople, `SELECT COUNT(*) FROM people`, nil},
		{&stats.PendingSync, `SELECT COUNT(*) FROM sync_queue`, nil},
		{&stats.TodayEntries, `SELECT COUNT(*) FROM entries WHERE date = ? AND kind = ?`, []any{today, string(record.KindEntry)}},
		{&stats.TodayExits, `SELECT COUNT(*) FROM entries WHERE date = ? AND kind = ?`, []any{today, string(record.KindExit)}},
	}
	for _, q := range queries {
		if err := db.conn.QueryRowContext(ctx, q.query, q.args...).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("failed to compute statistics: %w", err)
		}
	}
	return stats, nil
}
