package store

import (
	"context"
	"fmt"

	"github.com/campusgate/gatelog/internal/record"
)

// Export dumps the full store for backup or transfer.
func (db *DB) Export(ctx context.Context) (*record.Snapshot, error) {
	entries, err := db.Entries(ctx, EntryFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to export entries: %w", err)
	}
	people, err := db.People(ctx, PersonFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to export people: %w", err)
	}

	settings := make(map[string]string)
	rows, err := db.conn.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to export settings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settings: %w", err)
	}

	return &record.Snapshot{Entries: entries, People: people, Settings: settings}, nil
}

// Import replaces the entries and people tables with the snapshot
// contents and writes its settings verbatim, all in one transaction.
// This is a destructive replace, not a merge; the sync queue is left
// untouched.
func (db *DB) Import(ctx context.Context, snap *record.Snapshot) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin import transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM people`); err != nil {
		return fmt.Errorf("failed to clear people: %w", err)
	}

	entryQuery := `
	INSERT INTO entries (
		id, date, time, kind, person_name, enrollment_no,
		course, branch, semester, sync_state, occurred_at,
		created_at, last_modified
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i := range snap.Entries {
		e := &snap.Entries[i]
		if err := e.Validate(); err != nil {
			return fmt.Errorf("invalid entry %s in snapshot: %w", e.ID, err)
		}
		_, err := tx.ExecContext(ctx, entryQuery,
			e.ID, e.Date, e.Time, string(e.Kind), e.PersonName, e.EnrollmentNo,
			e.Course, e.Branch, e.Semester, string(e.SyncState),
			e.OccurredAt().UnixMilli(), e.CreatedAt, e.LastModified,
		)
		if err != nil {
			return fmt.Errorf("failed to import entry %s: %w", e.ID, err)
		}
	}

	personQuery := `
	INSERT INTO people (
		id, name, enrollment_no, email, phone, course, branch, semester,
		created_date, created_time, qr_code, sync_state, created_at, last_modified
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i := range snap.People {
		p := &snap.People[i]
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid person %s in snapshot: %w", p.ID, err)
		}
		_, err := tx.ExecContext(ctx, personQuery,
			p.ID, p.Name, p.EnrollmentNo, p.Email, p.Phone, p.Course, p.Branch,
			p.Semester, p.CreatedDate, p.CreatedTime, p.QRCode,
			string(p.SyncState), p.CreatedAt, p.LastModified,
		)
		if err != nil {
			return fmt.Errorf("failed to import person %s: %w", p.ID, err)
		}
	}

	settingQuery := `INSERT INTO settings (key, value) VALUES (?, ?)
	                 ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	for k, v := range snap.Settings {
		if _, err := tx.ExecContext(ctx, settingQuery, k, v); err != nil {
			return fmt.Errorf("failed to import setting %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}
	return nil
}

// Wipe clears all four tables in one transaction.
func (db *DB) Wipe(ctx context.Context) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin wipe transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"entries", "people", "sync_queue", "settings"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit wipe: %w", err)
	}
	return nil
}
