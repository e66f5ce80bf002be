// Package store provides the durable local store for gatelog on
// embedded SQLite (ncruces/go-sqlite3).
//
// The store is the sole arbiter of what the device has recorded. It
// holds four logical tables:
//   - entries: attendance events, indexed by sync state, date and kind
//   - people: registrants, indexed by sync state and course
//   - sync_queue: pending mutations, indexed by enqueue time
//   - settings: keyed scalars (last sync time, device identifier)
//
// The database runs in embedded mode with WAL for concurrent reads.
// Absence is never an error: lookups for missing rows return empty
// results or zero values, while genuine storage failures propagate as
// wrapped errors.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/campusgate/gatelog/internal/record"
)

// DB wraps the SQLite connection with gatelog-specific operations.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at the specified path, creating
// parent directories as needed. Pass ":memory:" for an in-memory
// database (tests). The caller MUST call Close when done.
func Open(path string) (*DB, error) {
	connStr := path
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		connStr = "file:" + path
	}

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, path: path}

	// WAL keeps readers unblocked during entry bursts at the front desk.
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection, checkpointing the WAL first.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.conn = nil
	return nil
}

// InitSchema creates the schema if it doesn't exist. Idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		time TEXT NOT NULL,
		kind TEXT NOT NULL,
		person_name TEXT NOT NULL,
		enrollment_no TEXT NOT NULL DEFAULT 'N/A',
		course TEXT NOT NULL DEFAULT '',
		branch TEXT NOT NULL DEFAULT '',
		semester TEXT NOT NULL DEFAULT '',
		sync_state TEXT NOT NULL DEFAULT 'pending',
		occurred_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		last_modified INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS people (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		enrollment_no TEXT NOT NULL DEFAULT 'N/A',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		course TEXT NOT NULL DEFAULT '',
		branch TEXT NOT NULL DEFAULT '',
		semester TEXT NOT NULL DEFAULT '',
		created_date TEXT NOT NULL DEFAULT '',
		created_time TEXT NOT NULL DEFAULT '',
		qr_code TEXT NOT NULL DEFAULT '',
		sync_state TEXT NOT NULL DEFAULT 'pending',
		created_at INTEGER NOT NULL,
		last_modified INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_queue (
		id TEXT PRIMARY KEY,
		subject TEXT NOT NULL,
		action TEXT NOT NULL,
		payload TEXT NOT NULL,
		enqueued_at INTEGER NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_sync_state ON entries(sync_state);
	CREATE INDEX IF NOT EXISTS idx_entries_date ON entries(date);
	CREATE INDEX IF NOT EXISTS idx_entries_kind ON entries(kind);
	CREATE INDEX IF NOT EXISTS idx_entries_occurred ON entries(occurred_at);

	CREATE INDEX IF NOT EXISTS idx_people_sync_state ON people(sync_state);
	CREATE INDEX IF NOT EXISTS idx_people_course ON people(course);

	CREATE INDEX IF NOT EXISTS idx_queue_enqueued ON sync_queue(enqueued_at);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// AddEntry persists an attendance event. The ID is assigned when absent
// and the record is stamped pending; the write is atomic and the
// returned identifier is durable once this returns nil error.
func (db *DB) AddEntry(ctx context.Context, e *record.Entry) (string, error) {
	e.SetDefaults(time.Now())
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("invalid entry: %w", err)
	}

	query := `
	INSERT INTO entries (
		id, date, time, kind, person_name, enrollment_no,
		course, branch, semester, sync_state, occurred_at,
		created_at, last_modified
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.conn.ExecContext(ctx, query,
		e.ID, e.Date, e.Time, string(e.Kind), e.PersonName, e.EnrollmentNo,
		e.Course, e.Branch, e.Semester, string(e.SyncState),
		e.OccurredAt().UnixMilli(), e.CreatedAt, e.LastModified,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert entry %s: %w", e.ID, err)
	}
	return e.ID, nil
}

// EntryFilter narrows Entries results. Fields are exact-match; zero
// values are ignored. Limit caps the result count (0 = no limit).
type EntryFilter struct {
	Date   string
	Kind   record.EntryKind
	Course string
	Limit  int
}

// Entries returns attendance events ordered most recent first by
// (date, time). An empty result is not an error.
func (db *DB) Entries(ctx context.Context, filter EntryFilter) ([]record.Entry, error) {
	var conditions []string
	var args []any

	if filter.Date != "" {
		conditions = append(conditions, "date = ?")
		args = append(args, filter.Date)
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Course != "" {
		conditions = append(conditions, "course = ?")
		args = append(args, filter.Course)
	}

	query := `
	SELECT id, date, time, kind, person_name, enrollment_no,
	       course, branch, semester, sync_state, created_at, last_modified
	FROM entries
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY occurred_at DESC, created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// EntryByID retrieves a single entry. Returns (nil, nil) when absent.
func (db *DB) EntryByID(ctx context.Context, id string) (*record.Entry, error) {
	query := `
	SELECT id, date, time, kind, person_name, enrollment_no,
	       course, branch, semester, sync_state, created_at, last_modified
	FROM entries WHERE id = ?
	`
	row := db.conn.QueryRowContext(ctx, query, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry %s: %w", id, err)
	}
	return e, nil
}

// SetEntrySyncState updates an entry's sync state and bumps its
// last-modified timestamp. Idempotent; a no-op when the id is absent.
func (db *DB) SetEntrySyncState(ctx context.Context, id string, state record.SyncState) error {
	if !state.Valid() {
		return fmt.Errorf("invalid sync state %q", state)
	}
	query := `UPDATE entries SET sync_state = ?, last_modified = ? WHERE id = ?`
	if _, err := db.conn.ExecContext(ctx, query, string(state), time.Now().UnixMilli(), id); err != nil {
		return fmt.Errorf("failed to update entry %s sync state: %w", id, err)
	}
	return nil
}

// AddPerson persists a registrant. The ID must be pre-assigned by the
// caller; the record is stamped pending and timestamped.
func (db *DB) AddPerson(ctx context.Context, p *record.Person) (string, error) {
	p.SetDefaults(time.Now())
	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("invalid person: %w", err)
	}

	query := `
	INSERT INTO people (
		id, name, enrollment_no, email, phone, course, branch, semester,
		created_date, created_time, qr_code, sync_state, created_at, last_modified
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.conn.ExecContext(ctx, query,
		p.ID, p.Name, p.EnrollmentNo, p.Email, p.Phone, p.Course, p.Branch,
		p.Semester, p.CreatedDate, p.CreatedTime, p.QRCode,
		string(p.SyncState), p.CreatedAt, p.LastModified,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert person %s: %w", p.ID, err)
	}
	return p.ID, nil
}

// PersonFilter narrows People results. Course is exact-match; Search is
// a case-insensitive substring match over name, enrollment and email.
type PersonFilter struct {
	Course string
	Search string
}

// People returns registrants ordered by creation timestamp descending.
func (db *DB) People(ctx context.Context, filter PersonFilter) ([]record.Person, error) {
	var conditions []string
	var args []any

	if filter.Course != "" {
		conditions = append(conditions, "course = ?")
		args = append(args, filter.Course)
	}
	if filter.Search != "" {
		conditions = append(conditions,
			"(instr(lower(name), lower(?)) > 0 OR instr(lower(enrollment_no), lower(?)) > 0 OR instr(lower(email), lower(?)) > 0)")
		args = append(args, filter.Search, filter.Search, filter.Search)
	}

	query := `
	SELECT id, name, enrollment_no, email, phone, course, branch, semester,
	       created_date, created_time, qr_code, sync_state, created_at, last_modified
	FROM people
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query people: %w", err)
	}
	defer rows.Close()

	return scanPeople(rows)
}

// PersonByID retrieves a single person. Returns (nil, nil) when absent.
func (db *DB) PersonByID(ctx context.Context, id string) (*record.Person, error) {
	query := `
	SELECT id, name, enrollment_no, email, phone, course, branch, semester,
	       created_date, created_time, qr_code, sync_state, created_at, last_modified
	FROM people WHERE id = ?
	`
	row := db.conn.QueryRowContext(ctx, query, id)
	p, err := scanPerson(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person %s: %w", id, err)
	}
	return p, nil
}

// SetPersonSyncState updates a person's sync state and bumps the
// last-modified timestamp. Idempotent; a no-op when the id is absent.
func (db *DB) SetPersonSyncState(ctx context.Context, id string, state record.SyncState) error {
	if !state.Valid() {
		return fmt.Errorf("invalid sync state %q", state)
	}
	query := `UPDATE people SET sync_state = ?, last_modified = ? WHERE id = ?`
	if _, err := db.conn.ExecContext(ctx, query, string(state), time.Now().UnixMilli(), id); err != nil {
		return fmt.Errorf("failed to update person %s sync state: %w", id, err)
	}
	return nil
}

// scanEntries reads multiple entries from query results.
func scanEntries(rows *sql.Rows) ([]record.Entry, error) {
	var entries []record.Entry
	for rows.Next() {
		var e record.Entry
		var kind, state string
		err := rows.Scan(&e.ID, &e.Date, &e.Time, &kind, &e.PersonName,
			&e.EnrollmentNo, &e.Course, &e.Branch, &e.Semester, &state,
			&e.CreatedAt, &e.LastModified)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Kind = record.EntryKind(kind)
		e.SyncState = record.SyncState(state)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}
	return entries, nil
}

// scanEntry reads a single entry row.
func scanEntry(row *sql.Row) (*record.Entry, error) {
	var e record.Entry
	var kind, state string
	err := row.Scan(&e.ID, &e.Date, &e.Time, &kind, &e.PersonName,
		&e.EnrollmentNo, &e.Course, &e.Branch, &e.Semester, &state,
		&e.CreatedAt, &e.LastModified)
	if err != nil {
		return nil, err
	}
	e.Kind = record.EntryKind(kind)
	e.SyncState = record.SyncState(state)
	return &e, nil
}

// scanPeople reads multiple people from query results.
func scanPeople(rows *sql.Rows) ([]record.Person, error) {
	var people []record.Person
	for rows.Next() {
		var p record.Person
		var state string
		err := rows.Scan(&p.ID, &p.Name, &p.EnrollmentNo, &p.Email, &p.Phone,
			&p.Course, &p.Branch, &p.Semester, &p.CreatedDate, &p.CreatedTime,
			&p.QRCode, &state, &p.CreatedAt, &p.LastModified)
		if err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		p.SyncState = record.SyncState(state)
		people = append(people, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating people: %w", err)
	}
	return people, nil
}

// scanPerson reads a single person row.
func scanPerson(row *sql.Row) (*record.Person, error) {
	var p record.Person
	var state string
	err := row.Scan(&p.ID, &p.Name, &p.EnrollmentNo, &p.Email, &p.Phone,
		&p.Course, &p.Branch, &p.Semester, &p.CreatedDate, &p.CreatedTime,
		&p.QRCode, &state, &p.CreatedAt, &p.LastModified)
	if err != nil {
		return nil, err
	}
	p.SyncState = record.SyncState(state)
	return &p, nil
}
