package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/campusgate/gatelog/internal/record"
)

// Enqueue persists a pending mutation. The item ID is assigned when
// absent. Retry counts start at zero.
func (db *DB) Enqueue(ctx context.Context, item *record.QueueItem) (string, error) {
	if item.ID == "" {
		item.ID = record.NewID("sync", time.Now())
	}
	if !item.Subject.Valid() {
		return "", fmt.Errorf("unknown subject kind %q", item.Subject)
	}
	if !item.Action.Valid() {
		return "", fmt.Errorf("unknown action %q", item.Action)
	}
	if item.EnqueuedAt == 0 {
		item.EnqueuedAt = time.Now().UnixMilli()
	}

	query := `
	INSERT INTO sync_queue (id, subject, action, payload, enqueued_at, retry_count)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := db.conn.ExecContext(ctx, query,
		item.ID, string(item.Subject), string(item.Action),
		string(item.Payload), item.EnqueuedAt, item.RetryCount,
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s: %w", item.ID, err)
	}
	return item.ID, nil
}

// Queue returns all pending mutations, FIFO by enqueue time.
func (db *DB) Queue(ctx context.Context) ([]record.QueueItem, error) {
	query := `
	SELECT id, subject, action, payload, enqueued_at, retry_count
	FROM sync_queue ORDER BY enqueued_at ASC, id ASC
	`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync queue: %w", err)
	}
	defer rows.Close()

	var items []record.QueueItem
	for rows.Next() {
		var item record.QueueItem
		var subject, action, payload string
		if err := rows.Scan(&item.ID, &subject, &action, &payload, &item.EnqueuedAt, &item.RetryCount); err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		item.Subject = record.SubjectKind(subject)
		item.Action = record.Action(action)
		item.Payload = []byte(payload)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync queue: %w", err)
	}
	return items, nil
}

// QueueLen returns the number of pending mutations.
func (db *DB) QueueLen(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_queue").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sync queue: %w", err)
	}
	return n, nil
}

// Dequeue removes a pending mutation. Idempotent: removing an absent
// item is not an error.
func (db *DB) Dequeue(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to dequeue %s: %w", id, err)
	}
	return nil
}

// BumpRetry increments the persisted retry counter for a queue item and
// returns the new value. Persisting the counter means a process restart
// cannot reset an item's retry budget mid-way.
func (db *DB) BumpRetry(ctx context.Context, id string) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE sync_queue SET retry_count = retry_count + 1 WHERE id = ?`, id); err != nil {
		return 0, fmt.Errorf("failed to bump retry count of %s: %w", id, err)
	}

	var n int
	err = tx.QueryRowContext(ctx, `SELECT retry_count FROM sync_queue WHERE id = ?`, id).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("queue item %s not found", id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read retry count of %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit retry bump: %w", err)
	}
	return n, nil
}
