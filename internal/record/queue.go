package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// SubjectKind identifies what kind of record a queued mutation wraps.
type SubjectKind string

const (
	SubjectEntry  SubjectKind = "entry"
	SubjectPerson SubjectKind = "person"
)

// Valid reports whether k is a known subject kind.
func (k SubjectKind) Valid() bool {
	return k == SubjectEntry || k == SubjectPerson
}

// Action is the mutation verb. Only ActionCreate is exercised by the
// current write path; update and delete exist for forward compatibility
// of the persisted queue format.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// QueueItem is a pending mutation: the unit of work driving eventual
// consistency. The payload is a full JSON copy of the subject record at
// enqueue time, so the drain loop never re-reads the subject tables.
// Queue order is FIFO by EnqueuedAt; an item is removed exactly once,
// either on successful remote application or at the retry ceiling.
type QueueItem struct {
	ID         string          `json:"id"`
	Subject    SubjectKind     `json:"type"`
	Action     Action          `json:"action"`
	Payload    json.RawMessage `json:"data"`
	EnqueuedAt int64           `json:"timestamp"` // epoch millis
	RetryCount int             `json:"retryCount"`
}

// NewQueueItem builds a queue item wrapping the given subject record.
// The payload must marshal cleanly; the subject and action must be known.
func NewQueueItem(subject SubjectKind, action Action, payload any, now time.Time) (*QueueItem, error) {
	if !subject.Valid() {
		return nil, fmt.Errorf("unknown subject kind %q", subject)
	}
	if !action.Valid() {
		return nil, fmt.Errorf("unknown action %q", action)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal queue payload: %w", err)
	}
	return &QueueItem{
		ID:         NewID("sync", now),
		Subject:    subject,
		Action:     action,
		Payload:    data,
		EnqueuedAt: now.UnixMilli(),
	}, nil
}

// Entry unmarshals the payload as an Entry. The item's subject must be
// SubjectEntry.
func (q *QueueItem) Entry() (*Entry, error) {
	if q.Subject != SubjectEntry {
		return nil, fmt.Errorf("queue item %s is %q, not an entry", q.ID, q.Subject)
	}
	var e Entry
	if err := json.Unmarshal(q.Payload, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry payload of %s: %w", q.ID, err)
	}
	return &e, nil
}

// Person unmarshals the payload as a Person. The item's subject must be
// SubjectPerson.
func (q *QueueItem) Person() (*Person, error) {
	if q.Subject != SubjectPerson {
		return nil, fmt.Errorf("queue item %s is %q, not a person", q.ID, q.Subject)
	}
	var p Person
	if err := json.Unmarshal(q.Payload, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal person payload of %s: %w", q.ID, err)
	}
	return &p, nil
}

// SubjectID extracts the wrapped record's own identifier without fully
// decoding the payload.
func (q *QueueItem) SubjectID() (string, error) {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(q.Payload, &probe); err != nil {
		return "", fmt.Errorf("failed to probe payload of %s: %w", q.ID, err)
	}
	if probe.ID == "" {
		return "", fmt.Errorf("queue item %s has no subject id", q.ID)
	}
	return probe.ID, nil
}
