package record

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Date and time layouts used across the local store, the scan payload,
// and the remote sheet rows. They match the en-GB locale strings of the
// original deployment ("31/12/2025", "14:05:09").
const (
	DateLayout = "02/01/2006"
	TimeLayout = "15:04:05"
)

// EnrollmentNone is the sentinel for records without an enrollment
// number (visitors, parents, staff).
const EnrollmentNone = "N/A"

// SyncState tracks the remote-application outcome of a record.
type SyncState string

const (
	SyncPending SyncState = "pending"
	SyncSynced  SyncState = "synced"
	SyncFailed  SyncState = "failed"
)

// Valid reports whether s is a known sync state.
func (s SyncState) Valid() bool {
	switch s {
	case SyncPending, SyncSynced, SyncFailed:
		return true
	}
	return false
}

// EntryKind distinguishes entries from exits.
type EntryKind string

const (
	KindEntry EntryKind = "entry"
	KindExit  EntryKind = "exit"
)

// Valid reports whether k is a known entry kind.
func (k EntryKind) Valid() bool {
	return k == KindEntry || k == KindExit
}

// Entry is a single attendance event. Entries are immutable once
// created except for SyncState/LastModified transitions, and are never
// hard-deleted by the sync core.
type Entry struct {
	ID           string    `json:"id"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	Kind         EntryKind `json:"type"`
	PersonName   string    `json:"personName"`
	EnrollmentNo string    `json:"enrollmentNo"`
	Course       string    `json:"course"`
	Branch       string    `json:"branch"`
	Semester     string    `json:"semester"`
	SyncState    SyncState `json:"syncStatus"`
	CreatedAt    int64     `json:"createdAt"`    // epoch millis
	LastModified int64     `json:"lastModified"` // epoch millis
}

// Validate checks the Entry has valid field values.
func (e *Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("type must be %q or %q (got %q)", KindEntry, KindExit, e.Kind)
	}
	if e.PersonName == "" {
		return fmt.Errorf("personName is required")
	}
	if e.Date == "" || e.Time == "" {
		return fmt.Errorf("date and time are required")
	}
	if !e.SyncState.Valid() {
		return fmt.Errorf("invalid sync state %q", e.SyncState)
	}
	return nil
}

// SetDefaults stamps identity, sync state and timestamps for a freshly
// created entry. Existing values are preserved.
func (e *Entry) SetDefaults(now time.Time) {
	if e.ID == "" {
		e.ID = NewID("entry", now)
	}
	if e.Date == "" {
		e.Date = now.Format(DateLayout)
	}
	if e.Time == "" {
		e.Time = now.Format(TimeLayout)
	}
	if e.EnrollmentNo == "" {
		e.EnrollmentNo = EnrollmentNone
	}
	if e.SyncState == "" {
		e.SyncState = SyncPending
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = now.UnixMilli()
	}
	if e.LastModified == 0 {
		e.LastModified = e.CreatedAt
	}
}

// OccurredAt parses the entry's locale date and time strings into a
// single instant, used for most-recent-first ordering. Falls back to
// the creation timestamp when the strings do not parse.
func (e *Entry) OccurredAt() time.Time {
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, e.Date+" "+e.Time, time.Local)
	if err != nil {
		return time.UnixMilli(e.CreatedAt)
	}
	return t
}

// NewID generates an opaque identifier of the form
// "<kind>_<epoch-millis>_<random-suffix>".
func NewID(kind string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s_%d_%s", kind, now.UnixMilli(), suffix)
}
