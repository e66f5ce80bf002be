package record

import (
	"strings"
	"testing"
	"time"
)

func TestNewIDFormat(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	id := NewID("entry", now)

	parts := strings.SplitN(id, "_", 3)
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts in %q, got %d", id, len(parts))
	}
	if parts[0] != "entry" {
		t.Errorf("expected kind prefix 'entry', got %q", parts[0])
	}
	if parts[1] != "1700000000000" {
		t.Errorf("expected millis '1700000000000', got %q", parts[1])
	}
	if len(parts[2]) != 9 {
		t.Errorf("expected 9-char suffix, got %q", parts[2])
	}

	if NewID("entry", now) == id {
		t.Error("expected distinct IDs for repeated calls")
	}
}

func TestEntrySetDefaults(t *testing.T) {
	now := time.Date(2025, 12, 31, 14, 5, 9, 0, time.Local)
	e := &Entry{Kind: KindEntry, PersonName: "Asha Patel"}
	e.SetDefaults(now)

	if e.ID == "" {
		t.Error("expected generated ID")
	}
	if e.Date != "31/12/2025" {
		t.Errorf("expected date 31/12/2025, got %q", e.Date)
	}
	if e.Time != "14:05:09" {
		t.Errorf("expected time 14:05:09, got %q", e.Time)
	}
	if e.EnrollmentNo != EnrollmentNone {
		t.Errorf("expected enrollment %q, got %q", EnrollmentNone, e.EnrollmentNo)
	}
	if e.SyncState != SyncPending {
		t.Errorf("expected pending state, got %q", e.SyncState)
	}
	if e.CreatedAt != now.UnixMilli() || e.LastModified != e.CreatedAt {
		t.Errorf("unexpected timestamps: created=%d modified=%d", e.CreatedAt, e.LastModified)
	}

	if err := e.Validate(); err != nil {
		t.Errorf("expected valid entry, got %v", err)
	}
}

func TestEntryValidateRejectsBadKind(t *testing.T) {
	e := &Entry{Kind: "loiter", PersonName: "x"}
	e.SetDefaults(time.Now())
	if err := e.Validate(); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestEntryOccurredAt(t *testing.T) {
	e := &Entry{Date: "01/02/2025", Time: "09:30:00", CreatedAt: 1700000000000}
	got := e.OccurredAt()
	want := time.Date(2025, 2, 1, 9, 30, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	// Unparseable strings fall back to the creation timestamp.
	e.Date = "yesterday"
	if got := e.OccurredAt(); got.UnixMilli() != e.CreatedAt {
		t.Errorf("expected fallback to createdAt, got %v", got)
	}
}

func TestPersonSetDefaultsKeepsID(t *testing.T) {
	p := &Person{Name: "Ravi Kumar"}
	p.SetDefaults(time.Now())
	if p.ID != "" {
		t.Errorf("expected ID left to the caller, got %q", p.ID)
	}
	if err := p.Validate(); err == nil {
		t.Error("expected validation failure without ID")
	}

	p.ID = "person_1_abc"
	if err := p.Validate(); err != nil {
		t.Errorf("expected valid person, got %v", err)
	}
}

func TestQueueItemRoundTrip(t *testing.T) {
	now := time.Now()
	e := &Entry{Kind: KindExit, PersonName: "Mira"}
	e.SetDefaults(now)

	item, err := NewQueueItem(SubjectEntry, ActionCreate, e, now)
	if err != nil {
		t.Fatalf("NewQueueItem failed: %v", err)
	}
	if item.RetryCount != 0 {
		t.Errorf("expected zero retry count, got %d", item.RetryCount)
	}

	got, err := item.Entry()
	if err != nil {
		t.Fatalf("Entry() failed: %v", err)
	}
	if got.ID != e.ID || got.PersonName != e.PersonName || got.Kind != e.Kind {
		t.Errorf("round trip mismatch: %+v vs %+v", got, e)
	}

	if _, err := item.Person(); err == nil {
		t.Error("expected subject mismatch error from Person()")
	}

	id, err := item.SubjectID()
	if err != nil {
		t.Fatalf("SubjectID failed: %v", err)
	}
	if id != e.ID {
		t.Errorf("expected subject id %q, got %q", e.ID, id)
	}
}

func TestNewQueueItemRejectsUnknownSubject(t *testing.T) {
	if _, err := NewQueueItem("widget", ActionCreate, struct{}{}, time.Now()); err == nil {
		t.Error("expected error for unknown subject")
	}
	if _, err := NewQueueItem(SubjectEntry, "upsert", struct{}{}, time.Now()); err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestParseScanPayload(t *testing.T) {
	payload, err := ParseScanPayload([]byte(`{"name":"Asha","type":"exit","course":"B.E","branch":"Computer"}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	e := payload.ToEntry(time.Now())
	if e.Kind != KindExit {
		t.Errorf("expected exit, got %q", e.Kind)
	}
	if e.ID == "" || !strings.HasPrefix(e.ID, "entry_") {
		t.Errorf("expected store-generated entry id, got %q", e.ID)
	}

	if _, err := ParseScanPayload([]byte(`{"type":"entry"}`)); err == nil {
		t.Error("expected error for missing name")
	}
	if _, err := ParseScanPayload([]byte(`{"name":"x","type":"sideways"}`)); err == nil {
		t.Error("expected error for unknown type")
	}
	if _, err := ParseScanPayload([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestScanPayloadDefaultsKindToEntry(t *testing.T) {
	payload, err := ParseScanPayload([]byte(`{"name":"Asha"}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if e := payload.ToEntry(time.Now()); e.Kind != KindEntry {
		t.Errorf("expected default kind entry, got %q", e.Kind)
	}
}

func TestStatusClone(t *testing.T) {
	now := time.Now()
	st := Status{Online: true, LastSync: &now, Errors: []string{"boom"}}
	cl := st.Clone()

	cl.Errors[0] = "changed"
	*cl.LastSync = now.Add(time.Hour)

	if st.Errors[0] != "boom" {
		t.Error("clone shares the errors slice")
	}
	if !st.LastSync.Equal(now) {
		t.Error("clone shares the last-sync pointer")
	}
}
