package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// ScanPayload is the fixed JSON shape the QR codec produces. The sync
// core never depends on the codec's bit-level encoding; it accepts only
// this decoded form.
type ScanPayload struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	EnrollmentNo string `json:"enrollmentNo"`
	Course       string `json:"course"`
	Branch       string `json:"branch"`
	Semester     string `json:"semester"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	Kind         string `json:"type"`
}

// ParseScanPayload decodes and validates a codec payload.
func ParseScanPayload(data []byte) (*ScanPayload, error) {
	var p ScanPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse scan payload: %w", err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("scan payload has no name")
	}
	if p.Kind != "" && !EntryKind(p.Kind).Valid() {
		return nil, fmt.Errorf("scan payload has unknown type %q", p.Kind)
	}
	return &p, nil
}

// ToEntry converts the payload to an attendance event. Missing date,
// time or kind fields default to "now" and "entry"; the entry ID is
// always store-generated, independent of the scanned person ID.
func (p *ScanPayload) ToEntry(now time.Time) *Entry {
	kind := EntryKind(p.Kind)
	if kind == "" {
		kind = KindEntry
	}
	e := &Entry{
		Date:         p.Date,
		Time:         p.Time,
		Kind:         kind,
		PersonName:   p.Name,
		EnrollmentNo: p.EnrollmentNo,
		Course:       p.Course,
		Branch:       p.Branch,
		Semester:     p.Semester,
	}
	e.SetDefaults(now)
	return e
}
