package record

import (
	"fmt"
	"time"
)

// Person is a registrant. Unlike Entry, the identifier is assigned by
// the caller before the first store write so the same identifier is
// usable both locally and in the remote backend.
type Person struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	EnrollmentNo string    `json:"enrollmentNo"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Course       string    `json:"course"`
	Branch       string    `json:"branch"`
	Semester     string    `json:"semester"`
	CreatedDate  string    `json:"createdDate"`
	CreatedTime  string    `json:"createdTime"`
	QRCode       string    `json:"qrCodeData,omitempty"` // opaque codec payload, display only
	SyncState    SyncState `json:"syncStatus"`
	CreatedAt    int64     `json:"createdAt"`
	LastModified int64     `json:"lastModified"`
}

// Validate checks the Person has valid field values.
func (p *Person) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !p.SyncState.Valid() {
		return fmt.Errorf("invalid sync state %q", p.SyncState)
	}
	return nil
}

// SetDefaults stamps sync state and timestamps for a freshly registered
// person. The ID is deliberately NOT defaulted here.
func (p *Person) SetDefaults(now time.Time) {
	if p.EnrollmentNo == "" {
		p.EnrollmentNo = EnrollmentNone
	}
	if p.CreatedDate == "" {
		p.CreatedDate = now.Format(DateLayout)
	}
	if p.CreatedTime == "" {
		p.CreatedTime = now.Format(TimeLayout)
	}
	if p.SyncState == "" {
		p.SyncState = SyncPending
	}
	if p.CreatedAt == 0 {
		p.CreatedAt = now.UnixMilli()
	}
	if p.LastModified == 0 {
		p.LastModified = p.CreatedAt
	}
}
