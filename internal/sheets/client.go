// Package sheets is the remote backend adapter: a narrow contract over
// the spreadsheet-backed system of record.
//
// The sync core depends only on the Client interface (append one row
// per call, best-effort bulk reads) and on the error taxonomy below.
// Transient transport trouble surfaces as ErrUnavailable so the sync
// engine can retry; credential rejection surfaces as ErrAuth with a
// distinct message but the same recoverable treatment. The adapter
// never panics on ordinary network failure.
package sheets

import (
	"context"
	"errors"

	"github.com/campusgate/gatelog/internal/record"
)

// Sentinel errors for outcome classification.
var (
	// ErrUnavailable marks a recoverable transport failure (network
	// error, timeout, 5xx). The caller should retry later.
	ErrUnavailable = errors.New("remote backend unavailable")

	// ErrAuth marks a credential rejection (401/403). Retried like any
	// remote failure, but surfaced with a distinct message.
	ErrAuth = errors.New("remote backend rejected credentials")
)

// EntryRow is the 8-tuple appended to a course/branch-derived sheet.
type EntryRow struct {
	Date         string `json:"date"`
	Time         string `json:"time"`
	Kind         string `json:"type"`
	PersonName   string `json:"personName"`
	EnrollmentNo string `json:"enrollmentNo"`
	Course       string `json:"course"`
	Branch       string `json:"branch"`
	Semester     string `json:"semester"`
}

// PersonRow is the 10-tuple appended to the People sheet.
type PersonRow struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	EnrollmentNo string `json:"enrollmentNo"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Course       string `json:"course"`
	Branch       string `json:"branch"`
	Semester     string `json:"semester"`
	CreatedDate  string `json:"createdDate"`
	CreatedTime  string `json:"createdTime"`
}

// Client is the narrow write/read contract the sync engine requires
// from the remote backend. One record per append call; bulk reads are
// used only by the explicit download-into-local operation.
type Client interface {
	AppendEntry(ctx context.Context, row EntryRow) error
	AppendPerson(ctx context.Context, row PersonRow) error
	Entries(ctx context.Context) ([]EntryRow, error)
	People(ctx context.Context) ([]PersonRow, error)
}

// EntryRowOf converts a local attendance event to its wire row.
func EntryRowOf(e *record.Entry) EntryRow {
	return EntryRow{
		Date:         e.Date,
		Time:         e.Time,
		Kind:         string(e.Kind),
		PersonName:   e.PersonName,
		EnrollmentNo: e.EnrollmentNo,
		Course:       e.Course,
		Branch:       e.Branch,
		Semester:     e.Semester,
	}
}

// PersonRowOf converts a local registrant to its wire row.
func PersonRowOf(p *record.Person) PersonRow {
	return PersonRow{
		ID:           p.ID,
		Name:         p.Name,
		EnrollmentNo: p.EnrollmentNo,
		Email:        p.Email,
		Phone:        p.Phone,
		Course:       p.Course,
		Branch:       p.Branch,
		Semester:     p.Semester,
		CreatedDate:  p.CreatedDate,
		CreatedTime:  p.CreatedTime,
	}
}
