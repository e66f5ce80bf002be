package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SpoolFallback wraps a Client and captures append rows that could not
// be delivered because the backend was unreachable. Captured rows land
// in a JSONL file so an operator can replay them later, and the append
// reports success: remote delivery and local capture are one logical
// outcome, so a spooled row is not also retried by the caller. Auth
// rejections and spool write failures still surface as errors.
type SpoolFallback struct {
	inner  Client
	path   string
	logger *log.Logger

	mu sync.Mutex
}

type spooledRow struct {
	Kind      string    `json:"kind"`
	Sheet     string    `json:"sheet"`
	Row       any       `json:"row"`
	SpooledAt time.Time `json:"spooledAt"`
}

// NewSpoolFallback decorates inner with a local spool at path.
func NewSpoolFallback(inner Client, path string, logger *log.Logger) *SpoolFallback {
	if logger == nil {
		logger = log.New(os.Stderr, "[sheets] ", log.LstdFlags)
	}
	return &SpoolFallback{inner: inner, path: path, logger: logger}
}

func (s *SpoolFallback) AppendEntry(ctx context.Context, row EntryRow) error {
	err := s.inner.AppendEntry(ctx, row)
	if errors.Is(err, ErrUnavailable) {
		if serr := s.spool("entry", sheetNameFor(s.inner, row), row); serr == nil {
			return nil
		}
	}
	return err
}

func (s *SpoolFallback) AppendPerson(ctx context.Context, row PersonRow) error {
	err := s.inner.AppendPerson(ctx, row)
	if errors.Is(err, ErrUnavailable) {
		if serr := s.spool("person", peopleSheetFor(s.inner), row); serr == nil {
			return nil
		}
	}
	return err
}

// Entries passes through. Reads have no local fallback.
func (s *SpoolFallback) Entries(ctx context.Context) ([]EntryRow, error) {
	return s.inner.Entries(ctx)
}

// People passes through.
func (s *SpoolFallback) People(ctx context.Context) ([]PersonRow, error) {
	return s.inner.People(ctx)
}

// spool appends one JSONL record. A non-nil return means the row was
// NOT captured and the caller must surface the delivery error.
func (s *SpoolFallback) spool(kind, sheet string, row any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.logger.Printf("failed to create spool directory: %v", err)
			return err
		}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.Printf("failed to open spool file: %v", err)
		return err
	}
	defer f.Close()

	line, err := json.Marshal(spooledRow{
		Kind:      kind,
		Sheet:     sheet,
		Row:       row,
		SpooledAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Printf("failed to encode spooled row: %v", err)
		return err
	}
	if _, err := fmt.Fprintf(f, "%s\n", line); err != nil {
		s.logger.Printf("failed to write spooled row: %v", err)
		return err
	}
	s.logger.Printf("captured %s row for %q locally", kind, sheet)
	return nil
}

// sheetNameFor resolves the destination sheet when the inner client
// exposes a router; otherwise the catch-all name is recorded.
func sheetNameFor(inner Client, row EntryRow) string {
	if hc, ok := inner.(*HTTPClient); ok {
		return hc.Router().SheetFor(row.Course, row.Branch)
	}
	return CatchAllSheet
}

func peopleSheetFor(inner Client) string {
	if hc, ok := inner.(*HTTPClient); ok {
		return hc.Router().PeopleSheet
	}
	return "People"
}
