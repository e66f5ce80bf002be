package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/campusgate/gatelog/internal/record"
	"github.com/campusgate/gatelog/internal/sheets"
	"github.com/campusgate/gatelog/internal/store"
)

// Download replaces the local entries and people tables with the remote
// backend's contents. This is a destructive import, not a merge: local
// records not present remotely are lost. The pending queue is left
// untouched, so mutations captured before the download still deliver.
//
// Downloaded entries get fresh local identifiers, since sheet rows
// carry none. Downloaded people keep their remote identifiers. All
// imported records are marked synced.
func (e *Engine) Download(ctx context.Context) error {
	if !e.mon.Online() {
		return ErrOffline
	}

	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		return fmt.Errorf("a sync is already in progress")
	}
	e.syncing = true
	st := e.statusLocked()
	e.mu.Unlock()
	e.publish(st)

	err := e.download(ctx)
	now := time.Now()

	e.mu.Lock()
	e.syncing = false
	if err == nil {
		e.lastSync = &now
	}
	st = e.statusLocked()
	e.mu.Unlock()

	if err == nil {
		if serr := e.db.SetSetting(ctx, store.SettingLastSync,
			strconv.FormatInt(now.UnixMilli(), 10)); serr != nil {
			e.logger.Printf("failed to persist last sync: %v", serr)
		}
	}
	e.publish(st)
	return err
}

func (e *Engine) download(ctx context.Context) error {
	rctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	entryRows, err := e.remote.Entries(rctx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to download entries: %w", err)
	}

	rctx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
	personRows, err := e.remote.People(rctx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to download people: %w", err)
	}

	now := time.Now()
	snap := &record.Snapshot{}

	for _, row := range entryRows {
		if row.PersonName == "" {
			continue
		}
		snap.Entries = append(snap.Entries, entryFromRow(row, now))
	}
	for _, row := range personRows {
		if row.Name == "" {
			continue
		}
		snap.People = append(snap.People, personFromRow(row, now))
	}

	if err := e.db.Import(ctx, snap); err != nil {
		return fmt.Errorf("failed to import downloaded records: %w", err)
	}
	e.logger.Printf("downloaded %d entries and %d people", len(snap.Entries), len(snap.People))
	return nil
}

func entryFromRow(row sheets.EntryRow, now time.Time) record.Entry {
	kind := record.EntryKind(strings.ToLower(strings.TrimSpace(row.Kind)))
	if !kind.Valid() {
		kind = record.KindEntry
	}
	e := record.Entry{
		ID:           record.NewID("entry", now),
		Date:         row.Date,
		Time:         row.Time,
		Kind:         kind,
		PersonName:   row.PersonName,
		EnrollmentNo: row.EnrollmentNo,
		Course:       row.Course,
		Branch:       row.Branch,
		Semester:     row.Semester,
		SyncState:    record.SyncSynced,
	}
	e.SetDefaults(now)
	return e
}

func personFromRow(row sheets.PersonRow, now time.Time) record.Person {
	p := record.Person{
		ID:           row.ID,
		Name:         row.Name,
		EnrollmentNo: row.EnrollmentNo,
		Email:        row.Email,
		Phone:        row.Phone,
		Course:       row.Course,
		Branch:       row.Branch,
		Semester:     row.Semester,
		CreatedDate:  row.CreatedDate,
		CreatedTime:  row.CreatedTime,
		SyncState:    record.SyncSynced,
	}
	if p.ID == "" {
		p.ID = record.NewID("person", now)
	}
	p.SetDefaults(now)
	return p
}
