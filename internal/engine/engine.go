// Package engine drives eventual consistency between the local store
// and the remote spreadsheet backend.
//
// All writes land locally first and enqueue a pending mutation. A
// single loop goroutine drains the queue whenever connectivity returns
// or the periodic interval fires; external callers can force a drain or
// a destructive download. Failed mutations retry up to a fixed ceiling,
// then the underlying record is marked failed and the mutation is
// dropped with a visible error.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/campusgate/gatelog/internal/netmon"
	"github.com/campusgate/gatelog/internal/record"
	"github.com/campusgate/gatelog/internal/sheets"
	"github.com/campusgate/gatelog/internal/store"
)

// ErrOffline is returned by operations that need the remote backend
// while connectivity is down.
var ErrOffline = errors.New("device is offline")

// retryCeiling is the number of delivery attempts a queued mutation
// gets before it is dropped and its record marked failed.
const retryCeiling = 3

// Config tunes the engine. Zero values take the defaults below.
type Config struct {
	// SyncInterval is the periodic drain cadence while online.
	SyncInterval time.Duration

	// CallTimeout bounds each individual remote call.
	CallTimeout time.Duration

	// ErrorCap bounds the retained error ring.
	ErrorCap int

	Logger *log.Logger
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SyncInterval: 30 * time.Second,
		CallTimeout:  10 * time.Second,
		ErrorCap:     32,
	}
}

func (c *Config) setDefaults() {
	d := DefaultConfig()
	if c.SyncInterval <= 0 {
		c.SyncInterval = d.SyncInterval
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	if c.ErrorCap <= 0 {
		c.ErrorCap = d.ErrorCap
	}
	if c.Logger == nil {
		c.Logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
}

// Subscriber receives status snapshots. Callbacks run synchronously on
// the publishing goroutine and must not block.
type Subscriber func(record.Status)

// Engine coordinates the store, the queue, the connectivity monitor and
// the remote backend.
type Engine struct {
	db     *store.DB
	remote sheets.Client
	mon    netmon.Monitor
	cfg    Config
	logger *log.Logger

	mu        sync.Mutex
	syncing   bool
	lastSync  *time.Time
	pending   int
	errs      []string
	subs      map[int]Subscriber
	nextSubID int
	deviceID  string

	kick    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates an engine over an opened store. It restores the persisted
// last-sync timestamp and pending count, and mints a device identifier
// on first run.
func New(db *store.DB, remote sheets.Client, mon netmon.Monitor, cfg Config) (*Engine, error) {
	cfg.setDefaults()
	e := &Engine{
		db:     db,
		remote: remote,
		mon:    mon,
		cfg:    cfg,
		logger: cfg.Logger,
		subs:   make(map[int]Subscriber),
		kick:   make(chan struct{}, 1),
	}

	ctx := context.Background()

	if raw, err := db.Setting(ctx, store.SettingLastSync); err != nil {
		return nil, fmt.Errorf("failed to load last sync: %w", err)
	} else if raw != "" {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			t := time.UnixMilli(ms)
			e.lastSync = &t
		}
	}

	id, err := db.Setting(ctx, store.SettingDeviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load device id: %w", err)
	}
	if id == "" {
		id = record.NewID("device", time.Now())
		if err := db.SetSetting(ctx, store.SettingDeviceID, id); err != nil {
			return nil, fmt.Errorf("failed to store device id: %w", err)
		}
	}
	e.deviceID = id

	n, err := db.QueueLen(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending mutations: %w", err)
	}
	e.pending = n

	return e, nil
}

// DeviceID returns the stable identifier of this installation.
func (e *Engine) DeviceID() string {
	return e.deviceID
}

// Start launches the background drain loop. Safe to skip for one-shot
// command invocations that only call the synchronous operations.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.mu.Unlock()

	e.wg.Add(1)
	go e.loop()
}

// Stop halts the drain loop and waits for it to exit. An in-flight
// drain finishes its current item and leaves the rest queued.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	e.wg.Wait()
}

func (e *Engine) loop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return

		case online, ok := <-e.mon.Events():
			if !ok {
				return
			}
			if online {
				e.logger.Printf("connectivity restored, draining queue")
				if err := e.Drain(e.ctx); err != nil && !errors.Is(err, context.Canceled) {
					e.logger.Printf("drain after reconnect failed: %v", err)
				}
			} else {
				e.logger.Printf("connectivity lost")
				e.publish(e.snapshot())
			}

		case <-ticker.C:
			if !e.mon.Online() {
				continue
			}
			if err := e.Drain(e.ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Printf("periodic drain failed: %v", err)
			}

		case <-e.kick:
			if !e.mon.Online() {
				continue
			}
			if err := e.Drain(e.ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Printf("drain failed: %v", err)
			}
		}
	}
}

// kickDrain schedules a background drain without blocking the caller.
// Collapses into any drain already scheduled.
func (e *Engine) kickDrain() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// AddEntry records an attendance event locally and queues it for
// delivery. The local write succeeds regardless of connectivity; if
// online, a background drain is kicked.
func (e *Engine) AddEntry(ctx context.Context, entry *record.Entry) (string, error) {
	id, err := e.db.AddEntry(ctx, entry)
	if err != nil {
		return "", err
	}
	if err := e.enqueue(ctx, record.SubjectEntry, entry); err != nil {
		return "", err
	}
	return id, nil
}

// AddPerson registers a person locally and queues the registration for
// delivery. The identifier is minted here when absent so local and
// remote copies share it.
func (e *Engine) AddPerson(ctx context.Context, p *record.Person) (string, error) {
	if p.ID == "" {
		p.ID = record.NewID("person", time.Now())
	}
	id, err := e.db.AddPerson(ctx, p)
	if err != nil {
		return "", err
	}
	if err := e.enqueue(ctx, record.SubjectPerson, p); err != nil {
		return "", err
	}
	return id, nil
}

func (e *Engine) enqueue(ctx context.Context, subject record.SubjectKind, payload any) error {
	item, err := record.NewQueueItem(subject, record.ActionCreate, payload, time.Now())
	if err != nil {
		return err
	}
	if _, err := e.db.Enqueue(ctx, item); err != nil {
		return err
	}

	e.mu.Lock()
	e.pending++
	st := e.statusLocked()
	e.mu.Unlock()
	e.publish(st)

	if e.mon.Online() {
		e.kickDrain()
	}
	return nil
}

// ForceSync drains the queue immediately, bypassing the periodic timer.
// Fails fast when offline.
func (e *Engine) ForceSync(ctx context.Context) error {
	if !e.mon.Online() {
		return ErrOffline
	}
	return e.Drain(ctx)
}

// Drain applies queued mutations to the remote backend in FIFO order,
// one at a time. Calling while offline is a no-op, not an error.
// Concurrent calls coalesce: if a drain is already in flight the call
// returns immediately. A connectivity loss mid-drain stops early and
// leaves the remainder queued.
func (e *Engine) Drain(ctx context.Context) error {
	if !e.mon.Online() {
		return nil
	}

	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		return nil
	}
	e.syncing = true
	st := e.statusLocked()
	e.mu.Unlock()
	e.publish(st)

	err := e.drain(ctx)
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

func (e *Engine) drain(ctx context.Context) error {
	items, err := e.db.Queue(ctx)
	if err != nil {
		return fmt.Errorf("failed to load queue: %w", err)
	}
	if len(items) > 0 {
		e.logger.Printf("draining %d pending mutation(s)", len(items))
	}

	for i := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !e.mon.Online() {
			e.logger.Printf("connectivity lost mid-drain, %d item(s) left queued", len(items)-i)
			return nil
		}
		e.applyOne(ctx, &items[i])
	}
	return nil
}

// applyOne delivers a single queued mutation and settles its fate:
// dequeue on success, retry bump on recoverable failure, drop at the
// ceiling or on an unreadable payload.
func (e *Engine) applyOne(ctx context.Context, item *record.QueueItem) {
	err := e.deliver(ctx, item)
	if err == nil {
		if derr := e.db.Dequeue(ctx, item.ID); derr != nil {
			e.logger.Printf("failed to dequeue %s: %v", item.ID, derr)
			return
		}
		e.markSubject(ctx, item, record.SyncSynced)
		e.decPending()
		return
	}

	var badPayload *payloadError
	if errors.As(err, &badPayload) {
		// The payload will never become readable. Drop immediately.
		e.dropItem(ctx, item, err)
		return
	}

	count, berr := e.db.BumpRetry(ctx, item.ID)
	if berr != nil {
		e.logger.Printf("failed to bump retry for %s: %v", item.ID, berr)
		return
	}
	if count >= retryCeiling {
		e.dropItem(ctx, item, err)
		return
	}
	e.logger.Printf("sync of %s %s failed (attempt %d of %d): %v",
		item.Subject, item.ID, count, retryCeiling, err)
}

// dropItem removes a mutation permanently, marks its record failed and
// records a visible error.
func (e *Engine) dropItem(ctx context.Context, item *record.QueueItem, cause error) {
	if derr := e.db.Dequeue(ctx, item.ID); derr != nil {
		e.logger.Printf("failed to drop %s: %v", item.ID, derr)
		return
	}
	e.markSubject(ctx, item, record.SyncFailed)
	e.decPending()
	msg := fmt.Sprintf("failed to sync %s after %d attempts: %v",
		item.Subject, retryCeiling, cause)
	e.logger.Print(msg)
	e.recordError(msg)
}

// payloadError marks a queue item whose payload cannot be decoded.
type payloadError struct {
	err error
}

func (p *payloadError) Error() string { return p.err.Error() }
func (p *payloadError) Unwrap() error { return p.err }

// deliver performs the remote call for one mutation, bounded by the
// per-call timeout.
func (e *Engine) deliver(ctx context.Context, item *record.QueueItem) error {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	switch item.Subject {
	case record.SubjectEntry:
		entry, err := item.Entry()
		if err != nil {
			return &payloadError{err: err}
		}
		return e.remote.AppendEntry(cctx, sheets.EntryRowOf(entry))
	case record.SubjectPerson:
		p, err := item.Person()
		if err != nil {
			return &payloadError{err: err}
		}
		return e.remote.AppendPerson(cctx, sheets.PersonRowOf(p))
	default:
		return &payloadError{err: fmt.Errorf("unknown queue subject %q", item.Subject)}
	}
}

// markSubject transitions the wrapped record's sync state. Best-effort;
// the queue decision already happened.
func (e *Engine) markSubject(ctx context.Context, item *record.QueueItem, state record.SyncState) {
	id, err := item.SubjectID()
	if err != nil {
		e.logger.Printf("cannot mark subject of %s: %v", item.ID, err)
		return
	}
	switch item.Subject {
	case record.SubjectEntry:
		err = e.db.SetEntrySyncState(ctx, id, state)
	case record.SubjectPerson:
		err = e.db.SetPersonSyncState(ctx, id, state)
	}
	if err != nil {
		e.logger.Printf("failed to mark %s %s as %s: %v", item.Subject, id, state, err)
	}
}

func (e *Engine) decPending() {
	e.mu.Lock()
	if e.pending > 0 {
		e.pending--
	}
	e.mu.Unlock()
}

// Requeue puts a previously failed record back on the queue for another
// round of attempts, resetting its sync state to pending.
func (e *Engine) Requeue(ctx context.Context, subject record.SubjectKind, id string) error {
	var payload any
	switch subject {
	case record.SubjectEntry:
		entry, err := e.db.EntryByID(ctx, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("entry %s not found", id)
		}
		if err := e.db.SetEntrySyncState(ctx, id, record.SyncPending); err != nil {
			return err
		}
		entry.SyncState = record.SyncPending
		payload = entry
	case record.SubjectPerson:
		p, err := e.db.PersonByID(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("person %s not found", id)
		}
		if err := e.db.SetPersonSyncState(ctx, id, record.SyncPending); err != nil {
			return err
		}
		p.SyncState = record.SyncPending
		payload = p
	default:
		return fmt.Errorf("unknown subject kind %q", subject)
	}
	return e.enqueue(ctx, subject, payload)
}

// Statistics aggregates local store contents.
func (e *Engine) Statistics(ctx context.Context) (*record.Statistics, error) {
	return e.db.Statistics(ctx)
}
