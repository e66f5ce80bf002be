package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/campusgate/gatelog/internal/netmon"
	"github.com/campusgate/gatelog/internal/record"
	"github.com/campusgate/gatelog/internal/sheets"
	"github.com/campusgate/gatelog/internal/store"
)

// fakeRemote is a scriptable in-memory backend.
type fakeRemote struct {
	mu       sync.Mutex
	failNext int // fail this many Append calls, then succeed
	failErr  error
	calls    int
	entries  []sheets.EntryRow
	people   []sheets.PersonRow

	// Pre-loaded read results for Download tests.
	remoteEntries []sheets.EntryRow
	remotePeople  []sheets.PersonRow

	// When set, Append blocks until released.
	started chan struct{}
	release chan struct{}
}

func (f *fakeRemote) append(do func()) error {
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failNext > 0 {
		f.failNext--
		if f.failErr != nil {
			return f.failErr
		}
		return fmt.Errorf("%w: injected failure", sheets.ErrUnavailable)
	}
	do()
	return nil
}

func (f *fakeRemote) AppendEntry(ctx context.Context, row sheets.EntryRow) error {
	return f.append(func() { f.entries = append(f.entries, row) })
}

func (f *fakeRemote) AppendPerson(ctx context.Context, row sheets.PersonRow) error {
	return f.append(func() { f.people = append(f.people, row) })
}

func (f *fakeRemote) Entries(ctx context.Context) ([]sheets.EntryRow, error) {
	return f.remoteEntries, nil
}

func (f *fakeRemote) People(ctx context.Context) ([]sheets.PersonRow, error) {
	return f.remotePeople, nil
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeRemote) deliveredEntries() []sheets.EntryRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sheets.EntryRow, len(f.entries))
	copy(out, f.entries)
	return out
}

func setupTestStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	return db
}

func testConfig() Config {
	return Config{
		SyncInterval: 50 * time.Millisecond,
		CallTimeout:  time.Second,
		Logger:       log.New(io.Discard, "", 0),
	}
}

func newTestEngine(t *testing.T, db *store.DB, remote sheets.Client, online bool) (*Engine, *netmon.Manual) {
	t.Helper()
	mon := netmon.NewManual(online)
	t.Cleanup(mon.Close)
	eng, err := New(db, remote, mon, testConfig())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return eng, mon
}

func addEntry(t *testing.T, eng *Engine, name string) string {
	t.Helper()
	id, err := eng.AddEntry(context.Background(), &record.Entry{
		Kind:       record.KindEntry,
		PersonName: name,
	})
	if err != nil {
		t.Fatalf("AddEntry failed: %v", err)
	}
	return id
}

func entryState(t *testing.T, db *store.DB, id string) record.SyncState {
	t.Helper()
	e, err := db.EntryByID(context.Background(), id)
	if err != nil {
		t.Fatalf("EntryByID failed: %v", err)
	}
	if e == nil {
		t.Fatalf("entry %s not found", id)
	}
	return e.SyncState
}

func TestAddEntryOfflineStaysQueued(t *testing.T) {
	db := setupTestStore(t)
	remote := &fakeRemote{}
	eng, _ := newTestEngine(t, db, remote, false)

	id := addEntry(t, eng, "Asha")

	if got := entryState(t, db, id); got != record.SyncPending {
		t.Errorf("expected pending, got %q", got)
	}
	if st := eng.Status(); st.Pending != 1 || st.Online || st.Syncing {
		t.Errorf("unexpected status: %+v", st)
	}
	if remote.callCount() != 0 {
		t.Errorf("expected no remote calls while offline, got %d", remote.callCount())
	}
}

func TestForceSyncOffline(t *testing.T) {
	db := setupTestStore(t)
	remote := &fakeRemote{}
	eng, _ := newTestEngine(t, db, remote, false)

	if err := eng.ForceSync(context.Background()); !errors.Is(err, ErrOffline) {
		t.Errorf("expected ErrOffline, got %v", err)
	}

	// Drain itself treats offline as a quiet no-op; only the explicit
	// user-facing ForceSync reports the condition.
	addEntry(t, eng, "Asha")
	if err := eng.Drain(context.Background()); err != nil {
		t.Errorf("expected nil from offline drain, got %v", err)
	}
	if remote.callCount() != 0 {
		t.Errorf("expected no remote calls while offline, got %d", remote.callCount())
	}
	if n, _ := db.QueueLen(context.Background()); n != 1 {
		t.Errorf("expected item left queued, got %d", n)
	}
}

func TestDrainDeliversFIFO(t *testing.T) {
	db := setupTestStore(t)
	remote := &fakeRemote{}
	eng, mon := newTestEngine(t, db, remote, false)

	first := addEntry(t, eng, "first")
	time.Sleep(2 * time.Millisecond) // distinct enqueue timestamps
	second := addEntry(t, eng, "second")

	mon.Set(true)
	if err := eng.ForceSync(context.Background()); err != nil {
		t.Fatalf("ForceSync failed: %v", err)
	}

	delivered := remote.deliveredEntries()
	if len(delivered) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(delivered))
	}
	if delivered[0].PersonName != "first" || delivered[1].PersonName != "second" {
		t.Errorf("expected FIFO delivery, got %q then %q",
			delivered[0].PersonName, delivered[1].PersonName)
	}

	for _, id := range []string{first, second} {
		if got := entryState(t, db, id); got != record.SyncSynced {
			t.Errorf("entry %s: expected synced, got %q", id, got)
		}
	}

	st := eng.Status()
	if st.Pending != 0 {
		t.Errorf("expected empty queue, got %d pending", st.Pending)
	}
	if st.LastSync == nil {
		t.Error("expected last sync stamped")
	}
	if raw, _ := db.Setting(context.Background(), store.SettingLastSync); raw == "" {
		t.Error("expected last sync persisted")
	}
}

func TestRetryCeilingDropsAndMarksFailed(t *testing.T) {
	db := setupTestStore(t)
	remote := &fakeRemote{failNext: 100}
	eng, _ := newTestEngine(t, db, remote, true)

	id := addEntry(t, eng, "Asha")
	// The enqueue kick is not started (no Start call), so the drains
	// below are the only delivery attempts.

	for round := 1; round <= 2; round++ {
		if err := eng.ForceSync(context.Background()); err != nil {
			t.Fatalf("ForceSync round %d failed: %v", round, err)
		}
		items, err := db.Queue(context.Background())
		if err != nil {
			t.Fatalf("Queue failed: %v", err)
		}
		if len(items) != 1 {
			t.Fatalf("round %d: expected item still queued, got %d items", round, len(items))
		}
		if items[0].RetryCount != round {
			t.Errorf("round %d: expected retry count %d, got %d", round, round, items[0].RetryCount)
		}
		if got := entryState(t, db, id); got != record.SyncPending {
			t.Errorf("round %d: expected still pending, got %q", round, got)
		}
	}

	// Third failure hits the ceiling.
	if err := eng.ForceSync(context.Background()); err != nil {
		t.Fatalf("final ForceSync failed: %v", err)
	}
	if n, _ := db.QueueLen(context.Background()); n != 0 {
		t.Errorf("expected item dropped at ceiling, %d still queued", n)
	}
	if got := entryState(t, db, id); got != record.SyncFailed {
		t.Errorf("expected failed, got %q", got)
	}
	if remote.callCount() != 3 {
		t.Errorf("expected exactly 3 delivery attempts, got %d", remote.callCount())
	}

	errs := eng.Errors()
	if len(errs) != 1 || !strings.Contains(errs[0], "after 3 attempts") {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestRetryCountSurvivesRestart(t *testing.T) {
	db := setupTestStore(t)
	remote := &fakeRemote{failNext: 100}
	eng, _ := newTestEngine(t, db, remote, true)

	id := addEntry(t, eng, "Asha")
	if err := eng.ForceSync(context.Background()); err != nil {
		t.Fatalf("ForceSync failed: %v", err)
	}

	// A fresh engine over the same store must continue the count, not
	// reset it.
	remote2 := &fakeRemote{failNext: 100}
	eng2, _ := newTestEngine(t, db, remote2, true)
	if st := eng2.Status(); st.Pending != 1 {
		t.Fatalf("expected restored pending count 1, got %d", st.Pending)
	}

	for i := 0; i < 2; i++ {
		if err := eng2.ForceSync(context.Background()); err != nil {
			t.Fatalf("ForceSync failed: %v", err)
		}
	}
	if n, _ := db.QueueLen(context.Background()); n != 0 {
		t.Errorf("expected drop after 3 total attempts, %d still queued", n)
	}
	if got := entryState(t, db, id); got != record.SyncFailed {
		t.Errorf("expected failed, got %q", got)
	}
	if remote2.callCount() != 2 {
		t.Errorf("expected 2 attempts on the new engine, got %d", remote2.callCount())
	}
}

func TestPersonOfflineThenOnlineDrain(t *testing.T) {
	db := setupTestStore(t)
	remote := &fakeRemote{}
	eng, mon := newTestEngine(t, db, remote, false)

	id, err := eng.AddPerson(context.Background(), &record.Person{
		Name:         "Asha Patel",
		EnrollmentNo: "EN-100",
		Course:       "B.E",
	})
	if err != nil {
		t.Fatalf("AddPerson failed: %v", err)
	}
	if !strings.HasPrefix(id, "person_") {
		t.Errorf("expected minted person id, got %q", id)
	}

	if n, _ := db.QueueLen(context.Background()); n != 1 {
		t.Fatalf("expected 1 queued mutation, got %d", n)
	}
	p, err := db.PersonByID(context.Background(), id)
	if err != nil || p == nil {
		t.Fatalf("PersonByID failed: %v (%v)", p, err)
	}
	if p.SyncState != record.SyncPending {
		t.Errorf("expected pending while offline, got %q", p.SyncState)
	}

	mon.Set(true)
	if err := eng.ForceSync(context.Background()); err != nil {
		t.Fatalf("ForceSync failed: %v", err)
	}

	remote.mu.Lock()
	people := append([]sheets.PersonRow{}, remote.people...)
	remote.mu.Unlock()
	if len(people) != 1 || people[0].ID != id || people[0].Name != "Asha Patel" {
		t.Fatalf("unexpected delivered people: %+v", people)
	}

	p, err = db.PersonByID(context.Background(), id)
	if err != nil || p == nil {
		t.Fatalf("PersonByID failed: %v (%v)", p, err)
	}
	if p.SyncState != record.SyncSynced {
		t.Errorf("expected synced after drain, got %q", p.SyncState)
	}

	st := eng.Status()
	if st.Pending != 0 {
		t.Errorf("expected empty queue, got %d pending", st.Pending)
	}
	if st.LastSync == nil {
		t.Error("expected last sync stamped")
	}
}

func TestStatusIdempotent(t *testing.T) {
	db := setupTestStore(t)
	eng, mon := newTestEngine(t, db, &fakeRemote{}, false)

	addEntry(t, eng, "Asha")
	mon.Set(true)

	first := eng.Status()
	second := eng.Status()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated reads differ: %+v vs %+v", first, second)
	}

	// Snapshots are copies; mutating one must not leak into the engine.
	second.Errors = append(second.Errors, "local mutation")
	if got := eng.Status(); len(got.Errors) != 0 {
		t.Errorf("snapshot mutation leaked into engine state: %v", got.Errors)
	}
}

func TestOneFailureDoesNotBlockOthers(t *testing.T) {
	db := setupTestStore(t)
	remote := &fakeRemote{failNext: 1}
	eng, mon := newTestEngine(t, db, remote, false)

	first := addEntry(t, eng, "failing")
	time.Sleep(2 * time.Millisecond)
	second := addEntry(t, eng, "passing")

	mon.Set(true)
	if err := eng.ForceSync(context.Background()); err != nil {
		t.Fatalf("ForceSync failed: %v", err)
	}

	if got := entryState(t, db, first); got != record.SyncPending {
		t.Errorf("failing entry: expected pending, got %q", got)
	}
	if got := entryState(t, db, second); got != record.SyncSynced {
		t.Errorf("passing entry: expected synced, got %q", got)
	}
	if n, _ := db.QueueLen(context.Background()); n != 1 {
		t.Errorf("expected only the failing item queued, got %d", n)
	}
}

func TestDrainSingleFlight(t *testing.T) {
	db := setupTestStore(t)
	remote := &fakeRemote{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	eng, _ := newTestEngine(t, db, remote, true)

	addEntry(t, eng, "Asha")

	done := make(chan error, 1)
	go func() { done <- eng.Drain(context.Background()) }()
	<-remote.started

	// A second drain while one is in flight must coalesce, not deliver
	// the same item twice.
	if err := eng.Drain(context.Background()); err != nil {
		t.Errorf("coalesced drain returned error: %v", err)
	}
	if !eng.Status().Syncing {
		t.Error("expected syncing status during in-flight drain")
	}

	close(remote.release)
	if err := <-done; err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if remote.callCount() != 1 {
		t.Errorf("expected single delivery, got %d", remote.callCount())
	}
	if eng.Status().Syncing {
		t.Error("expected syncing cleared after drain")
	}
}

func TestReconnectTriggersDrain(t *testing.T) {
	db := setupTestStore(t)
	remote := &fakeRemote{}
	eng, mon := newTestEngine(t, db, remote, false)

	addEntry(t, eng, "Asha")

	eng.Start()
	defer eng.Stop()

	mon.Set(true)

	deadline := time.After(2 * time.Second)
	for eng.Status().Pending != 0 {
		select {
		case <-deadline:
			t.Fatal("queue not drained after reconnect")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(remote.deliveredEntries()) != 1 {
		t.Errorf("expected 1 delivery, got %d", len(remote.deliveredEntries()))
	}
}

func TestAddWhileOnlineSyncsInBackground(t *testing.T) {
	db := setupTestStore(t)
	remote := &fakeRemote{}
	eng, _ := newTestEngine(t, db, remote, true)

	eng.Start()
	defer eng.Stop()

	id := addEntry(t, eng, "Asha")

	deadline := time.After(2 * time.Second)
	for entryState(t, db, id) != record.SyncSynced {
		select {
		case <-deadline:
			t.Fatal("entry not synced in background")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestDownload(t *testing.T) {
	db := setupTestStore(t)
	remote := &fakeRemote{
		remoteEntries: []sheets.EntryRow{
			{Date: "01/03/2025", Time: "08:00:00", Kind: "entry", PersonName: "Remote"},
			{PersonName: ""}, // blank sheet row, skipped
		},
		remotePeople: []sheets.PersonRow{
			{ID: "person_1_remote", Name: "Remote Person"},
		},
	}
	eng, _ := newTestEngine(t, db, remote, true)

	addEntry(t, eng, "LocalOnly")

	if err := eng.Download(context.Background()); err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	entries, err := db.Entries(context.Background(), store.EntryFilter{})
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].PersonName != "Remote" {
		t.Fatalf("expected local entries replaced, got %+v", entries)
	}
	if !strings.HasPrefix(entries[0].ID, "entry_") {
		t.Errorf("expected fresh local id, got %q", entries[0].ID)
	}
	if entries[0].SyncState != record.SyncSynced {
		t.Errorf("expected synced, got %q", entries[0].SyncState)
	}

	people, err := db.People(context.Background(), store.PersonFilter{})
	if err != nil {
		t.Fatalf("People failed: %v", err)
	}
	if len(people) != 1 || people[0].ID != "person_1_remote" {
		t.Errorf("expected remote person id kept, got %+v", people)
	}

	// The undelivered local mutation survives the download.
	if n, _ := db.QueueLen(context.Background()); n != 1 {
		t.Errorf("expected queue preserved, got %d items", n)
	}

	// A completed download counts as a sync: it stamps and persists
	// last-sync just like a drain.
	if eng.Status().LastSync == nil {
		t.Error("expected last sync stamped after download")
	}
	if raw, _ := db.Setting(context.Background(), store.SettingLastSync); raw == "" {
		t.Error("expected last sync persisted after download")
	}
}

func TestDownloadOffline(t *testing.T) {
	db := setupTestStore(t)
	eng, _ := newTestEngine(t, db, &fakeRemote{}, false)

	if err := eng.Download(context.Background()); !errors.Is(err, ErrOffline) {
		t.Errorf("expected ErrOffline, got %v", err)
	}
}

func TestSubscribe(t *testing.T) {
	db := setupTestStore(t)
	eng, _ := newTestEngine(t, db, &fakeRemote{}, false)

	var mu sync.Mutex
	var got []record.Status
	unsubscribe := eng.Subscribe(func(st record.Status) {
		mu.Lock()
		got = append(got, st)
		mu.Unlock()
	})

	mu.Lock()
	if len(got) != 1 {
		t.Fatalf("expected immediate snapshot, got %d", len(got))
	}
	mu.Unlock()

	addEntry(t, eng, "Asha")

	mu.Lock()
	last := got[len(got)-1]
	n := len(got)
	mu.Unlock()
	if last.Pending != 1 {
		t.Errorf("expected pending 1 in published snapshot, got %d", last.Pending)
	}

	unsubscribe()
	addEntry(t, eng, "Ravi")

	mu.Lock()
	defer mu.Unlock()
	if len(got) != n {
		t.Error("expected no snapshots after unsubscribe")
	}
}

func TestErrorRingEviction(t *testing.T) {
	db := setupTestStore(t)
	cfg := testConfig()
	cfg.ErrorCap = 2
	mon := netmon.NewManual(true)
	t.Cleanup(mon.Close)
	eng, err := New(db, &fakeRemote{failNext: 100}, mon, cfg)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	for _, name := range []string{"one", "two", "three"} {
		addEntry(t, eng, name)
		time.Sleep(2 * time.Millisecond)
	}
	// Three rounds push every item to the ceiling.
	for i := 0; i < 3; i++ {
		if err := eng.ForceSync(context.Background()); err != nil {
			t.Fatalf("ForceSync failed: %v", err)
		}
	}

	errs := eng.Errors()
	if len(errs) != 2 {
		t.Fatalf("expected ring capped at 2, got %d", len(errs))
	}

	eng.ClearErrors()
	if len(eng.Errors()) != 0 {
		t.Error("expected errors cleared")
	}
}

func TestMalformedPayloadDroppedImmediately(t *testing.T) {
	db := setupTestStore(t)
	remote := &fakeRemote{}
	eng, _ := newTestEngine(t, db, remote, true)

	item := &record.QueueItem{
		Subject:    record.SubjectEntry,
		Action:     record.ActionCreate,
		Payload:    []byte(`{"id":42}`),
		EnqueuedAt: time.Now().UnixMilli(),
	}
	if _, err := db.Enqueue(context.Background(), item); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := eng.ForceSync(context.Background()); err != nil {
		t.Fatalf("ForceSync failed: %v", err)
	}
	if n, _ := db.QueueLen(context.Background()); n != 0 {
		t.Errorf("expected unreadable item dropped, %d still queued", n)
	}
	if remote.callCount() != 0 {
		t.Errorf("expected no remote calls for unreadable payload, got %d", remote.callCount())
	}
	if len(eng.Errors()) == 0 {
		t.Error("expected a recorded error for the dropped item")
	}
}

func TestDeviceIDStable(t *testing.T) {
	db := setupTestStore(t)
	eng, _ := newTestEngine(t, db, &fakeRemote{}, false)

	id := eng.DeviceID()
	if !strings.HasPrefix(id, "device_") {
		t.Errorf("unexpected device id %q", id)
	}

	eng2, _ := newTestEngine(t, db, &fakeRemote{}, false)
	if eng2.DeviceID() != id {
		t.Errorf("expected stable device id, got %q then %q", id, eng2.DeviceID())
	}
}
