// Package scanwatch ingests scanner drop files. Kiosk scanner software
// writes one JSON payload per file into a drop directory; the watcher
// picks each file up, records the attendance event through the sync
// engine, and removes the file. Files that do not parse are renamed
// with a .bad suffix so an operator can inspect them.
package scanwatch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/campusgate/gatelog/internal/record"
)

// Recorder is the slice of the sync engine the watcher needs.
type Recorder interface {
	AddEntry(ctx context.Context, entry *record.Entry) (string, error)
}

// Watcher tails a drop directory for scanner payload files.
type Watcher struct {
	dir      string
	recorder Recorder
	logger   *log.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending map[string]time.Time
	running bool
}

// New creates a watcher over dir. The directory is created if absent.
func New(dir string, recorder Recorder, logger *log.Logger) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create drop directory %s: %w", dir, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[scanwatch] ", log.LstdFlags)
	}
	return &Watcher{
		dir:      dir,
		recorder: recorder,
		logger:   logger,
		debounce: 200 * time.Millisecond,
		watcher:  fw,
		done:     make(chan struct{}),
		pending:  make(map[string]time.Time),
	}, nil
}

// Start begins watching. Files already present in the drop directory
// are ingested first so a crash never strands payloads.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch drop directory %s: %w", w.dir, err)
	}

	w.sweepExisting()

	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop stops watching and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()
	return nil
}

// sweepExisting ingests payload files left over from a previous run.
func (w *Watcher) sweepExisting() {
	matches, err := filepath.Glob(filepath.Join(w.dir, "*.json"))
	if err != nil {
		w.logger.Printf("failed to scan drop directory: %v", err)
		return
	}
	for _, path := range matches {
		w.ingest(path)
	}
}

// processEvents collects create/write events into a debounce map and
// ingests each file once its events settle. Scanner software writes in
// bursts; the debounce window keeps partial writes out.
func (w *Watcher) processEvents() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.mu.Lock()
				w.pending[event.Name] = time.Now()
				w.mu.Unlock()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("watch error: %v", err)

		case now := <-ticker.C:
			for _, path := range w.settled(now) {
				w.ingest(path)
			}
		}
	}
}

// settled drains debounce entries older than the window.
func (w *Watcher) settled(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			out = append(out, path)
			delete(w.pending, path)
		}
	}
	return out
}

// ingest parses one drop file, records the event, and removes the file.
// A parse failure renames the file out of the way instead.
func (w *Watcher) ingest(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		w.logger.Printf("failed to read %s: %v", path, err)
		return
	}

	payload, err := record.ParseScanPayload(data)
	if err != nil {
		w.logger.Printf("rejecting %s: %v", filepath.Base(path), err)
		w.quarantine(path)
		return
	}

	entry := payload.ToEntry(time.Now())
	id, err := w.recorder.AddEntry(context.Background(), entry)
	if err != nil {
		w.logger.Printf("failed to record scan from %s: %v", filepath.Base(path), err)
		w.quarantine(path)
		return
	}
	w.logger.Printf("recorded %s for %q as %s", entry.Kind, entry.PersonName, id)

	if err := os.Remove(path); err != nil {
		w.logger.Printf("failed to remove ingested file %s: %v", path, err)
	}
}

// quarantine renames a rejected file to <name>.bad so it stops matching
// the watch filter but stays inspectable.
func (w *Watcher) quarantine(path string) {
	if err := os.Rename(path, path+".bad"); err != nil {
		w.logger.Printf("failed to quarantine %s: %v", path, err)
	}
}
