package statusd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/campusgate/gatelog/internal/record"
)

// fakeSource implements Source with mutable state.
type fakeSource struct {
	mu     sync.Mutex
	status record.Status
	subs   []func(record.Status)
}

func (f *fakeSource) Status() record.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status.Clone()
}

func (f *fakeSource) Statistics(ctx context.Context) (*record.Statistics, error) {
	return &record.Statistics{TotalEntries: 7}, nil
}

func (f *fakeSource) Subscribe(fn func(record.Status)) func() {
	f.mu.Lock()
	f.subs = append(f.subs, fn)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeSource) DeviceID() string { return "device_1_test" }

func (f *fakeSource) publish(st record.Status) {
	f.mu.Lock()
	f.status = st
	subs := append([]func(record.Status){}, f.subs...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(st)
	}
}

func startTestServer(t *testing.T) (*Server, *fakeSource, string) {
	t.Helper()
	source := &fakeSource{}
	srv := NewServer(source, Config{
		Addr:   "127.0.0.1:0",
		Logger: log.New(io.Discard, "", 0),
	})
	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	return srv, source, "http://" + srv.Addr()
}

func TestStatusEndpoint(t *testing.T) {
	_, source, base := startTestServer(t)
	source.publish(record.Status{Online: true, Pending: 3})

	resp, err := http.Get(base + "/status")
	if err != nil {
		t.Fatalf("GET /status failed: %v", err)
	}
	defer resp.Body.Close()

	var st record.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if !st.Online || st.Pending != 3 {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestStatsEndpoint(t *testing.T) {
	_, _, base := startTestServer(t)

	resp, err := http.Get(base + "/stats")
	if err != nil {
		t.Fatalf("GET /stats failed: %v", err)
	}
	defer resp.Body.Close()

	var stats record.Statistics
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.TotalEntries != 7 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, _, base := startTestServer(t)

	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode health: %v", err)
	}
	if body["status"] != "ok" || body["device"] != "device_1_test" {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestWebSocketReceivesSnapshots(t *testing.T) {
	srv, source, _ := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/ws", srv.Addr()), nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// First frame is the connect-time snapshot.
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read welcome frame: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("bad welcome frame: %v", err)
	}

	// A published update arrives as a second frame.
	source.publish(record.Status{Online: true, Pending: 9})
	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read update frame: %v", err)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("bad update frame: %v", err)
	}
	if !msg.Status.Online || msg.Status.Pending != 9 {
		t.Errorf("unexpected update: %+v", msg.Status)
	}
}
