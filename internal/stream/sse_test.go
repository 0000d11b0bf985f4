package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jyannick/OrbitPlot/internal/ephemeris"
	"github.com/jyannick/OrbitPlot/internal/maneuver"
	"github.com/jyannick/OrbitPlot/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// stubComputer returns a two-row table, or err when set.
type stubComputer struct {
	err error
}

func (s stubComputer) Generate(_ context.Context, _, _ string, _, step time.Duration, _ []maneuver.Maneuver) (*ephemeris.Table, error) {
	if s.err != nil {
		return nil, s.err
	}
	t0 := time.Date(2018, 10, 31, 22, 19, 14, 0, time.UTC)
	return &ephemeris.Table{
		Satellite: 41036,
		Epoch:     t0,
		Step:      step,
		Rows:      []ephemeris.Row{{Time: t0, A: 42164e3}, {Time: t0.Add(step), A: 42165e3}},
	}, nil
}

type sseEvent struct {
	name string
	id   string
	data string
}

// readEvent reads the next named event, skipping comments and retry lines.
func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("reading stream: %v", err)
		}
		line = strings.TrimSuffix(line, "\n")
		switch {
		case line == "":
			if ev.name != "" {
				return ev
			}
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "id: "):
			ev.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		case line == ":" || strings.HasPrefix(line, "retry: "):
		default:
			t.Fatalf("unexpected SSE line %q", line)
		}
	}
}

func startServer(t *testing.T, c session.Computer, cfg Config) (*httptest.Server, *session.Manager) {
	t.Helper()
	mgr := session.NewManager(c, 8, testLogger())
	h := NewHandler(mgr, cfg, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/sessions/stream", h.HandleSession)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		mgr.CloseAll()
	})
	return srv, mgr
}

func openStream(t *testing.T, url string) (*http.Response, *bufio.Reader) {
	t.Helper()
	resp, err := http.Get(url + "/api/v1/sessions/stream")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	return resp, bufio.NewReader(resp.Body)
}

func TestSessionStream(t *testing.T) {
	srv, mgr := startServer(t, stubComputer{}, Config{KeepaliveInterval: time.Second})
	resp, r := openStream(t, srv.URL)

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", cc)
	}

	ev := readEvent(t, r)
	if ev.name != "session" {
		t.Fatalf("first event = %q, want session", ev.name)
	}
	var hello sessionMessage
	if err := json.Unmarshal([]byte(ev.data), &hello); err != nil {
		t.Fatal(err)
	}
	if hello.ID == "" || hello.State != "idle" {
		t.Fatalf("session message = %+v", hello)
	}

	sess, err := mgr.Get(hello.ID)
	if err != nil {
		t.Fatalf("session %q not registered: %v", hello.ID, err)
	}
	if _, err := sess.Recompute(session.Request{Duration: 2 * time.Minute, Step: time.Minute}); err != nil {
		t.Fatal(err)
	}

	if ev := readEvent(t, r); ev.name != "state" || !strings.Contains(ev.data, `"computing"`) || ev.id != "1" {
		t.Fatalf("event = %+v, want state computing with id 1", ev)
	}
	ev = readEvent(t, r)
	if ev.name != "ephemeris" {
		t.Fatalf("event = %q, want ephemeris", ev.name)
	}
	var msg struct {
		Generation uint64             `json:"generation"`
		Ephemeris  ephemeris.Document `json:"ephemeris"`
	}
	if err := json.Unmarshal([]byte(ev.data), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Generation != 1 || msg.Ephemeris.Rows != 2 || len(msg.Ephemeris.Columns.A) != 2 {
		t.Errorf("ephemeris message = %+v", msg)
	}
	if ev := readEvent(t, r); ev.name != "state" || !strings.Contains(ev.data, `"idle"`) {
		t.Fatalf("event = %+v, want state idle", ev)
	}

	// Disconnecting closes the session.
	resp.Body.Close()
	deadline := time.Now().Add(2 * time.Second)
	for mgr.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session still open after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSessionStreamError(t *testing.T) {
	failure := &ephemeris.ParseError{Err: errors.New("line 1: bad checksum")}
	srv, mgr := startServer(t, stubComputer{err: failure}, Config{})
	resp, r := openStream(t, srv.URL)
	defer resp.Body.Close()

	var hello sessionMessage
	json.Unmarshal([]byte(readEvent(t, r).data), &hello)
	sess, err := mgr.Get(hello.ID)
	if err != nil {
		t.Fatal(err)
	}
	sess.Recompute(session.Request{})

	readEvent(t, r) // computing
	ev := readEvent(t, r)
	if ev.name != "error" {
		t.Fatalf("event = %q, want error", ev.name)
	}
	var msg errorMessage
	if err := json.Unmarshal([]byte(ev.data), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Kind != ephemeris.KindParse || !strings.Contains(msg.Error, "bad checksum") {
		t.Errorf("error message = %+v", msg)
	}
}

func TestKeepalive(t *testing.T) {
	srv, _ := startServer(t, stubComputer{}, Config{KeepaliveInterval: 20 * time.Millisecond})
	resp, r := openStream(t, srv.URL)
	defer resp.Body.Close()
	readEvent(t, r)

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if line == ":\n" {
			return
		}
	}
}

func TestEventPayload(t *testing.T) {
	tests := []struct {
		name     string
		ev       session.Event
		wantName string
		wantKey  string
	}{
		{"state", session.Event{Type: session.EventState, Generation: 3, State: session.Computing}, "state", `"state":"computing"`},
		{"ephemeris", session.Event{Type: session.EventEphemeris, Table: &ephemeris.Table{}}, "ephemeris", `"ephemeris":{`},
		{"typed error", session.Event{Type: session.EventError, Err: &ephemeris.PropagationError{Err: errors.New("x")}}, "error", `"kind":"propagation"`},
		{"other error", session.Event{Type: session.EventError, Err: errors.New("x")}, "error", `"kind":"internal"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, payload := eventPayload(tt.ev)
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			data, err := json.Marshal(payload)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(data), tt.wantKey) {
				t.Errorf("payload %s missing %s", data, tt.wantKey)
			}
		})
	}
}

func TestRateLimiting(t *testing.T) {
	limiter := newStreamLimiter(3, 5)

	var releases []func()
	for i := 0; i < 3; i++ {
		release, ok := limiter.acquire("10.0.0.1")
		if !ok {
			t.Fatalf("acquire %d should succeed", i+1)
		}
		releases = append(releases, release)
	}
	if _, ok := limiter.acquire("10.0.0.1"); ok {
		t.Error("acquire beyond per-IP limit should fail")
	}

	r2, ok := limiter.acquire("10.0.0.2")
	if !ok {
		t.Fatal("different IP should not be rate limited")
	}
	if _, ok := limiter.acquire("10.0.0.3"); !ok {
		t.Fatal("fifth stream should fit the global limit")
	}
	if _, ok := limiter.acquire("10.0.0.4"); ok {
		t.Error("acquire beyond global limit should fail")
	}

	releases[0]()
	releases[0]()
	if c := limiter.count("10.0.0.1"); c != 2 {
		t.Errorf("count after double release = %d, want 2", c)
	}
	r2()
	if c := limiter.count("10.0.0.2"); c != 0 {
		t.Errorf("count = %d, want 0", c)
	}
}

func TestRateLimitingConcurrent(t *testing.T) {
	limiter := newStreamLimiter(100, 0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if release, ok := limiter.acquire("10.0.0.1"); ok {
				defer release()
				time.Sleep(10 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if c := limiter.count("10.0.0.1"); c != 0 {
		t.Errorf("count after all released = %d, want 0", c)
	}
}

func TestRateLimitHTTPResponse(t *testing.T) {
	srv, _ := startServer(t, stubComputer{}, Config{MaxConcurrentPerIP: 1})
	resp, r := openStream(t, srv.URL)
	defer resp.Body.Close()
	readEvent(t, r)

	second, err := http.Get(srv.URL + "/api/v1/sessions/stream")
	if err != nil {
		t.Fatal(err)
	}
	defer second.Body.Close()
	if second.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", second.StatusCode, http.StatusTooManyRequests)
	}
	if second.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}
