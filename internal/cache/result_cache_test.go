package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/jyannick/OrbitPlot/internal/ephemeris"
	"github.com/jyannick/OrbitPlot/internal/maneuver"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// countingGenerator returns duration/step empty rows and counts calls.
type countingGenerator struct {
	calls atomic.Int32
	err   error
}

func (g *countingGenerator) Generate(_ context.Context, _, _ string, duration, step time.Duration, _ []maneuver.Maneuver) (*ephemeris.Table, error) {
	g.calls.Add(1)
	if g.err != nil {
		return nil, g.err
	}
	return &ephemeris.Table{Step: step, Rows: make([]ephemeris.Row, int(duration/step))}, nil
}

func newTestCache(g Generator, cfg Config) (*ResultCache, *time.Time) {
	c := New(g, cfg, testLogger())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestResultCacheHitsAndExpiry(t *testing.T) {
	g := &countingGenerator{}
	c, now := newTestCache(g, Config{TTL: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		table, err := c.Generate(ctx, "l1", "l2", time.Hour, time.Minute, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(table.Rows) != 60 {
			t.Errorf("rows = %d, want 60", len(table.Rows))
		}
	}
	if got := g.calls.Load(); got != 1 {
		t.Errorf("generator called %d times, want 1", got)
	}

	stats := c.Stats()
	if stats.Entries != 1 || stats.Rows != 60 || stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("stats = %+v", stats)
	}

	*now = now.Add(2 * time.Minute)
	if _, err := c.Generate(ctx, "l1", "l2", time.Hour, time.Minute, nil); err != nil {
		t.Fatal(err)
	}
	if got := g.calls.Load(); got != 2 {
		t.Errorf("generator called %d times after expiry, want 2", got)
	}
	if stats := c.Stats(); stats.Entries != 1 || stats.Rows != 60 {
		t.Errorf("replacing an expired entry: stats = %+v", stats)
	}
}

func TestResultCacheErrorsNotCached(t *testing.T) {
	g := &countingGenerator{err: errors.New("boom")}
	c, _ := newTestCache(g, Config{})

	for i := 0; i < 2; i++ {
		if _, err := c.Generate(context.Background(), "l1", "l2", time.Hour, time.Minute, nil); err == nil {
			t.Fatal("expected error")
		}
	}
	if got := g.calls.Load(); got != 2 {
		t.Errorf("generator called %d times, want 2", got)
	}
	if c.Stats().Entries != 0 {
		t.Error("failed generation was cached")
	}
}

func TestResultCacheRowBudget(t *testing.T) {
	g := &countingGenerator{}
	c, now := newTestCache(g, Config{MaxRows: 100})
	ctx := context.Background()

	// 60 rows, then 30 rows: both fit.
	c.Generate(ctx, "a", "", time.Hour, time.Minute, nil)
	*now = now.Add(time.Second)
	c.Generate(ctx, "b", "", 30*time.Minute, time.Minute, nil)
	if s := c.Stats(); s.Entries != 2 || s.Rows != 90 {
		t.Fatalf("stats = %+v", s)
	}

	// 40 more rows evict the oldest entry.
	*now = now.Add(time.Second)
	c.Generate(ctx, "c", "", 40*time.Minute, time.Minute, nil)
	s := c.Stats()
	if s.Entries != 2 || s.Rows != 70 || s.Evictions != 1 {
		t.Errorf("after eviction: stats = %+v", s)
	}
	if c.Get(Key("a", "", time.Hour, time.Minute, nil)) != nil {
		t.Error("oldest entry survived eviction")
	}

	// A table larger than the budget is returned but not stored.
	table, err := c.Generate(ctx, "d", "", 3*time.Hour, time.Minute, nil)
	if err != nil || len(table.Rows) != 180 {
		t.Fatalf("oversized generation: rows = %v, err = %v", table, err)
	}
	if c.Stats().Entries != 2 {
		t.Error("oversized table was cached")
	}
}

func TestResultCacheEvictExpired(t *testing.T) {
	c, now := newTestCache(&countingGenerator{}, Config{TTL: time.Minute})
	ctx := context.Background()

	c.Generate(ctx, "a", "", time.Hour, time.Minute, nil)
	*now = now.Add(30 * time.Second)
	c.Generate(ctx, "b", "", time.Hour, time.Minute, nil)

	*now = now.Add(45 * time.Second)
	if removed := c.evictExpired(); removed != 1 {
		t.Errorf("evicted %d, want 1", removed)
	}
	if s := c.Stats(); s.Entries != 1 || s.Rows != 60 {
		t.Errorf("stats = %+v", s)
	}
}

func TestResultCacheStartStops(t *testing.T) {
	c := New(&countingGenerator{}, Config{SweepInterval: time.Millisecond}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestKey(t *testing.T) {
	date := time.Date(2018, 11, 1, 12, 0, 0, 0, time.UTC)
	burn := func(frame maneuver.Frame, dv float64) maneuver.Maneuver {
		return maneuver.Maneuver{Date: date, Frame: frame, DeltaV: r3.Vec{X: dv}, Isp: 300}
	}
	base := Key("l1", "l2", time.Hour, time.Minute, []maneuver.Maneuver{burn(maneuver.FrameTNW, 1), burn(maneuver.FrameQSW, 2)})

	tests := []struct {
		name string
		key  string
		same bool
	}{
		{"identical", Key("l1", "l2", time.Hour, time.Minute, []maneuver.Maneuver{burn(maneuver.FrameTNW, 1), burn(maneuver.FrameQSW, 2)}), true},
		{"maneuver order", Key("l1", "l2", time.Hour, time.Minute, []maneuver.Maneuver{burn(maneuver.FrameQSW, 2), burn(maneuver.FrameTNW, 1)}), false},
		{"delta-v", Key("l1", "l2", time.Hour, time.Minute, []maneuver.Maneuver{burn(maneuver.FrameTNW, 1.5), burn(maneuver.FrameQSW, 2)}), false},
		{"step", Key("l1", "l2", time.Hour, 30*time.Second, []maneuver.Maneuver{burn(maneuver.FrameTNW, 1), burn(maneuver.FrameQSW, 2)}), false},
		{"padded lines", Key(" l1 ", "l2\n", time.Hour, time.Minute, []maneuver.Maneuver{burn(maneuver.FrameTNW, 1), burn(maneuver.FrameQSW, 2)}), true},
		{"line split", Key("l1l", "2", time.Hour, time.Minute, []maneuver.Maneuver{burn(maneuver.FrameTNW, 1), burn(maneuver.FrameQSW, 2)}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if (tt.key == base) != tt.same {
				t.Errorf("key equality = %v, want %v", tt.key == base, tt.same)
			}
		})
	}
}

// readyGenerator is a countingGenerator whose runtime can be closed.
type readyGenerator struct {
	countingGenerator
	ready atomic.Bool
}

func (g *readyGenerator) Ready() bool { return g.ready.Load() }

func TestResultCacheRuntimeClosed(t *testing.T) {
	g := &readyGenerator{}
	g.ready.Store(true)
	c, _ := newTestCache(g, Config{})
	ctx := context.Background()

	if _, err := c.Generate(ctx, "l1", "l2", time.Hour, time.Minute, nil); err != nil {
		t.Fatal(err)
	}
	g.ready.Store(false)

	table, err := c.Generate(ctx, "l1", "l2", time.Hour, time.Minute, nil)
	if !errors.Is(err, ephemeris.ErrRuntimeNotStarted) {
		t.Fatalf("err = %v, want ErrRuntimeNotStarted", err)
	}
	if table != nil {
		t.Error("cached table served after the runtime closed")
	}
	if got := g.calls.Load(); got != 1 {
		t.Errorf("generator called %d times, want 1", got)
	}
}

func TestResultCachePaddedLinesShareEntry(t *testing.T) {
	g := &countingGenerator{}
	c, _ := newTestCache(g, Config{})
	ctx := context.Background()

	for _, lines := range [][2]string{{"l1", "l2"}, {"  l1", "l2  "}, {"l1\n", "\tl2"}} {
		if _, err := c.Generate(ctx, lines[0], lines[1], time.Hour, time.Minute, nil); err != nil {
			t.Fatal(err)
		}
	}
	if got := g.calls.Load(); got != 1 {
		t.Errorf("generator called %d times, want 1", got)
	}
}
