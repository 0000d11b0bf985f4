// Package cache memoizes ephemeris generations.
//
// Generation is deterministic for fixed inputs, so a table can be reused for
// any later request with the same TLE lines, time grid and maneuver list. The
// cache holds at most MaxRows rows in total, evicting the oldest entries
// first, and a background loop drops entries older than the TTL. Failed
// generations are never cached. The cache is off by default; hosts opt in
// with Config.Enabled.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jyannick/OrbitPlot/internal/ephemeris"
	"github.com/jyannick/OrbitPlot/internal/maneuver"
	"github.com/jyannick/OrbitPlot/internal/metrics"
)

// Config holds cache configuration.
type Config struct {
	Enabled       bool          // Memoize generations (default: false)
	TTL           time.Duration // How long an entry stays valid (default: 10m)
	MaxRows       int           // Total rows held across entries (default: 2,000,000)
	SweepInterval time.Duration // Eviction loop period (default: 1m)
}

const (
	defaultTTL           = 10 * time.Minute
	defaultMaxRows       = 2_000_000
	defaultSweepInterval = time.Minute
)

// Generator produces ephemeris tables. *ephemeris.Generator implements it.
type Generator interface {
	Generate(ctx context.Context, line1, line2 string, duration, step time.Duration, maneuvers []maneuver.Maneuver) (*ephemeris.Table, error)
}

// readier is implemented by generators bound to a runtime that can close.
type readier interface {
	Ready() bool
}

type entry struct {
	table    *ephemeris.Table
	storedAt time.Time
}

// ResultCache wraps a Generator and serves repeated requests from memory.
// Returned tables are shared between callers and must not be modified.
// Safe for concurrent use by multiple goroutines.
type ResultCache struct {
	next   Generator
	config Config
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
	rows    int

	// Counters (lock-free).
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New creates a cache in front of next. Zero config fields take defaults.
func New(next Generator, config Config, logger *slog.Logger) *ResultCache {
	if config.TTL <= 0 {
		config.TTL = defaultTTL
	}
	if config.MaxRows <= 0 {
		config.MaxRows = defaultMaxRows
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = defaultSweepInterval
	}
	logger.Info("cache initialized",
		"ttl_seconds", config.TTL.Seconds(),
		"max_rows", config.MaxRows,
	)

	return &ResultCache{
		next:    next,
		config:  config,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Key identifies a generation request. Surrounding whitespace on the TLE
// lines is ignored; maneuver order is significant.
func Key(line1, line2 string, duration, step time.Duration, maneuvers []maneuver.Maneuver) string {
	h := sha256.New()
	field := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

	field(strings.TrimSpace(line1))
	field(strings.TrimSpace(line2))
	field(strconv.FormatInt(int64(duration), 10))
	field(strconv.FormatInt(int64(step), 10))
	for _, m := range maneuvers {
		field(strconv.FormatInt(m.Date.UnixNano(), 10))
		field(string(m.Frame))
		field(f(m.DeltaV.X))
		field(f(m.DeltaV.Y))
		field(f(m.DeltaV.Z))
		field(f(m.Isp))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Generate returns the cached table for the request, or generates and
// caches it. Once the wrapped generator's runtime has closed, hits are no
// longer served and ephemeris.ErrRuntimeNotStarted is returned.
func (c *ResultCache) Generate(ctx context.Context, line1, line2 string, duration, step time.Duration, maneuvers []maneuver.Maneuver) (*ephemeris.Table, error) {
	if r, ok := c.next.(readier); ok && !r.Ready() {
		return nil, ephemeris.ErrRuntimeNotStarted
	}
	key := Key(line1, line2, duration, step, maneuvers)
	if t := c.Get(key); t != nil {
		return t, nil
	}

	t, err := c.next.Generate(ctx, line1, line2, duration, step, maneuvers)
	if err != nil {
		return nil, err
	}
	c.put(key, t)
	return t, nil
}

// Get returns the table stored under key, or nil if it is missing or expired.
func (c *ResultCache) Get(key string) *ephemeris.Table {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.now().Sub(e.storedAt) < c.config.TTL {
		c.hits.Add(1)
		metrics.IncCacheHits()
		return e.table
	}

	c.misses.Add(1)
	metrics.IncCacheMisses()
	return nil
}

// put stores t, evicting the oldest entries until the row budget fits.
// Tables larger than the whole budget are not stored.
func (c *ResultCache) put(key string, t *ephemeris.Table) {
	n := len(t.Rows)
	if n > c.config.MaxRows {
		c.logger.Debug("table too large to cache", "rows", n, "max_rows", c.config.MaxRows)
		return
	}

	c.mu.Lock()
	if old, ok := c.entries[key]; ok {
		c.rows -= len(old.table.Rows)
		delete(c.entries, key)
	}
	var removed int
	for c.rows+n > c.config.MaxRows {
		c.removeOldestLocked()
		removed++
	}
	c.entries[key] = &entry{table: t, storedAt: c.now()}
	c.rows += n
	c.mu.Unlock()

	if removed > 0 {
		c.evicted(removed)
	}
	c.updateMetrics()
}

func (c *ResultCache) removeOldestLocked() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, e := range c.entries {
		if oldestKey == "" || e.storedAt.Before(oldest) {
			oldestKey, oldest = k, e.storedAt
		}
	}
	c.rows -= len(c.entries[oldestKey].table.Rows)
	delete(c.entries, oldestKey)
}

// evictExpired removes entries older than the TTL.
func (c *ResultCache) evictExpired() int {
	cutoff := c.now().Add(-c.config.TTL)
	var removed int

	c.mu.Lock()
	for k, e := range c.entries {
		if !e.storedAt.After(cutoff) {
			c.rows -= len(e.table.Rows)
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.evicted(removed)
		c.updateMetrics()
		c.logger.Debug("cache eviction", "entries_removed", removed)
	}
	return removed
}

func (c *ResultCache) evicted(n int) {
	c.evictions.Add(int64(n))
	metrics.AddCacheEvictions(n)
}

// Start runs the eviction loop. Blocks until ctx is cancelled.
func (c *ResultCache) Start(ctx context.Context) {
	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("cache sweeper stopped")
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

// Stats returns current cache statistics.
func (c *ResultCache) Stats() Stats {
	c.mu.RLock()
	entries, rows := len(c.entries), c.rows
	c.mu.RUnlock()

	return Stats{
		Entries:   entries,
		Rows:      rows,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// Stats holds cache statistics.
type Stats struct {
	Entries   int
	Rows      int
	Hits      int64
	Misses    int64
	Evictions int64
}

// updateMetrics publishes current cache size to Prometheus.
func (c *ResultCache) updateMetrics() {
	s := c.Stats()
	metrics.SetCacheEntries(s.Entries)
	metrics.SetCacheRows(s.Rows)
}
