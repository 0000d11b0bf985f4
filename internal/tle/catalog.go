package tle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jyannick/OrbitPlot/internal/metrics"
)

// ErrNotFound is returned when the source has no TLE for a catalog number.
var ErrNotFound = errors.New("TLE not found")

const defaultTTL = time.Hour

type cached struct {
	entry     Entry
	fetchedAt time.Time
}

// Catalog looks up the latest TLE for a catalog number, keeping recent
// answers in memory for a TTL. Safe for concurrent use.
type Catalog struct {
	fetcher *Fetcher
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries map[int]cached
}

// NewCatalog creates a Catalog backed by f. A ttl <= 0 selects one hour.
func NewCatalog(f *Fetcher, ttl time.Duration, logger *slog.Logger) *Catalog {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Catalog{
		fetcher: f,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		entries: make(map[int]cached),
	}
}

// Lookup returns the TLE for catalog, fetching it when the cached copy is
// missing or older than the TTL.
func (c *Catalog) Lookup(ctx context.Context, catalog int) (Entry, error) {
	if catalog <= 0 {
		return Entry{}, fmt.Errorf("invalid catalog number %d", catalog)
	}

	c.mu.Lock()
	hit, ok := c.entries[catalog]
	c.mu.Unlock()
	if ok && c.now().Sub(hit.fetchedAt) < c.ttl {
		metrics.IncTLELookups("cache_hit")
		return hit.entry, nil
	}

	data, err := c.fetcher.Fetch(ctx, catalog)
	if err != nil {
		metrics.IncTLELookups("error")
		return Entry{}, err
	}
	entries, err := Parse(bytes.NewReader(data), c.logger)
	if err != nil {
		metrics.IncTLELookups("error")
		return Entry{}, err
	}
	for _, e := range entries {
		if e.TLE.CatalogNumber != catalog {
			continue
		}
		c.mu.Lock()
		c.entries[catalog] = cached{entry: e, fetchedAt: c.now()}
		c.mu.Unlock()
		metrics.IncTLELookups("fetched")
		c.logger.Info("TLE looked up", "catalog", catalog, "name", e.Name, "epoch", e.TLE.Epoch)
		return e, nil
	}
	metrics.IncTLELookups("not_found")
	return Entry{}, fmt.Errorf("%w for catalog number %d", ErrNotFound, catalog)
}

// Len returns the number of cached entries.
func (c *Catalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
