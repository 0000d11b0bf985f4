package tle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultSourceURL is a CelesTrak GP query; %d is replaced with the catalog number.
const DefaultSourceURL = "https://celestrak.org/NORAD/elements/gp.php?CATNR=%d&FORMAT=tle"

const maxBodyBytes = 50 << 20

// ErrBodyTooLarge is returned when a response exceeds the body limit.
var ErrBodyTooLarge = errors.New("response exceeds byte limit")

// Fetcher retrieves raw TLE text for a catalog number from a remote source.
type Fetcher struct {
	sourceURL  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher. sourceURL may contain a %d verb for the
// catalog number; without one it is requested verbatim.
func NewFetcher(sourceURL string, logger *slog.Logger) *Fetcher {
	if sourceURL == "" {
		sourceURL = DefaultSourceURL
	}
	return &Fetcher{
		sourceURL: sourceURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// SourceURL returns the configured source URL template.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

func (f *Fetcher) urlFor(catalog int) string {
	if strings.Contains(f.sourceURL, "%d") {
		return fmt.Sprintf(f.sourceURL, catalog)
	}
	return f.sourceURL
}

// Fetch performs an HTTP GET for the catalog number and returns the body.
func (f *Fetcher) Fetch(ctx context.Context, catalog int) ([]byte, error) {
	url := f.urlFor(catalog)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching TLE data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w of %s", ErrBodyTooLarge, humanize.IBytes(maxBodyBytes))
	}

	f.logger.Debug("fetched TLE data",
		"catalog", catalog,
		"bytes", humanize.Bytes(uint64(len(body))),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return body, nil
}
