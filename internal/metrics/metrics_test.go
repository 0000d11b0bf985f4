package metrics

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		// Known exact routes.
		{"/healthz", "/healthz"},
		{"/readyz", "/readyz"},
		{"/metrics", "/metrics"},
		{"/", "/"},
		{"/app.js", "/app.js"},
		{"/api/v1/defaults", "/api/v1/defaults"},
		{"/api/v1/ephemeris", "/api/v1/ephemeris"},
		{"/api/v1/ephemeris/plot.png", "/api/v1/ephemeris/plot.png"},
		{"/api/v1/sessions/stream", "/api/v1/sessions/stream"},

		// Parameterized routes collapse to one label.
		{"/api/v1/tle/27421", "/api/v1/tle/{norad_id}"},
		{"/api/v1/tle/41036", "/api/v1/tle/{norad_id}"},
		{"/api/v1/sessions/3f2a9c/recompute", "/api/v1/sessions/{id}/recompute"},

		// Unknown/bot paths collapse to "other".
		{"/api/v1/tle/abc", "other"},
		{"/api/v1/tle/", "other"},
		{"/api/v1/sessions//recompute", "other"},
		{"/api/v1/sessions/a/b/recompute", "other"},
		{"/wp-admin", "other"},
		{"/.env", "other"},
		{"/favicon.ico", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := normalizeRoute(tt.path)
			if got != tt.want {
				t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestMetricsCardinality verifies that 100 unique catalog numbers produce
// exactly 1 distinct path label, not 100.
func TestMetricsCardinality(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		seen[normalizeRoute("/api/v1/tle/"+strconv.Itoa(20000+i))] = true
	}
	if len(seen) != 1 {
		t.Errorf("expected 1 unique label for parameterized paths, got %d: %v", len(seen), seen)
	}
}

func TestMiddlewareRecordsNormalizedRoute(t *testing.T) {
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/api/v1/tle/{norad_id}", "GET", "418"))
	for _, id := range []string{"1", "2", "3"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tle/"+id, nil))
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/api/v1/tle/{norad_id}", "GET", "418"))
	if after-before != 3 {
		t.Errorf("counter increased by %v, want 3", after-before)
	}
}

func TestGenerationMetrics(t *testing.T) {
	rows := testutil.ToFloat64(generationRowsTotal)
	ObserveGeneration(20*time.Millisecond, 7200)
	if got := testutil.ToFloat64(generationRowsTotal) - rows; got != 7200 {
		t.Errorf("rows counter increased by %v, want 7200", got)
	}

	internal := testutil.ToFloat64(generationErrorsTotal.WithLabelValues("internal"))
	IncGenerationErrors("")
	if got := testutil.ToFloat64(generationErrorsTotal.WithLabelValues("internal")) - internal; got != 1 {
		t.Errorf("internal errors increased by %v, want 1", got)
	}
}
