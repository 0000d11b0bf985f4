package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orbitplot"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	generationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ephemeris_generation_duration_seconds",
			Help:      "Wall time of successful ephemeris generations.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		},
	)

	generationRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ephemeris_rows_total",
			Help:      "Total number of ephemeris rows generated.",
		},
	)

	generationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ephemeris_errors_total",
			Help:      "Failed ephemeris generations by error kind.",
		},
		[]string{"kind"},
	)

	computationsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "computations_in_flight",
			Help:      "Ephemeris generations currently holding a runtime slot.",
		},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Open interactive sessions.",
		},
	)

	recomputeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_recompute_total",
			Help:      "Recompute triggers by outcome.",
		},
		[]string{"outcome"},
	)

	tleLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tle_lookups_total",
			Help:      "TLE catalog lookups by result.",
		},
		[]string{"result"},
	)

	cacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Ephemeris result cache hits.",
		},
	)

	cacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Ephemeris result cache misses.",
		},
	)

	cacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Ephemeris result cache evictions.",
		},
	)

	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Tables held in the ephemeris result cache.",
		},
	)

	cacheRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_rows",
			Help:      "Rows held in the ephemeris result cache.",
		},
	)

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_connections_total",
			Help:      "SSE connection events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Open SSE connections.",
		},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_messages_total",
			Help:      "SSE messages sent.",
		},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_bytes_total",
			Help:      "Bytes written to SSE clients, keepalives included.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_errors_total",
			Help:      "SSE errors by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		generationDurationSeconds,
		generationRowsTotal,
		generationErrorsTotal,
		computationsInFlight,
		sessionsActive,
		recomputeTotal,
		tleLookupsTotal,
		cacheHitsTotal,
		cacheMissesTotal,
		cacheEvictionsTotal,
		cacheEntries,
		cacheRows,
		streamConnectionsTotal,
		streamsActive,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveGeneration records a successful generation.
func ObserveGeneration(d time.Duration, rows int) {
	generationDurationSeconds.Observe(d.Seconds())
	generationRowsTotal.Add(float64(rows))
}

// IncGenerationErrors counts a failed generation. An empty kind is reported as "internal".
func IncGenerationErrors(kind string) {
	if kind == "" {
		kind = "internal"
	}
	generationErrorsTotal.WithLabelValues(kind).Inc()
}

func IncComputationsInFlight() { computationsInFlight.Inc() }
func DecComputationsInFlight() { computationsInFlight.Dec() }

func IncSessionsActive() { sessionsActive.Inc() }
func DecSessionsActive() { sessionsActive.Dec() }

// IncRecompute counts a recompute outcome: "busy", "discarded", "failed" or "succeeded".
func IncRecompute(outcome string) { recomputeTotal.WithLabelValues(outcome).Inc() }

// IncTLELookups counts a catalog lookup by result: "cache_hit", "fetched", "not_found" or "error".
func IncTLELookups(result string) { tleLookupsTotal.WithLabelValues(result).Inc() }

func IncCacheHits()           { cacheHitsTotal.Inc() }
func IncCacheMisses()         { cacheMissesTotal.Inc() }
func AddCacheEvictions(n int) { cacheEvictionsTotal.Add(float64(n)) }
func SetCacheEntries(n int)   { cacheEntries.Set(float64(n)) }
func SetCacheRows(n int)      { cacheRows.Set(float64(n)) }

func IncStreamConnections(event string) { streamConnectionsTotal.WithLabelValues(event).Inc() }
func IncStreamsActive()                 { streamsActive.Inc() }
func DecStreamsActive()                 { streamsActive.Dec() }
func IncStreamMessages()                { streamMessagesTotal.Inc() }
func AddStreamBytes(n int64)            { streamBytesTotal.Add(float64(n)) }
func IncStreamErrors(reason string)     { streamErrorsTotal.WithLabelValues(reason).Inc() }

var knownRoutes = map[string]bool{
	"/":                          true,
	"/healthz":                   true,
	"/readyz":                    true,
	"/metrics":                   true,
	"/app.js":                    true,
	"/styles.css":                true,
	"/api/v1/defaults":           true,
	"/api/v1/ephemeris":          true,
	"/api/v1/ephemeris/plot.png": true,
	"/api/v1/sessions/stream":    true,
}

// normalizeRoute maps a request path to a bounded set of label values so
// catalog numbers and session ids do not explode label cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if id, ok := strings.CutPrefix(path, "/api/v1/tle/"); ok && id != "" {
		if _, err := strconv.Atoi(id); err == nil {
			return "/api/v1/tle/{norad_id}"
		}
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/sessions/"); ok {
		if id, ok := strings.CutSuffix(rest, "/recompute"); ok && id != "" && !strings.Contains(id, "/") {
			return "/api/v1/sessions/{id}/recompute"
		}
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer, which SSE
// needs for flushing and write deadlines.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
