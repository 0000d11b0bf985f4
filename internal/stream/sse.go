// Package stream serves interactive sessions over Server-Sent Events. A client
// connects to GET /api/v1/sessions/stream, which opens a session bound to the
// connection; recompute triggers for that session arrive on a separate POST
// and their results are pushed here.
//
// Events:
//
//	event: session    data: {"id":"3f2a...","state":"idle"}
//	event: state      data: {"generation":1,"state":"computing"}
//	event: ephemeris  data: {"generation":1,"ephemeris":{...}}
//	event: error      data: {"generation":1,"error":"...","kind":"parse"}
//
// Keep-alive comments (:\n\n) are sent after KeepaliveInterval of silence.
// Closing the connection closes the session and cancels its computation.
package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/jyannick/OrbitPlot/internal/ephemeris"
	"github.com/jyannick/OrbitPlot/internal/httputil"
	"github.com/jyannick/OrbitPlot/internal/metrics"
	"github.com/jyannick/OrbitPlot/internal/session"
)

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxTotal           int           // Max concurrent streams overall (default: 1000).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Take the client IP from X-Forwarded-For.
}

// Handler manages SSE session connections.
type Handler struct {
	sessions *session.Manager
	config   Config
	limiter  *streamLimiter
	logger   *slog.Logger
}

// NewHandler creates a streaming handler backed by sessions.
func NewHandler(sessions *session.Manager, config Config, logger *slog.Logger) *Handler {
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		sessions: sessions,
		config:   config,
		limiter:  newStreamLimiter(config.MaxConcurrentPerIP, config.MaxTotal),
		logger:   logger,
	}
}

// HandleSession serves one session stream.
// GET /api/v1/sessions/stream
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	release, ok := h.limiter.acquire(ip)
	if !ok {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent streams", "")
		return
	}
	defer release()

	sess, err := h.sessions.Create()
	if err != nil {
		metrics.IncStreamErrors("session")
		if errors.Is(err, session.ErrTooManySessions) {
			w.Header().Set("Retry-After", "30")
			httputil.WriteError(w, http.StatusServiceUnavailable, err.Error(), "")
			return
		}
		h.logger.Error("session create failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal error", "")
		return
	}
	defer h.sessions.Close(sess.ID())

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()
	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"session", sess.ID(),
		"user_agent", r.Header.Get("User-Agent"),
	)

	c := &client{
		w:      w,
		rc:     http.NewResponseController(w),
		ip:     ip,
		logger: h.logger,
	}
	defer func() {
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"session", sess.ID(),
			"messages", c.messagesSent,
			"bytes", c.bytesSent,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)

	// Clear the server's WriteTimeout for this connection.
	if err := c.rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	// A reconnect opens a new session, so spread reconnects after a restart.
	if _, err := c.write(fmt.Sprintf("retry: %d\n\n", 3000+rand.Intn(4000))); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream not writable", "remote_ip", ip, "error", err)
		return
	}

	if err := c.send("session", 0, sessionMessage{ID: sess.ID(), State: sess.State().String()}); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (session)", "remote_ip", ip, "error", err)
		return
	}

	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	ctx := r.Context()
	events := sess.Events()
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			name, payload := eventPayload(ev)
			if err := c.send(name, ev.Generation, payload); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "event", name, "error", err)
				return
			}
			keepalive.Reset(h.config.KeepaliveInterval)

		case <-keepalive.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// eventPayload maps a session event to its SSE name and JSON body.
func eventPayload(ev session.Event) (string, any) {
	switch ev.Type {
	case session.EventEphemeris:
		return string(ev.Type), ephemerisMessage{Generation: ev.Generation, Ephemeris: ev.Table.Document()}
	case session.EventError:
		kind := ephemeris.Kind(ev.Err)
		if kind == "" {
			kind = "internal"
		}
		return string(ev.Type), errorMessage{Generation: ev.Generation, Error: ev.Err.Error(), Kind: kind}
	default:
		return string(session.EventState), stateMessage{Generation: ev.Generation, State: ev.State.String()}
	}
}

// SSE message payload types.

type sessionMessage struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

type stateMessage struct {
	Generation uint64 `json:"generation"`
	State      string `json:"state"`
}

type ephemerisMessage struct {
	Generation uint64              `json:"generation"`
	Ephemeris  *ephemeris.Document `json:"ephemeris"`
}

type errorMessage struct {
	Generation uint64 `json:"generation"`
	Error      string `json:"error"`
	Kind       string `json:"kind"`
}
