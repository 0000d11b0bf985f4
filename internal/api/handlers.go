package api

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jyannick/OrbitPlot/internal/ephemeris"
	"github.com/jyannick/OrbitPlot/internal/httputil"
	"github.com/jyannick/OrbitPlot/internal/plot"
	"github.com/jyannick/OrbitPlot/internal/session"
	"github.com/jyannick/OrbitPlot/internal/tle"
)

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

// GET /api/v1/defaults
func (h *handlers) defaults(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.deps.Defaults)
}

// generate runs a synchronous generation for the request body, writing the
// error response itself on failure.
func (h *handlers) generate(w http.ResponseWriter, r *http.Request) (*ephemeris.Table, ephemerisRequest, bool) {
	req, err := decodeRequest(w, r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error(), "")
		return nil, req, false
	}
	sr := req.toSession(h.deps.Defaults)
	table, err := h.deps.Generator.Generate(r.Context(), sr.Line1, sr.Line2, sr.Duration, sr.Step, sr.Maneuvers)
	if err != nil {
		h.writeGenerationError(w, err)
		return nil, req, false
	}
	return table, req, true
}

// POST /api/v1/ephemeris[?format=csv]
func (h *handlers) ephemeris(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "csv" {
		httputil.WriteError(w, http.StatusBadRequest, "format must be json or csv", "")
		return
	}
	table, _, ok := h.generate(w, r)
	if !ok {
		return
	}

	if format == "csv" {
		var buf bytes.Buffer
		if err := table.WriteCSV(&buf); err != nil {
			h.logger.Error("writing CSV", "error", err)
			httputil.WriteError(w, http.StatusInternalServerError, "internal error", "")
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="ephemeris-`+strconv.Itoa(table.Satellite)+`.csv"`)
		w.Write(buf.Bytes())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, table.Document())
}

// POST /api/v1/ephemeris/plot.png?chart=sma-lon|ex-ey|hx-hy
func (h *handlers) plot(w http.ResponseWriter, r *http.Request) {
	chart, err := plot.ParseChart(r.URL.Query().Get("chart"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	table, req, ok := h.generate(w, r)
	if !ok {
		return
	}

	subtitle := req.Satellite
	if subtitle == "" {
		subtitle = "NORAD " + strconv.Itoa(table.Satellite)
	}
	var buf bytes.Buffer
	if err := h.deps.Plotter.WritePNG(&buf, table.Columns(), chart, subtitle); err != nil {
		h.logger.Error("rendering chart", "chart", chart, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal error", "")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

type tleResponse struct {
	Name    string `json:"name"`
	Catalog int    `json:"catalog"`
	Epoch   string `json:"epoch"`
	Line1   string `json:"line1"`
	Line2   string `json:"line2"`
}

// GET /api/v1/tle/{norad_id}
func (h *handlers) lookupTLE(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("norad_id"))
	if err != nil || id <= 0 || id > 999999999 {
		httputil.WriteError(w, http.StatusBadRequest, "norad_id must be a positive integer", "")
		return
	}

	entry, err := h.deps.Catalog.Lookup(r.Context(), id)
	switch {
	case err == nil:
	case errors.Is(err, tle.ErrNotFound):
		httputil.WriteError(w, http.StatusNotFound, err.Error(), "")
		return
	default:
		h.logger.Warn("TLE lookup failed", "catalog", id, "error", err)
		httputil.WriteError(w, http.StatusBadGateway, "TLE source unavailable", "")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, tleResponse{
		Name:    entry.Name,
		Catalog: entry.TLE.CatalogNumber,
		Epoch:   entry.TLE.Epoch.UTC().Format("2006-01-02T15:04:05.000000Z07:00"),
		Line1:   entry.TLE.Line1,
		Line2:   entry.TLE.Line2,
	})
}

type recomputeResponse struct {
	Session    string `json:"session"`
	Generation uint64 `json:"generation"`
}

// POST /api/v1/sessions/{id}/recompute
func (h *handlers) recompute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := h.deps.Sessions.Get(id)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, err.Error(), "")
		return
	}
	req, err := decodeRequest(w, r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	gen, err := sess.Recompute(req.toSession(h.deps.Defaults))
	switch {
	case err == nil:
		httputil.WriteJSON(w, http.StatusAccepted, recomputeResponse{Session: id, Generation: gen})
	case errors.Is(err, session.ErrBusy):
		httputil.WriteError(w, http.StatusConflict, err.Error(), "")
	case errors.Is(err, session.ErrClosed):
		httputil.WriteError(w, http.StatusNotFound, err.Error(), "")
	default:
		h.logger.Error("recompute failed", "session", id, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal error", "")
	}
}

// writeGenerationError maps generator errors to status codes.
func (h *handlers) writeGenerationError(w http.ResponseWriter, err error) {
	switch kind := ephemeris.Kind(err); kind {
	case ephemeris.KindParse, ephemeris.KindInvalidParameter:
		httputil.WriteError(w, http.StatusBadRequest, err.Error(), kind)
		return
	case ephemeris.KindPropagation:
		httputil.WriteError(w, http.StatusUnprocessableEntity, err.Error(), kind)
		return
	}

	switch {
	case errors.Is(err, ephemeris.ErrRuntimeNotStarted):
		httputil.WriteError(w, http.StatusServiceUnavailable, "service is shutting down", "")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.logger.Debug("generation abandoned", "error", err)
		httputil.WriteError(w, http.StatusServiceUnavailable, "request cancelled", "")
	default:
		h.logger.Error("generation failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal error", "")
	}
}
