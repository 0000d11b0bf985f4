package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jyannick/OrbitPlot/internal/maneuver"
	"github.com/jyannick/OrbitPlot/internal/session"
)

const maxRequestBytes = 1 << 20

// Duration is a JSON duration: a Go duration string such as "120h", or a
// number of seconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var secs float64
	if err := json.Unmarshal(b, &secs); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string or a number of seconds")
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = Duration(v)
	return nil
}

// ephemerisRequest is the body of the ephemeris, plot and recompute
// endpoints. Absent durations take the configured defaults, while explicit
// values, zero included, are passed through for validation. Maneuvers are
// applied unless apply_maneuvers is false.
type ephemerisRequest struct {
	Satellite      string          `json:"satellite,omitempty"`
	Line1          string          `json:"line1"`
	Line2          string          `json:"line2"`
	Duration       *Duration       `json:"duration,omitempty"`
	Step           *Duration       `json:"step,omitempty"`
	Maneuvers      []maneuver.Spec `json:"maneuvers,omitempty"`
	ApplyManeuvers *bool           `json:"apply_maneuvers,omitempty"`
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (ephemerisRequest, error) {
	var req ephemerisRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	return req, nil
}

// toSession resolves defaults and converts the maneuver table.
func (req ephemerisRequest) toSession(defaults Defaults) session.Request {
	out := session.Request{
		Line1:    req.Line1,
		Line2:    req.Line2,
		Duration: time.Duration(defaults.Duration),
		Step:     time.Duration(defaults.Step),
	}
	if req.Duration != nil {
		out.Duration = time.Duration(*req.Duration)
	}
	if req.Step != nil {
		out.Step = time.Duration(*req.Step)
	}
	if req.ApplyManeuvers == nil || *req.ApplyManeuvers {
		out.Maneuvers = maneuver.FromSpecs(req.Maneuvers)
	}
	return out
}
