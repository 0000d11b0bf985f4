// Package propagation predicts inertial satellite states from a TLE, with
// optional impulsive maneuvers layered on top, and fans sample evaluation out
// over a bounded worker pool.
package propagation

import (
	"errors"
	"time"

	"github.com/jyannick/OrbitPlot/internal/transform"
)

var (
	// ErrPropagation marks a failure inside the SGP4 model.
	ErrPropagation = errors.New("sgp4 propagation failed")
	// ErrUnsupportedFrame is returned for maneuvers in an unknown frame.
	ErrUnsupportedFrame = errors.New("unsupported maneuver frame")
)

// Propagator predicts TEME states (km, km/s). Implementations are safe for
// concurrent use once constructed.
type Propagator interface {
	// Epoch is the reference instant of the underlying element set.
	Epoch() time.Time
	StateAt(t time.Time) (transform.State, error)
}
