// Package maneuver describes impulsive maneuvers and the plan files they are
// loaded from.
package maneuver

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/jyannick/OrbitPlot/internal/astro"
)

// Frame identifies the reference frame a delta-V is expressed in.
type Frame string

const (
	// FrameTEME is the inertial frame SGP4 states are expressed in.
	FrameTEME Frame = "TEME"
	// FrameEME2000 is the J2000 mean equator and equinox.
	FrameEME2000 Frame = "EME2000"
	// FrameQSW is the local orbital frame: radial, along-track, orbit normal.
	FrameQSW Frame = "QSW"
	// FrameTNW is the local orbital frame: velocity, in-plane normal, orbit normal.
	FrameTNW Frame = "TNW"
)

// DefaultFrame is used when a plan entry leaves the frame empty.
const DefaultFrame = FrameEME2000

// ParseFrame normalizes a frame name. LVLH is accepted as an alias for QSW.
// Unrecognized names are returned upper-cased so the propagator can reject
// them with context.
func ParseFrame(s string) Frame {
	switch f := Frame(strings.ToUpper(strings.TrimSpace(s))); f {
	case "":
		return DefaultFrame
	case "LVLH":
		return FrameQSW
	case "J2000":
		return FrameEME2000
	default:
		return f
	}
}

// Known reports whether f is a supported frame.
func (f Frame) Known() bool {
	switch f {
	case FrameTEME, FrameEME2000, FrameQSW, FrameTNW:
		return true
	}
	return false
}

// Maneuver is an instantaneous velocity change.
type Maneuver struct {
	Date   time.Time
	Frame  Frame
	DeltaV r3.Vec  // m/s
	Isp    float64 // specific impulse, s
}

// PropellantFraction returns the fraction of the pre-burn mass consumed by
// the maneuver, from the rocket equation.
func (m Maneuver) PropellantFraction() float64 {
	return PropellantFraction(r3.Norm(m.DeltaV), m.Isp)
}

// PropellantFraction returns 1 - exp(-dv / (isp·g0)) for dv in m/s and isp in s.
func PropellantFraction(dv, isp float64) float64 {
	if isp <= 0 {
		return math.NaN()
	}
	return -math.Expm1(-dv / (isp * astro.StandardGravity))
}

var (
	ErrOutOfOrder  = errors.New("maneuvers are not in chronological order")
	ErrBeforeEpoch = errors.New("maneuver precedes the TLE epoch")
	ErrInvalid     = errors.New("invalid maneuver")
)

// Validate checks that ms is usable against a TLE epoch: dates are set,
// non-decreasing and not before the epoch, delta-V components are finite and
// isp is positive.
func Validate(epoch time.Time, ms []Maneuver) error {
	for i, m := range ms {
		if m.Date.IsZero() {
			return fmt.Errorf("%w %d: missing date", ErrInvalid, i)
		}
		for _, c := range []float64{m.DeltaV.X, m.DeltaV.Y, m.DeltaV.Z} {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return fmt.Errorf("%w %d: non-finite delta-V", ErrInvalid, i)
			}
		}
		if !(m.Isp > 0) || math.IsInf(m.Isp, 0) {
			return fmt.Errorf("%w %d: isp must be positive, got %v", ErrInvalid, i, m.Isp)
		}
		if m.Date.Before(epoch) {
			return fmt.Errorf("%w: maneuver %d at %s, epoch %s",
				ErrBeforeEpoch, i, m.Date.UTC().Format(time.RFC3339), epoch.UTC().Format(time.RFC3339Nano))
		}
		if i > 0 && m.Date.Before(ms[i-1].Date) {
			return fmt.Errorf("%w: maneuver %d at %s precedes maneuver %d at %s",
				ErrOutOfOrder, i, m.Date.UTC().Format(time.RFC3339), i-1, ms[i-1].Date.UTC().Format(time.RFC3339))
		}
	}
	return nil
}
