// Package transform provides the coordinate frame transformations the
// ephemeris pipeline needs around SGP4.
//
// SGP4 states are expressed in TEME (True Equator Mean Equinox). Ground-track
// projection goes TEME → ECEF (rotation by GMST only, Vallado-style,
// ignoring polar motion and the equation of the equinoxes) → WGS-84 geodetic.
// Maneuver delta-V vectors may be given in EME2000 or in a local orbital
// frame and are brought into TEME before they are applied.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// State is an inertial (TEME) position and velocity in km and km/s, the units
// SGP4 works in.
type State struct {
	Position r3.Vec
	Velocity r3.Vec
}

// Valid reports whether every component is finite.
func (s State) Valid() bool {
	for _, v := range []float64{
		s.Position.X, s.Position.Y, s.Position.Z,
		s.Velocity.X, s.Velocity.Y, s.Velocity.Z,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ECEF is an Earth-fixed position and velocity in meters and m/s.
type ECEF struct {
	Position r3.Vec
	Velocity r3.Vec
}

// TEMEToECEF transforms a TEME state to ECEF at the given UTC time.
func TEMEToECEF(s State, t time.Time) ECEF {
	return TEMEToECEFWithGMST(s, GMST(t))
}

// TEMEToECEFWithGMST transforms a TEME state using a precomputed GMST (radians).
//
// Position transform: r_ECEF = R3(θ) * r_TEME
// Velocity transform: v_ECEF = R3(θ) * v_TEME - ω × r_ECEF
func TEMEToECEFWithGMST(s State, gmst float64) ECEF {
	rot := ROT3(gmst)
	r := Apply(rot, s.Position)
	v := r3.Sub(Apply(rot, s.Velocity), r3.Cross(r3.Vec{Z: OmegaEarth}, r))

	return ECEF{
		Position: r3.Scale(1000, r),
		Velocity: r3.Scale(1000, v),
	}
}

// ValidateECEF reports whether an ECEF position (meters) is plausible for an
// Earth-orbiting satellite: finite, above the surface and inside lunar distance.
func ValidateECEF(p ECEF) bool {
	for _, c := range []float64{p.Position.X, p.Position.Y, p.Position.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	const (
		minRadius = 6200e3 // meters
		maxRadius = 384e6
	)
	mag := r3.Norm(p.Position)
	return mag >= minRadius && mag <= maxRadius
}
